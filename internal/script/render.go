/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package script

import (
	"strings"
)

// Render writes the text form of d. Parse(Render(d)) yields d again, apart
// from line numbers and tags.
func (d Document) Render() string {
	var b strings.Builder
	if d.Title != "" {
		b.WriteString("# " + d.Title + "\n")
	}
	for _, s := range d.Sections {
		b.WriteString("\n## " + s.Unit + "\n")
		for _, bt := range s.Beats {
			b.WriteString("\n### " + bt.Name)
			if bt.FrameID != "" {
				b.WriteString(" [" + bt.FrameID + "]")
			}
			b.WriteString("\n")
			if attrs := bt.attrLine(); attrs != "" {
				b.WriteString(attrs + "\n")
			}
			b.WriteString(bt.Text())
		}
	}
	return b.String()
}

// Text renders only the lines of a beat. This is what gets stored as the
// frame's script.
func (bt Beat) Text() string {
	var b strings.Builder
	for _, l := range bt.Lines {
		if l.Type == LineNote {
			b.WriteString("; " + l.Text + "\n")
			continue
		}
		label := l.Label
		if label == "" {
			switch l.Type {
			case LineOnScreen:
				label = "ON SCREEN"
			case LineDirection:
				label = "SHOT"
			default:
				label = "VO"
			}
		}
		parts := strings.Split(l.Text, "\n")
		b.WriteString(label + ": " + parts[0] + "\n")
		for _, p := range parts[1:] {
			b.WriteString("  " + p + "\n")
		}
	}
	return b.String()
}

// Spoken joins the voiceover lines of a beat.
func (bt Beat) Spoken() string {
	var parts []string
	for _, l := range bt.Lines {
		if l.Type == LineVoiceover {
			parts = append(parts, strings.ReplaceAll(l.Text, "\n", " "))
		}
	}
	return strings.Join(parts, " ")
}

func (bt Beat) attrLine() string {
	var parts []string
	if bt.Tone != "" {
		parts = append(parts, "@tone:"+strings.ReplaceAll(bt.Tone, " ", "-"))
	}
	if bt.Filter != "" {
		parts = append(parts, "@filter:"+strings.ReplaceAll(bt.Filter, " ", "-"))
	}
	if bt.Transition != "" {
		parts = append(parts, "@transition:"+string(bt.Transition))
	}
	return strings.Join(parts, " ")
}
