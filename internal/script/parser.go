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
	"bufio"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"vidskel/internal/domain"
)

var (
	reTitle   = regexp.MustCompile(`^#\s+(.*)$`)
	reSection = regexp.MustCompile(`^##\s+(.*)$`)
	reBeat    = regexp.MustCompile(`^###\s+(.*?)\s*(?:\[([^\]]+)\])?$`)
	reLabel   = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_\- ]{0,31})\s*:\s*(.*)$`)
	reAttr    = regexp.MustCompile(`@([a-z]+):(\S+)`)
	reTag     = regexp.MustCompile(`(?i)@([a-z0-9_\-]+)`)
)

// Parse reads the text form of a Document. It is lenient so model output
// can go through it too:
//   - text before the first "##" heading lands in an implicit section
//   - text before the first "###" heading lands in an implicit beat
//   - plain text inside a beat is voiceover
//
// Problems that lose information (unknown attribute values) are reported as
// errors next to the best-effort document.
func Parse(input string) (Document, []Error) {
	var (
		doc  Document
		errs []Error
		sec  *Section
		beat *Beat
		last *Line
	)
	ensureSection := func() {
		if sec == nil {
			doc.Sections = append(doc.Sections, Section{})
			sec = &doc.Sections[len(doc.Sections)-1]
			beat = nil
		}
	}
	ensureBeat := func(lineNo int) {
		ensureSection()
		if beat == nil {
			sec.Beats = append(sec.Beats, Beat{LineNo: lineNo})
			beat = &sec.Beats[len(sec.Beats)-1]
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")

		// continuation of the previous spoken or on-screen line
		if strings.HasPrefix(line, "  ") && last != nil && last.Type != LineNote {
			if cont := strings.TrimSpace(line); cont != "" {
				last.Text += "\n" + cont
				last.Tags = mergeTags(last.Tags, extractTags(cont))
			}
			continue
		}

		trim := strings.TrimSpace(line)
		if trim == "" {
			last = nil
			continue
		}
		// strip markdown emphasis models like to add around headings
		trim = strings.TrimSuffix(strings.TrimPrefix(trim, "**"), "**")

		switch {
		case strings.HasPrefix(trim, "### "):
			m := reBeat.FindStringSubmatch(trim)
			ensureSection()
			sec.Beats = append(sec.Beats, Beat{Name: strings.TrimSpace(m[1]), FrameID: strings.TrimSpace(m[2]), LineNo: lineNo})
			beat = &sec.Beats[len(sec.Beats)-1]
			last = nil
			continue
		case strings.HasPrefix(trim, "## "):
			m := reSection.FindStringSubmatch(trim)
			doc.Sections = append(doc.Sections, Section{Unit: strings.TrimSpace(m[1])})
			sec = &doc.Sections[len(doc.Sections)-1]
			beat, last = nil, nil
			continue
		case strings.HasPrefix(trim, "# "):
			m := reTitle.FindStringSubmatch(trim)
			if doc.Title == "" {
				doc.Title = strings.TrimSpace(m[1])
			}
			last = nil
			continue
		}

		if strings.HasPrefix(trim, ";") {
			ensureBeat(lineNo)
			beat.Lines = append(beat.Lines, Line{Type: LineNote, Text: strings.TrimSpace(strings.TrimPrefix(trim, ";")), LineNo: lineNo})
			last = nil
			continue
		}

		if strings.HasPrefix(trim, "@") && reAttr.MatchString(trim) {
			ensureBeat(lineNo)
			for _, m := range reAttr.FindAllStringSubmatch(trim, -1) {
				if err := applyAttr(beat, m[1], m[2]); err != nil {
					errs = append(errs, Error{Line: lineNo, Column: strings.Index(line, m[0]) + 1, Message: err.Error()})
				}
			}
			last = nil
			continue
		}

		ensureBeat(lineNo)
		ln := Line{Type: LineVoiceover, Text: trim, LineNo: lineNo}
		if m := reLabel.FindStringSubmatch(trim); m != nil {
			label := strings.ToUpper(strings.TrimSpace(m[1]))
			ln.Type = classify(label)
			ln.Label = label
			ln.Text = strings.TrimSpace(m[2])
		}
		ln.Tags = extractTags(ln.Text)
		beat.Lines = append(beat.Lines, ln)
		last = &beat.Lines[len(beat.Lines)-1]
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, Error{Line: lineNo, Column: 1, Message: err.Error()})
	}
	return doc, errs
}

func classify(label string) LineType {
	switch label {
	case "VO", "VOICEOVER", "VOICE OVER", "NARRATION", "SAY":
		return LineVoiceover
	case "ON SCREEN", "ONSCREEN", "TEXT", "CAPTION", "SUBTITLE":
		return LineOnScreen
	default:
		return LineDirection
	}
}

func applyAttr(b *Beat, key, value string) error {
	switch key {
	case "tone":
		b.Tone = value
	case "filter":
		b.Filter = value
	case "transition":
		t, err := domain.ParseTransition(value)
		if err != nil {
			return err
		}
		b.Transition = t
	default:
		return fmt.Errorf("unknown attribute @%s", key)
	}
	return nil
}

func extractTags(s string) []string {
	found := reTag.FindAllStringSubmatch(s, -1)
	if len(found) == 0 {
		return nil
	}
	var out []string
	for _, f := range found {
		if t := strings.ToLower(strings.TrimSpace(f[1])); t != "" {
			out = append(out, t)
		}
	}
	return mergeTags(nil, out)
}

func mergeTags(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	m := map[string]struct{}{}
	for _, t := range a {
		m[t] = struct{}{}
	}
	for _, t := range b {
		m[t] = struct{}{}
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
