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

import "vidskel/internal/domain"

// Document is a finished script for one skeleton: one section per unit, one
// beat per frame.
//
// The text form looks like this:
//
//	# Launch teaser
//	## Hook
//	### Provocative question [f1]
//	@tone:playful @transition:smooth
//	VO: What if your phone could do this?
//	  Continuation lines are indented.
//	ON SCREEN: big red arrow
//	; author note
type Document struct {
	Title      string
	SkeletonID string
	Sections   []Section
}

// Section holds the beats of one unit, in unit-local order.
type Section struct {
	Unit  string
	Beats []Beat
}

// Beat is the script for one frame.
type Beat struct {
	FrameID    string
	Name       string
	Tone       string
	Filter     string
	Transition domain.Transition
	Lines      []Line
	LineNo     int
}

// LineType indicates the kind of a script line.
// Voiceover: VO: text (also plain text inside a beat)
// OnScreen:  ON SCREEN: text, TEXT: text
// Direction: SHOT: text, B-ROLL: text, any other LABEL: text
// Note:      lines starting with ";" are author notes
type LineType int

const (
	LineUnknown LineType = iota
	LineVoiceover
	LineOnScreen
	LineDirection
	LineNote
)

// Line captures a single logical line (possibly with continuations) in a beat.
type Line struct {
	Type   LineType
	Label  string
	Text   string
	Tags   []string
	LineNo int // 1-based starting line number in the source
}

// Error represents a parse error with position context.
type Error struct {
	Line    int
	Column  int
	Message string
}

func (e Error) Error() string { return e.Message }

// Beats returns all beats in document order.
func (d Document) Beats() []Beat {
	var out []Beat
	for _, s := range d.Sections {
		out = append(out, s.Beats...)
	}
	return out
}
