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
	"context"
	"errors"
	"fmt"
	"strings"

	"vidskel/internal/domain"
	"vidskel/internal/store"
)

// ErrEmptySkeleton is returned when there is nothing to write a script for.
var ErrEmptySkeleton = errors.New("skeleton has no frames in any unit")

// Generator turns a finished skeleton into a script.
type Generator interface {
	Generate(ctx context.Context, sk domain.Skeleton, vc domain.VideoContext) (Document, error)
}

// Outline builds the document skeleton: sections in unit order, beats in
// unit-local order, frame attributes copied. Orphaned frames are left out.
func Outline(sk domain.Skeleton, m domain.UnitMatch) Document {
	doc := Document{Title: sk.Name, SkeletonID: sk.ID}
	for _, u := range sk.Units {
		sec := Section{Unit: u}
		for _, f := range sk.UnitFrames(u, m) {
			sec.Beats = append(sec.Beats, Beat{
				FrameID:    f.ID,
				Name:       f.Name,
				Tone:       f.Tone,
				Filter:     f.Filter,
				Transition: f.Transition,
			})
		}
		doc.Sections = append(doc.Sections, sec)
	}
	return doc
}

// OutlineGenerator writes a draft offline: the frame content becomes the
// voiceover, the frame type a shot direction.
type OutlineGenerator struct {
	Match domain.UnitMatch
}

func (g OutlineGenerator) Generate(ctx context.Context, sk domain.Skeleton, vc domain.VideoContext) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	doc := Outline(sk, g.Match)
	if len(doc.Beats()) == 0 {
		return Document{}, ErrEmptySkeleton
	}
	for si := range doc.Sections {
		for bi := range doc.Sections[si].Beats {
			bt := &doc.Sections[si].Beats[bi]
			f, _ := sk.Frame(bt.FrameID)
			if f.Type != "" {
				bt.Lines = append(bt.Lines, Line{Type: LineDirection, Label: "SHOT", Text: f.Type})
			}
			vo := strings.TrimSpace(f.Content)
			if vo == "" {
				vo = fmt.Sprintf("[%s]", f.Name)
			}
			bt.Lines = append(bt.Lines, Line{Type: LineVoiceover, Label: "VO", Text: vo})
			if f.IsTemplateExample {
				bt.Lines = append(bt.Lines, Line{Type: LineNote, Text: "example text from template, rewrite before recording"})
			}
		}
	}
	if vc.Topic != "" && len(doc.Sections) > 0 && len(doc.Sections[0].Beats) > 0 {
		first := &doc.Sections[0].Beats[0]
		first.Lines = append(first.Lines, Line{Type: LineNote, Text: "topic: " + vc.Topic})
	}
	return doc, nil
}

// AssignFrames fills missing beat frame ids from sk. Sections are matched to
// units by name; beats without an id take the frame at the same unit-local
// position. Beats that match nothing keep an empty id.
func AssignFrames(doc *Document, sk domain.Skeleton, m domain.UnitMatch) {
	doc.SkeletonID = sk.ID
	for si := range doc.Sections {
		sec := &doc.Sections[si]
		local := sk.UnitFrames(sec.Unit, m)
		for bi := range sec.Beats {
			bt := &sec.Beats[bi]
			if bt.FrameID != "" {
				if _, ok := sk.Frame(bt.FrameID); ok {
					continue
				}
				bt.FrameID = ""
			}
			if bi < len(local) {
				bt.FrameID = local[bi].ID
				if bt.Name == "" {
					bt.Name = local[bi].Name
				}
			}
		}
	}
}

// ApplyToStore stores each beat's text as the script of its frame and
// returns how many frames were updated.
func ApplyToStore(st *store.Store, doc Document) int {
	sk, ok := st.Skeleton(doc.SkeletonID)
	if !ok {
		return 0
	}
	n := 0
	for _, bt := range doc.Beats() {
		if _, ok := sk.Frame(bt.FrameID); !ok {
			continue
		}
		st.UpdateFrameScript(doc.SkeletonID, bt.FrameID, strings.TrimRight(bt.Text(), "\n"))
		n++
	}
	return n
}
