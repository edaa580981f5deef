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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"vidskel/internal/domain"
)

func TestParseSectionsBeatsAndLines(t *testing.T) {
	input := `# Launch teaser

## Hook
### Provocative question [f1]
@tone:playful @transition:smooth
VO: What if your phone could do this?
  And do it twice as fast. @cta
ON SCREEN: big red arrow
; check the licence for the music

## Outro
### Follow [f3]
Follow for part two.`

	doc, errs := Parse(input)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if doc.Title != "Launch teaser" || len(doc.Sections) != 2 {
		t.Fatalf("unexpected document: %+v", doc)
	}
	hook := doc.Sections[0]
	if hook.Unit != "Hook" || len(hook.Beats) != 1 {
		t.Fatalf("unexpected hook section: %+v", hook)
	}
	b := hook.Beats[0]
	if b.FrameID != "f1" || b.Name != "Provocative question" || b.Tone != "playful" || b.Transition != domain.TransitionSmooth {
		t.Fatalf("unexpected beat header: %+v", b)
	}
	if len(b.Lines) != 3 {
		t.Fatalf("expected 3 lines, got %+v", b.Lines)
	}
	vo := b.Lines[0]
	if vo.Type != LineVoiceover || vo.Label != "VO" || vo.Text != "What if your phone could do this?\nAnd do it twice as fast. @cta" {
		t.Fatalf("unexpected voiceover: %+v", vo)
	}
	if diff := cmp.Diff([]string{"cta"}, vo.Tags); diff != "" {
		t.Fatalf("tags:\n%s", diff)
	}
	if b.Lines[1].Type != LineOnScreen || b.Lines[2].Type != LineNote {
		t.Fatalf("unexpected line kinds: %+v", b.Lines)
	}
	plain := doc.Sections[1].Beats[0].Lines[0]
	if plain.Type != LineVoiceover || plain.Label != "" || plain.Text != "Follow for part two." {
		t.Fatalf("plain text should be voiceover: %+v", plain)
	}
}

func TestParseIsLenientWithModelOutput(t *testing.T) {
	doc, errs := Parse("Just some narration.\n@transition:teleport\n**## Hook**\nVO: hi")
	if len(errs) != 1 || errs[0].Line != 2 {
		t.Fatalf("expected one error on line 2, got %+v", errs)
	}
	if len(doc.Sections) != 2 || doc.Sections[0].Unit != "" || doc.Sections[1].Unit != "Hook" {
		t.Fatalf("unexpected sections: %+v", doc.Sections)
	}
	if got := doc.Sections[0].Beats[0].Lines[0].Text; got != "Just some narration." {
		t.Fatalf("implicit beat text = %q", got)
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	doc := Document{
		Title: "Tutorial",
		Sections: []Section{
			{Unit: "Hook", Beats: []Beat{{
				FrameID: "a", Name: "Story tease", Tone: "calm", Filter: "film-grain", Transition: domain.TransitionPatternInterrupt,
				Lines: []Line{
					{Type: LineVoiceover, Label: "VO", Text: "Three weeks ago\nI almost quit."},
					{Type: LineDirection, Label: "SHOT", Text: "close-up"},
					{Type: LineNote, Text: "keep under 3s"},
				},
			}}},
			{Unit: "Outro", Beats: []Beat{{FrameID: "b", Name: "Follow", Lines: []Line{{Type: LineOnScreen, Label: "ON SCREEN", Text: "@handle"}}}}},
		},
	}
	got, errs := Parse(doc.Render())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	opts := cmp.Options{
		cmpopts.IgnoreFields(Beat{}, "LineNo"),
		cmpopts.IgnoreFields(Line{}, "LineNo", "Tags"),
	}
	if diff := cmp.Diff(doc, got, opts); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}

func TestStripFence(t *testing.T) {
	if got := stripFence("```markdown\n# T\n```"); got != "# T" {
		t.Fatalf("stripFence = %q", got)
	}
	if got := stripFence("  # T  "); got != "# T" {
		t.Fatalf("stripFence = %q", got)
	}
	if got := stripFence("```\n# T\n\nVO: hi\n\n```\n"); got != "# T\n\nVO: hi" {
		t.Fatalf("stripFence = %q", got)
	}
	if got := stripFence("```md\n```"); got != "" {
		t.Fatalf("stripFence = %q", got)
	}
}
