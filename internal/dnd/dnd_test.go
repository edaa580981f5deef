/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package dnd

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"vidskel/internal/domain"
	"vidskel/internal/geometry"
	"vidskel/internal/notify"
	"vidskel/internal/store"
)

func board() domain.Skeleton {
	return domain.Skeleton{
		ID:    "sk",
		Units: []string{"Hook", "Content", "Outro"},
		Frames: []domain.Frame{
			{ID: "f1", Name: "One", UnitType: "Hook", Tone: "calm"},
			{ID: "f2", Name: "Two", UnitType: "Hook"},
			{ID: "f3", Name: "Three", UnitType: "Hook"},
			{ID: "f4", Name: "Four", UnitType: "Content"},
		},
	}
}

func setup(t *testing.T, opts ...Option) (*Coordinator, *store.Store) {
	t.Helper()
	st := store.New()
	st.AddSkeleton(board())
	opts = append([]Option{WithSettleDelay(0)}, opts...)
	return NewCoordinator(st, opts...), st
}

func ids(t *testing.T, st *store.Store) []string {
	t.Helper()
	sk, ok := st.Skeleton("sk")
	if !ok {
		t.Fatalf("skeleton missing")
	}
	return sk.FrameIDs()
}

func pt(x, y float64) *geometry.Pt { return &geometry.Pt{X: x, Y: y} }

func TestTemplateDropAppendsFrame(t *testing.T) {
	rec := &notify.Recorder{}
	c, st := setup(t, WithNotifier(rec), WithIDGenerator(func() string { return "new-1" }))
	tpl := &domain.FrameTemplate{ID: "cta", Name: "Call to action", Type: "outro", Example: "Follow for part two"}
	out := c.DragEnd(Drop{
		SkeletonID: "sk",
		Payload:    Payload{Kind: PayloadTemplate, Template: tpl},
		Over:       &Target{ID: "unit-Outro", Kind: TargetUnit, UnitName: "Outro"},
	})
	if out.Path != PathTemplateAdd || !out.Applied || out.FrameID != "new-1" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	sk, _ := st.Skeleton("sk")
	last := sk.Frames[len(sk.Frames)-1]
	want := domain.Frame{ID: "new-1", Name: "Call to action", Type: "outro", Content: "Follow for part two", UnitType: "Outro", IsTemplateExample: true}
	if diff := cmp.Diff(want, last); diff != "" {
		t.Fatalf("new frame (-want +got):\n%s", diff)
	}
	if len(sk.Frames) != 5 {
		t.Fatalf("expected 5 frames, got %d", len(sk.Frames))
	}
	if n, ok := rec.Last(); !ok || n.Title != "Frame added" {
		t.Fatalf("expected frame added notice, got %+v", n)
	}
}

func TestTemplateDropUsesLookupAndFreshIDs(t *testing.T) {
	lib := map[string]domain.FrameTemplate{"q": {ID: "q", Name: "Question", Example: "Ever wondered?"}}
	lookup := func(id string) (domain.FrameTemplate, bool) {
		tpl, ok := lib[id]
		return tpl, ok
	}
	c, st := setup(t, WithTemplates(lookup))
	drop := Drop{SkeletonID: "sk", Payload: Payload{Kind: PayloadTemplate, TemplateID: "q"}, Over: &Target{Kind: TargetUnit, UnitName: "Hook"}}
	a := c.DragEnd(drop)
	b := c.DragEnd(drop)
	if !a.Applied || !b.Applied || a.FrameID == b.FrameID || a.FrameID == "" {
		t.Fatalf("expected two distinct new frames, got %+v %+v", a, b)
	}
	if got := len(ids(t, st)); got != 6 {
		t.Fatalf("expected 6 frames, got %d", got)
	}
	if out := c.DragEnd(Drop{SkeletonID: "sk", Payload: Payload{Kind: PayloadTemplate, TemplateID: "nope"}, Over: drop.Over}); out.Applied {
		t.Fatalf("unknown template must not apply")
	}
}

func TestFrameOnFrameUsesPointerHalf(t *testing.T) {
	rect2 := geometry.R(0, 40, 200, 40)
	rect3 := geometry.R(0, 80, 200, 40)
	cases := []struct {
		name    string
		dragged string
		over    Target
		pointer *geometry.Pt
		want    []string
	}{
		{"upper half of f1 lands before", "f2", Target{Kind: TargetFrame, FrameID: "f1", Rect: geometry.R(0, 0, 200, 40)}, pt(10, 5), []string{"f2", "f1", "f3", "f4"}},
		{"lower half of f2 lands after", "f1", Target{Kind: TargetFrame, FrameID: "f2", Rect: rect2}, pt(10, 75), []string{"f2", "f1", "f3", "f4"}},
		{"upper half of f3 lands before", "f1", Target{Kind: TargetFrame, FrameID: "f3", Rect: rect3}, pt(10, 85), []string{"f2", "f1", "f3", "f4"}},
		{"lower half of f3 lands after", "f1", Target{Kind: TargetFrame, FrameID: "f3", Rect: rect3}, pt(10, 119), []string{"f2", "f3", "f1", "f4"}},
		{"no geometry falls back to index move", "f1", Target{Kind: TargetFrame, FrameID: "f3"}, nil, []string{"f2", "f3", "f1", "f4"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, st := setup(t)
			over := tc.over
			out := c.DragEnd(Drop{SkeletonID: "sk", Payload: Payload{Kind: PayloadFrame, FrameID: tc.dragged}, Over: &over, Pointer: tc.pointer})
			if out.Path != PathFrameReorder || !out.Applied {
				t.Fatalf("unexpected outcome %+v", out)
			}
			if diff := cmp.Diff(tc.want, ids(t, st)); diff != "" {
				t.Fatalf("order (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFrameOnFrameSamePositionIsNotApplied(t *testing.T) {
	c, st := setup(t)
	var changes int
	st.Subscribe(func(store.Change) { changes++ })
	out := c.DragEnd(Drop{
		SkeletonID: "sk",
		Payload:    Payload{Kind: PayloadFrame, FrameID: "f2"},
		Over:       &Target{Kind: TargetFrame, FrameID: "f1", Rect: geometry.R(0, 0, 100, 40)},
		Pointer:    pt(0, 39),
	})
	if out.Applied || changes != 0 {
		t.Fatalf("dropping into the same slot should be a no-op: %+v, %d changes", out, changes)
	}
}

func TestFrameOnFrameInOtherUnitReassigns(t *testing.T) {
	c, st := setup(t)
	out := c.DragEnd(Drop{SkeletonID: "sk", Payload: Payload{Kind: PayloadFrame, FrameID: "f1"}, Over: &Target{Kind: TargetFrame, FrameID: "f4"}})
	if out.Path != PathFrameToUnit || !out.Applied {
		t.Fatalf("unexpected outcome %+v", out)
	}
	sk, _ := st.Skeleton("sk")
	if f, _ := sk.Frame("f1"); f.UnitType != "Content" {
		t.Fatalf("expected f1 in Content, got %q", f.UnitType)
	}
}

func TestFrameOnUnitKeepsEverythingButUnit(t *testing.T) {
	c, st := setup(t)
	before, _ := st.Skeleton("sk")
	out := c.DragEnd(Drop{SkeletonID: "sk", Payload: Payload{Kind: PayloadFrame, FrameID: "f1"}, Over: &Target{Kind: TargetUnit, UnitName: "Outro"}})
	if out.Path != PathFrameToUnit || !out.Applied {
		t.Fatalf("unexpected outcome %+v", out)
	}
	after, _ := st.Skeleton("sk")
	want := before.Clone()
	want.Frames[0].UnitType = "Outro"
	if diff := cmp.Diff(want, after); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	again := c.DragEnd(Drop{SkeletonID: "sk", Payload: Payload{Kind: PayloadFrame, FrameID: "f1"}, Over: &Target{Kind: TargetUnit, UnitName: "Outro"}})
	if again.Applied {
		t.Fatalf("dropping into the current unit should not apply")
	}
}

func TestUnitReorder(t *testing.T) {
	c, st := setup(t)
	out := c.DragEnd(Drop{SkeletonID: "sk", Payload: Payload{Kind: PayloadSkeletonUnit, UnitName: "Outro"}, Over: &Target{Kind: TargetSkeletonUnit, UnitName: "Hook"}})
	if out.Path != PathUnitReorder || !out.Applied {
		t.Fatalf("unexpected outcome %+v", out)
	}
	sk, _ := st.Skeleton("sk")
	if diff := cmp.Diff([]string{"Outro", "Hook", "Content"}, sk.Units); diff != "" {
		t.Fatalf("units (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"f1", "f2", "f3", "f4"}, sk.FrameIDs()); diff != "" {
		t.Fatalf("frames must not move:\n%s", diff)
	}
}

func TestToneAndFilterChips(t *testing.T) {
	c, st := setup(t)
	if out := c.DragEnd(Drop{SkeletonID: "sk", Payload: Payload{Kind: PayloadTone, Value: "urgent"}, Over: &Target{Kind: TargetTone, FrameID: "f2"}}); out.Path != PathTone || !out.Applied {
		t.Fatalf("tone outcome %+v", out)
	}
	if out := c.DragEnd(Drop{SkeletonID: "sk", Payload: Payload{Kind: PayloadFilter, Value: "vhs"}, Over: &Target{Kind: TargetFilter, FrameID: "f2"}}); out.Path != PathFilter || !out.Applied {
		t.Fatalf("filter outcome %+v", out)
	}
	sk, _ := st.Skeleton("sk")
	f, _ := sk.Frame("f2")
	if f.Tone != "urgent" || f.Filter != "vhs" {
		t.Fatalf("attributes not applied: %+v", f)
	}
}

func TestUnmatchedPairsDoNothing(t *testing.T) {
	c, st := setup(t)
	before, _ := st.Skeleton("sk")
	drops := []Drop{
		{SkeletonID: "sk", Payload: Payload{Kind: PayloadTone, Value: "x"}, Over: &Target{Kind: TargetFilter, FrameID: "f1"}},
		{SkeletonID: "sk", Payload: Payload{Kind: PayloadFilter, Value: "x"}, Over: &Target{Kind: TargetUnit, UnitName: "Hook"}},
		{SkeletonID: "sk", Payload: Payload{Kind: PayloadSkeletonUnit, UnitName: "Hook"}, Over: &Target{Kind: TargetUnit, UnitName: "Outro"}},
		{SkeletonID: "sk", Payload: Payload{Kind: PayloadFrame, FrameID: "f1"}, Over: &Target{Kind: TargetSkeletonUnit, UnitName: "Outro"}},
		{SkeletonID: "sk", Payload: Payload{Kind: PayloadFrame, FrameID: "f1"}, Over: &Target{Kind: TargetUnit, UnitName: "Missing"}},
		{SkeletonID: "sk", Payload: Payload{Kind: PayloadFrame, FrameID: "f1"}},
	}
	for i, d := range drops {
		if out := c.DragEnd(d); out.Path != PathNone || out.Applied {
			t.Errorf("drop %d: expected no path, got %+v", i, out)
		}
	}
	after, _ := st.Skeleton("sk")
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("unmatched drops mutated state:\n%s", diff)
	}
}

func TestDetectCollisionsPrefersUnits(t *testing.T) {
	targets := []Target{
		{ID: "frame-f1", Kind: TargetFrame, FrameID: "f1", Rect: geometry.R(0, 0, 100, 40)},
		{ID: "unit-Hook", Kind: TargetUnit, UnitName: "Hook", Rect: geometry.R(0, 0, 100, 400)},
		{ID: "unit-Content", Kind: TargetUnit, UnitName: "Content", Rect: geometry.R(110, 0, 100, 400)},
	}
	drag := geometry.R(20, 5, 100, 40)
	got, ok := Resolve(PayloadFrame, drag, targets)
	if !ok || got.ID != "unit-Hook" {
		t.Fatalf("expected unit-Hook, got %+v", got)
	}
	// tone chips use nearest centre
	got, _ = Resolve(PayloadTone, geometry.R(0, 0, 100, 40), targets)
	if got.ID != "frame-f1" {
		t.Fatalf("expected nearest centre frame-f1, got %+v", got)
	}
	// no unit overlap: nearest target of any kind
	got, _ = Resolve(PayloadTemplate, geometry.R(500, 500, 10, 10), targets)
	if got.ID != "unit-Content" {
		t.Fatalf("expected nearest fallback unit-Content, got %+v", got)
	}
	if _, ok := Resolve(PayloadFrame, drag, nil); ok {
		t.Fatalf("no targets must resolve to nothing")
	}
}

func TestDragStateClearsAfterSettle(t *testing.T) {
	st := store.New()
	st.AddSkeleton(board())
	c := NewCoordinator(st, WithSettleDelay(100*time.Millisecond))
	p := Payload{Kind: PayloadFrame, FrameID: "f1"}
	c.DragStart(p)
	over := &Target{Kind: TargetUnit, UnitName: "Content"}
	c.DragOver(over)
	if got, ok := c.Over(); !ok || got.UnitName != "Content" {
		t.Fatalf("over not recorded: %+v", got)
	}
	out := c.DragEnd(Drop{SkeletonID: "sk", Payload: p, Over: over})
	if !out.Applied {
		t.Fatalf("drop should commit before the settle clear: %+v", out)
	}
	if _, ok := c.Active(); !ok {
		t.Fatalf("drag state should survive until the settle delay passes")
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := c.Active(); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("drag state never cleared")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := c.Over(); ok {
		t.Fatalf("over should be cleared with active")
	}
}

func TestNewDragSurvivesPreviousSettle(t *testing.T) {
	st := store.New()
	st.AddSkeleton(board())
	c := NewCoordinator(st, WithSettleDelay(20*time.Millisecond))
	c.DragEnd(Drop{SkeletonID: "sk", Payload: Payload{Kind: PayloadFrame, FrameID: "f1"}})
	c.DragStart(Payload{Kind: PayloadFrame, FrameID: "f2"})
	time.Sleep(60 * time.Millisecond)
	if p, ok := c.Active(); !ok || p.FrameID != "f2" {
		t.Fatalf("settle timer of the previous drop cleared the new drag: %+v %v", p, ok)
	}
	c.DragCancel()
	if _, ok := c.Active(); ok {
		t.Fatalf("cancel should clear the drag")
	}
}
