/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package keyboard

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"vidskel/internal/domain"
	"vidskel/internal/movement"
	"vidskel/internal/notify"
	"vidskel/internal/store"
)

func fixture(t *testing.T, opts ...Option) (*Binding, *store.Store, *notify.Recorder) {
	t.Helper()
	st := store.New()
	st.AddSkeleton(domain.Skeleton{
		ID:    "sk",
		Units: []string{"Hook", "Content", "Outro"},
		Frames: []domain.Frame{
			{ID: "f1", UnitType: "Hook"},
			{ID: "f2", UnitType: "Hook"},
			{ID: "f3", UnitType: "Content"},
		},
	})
	st.SetActiveSkeleton("sk")
	rec := &notify.Recorder{}
	b := New(movement.NewEngine(st), append([]Option{WithNotifier(rec)}, opts...)...)
	t.Cleanup(b.Close)
	return b, st, rec
}

func TestMoveWithoutSelectionNotifies(t *testing.T) {
	b, st, rec := fixture(t)
	before, _ := st.Skeleton("sk")
	resp := b.HandleKey("Alt+ArrowDown")
	if !resp.Handled || resp.Move == nil || resp.Move.Success {
		t.Fatalf("unexpected response %+v", resp)
	}
	n, ok := rec.Last()
	if !ok || n.Title != "No frame selected" {
		t.Fatalf("expected corrective notice, got %+v", n)
	}
	after, _ := st.Skeleton("sk")
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("state changed:\n%s", diff)
	}
}

func TestKeyMovesMatchEngine(t *testing.T) {
	b, st, _ := fixture(t)
	if !b.Select("sk", "f1") {
		t.Fatalf("select failed")
	}
	if resp := b.HandleKey("alt+down"); resp.Move == nil || !resp.Move.Success {
		t.Fatalf("alt+down should move f1: %+v", resp)
	}
	sk, _ := st.Skeleton("sk")
	if diff := cmp.Diff([]string{"f2", "f1", "f3"}, sk.FrameIDs()); diff != "" {
		t.Fatalf("order:\n%s", diff)
	}
	if resp := b.HandleKey("alt+left"); resp.Move.Success {
		t.Fatalf("f1 is in the first unit, left must fail")
	}
	if resp := b.HandleKey("alt+right"); !resp.Move.Success {
		t.Fatalf("right should succeed")
	}
	sk, _ = st.Skeleton("sk")
	if f, _ := sk.Frame("f1"); f.UnitType != "Content" {
		t.Fatalf("expected Content, got %q", f.UnitType)
	}
}

func TestEscapeAndDeleteClearSelection(t *testing.T) {
	b, st, _ := fixture(t)
	b.Select("sk", "f2")
	if resp := b.HandleKey("Esc"); !resp.Handled {
		t.Fatalf("escape should clear an existing selection")
	}
	if _, _, ok := b.Selection(); ok {
		t.Fatalf("selection not cleared by escape")
	}

	b.Select("sk", "f2")
	st.DeleteFrame("sk", "f1")
	if _, id, ok := b.Selection(); !ok || id != "f2" {
		t.Fatalf("deleting another frame must keep the selection")
	}
	st.DeleteFrame("sk", "f2")
	if _, _, ok := b.Selection(); ok {
		t.Fatalf("deleting the selected frame must clear the selection")
	}

	b.Select("sk", "f3")
	st.UpdateSkeletonUnits("sk", []string{"Hook"})
	if _, _, ok := b.Selection(); !ok {
		t.Fatalf("orphaned frames still exist; selection stays with keep policy")
	}
	st.DeleteSkeleton("sk")
	if _, _, ok := b.Selection(); ok {
		t.Fatalf("deleting the skeleton must clear the selection")
	}
}

func TestNavigationKeys(t *testing.T) {
	b, _, _ := fixture(t)
	if resp := b.HandleKey("alt+2"); !resp.Handled {
		t.Fatalf("focus unit 2 should select f3")
	}
	if _, id, _ := b.Selection(); id != "f3" {
		t.Fatalf("expected f3, got %q", id)
	}
	if resp := b.HandleKey("alt+3"); resp.Handled {
		t.Fatalf("empty unit cannot be focused")
	}
	b.HandleKey("alt+1")
	if resp := b.HandleKey("j"); !resp.Handled {
		t.Fatalf("next should move to f2")
	}
	if _, id, _ := b.Selection(); id != "f2" {
		t.Fatalf("expected f2, got %q", id)
	}
	if resp := b.HandleKey("j"); resp.Handled {
		t.Fatalf("next at the end of the unit does nothing")
	}
	b.HandleKey("k")
	if _, id, _ := b.Selection(); id != "f1" {
		t.Fatalf("expected f1, got %q", id)
	}
	if resp := b.HandleKey("ctrl+z"); resp.Handled || resp.Command.Action != "" {
		t.Fatalf("unbound key should be ignored: %+v", resp)
	}
}

func TestCustomKeymap(t *testing.T) {
	km, err := DefaultKeymap().Merge(map[string]string{"Shift+Up": "move-up", "alt+up": "", "ctrl+4": "focus-unit-4"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := km["alt+up"]; ok {
		t.Fatalf("empty override should unbind")
	}
	if km["shift+up"].Action != MoveUp || km["ctrl+4"] != (Command{Action: FocusUnit, Arg: 4}) {
		t.Fatalf("overrides not applied: %+v", km)
	}
	if _, err := DefaultKeymap().Merge(map[string]string{"x": "teleport"}); err == nil {
		t.Fatalf("expected error for unknown action")
	}

	b, st, _ := fixture(t, WithKeymap(km))
	b.Select("sk", "f2")
	b.HandleKey("shift+arrowup")
	sk, _ := st.Skeleton("sk")
	if diff := cmp.Diff([]string{"f2", "f1", "f3"}, sk.FrameIDs()); diff != "" {
		t.Fatalf("custom binding did not move:\n%s", diff)
	}
}

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"Shift+Alt+ArrowUp": "alt+shift+up",
		" ESC ":             "escape",
		"Option+1":          "alt+1",
		"ctrl+":             "ctrl",
	}
	for in, want := range cases {
		if got := NormalizeKey(in); got != want {
			t.Errorf("NormalizeKey(%q)=%q want %q", in, got, want)
		}
	}
}
