/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"testing"
	"time"
)

func snap(key, blob string, ts time.Time) Snapshot {
	return Snapshot{Key: key, Blob: []byte(blob), TS: ts}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	h := NewHistory(Config{MaxBytes: 1 << 20, MaxPerKey: 10})
	t0 := time.Now()
	h.Record(snap("sk", "a", t0))
	h.Record(snap("sk", "b", t0.Add(time.Second)))

	prev, ok := h.Undo("sk", snap("", "c", t0.Add(2*time.Second)))
	if !ok || string(prev.Blob) != "b" {
		t.Fatalf("undo expected 'b', got ok=%v blob=%q", ok, prev.Blob)
	}
	if !h.CanRedo("sk") {
		t.Fatalf("redo should be available after undo")
	}
	next, ok := h.Redo("sk", snap("", "b", t0.Add(3*time.Second)))
	if !ok || string(next.Blob) != "c" {
		t.Fatalf("redo expected 'c', got ok=%v blob=%q", ok, next.Blob)
	}
	prev, ok = h.Undo("sk", snap("", "c", t0.Add(4*time.Second)))
	if !ok || string(prev.Blob) != "b" {
		t.Fatalf("second undo expected 'b', got ok=%v blob=%q", ok, prev.Blob)
	}
}

func TestRecordInvalidatesRedo(t *testing.T) {
	h := NewHistory(Config{})
	t0 := time.Now()
	h.Record(snap("sk", "a", t0))
	h.Undo("sk", snap("", "b", t0))
	h.Record(snap("sk", "x", t0.Add(time.Second)))
	if h.CanRedo("sk") {
		t.Fatalf("new change must clear redo")
	}
}

func TestCoalesceKeepsOlderState(t *testing.T) {
	h := NewHistory(Config{MinInterval: 50 * time.Millisecond})
	t0 := time.Now()
	h.Record(snap("sk", "1", t0))
	h.Record(snap("sk", "2", t0.Add(10*time.Millisecond)))
	if _, _, n := h.Stats(); n != 1 {
		t.Fatalf("expected coalesced to 1 entry, got %d", n)
	}
	prev, ok := h.Undo("sk", snap("", "3", t0.Add(time.Second)))
	if !ok || string(prev.Blob) != "1" {
		t.Fatalf("expected oldest state '1', got ok=%v blob=%q", ok, prev.Blob)
	}
}

func TestRedoneStateIsNotCoalesced(t *testing.T) {
	h := NewHistory(Config{MinInterval: 500 * time.Millisecond})
	t0 := time.Now()
	h.Record(snap("sk", "empty", t0))
	h.Undo("sk", snap("", "one", t0.Add(time.Second)))
	h.Redo("sk", snap("", "empty", t0.Add(time.Second)))
	h.Record(snap("sk", "one", t0.Add(time.Second+100*time.Millisecond)))
	if _, _, n := h.Stats(); n != 2 {
		t.Fatalf("expected 2 entries after redo and edit, got %d", n)
	}
	prev, ok := h.Undo("sk", snap("", "two", t0.Add(2*time.Second)))
	if !ok || string(prev.Blob) != "one" {
		t.Fatalf("undo expected 'one', got ok=%v blob=%q", ok, prev.Blob)
	}
}

func TestZeroIntervalNeverCoalesces(t *testing.T) {
	h := NewHistory(Config{})
	t0 := time.Now()
	h.Record(snap("sk", "1", t0))
	h.Record(snap("sk", "2", t0))
	if _, _, n := h.Stats(); n != 2 {
		t.Fatalf("expected 2 entries, got %d", n)
	}
}

func TestPerKeyCap(t *testing.T) {
	h := NewHistory(Config{MaxPerKey: 2})
	for i := 0; i < 10; i++ {
		h.Record(snap("sk", "xxxxx", time.Now().Add(time.Duration(i)*time.Millisecond)))
	}
	if _, _, n := h.Stats(); n != 2 {
		t.Fatalf("expected per-key cap of 2, got %d", n)
	}
}

func TestGlobalPruneAcrossKeys(t *testing.T) {
	h := NewHistory(Config{MaxBytes: 8})
	t0 := time.Now()
	h.Record(snap("old", "xxxx", t0))
	h.Record(snap("new", "yyyy", t0.Add(time.Second)))
	h.Record(snap("new", "zzzz", t0.Add(2*time.Second)))

	if h.CanUndo("old") {
		t.Fatalf("expected key 'old' to have been pruned")
	}
	if !h.CanUndo("new") {
		t.Fatalf("expected key 'new' to keep history")
	}
}

func TestClearAndStats(t *testing.T) {
	h := NewHistory(Config{})
	h.Record(snap("sk", "abcdef", time.Now()))
	h.Undo("sk", snap("", "g", time.Now()))
	h.Clear("sk")
	if tb, keys, n := h.Stats(); tb != 0 || keys != 0 || n != 0 {
		t.Fatalf("expected zero stats after clear, got tb=%d keys=%d n=%d", tb, keys, n)
	}
}
