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
	"sync"
	"time"
)

// Snapshot is an opaque state blob captured for one key (a skeleton id).
// Size is accounted as len(Blob).
type Snapshot struct {
	Key  string
	Blob []byte
	TS   time.Time

	// sealed entries never absorb a later Record
	sealed bool
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap across all keys; the oldest entries are pruned first.
	MaxBytes int
	// MaxPerKey limits undo depth per key (0 means unlimited).
	MaxPerKey int
	// MinInterval merges records for the same key that arrive closer together
	// than the interval; the older state is kept. Zero disables merging.
	MinInterval time.Duration
}

// History keeps per-key undo/redo stacks of prior states.
// Record stores the state before a change; Undo hands that state back and
// parks the current one on the redo stack. It is safe for concurrent use.
type History struct {
	cfg        Config
	mu         sync.Mutex
	undo       map[string][]Snapshot
	redo       map[string][]Snapshot
	totalBytes int
}

func NewHistory(cfg Config) *History {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 * 1024 * 1024
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	return &History{cfg: cfg, undo: make(map[string][]Snapshot), redo: make(map[string][]Snapshot)}
}

// Record pushes the pre-change state for s.Key and invalidates its redo stack.
func (h *History) Record(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropRedoLocked(s.Key)
	stack := h.undo[s.Key]
	if n := len(stack); n > 0 && h.cfg.MinInterval > 0 && !stack[n-1].sealed && s.TS.Sub(stack[n-1].TS) < h.cfg.MinInterval {
		// keep the older state so one undo reverts the whole burst
		stack[n-1].TS = s.TS
		return
	}
	h.undo[s.Key] = append(stack, s)
	h.totalBytes += len(s.Blob)
	h.enforceCapsLocked(s.Key)
}

// Undo returns the most recent prior state for key and stores current for Redo.
func (h *History) Undo(key string, current Snapshot) (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stack := h.undo[key]
	if len(stack) == 0 {
		return Snapshot{}, false
	}
	prev := stack[len(stack)-1]
	stack = stack[:len(stack)-1]
	if n := len(stack); n > 0 {
		stack[n-1].sealed = true
	}
	h.undo[key] = stack
	h.totalBytes -= len(prev.Blob)
	current.Key = key
	h.redo[key] = append(h.redo[key], current)
	h.totalBytes += len(current.Blob)
	h.enforceCapsLocked(key)
	return prev, true
}

// Redo re-applies the last undone state for key and stores current for Undo.
func (h *History) Redo(key string, current Snapshot) (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.redo[key]
	if len(r) == 0 {
		return Snapshot{}, false
	}
	next := r[len(r)-1]
	h.redo[key] = r[:len(r)-1]
	h.totalBytes -= len(next.Blob)
	current.Key = key
	current.sealed = true
	h.undo[key] = append(h.undo[key], current)
	h.totalBytes += len(current.Blob)
	h.enforceCapsLocked(key)
	return next, true
}

// CanUndo reports whether key has recorded states.
func (h *History) CanUndo(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo[key]) > 0
}

// CanRedo reports whether key has undone states.
func (h *History) CanRedo(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo[key]) > 0
}

// Clear forgets all history for key.
func (h *History) Clear(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.undo[key] {
		h.totalBytes -= len(s.Blob)
	}
	h.dropRedoLocked(key)
	delete(h.undo, key)
	if h.totalBytes < 0 {
		h.totalBytes = 0
	}
}

// Stats returns byte usage, keys with undo entries, and total undo entries.
func (h *History) Stats() (totalBytes int, keys int, entries int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, v := range h.undo {
		if len(v) > 0 {
			keys++
		}
		entries += len(v)
	}
	return h.totalBytes, keys, entries
}

func (h *History) dropRedoLocked(key string) {
	for _, s := range h.redo[key] {
		h.totalBytes -= len(s.Blob)
	}
	delete(h.redo, key)
}

func (h *History) enforceCapsLocked(key string) {
	if h.cfg.MaxPerKey > 0 {
		stack := h.undo[key]
		if extra := len(stack) - h.cfg.MaxPerKey; extra > 0 {
			for i := 0; i < extra; i++ {
				h.totalBytes -= len(stack[i].Blob)
			}
			h.undo[key] = append([]Snapshot(nil), stack[extra:]...)
		}
	}
	// global cap: prune the oldest undo entry across keys
	for h.totalBytes > h.cfg.MaxBytes {
		oldestKey := ""
		var oldestTS time.Time
		found := false
		for k, stack := range h.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldestKey, oldestTS, found = k, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := h.undo[oldestKey]
		h.totalBytes -= len(stack[0].Blob)
		if len(stack) == 1 {
			delete(h.undo, oldestKey)
		} else {
			h.undo[oldestKey] = stack[1:]
		}
	}
}
