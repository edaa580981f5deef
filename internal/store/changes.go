/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package store

import (
	"fmt"
	"strings"

	"vidskel/internal/domain"
)

// ChangeKind names what a committed mutation touched.
type ChangeKind string

const (
	ChangeSkeletonAdded   ChangeKind = "skeleton-added"
	ChangeSkeletonDeleted ChangeKind = "skeleton-deleted"
	ChangeFramesReplaced  ChangeKind = "frames-replaced"
	ChangeFrameUpdated    ChangeKind = "frame-updated"
	ChangeFrameDeleted    ChangeKind = "frame-deleted"
	ChangeUnitsReplaced   ChangeKind = "units-replaced"
	ChangeActiveChanged   ChangeKind = "active-changed"
	ChangeContextChanged  ChangeKind = "context-changed"
	ChangeHistoryRestored ChangeKind = "history-restored"
	ChangeLoaded          ChangeKind = "loaded"
)

// Change is delivered to subscribers after the store lock is released.
// Field is set for ChangeFrameUpdated; EditFrame lists several, comma separated.
type Change struct {
	Kind       ChangeKind
	SkeletonID string
	FrameID    string
	Field      string
}

// Subscribe registers fn for every committed change and returns a cancel func.
// fn runs on the mutating goroutine and may read the store.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// OrphanPolicy decides what happens to frames whose UnitType no longer names a unit
// after the unit list is replaced.
type OrphanPolicy string

const (
	// OrphanKeep leaves such frames in the flat list; they render in no unit.
	OrphanKeep OrphanPolicy = "keep"
	// OrphanReassign moves them into the first remaining unit, keeping flat position.
	OrphanReassign OrphanPolicy = "reassign"
	// OrphanDrop removes them.
	OrphanDrop OrphanPolicy = "drop"
)

// ParseOrphanPolicy maps config values; empty means keep.
func ParseOrphanPolicy(s string) (OrphanPolicy, error) {
	switch p := OrphanPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return OrphanKeep, nil
	case OrphanKeep, OrphanReassign, OrphanDrop:
		return p, nil
	}
	return OrphanKeep, fmt.Errorf("unknown orphan policy %q", s)
}

// apply returns the frame list of sk after the policy ran. With no units left,
// reassign degrades to keep.
func (p OrphanPolicy) apply(sk domain.Skeleton, m domain.UnitMatch) []domain.Frame {
	switch p {
	case OrphanReassign:
		if len(sk.Units) == 0 {
			return sk.Frames
		}
		out := domain.CloneFrames(sk.Frames)
		for i := range out {
			if sk.UnitIndex(out[i].UnitType, m) < 0 {
				out[i].UnitType = sk.Units[0]
			}
		}
		return out
	case OrphanDrop:
		out := make([]domain.Frame, 0, len(sk.Frames))
		for _, f := range sk.Frames {
			if sk.UnitIndex(f.UnitType, m) >= 0 {
				out = append(out, f)
			}
		}
		return out
	default:
		return sk.Frames
	}
}
