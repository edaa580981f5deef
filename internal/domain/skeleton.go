/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

import (
	"fmt"
	"strings"
)

// UnitMatch decides how a frame's UnitType is compared with unit names.
// Every component that buckets frames into units uses the same policy.
type UnitMatch string

const (
	// UnitMatchExact compares byte for byte. Default.
	UnitMatchExact UnitMatch = "exact"
	// UnitMatchFold compares with Unicode case folding.
	UnitMatchFold UnitMatch = "fold"
)

// ParseUnitMatch maps config values; empty means exact.
func ParseUnitMatch(s string) (UnitMatch, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exact", "strict":
		return UnitMatchExact, nil
	case "fold", "insensitive", "case-insensitive":
		return UnitMatchFold, nil
	}
	return UnitMatchExact, fmt.Errorf("unknown unit match policy %q", s)
}

// Equal compares two unit names under the policy.
func (m UnitMatch) Equal(a, b string) bool {
	if m == UnitMatchFold {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// UnitIndex returns the position of name in s.Units, or -1.
// With duplicate unit names the first occurrence wins.
func (s Skeleton) UnitIndex(name string, m UnitMatch) int {
	for i, u := range s.Units {
		if m.Equal(u, name) {
			return i
		}
	}
	return -1
}

// FrameIndex returns the flat-list index of the frame with id, or -1.
func (s Skeleton) FrameIndex(id string) int {
	for i := range s.Frames {
		if s.Frames[i].ID == id {
			return i
		}
	}
	return -1
}

// Frame returns the frame with id.
func (s Skeleton) Frame(id string) (Frame, bool) {
	if i := s.FrameIndex(id); i >= 0 {
		return s.Frames[i], true
	}
	return Frame{}, false
}

// UnitFrames returns the unit-local order for unit: the frames whose UnitType
// matches, in flat-list order.
func (s Skeleton) UnitFrames(unit string, m UnitMatch) []Frame {
	var out []Frame
	for _, f := range s.Frames {
		if m.Equal(f.UnitType, unit) {
			out = append(out, f)
		}
	}
	return out
}

// Orphans returns frames whose UnitType names no unit of s. They render in no column.
func (s Skeleton) Orphans(m UnitMatch) []Frame {
	var out []Frame
	for _, f := range s.Frames {
		if s.UnitIndex(f.UnitType, m) < 0 {
			out = append(out, f)
		}
	}
	return out
}

// FrameIDs lists frame ids in flat order.
func (s Skeleton) FrameIDs() []string {
	ids := make([]string, len(s.Frames))
	for i, f := range s.Frames {
		ids[i] = f.ID
	}
	return ids
}

// Clone returns a deep copy; slices are never shared with the original.
func (s Skeleton) Clone() Skeleton {
	c := s
	c.Units = append([]string(nil), s.Units...)
	c.Frames = CloneFrames(s.Frames)
	return c
}

// CloneFrames copies a frame list. A nil input stays nil.
func CloneFrames(frames []Frame) []Frame {
	if frames == nil {
		return nil
	}
	return append([]Frame(nil), frames...)
}
