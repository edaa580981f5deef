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
	"sort"

	"vidskel/internal/geometry"
)

// DetectCollisions ranks the targets a dragged rectangle is over, best first.
//
// Frame and template drags prefer unit containers: among the targets the drag
// rectangle intersects, unit containers win, ordered by overlap. When none of
// them is a unit container the nearest target by centre distance is used.
// Every other payload kind uses nearest centre directly.
func DetectCollisions(kind PayloadKind, drag geometry.Rect, targets []Target) []Target {
	if kind == PayloadFrame || kind == PayloadTemplate {
		var units []scored
		for _, t := range targets {
			if t.Kind != TargetUnit || t.Rect.Empty() {
				continue
			}
			if r := drag.IntersectionRatio(t.Rect); r > 0 {
				units = append(units, scored{t, r})
			}
		}
		if len(units) > 0 {
			sort.SliceStable(units, func(i, j int) bool { return units[i].score > units[j].score })
			return unwrap(units)
		}
	}
	return closestCenter(drag, targets)
}

// Resolve returns the best target, if any.
func Resolve(kind PayloadKind, drag geometry.Rect, targets []Target) (Target, bool) {
	hits := DetectCollisions(kind, drag, targets)
	if len(hits) == 0 {
		return Target{}, false
	}
	return hits[0], true
}

type scored struct {
	t     Target
	score float64
}

func closestCenter(drag geometry.Rect, targets []Target) []Target {
	c := drag.Center()
	out := make([]scored, 0, len(targets))
	for _, t := range targets {
		if t.Rect.Empty() {
			continue
		}
		out = append(out, scored{t, geometry.Dist(c, t.Rect.Center())})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score < out[j].score })
	return unwrap(out)
}

func unwrap(s []scored) []Target {
	out := make([]Target, len(s))
	for i := range s {
		out[i] = s[i].t
	}
	return out
}
