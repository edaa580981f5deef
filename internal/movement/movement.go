/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package movement decides whether a frame may move in a direction and
// computes the resulting frame list. Up/down reorder a frame among the frames
// of its own unit; left/right retag it into the neighbouring unit.
//
// Unit-local order is never stored. It is the flat frame list filtered by
// UnitType, so every move here is expressed as a change to the flat list.
package movement

import (
	"errors"
	"fmt"
	"strings"

	"vidskel/internal/domain"
)

// Direction is a move intent.
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// Directions lists all directions in a stable order.
var Directions = []Direction{Up, Down, Left, Right}

// ParseDirection accepts the direction names case-insensitively.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Up, Down, Left, Right:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadDirection, s)
}

var (
	// ErrIllegalMove is wrapped by every error that means "no target in that direction".
	ErrIllegalMove = errors.New("illegal move")

	ErrFrameNotFound = errors.New("frame not found")
	ErrBadDirection  = errors.New("unknown direction")
	ErrUnitUnknown   = fmt.Errorf("%w: frame is not in any unit of this skeleton", ErrIllegalMove)
	ErrTopOfUnit     = fmt.Errorf("%w: already first in its unit", ErrIllegalMove)
	ErrBottomOfUnit  = fmt.Errorf("%w: already last in its unit", ErrIllegalMove)
	ErrFirstUnit     = fmt.Errorf("%w: already in the first unit", ErrIllegalMove)
	ErrLastUnit      = fmt.Errorf("%w: already in the last unit", ErrIllegalMove)
)

// Plan is a legal move, ready to be applied to the frame list it was
// computed from.
type Plan struct {
	FrameID   string
	Direction Direction
	// From and To are flat-list indexes. For left/right they are equal.
	From, To int
	// FromUnit and ToUnit are unit names. For up/down they are equal.
	FromUnit, ToUnit string
}

// PlanMove is the single legality check behind CanMove and Move.
func PlanMove(sk domain.Skeleton, frameID string, dir Direction, m domain.UnitMatch) (Plan, error) {
	i := sk.FrameIndex(frameID)
	if i < 0 {
		return Plan{}, ErrFrameNotFound
	}
	f := sk.Frames[i]
	p := Plan{FrameID: frameID, Direction: dir, From: i, To: i, FromUnit: f.UnitType, ToUnit: f.UnitType}

	switch dir {
	case Up, Down:
		// flat indexes of the unit-local order
		var local []int
		pos := -1
		for j := range sk.Frames {
			if m.Equal(sk.Frames[j].UnitType, f.UnitType) {
				if j == i {
					pos = len(local)
				}
				local = append(local, j)
			}
		}
		if dir == Up {
			if pos <= 0 {
				return Plan{}, ErrTopOfUnit
			}
			p.To = local[pos-1]
		} else {
			if pos < 0 || pos >= len(local)-1 {
				return Plan{}, ErrBottomOfUnit
			}
			p.To = local[pos+1]
		}
		return p, nil

	case Left, Right:
		ui := sk.UnitIndex(f.UnitType, m)
		if ui < 0 {
			return Plan{}, ErrUnitUnknown
		}
		if dir == Left {
			if ui == 0 {
				return Plan{}, ErrFirstUnit
			}
			p.ToUnit = sk.Units[ui-1]
		} else {
			if ui >= len(sk.Units)-1 {
				return Plan{}, ErrLastUnit
			}
			p.ToUnit = sk.Units[ui+1]
		}
		return p, nil
	}
	return Plan{}, fmt.Errorf("%w: %q", ErrBadDirection, dir)
}

// Apply returns a new frame list with the plan carried out. frames is not modified.
func (p Plan) Apply(frames []domain.Frame) []domain.Frame {
	switch p.Direction {
	case Left, Right:
		out := domain.CloneFrames(frames)
		out[p.From].UnitType = p.ToUnit
		return out
	default:
		return ArrayMove(frames, p.From, p.To)
	}
}

// CanMove reports whether frameID has a target in direction dir.
func CanMove(sk domain.Skeleton, frameID string, dir Direction, m domain.UnitMatch) bool {
	_, err := PlanMove(sk, frameID, dir, m)
	return err == nil
}

// Move plans and applies in one step.
func Move(sk domain.Skeleton, frameID string, dir Direction, m domain.UnitMatch) ([]domain.Frame, Plan, error) {
	p, err := PlanMove(sk, frameID, dir, m)
	if err != nil {
		return nil, Plan{}, err
	}
	return p.Apply(sk.Frames), p, nil
}

// ArrayMove removes the element at from and reinserts it at to, shifting the
// elements in between by one. Out-of-range indexes return an unchanged copy.
func ArrayMove[T any](s []T, from, to int) []T {
	out := append([]T(nil), s...)
	if from < 0 || from >= len(s) || to < 0 || to >= len(s) || from == to {
		return out
	}
	v := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out[:to], append([]T{v}, out[to:]...)...)
	return out
}
