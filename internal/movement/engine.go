/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package movement

import (
	"errors"
	"fmt"
	"log/slog"

	"vidskel/internal/domain"
	applog "vidskel/internal/log"
	"vidskel/internal/notify"
	"vidskel/internal/store"
)

// Revealer scrolls a frame into view after it moved.
type Revealer interface {
	Reveal(skeletonID, frameID string)
}

// Tracker receives usage events. telemetry.Client satisfies it.
type Tracker interface {
	Event(name string, props map[string]any)
}

// Result is what MoveFrame reports to its caller.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Engine commits moves against a store.
type Engine struct {
	store    *store.Store
	notifier notify.Notifier
	revealer Revealer
	tracker  Tracker
	log      *slog.Logger
}

type EngineOption func(*Engine)

func WithNotifier(n notify.Notifier) EngineOption { return func(e *Engine) { e.notifier = n } }
func WithRevealer(r Revealer) EngineOption        { return func(e *Engine) { e.revealer = r } }
func WithTracker(t Tracker) EngineOption          { return func(e *Engine) { e.tracker = t } }

func NewEngine(st *store.Store, opts ...EngineOption) *Engine {
	e := &Engine{store: st, notifier: notify.Discard, log: applog.WithComponent("movement")}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Store returns the store the engine writes to.
func (e *Engine) Store() *store.Store { return e.store }

// CanMove mirrors MoveFrame's legality without mutating anything.
func (e *Engine) CanMove(skeletonID, frameID string, dir Direction) bool {
	sk, ok := e.store.Skeleton(skeletonID)
	if !ok {
		return false
	}
	return CanMove(sk, frameID, dir, e.store.UnitMatch())
}

// Available returns CanMove for every direction, for enabling controls.
func (e *Engine) Available(skeletonID, frameID string) map[Direction]bool {
	out := make(map[Direction]bool, len(Directions))
	sk, ok := e.store.Skeleton(skeletonID)
	for _, d := range Directions {
		out[d] = ok && CanMove(sk, frameID, d, e.store.UnitMatch())
	}
	return out
}

// MoveFrame moves one frame. Planning and commit happen inside one store
// transition; an illegal move leaves the store untouched and reports why.
func (e *Engine) MoveFrame(skeletonID, frameID string, dir Direction) Result {
	var (
		plan    Plan
		planErr error
		name    string
	)
	found := false
	committed := e.store.UpdateFrameOrderFunc(skeletonID, func(sk domain.Skeleton) ([]domain.Frame, bool) {
		found = true
		if f, ok := sk.Frame(frameID); ok {
			name = f.Name
		}
		next, p, err := Move(sk, frameID, dir, e.store.UnitMatch())
		if err != nil {
			planErr = err
			return nil, false
		}
		plan = p
		return next, true
	})
	if !found {
		planErr = errors.New("skeleton not found")
	}
	if !committed {
		res := Result{Success: false, Message: failureMessage(planErr, dir)}
		e.notifier.Notify(notify.Notice{Level: notify.Warning, Title: "Can't move frame", Message: res.Message})
		e.log.Debug("move rejected",
			slog.String("skeleton", skeletonID), slog.String("frame", frameID),
			slog.String("dir", string(dir)), slog.Any("err", planErr))
		return res
	}

	msg := successMessage(name, plan)
	e.notifier.Notify(notify.Notice{Level: notify.Success, Title: "Frame moved", Message: msg})
	if e.revealer != nil {
		e.revealer.Reveal(skeletonID, frameID)
	}
	if e.tracker != nil {
		e.tracker.Event("frame_moved", map[string]any{"direction": string(dir), "cross_unit": plan.FromUnit != plan.ToUnit})
	}
	e.log.Info("frame moved",
		slog.String("skeleton", skeletonID), slog.String("frame", frameID),
		slog.String("dir", string(dir)), slog.Int("from", plan.From), slog.Int("to", plan.To),
		slog.String("unit", plan.ToUnit))
	return Result{Success: true, Message: msg}
}

func successMessage(name string, p Plan) string {
	if name == "" {
		name = p.FrameID
	}
	switch p.Direction {
	case Left, Right:
		return fmt.Sprintf("Moved %q to %s", name, p.ToUnit)
	default:
		return fmt.Sprintf("Moved %q %s within %s", name, p.Direction, p.ToUnit)
	}
}

func failureMessage(err error, dir Direction) string {
	switch {
	case errors.Is(err, ErrTopOfUnit):
		return "Frame is already at the top of its unit"
	case errors.Is(err, ErrBottomOfUnit):
		return "Frame is already at the bottom of its unit"
	case errors.Is(err, ErrFirstUnit):
		return "Frame is already in the first unit"
	case errors.Is(err, ErrLastUnit):
		return "Frame is already in the last unit"
	case errors.Is(err, ErrUnitUnknown):
		return "Frame does not belong to any unit of this skeleton"
	case errors.Is(err, ErrFrameNotFound):
		return "Frame not found"
	case errors.Is(err, ErrBadDirection):
		return fmt.Sprintf("Unknown direction %q", dir)
	case err != nil:
		return err.Error()
	}
	return "Move not possible"
}
