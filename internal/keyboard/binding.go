/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package keyboard binds key chords to frame moves for one selected frame.
// Moves go through movement.Engine, so keyboard and pointer share the same
// legality rules.
package keyboard

import (
	"log/slog"
	"sync"

	applog "vidskel/internal/log"
	"vidskel/internal/movement"
	"vidskel/internal/notify"
	"vidskel/internal/store"
)

// Response describes what a key press did.
type Response struct {
	Command Command
	// Handled is false for unbound keys and for commands that had nothing to act on.
	Handled bool
	// Move is set for move commands.
	Move *movement.Result
}

// Binding holds the selection and dispatches key presses.
type Binding struct {
	engine   *movement.Engine
	store    *store.Store
	notifier notify.Notifier
	keymap   Keymap
	log      *slog.Logger
	cancel   func()

	mu         sync.Mutex
	skeletonID string
	frameID    string
}

type Option func(*Binding)

func WithNotifier(n notify.Notifier) Option { return func(b *Binding) { b.notifier = n } }
func WithKeymap(km Keymap) Option           { return func(b *Binding) { b.keymap = km } }

// New creates a binding over engine's store. Call Close to stop watching the store.
func New(engine *movement.Engine, opts ...Option) *Binding {
	b := &Binding{
		engine:   engine,
		store:    engine.Store(),
		notifier: notify.Discard,
		keymap:   DefaultKeymap(),
		log:      applog.WithComponent("keyboard"),
	}
	for _, o := range opts {
		o(b)
	}
	b.cancel = b.store.Subscribe(b.onChange)
	return b
}

// Close unsubscribes from the store.
func (b *Binding) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}

// Select makes frameID the selected frame. It reports false, leaving the
// selection unchanged, when the frame does not exist.
func (b *Binding) Select(skeletonID, frameID string) bool {
	sk, ok := b.store.Skeleton(skeletonID)
	if !ok {
		return false
	}
	if _, ok := sk.Frame(frameID); !ok {
		return false
	}
	b.mu.Lock()
	b.skeletonID, b.frameID = skeletonID, frameID
	b.mu.Unlock()
	return true
}

// Selection returns the selected frame.
func (b *Binding) Selection() (skeletonID, frameID string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.skeletonID, b.frameID, b.frameID != ""
}

// ClearSelection deselects.
func (b *Binding) ClearSelection() {
	b.mu.Lock()
	b.frameID = ""
	b.mu.Unlock()
}

// HandleKey dispatches one key chord.
func (b *Binding) HandleKey(key string) Response {
	cmd, ok := b.keymap[NormalizeKey(key)]
	if !ok {
		return Response{}
	}
	resp := Response{Command: cmd}
	switch cmd.Action {
	case MoveUp, MoveDown, MoveLeft, MoveRight:
		res := b.Move(direction(cmd.Action))
		resp.Move = &res
		resp.Handled = true
	case Clear:
		_, _, had := b.Selection()
		b.ClearSelection()
		resp.Handled = had
	case Next, Previous:
		resp.Handled = b.step(cmd.Action == Next)
	case FocusUnit:
		resp.Handled = b.focusUnit(cmd.Arg)
	}
	b.log.Debug("key", slog.String("key", key), slog.String("command", cmd.String()), slog.Bool("handled", resp.Handled))
	return resp
}

// Move moves the selected frame. With nothing selected the user is told to
// pick a frame first.
func (b *Binding) Move(dir movement.Direction) movement.Result {
	skID, frameID, ok := b.Selection()
	if !ok {
		res := movement.Result{Success: false, Message: "Select a frame first"}
		b.notifier.Notify(notify.Notice{Level: notify.Info, Title: "No frame selected", Message: "Click a frame, then use Alt+Arrow keys to move it"})
		return res
	}
	return b.engine.MoveFrame(skID, frameID, dir)
}

// step selects the next or previous frame in the selected frame's unit-local order.
func (b *Binding) step(forward bool) bool {
	skID, frameID, ok := b.Selection()
	if !ok {
		return false
	}
	sk, found := b.store.Skeleton(skID)
	if !found {
		return false
	}
	f, found := sk.Frame(frameID)
	if !found {
		return false
	}
	local := sk.UnitFrames(f.UnitType, b.store.UnitMatch())
	for i := range local {
		if local[i].ID != frameID {
			continue
		}
		j := i - 1
		if forward {
			j = i + 1
		}
		if j < 0 || j >= len(local) {
			return false
		}
		return b.Select(skID, local[j].ID)
	}
	return false
}

// focusUnit selects the first frame of unit n (1-based) of the current skeleton.
func (b *Binding) focusUnit(n int) bool {
	b.mu.Lock()
	skID := b.skeletonID
	b.mu.Unlock()
	if skID == "" {
		skID = b.store.ActiveSkeletonID()
	}
	sk, ok := b.store.Skeleton(skID)
	if !ok || n < 1 || n > len(sk.Units) {
		return false
	}
	frames := sk.UnitFrames(sk.Units[n-1], b.store.UnitMatch())
	if len(frames) == 0 {
		b.notifier.Notify(notify.Notice{Level: notify.Info, Title: sk.Units[n-1], Message: "This unit has no frames yet"})
		return false
	}
	return b.Select(skID, frames[0].ID)
}

// onChange drops the selection once the selected frame is gone.
func (b *Binding) onChange(c store.Change) {
	skID, frameID, ok := b.Selection()
	if !ok || (c.SkeletonID != "" && c.SkeletonID != skID) {
		return
	}
	switch c.Kind {
	case store.ChangeFrameDeleted:
		if c.FrameID != frameID {
			return
		}
	case store.ChangeSkeletonDeleted, store.ChangeLoaded, store.ChangeFramesReplaced,
		store.ChangeUnitsReplaced, store.ChangeHistoryRestored:
		if sk, found := b.store.Skeleton(skID); found {
			if _, exists := sk.Frame(frameID); exists {
				return
			}
		}
	default:
		return
	}
	b.mu.Lock()
	if b.frameID == frameID {
		b.frameID = ""
	}
	b.mu.Unlock()
	b.log.Debug("selection cleared", slog.String("skeleton", skID), slog.String("frame", frameID))
}

func direction(a Action) movement.Direction {
	switch a {
	case MoveUp:
		return movement.Up
	case MoveDown:
		return movement.Down
	case MoveLeft:
		return movement.Left
	default:
		return movement.Right
	}
}
