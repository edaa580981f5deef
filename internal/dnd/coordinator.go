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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidskel/internal/domain"
	applog "vidskel/internal/log"
	"vidskel/internal/movement"
	"vidskel/internal/notify"
	"vidskel/internal/store"
)

// DefaultSettleDelay is how long drag highlight state survives a drop.
const DefaultSettleDelay = 50 * time.Millisecond

// TemplateLookup resolves a template id from the library.
type TemplateLookup func(id string) (domain.FrameTemplate, bool)

// Coordinator routes drops to store mutations and holds the transient drag
// state of one pointer. It is safe for concurrent use.
type Coordinator struct {
	store     *store.Store
	notifier  notify.Notifier
	tracker   movement.Tracker
	templates TemplateLookup
	newID     func() string
	settle    time.Duration
	log       *slog.Logger

	mu     sync.Mutex
	active *Payload
	over   *Target
	gen    uint64
	timer  *time.Timer
}

type Option func(*Coordinator)

func WithNotifier(n notify.Notifier) Option  { return func(c *Coordinator) { c.notifier = n } }
func WithTracker(t movement.Tracker) Option  { return func(c *Coordinator) { c.tracker = t } }
func WithTemplates(l TemplateLookup) Option  { return func(c *Coordinator) { c.templates = l } }
func WithSettleDelay(d time.Duration) Option { return func(c *Coordinator) { c.settle = d } }
func WithIDGenerator(f func() string) Option { return func(c *Coordinator) { c.newID = f } }

func NewCoordinator(st *store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    st,
		notifier: notify.Discard,
		newID:    uuid.NewString,
		settle:   DefaultSettleDelay,
		log:      applog.WithComponent("dnd"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// DragStart records the dragged payload. A pending settle clear from the
// previous drop is cancelled.
func (c *Coordinator) DragStart(p Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.active = &p
	c.over = nil
}

// DragOver records the current highlight target; nil clears it.
func (c *Coordinator) DragOver(t *Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return
	}
	if t == nil {
		c.over = nil
		return
	}
	cp := *t
	c.over = &cp
}

// DragCancel drops the gesture without any mutation.
func (c *Coordinator) DragCancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.active, c.over = nil, nil
}

// Active returns the payload being dragged, if any.
func (c *Coordinator) Active() (Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Payload{}, false
	}
	return *c.active, true
}

// Over returns the highlighted target, if any.
func (c *Coordinator) Over() (Target, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.over == nil {
		return Target{}, false
	}
	return *c.over, true
}

// DragEnd commits the drop synchronously and then clears the drag state
// after the settle delay. d.Payload is used as given; DragStart is optional.
func (c *Coordinator) DragEnd(d Drop) Outcome {
	out := c.route(d)

	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.settle <= 0 {
		c.active, c.over = nil, nil
	} else {
		c.timer = time.AfterFunc(c.settle, func() { c.clear(gen) })
	}
	c.mu.Unlock()

	c.log.Debug("drop",
		slog.String("skeleton", d.SkeletonID),
		slog.String("payload", string(d.Payload.Kind)),
		slog.String("path", string(out.Path)),
		slog.Bool("applied", out.Applied))
	if out.Applied && c.tracker != nil {
		c.tracker.Event("drop", map[string]any{"path": string(out.Path)})
	}
	return out
}

func (c *Coordinator) clear(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.active, c.over = nil, nil
	c.timer = nil
}

// route picks exactly one path for the (payload, target) kinds.
func (c *Coordinator) route(d Drop) Outcome {
	if d.Over == nil {
		return Outcome{Path: PathNone}
	}
	p, t := d.Payload, *d.Over
	switch {
	case p.Kind == PayloadSkeletonUnit && t.Kind == TargetSkeletonUnit:
		return c.reorderUnits(d.SkeletonID, p.UnitName, t.UnitName)

	case p.Kind == PayloadTone && t.Kind == TargetTone:
		return c.applyAttribute(d.SkeletonID, t.FrameID, PathTone, p.Value)

	case p.Kind == PayloadFilter && t.Kind == TargetFilter:
		return c.applyAttribute(d.SkeletonID, t.FrameID, PathFilter, p.Value)

	case p.Kind == PayloadFrame && t.Kind == TargetFrame && c.sameUnit(d.SkeletonID, p.FrameID, t.FrameID):
		return c.reorderFrame(d)
	}

	if p.Kind != PayloadFrame && p.Kind != PayloadTemplate {
		return Outcome{Path: PathNone}
	}
	unit, ok := c.unitOf(d.SkeletonID, t)
	if !ok {
		return Outcome{Path: PathNone}
	}
	if p.Kind == PayloadTemplate {
		return c.addFromTemplate(d.SkeletonID, p, unit)
	}
	return c.moveToUnit(d.SkeletonID, p.FrameID, unit)
}

func (c *Coordinator) reorderUnits(skID, from, to string) Outcome {
	m := c.store.UnitMatch()
	applied := c.store.UpdateSkeletonUnitsFunc(skID, func(sk domain.Skeleton) ([]string, bool) {
		i, j := sk.UnitIndex(from, m), sk.UnitIndex(to, m)
		if i < 0 || j < 0 || i == j {
			return nil, false
		}
		return movement.ArrayMove(sk.Units, i, j), true
	})
	return Outcome{Path: PathUnitReorder, Applied: applied}
}

func (c *Coordinator) applyAttribute(skID, frameID string, path Path, value string) Outcome {
	sk, ok := c.store.Skeleton(skID)
	if !ok {
		return Outcome{Path: path}
	}
	f, ok := sk.Frame(frameID)
	if !ok {
		return Outcome{Path: path}
	}
	if path == PathTone {
		if f.Tone == value {
			return Outcome{Path: path, FrameID: frameID}
		}
		c.store.UpdateFrameTone(skID, frameID, value)
	} else {
		if f.Filter == value {
			return Outcome{Path: path, FrameID: frameID}
		}
		c.store.UpdateFrameFilter(skID, frameID, value)
	}
	c.notifier.Notify(notify.Notice{Level: notify.Success, Title: fmt.Sprintf("%s applied", capitalize(string(path))), Message: fmt.Sprintf("%q on %q", value, f.Name)})
	return Outcome{Path: path, Applied: true, FrameID: frameID}
}

func (c *Coordinator) sameUnit(skID, a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	sk, ok := c.store.Skeleton(skID)
	if !ok {
		return false
	}
	fa, okA := sk.Frame(a)
	fb, okB := sk.Frame(b)
	return okA && okB && c.store.UnitMatch().Equal(fa.UnitType, fb.UnitType)
}

// reorderFrame places the dragged frame before the target when the pointer is
// in the target's upper half and after it otherwise. Without geometry it
// falls back to a plain index move onto the target's slot.
func (c *Coordinator) reorderFrame(d Drop) Outcome {
	dragged, target := d.Payload.FrameID, d.Over.FrameID
	out := Outcome{Path: PathFrameReorder, FrameID: dragged}
	if dragged == target {
		return out
	}
	out.Applied = c.store.UpdateFrameOrderFunc(d.SkeletonID, func(sk domain.Skeleton) ([]domain.Frame, bool) {
		from, to := sk.FrameIndex(dragged), sk.FrameIndex(target)
		if from < 0 || to < 0 {
			return nil, false
		}
		var next []domain.Frame
		if d.Pointer == nil || d.Over.Rect.Empty() {
			next = movement.ArrayMove(sk.Frames, from, to)
		} else {
			moving := sk.Frames[from]
			rest := append(append([]domain.Frame(nil), sk.Frames[:from]...), sk.Frames[from+1:]...)
			idx := (domain.Skeleton{Frames: rest}).FrameIndex(target)
			if !d.Over.Rect.InUpperHalf(*d.Pointer) {
				idx++
			}
			next = append(rest[:idx:idx], append([]domain.Frame{moving}, rest[idx:]...)...)
		}
		if equalOrder(sk.Frames, next) {
			return nil, false
		}
		return next, true
	})
	return out
}

func (c *Coordinator) addFromTemplate(skID string, p Payload, unit string) Outcome {
	out := Outcome{Path: PathTemplateAdd}
	tpl, ok := c.template(p)
	if !ok {
		c.log.Warn("template not found", slog.String("template", p.TemplateID))
		return out
	}
	f := domain.Frame{
		ID:                c.newID(),
		Name:              tpl.Name,
		Type:              tpl.Type,
		Content:           tpl.Example,
		UnitType:          unit,
		IsTemplateExample: true,
	}
	out.FrameID = f.ID
	out.Applied = c.store.UpdateFrameOrderFunc(skID, func(sk domain.Skeleton) ([]domain.Frame, bool) {
		return append(sk.Frames, f), true
	})
	if out.Applied {
		c.notifier.Notify(notify.Notice{Level: notify.Success, Title: "Frame added", Message: fmt.Sprintf("%q added to %s", f.Name, unit)})
	}
	return out
}

func (c *Coordinator) moveToUnit(skID, frameID, unit string) Outcome {
	out := Outcome{Path: PathFrameToUnit, FrameID: frameID}
	m := c.store.UnitMatch()
	var name string
	out.Applied = c.store.UpdateFrameOrderFunc(skID, func(sk domain.Skeleton) ([]domain.Frame, bool) {
		i := sk.FrameIndex(frameID)
		if i < 0 || m.Equal(sk.Frames[i].UnitType, unit) {
			return nil, false
		}
		name = sk.Frames[i].Name
		sk.Frames[i].UnitType = unit
		return sk.Frames, true
	})
	if out.Applied {
		c.notifier.Notify(notify.Notice{Level: notify.Success, Title: "Frame moved", Message: fmt.Sprintf("Moved %q to %s", name, unit)})
	}
	return out
}

// unitOf resolves the unit a frame or template drop lands in: the target's
// unit metadata, or for frame targets the unit of that frame.
func (c *Coordinator) unitOf(skID string, t Target) (string, bool) {
	switch t.Kind {
	case TargetUnit, TargetFrame:
	default:
		return "", false
	}
	sk, ok := c.store.Skeleton(skID)
	if !ok {
		return "", false
	}
	unit := t.UnitName
	if unit == "" && t.Kind == TargetFrame {
		if f, ok := sk.Frame(t.FrameID); ok {
			unit = f.UnitType
		}
	}
	i := sk.UnitIndex(unit, c.store.UnitMatch())
	if i < 0 {
		return "", false
	}
	return sk.Units[i], true
}

func (c *Coordinator) template(p Payload) (domain.FrameTemplate, bool) {
	if p.Template != nil {
		return *p.Template, true
	}
	if c.templates == nil || p.TemplateID == "" {
		return domain.FrameTemplate{}, false
	}
	return c.templates(p.TemplateID)
}

func equalOrder(a, b []domain.Frame) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
