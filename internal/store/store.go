/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package store holds the skeletons of a session and is the single writer for them.
// Every mutation is one atomic replacement under the store lock. Operations never
// fail: an unknown skeleton or frame id turns the call into a no-op, so callers
// that need confirmation read first.
package store

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"vidskel/internal/domain"
	applog "vidskel/internal/log"
	"vidskel/internal/undo"
)

// Store is the in-process source of truth for skeletons, the active skeleton
// id and per-skeleton video context. Construct one with New and pass it to
// every consumer; there is no package-level instance.
type Store struct {
	mu        sync.RWMutex
	skeletons []domain.Skeleton
	activeID  string
	contexts  map[string]domain.VideoContext

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int

	orphans OrphanPolicy
	match   domain.UnitMatch
	history *undo.History
	now     func() time.Time
	log     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithOrphanPolicy sets what UpdateSkeletonUnits does with frames whose unit disappears.
func WithOrphanPolicy(p OrphanPolicy) Option { return func(s *Store) { s.orphans = p } }

// WithUnitMatch sets how frame UnitType values are compared with unit names.
func WithUnitMatch(m domain.UnitMatch) Option { return func(s *Store) { s.match = m } }

// WithHistory enables Undo/Redo backed by h.
func WithHistory(h *undo.History) Option { return func(s *Store) { s.history = h } }

// WithClock overrides the time source used for history timestamps.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		contexts: make(map[string]domain.VideoContext),
		subs:     make(map[int]func(Change)),
		orphans:  OrphanKeep,
		match:    domain.UnitMatchExact,
		now:      time.Now,
		log:      applog.WithComponent("store"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// UnitMatch returns the comparison policy the store was built with.
func (s *Store) UnitMatch() domain.UnitMatch { return s.match }

// AddSkeleton appends sk and returns the stored copy. Ids are not checked for duplicates.
func (s *Store) AddSkeleton(sk domain.Skeleton) domain.Skeleton {
	stored := sk.Clone()
	s.mu.Lock()
	s.skeletons = append(s.skeletons, stored)
	s.mu.Unlock()
	s.log.Debug("skeleton added", slog.String("skeleton", sk.ID), slog.Int("frames", len(sk.Frames)))
	s.emit(Change{Kind: ChangeSkeletonAdded, SkeletonID: sk.ID})
	return stored.Clone()
}

// Skeletons returns copies of all skeletons in insertion order.
func (s *Store) Skeletons() []domain.Skeleton {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Skeleton, len(s.skeletons))
	for i := range s.skeletons {
		out[i] = s.skeletons[i].Clone()
	}
	return out
}

// Skeleton returns a copy of the skeleton with id.
func (s *Store) Skeleton(id string) (domain.Skeleton, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.skeletons[i].Clone(), true
	}
	return domain.Skeleton{}, false
}

// DeleteSkeleton removes the skeleton. Its video context and history are left alone.
func (s *Store) DeleteSkeleton(id string) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.skeletons = append(s.skeletons[:i:i], s.skeletons[i+1:]...)
	if s.activeID == id {
		s.activeID = ""
	}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeSkeletonDeleted, SkeletonID: id})
}

// SetActiveSkeleton records which skeleton the user is working on. Any id is accepted.
func (s *Store) SetActiveSkeleton(id string) {
	s.mu.Lock()
	changed := s.activeID != id
	s.activeID = id
	s.mu.Unlock()
	if changed {
		s.emit(Change{Kind: ChangeActiveChanged, SkeletonID: id})
	}
}

// ActiveSkeletonID returns the active id, possibly empty or dangling.
func (s *Store) ActiveSkeletonID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// ActiveSkeleton resolves the active id.
func (s *Store) ActiveSkeleton() (domain.Skeleton, bool) {
	return s.Skeleton(s.ActiveSkeletonID())
}

// UpdateFrameOrder replaces the complete frame list of one skeleton. Reorders
// and unit reassignments are both committed through this call.
func (s *Store) UpdateFrameOrder(id string, frames []domain.Frame) {
	next := domain.CloneFrames(frames)
	s.mutate(id, func(sk *domain.Skeleton) (Change, bool) {
		sk.Frames = next
		return Change{Kind: ChangeFramesReplaced}, true
	})
}

// UpdateFrameOrderFunc computes the next frame list from the current skeleton
// and commits it in the same critical section, so concurrent callers never
// commit a list derived from a stale read. fn returns false to leave the
// skeleton untouched. It reports whether a commit happened.
func (s *Store) UpdateFrameOrderFunc(id string, fn func(sk domain.Skeleton) ([]domain.Frame, bool)) bool {
	committed := false
	s.mutate(id, func(sk *domain.Skeleton) (Change, bool) {
		next, ok := fn(sk.Clone())
		if !ok {
			return Change{}, false
		}
		sk.Frames = domain.CloneFrames(next)
		committed = true
		return Change{Kind: ChangeFramesReplaced}, true
	})
	return committed
}

// UpdateSkeletonUnitsFunc is the unit-list counterpart of UpdateFrameOrderFunc.
func (s *Store) UpdateSkeletonUnitsFunc(id string, fn func(sk domain.Skeleton) ([]string, bool)) bool {
	committed := false
	s.mutate(id, func(sk *domain.Skeleton) (Change, bool) {
		next, ok := fn(sk.Clone())
		if !ok {
			return Change{}, false
		}
		sk.Units = append([]string(nil), next...)
		sk.Frames = s.orphans.apply(*sk, s.match)
		committed = true
		return Change{Kind: ChangeUnitsReplaced}, true
	})
	return committed
}

// UpdateFrameTone sets the tone attribute of one frame.
func (s *Store) UpdateFrameTone(id, frameID, tone string) {
	s.updateFrame(id, frameID, "tone", func(f *domain.Frame) { f.Tone = tone })
}

// UpdateFrameFilter sets the filter attribute of one frame.
func (s *Store) UpdateFrameFilter(id, frameID, filter string) {
	s.updateFrame(id, frameID, "filter", func(f *domain.Frame) { f.Filter = filter })
}

// UpdateFrameScript stores generated or edited script text for one frame.
func (s *Store) UpdateFrameScript(id, frameID, script string) {
	s.updateFrame(id, frameID, "script", func(f *domain.Frame) { f.Script = script })
}

// UpdateFrameContent replaces the frame content. The frame no longer counts as template example text.
func (s *Store) UpdateFrameContent(id, frameID, content string) {
	s.updateFrame(id, frameID, "content", func(f *domain.Frame) {
		f.Content = content
		f.IsTemplateExample = false
	})
}

// UpdateFrameTransition sets the frame's transition.
func (s *Store) UpdateFrameTransition(id, frameID string, t domain.Transition) {
	s.updateFrame(id, frameID, "transition", func(f *domain.Frame) { f.Transition = t })
}

// FrameEdit names the frame attributes to set; nil fields are left alone.
type FrameEdit struct {
	Content    *string
	Script     *string
	Tone       *string
	Filter     *string
	Transition *domain.Transition
}

// EditFrame applies every set field of e as one change with one undo step.
// Field on the emitted change lists the edited attributes, comma separated.
// It reports whether the frame was found and e set anything.
func (s *Store) EditFrame(id, frameID string, e FrameEdit) bool {
	committed := false
	s.mutate(id, func(sk *domain.Skeleton) (Change, bool) {
		i := sk.FrameIndex(frameID)
		if i < 0 {
			return Change{}, false
		}
		f := &sk.Frames[i]
		var fields []string
		if e.Content != nil {
			f.Content = *e.Content
			f.IsTemplateExample = false
			fields = append(fields, "content")
		}
		if e.Script != nil {
			f.Script = *e.Script
			fields = append(fields, "script")
		}
		if e.Tone != nil {
			f.Tone = *e.Tone
			fields = append(fields, "tone")
		}
		if e.Filter != nil {
			f.Filter = *e.Filter
			fields = append(fields, "filter")
		}
		if e.Transition != nil {
			f.Transition = *e.Transition
			fields = append(fields, "transition")
		}
		if len(fields) == 0 {
			return Change{}, false
		}
		committed = true
		return Change{Kind: ChangeFrameUpdated, FrameID: frameID, Field: strings.Join(fields, ",")}, true
	})
	return committed
}

// DeleteFrame removes one frame from the flat list.
func (s *Store) DeleteFrame(id, frameID string) {
	s.mutate(id, func(sk *domain.Skeleton) (Change, bool) {
		i := sk.FrameIndex(frameID)
		if i < 0 {
			return Change{}, false
		}
		sk.Frames = append(sk.Frames[:i:i], sk.Frames[i+1:]...)
		return Change{Kind: ChangeFrameDeleted, FrameID: frameID}, true
	})
}

// UpdateSkeletonUnits replaces the unit list. Frames whose unit is gone are
// handled per the store's OrphanPolicy.
func (s *Store) UpdateSkeletonUnits(id string, units []string) {
	next := append([]string(nil), units...)
	s.mutate(id, func(sk *domain.Skeleton) (Change, bool) {
		sk.Units = next
		sk.Frames = s.orphans.apply(*sk, s.match)
		return Change{Kind: ChangeUnitsReplaced}, true
	})
}

// RenameUnit renames a unit and retags its frames in one transition.
func (s *Store) RenameUnit(id, from, to string) {
	s.mutate(id, func(sk *domain.Skeleton) (Change, bool) {
		ui := sk.UnitIndex(from, s.match)
		if ui < 0 || from == to {
			return Change{}, false
		}
		units := append([]string(nil), sk.Units...)
		units[ui] = to
		frames := domain.CloneFrames(sk.Frames)
		for i := range frames {
			if s.match.Equal(frames[i].UnitType, from) {
				frames[i].UnitType = to
			}
		}
		sk.Units, sk.Frames = units, frames
		return Change{Kind: ChangeUnitsReplaced}, true
	})
}

// Orphans lists frames of the skeleton that belong to no unit.
func (s *Store) Orphans(id string) []domain.Frame {
	sk, ok := s.Skeleton(id)
	if !ok {
		return nil
	}
	return sk.Orphans(s.match)
}

// SetVideoContext stores ctx for a skeleton id, whether or not the skeleton exists.
func (s *Store) SetVideoContext(id string, ctx domain.VideoContext) {
	s.mu.Lock()
	s.contexts[id] = ctx
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeContextChanged, SkeletonID: id})
}

// VideoContext returns the stored context for a skeleton id.
func (s *Store) VideoContext(id string) (domain.VideoContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contexts[id]
	return c, ok
}

// Load replaces the whole store content with ws. History is not touched.
func (s *Store) Load(ws domain.Workspace) {
	s.mu.Lock()
	s.skeletons = make([]domain.Skeleton, len(ws.Skeletons))
	for i := range ws.Skeletons {
		s.skeletons[i] = ws.Skeletons[i].Clone()
	}
	s.activeID = ws.ActiveSkeletonID
	s.contexts = make(map[string]domain.VideoContext, len(ws.VideoContexts))
	for k, v := range ws.VideoContexts {
		s.contexts[k] = v
	}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeLoaded})
}

// Export dumps the store content as a workspace manifest.
func (s *Store) Export() domain.Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exportLocked()
}

// TryExport is Export without waiting: it reports false while a writer holds
// the store. Crash handlers use it so a panic inside a mutation cannot deadlock them.
func (s *Store) TryExport() (domain.Workspace, bool) {
	if !s.mu.TryRLock() {
		return domain.Workspace{}, false
	}
	defer s.mu.RUnlock()
	return s.exportLocked(), true
}

func (s *Store) exportLocked() domain.Workspace {
	ws := domain.Workspace{
		Version:          domain.WorkspaceVersion,
		ActiveSkeletonID: s.activeID,
		Skeletons:        make([]domain.Skeleton, len(s.skeletons)),
	}
	for i := range s.skeletons {
		ws.Skeletons[i] = s.skeletons[i].Clone()
	}
	if len(s.contexts) > 0 {
		ws.VideoContexts = make(map[string]domain.VideoContext, len(s.contexts))
		keys := make([]string, 0, len(s.contexts))
		for k := range s.contexts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ws.VideoContexts[k] = s.contexts[k]
		}
	}
	return ws
}

// Undo restores the skeleton state before its most recent change.
// It reports false when history is disabled or empty.
func (s *Store) Undo(id string) bool { return s.travel(id, true) }

// Redo re-applies the most recently undone change.
func (s *Store) Redo(id string) bool { return s.travel(id, false) }

func (s *Store) travel(id string, back bool) bool {
	if s.history == nil {
		return false
	}
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	cur, err := json.Marshal(s.skeletons[i])
	if err != nil {
		s.mu.Unlock()
		return false
	}
	current := undo.Snapshot{Blob: cur, TS: s.now()}
	var (
		snap undo.Snapshot
		ok   bool
	)
	if back {
		snap, ok = s.history.Undo(id, current)
	} else {
		snap, ok = s.history.Redo(id, current)
	}
	if !ok {
		s.mu.Unlock()
		return false
	}
	var restored domain.Skeleton
	if err := json.Unmarshal(snap.Blob, &restored); err != nil {
		s.mu.Unlock()
		s.log.Error("history blob unreadable", slog.String("skeleton", id), slog.Any("err", err))
		return false
	}
	s.skeletons[i] = restored
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeHistoryRestored, SkeletonID: id})
	return true
}

// mutate runs fn against the stored skeleton under the write lock. fn reports
// whether it changed anything; only real changes are recorded and announced.
func (s *Store) mutate(id string, fn func(sk *domain.Skeleton) (Change, bool)) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	var before []byte
	if s.history != nil {
		var err error
		if before, err = json.Marshal(s.skeletons[i]); err != nil {
			s.log.Warn("undo step not recorded", slog.String("skeleton", id), slog.Any("err", err))
			before = nil
		}
	}
	work := s.skeletons[i].Clone()
	ch, changed := fn(&work)
	if !changed {
		s.mu.Unlock()
		return
	}
	s.skeletons[i] = work
	if s.history != nil && before != nil {
		s.history.Record(undo.Snapshot{Key: id, Blob: before, TS: s.now()})
	}
	s.mu.Unlock()
	ch.SkeletonID = id
	s.emit(ch)
}

func (s *Store) updateFrame(id, frameID, field string, apply func(f *domain.Frame)) {
	s.mutate(id, func(sk *domain.Skeleton) (Change, bool) {
		i := sk.FrameIndex(frameID)
		if i < 0 {
			return Change{}, false
		}
		apply(&sk.Frames[i])
		return Change{Kind: ChangeFrameUpdated, FrameID: frameID, Field: field}, true
	})
}

func (s *Store) indexLocked(id string) int {
	for i := range s.skeletons {
		if s.skeletons[i].ID == id {
			return i
		}
	}
	return -1
}
