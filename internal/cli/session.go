/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"vidskel/internal/domain"
	"vidskel/internal/movement"
	"vidskel/internal/notify"
	"vidskel/internal/storage"
	"vidskel/internal/store"
	"vidskel/internal/telemetry"
	"vidskel/internal/undo"
)

// session is one opened workspace: the manifest handle and a store loaded from it.
type session struct {
	a      *app
	wh     *storage.WorkspaceHandle
	st     *store.Store
	engine *movement.Engine
	log    *slog.Logger
}

func (a *app) root() (string, error) {
	dir := a.workspace
	if dir == "" {
		dir = a.cfg.General.Workspace
	}
	if dir == "" {
		dir = "."
	}
	return filepath.Abs(dir)
}

// newStore builds a store with the configured editor policies.
func (a *app) newStore() (*store.Store, error) {
	m, err := a.cfg.Editor.Match()
	if err != nil {
		return nil, err
	}
	p, err := a.cfg.Editor.Orphans()
	if err != nil {
		return nil, err
	}
	h := undo.NewHistory(undo.Config{MaxPerKey: a.cfg.Editor.UndoDepth, MinInterval: a.cfg.Editor.UndoMerge()})
	return store.New(store.WithUnitMatch(m), store.WithOrphanPolicy(p), store.WithHistory(h)), nil
}

// open loads the workspace into a fresh store.
func (a *app) open() (*session, error) {
	root, err := a.root()
	if err != nil {
		return nil, err
	}
	wh, err := storage.Open(root)
	if err != nil {
		return nil, fmt.Errorf("open workspace %s (run 'vidskel init' first?): %w", root, err)
	}
	st, err := a.newStore()
	if err != nil {
		return nil, err
	}
	st.Load(wh.Workspace)
	l := a.log.With(slog.String("root", root))
	return &session{
		a:  a,
		wh: wh,
		st: st,
		engine: movement.NewEngine(st,
			movement.WithNotifier(notify.Log{L: l}),
			movement.WithTracker(telemetry.Default())),
		log: l,
	}, nil
}

// commit saves the manifest, refreshes the search index and records a
// revision of every touched skeleton. Old revisions and backups are pruned to
// the configured limits.
func (s *session) commit(ctx context.Context, label string, touched ...string) error {
	s.wh.Workspace = s.st.Export()
	if err := storage.Save(s.wh); err != nil {
		return fmt.Errorf("save workspace: %w", err)
	}
	if err := storage.UpdateIndex(ctx, s.wh.Root, s.wh.Workspace); err != nil {
		s.log.Warn("index update failed", slog.Any("err", err))
	}
	now := time.Now()
	for _, id := range touched {
		sk, ok := s.st.Skeleton(id)
		if !ok {
			continue
		}
		if _, err := storage.SaveRevision(ctx, s.wh, sk, label, now); err != nil {
			s.log.Warn("save revision failed", slog.String("skeleton", id), slog.Any("err", err))
			continue
		}
		if keep := s.a.cfg.General.RevisionsKeep; keep > 0 {
			if _, err := storage.PruneRevisions(ctx, s.wh, id, keep); err != nil {
				s.log.Warn("prune revisions failed", slog.Any("err", err))
			}
		}
	}
	if keep := s.a.cfg.General.BackupsKeep; keep > 0 {
		if _, err := storage.PruneBackups(s.wh.Root, keep); err != nil {
			s.log.Warn("prune backups failed", slog.Any("err", err))
		}
	}
	return nil
}

var errAmbiguous = errors.New("ambiguous reference")

// skeleton resolves ref to a skeleton: empty means the active one, otherwise
// an exact id, a unique id prefix or a unique case-insensitive name.
func (s *session) skeleton(ref string) (domain.Skeleton, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		sk, ok := s.st.ActiveSkeleton()
		if !ok {
			return domain.Skeleton{}, errors.New("no active skeleton; pass one with --skeleton or run 'vidskel use'")
		}
		return sk, nil
	}
	if sk, ok := s.st.Skeleton(ref); ok {
		return sk, nil
	}
	all := s.st.Skeletons()
	return pick(all, ref, "skeleton", func(sk domain.Skeleton) (string, string) { return sk.ID, sk.Name })
}

// frame resolves ref within sk the same way skeleton does.
func (s *session) frame(sk domain.Skeleton, ref string) (domain.Frame, error) {
	if f, ok := sk.Frame(ref); ok {
		return f, nil
	}
	return pick(sk.Frames, ref, "frame", func(f domain.Frame) (string, string) { return f.ID, f.Name })
}

func pick[T any](items []T, ref, what string, key func(T) (id, name string)) (T, error) {
	var hits []T
	for _, it := range items {
		id, _ := key(it)
		if strings.HasPrefix(id, ref) {
			hits = append(hits, it)
		}
	}
	if len(hits) == 0 {
		for _, it := range items {
			if _, name := key(it); strings.EqualFold(name, ref) {
				hits = append(hits, it)
			}
		}
	}
	var zero T
	switch len(hits) {
	case 0:
		return zero, fmt.Errorf("%s %q not found", what, ref)
	case 1:
		return hits[0], nil
	}
	return zero, fmt.Errorf("%w: %d %ss match %q", errAmbiguous, len(hits), what, ref)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
