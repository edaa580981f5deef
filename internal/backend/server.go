/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package backend serves a skeleton store over a small JSON HTTP API and
// provides the matching client.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vidskel/internal/dnd"
	applog "vidskel/internal/log"
	"vidskel/internal/movement"
	"vidskel/internal/notify"
	"vidskel/internal/script"
	"vidskel/internal/store"
	"vidskel/internal/templates"
)

// Server exposes one store. After each mutating request the workspace is
// saved to the repository, when one is configured.
type Server struct {
	store     *store.Store
	engine    *movement.Engine
	dnd       *dnd.Coordinator
	library   *templates.Library
	generator script.Generator
	repo      Repository
	newID     func() string
	log       *slog.Logger

	tracker movement.Tracker
	settle  time.Duration

	changes atomic.Uint64
	saveMu  sync.Mutex
	saved   uint64
}

type Option func(*Server)

func WithRepository(r Repository) Option        { return func(s *Server) { s.repo = r } }
func WithTemplates(l *templates.Library) Option { return func(s *Server) { s.library = l } }
func WithGenerator(g script.Generator) Option   { return func(s *Server) { s.generator = g } }
func WithTracker(t movement.Tracker) Option     { return func(s *Server) { s.tracker = t } }
func WithSettleDelay(d time.Duration) Option    { return func(s *Server) { s.settle = d } }
func WithIDGenerator(f func() string) Option    { return func(s *Server) { s.newID = f } }

// NewServer wires the movement engine and drop coordinator to st. Without
// WithTemplates the built-in catalog is used; without WithGenerator scripts
// are drafted offline.
func NewServer(st *store.Store, opts ...Option) (*Server, error) {
	s := &Server{
		store:  st,
		newID:  uuid.NewString,
		settle: dnd.DefaultSettleDelay,
		log:    applog.WithComponent("backend"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.library == nil {
		lib, err := templates.Builtin()
		if err != nil {
			return nil, fmt.Errorf("templates: %w", err)
		}
		s.library = lib
	}
	if s.generator == nil {
		s.generator = script.OutlineGenerator{Match: st.UnitMatch()}
	}
	n := notify.Log{L: s.log}
	eopts := []movement.EngineOption{movement.WithNotifier(n)}
	copts := []dnd.Option{
		dnd.WithNotifier(n),
		dnd.WithTemplates(s.library.Frame),
		dnd.WithSettleDelay(s.settle),
		dnd.WithIDGenerator(s.newID),
	}
	if s.tracker != nil {
		eopts = append(eopts, movement.WithTracker(s.tracker))
		copts = append(copts, dnd.WithTracker(s.tracker))
	}
	s.engine = movement.NewEngine(st, eopts...)
	s.dnd = dnd.NewCoordinator(st, copts...)
	st.Subscribe(func(store.Change) { s.changes.Add(1) })
	return s, nil
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /version", s.handleVersion)

	mux.HandleFunc("GET /api/skeletons", s.handleListSkeletons)
	mux.HandleFunc("POST /api/skeletons", s.mutating(s.handleCreateSkeleton))
	mux.HandleFunc("GET /api/skeletons/{id}", s.handleGetSkeleton)
	mux.HandleFunc("DELETE /api/skeletons/{id}", s.mutating(s.handleDeleteSkeleton))
	mux.HandleFunc("POST /api/skeletons/{id}/activate", s.mutating(s.handleActivate))
	mux.HandleFunc("POST /api/skeletons/{id}/undo", s.mutating(s.handleUndo))
	mux.HandleFunc("POST /api/skeletons/{id}/redo", s.mutating(s.handleRedo))
	mux.HandleFunc("POST /api/skeletons/{id}/drop", s.mutating(s.handleDrop))

	mux.HandleFunc("POST /api/skeletons/{id}/frames", s.mutating(s.handleAddFrame))
	mux.HandleFunc("PATCH /api/skeletons/{id}/frames/{frameID}", s.mutating(s.handlePatchFrame))
	mux.HandleFunc("DELETE /api/skeletons/{id}/frames/{frameID}", s.mutating(s.handleDeleteFrame))
	mux.HandleFunc("GET /api/skeletons/{id}/frames/{frameID}/moves", s.handleAvailableMoves)
	mux.HandleFunc("POST /api/skeletons/{id}/frames/{frameID}/move", s.mutating(s.handleMoveFrame))

	mux.HandleFunc("PUT /api/skeletons/{id}/units", s.mutating(s.handleSetUnits))
	mux.HandleFunc("POST /api/skeletons/{id}/units/rename", s.mutating(s.handleRenameUnit))
	mux.HandleFunc("GET /api/skeletons/{id}/orphans", s.handleOrphans)

	mux.HandleFunc("GET /api/skeletons/{id}/context", s.handleGetContext)
	mux.HandleFunc("PUT /api/skeletons/{id}/context", s.mutating(s.handlePutContext))
	mux.HandleFunc("POST /api/skeletons/{id}/script", s.mutating(s.handleScript))

	mux.HandleFunc("GET /api/templates/frames", s.handleFrameTemplates)
	mux.HandleFunc("GET /api/templates/skeletons", s.handleSkeletonTemplates)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	return mux
}

// mutating persists pending store changes once h has run.
func (s *Server) mutating(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h(w, r)
		s.persist(context.WithoutCancel(r.Context()))
	}
}

// persist saves the store when it changed since the last successful save.
// Failures are logged; the in-memory state stays authoritative.
func (s *Server) persist(ctx context.Context) {
	if s.repo == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	seq := s.changes.Load()
	if seq == s.saved {
		return
	}
	if err := s.repo.Save(ctx, s.store.Export()); err != nil {
		s.log.Error("persist workspace", slog.Any("err", err))
		return
	}
	s.saved = seq
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelWarn),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		s.persist(sctx)
		s.log.Info("stopped")
		return err
	})
	return g.Wait()
}
