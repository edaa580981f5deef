/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"vidskel/internal/dnd"
	"vidskel/internal/domain"
	applog "vidskel/internal/log"
	"vidskel/internal/movement"
	"vidskel/internal/script"
	"vidskel/internal/storage"
	"vidskel/internal/store"
	"vidskel/internal/templates"
	"vidskel/internal/version"
)

// SkeletonList is the body of GET /api/skeletons.
type SkeletonList struct {
	ActiveSkeletonID string            `json:"activeSkeletonId,omitempty"`
	Skeletons        []domain.Skeleton `json:"skeletons"`
}

// CreateSkeletonRequest instantiates Template when set, otherwise builds an
// empty skeleton from Name, ContentType and Units.
type CreateSkeletonRequest struct {
	Template    string             `json:"template,omitempty"`
	Name        string             `json:"name,omitempty"`
	ContentType domain.ContentType `json:"contentType,omitempty"`
	Units       []string           `json:"units,omitempty"`
}

type MoveRequest struct {
	Direction string `json:"direction"`
}

type AddFrameRequest struct {
	Template string `json:"template"`
	Unit     string `json:"unit"`
}

// FramePatch sets the non-nil fields of a frame.
type FramePatch struct {
	Content    *string `json:"content,omitempty"`
	Script     *string `json:"script,omitempty"`
	Tone       *string `json:"tone,omitempty"`
	Filter     *string `json:"filter,omitempty"`
	Transition *string `json:"transition,omitempty"`
}

type UnitsRequest struct {
	Units []string `json:"units"`
}

type RenameUnitRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// HistoryResponse reports whether undo/redo changed anything.
type HistoryResponse struct {
	Changed  bool            `json:"changed"`
	Skeleton domain.Skeleton `json:"skeleton"`
}

type ScriptRequest struct {
	Apply bool `json:"apply"`
}

// ScriptResponse carries the rendered script and, with apply, how many frames
// received their beat text.
type ScriptResponse struct {
	Text    string `json:"text"`
	Applied int    `json:"applied"`
}

const maxBody = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.repo != nil {
		if err := s.repo.Ping(r.Context()); err != nil {
			s.log.Warn("not ready", slog.Any("err", err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("storage not ready"))
			return
		}
	}
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(version.String()))
}

func (s *Server) handleListSkeletons(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SkeletonList{
		ActiveSkeletonID: s.store.ActiveSkeletonID(),
		Skeletons:        s.store.Skeletons(),
	})
}

func (s *Server) handleCreateSkeleton(w http.ResponseWriter, r *http.Request) {
	var req CreateSkeletonRequest
	if !decode(w, r, &req) {
		return
	}
	var sk domain.Skeleton
	switch {
	case strings.TrimSpace(req.Template) != "":
		var err error
		sk, err = s.library.Instantiate(req.Template, req.Name, s.newID)
		if errors.Is(err, templates.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	case strings.TrimSpace(req.Name) == "":
		writeError(w, http.StatusBadRequest, errors.New("name or template is required"))
		return
	case req.ContentType != "" && !req.ContentType.Valid():
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown content type %q", req.ContentType))
		return
	default:
		sk = templates.Custom(req.Name, req.ContentType, req.Units, s.newID)
	}
	sk = s.store.AddSkeleton(sk)
	applog.WithSkeleton(s.log, sk.ID).Info("skeleton created", slog.String("template", req.Template))
	writeJSON(w, http.StatusCreated, sk)
}

func (s *Server) handleGetSkeleton(w http.ResponseWriter, r *http.Request) {
	sk, ok := s.skeleton(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sk)
}

func (s *Server) handleDeleteSkeleton(w http.ResponseWriter, r *http.Request) {
	sk, ok := s.skeleton(w, r)
	if !ok {
		return
	}
	s.store.DeleteSkeleton(sk.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	sk, ok := s.skeleton(w, r)
	if !ok {
		return
	}
	s.store.SetActiveSkeleton(sk.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) { s.travel(w, r, true) }
func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) { s.travel(w, r, false) }

func (s *Server) travel(w http.ResponseWriter, r *http.Request, back bool) {
	sk, ok := s.skeleton(w, r)
	if !ok {
		return
	}
	var changed bool
	if back {
		changed = s.store.Undo(sk.ID)
	} else {
		changed = s.store.Redo(sk.ID)
	}
	sk, _ = s.store.Skeleton(sk.ID)
	writeJSON(w, http.StatusOK, HistoryResponse{Changed: changed, Skeleton: sk})
}

func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	sk, ok := s.skeleton(w, r)
	if !ok {
		return
	}
	var d dnd.Drop
	if !decode(w, r, &d) {
		return
	}
	d.SkeletonID = sk.ID
	writeJSON(w, http.StatusOK, s.dnd.DragEnd(d))
}

func (s *Server) handleAddFrame(w http.ResponseWriter, r *http.Request) {
	sk, ok := s.skeleton(w, r)
	if !ok {
		return
	}
	var req AddFrameRequest
	if !decode(w, r, &req) {
		return
	}
	tpl, ok := s.library.Frame(req.Template)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %q", templates.ErrNotFound, req.Template))
		return
	}
	m := s.store.UnitMatch()
	i := sk.UnitIndex(req.Unit, m)
	if i < 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown unit %q", req.Unit))
		return
	}
	f := templates.NewFrame(tpl, sk.Units[i], s.newID)
	if !s.store.UpdateFrameOrderFunc(sk.ID, func(cur domain.Skeleton) ([]domain.Frame, bool) {
		return append(cur.Frames, f), true
	}) {
		writeError(w, http.StatusNotFound, errors.New("skeleton not found"))
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handlePatchFrame(w http.ResponseWriter, r *http.Request) {
	sk, f, ok := s.frame(w, r)
	if !ok {
		return
	}
	var p FramePatch
	if !decode(w, r, &p) {
		return
	}
	e := store.FrameEdit{Content: p.Content, Script: p.Script, Tone: p.Tone, Filter: p.Filter}
	if p.Transition != nil {
		tr, err := domain.ParseTransition(*p.Transition)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		e.Transition = &tr
	}
	s.store.EditFrame(sk.ID, f.ID, e)
	sk, _ = s.store.Skeleton(sk.ID)
	f, _ = sk.Frame(f.ID)
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleDeleteFrame(w http.ResponseWriter, r *http.Request) {
	sk, f, ok := s.frame(w, r)
	if !ok {
		return
	}
	s.store.DeleteFrame(sk.ID, f.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAvailableMoves(w http.ResponseWriter, r *http.Request) {
	sk, f, ok := s.frame(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Available(sk.ID, f.ID))
}

// handleMoveFrame answers 200 with the result on success and 409 with the
// result when the move is not legal.
func (s *Server) handleMoveFrame(w http.ResponseWriter, r *http.Request) {
	sk, f, ok := s.frame(w, r)
	if !ok {
		return
	}
	var req MoveRequest
	if !decode(w, r, &req) {
		return
	}
	dir, err := movement.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res := s.engine.MoveFrame(sk.ID, f.ID, dir)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}

func (s *Server) handleSetUnits(w http.ResponseWriter, r *http.Request) {
	sk, ok := s.skeleton(w, r)
	if !ok {
		return
	}
	var req UnitsRequest
	if !decode(w, r, &req) {
		return
	}
	s.store.UpdateSkeletonUnits(sk.ID, req.Units)
	sk, _ = s.store.Skeleton(sk.ID)
	writeJSON(w, http.StatusOK, sk)
}

func (s *Server) handleRenameUnit(w http.ResponseWriter, r *http.Request) {
	sk, ok := s.skeleton(w, r)
	if !ok {
		return
	}
	var req RenameUnitRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.From) == "" || strings.TrimSpace(req.To) == "" {
		writeError(w, http.StatusBadRequest, errors.New("from and to are required"))
		return
	}
	if sk.UnitIndex(req.From, s.store.UnitMatch()) < 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown unit %q", req.From))
		return
	}
	s.store.RenameUnit(sk.ID, req.From, req.To)
	sk, _ = s.store.Skeleton(sk.ID)
	writeJSON(w, http.StatusOK, sk)
}

func (s *Server) handleOrphans(w http.ResponseWriter, r *http.Request) {
	sk, ok := s.skeleton(w, r)
	if !ok {
		return
	}
	out := s.store.Orphans(sk.ID)
	if out == nil {
		out = []domain.Frame{}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetContext answers with an empty context when none is stored; a
// context may exist before or after its skeleton.
func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	vc, _ := s.store.VideoContext(r.PathValue("id"))
	writeJSON(w, http.StatusOK, vc)
}

func (s *Server) handlePutContext(w http.ResponseWriter, r *http.Request) {
	var vc domain.VideoContext
	if !decode(w, r, &vc) {
		return
	}
	s.store.SetVideoContext(r.PathValue("id"), vc)
	writeJSON(w, http.StatusOK, vc)
}

func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	sk, ok := s.skeleton(w, r)
	if !ok {
		return
	}
	var req ScriptRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	vc, _ := s.store.VideoContext(sk.ID)
	doc, err := s.generator.Generate(r.Context(), sk, vc)
	switch {
	case errors.Is(err, script.ErrEmptySkeleton):
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	case err != nil:
		applog.WithSkeleton(s.log, sk.ID).Error("script generation failed", slog.Any("err", err))
		writeError(w, http.StatusBadGateway, err)
		return
	}
	resp := ScriptResponse{Text: doc.Render()}
	if req.Apply {
		resp.Applied = script.ApplyToStore(s.store, doc)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFrameTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.library.Frames(r.URL.Query().Get("category")))
}

func (s *Server) handleSkeletonTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.library.Skeletons())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrNoRepository)
		return
	}
	v := r.URL.Query()
	q := storage.SearchQuery{
		Text:       v.Get("q"),
		SkeletonID: v.Get("skeleton"),
		Unit:       v.Get("unit"),
		UnitMatch:  s.store.UnitMatch(),
		Fields:     v["field"],
	}
	var err error
	if q.Limit, err = intParam(v.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("limit: %w", err))
		return
	}
	if q.Offset, err = intParam(v.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("offset: %w", err))
		return
	}
	res, err := s.repo.Search(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if res == nil {
		res = []storage.SearchResult{}
	}
	writeJSON(w, http.StatusOK, res)
}

// skeleton resolves {id} or answers 404.
func (s *Server) skeleton(w http.ResponseWriter, r *http.Request) (domain.Skeleton, bool) {
	id := r.PathValue("id")
	sk, ok := s.store.Skeleton(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("skeleton %q not found", id))
	}
	return sk, ok
}

// frame resolves {id} and {frameID} or answers 404.
func (s *Server) frame(w http.ResponseWriter, r *http.Request) (domain.Skeleton, domain.Frame, bool) {
	sk, ok := s.skeleton(w, r)
	if !ok {
		return sk, domain.Frame{}, false
	}
	fid := r.PathValue("frameID")
	f, ok := sk.Frame(fid)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %q", movement.ErrFrameNotFound, fid))
	}
	return sk, f, ok
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return false
	}
	return true
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
