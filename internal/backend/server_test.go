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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"vidskel/internal/dnd"
	"vidskel/internal/domain"
	"vidskel/internal/movement"
	"vidskel/internal/storage"
	"vidskel/internal/store"
	"vidskel/internal/undo"
)

func seedSkeleton() domain.Skeleton {
	return domain.Skeleton{
		ID:          "sk",
		Name:        "Launch teaser",
		Units:       []string{"Hook", "Content", "Outro"},
		ContentType: domain.ContentShort,
		Frames: []domain.Frame{
			{ID: "f1", Name: "Question", UnitType: "Hook"},
			{ID: "f2", Name: "Stat", UnitType: "Hook"},
			{ID: "f3", Name: "Demo", UnitType: "Content", Content: "Show the app"},
		},
	}
}

type fixture struct {
	st   *store.Store
	repo *MemoryRepository
	srv  *Server
	h    http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.New(store.WithHistory(undo.NewHistory(undo.Config{})))
	st.AddSkeleton(seedSkeleton())
	repo := &MemoryRepository{}
	n := 0
	srv, err := NewServer(st,
		WithRepository(repo),
		WithSettleDelay(0),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("new-%d", n) }),
	)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return &fixture{st: st, repo: repo, srv: srv, h: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func frameIDs(t *testing.T, ws domain.Workspace, id string) []string {
	t.Helper()
	for _, sk := range ws.Skeletons {
		if sk.ID == id {
			return sk.FrameIDs()
		}
	}
	t.Fatalf("skeleton %q not in workspace", id)
	return nil
}

func TestMoveEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/skeletons/sk/frames/f1/move", MoveRequest{Direction: "down"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if res := decodeBody[movement.Result](t, rec); !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	ws, _ := f.repo.Load(context.Background())
	if diff := cmp.Diff([]string{"f2", "f1", "f3"}, frameIDs(t, ws, "sk")); diff != "" {
		t.Fatalf("persisted order (-want +got):\n%s", diff)
	}

	rec = f.do(t, http.MethodPost, "/api/skeletons/sk/frames/f2/move", MoveRequest{Direction: "up"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("illegal move status = %d", rec.Code)
	}
	if res := decodeBody[movement.Result](t, rec); res.Success || res.Message == "" {
		t.Fatalf("expected failure with message, got %+v", res)
	}

	cases := []struct {
		path string
		dir  string
		want int
	}{
		{"/api/skeletons/sk/frames/f1/move", "sideways", http.StatusBadRequest},
		{"/api/skeletons/sk/frames/nope/move", "up", http.StatusNotFound},
		{"/api/skeletons/missing/frames/f1/move", "up", http.StatusNotFound},
	}
	for _, tc := range cases {
		if rec := f.do(t, http.MethodPost, tc.path, MoveRequest{Direction: tc.dir}); rec.Code != tc.want {
			t.Errorf("%s %s: status %d, want %d", tc.path, tc.dir, rec.Code, tc.want)
		}
	}
}

func TestAvailableMoves(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/skeletons/sk/frames/f1/moves", nil)
	got := decodeBody[map[movement.Direction]bool](t, rec)
	want := map[movement.Direction]bool{movement.Up: false, movement.Down: true, movement.Left: false, movement.Right: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("moves (-want +got):\n%s", diff)
	}
}

func TestCreateSkeletonAndAddFrame(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/skeletons", CreateSkeletonRequest{Template: "short-classic", Name: "Promo"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body)
	}
	sk := decodeBody[domain.Skeleton](t, rec)
	if sk.Name != "Promo" || len(sk.Frames) != 3 || !sk.Frames[0].IsTemplateExample {
		t.Fatalf("unexpected skeleton: %+v", sk)
	}

	rec = f.do(t, http.MethodPost, "/api/skeletons/"+sk.ID+"/frames", AddFrameRequest{Template: "hook-stat", Unit: "Hook"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add frame status = %d body=%s", rec.Code, rec.Body)
	}
	fr := decodeBody[domain.Frame](t, rec)
	got, _ := f.st.Skeleton(sk.ID)
	if last := got.Frames[len(got.Frames)-1]; last.ID != fr.ID || last.UnitType != "Hook" {
		t.Fatalf("frame not appended: %+v", got.Frames)
	}

	if rec := f.do(t, http.MethodPost, "/api/skeletons", CreateSkeletonRequest{Template: "nope"}); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown template status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/skeletons", CreateSkeletonRequest{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty request status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/skeletons/sk/frames", AddFrameRequest{Template: "hook-stat", Unit: "Bridge"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown unit status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/skeletons", CreateSkeletonRequest{Name: "Blank", Units: []string{"Intro"}})
	blank := decodeBody[domain.Skeleton](t, rec)
	if blank.ContentType != domain.ContentShort || len(blank.Frames) != 0 {
		t.Fatalf("custom skeleton: %+v", blank)
	}
	list := decodeBody[SkeletonList](t, f.do(t, http.MethodGet, "/api/skeletons", nil))
	if len(list.Skeletons) != 3 {
		t.Fatalf("expected 3 skeletons, got %d", len(list.Skeletons))
	}
}

func TestDropEndpoint(t *testing.T) {
	f := newFixture(t)
	d := dnd.Drop{
		Payload: dnd.Payload{Kind: dnd.PayloadTone, Value: "playful"},
		Over:    &dnd.Target{ID: "tone-f3", Kind: dnd.TargetTone, FrameID: "f3"},
	}
	rec := f.do(t, http.MethodPost, "/api/skeletons/sk/drop", d)
	out := decodeBody[dnd.Outcome](t, rec)
	if out.Path != dnd.PathTone || !out.Applied {
		t.Fatalf("outcome = %+v", out)
	}
	sk, _ := f.st.Skeleton("sk")
	if sk.Frames[2].Tone != "playful" {
		t.Fatalf("tone not applied: %+v", sk.Frames[2])
	}

	d = dnd.Drop{Payload: dnd.Payload{Kind: dnd.PayloadFrame, FrameID: "f1"}}
	if out := decodeBody[dnd.Outcome](t, f.do(t, http.MethodPost, "/api/skeletons/sk/drop", d)); out.Path != dnd.PathNone || out.Applied {
		t.Fatalf("drop outside targets = %+v", out)
	}
}

func TestUndoRedoEndpoints(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/skeletons/sk/frames/f3/move", MoveRequest{Direction: "left"})

	res := decodeBody[HistoryResponse](t, f.do(t, http.MethodPost, "/api/skeletons/sk/undo", nil))
	if !res.Changed {
		t.Fatalf("undo reported no change")
	}
	if diff := cmp.Diff(seedSkeleton(), res.Skeleton); diff != "" {
		t.Fatalf("undo (-want +got):\n%s", diff)
	}
	res = decodeBody[HistoryResponse](t, f.do(t, http.MethodPost, "/api/skeletons/sk/redo", nil))
	if !res.Changed || res.Skeleton.Frames[2].UnitType != "Hook" {
		t.Fatalf("redo = %+v", res)
	}
}

func TestPatchFrameIsOneChange(t *testing.T) {
	f := newFixture(t)
	before, _ := f.st.Skeleton("sk")
	var changes []store.Change
	f.st.Subscribe(func(c store.Change) { changes = append(changes, c) })

	content, script, tone, filter, tr := "New take", "VO: hi", "calm", "warm", "smooth"
	rec := f.do(t, http.MethodPatch, "/api/skeletons/sk/frames/f1",
		FramePatch{Content: &content, Script: &script, Tone: &tone, Filter: &filter, Transition: &tr})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d", rec.Code)
	}
	if len(changes) != 1 || changes[0].Field != "content,script,tone,filter,transition" {
		t.Fatalf("changes = %+v", changes)
	}
	if !f.st.Undo("sk") {
		t.Fatalf("undo should succeed")
	}
	after, _ := f.st.Skeleton("sk")
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("one undo must revert the patch (-want +got):\n%s", diff)
	}
}

func TestPatchFrameUnitsAndContext(t *testing.T) {
	f := newFixture(t)
	tone, tr := "calm", "smooth"
	rec := f.do(t, http.MethodPatch, "/api/skeletons/sk/frames/f1", FramePatch{Tone: &tone, Transition: &tr})
	fr := decodeBody[domain.Frame](t, rec)
	if fr.Tone != "calm" || fr.Transition != domain.TransitionSmooth {
		t.Fatalf("patched frame = %+v", fr)
	}
	bad := "spin"
	if rec := f.do(t, http.MethodPatch, "/api/skeletons/sk/frames/f1", FramePatch{Transition: &bad}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad transition status = %d", rec.Code)
	}

	f.do(t, http.MethodPut, "/api/skeletons/sk/units", UnitsRequest{Units: []string{"Content", "Outro"}})
	orphans := decodeBody[[]domain.Frame](t, f.do(t, http.MethodGet, "/api/skeletons/sk/orphans", nil))
	if len(orphans) != 2 {
		t.Fatalf("expected 2 orphans, got %+v", orphans)
	}
	rec = f.do(t, http.MethodPost, "/api/skeletons/sk/units/rename", RenameUnitRequest{From: "Content", To: "Body"})
	if sk := decodeBody[domain.Skeleton](t, rec); sk.Units[0] != "Body" || sk.Frames[2].UnitType != "Body" {
		t.Fatalf("rename = %+v", sk)
	}

	vc := domain.VideoContext{Topic: "robots", DurationSeconds: 45}
	f.do(t, http.MethodPut, "/api/skeletons/later/context", vc)
	if got := decodeBody[domain.VideoContext](t, f.do(t, http.MethodGet, "/api/skeletons/later/context", nil)); got != vc {
		t.Fatalf("context = %+v", got)
	}

	if rec := f.do(t, http.MethodDelete, "/api/skeletons/sk/frames/f2", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete frame status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/api/skeletons/sk", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete skeleton status = %d", rec.Code)
	}
	ws, _ := f.repo.Load(context.Background())
	if len(ws.Skeletons) != 0 || ws.VideoContexts["later"].Topic != "robots" {
		t.Fatalf("persisted workspace = %+v", ws)
	}
}

func TestScriptEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/skeletons/sk/script", ScriptRequest{Apply: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	res := decodeBody[ScriptResponse](t, rec)
	if res.Applied != 3 || !strings.Contains(res.Text, "## Hook") {
		t.Fatalf("script = %+v", res)
	}
	sk, _ := f.st.Skeleton("sk")
	if sk.Frames[2].Script != "VO: Show the app" {
		t.Fatalf("script not applied: %q", sk.Frames[2].Script)
	}

	f.st.AddSkeleton(domain.Skeleton{ID: "empty", Name: "Empty", Units: []string{"Hook"}})
	if rec := f.do(t, http.MethodPost, "/api/skeletons/empty/script", nil); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty skeleton status = %d", rec.Code)
	}
}

func TestSearchAndTemplates(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/skeletons/sk/activate", nil)

	res := decodeBody[[]storage.SearchResult](t, f.do(t, http.MethodGet, "/api/search?q=app&field=content", nil))
	want := []storage.SearchResult{{SkeletonID: "sk", FrameID: "f3", Unit: "Content", Field: storage.FieldContent, Snippet: "Show the app"}}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("search (-want +got):\n%s", diff)
	}
	if rec := f.do(t, http.MethodGet, "/api/search?limit=x", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rec.Code)
	}

	hooks := decodeBody[[]domain.FrameTemplate](t, f.do(t, http.MethodGet, "/api/templates/frames?category=hook", nil))
	if len(hooks) == 0 {
		t.Fatalf("no hook templates")
	}
	for _, h := range hooks {
		if h.Category != "hook" {
			t.Fatalf("category filter leaked %+v", h)
		}
	}
	if sks := decodeBody[[]domain.SkeletonTemplate](t, f.do(t, http.MethodGet, "/api/templates/skeletons", nil)); len(sks) == 0 {
		t.Fatalf("no skeleton templates")
	}
}

func TestHealthReadyVersion(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}
	f.repo.Err = errors.New("disk gone")
	if rec := f.do(t, http.MethodGet, "/readyz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing repo = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/version", nil); rec.Body.Len() == 0 {
		t.Fatalf("empty version")
	}
}

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	f := newFixture(t)
	f.repo.Err = errors.New("read-only")
	rec := f.do(t, http.MethodPost, "/api/skeletons/sk/frames/f1/move", MoveRequest{Direction: "down"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	f.repo.Err = nil
	// next mutation retries the save
	f.do(t, http.MethodPost, "/api/skeletons/sk/activate", nil)
	ws, _ := f.repo.Load(context.Background())
	if diff := cmp.Diff([]string{"f2", "f1", "f3"}, frameIDs(t, ws, "sk")); diff != "" {
		t.Fatalf("retry did not persist (-want +got):\n%s", diff)
	}
}

func TestClientAgainstServer(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.h)
	defer ts.Close()
	c := NewClient(ts.URL+"/", time.Second)
	ctx := context.Background()

	if err := c.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	res, err := c.MoveFrame(ctx, "sk", "f1", movement.Up)
	if err != nil || res.Success {
		t.Fatalf("illegal move via client = %+v, %v", res, err)
	}
	if res, err = c.MoveFrame(ctx, "sk", "f1", movement.Right); err != nil || !res.Success {
		t.Fatalf("legal move via client = %+v, %v", res, err)
	}
	h, err := c.Undo(ctx, "sk")
	if err != nil || !h.Changed {
		t.Fatalf("Undo = %+v, %v", h, err)
	}
	_, err = c.GetSkeleton(ctx, "missing")
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound || se.Msg == "" {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
	list, err := c.ListSkeletons(ctx)
	if err != nil || len(list.Skeletons) != 1 {
		t.Fatalf("ListSkeletons = %+v, %v", list, err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, ln, time.Second) }()

	c := NewClient("http://"+ln.Addr().String(), time.Second)
	if _, err := c.Version(ctx); err != nil {
		t.Fatalf("Version: %v", err)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not stop")
	}
}
