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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"vidskel/internal/domain"
	"vidskel/internal/storage"
)

func sampleWorkspace() domain.Workspace {
	return domain.Workspace{
		Version:          domain.WorkspaceVersion,
		ActiveSkeletonID: "sk",
		Skeletons:        []domain.Skeleton{seedSkeleton()},
		VideoContexts:    map[string]domain.VideoContext{"sk": {Topic: "launch"}, "orphaned": {Goal: "keep me"}},
	}
}

func TestFileRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "ws")
	repo, err := OpenFileRepository(ctx, root)
	if err != nil {
		t.Fatalf("OpenFileRepository: %v", err)
	}
	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	ws := sampleWorkspace()
	if err := repo.Save(ctx, ws); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := OpenFileRepository(ctx, root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(ws, got); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}

	res, err := reopened.Search(ctx, storage.SearchQuery{Text: "Demo"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].FrameID != "f3" || res[0].Field != storage.FieldName {
		t.Fatalf("search = %+v", res)
	}
}

func TestFileRepositoryRefusesCorruptManifest(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, storage.ManifestFileName), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenFileRepository(context.Background(), root); err == nil {
		t.Fatalf("a corrupt manifest without backups must not be replaced")
	}
}

func TestMemoryRepositorySearchFilters(t *testing.T) {
	repo := &MemoryRepository{}
	ws := sampleWorkspace()
	ws.Skeletons[0].Frames[0].Tone = "playful"
	_ = repo.Save(context.Background(), ws)

	res, _ := repo.Search(context.Background(), storage.SearchQuery{Unit: "hook"})
	if len(res) != 0 {
		t.Fatalf("exact unit filter = %+v", res)
	}
	res, _ = repo.Search(context.Background(), storage.SearchQuery{Unit: "hook", UnitMatch: domain.UnitMatchFold})
	if len(res) != 3 {
		t.Fatalf("unit filter = %+v", res)
	}
	res, _ = repo.Search(context.Background(), storage.SearchQuery{Unit: "Hook", Offset: 1, Limit: 1})
	if len(res) != 1 || res[0].Field != storage.FieldTone {
		t.Fatalf("paged = %+v", res)
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := parseVersion("migrations/001_init.sql"); err != nil || v != 1 {
		t.Fatalf("parseVersion = %d, %v", v, err)
	}
	for _, bad := range []string{"init.sql", "x_init.sql"} {
		if _, err := parseVersion(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

// openPGForTest connects to VSK_DATABASE_URL and skips when it is unset or
// unreachable.
func openPGForTest(t *testing.T) *PGRepository {
	t.Helper()
	dsn := os.Getenv("VSK_DATABASE_URL")
	if dsn == "" {
		t.Skip("VSK_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repo, err := OpenPG(ctx, dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestPGRepositoryRoundTripAndSearch(t *testing.T) {
	repo := openPGForTest(t)
	ctx := context.Background()
	ws := sampleWorkspace()
	if err := repo.Save(ctx, ws); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(ws, got); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}

	res, err := repo.Search(ctx, storage.SearchQuery{Text: "app", Fields: []string{storage.FieldContent}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].FrameID != "f3" || res[0].Snippet != "Show the [app]" {
		t.Fatalf("search = %+v", res)
	}

	// a second open must not re-apply migrations
	again, err := OpenPG(ctx, os.Getenv("VSK_DATABASE_URL"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = again.Close()
}
