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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"vidskel/internal/domain"
	"vidskel/internal/storage"
)

// Repository persists the workspace behind the server.
type Repository interface {
	Ping(ctx context.Context) error
	Load(ctx context.Context) (domain.Workspace, error)
	Save(ctx context.Context, ws domain.Workspace) error
	Search(ctx context.Context, q storage.SearchQuery) ([]storage.SearchResult, error)
}

// FileRepository keeps the workspace in a directory on disk and its search
// index in the workspace's SQLite file.
type FileRepository struct {
	mu sync.Mutex
	wh *storage.WorkspaceHandle
}

// OpenFileRepository opens the workspace at root, creating an empty one when
// no manifest or backup exists yet.
func OpenFileRepository(ctx context.Context, root string) (*FileRepository, error) {
	wh, err := storage.Open(root)
	if err != nil {
		if !isFresh(root) {
			return nil, err
		}
		wh, err = storage.InitWorkspace(root, domain.Workspace{Version: domain.WorkspaceVersion})
		if err != nil {
			return nil, fmt.Errorf("init workspace: %w", err)
		}
	}
	if _, err := storage.DetectAndRebuildIndex(ctx, wh.Root, wh.Workspace); err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	return &FileRepository{wh: wh}, nil
}

// isFresh reports whether root holds neither a manifest nor any backup.
func isFresh(root string) bool {
	if _, err := os.Stat(filepath.Join(root, storage.ManifestFileName)); !errors.Is(err, os.ErrNotExist) {
		return false
	}
	backups, _ := storage.Backups(root)
	return len(backups) == 0
}

// Root returns the workspace directory.
func (r *FileRepository) Root() string { return r.wh.Root }

func (r *FileRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(r.wh.ManifestPath); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	return nil
}

func (r *FileRepository) Load(ctx context.Context) (domain.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wh.Workspace, ctx.Err()
}

// Save writes the manifest and refreshes the search index.
func (r *FileRepository) Save(ctx context.Context, ws domain.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wh.Workspace = ws
	if err := storage.Save(r.wh); err != nil {
		return err
	}
	return storage.UpdateIndex(ctx, r.wh.Root, ws)
}

func (r *FileRepository) Search(ctx context.Context, q storage.SearchQuery) ([]storage.SearchResult, error) {
	return storage.Search(ctx, r.wh.Root, q)
}

// MemoryRepository keeps the last saved workspace in memory. Search scans it
// without ranking.
type MemoryRepository struct {
	mu sync.Mutex
	ws domain.Workspace
	// Err, when set, is returned by Ping and Save.
	Err error
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	return ctx.Err()
}

func (r *MemoryRepository) Load(context.Context) (domain.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ws, nil
}

func (r *MemoryRepository) Save(_ context.Context, ws domain.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.ws = ws
	return nil
}

func (r *MemoryRepository) Search(_ context.Context, q storage.SearchQuery) ([]storage.SearchResult, error) {
	r.mu.Lock()
	ws := r.ws
	r.mu.Unlock()
	return scanTexts(storage.FrameTexts(ws), q), nil
}

// ErrNoRepository is returned by search when the server runs without persistence.
var ErrNoRepository = errors.New("no repository configured")

// scanTexts applies q to rows by case-insensitive substring match. Units
// compare under q.UnitMatch.
func scanTexts(rows []storage.FrameText, q storage.SearchQuery) []storage.SearchResult {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	skip := max(q.Offset, 0)
	var out []storage.SearchResult
	for _, r := range rows {
		switch {
		case text != "" && !strings.Contains(strings.ToLower(r.Text), text):
			continue
		case q.SkeletonID != "" && r.SkeletonID != q.SkeletonID:
			continue
		case q.Unit != "" && !q.UnitMatch.Equal(r.Unit, strings.TrimSpace(q.Unit)):
			continue
		case len(q.Fields) > 0 && !slices.Contains(q.Fields, r.Field):
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, storage.SearchResult{SkeletonID: r.SkeletonID, FrameID: r.FrameID, Unit: r.Unit, Field: r.Field, Snippet: r.Text})
		if len(out) == limit {
			break
		}
	}
	return out
}
