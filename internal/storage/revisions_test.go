/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestRevisionsCRUD(t *testing.T) {
	root := t.TempDir()
	wh := &WorkspaceHandle{Root: root, ManifestPath: filepath.Join(root, ManifestFileName)}
	ctx := context.Background()
	sk := sampleWorkspace().Skeletons[0]
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	id, err := SaveRevision(ctx, wh, sk, "initial", base)
	if err != nil {
		t.Fatalf("SaveRevision: %v", err)
	}
	rev, err := GetRevision(ctx, wh, id)
	if err != nil {
		t.Fatalf("GetRevision: %v", err)
	}
	if rev.Label != "initial" || !rev.TS.Equal(base) {
		t.Fatalf("unexpected revision: %+v", rev)
	}
	got, err := rev.Skeleton()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(sk, got); diff != "" {
		t.Fatalf("skeleton (-want +got):\n%s", diff)
	}

	for i := 0; i < 5; i++ {
		sk.Name = string(rune('a' + i))
		if _, err := SaveRevision(ctx, wh, sk, "", base.Add(time.Duration(i+1)*time.Minute)); err != nil {
			t.Fatalf("SaveRevision %d: %v", i, err)
		}
	}
	list, err := ListRevisions(ctx, wh, sk.ID, 10)
	if err != nil || len(list) != 6 {
		t.Fatalf("ListRevisions got %d err %v", len(list), err)
	}
	if newest, _ := list[0].Skeleton(); newest.Name != "e" {
		t.Fatalf("expected newest first, got %q", newest.Name)
	}

	n, err := PruneRevisions(ctx, wh, sk.ID, 3)
	if err != nil || n != 3 {
		t.Fatalf("PruneRevisions deleted %d err %v", n, err)
	}
	list, _ = ListRevisions(ctx, wh, sk.ID, 10)
	if len(list) != 3 {
		t.Fatalf("expected 3 after prune, got %d", len(list))
	}
	if _, err := GetRevision(ctx, wh, id); !errors.Is(err, ErrRevisionNotFound) {
		t.Fatalf("pruned revision should be gone, got %v", err)
	}
}

func TestRevisionsRequireHandle(t *testing.T) {
	ctx := context.Background()
	if _, err := SaveRevision(ctx, nil, sampleWorkspace().Skeletons[0], "", time.Now()); err == nil {
		t.Fatalf("expected error for nil handle")
	}
	if _, err := ListRevisions(ctx, nil, "x", 1); err == nil {
		t.Fatalf("expected error for nil handle")
	}
	if n, err := PruneRevisions(ctx, &WorkspaceHandle{Root: t.TempDir()}, "x", 0); err != nil || n != 0 {
		t.Fatalf("keepLast 0 is a no-op: %d %v", n, err)
	}
}
