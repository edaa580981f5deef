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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vidskel/internal/domain"
)

// language=SQL
// dialect=SQLite
const insertRevisionSQL = `INSERT INTO revisions(skeleton_id, ts, label, blob) VALUES (?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectRevisionSQL = `SELECT id, skeleton_id, ts, label, blob FROM revisions WHERE id = ?`

// language=SQL
// dialect=SQLite
const listRevisionsSQL = `SELECT id, skeleton_id, ts, label, blob FROM revisions WHERE skeleton_id = ? ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneRevisionsSQL = `DELETE FROM revisions WHERE skeleton_id = ? AND id NOT IN (
	SELECT id FROM revisions WHERE skeleton_id = ? ORDER BY ts DESC, id DESC LIMIT ?
)`

// ErrRevisionNotFound is returned by Revision for an unknown id.
var ErrRevisionNotFound = errors.New("revision not found")

// Revision is one saved state of a skeleton. Blob is the skeleton as JSON.
type Revision struct {
	ID         int64     `json:"id"`
	SkeletonID string    `json:"skeletonId"`
	TS         time.Time `json:"ts"`
	Label      string    `json:"label,omitempty"`
	Blob       []byte    `json:"-"`
}

// Skeleton decodes the stored skeleton.
func (r Revision) Skeleton() (domain.Skeleton, error) {
	var sk domain.Skeleton
	if err := json.Unmarshal(r.Blob, &sk); err != nil {
		return domain.Skeleton{}, fmt.Errorf("decode revision %d: %w", r.ID, err)
	}
	return sk, nil
}

// SaveRevision stores sk as a new revision and returns its id.
func SaveRevision(ctx context.Context, wh *WorkspaceHandle, sk domain.Skeleton, label string, ts time.Time) (int64, error) {
	if wh == nil {
		return 0, errors.New("nil WorkspaceHandle")
	}
	if sk.ID == "" {
		return 0, errors.New("skeleton id is required")
	}
	blob, err := json.Marshal(sk)
	if err != nil {
		return 0, fmt.Errorf("encode skeleton: %w", err)
	}
	db, err := InitOrOpenIndex(wh.Root)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	res, err := db.ExecContext(ctx, insertRevisionSQL, sk.ID, ts.UTC().Format(time.RFC3339Nano), label, blob)
	if err != nil {
		return 0, fmt.Errorf("insert revision: %w", err)
	}
	return res.LastInsertId()
}

// GetRevision loads one revision by id.
func GetRevision(ctx context.Context, wh *WorkspaceHandle, id int64) (Revision, error) {
	if wh == nil {
		return Revision{}, errors.New("nil WorkspaceHandle")
	}
	db, err := InitOrOpenIndex(wh.Root)
	if err != nil {
		return Revision{}, err
	}
	defer func() { _ = db.Close() }()
	rev, err := scanRevision(db.QueryRowContext(ctx, selectRevisionSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, ErrRevisionNotFound
	}
	return rev, err
}

// ListRevisions returns up to limit most recent revisions of a skeleton, newest first.
func ListRevisions(ctx context.Context, wh *WorkspaceHandle, skeletonID string, limit int) ([]Revision, error) {
	if wh == nil {
		return nil, errors.New("nil WorkspaceHandle")
	}
	if limit <= 0 {
		limit = 50
	}
	db, err := InitOrOpenIndex(wh.Root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	rows, err := db.QueryContext(ctx, listRevisionsSQL, skeletonID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Revision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

// PruneRevisions keeps the newest keepLast revisions of a skeleton and deletes the rest.
func PruneRevisions(ctx context.Context, wh *WorkspaceHandle, skeletonID string, keepLast int) (int64, error) {
	if wh == nil {
		return 0, errors.New("nil WorkspaceHandle")
	}
	if keepLast <= 0 {
		return 0, nil
	}
	db, err := InitOrOpenIndex(wh.Root)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	res, err := db.ExecContext(ctx, pruneRevisionsSQL, skeletonID, skeletonID, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRevision(s rowScanner) (Revision, error) {
	var rev Revision
	var tsStr string
	if err := s.Scan(&rev.ID, &rev.SkeletonID, &tsStr, &rev.Label, &rev.Blob); err != nil {
		return Revision{}, err
	}
	// a bad timestamp leaves TS zero; the blob is still usable
	rev.TS, _ = time.Parse(time.RFC3339Nano, tsStr)
	return rev, nil
}
