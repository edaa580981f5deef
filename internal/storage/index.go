/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidskel/internal/domain"
	applog "vidskel/internal/log"
	"vidskel/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// IndexDirName holds per-workspace index data under the workspace root.
	IndexDirName  = ".vsk"
	IndexFileName = "index.sqlite"

	// schemaVersion tracks the SQLite schema. Bump it together with a new step in runMigrations.
	schemaVersion = 2
)

// IndexPath returns the path of the workspace's index database.
func IndexPath(root string) string {
	return filepath.Join(root, IndexDirName, IndexFileName)
}

// InitOrOpenIndex ensures .vsk/index.sqlite exists, opens it in WAL mode and
// brings its schema up to date. Callers close the returned *sql.DB.
func InitOrOpenIndex(root string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_init").With(
		slog.String("root", root),
	)
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, IndexDirName), 0o755); err != nil {
		l.Error("create .vsk dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create .vsk dir: %w", err)
	}

	path := IndexPath(root)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("index ready", slog.String("path", path))
	return db, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// keep the stored schema so runMigrations can step it forward
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema steps up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			stmts = []string{
				`CREATE INDEX IF NOT EXISTS idx_frames_unit ON frames(skeleton_id, unit);`,
			}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}

// ensureIndexSchema creates the frame search tables and the revision history.
func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		// One row per searchable frame field.
		`CREATE TABLE IF NOT EXISTS frames (
			doc_id      INTEGER PRIMARY KEY,
			skeleton_id TEXT NOT NULL,
			frame_id    TEXT NOT NULL,
			unit        TEXT NOT NULL,
			field       TEXT NOT NULL,
			text        TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_frames_frame ON frames(skeleton_id, frame_id);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_frames USING fts5(
			text,
			content='frames',
			content_rowid='doc_id',
			tokenize = 'unicode61'
		);`,

		// Skeleton revisions are history, not derived data; rebuilds keep them.
		`CREATE TABLE IF NOT EXISTS revisions (
			id          INTEGER PRIMARY KEY,
			skeleton_id TEXT    NOT NULL,
			ts          TEXT    NOT NULL,
			label       TEXT    NOT NULL DEFAULT '',
			blob        BLOB    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_revisions_skeleton_ts ON revisions(skeleton_id, ts);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS frames_ai AFTER INSERT ON frames BEGIN
			INSERT INTO fts_frames(rowid, text) VALUES (new.doc_id, new.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS frames_ad AFTER DELETE ON frames BEGIN
			INSERT INTO fts_frames(fts_frames, rowid, text) VALUES ('delete', old.doc_id, old.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS frames_au AFTER UPDATE OF text ON frames BEGIN
			INSERT INTO fts_frames(fts_frames, rowid, text) VALUES ('delete', old.doc_id, old.text);
			INSERT INTO fts_frames(rowid, text) VALUES (new.doc_id, new.text);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	return nil
}

// DetectAndRebuildIndex rebuilds the index when it cannot be opened or fails
// an integrity check. It reports whether a rebuild happened.
func DetectAndRebuildIndex(ctx context.Context, root string, ws domain.Workspace) (bool, error) {
	path := IndexPath(root)
	db, err := InitOrOpenIndex(root)
	if err != nil {
		backupIndexFile(path)
		_ = os.Remove(path)
		if rbErr := RebuildIndex(ctx, root, ws); rbErr != nil {
			return false, fmt.Errorf("rebuild after open failure: %w (open err: %v)", rbErr, err)
		}
		return true, nil
	}
	needs := false
	var chk string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil || !strings.Contains(strings.ToLower(chk), "ok") {
		needs = true
	}
	if !needs {
		if _, err := db.ExecContext(ctx, `SELECT 1 FROM frames LIMIT 1;`); err != nil {
			needs = true
		}
	}
	_ = db.Close()
	if !needs {
		return false, nil
	}
	backupIndexFile(path)
	_ = os.Remove(path)
	if err := RebuildIndex(ctx, root, ws); err != nil {
		return false, err
	}
	return true, nil
}

// backupIndexFile copies the index into .vsk/backups with a timestamp.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), "backups")
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}

// BuildIndexIfEmpty fills the frame search table from ws when it has no rows.
func BuildIndexIfEmpty(ctx context.Context, root string, ws domain.Workspace) error {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return err
	}
	defer db.Close()
	var cnt int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM frames;").Scan(&cnt); err != nil {
		return fmt.Errorf("check frames count: %w", err)
	}
	if cnt > 0 {
		return nil
	}
	return rebuildFramesFromWorkspace(ctx, db, ws)
}

// UpdateIndex replaces the frame search rows with the content of ws.
func UpdateIndex(ctx context.Context, root string, ws domain.Workspace) error {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return err
	}
	defer db.Close()
	return rebuildFramesFromWorkspace(ctx, db, ws)
}

// RebuildIndex drops and recreates the frame search tables, then refills them
// from ws. Revisions and meta/version are preserved.
func RebuildIndex(ctx context.Context, root string, ws domain.Workspace) error {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return err
	}
	defer db.Close()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	drops := []string{
		"DROP TRIGGER IF EXISTS frames_ai;",
		"DROP TRIGGER IF EXISTS frames_ad;",
		"DROP TRIGGER IF EXISTS frames_au;",
		"DROP TABLE IF EXISTS fts_frames;",
		"DROP TABLE IF EXISTS frames;",
	}
	for _, q := range drops {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("drop schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("drop commit: %w", err)
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_frames_unit ON frames(skeleton_id, unit);`); err != nil {
		return fmt.Errorf("recreate unit index: %w", err)
	}
	return rebuildFramesFromWorkspace(ctx, db, ws)
}

// Searchable frame fields, stored in frames.field.
const (
	FieldName    = "name"
	FieldContent = "content"
	FieldScript  = "script"
	FieldTone    = "tone"
	FieldFilter  = "filter"
)

// FrameText is one non-empty searchable field of a frame.
type FrameText struct {
	SkeletonID string
	FrameID    string
	Unit       string
	Field      string
	Text       string
}

// FrameTexts flattens ws into the rows the search tables hold.
func FrameTexts(ws domain.Workspace) []FrameText {
	rows := make([]FrameText, 0, 64)
	for _, sk := range ws.Skeletons {
		for _, f := range sk.Frames {
			add := func(field, text string) {
				if s := strings.TrimSpace(text); s != "" {
					rows = append(rows, FrameText{SkeletonID: sk.ID, FrameID: f.ID, Unit: f.UnitType, Field: field, Text: s})
				}
			}
			add(FieldName, f.Name)
			add(FieldContent, f.Content)
			add(FieldScript, f.Script)
			add(FieldTone, f.Tone)
			add(FieldFilter, f.Filter)
		}
	}
	return rows
}

// rebuildFramesFromWorkspace replaces the frames table content in one transaction.
func rebuildFramesFromWorkspace(ctx context.Context, db *sql.DB, ws domain.Workspace) error {
	rows := FrameTexts(ws)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM frames;"); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear frames: %w", err)
	}
	ins, err := tx.PrepareContext(ctx, "INSERT INTO frames(skeleton_id, frame_id, unit, field, text) VALUES(?,?,?,?,?);")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()
	for _, r := range rows {
		if _, err := ins.ExecContext(ctx, r.SkeletonID, r.FrameID, r.Unit, r.Field, r.Text); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert frame: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
