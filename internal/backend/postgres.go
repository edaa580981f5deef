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
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"vidskel/internal/domain"
	applog "vidskel/internal/log"
	"vidskel/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PGRepository stores the workspace in PostgreSQL. Frame texts are kept in
// frame_docs with a generated tsvector for search.
type PGRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenPG connects to dsn, pings it and applies pending migrations.
func OpenPG(ctx context.Context, dsn string) (*PGRepository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database url is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	r := &PGRepository{db: db, log: applog.WithComponent("backend.pg")}
	if err := r.applyMigrations(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *PGRepository) Close() error { return r.db.Close() }

func (r *PGRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

// Load reads every skeleton in position order plus all video contexts.
func (r *PGRepository) Load(ctx context.Context) (domain.Workspace, error) {
	ws := domain.Workspace{Version: domain.WorkspaceVersion, Skeletons: []domain.Skeleton{}}
	err := r.db.QueryRowContext(ctx, `SELECT version, active_skeleton_id FROM workspace_meta WHERE id = 1`).
		Scan(&ws.Version, &ws.ActiveSkeletonID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ws, fmt.Errorf("select meta: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT doc FROM skeletons ORDER BY position, id`)
	if err != nil {
		return ws, fmt.Errorf("select skeletons: %w", err)
	}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			_ = rows.Close()
			return ws, err
		}
		var sk domain.Skeleton
		if err := json.Unmarshal(raw, &sk); err != nil {
			_ = rows.Close()
			return ws, fmt.Errorf("decode skeleton: %w", err)
		}
		ws.Skeletons = append(ws.Skeletons, sk)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return ws, err
	}

	crows, err := r.db.QueryContext(ctx, `SELECT skeleton_id, doc FROM video_contexts`)
	if err != nil {
		return ws, fmt.Errorf("select contexts: %w", err)
	}
	defer func() { _ = crows.Close() }()
	for crows.Next() {
		var (
			id  string
			raw []byte
			vc  domain.VideoContext
		)
		if err := crows.Scan(&id, &raw); err != nil {
			return ws, err
		}
		if err := json.Unmarshal(raw, &vc); err != nil {
			return ws, fmt.Errorf("decode context %s: %w", id, err)
		}
		if ws.VideoContexts == nil {
			ws.VideoContexts = map[string]domain.VideoContext{}
		}
		ws.VideoContexts[id] = vc
	}
	return ws, crows.Err()
}

// Save replaces the stored workspace in one transaction.
func (r *PGRepository) Save(ctx context.Context, ws domain.Workspace) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `INSERT INTO workspace_meta (id, version, active_skeleton_id, updated_at)
		VALUES (1, $1, $2, now())
		ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version, active_skeleton_id = EXCLUDED.active_skeleton_id, updated_at = now()`,
		domain.WorkspaceVersion, ws.ActiveSkeletonID); err != nil {
		return fmt.Errorf("upsert meta: %w", err)
	}
	// frame_docs cascade
	for _, q := range []string{`DELETE FROM skeletons`, `DELETE FROM video_contexts`} {
		if _, err = tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
	}
	for i, sk := range ws.Skeletons {
		doc, merr := json.Marshal(sk)
		if merr != nil {
			return fmt.Errorf("encode skeleton %s: %w", sk.ID, merr)
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO skeletons (id, position, name, content_type, doc) VALUES ($1, $2, $3, $4, $5)`,
			sk.ID, i, sk.Name, string(sk.ContentType), doc); err != nil {
			return fmt.Errorf("insert skeleton %s: %w", sk.ID, err)
		}
	}
	for id, vc := range ws.VideoContexts {
		doc, merr := json.Marshal(vc)
		if merr != nil {
			return fmt.Errorf("encode context %s: %w", id, merr)
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO video_contexts (skeleton_id, doc) VALUES ($1, $2)`, id, doc); err != nil {
			return fmt.Errorf("insert context %s: %w", id, err)
		}
	}
	for _, ft := range storage.FrameTexts(ws) {
		if _, err = tx.ExecContext(ctx, `INSERT INTO frame_docs (skeleton_id, frame_id, unit, field, raw_text) VALUES ($1, $2, $3, $4, $5)`,
			ft.SkeletonID, ft.FrameID, ft.Unit, ft.Field, ft.Text); err != nil {
			return fmt.Errorf("insert frame doc: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Search runs q over frame_docs with the same filters and snippet marks as the
// SQLite index.
func (r *PGRepository) Search(ctx context.Context, q storage.SearchQuery) ([]storage.SearchResult, error) {
	var (
		args []any
		b    strings.Builder
	)
	place := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if text := strings.TrimSpace(q.Text); text != "" {
		p := place(text)
		b.WriteString("SELECT d.skeleton_id, d.frame_id, d.unit, d.field, ")
		b.WriteString("COALESCE(ts_headline('simple', d.raw_text, plainto_tsquery('simple', " + p + "), 'StartSel=[, StopSel=], MaxFragments=1, MinWords=3, MaxWords=12'), '') ")
		b.WriteString("FROM frame_docs d WHERE d.search_vector @@ plainto_tsquery('simple', " + p + ") ")
	} else {
		b.WriteString("SELECT d.skeleton_id, d.frame_id, d.unit, d.field, d.raw_text FROM frame_docs d WHERE TRUE ")
	}
	if s := strings.TrimSpace(q.SkeletonID); s != "" {
		b.WriteString(" AND d.skeleton_id = " + place(s) + " ")
	}
	if s := strings.TrimSpace(q.Unit); s != "" {
		if q.UnitMatch == domain.UnitMatchFold {
			b.WriteString(" AND lower(d.unit) = lower(" + place(s) + ") ")
		} else {
			b.WriteString(" AND d.unit = " + place(s) + " ")
		}
	}
	if len(q.Fields) > 0 {
		b.WriteString(" AND d.field = ANY (" + place(q.Fields) + ") ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	b.WriteString(" ORDER BY d.skeleton_id, d.id ")
	b.WriteString(" LIMIT " + place(limit) + " OFFSET " + place(max(q.Offset, 0)))

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search pg query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []storage.SearchResult
	for rows.Next() {
		var res storage.SearchResult
		if err := rows.Scan(&res.SkeletonID, &res.FrameID, &res.Unit, &res.Field, &res.Snippet); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// applyMigrations applies embedded SQL migrations in filename order and
// records each one in schema_migrations.
func (r *PGRepository) applyMigrations(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := r.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(b)) == "" {
			continue
		}
		r.log.Info("applying migration", slog.String("file", fname))
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, version, fname); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", fname, err)
		}
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}
