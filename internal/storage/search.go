/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"vidskel/internal/domain"
)

// SearchQuery describes a frame search.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT).
// SkeletonID and Unit narrow the result; Fields restricts to frame fields
// such as name, content, script, tone or filter. Unit compares under UnitMatch.
// Limit/Offset implement pagination; defaults apply when zero.
type SearchQuery struct {
	Text       string
	SkeletonID string
	Unit       string
	// UnitMatch decides how Unit is compared; empty means exact.
	UnitMatch  domain.UnitMatch
	Fields     []string
	Limit      int
	Offset     int
}

// SearchResult is a single matching frame field.
// Snippet marks the match with [ ] when Text was given.
type SearchResult struct {
	SkeletonID string `json:"skeletonId"`
	FrameID    string `json:"frameId"`
	Unit       string `json:"unit"`
	Field      string `json:"field"`
	Snippet    string `json:"snippet"`
}

// Search runs q against the workspace index at root.
// Without Text it falls back to a plain scan with the filters applied.
func Search(ctx context.Context, root string, q SearchQuery) ([]SearchResult, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is required")
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return searchDB(ctx, db, q)
}

func searchDB(ctx context.Context, db *sql.DB, q SearchQuery) ([]SearchResult, error) {
	var args []any
	var sb strings.Builder
	if strings.TrimSpace(q.Text) != "" {
		sb.WriteString("SELECT f.skeleton_id, f.frame_id, f.unit, f.field, snippet(fts_frames, 0, '[', ']', '…', 10)\n")
		sb.WriteString("FROM fts_frames JOIN frames f ON fts_frames.rowid = f.doc_id\n")
		sb.WriteString("WHERE fts_frames MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT f.skeleton_id, f.frame_id, f.unit, f.field, f.text\n")
		sb.WriteString("FROM frames f\nWHERE 1=1\n")
	}
	if s := strings.TrimSpace(q.SkeletonID); s != "" {
		sb.WriteString(" AND f.skeleton_id = ?\n")
		args = append(args, s)
	}
	if s := strings.TrimSpace(q.Unit); s != "" {
		if q.UnitMatch == domain.UnitMatchFold {
			sb.WriteString(" AND lower(f.unit) = lower(?)\n")
		} else {
			sb.WriteString(" AND f.unit = ?\n")
		}
		args = append(args, s)
	}
	if len(q.Fields) > 0 {
		sb.WriteString(" AND f.field IN (" + placeholders(len(q.Fields)) + ")\n")
		for _, fl := range q.Fields {
			args = append(args, fl)
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	sb.WriteString("ORDER BY f.skeleton_id, f.doc_id\n")
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, q.Offset)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var sn sql.NullString
		if err := rows.Scan(&r.SkeletonID, &r.FrameID, &r.Unit, &r.Field, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Snippet = sn.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
