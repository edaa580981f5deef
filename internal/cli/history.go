/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"vidskel/internal/crash"
	"vidskel/internal/storage"
)

func (a *app) historyCmd() *cobra.Command {
	var (
		skRef string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved revisions of a skeleton",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			defer crash.Recover(s.wh, s.st)
			sk, err := s.skeleton(skRef)
			if err != nil {
				return err
			}
			revs, err := storage.ListRevisions(cmd.Context(), s.wh, sk.ID, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIME\tLABEL")
			for _, r := range revs {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", r.ID, r.TS.Local().Format(time.DateTime), r.Label)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&skRef, "skeleton", "", "skeleton (default: active)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of revisions")
	return cmd
}

func (a *app) restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <revision>",
		Short: "Restore a skeleton to a saved revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("revision id: %w", err)
			}
			s, err := a.open()
			if err != nil {
				return err
			}
			defer crash.Recover(s.wh, s.st)
			rev, err := storage.GetRevision(cmd.Context(), s.wh, id)
			if err != nil {
				return err
			}
			old, err := rev.Skeleton()
			if err != nil {
				return err
			}
			if _, ok := s.st.Skeleton(old.ID); !ok {
				s.st.AddSkeleton(old)
			} else {
				// units first so the restored frames are not judged against the current unit list
				s.st.UpdateSkeletonUnits(old.ID, old.Units)
				s.st.UpdateFrameOrder(old.ID, old.Frames)
			}
			if err := s.commit(cmd.Context(), fmt.Sprintf("restore %d", id), old.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s to revision %d (%s)\n", old.Name, id, rev.TS.Local().Format(time.DateTime))
			return nil
		},
	}
}

func (a *app) searchCmd() *cobra.Command {
	var (
		q      storage.SearchQuery
		skRef  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search frame names, content, scripts and attributes",
		Long: `search queries the workspace full-text index. Text uses SQLite FTS5
syntax: terms, "quoted phrases", AND/OR/NOT. Without text, the filters alone
list matching fields.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			defer crash.Recover(s.wh, s.st)
			q.Text = firstArg(args)
			q.UnitMatch = s.st.UnitMatch()
			if skRef != "" {
				sk, err := s.skeleton(skRef)
				if err != nil {
					return err
				}
				q.SkeletonID = sk.ID
			}
			res, err := storage.Search(cmd.Context(), s.wh.Root, q)
			if err != nil {
				return err
			}
			if asJSON {
				if res == nil {
					res = []storage.SearchResult{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, r := range res {
				name := r.SkeletonID
				if sk, ok := s.st.Skeleton(r.SkeletonID); ok {
					name = sk.Name
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, r.Unit, shortID(r.FrameID), r.Field, r.Snippet)
			}
			return tw.Flush()
		},
	}
	f := cmd.Flags()
	f.StringVar(&skRef, "skeleton", "", "only this skeleton")
	f.StringVar(&q.Unit, "unit", "", "only frames of this unit")
	f.StringSliceVar(&q.Fields, "field", nil, "only these fields (name, content, script, tone, filter)")
	f.IntVar(&q.Limit, "limit", 50, "maximum number of results")
	f.IntVar(&q.Offset, "offset", 0, "skip this many results")
	f.BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}
