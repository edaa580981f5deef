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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vidskel/internal/crash"
	"vidskel/internal/domain"
	"vidskel/internal/storage"
	"vidskel/internal/templates"
)

func (a *app) initCmd() *cobra.Command {
	var name, tpl string
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a workspace, optionally seeded from a skeleton template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := a.root()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				if root, err = filepath.Abs(args[0]); err != nil {
					return err
				}
			}
			if _, err := storage.Open(root); err == nil {
				return fmt.Errorf("workspace already exists at %s", root)
			}
			ws := domain.Workspace{Version: domain.WorkspaceVersion, Skeletons: []domain.Skeleton{}}
			if tpl != "" {
				lib, err := a.templates()
				if err != nil {
					return err
				}
				sk, err := lib.Instantiate(tpl, name, nil)
				if err != nil {
					return err
				}
				ws.Skeletons = append(ws.Skeletons, sk)
				ws.ActiveSkeletonID = sk.ID
			}
			wh, err := storage.InitWorkspace(root, ws)
			if err != nil {
				return err
			}
			if err := storage.UpdateIndex(cmd.Context(), root, ws); err != nil {
				a.log.Warn("index build failed", slog.Any("err", err))
			}
			a.log.Info("workspace created", slog.String("root", wh.Root), slog.Int("skeletons", len(ws.Skeletons)))
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized workspace in %s\n", wh.Root)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name of the seeded skeleton (default: template name)")
	cmd.Flags().StringVar(&tpl, "template", "", "skeleton template id to seed the workspace with")
	return cmd
}

func (a *app) templatesCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List frame and skeleton templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lib, err := a.templates()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SKELETON\tTYPE\tUNITS\tNAME")
			for _, t := range lib.Skeletons() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.ContentType, strings.Join(t.Units, ","), t.Name)
			}
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "FRAME\tCATEGORY\tTYPE\tNAME")
			for _, t := range lib.Frames(category) {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Category, t.Type, t.Name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only frame templates of this category (hook, content, outro)")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List skeletons in the workspace",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			defer crash.Recover(s.wh, s.st)
			active := s.st.ActiveSkeletonID()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "\tID\tNAME\tTYPE\tUNITS\tFRAMES")
			for _, sk := range s.st.Skeletons() {
				mark := ""
				if sk.ID == active {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n", mark, shortID(sk.ID), sk.Name, sk.ContentType, len(sk.Units), len(sk.Frames))
			}
			return tw.Flush()
		},
	}
}

func (a *app) newCmd() *cobra.Command {
	var (
		tpl   string
		units []string
		long  bool
	)
	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Add a skeleton from a template or with custom units and make it active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			defer crash.Recover(s.wh, s.st)
			var sk domain.Skeleton
			if tpl != "" {
				lib, err := a.templates()
				if err != nil {
					return err
				}
				if sk, err = lib.Instantiate(tpl, args[0], nil); err != nil {
					return err
				}
			} else {
				if len(units) == 0 {
					return errors.New("either --template or --units is required")
				}
				ct := domain.ContentShort
				if long {
					ct = domain.ContentLong
				}
				sk = templates.Custom(args[0], ct, units, nil)
			}
			sk = s.st.AddSkeleton(sk)
			s.st.SetActiveSkeleton(sk.ID)
			if err := s.commit(cmd.Context(), "create", sk.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", sk.Name, sk.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&tpl, "template", "", "skeleton template id")
	cmd.Flags().StringSliceVar(&units, "units", nil, "comma-separated unit names for a custom skeleton")
	cmd.Flags().BoolVar(&long, "long", false, "mark a custom skeleton as long-form")
	return cmd
}

func (a *app) useCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <skeleton>",
		Short: "Set the active skeleton",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			defer crash.Recover(s.wh, s.st)
			sk, err := s.skeleton(args[0])
			if err != nil {
				return err
			}
			s.st.SetActiveSkeleton(sk.ID)
			if err := s.commit(cmd.Context(), ""); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active skeleton: %s\n", sk.Name)
			return nil
		},
	}
}

func (a *app) showCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show [skeleton]",
		Short: "Print a skeleton unit by unit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			defer crash.Recover(s.wh, s.st)
			sk, err := s.skeleton(firstArg(args))
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sk)
			}
			return printSkeleton(cmd.OutOrStdout(), sk, s.st.UnitMatch(), s.st.Orphans(sk.ID))
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the skeleton as JSON")
	return cmd
}

func printSkeleton(w io.Writer, sk domain.Skeleton, m domain.UnitMatch, orphans []domain.Frame) error {
	fmt.Fprintf(w, "%s  [%s, %s]\n", sk.Name, sk.ContentType, sk.ID)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, u := range sk.Units {
		fmt.Fprintf(tw, "%d. %s\n", i+1, u)
		for _, f := range sk.UnitFrames(u, m) {
			fmt.Fprintf(tw, "\t%s\t%s\t%s\n", shortID(f.ID), f.Name, frameFlags(f))
		}
	}
	if len(orphans) > 0 {
		fmt.Fprintln(tw, "(no unit)")
		for _, f := range orphans {
			fmt.Fprintf(tw, "\t%s\t%s\t%s\n", shortID(f.ID), f.Name, "unit="+f.UnitType)
		}
	}
	return tw.Flush()
}

func frameFlags(f domain.Frame) string {
	var parts []string
	if f.Tone != "" {
		parts = append(parts, "tone="+f.Tone)
	}
	if f.Filter != "" {
		parts = append(parts, "filter="+f.Filter)
	}
	if f.Transition != domain.TransitionNone {
		parts = append(parts, "transition="+string(f.Transition))
	}
	if f.Script != "" {
		parts = append(parts, "scripted")
	}
	if f.IsTemplateExample {
		parts = append(parts, "example")
	}
	return strings.Join(parts, " ")
}

func (a *app) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <skeleton>",
		Short: "Delete a skeleton",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			defer crash.Recover(s.wh, s.st)
			sk, err := s.skeleton(args[0])
			if err != nil {
				return err
			}
			s.st.DeleteSkeleton(sk.ID)
			if err := s.commit(cmd.Context(), ""); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", sk.Name)
			return nil
		},
	}
}

func (a *app) contextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show or edit the video context of a skeleton",
	}
	var skRef string
	cmd.PersistentFlags().StringVar(&skRef, "skeleton", "", "skeleton (default: active)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the video context",
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
			vc, _ := s.st.VideoContext(sk.ID)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(vc)
		},
	})

	var (
		vc    domain.VideoContext
		reset bool
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Update fields of the video context; unset flags keep their value",
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
			cur, _ := s.st.VideoContext(sk.ID)
			if reset {
				cur = domain.VideoContext{}
			}
			f := cmd.Flags()
			if f.Changed("topic") {
				cur.Topic = vc.Topic
			}
			if f.Changed("audience") {
				cur.Audience = vc.Audience
			}
			if f.Changed("goal") {
				cur.Goal = vc.Goal
			}
			if f.Changed("platform") {
				cur.Platform = vc.Platform
			}
			if f.Changed("duration") {
				cur.DurationSeconds = vc.DurationSeconds
			}
			if f.Changed("notes") {
				cur.Notes = vc.Notes
			}
			s.st.SetVideoContext(sk.ID, cur)
			return s.commit(cmd.Context(), "")
		},
	}
	f := set.Flags()
	f.StringVar(&vc.Topic, "topic", "", "what the video is about")
	f.StringVar(&vc.Audience, "audience", "", "who it is for")
	f.StringVar(&vc.Goal, "goal", "", "what viewers should do or know afterwards")
	f.StringVar(&vc.Platform, "platform", "", "target platform")
	f.IntVar(&vc.DurationSeconds, "duration", 0, "target length in seconds")
	f.StringVar(&vc.Notes, "notes", "", "free-form notes")
	f.BoolVar(&reset, "clear", false, "reset all fields before applying flags")
	cmd.AddCommand(set)
	return cmd
}

func firstArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
