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
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vidskel/internal/crash"
	"vidskel/internal/domain"
	"vidskel/internal/keyboard"
	"vidskel/internal/movement"
	"vidskel/internal/notify"
	"vidskel/internal/store"
	"vidskel/internal/templates"
)

func (a *app) moveCmd() *cobra.Command {
	var skRef string
	cmd := &cobra.Command{
		Use:   "move <frame> <up|down|left|right>",
		Short: "Move a frame within its unit or to a neighbouring unit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := movement.ParseDirection(args[1])
			if err != nil {
				return err
			}
			s, err := a.open()
			if err != nil {
				return err
			}
			defer crash.Recover(s.wh, s.st)
			sk, err := s.skeleton(skRef)
			if err != nil {
				return err
			}
			f, err := s.frame(sk, args[0])
			if err != nil {
				return err
			}
			res := s.engine.MoveFrame(sk.ID, f.ID, dir)
			if !res.Success {
				return errors.New(res.Message)
			}
			if err := s.commit(cmd.Context(), "move", sk.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&skRef, "skeleton", "", "skeleton (default: active)")
	return cmd
}

func (a *app) keymap() (keyboard.Keymap, error) {
	km, err := keyboard.DefaultKeymap().Merge(a.cfg.Keymap)
	if err != nil {
		return nil, fmt.Errorf("keymap: %w", err)
	}
	return km, nil
}

func (a *app) pressCmd() *cobra.Command {
	var skRef string
	cmd := &cobra.Command{
		Use:   "press <frame> <key>...",
		Short: "Select a frame and replay key chords through the keymap",
		Long: `press selects a frame and feeds each key chord to the keyboard binding,
exactly as the editor would. Selection follows the frame across moves, so
"press f1 alt+down alt+down" moves f1 two places down.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			km, err := a.keymap()
			if err != nil {
				return err
			}
			s, err := a.open()
			if err != nil {
				return err
			}
			defer crash.Recover(s.wh, s.st)
			sk, err := s.skeleton(skRef)
			if err != nil {
				return err
			}
			f, err := s.frame(sk, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			b := keyboard.New(s.engine,
				keyboard.WithKeymap(km),
				keyboard.WithNotifier(notify.Func(func(n notify.Notice) {
					fmt.Fprintf(out, "%s: %s\n", n.Title, n.Message)
				})))
			defer b.Close()
			b.Select(sk.ID, f.ID)

			moved := false
			for _, key := range args[1:] {
				resp := b.HandleKey(key)
				if resp.Command.Action == "" {
					fmt.Fprintf(out, "%s: not bound\n", key)
					continue
				}
				switch {
				case resp.Move != nil:
					fmt.Fprintf(out, "%s: %s\n", key, resp.Move.Message)
					moved = moved || resp.Move.Success
				case !resp.Handled:
					fmt.Fprintf(out, "%s: %s had nothing to do\n", key, resp.Command)
				}
			}
			if !moved {
				return nil
			}
			return s.commit(cmd.Context(), "move", sk.ID)
		},
	}
	cmd.Flags().StringVar(&skRef, "skeleton", "", "skeleton (default: active)")
	return cmd
}

func (a *app) keymapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keymap",
		Short: "Print the effective key bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			km, err := a.keymap()
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(km))
			for k := range km {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, k := range keys {
				fmt.Fprintf(tw, "%s\t%s\n", k, km[k])
			}
			return tw.Flush()
		},
	}
}

func (a *app) frameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "frame",
		Short: "Add, edit or remove frames",
	}
	var skRef string
	cmd.PersistentFlags().StringVar(&skRef, "skeleton", "", "skeleton (default: active)")

	var unit string
	add := &cobra.Command{
		Use:   "add <template>",
		Short: "Append a frame from a frame template to a unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := a.templates()
			if err != nil {
				return err
			}
			tpl, ok := lib.Frame(args[0])
			if !ok {
				return fmt.Errorf("%w: %q", templates.ErrNotFound, args[0])
			}
			s, err := a.open()
			if err != nil {
				return err
			}
			defer crash.Recover(s.wh, s.st)
			sk, err := s.skeleton(skRef)
			if err != nil {
				return err
			}
			i := sk.UnitIndex(unit, s.st.UnitMatch())
			if i < 0 {
				return fmt.Errorf("skeleton %s has no unit %q", sk.Name, unit)
			}
			f := templates.NewFrame(tpl, sk.Units[i], nil)
			s.st.UpdateFrameOrderFunc(sk.ID, func(cur domain.Skeleton) ([]domain.Frame, bool) {
				return append(domain.CloneFrames(cur.Frames), f), true
			})
			if err := s.commit(cmd.Context(), "add frame", sk.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s) to %s\n", f.Name, shortID(f.ID), sk.Units[i])
			return nil
		},
	}
	add.Flags().StringVar(&unit, "unit", "", "target unit")
	_ = add.MarkFlagRequired("unit")

	var patch struct {
		content, script, tone, filter, transition string
	}
	set := &cobra.Command{
		Use:   "set <frame>",
		Short: "Update frame attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			defer crash.Recover(s.wh, s.st)
			sk, err := s.skeleton(skRef)
			if err != nil {
				return err
			}
			f, err := s.frame(sk, args[0])
			if err != nil {
				return err
			}
			fl := cmd.Flags()
			var e store.FrameEdit
			if fl.Changed("transition") {
				t, err := domain.ParseTransition(patch.transition)
				if err != nil {
					return err
				}
				e.Transition = &t
			}
			if fl.Changed("content") {
				e.Content = &patch.content
			}
			if fl.Changed("script") {
				e.Script = &patch.script
			}
			if fl.Changed("tone") {
				e.Tone = &patch.tone
			}
			if fl.Changed("filter") {
				e.Filter = &patch.filter
			}
			if !s.st.EditFrame(sk.ID, f.ID, e) {
				return errors.New("nothing to set; pass --content, --script, --tone, --filter or --transition")
			}
			return s.commit(cmd.Context(), "edit frame", sk.ID)
		},
	}
	sf := set.Flags()
	sf.StringVar(&patch.content, "content", "", "frame content")
	sf.StringVar(&patch.script, "script", "", "frame script")
	sf.StringVar(&patch.tone, "tone", "", "tone attribute")
	sf.StringVar(&patch.filter, "filter", "", "filter attribute")
	sf.StringVar(&patch.transition, "transition", "", "smooth, pattern-interrupt, content-shift or empty")

	rm := &cobra.Command{
		Use:   "rm <frame>",
		Short: "Delete a frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			defer crash.Recover(s.wh, s.st)
			sk, err := s.skeleton(skRef)
			if err != nil {
				return err
			}
			f, err := s.frame(sk, args[0])
			if err != nil {
				return err
			}
			s.st.DeleteFrame(sk.ID, f.ID)
			return s.commit(cmd.Context(), "delete frame", sk.ID)
		},
	}

	cmd.AddCommand(add, set, rm)
	return cmd
}

func (a *app) unitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "units",
		Short: "Replace or rename the units of a skeleton",
	}
	var skRef string
	cmd.PersistentFlags().StringVar(&skRef, "skeleton", "", "skeleton (default: active)")

	cmd.AddCommand(&cobra.Command{
		Use:   "set <unit>...",
		Short: "Replace the unit list; frames of removed units follow the orphan policy",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			defer crash.Recover(s.wh, s.st)
			sk, err := s.skeleton(skRef)
			if err != nil {
				return err
			}
			s.st.UpdateSkeletonUnits(sk.ID, args)
			if n := len(s.st.Orphans(sk.ID)); n > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d frame(s) no longer belong to any unit\n", n)
			}
			return s.commit(cmd.Context(), "units", sk.ID)
		},
	}, &cobra.Command{
		Use:   "rename <from> <to>",
		Short: "Rename a unit and carry its frames along",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			defer crash.Recover(s.wh, s.st)
			sk, err := s.skeleton(skRef)
			if err != nil {
				return err
			}
			if sk.UnitIndex(args[0], s.st.UnitMatch()) < 0 {
				return fmt.Errorf("skeleton %s has no unit %q", sk.Name, args[0])
			}
			s.st.RenameUnit(sk.ID, args[0], args[1])
			return s.commit(cmd.Context(), "rename unit", sk.ID)
		},
	})
	return cmd
}

func (a *app) orphansCmd() *cobra.Command {
	var skRef string
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List frames whose unit is not part of the skeleton",
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
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, f := range s.st.Orphans(sk.ID) {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", shortID(f.ID), f.Name, f.UnitType)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&skRef, "skeleton", "", "skeleton (default: active)")
	return cmd
}
