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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vidskel/internal/backend"
	"vidskel/internal/domain"
	"vidskel/internal/movement"
)

// remoteCmd talks to a running server instead of the local workspace.
func (a *app) remoteCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Work against a running vidskel server",
	}
	cmd.PersistentFlags().StringVar(&baseURL, "url", "", "server base URL (default from config backend.base_url)")
	client := func() *backend.Client {
		u := baseURL
		if u == "" {
			u = a.cfg.Backend.BaseURL
		}
		return backend.NewClient(u, a.cfg.Backend.EffectiveTimeout())
	}
	// remote skeleton refs are ids or the active skeleton
	skeletonID := func(cmd *cobra.Command, c *backend.Client, ref string) (string, error) {
		if ref != "" {
			return ref, nil
		}
		list, err := c.ListSkeletons(cmd.Context())
		if err != nil {
			return "", err
		}
		if list.ActiveSkeletonID == "" {
			return "", errors.New("server has no active skeleton; pass --skeleton")
		}
		return list.ActiveSkeletonID, nil
	}
	var skRef string
	cmd.PersistentFlags().StringVar(&skRef, "skeleton", "", "skeleton id (default: the server's active skeleton)")

	status := &cobra.Command{
		Use:   "status",
		Short: "Check that the server and its storage are ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := client()
			v, err := c.Version(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.Ready(cmd.Context()); err != nil {
				return fmt.Errorf("server %s is up but not ready: %w", v, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ready (%s)\n", v)
			return nil
		},
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List skeletons on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := client().ListSkeletons(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, sk := range l.Skeletons {
				mark := ""
				if sk.ID == l.ActiveSkeletonID {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", mark, sk.ID, sk.Name, len(sk.Frames))
			}
			return tw.Flush()
		},
	}
	move := &cobra.Command{
		Use:   "move <frame-id> <up|down|left|right>",
		Short: "Move a frame on the server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := movement.ParseDirection(args[1])
			if err != nil {
				return err
			}
			c := client()
			id, err := skeletonID(cmd, c, skRef)
			if err != nil {
				return err
			}
			res, err := c.MoveFrame(cmd.Context(), id, args[0], dir)
			if err != nil {
				return err
			}
			if !res.Success {
				return errors.New(res.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
	travel := func(use, short string, undo bool) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				c := client()
				id, err := skeletonID(cmd, c, skRef)
				if err != nil {
					return err
				}
				var resp backend.HistoryResponse
				if undo {
					resp, err = c.Undo(cmd.Context(), id)
				} else {
					resp, err = c.Redo(cmd.Context(), id)
				}
				if err != nil {
					return err
				}
				if !resp.Changed {
					fmt.Fprintf(cmd.OutOrStdout(), "nothing to %s\n", use)
					return nil
				}
				return printSkeleton(cmd.OutOrStdout(), resp.Skeleton, domain.UnitMatchExact, nil)
			},
		}
	}
	var apply bool
	scr := &cobra.Command{
		Use:   "script",
		Short: "Generate a script on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := client()
			id, err := skeletonID(cmd, c, skRef)
			if err != nil {
				return err
			}
			resp, err := c.Script(cmd.Context(), id, apply)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), resp.Text)
			if apply {
				fmt.Fprintf(cmd.ErrOrStderr(), "updated the script of %d frame(s)\n", resp.Applied)
			}
			return nil
		},
	}
	scr.Flags().BoolVar(&apply, "apply", false, "store each beat as the script of its frame")

	cmd.AddCommand(status, list, move,
		travel("undo", "Undo the last change on the server", true),
		travel("redo", "Redo the last undone change on the server", false),
		scr)
	return cmd
}
