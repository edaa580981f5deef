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
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vidskel/internal/config"
	"vidskel/internal/crash"
	"vidskel/internal/domain"
	"vidskel/internal/export"
	"vidskel/internal/script"
)

func (a *app) generator(ctx context.Context, ai bool, m domain.UnitMatch) (script.Generator, error) {
	if !ai {
		return script.OutlineGenerator{Match: m}, nil
	}
	key, err := config.APIKey(a.cfg.AI.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w (set it with 'vidskel apikey set' or $%s)", err, config.APIKeyEnv(a.cfg.AI.Provider))
	}
	return script.NewGenAIGenerator(ctx, key, a.cfg.AI.Model, a.cfg.AI.Timeout(), m)
}

func (a *app) scriptCmd() *cobra.Command {
	var (
		skRef  string
		ai     bool
		apply  bool
		pdf    string
		notes  bool
		ids    bool
		author string
	)
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Write a script for a skeleton, optionally with an AI model and as PDF",
		Long: `script walks the skeleton unit by unit and writes one beat per frame.
Without --ai the frame content becomes the voiceover. With --ai the outline is
sent to the configured model (see 'vidskel config show', section ai).

--apply stores each beat as the frame's script. --pdf writes the document to a
PDF; relative paths land in <workspace>/exports.`,
		Args: cobra.NoArgs,
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
			gen, err := a.generator(cmd.Context(), ai, s.st.UnitMatch())
			if err != nil {
				return err
			}
			vc, _ := s.st.VideoContext(sk.ID)
			doc, err := gen.Generate(cmd.Context(), sk, vc)
			if err != nil {
				return err
			}
			s.log.Info("script generated", slog.String("skeleton", sk.ID), slog.Int("beats", len(doc.Beats())), slog.Bool("ai", ai))

			if pdf != "" {
				opt := export.PDFOptions{IncludeNotes: notes, ShowFrameIDs: ids, Author: author, BaseDir: s.wh.Root}
				if vc != (domain.VideoContext{}) {
					opt.Context = &vc
				}
				if err := export.ScriptPDF(doc, pdf, opt); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", pdf)
			} else {
				fmt.Fprint(cmd.OutOrStdout(), doc.Render())
			}
			if !apply {
				return nil
			}
			n := script.ApplyToStore(s.st, doc)
			if err := s.commit(cmd.Context(), "script", sk.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "updated the script of %d frame(s)\n", n)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&skRef, "skeleton", "", "skeleton (default: active)")
	f.BoolVar(&ai, "ai", false, "draft the script with the configured AI model")
	f.BoolVar(&apply, "apply", false, "store each beat as the script of its frame")
	f.StringVar(&pdf, "pdf", "", "write the script to this PDF file instead of stdout")
	f.BoolVar(&notes, "notes", false, "include author notes in the PDF")
	f.BoolVar(&ids, "frame-ids", false, "print frame ids in the PDF")
	f.StringVar(&author, "author", "", "author shown in the PDF header")
	return cmd
}

func (a *app) apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the AI provider API key in the OS keyring",
	}
	var provider string
	cmd.PersistentFlags().StringVar(&provider, "provider", "", "provider (default: config ai.provider)")
	prov := func() string {
		if provider != "" {
			return provider
		}
		return a.cfg.AI.Provider
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [key]",
		Short: "Store a key; reads it from stdin when not given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := firstArg(args)
			if key == "" {
				in := cmd.InOrStdin()
				if f, ok := in.(*os.File); ok && f == os.Stdin {
					fmt.Fprint(cmd.ErrOrStderr(), "API key: ")
				}
				line, err := bufio.NewReader(in).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no key given")
				}
				key = strings.TrimSpace(line)
			}
			if err := config.SetAPIKey(prov(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored key for %s: %s\n", prov(), config.MaskKey(key))
			return nil
		},
	}, &cobra.Command{
		Use:   "show",
		Short: "Show the masked key and where it comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := config.APIKey(prov())
			if err != nil {
				return err
			}
			src := "keyring"
			if os.Getenv(config.APIKeyEnv(prov())) != "" {
				src = "$" + config.APIKeyEnv(prov())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", prov(), config.MaskKey(key), src)
			return nil
		},
	}, &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.DeleteAPIKey(prov()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted key for %s\n", prov())
			return nil
		},
	})
	return cmd
}
