/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package cli implements the vidskel and vidskeld command trees.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"vidskel/internal/config"
	applog "vidskel/internal/log"
	"vidskel/internal/telemetry"
	"vidskel/internal/templates"
	"vidskel/internal/version"
)

// app carries flags and loaded configuration shared by all subcommands.
type app struct {
	cfgPath   string
	workspace string
	cfg       config.AppConfig
	log       *slog.Logger
	lib       *templates.Library
}

// NewRootCmd builds the vidskel command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "vidskel",
		Short: "Plan videos as skeletons of units and frames",
		Long: `vidskel keeps video plans ("skeletons") in a workspace directory.

A skeleton is an ordered list of units (Hook, Content, Outro, ...) and the
frames assigned to them. Frames move within their unit or to a neighbouring
unit; a finished skeleton becomes a script, optionally drafted by an AI model
and exported to PDF.

Example:
  vidskel init ./launch --template short-classic --name "Launch teaser"
  vidskel -w ./launch show
  vidskel -w ./launch move <frame> down`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			telemetry.Default().Flush(context.Background())
		},
	}
	root.Version = version.String()
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (default is the per-user config path, or $"+config.EnvConfigPath+")")
	pf.StringVarP(&a.workspace, "workspace", "w", "", "workspace directory (default from config general.workspace)")

	root.AddCommand(
		a.versionCmd(),
		a.configCmd(),
		a.initCmd(),
		a.templatesCmd(),
		a.listCmd(),
		a.newCmd(),
		a.useCmd(),
		a.showCmd(),
		a.removeCmd(),
		a.contextCmd(),
		a.moveCmd(),
		a.pressCmd(),
		a.keymapCmd(),
		a.frameCmd(),
		a.unitsCmd(),
		a.orphansCmd(),
		a.scriptCmd(),
		a.apiKeyCmd(),
		a.historyCmd(),
		a.restoreCmd(),
		a.searchCmd(),
		a.serveCmd("serve"),
		a.remoteCmd(),
	)
	return root
}

// Execute runs vidskel with the process arguments.
func Execute() error { return NewRootCmd().Execute() }

// setup loads configuration and initializes logging and telemetry.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	var err error
	if a.cfgPath != "" {
		a.cfg, err = config.LoadFrom(a.cfgPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	applog.Init(applog.Options{
		Level:     a.cfg.Logging.Level,
		Format:    a.cfg.Logging.Format,
		AddSource: a.cfg.Logging.Source,
		File:      a.cfg.Logging.File,
		Writer:    cmd.ErrOrStderr(),
	})
	a.log = applog.WithComponent("cli")

	tcfg := telemetry.FromEnv()
	tcfg.OptIn = a.cfg.General.TelemetryOptIn
	telemetry.SetDefault(telemetry.New(tcfg))
	a.log.Debug("start", slog.String("command", cmd.CommandPath()))
	return nil
}

// templates returns the built-in catalog merged with general.templates_file,
// loaded once per invocation.
func (a *app) templates() (*templates.Library, error) {
	if a.lib != nil {
		return a.lib, nil
	}
	lib, err := templates.Load(a.cfg.General.TemplatesFile)
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}
	a.lib = lib
	return lib, nil
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
