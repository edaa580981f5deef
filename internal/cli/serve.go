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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vidskel/internal/backend"
	"vidskel/internal/config"
	"vidskel/internal/crash"
	"vidskel/internal/telemetry"
	"vidskel/internal/version"
)

// NewServerCmd builds the standalone vidskeld command: the serve command with
// its own config and workspace flags.
func NewServerCmd() *cobra.Command {
	a := &app{}
	cmd := a.serveCmd("vidskeld")
	cmd.PersistentPreRunE = a.setup
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		telemetry.Default().Flush(context.Background())
	}
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.Version = version.String()
	cmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")
	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (default is the per-user config path, or $"+config.EnvConfigPath+")")
	pf.StringVarP(&a.workspace, "workspace", "w", "", "workspace directory when no database is configured")
	return cmd
}

func (a *app) serveCmd(use string) *cobra.Command {
	var (
		addr  string
		dbURL string
		ai    bool
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: "Serve the planner HTTP API",
		Long: `Serves the skeleton store over HTTP/JSON. State lives in memory and is
written back after every change: to PostgreSQL when a database URL is set
(server.database_url or $` + config.EnvDatabaseURL + `), otherwise to the workspace directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			if dbURL == "" {
				dbURL = a.cfg.Server.DatabaseURL
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			repo, closeRepo, err := a.openRepository(ctx, dbURL)
			if err != nil {
				return err
			}
			defer closeRepo()

			ws, err := repo.Load(ctx)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			st, err := a.newStore()
			if err != nil {
				return err
			}
			st.Load(ws)
			defer crash.Recover(nil, st)

			gen, err := a.generator(ctx, ai, st.UnitMatch())
			if err != nil {
				return err
			}
			lib, err := a.templates()
			if err != nil {
				return err
			}
			srv, err := backend.NewServer(st,
				backend.WithRepository(repo),
				backend.WithTemplates(lib),
				backend.WithGenerator(gen),
				backend.WithTracker(telemetry.Default()),
				backend.WithSettleDelay(a.cfg.Editor.SettleDelay()))
			if err != nil {
				return err
			}
			a.log.Info("serving", slog.String("addr", addr), slog.Int("skeletons", len(ws.Skeletons)), slog.Bool("postgres", dbURL != ""))
			return srv.Run(ctx, addr, a.cfg.Server.ShutdownTimeout())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config server.addr)")
	cmd.Flags().StringVar(&dbURL, "database-url", "", "PostgreSQL URL (default from config server.database_url)")
	cmd.Flags().BoolVar(&ai, "ai", false, "generate scripts with the configured AI model")
	return cmd
}

func (a *app) openRepository(ctx context.Context, dbURL string) (backend.Repository, func(), error) {
	if dbURL != "" {
		pg, err := backend.OpenPG(ctx, dbURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	}
	root, err := a.root()
	if err != nil {
		return nil, nil, err
	}
	fr, err := backend.OpenFileRepository(ctx, root)
	if err != nil {
		return nil, nil, err
	}
	return fr, func() {}, nil
}

