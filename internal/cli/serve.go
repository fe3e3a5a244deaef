// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"net"
	"time"

	"github.com/noldarim/wfbuilder/internal/devserver"
	"github.com/spf13/cobra"
)

func serveCmd(a *app) *cobra.Command {
	var (
		host       string
		port       int
		stageDelay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local simulated workflow service",
		Long: `Run a local service that implements the workflow REST API and the
progress WebSocket, replaying the agent pipeline with a fixed delay per
stage. Useful for trying the client without the real service.

Pass the option fail_stage=<agent> to a generate request to make that
stage fail.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.DevServer
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("stage-delay") {
				cfg.StageDelay = stageDelay
			}
			if cfg.Port < 0 || cfg.Port > 65535 {
				return fmt.Errorf("invalid port: %d", cfg.Port)
			}

			ln, err := net.Listen("tcp", cfg.Addr())
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
			}
			srv := devserver.New(&cfg)

			addr := ln.Addr().String()
			fmt.Fprintln(cmd.OutOrStdout(), successMsg("Serving on http://%s", addr))
			fmt.Fprint(cmd.OutOrStdout(), keyValues(
				kv("REST", fmt.Sprintf("http://%s/api", addr)),
				kv("Progress", fmt.Sprintf("ws://%s/ws/progress", addr)),
				kv("Stage delay", cfg.StageDelay.String()),
			))

			// Serve shuts down when the command context is cancelled.
			return srv.Serve(cmd.Context(), ln)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port, 0 picks a free one (default from config)")
	cmd.Flags().DurationVar(&stageDelay, "stage-delay", 0, "Delay per simulated stage (default from config)")
	return cmd
}
