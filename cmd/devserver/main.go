// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/noldarim/wfbuilder/internal/config"
	"github.com/noldarim/wfbuilder/internal/devserver"
	"github.com/noldarim/wfbuilder/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.CloseGlobal()

	mainLog := logger.GetLogger("main")
	mainLog.Info().Str("addr", cfg.DevServer.Addr()).Msg("Starting development service")

	// Run shuts the server down gracefully once ctx is cancelled.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := devserver.New(&cfg.DevServer)
	if err := srv.Run(ctx); err != nil {
		mainLog.Error().Err(err).Msg("Server error")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		_ = logger.CloseGlobal()
		os.Exit(1)
	}

	mainLog.Info().Msg("Development service shut down")
}
