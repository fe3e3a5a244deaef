// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the wfbuilder command line.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/noldarim/wfbuilder/internal/api"
	"github.com/noldarim/wfbuilder/internal/config"
	"github.com/noldarim/wfbuilder/internal/logger"
	"github.com/noldarim/wfbuilder/internal/session"
	"github.com/noldarim/wfbuilder/internal/stream"
	"github.com/noldarim/wfbuilder/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	appName    = "wfbuilder"
	appVersion = "0.1.0-alpha"
)

// skipSetup marks commands that run without configuration or logging.
const skipSetup = "skip-setup"

func getLog() *zerolog.Logger {
	l := logger.GetCLILogger()
	return &l
}

// app carries global flags and everything the root pre-run sets up.
type app struct {
	configPath string
	logLevel   string
	restURL    string
	streamURL  string
	noColor    bool

	cfg      *config.AppConfig
	shutdown telemetry.ShutdownFunc
}

// NewRootCommand builds the command tree. Logging and telemetry set up by
// its pre-run stay open; Execute closes them.
func NewRootCommand() *cobra.Command {
	root, _ := newRoot()
	return root
}

func newRoot() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:           appName,
		Short:         "Build ComfyUI workflows from natural language and follow their progress",
		Version:       appVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := cmd.Annotations[skipSetup]; ok {
				return nil
			}
			return a.setup(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Path to config file (default: search ./config.yaml, ./config, /etc/wfbuilder, ~/.wfbuilder)")
	pf.StringVar(&a.logLevel, "log-level", "", "Override the log level (trace, debug, info, warn, error)")
	pf.StringVar(&a.restURL, "service-url", "", "Workflow service base URL (overrides service.rest_url)")
	pf.StringVar(&a.streamURL, "stream-url", "", "Progress stream URL (overrides service.stream_url)")
	pf.BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		generateCmd(a),
		watchCmd(a),
		historyCmd(a),
		getCmd(a),
		downloadCmd(a),
		deleteCmd(a),
		agentsCmd(a),
		modelsCmd(a),
		healthCmd(a),
		serveCmd(a),
		versionCmd(),
	)
	return root, a
}

// Execute runs the CLI application
func Execute(ctx context.Context, args []string) error {
	root, a := newRoot()
	defer a.close()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.NewConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.applyOverrides(cfg)
	a.cfg = cfg

	if err := logger.Initialize(&cfg.Log); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, appVersion)
	if err != nil {
		getLog().Warn().Err(err).Msg("Tracing disabled")
	}
	a.shutdown = shutdown

	configureOutput(a.noColor)
	getLog().Debug().Str("rest_url", cfg.Service.RESTURL).Str("stream_url", cfg.Service.StreamURL).Msg("CLI configured")
	return nil
}

// applyOverrides folds command-line flags into cfg. A service URL without a
// stream URL implies the service's own progress endpoint.
func (a *app) applyOverrides(cfg *config.AppConfig) {
	if a.logLevel != "" {
		cfg.Log.Level = strings.ToUpper(a.logLevel)
	}
	if a.restURL != "" {
		cfg.Service.RESTURL = strings.TrimRight(a.restURL, "/")
		if a.streamURL == "" {
			cfg.Service.StreamURL = streamURLFor(cfg.Service.RESTURL)
		}
	}
	if a.streamURL != "" {
		cfg.Service.StreamURL = a.streamURL
	}
}

func streamURLFor(restURL string) string {
	switch {
	case strings.HasPrefix(restURL, "https://"):
		return "wss://" + strings.TrimPrefix(restURL, "https://") + "/ws/progress"
	case strings.HasPrefix(restURL, "http://"):
		return "ws://" + strings.TrimPrefix(restURL, "http://") + "/ws/progress"
	default:
		return restURL + "/ws/progress"
	}
}

// close flushes telemetry and log files.
func (a *app) close() {
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdown(ctx); err != nil {
			getLog().Warn().Err(err).Msg("Failed to flush traces")
		}
		a.shutdown = nil
	}
	if a.cfg != nil {
		_ = logger.CloseGlobal()
	}
}

func (a *app) client() (*api.Client, error) {
	return api.NewFromConfig(a.cfg)
}

func (a *app) session(onStatus func(stream.Status)) (*session.Session, error) {
	opts := session.OptionsFromConfig(a.cfg)
	opts.OnStatus = onStatus
	return session.New(opts)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipSetup: ""},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, appVersion)
			return nil
		},
	}
}
