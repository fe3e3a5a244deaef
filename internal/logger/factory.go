// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"github.com/rs/zerolog"
)

// Static logger getters that map directly to config.yaml log.levels
// These ensure consistent logger names across the codebase

// GetStreamLogger returns a logger for the progress WebSocket transport
func GetStreamLogger() zerolog.Logger {
	return GetLogger("stream")
}

// GetHubLogger returns a logger for the subscriber registry
func GetHubLogger() zerolog.Logger {
	return GetLogger("hub")
}

// GetProgressLogger returns a logger for the progress aggregator
func GetProgressLogger() zerolog.Logger {
	return GetLogger("progress")
}

// GetSessionLogger returns a logger for session wiring
func GetSessionLogger() zerolog.Logger {
	return GetLogger("session")
}

// GetAPILogger returns a logger for REST calls to the workflow service
func GetAPILogger() zerolog.Logger {
	return GetLogger("api")
}

// GetDevServerLogger returns a logger for the local development service
func GetDevServerLogger() zerolog.Logger {
	return GetLogger("devserver")
}

// GetCLILogger returns a logger for command execution
func GetCLILogger() zerolog.Logger {
	return GetLogger("cli")
}

// GetTUILogger returns a logger for TUI components
func GetTUILogger() zerolog.Logger {
	return GetLogger("tui")
}
