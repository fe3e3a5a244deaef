// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream keeps a WebSocket to the workflow service's progress
// endpoint alive.
//
// Conn owns a single physical connection and reports its lifecycle to a
// Handler. Reconnector supervises a Conn from the outside: every closure that
// was not requested through Close schedules a new attempt after an
// exponentially growing delay (see Backoff), and a successful open resets the
// delay to its floor.
package stream

import (
	"github.com/noldarim/wfbuilder/internal/logger"
	"github.com/rs/zerolog"
)

func getLog() *zerolog.Logger {
	l := logger.GetStreamLogger()
	return &l
}
