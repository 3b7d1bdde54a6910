// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package printq bridges a message queue to a printer.
//
// The worker lives in the service package and is wired together by
// cmd/printq. This package only holds helpers shared by both.
package printq

import (
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

// Logger returns an slog logger which emits through lp under the given
// instrumentation name. A nil lp means the global logger provider.
func Logger(lp log.LoggerProvider, name string) *slog.Logger {
	if lp == nil {
		lp = global.GetLoggerProvider()
	}
	return otelslog.NewLogger(name, otelslog.WithLoggerProvider(lp))
}
