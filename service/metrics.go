// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package service

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/z5labs/printq/service"

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

type loopMetrics struct {
	messagesReceived metric.Int64Counter
	messagesDropped  metric.Int64Counter
	backupsWritten   metric.Int64Counter
	backupsFailed    metric.Int64Counter
	jobsSubmitted    metric.Int64Counter
	jobsFailed       metric.Int64Counter
	reconnects       metric.Int64Counter
}

// initLoopMetrics never fails. An instrument which cannot be created is
// replaced by a no-op one after logging a warning.
func initLoopMetrics(mp metric.MeterProvider, log *slog.Logger) loopMetrics {
	m := mp.Meter(instrumentationName)

	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			log.Warn("failed to create metric", slog.String("metric.name", name), slog.Any("error", err))
			return metricnoop.Int64Counter{}
		}
		return c
	}

	return loopMetrics{
		messagesReceived: counter(
			"printq.messages.received",
			"Total number of messages received from the broker",
			"{message}",
		),
		messagesDropped: counter(
			"printq.messages.dropped",
			"Total number of messages discarded because they were not binary",
			"{message}",
		),
		backupsWritten: counter(
			"printq.backups.written",
			"Total number of print jobs backed up",
			"{job}",
		),
		backupsFailed: counter(
			"printq.backups.failed",
			"Total number of print jobs which could not be backed up",
			"{job}",
		),
		jobsSubmitted: counter(
			"printq.jobs.submitted",
			"Total number of print jobs accepted by a printer",
			"{job}",
		),
		jobsFailed: counter(
			"printq.jobs.failed",
			"Total number of print jobs which were not printed",
			"{job}",
		),
		reconnects: counter(
			"printq.broker.reconnects",
			"Total number of times the broker connection was re-established",
			"{connection}",
		),
	}
}
