// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/z5labs/printq"
	"github.com/z5labs/printq/app"
	"github.com/z5labs/printq/backup"
	"github.com/z5labs/printq/broker"
	"github.com/z5labs/printq/broker/amqp"
	"github.com/z5labs/printq/broker/kafka"
	"github.com/z5labs/printq/config"
	"github.com/z5labs/printq/health"
	httpserver "github.com/z5labs/printq/http"
	"github.com/z5labs/printq/journal"
	"github.com/z5labs/printq/printer"
	"github.com/z5labs/printq/printer/cups"
	"github.com/z5labs/printq/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
)

const loggerName = "github.com/z5labs/printq/cmd/printq"

// Build wires the print station described by cfg.
func Build(cfg Config) app.Builder[app.Runtime] {
	return app.WithHooks(func(ctx context.Context, h *app.HookRegistry) (app.Runtime, error) {
		log := printq.Logger(nil, loggerName)

		driver, err := newDriver(cfg)
		if err != nil {
			return nil, err
		}
		connector := broker.NewConnector(
			driver,
			cfg.Queue,
			broker.WithLogger(printq.Logger(nil, "github.com/z5labs/printq/broker")),
		)

		w, err := newBackup(cfg)
		if err != nil {
			return nil, err
		}

		j, err := journal.Open(ctx, cfg.JournalDSN)
		if err != nil {
			return nil, err
		}
		h.OnPostRun(func(ctx context.Context) error {
			return j.Close()
		})

		spooler, err := cups.NewSpooler(
			cups.Server(cfg.CUPS.Server),
			cups.Credentials(cfg.CUPS.User, cfg.CUPS.Password),
			cups.TLS(cfg.CUPS.TLS),
		)
		if err != nil {
			return nil, err
		}
		dispatcher := printer.NewDispatcher(
			spooler,
			printer.WithLogger(printq.Logger(nil, "github.com/z5labs/printq/printer")),
		)

		svc := service.New(
			connector,
			w,
			dispatcher,
			service.WithLogger(printq.Logger(nil, "github.com/z5labs/printq/service")),
			service.Printer(cfg.Printer),
			service.Fallback(cfg.Fallback),
			service.Interval(cfg.Interval),
			service.WithJournal(j),
			service.WithMeterProvider(otel.GetMeterProvider()),
		)

		log.InfoContext(
			ctx,
			"print station configured",
			slog.String("broker.driver", cfg.Driver),
			broker.DestinationAttr(cfg.Queue),
			printer.PrinterAttr(cfg.Printer),
			slog.String("home", cfg.Layout.Home),
		)

		if cfg.HealthAddr == "" {
			return svc, nil
		}

		healthApp, err := httpserver.Build(
			httpserver.Server{
				Listener: httpserver.TCPListener{Addr: config.ReaderOf(cfg.HealthAddr)},
				ErrorLog: log,
			},
			app.BuilderFunc[http.Handler](func(ctx context.Context) (http.Handler, error) {
				return newHandler(log, svc, connector, j), nil
			}),
		).Build(ctx)
		if err != nil {
			return nil, err
		}
		return app.Group(svc, healthApp), nil
	})
}

// newHandler serves the health checks next to the journal.
func newHandler(log *slog.Logger, liveness, readiness health.Monitor, j journal.History) http.Handler {
	checks := health.NewHandler(log, liveness, readiness)

	r := chi.NewRouter()
	r.Handle(health.LivenessPath, checks)
	r.Handle(health.ReadinessPath, checks)
	r.Handle(journal.RecentPath, journal.NewHandler(log, j))
	return r
}

func newDriver(cfg Config) (broker.Driver, error) {
	if cfg.Driver == driverKafka {
		opts := []kafka.Option{
			kafka.WithLogger(printq.Logger(nil, "github.com/z5labs/printq/broker/kafka")),
			kafka.SessionTimeout(cfg.Kafka.SessionTimeout),
			kafka.FetchMaxBytes(cfg.Kafka.FetchMaxBytes),
			kafka.TracerProvider(otel.GetTracerProvider()),
			kafka.MeterProvider(otel.GetMeterProvider()),
		}
		if cfg.Kafka.TLS {
			tlsCfg, err := kafkaTLS(cfg.Kafka)
			if err != nil {
				return nil, err
			}
			opts = append(opts, kafka.TLSConfig(tlsCfg))
		}
		return kafka.NewDriver(kafka.Brokers(cfg.Host), cfg.Kafka.GroupID, opts...)
	}
	return amqp.NewDriver(
		cfg.Host,
		cfg.User,
		cfg.Password,
		amqp.WithLogger(printq.Logger(nil, "github.com/z5labs/printq/broker/amqp")),
		amqp.Durable(cfg.AMQP.Durable),
		amqp.Prefetch(cfg.AMQP.Prefetch),
		amqp.Heartbeat(cfg.AMQP.Heartbeat),
		amqp.ConnectTimeout(cfg.AMQP.ConnectTimeout),
		amqp.ConnectionName(cfg.AMQP.ConnectionName),
	)
}

func kafkaTLS(cfg KafkaConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.TLSCAFile == "" {
		return tlsCfg, nil
	}

	b, err := os.ReadFile(cfg.TLSCAFile)
	if err != nil {
		return nil, fmt.Errorf("kafka tls: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(b) {
		return nil, fmt.Errorf("kafka tls: no certificates found in %s", cfg.TLSCAFile)
	}
	tlsCfg.RootCAs = pool
	return tlsCfg, nil
}

func newBackup(cfg Config) (backup.Writer, error) {
	dir := backup.NewDir(cfg.Layout.Backup())
	if cfg.S3.Bucket == "" {
		return dir, nil
	}

	bucket, err := backup.NewBucket(cfg.S3)
	if err != nil {
		return nil, err
	}
	return backup.Multi(dir, bucket), nil
}
