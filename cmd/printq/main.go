// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command printq consumes print jobs from a broker queue, backs every
// document up under the home folder and submits it to a printer.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/z5labs/printq/app"
	"github.com/z5labs/printq/config"
	"github.com/z5labs/printq/otel"

	"go.opentelemetry.io/otel/sdk/resource"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := Load(ctx, args)
	var missing config.ArgMissingError
	if errors.As(err, &missing) {
		fmt.Fprintln(stderr, usage)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "printq: %v\n", err)
		return 1
	}

	err = cfg.Layout.Provision()
	if err != nil {
		fmt.Fprintf(stderr, "printq: %v\n", err)
		return 1
	}

	otlp := otel.OTLPFromEnv()
	rsc := config.Cache[*resource.Resource](otel.ResourceFromEnv())
	sdk := otel.SDK{
		TracerProvider: otel.TracerProvider{
			Resource: rsc,
			Exporter: otlp.SpanExporter(),
		},
		MeterProvider: otel.MeterProvider{
			Resource: rsc,
			Exporter: otlp.MetricExporter(),
		},
		LoggerProvider: otel.LoggerProvider{
			Resource: rsc,
			Level:    config.ReaderOf(cfg.LogLevel),
			Output:   logOutput(cfg, stdout),
			Exporter: otlp.LogExporter(),
		},
		RuntimeMetrics: true,
	}

	err = app.Run(ctx, otel.Build(sdk, Build(cfg)))
	if err != nil {
		// The logger providers are already shut down by now.
		app.LogError(slog.New(slog.NewTextHandler(stderr, nil)), err)
		return 1
	}
	return 0
}

// logOutput opens the log file for this run, mirrored to stdout.
func logOutput(cfg Config, stdout io.Writer) config.Reader[io.Writer] {
	return config.ReaderFunc[io.Writer](func(ctx context.Context) (config.Value[io.Writer], error) {
		f, err := cfg.Layout.Create(time.Now(), stdout)
		if err != nil {
			return config.Value[io.Writer]{}, err
		}
		return config.ValueOf[io.Writer](f), nil
	})
}
