// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otel builds the OpenTelemetry providers used by printq.
//
// Logs always go to a local [io.Writer] through an slog handler, which is
// how the log file and stdout are fed. Traces, metrics, and an extra copy of
// the logs are exported over OTLP only when an endpoint is configured.
//
// Environment Variables:
//   - OTEL_SERVICE_NAME: Service name, defaults to printq
//   - OTEL_SERVICE_VERSION: Service version
//   - OTEL_TRACES_SAMPLER_RATIO: Sampling ratio for traces (0.0 to 1.0)
//   - OTEL_METRIC_EXPORT_INTERVAL: Metric export interval
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP collector endpoint
//   - OTEL_EXPORTER_OTLP_PROTOCOL: grpc (default) or http
package otel

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/z5labs/printq/config"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.38.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName is reported when OTEL_SERVICE_NAME is not set.
const DefaultServiceName = "printq"

// Resource describes the process producing telemetry.
type Resource struct {
	ServiceName    config.Reader[string]
	ServiceVersion config.Reader[string]
}

// ResourceFromEnv reads the service name and version from the environment.
func ResourceFromEnv() Resource {
	return Resource{
		ServiceName:    config.Env("OTEL_SERVICE_NAME"),
		ServiceVersion: config.Env("OTEL_SERVICE_VERSION"),
	}
}

// Read implements the [config.Reader] interface.
func (cfg Resource) Read(ctx context.Context) (config.Value[*resource.Resource], error) {
	name := config.MustOr(ctx, DefaultServiceName, cfg.ServiceName)
	version := config.MustOr(ctx, "", cfg.ServiceVersion)

	rsc, err := resource.New(
		ctx,
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return config.Value[*resource.Resource]{}, err
	}
	return config.ValueOf(rsc), nil
}

// TracerProvider batches spans to Exporter. It yields no value when
// Exporter does not, leaving tracing disabled.
type TracerProvider struct {
	Resource    config.Reader[*resource.Resource]
	Exporter    config.Reader[sdktrace.SpanExporter]
	SampleRatio config.Reader[float64]
}

// Read implements the [config.Reader] interface.
func (cfg TracerProvider) Read(ctx context.Context) (config.Value[trace.TracerProvider], error) {
	exp, err := readOptional(ctx, cfg.Exporter)
	if err != nil || exp == nil {
		return config.Value[trace.TracerProvider]{}, err
	}

	rsc := config.Must(ctx, cfg.Resource)
	ratio := config.MustOr(ctx, 1.0, cfg.SampleRatio)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(rsc),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithBatcher(exp),
	)
	return config.ValueOf[trace.TracerProvider](tp), nil
}

// MeterProvider periodically pushes metrics to Exporter. It yields no value
// when Exporter does not, leaving metrics disabled.
type MeterProvider struct {
	Resource       config.Reader[*resource.Resource]
	Exporter       config.Reader[sdkmetric.Exporter]
	ExportInterval config.Reader[time.Duration]
}

// Read implements the [config.Reader] interface.
func (cfg MeterProvider) Read(ctx context.Context) (config.Value[metric.MeterProvider], error) {
	exp, err := readOptional(ctx, cfg.Exporter)
	if err != nil || exp == nil {
		return config.Value[metric.MeterProvider]{}, err
	}

	rsc := config.Must(ctx, cfg.Resource)
	interval := config.MustOr(ctx, 30*time.Second, cfg.ExportInterval)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(rsc),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	)
	return config.ValueOf[metric.MeterProvider](mp), nil
}

// LoggerProvider writes every record at or above Level to Output as text.
// If Exporter yields a value the same records are also batched to it.
//
// Output is closed when the provider shuts down if it implements [io.Closer].
type LoggerProvider struct {
	Resource config.Reader[*resource.Resource]
	Level    config.Reader[slog.Level]
	Output   config.Reader[io.Writer]
	Exporter config.Reader[sdklog.Exporter]
}

// Read implements the [config.Reader] interface.
func (cfg LoggerProvider) Read(ctx context.Context) (config.Value[log.LoggerProvider], error) {
	rsc := config.Must(ctx, cfg.Resource)
	level := config.MustOr(ctx, slog.LevelInfo, cfg.Level)
	out := config.Must(ctx, cfg.Output)

	opts := []sdklog.LoggerProviderOption{
		sdklog.WithResource(rsc),
		sdklog.WithProcessor(newLevelProcessor(
			sdklog.NewSimpleProcessor(newSlogExporter(out)),
			level,
		)),
	}

	exp, err := readOptional(ctx, cfg.Exporter)
	if err != nil {
		return config.Value[log.LoggerProvider]{}, err
	}
	if exp != nil {
		opts = append(opts, sdklog.WithProcessor(newLevelProcessor(
			sdklog.NewBatchProcessor(exp),
			level,
		)))
	}

	return config.ValueOf[log.LoggerProvider](sdklog.NewLoggerProvider(opts...)), nil
}

// LevelFromString parses debug, info, warn or error, case insensitively.
func LevelFromString(r config.Reader[string]) config.Reader[slog.Level] {
	return config.Map(r, func(_ context.Context, s string) (slog.Level, error) {
		var level slog.Level
		err := level.UnmarshalText([]byte(strings.TrimSpace(s)))
		return level, err
	})
}

func readOptional[T any](ctx context.Context, r config.Reader[T]) (T, error) {
	var zero T
	if r == nil {
		return zero, nil
	}
	val, err := r.Read(ctx)
	if err != nil {
		return zero, err
	}
	v, _ := val.Value()
	return v, nil
}
