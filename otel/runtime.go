// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/z5labs/printq/app"
	"github.com/z5labs/printq/config"

	"github.com/z5labs/sdk-go/try"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// SDK holds the readers for each OpenTelemetry provider.
//
// Any reader which is nil or yields no value falls back to a no-op provider,
// except the propagator which defaults to Baggage plus TraceContext.
type SDK struct {
	TextMapPropagator config.Reader[propagation.TextMapPropagator]
	TracerProvider    config.Reader[trace.TracerProvider]
	MeterProvider     config.Reader[metric.MeterProvider]
	LoggerProvider    config.Reader[log.LoggerProvider]

	// RuntimeMetrics enables Go runtime metrics on the meter provider.
	RuntimeMetrics bool
}

// Runtime registers the OpenTelemetry providers globally, runs the
// wrapped runtime and shuts the providers down once it returns.
type Runtime struct {
	inner          app.Runtime
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	loggerProvider log.LoggerProvider
}

// Build reads the providers described by sdk, registers them globally and
// then builds the wrapped runtime. Providers are registered before the
// wrapped builder runs so it can obtain loggers and meters from them.
func Build[T app.Runtime](sdk SDK, builder app.Builder[T]) app.Builder[Runtime] {
	return app.BuilderFunc[Runtime](func(ctx context.Context) (Runtime, error) {
		var (
			defaultPropagator propagation.TextMapPropagator = propagation.NewCompositeTextMapPropagator(
				propagation.Baggage{},
				propagation.TraceContext{},
			)
			defaultTracerProvider trace.TracerProvider = tracenoop.NewTracerProvider()
			defaultMeterProvider  metric.MeterProvider = metricnoop.NewMeterProvider()
			defaultLoggerProvider log.LoggerProvider   = lognoop.NewLoggerProvider()
		)

		tmp := config.MustOr(ctx, defaultPropagator, sdk.TextMapPropagator)
		tp := config.MustOr(ctx, defaultTracerProvider, sdk.TracerProvider)
		mp := config.MustOr(ctx, defaultMeterProvider, sdk.MeterProvider)
		lp := config.MustOr(ctx, defaultLoggerProvider, sdk.LoggerProvider)

		otel.SetTextMapPropagator(tmp)
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		global.SetLoggerProvider(lp)

		rt := Runtime{
			tracerProvider: tp,
			meterProvider:  mp,
			loggerProvider: lp,
		}

		if sdk.RuntimeMetrics {
			err := otelruntime.Start(otelruntime.WithMeterProvider(mp))
			if err != nil {
				return Runtime{}, errors.Join(
					fmt.Errorf("otel: failed to start runtime metrics: %w", err),
					rt.shutdown(),
				)
			}
		}

		inner, err := builder.Build(ctx)
		if err != nil {
			return Runtime{}, errors.Join(err, rt.shutdown())
		}
		rt.inner = inner
		return rt, nil
	})
}

// Run implements the [app.Runtime] interface.
//
// Providers are shut down even if the wrapped runtime fails and any
// shutdown errors are joined with its error.
func (rt Runtime) Run(ctx context.Context) (err error) {
	defer try.Close(&err, closerFunc(rt.shutdown))

	return rt.inner.Run(ctx)
}

func (rt Runtime) shutdown() error {
	return shutdown(
		rt.tracerProvider,
		rt.meterProvider,
		rt.loggerProvider,
	)()
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

type shutdowner interface {
	Shutdown(context.Context) error
}

// shutdown only touches providers which can be shut down, the no-op
// providers are skipped.
func shutdown(vs ...any) closerFunc {
	return func() error {
		var errs error
		for _, v := range vs {
			s, ok := v.(shutdowner)
			if !ok {
				continue
			}
			errs = errors.Join(errs, s.Shutdown(context.Background()))
		}
		return errs
	}
}
