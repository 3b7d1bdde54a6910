// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otel

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// slogExporter renders log records as text lines with an slog handler.
type slogExporter struct {
	handler slog.Handler
	closer  io.Closer
}

func newSlogExporter(w io.Writer) *slogExporter {
	exp := &slogExporter{
		handler: slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}),
	}
	if c, ok := w.(io.Closer); ok {
		exp.closer = c
	}
	return exp
}

// severityOffset maps OpenTelemetry severities onto slog levels,
// e.g. log.SeverityInfo becomes slog.LevelInfo.
const severityOffset = log.SeverityDebug - log.Severity(slog.LevelDebug)

// Export implements the [sdklog.Exporter] interface.
func (e *slogExporter) Export(ctx context.Context, records []sdklog.Record) error {
	for _, record := range records {
		sr := slog.NewRecord(
			record.Timestamp(),
			slog.Level(record.Severity()-severityOffset),
			record.Body().AsString(),
			0,
		)

		if scope := record.InstrumentationScope().Name; scope != "" {
			sr.AddAttrs(slog.String("logger", scope))
		}

		record.WalkAttributes(func(kv log.KeyValue) bool {
			sr.AddAttrs(slog.Attr{
				Key:   kv.Key,
				Value: slogValue(kv.Value),
			})
			return true
		})

		if record.TraceID().IsValid() {
			sr.AddAttrs(
				slog.String("trace_id", record.TraceID().String()),
				slog.String("span_id", record.SpanID().String()),
			)
		}

		err := e.handler.Handle(ctx, sr)
		if err != nil {
			return err
		}
	}
	return nil
}

func slogValue(v log.Value) slog.Value {
	switch v.Kind() {
	case log.KindBool:
		return slog.BoolValue(v.AsBool())
	case log.KindBytes:
		return slog.AnyValue(v.AsBytes())
	case log.KindFloat64:
		return slog.Float64Value(v.AsFloat64())
	case log.KindInt64:
		return slog.Int64Value(v.AsInt64())
	case log.KindMap:
		kvs := v.AsMap()
		attrs := make([]slog.Attr, len(kvs))
		for i, kv := range kvs {
			attrs[i] = slog.Attr{Key: kv.Key, Value: slogValue(kv.Value)}
		}
		return slog.GroupValue(attrs...)
	case log.KindSlice:
		vs := v.AsSlice()
		vals := make([]any, len(vs))
		for i := range vs {
			vals[i] = slogValue(vs[i]).Any()
		}
		return slog.AnyValue(vals)
	case log.KindString:
		return slog.StringValue(v.AsString())
	default:
		return slog.StringValue(v.String())
	}
}

// ForceFlush implements the [sdklog.Exporter] interface.
func (e *slogExporter) ForceFlush(ctx context.Context) error {
	return nil
}

// Shutdown implements the [sdklog.Exporter] interface.
func (e *slogExporter) Shutdown(ctx context.Context) error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

// levelProcessor drops records below a minimum level before they
// reach the wrapped processor.
type levelProcessor struct {
	inner sdklog.Processor
	min   log.Severity
}

func newLevelProcessor(inner sdklog.Processor, level slog.Level) *levelProcessor {
	return &levelProcessor{
		inner: inner,
		min:   log.Severity(level) + severityOffset,
	}
}

// OnEmit implements the [sdklog.Processor] interface.
func (p *levelProcessor) OnEmit(ctx context.Context, record *sdklog.Record) error {
	if record.Severity() < p.min {
		return nil
	}
	return p.inner.OnEmit(ctx, record)
}

// Shutdown implements the [sdklog.Processor] interface.
func (p *levelProcessor) Shutdown(ctx context.Context) error {
	return p.inner.Shutdown(ctx)
}

// ForceFlush implements the [sdklog.Processor] interface.
func (p *levelProcessor) ForceFlush(ctx context.Context) error {
	return p.inner.ForceFlush(ctx)
}
