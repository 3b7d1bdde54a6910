// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/z5labs/printq/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Protocol is the OTLP transport.
type Protocol string

const (
	ProtocolGRPC Protocol = "grpc"
	ProtocolHTTP Protocol = "http"
)

// ParseProtocol accepts grpc, http and http/protobuf.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "grpc":
		return ProtocolGRPC, nil
	case "http", "http/protobuf":
		return ProtocolHTTP, nil
	default:
		return "", fmt.Errorf("otel: unsupported otlp protocol: %q", s)
	}
}

// OTLP configures exporters that push all three signals to one collector.
// Every exporter reader yields no value when Endpoint is unset.
type OTLP struct {
	Endpoint config.Reader[string]
	Protocol config.Reader[Protocol]

	connOnce sync.Once
	conn     *grpc.ClientConn
	connErr  error
}

// OTLPFromEnv reads the collector endpoint and protocol from the standard
// OTEL_EXPORTER_OTLP_* variables.
func OTLPFromEnv() *OTLP {
	return &OTLP{
		Endpoint: config.Env("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Protocol: config.Map(config.Env("OTEL_EXPORTER_OTLP_PROTOCOL"), func(_ context.Context, s string) (Protocol, error) {
			return ParseProtocol(s)
		}),
	}
}

func (o *OTLP) target(ctx context.Context) (string, Protocol, bool, error) {
	endpoint, err := config.Read(ctx, o.Endpoint)
	if err != nil && !errors.Is(err, config.ErrValueNotSet) {
		return "", "", false, err
	}
	if endpoint == "" {
		return "", "", false, nil
	}
	protocol, err := readOptional(ctx, o.Protocol)
	if err != nil {
		return "", "", false, err
	}
	if protocol == "" {
		protocol = ProtocolGRPC
	}
	return endpoint, protocol, true, nil
}

// grpcConn shares a single client connection between all signals.
func (o *OTLP) grpcConn(target string) (*grpc.ClientConn, error) {
	o.connOnce.Do(func() {
		o.conn, o.connErr = grpc.NewClient(
			target,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	})
	return o.conn, o.connErr
}

// SpanExporter returns a reader for the trace exporter.
func (o *OTLP) SpanExporter() config.Reader[sdktrace.SpanExporter] {
	return config.ReaderFunc[sdktrace.SpanExporter](func(ctx context.Context) (config.Value[sdktrace.SpanExporter], error) {
		endpoint, protocol, ok, err := o.target(ctx)
		if err != nil || !ok {
			return config.Value[sdktrace.SpanExporter]{}, err
		}

		var exp sdktrace.SpanExporter
		switch protocol {
		case ProtocolHTTP:
			exp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
		default:
			var cc *grpc.ClientConn
			cc, err = o.grpcConn(endpoint)
			if err == nil {
				exp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(cc))
			}
		}
		if err != nil {
			return config.Value[sdktrace.SpanExporter]{}, err
		}
		return config.ValueOf(exp), nil
	})
}

// MetricExporter returns a reader for the metric exporter.
func (o *OTLP) MetricExporter() config.Reader[sdkmetric.Exporter] {
	return config.ReaderFunc[sdkmetric.Exporter](func(ctx context.Context) (config.Value[sdkmetric.Exporter], error) {
		endpoint, protocol, ok, err := o.target(ctx)
		if err != nil || !ok {
			return config.Value[sdkmetric.Exporter]{}, err
		}

		var exp sdkmetric.Exporter
		switch protocol {
		case ProtocolHTTP:
			exp, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(endpoint), otlpmetrichttp.WithInsecure())
		default:
			var cc *grpc.ClientConn
			cc, err = o.grpcConn(endpoint)
			if err == nil {
				exp, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(cc))
			}
		}
		if err != nil {
			return config.Value[sdkmetric.Exporter]{}, err
		}
		return config.ValueOf(exp), nil
	})
}

// LogExporter returns a reader for the log exporter.
func (o *OTLP) LogExporter() config.Reader[sdklog.Exporter] {
	return config.ReaderFunc[sdklog.Exporter](func(ctx context.Context) (config.Value[sdklog.Exporter], error) {
		endpoint, protocol, ok, err := o.target(ctx)
		if err != nil || !ok {
			return config.Value[sdklog.Exporter]{}, err
		}

		var exp sdklog.Exporter
		switch protocol {
		case ProtocolHTTP:
			exp, err = otlploghttp.New(ctx, otlploghttp.WithEndpoint(endpoint), otlploghttp.WithInsecure())
		default:
			var cc *grpc.ClientConn
			cc, err = o.grpcConn(endpoint)
			if err == nil {
				exp, err = otlploggrpc.New(ctx, otlploggrpc.WithGRPCConn(cc))
			}
		}
		if err != nil {
			return config.Value[sdklog.Exporter]{}, err
		}
		return config.ValueOf(exp), nil
	})
}
