// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/z5labs/printq/app"
	"github.com/z5labs/printq/config"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

type mockRuntime struct {
	runCalled bool
	runErr    error
}

func (m *mockRuntime) Run(ctx context.Context) error {
	m.runCalled = true
	return m.runErr
}

type mockShutdowner struct {
	log.LoggerProvider

	shutdownCalled bool
	shutdownErr    error
}

func (m *mockShutdowner) Shutdown(ctx context.Context) error {
	m.shutdownCalled = true
	return m.shutdownErr
}

func TestBuild(t *testing.T) {
	t.Run("will register the logger provider before building", func(t *testing.T) {
		lp := lognoop.NewLoggerProvider()

		var seen log.LoggerProvider
		builder := Build(
			SDK{LoggerProvider: config.ReaderOf[log.LoggerProvider](lp)},
			app.BuilderFunc[*mockRuntime](func(ctx context.Context) (*mockRuntime, error) {
				seen = global.GetLoggerProvider()
				return &mockRuntime{}, nil
			}),
		)

		rt, err := builder.Build(context.Background())
		require.NoError(t, err)
		require.Equal(t, lp, seen)
		require.Equal(t, lp, rt.loggerProvider)
	})

	t.Run("will fall back to no-op providers", func(t *testing.T) {
		builder := Build(SDK{}, app.BuilderFunc[*mockRuntime](func(ctx context.Context) (*mockRuntime, error) {
			return &mockRuntime{}, nil
		}))

		rt, err := builder.Build(context.Background())
		require.NoError(t, err)
		require.IsType(t, tracenoop.TracerProvider{}, rt.tracerProvider)
		require.IsType(t, metricnoop.MeterProvider{}, rt.meterProvider)
		require.IsType(t, lognoop.LoggerProvider{}, rt.loggerProvider)
	})

	t.Run("will shut down the providers if the inner build fails", func(t *testing.T) {
		lp := &mockShutdowner{LoggerProvider: lognoop.NewLoggerProvider()}
		buildErr := errors.New("failed to build")

		builder := Build(
			SDK{LoggerProvider: config.ReaderOf[log.LoggerProvider](lp)},
			app.BuilderFunc[*mockRuntime](func(ctx context.Context) (*mockRuntime, error) {
				return nil, buildErr
			}),
		)

		_, err := builder.Build(context.Background())
		require.ErrorIs(t, err, buildErr)
		require.True(t, lp.shutdownCalled)
	})

	t.Run("will start runtime metrics", func(t *testing.T) {
		builder := Build(
			SDK{
				MeterProvider:  config.ReaderOf[metric.MeterProvider](metricnoop.NewMeterProvider()),
				RuntimeMetrics: true,
			},
			app.BuilderFunc[*mockRuntime](func(ctx context.Context) (*mockRuntime, error) {
				return &mockRuntime{}, nil
			}),
		)

		_, err := builder.Build(context.Background())
		require.NoError(t, err)
	})
}

func TestRuntime_Run(t *testing.T) {
	testCases := []struct {
		name        string
		innerErr    error
		shutdownErr error
		expectError bool
	}{
		{
			name: "successful run",
		},
		{
			name:        "propagates inner runtime error",
			innerErr:    errors.New("runtime error"),
			expectError: true,
		},
		{
			name:        "propagates shutdown error",
			shutdownErr: errors.New("shutdown error"),
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			inner := &mockRuntime{runErr: tc.innerErr}
			lp := &mockShutdowner{
				LoggerProvider: lognoop.NewLoggerProvider(),
				shutdownErr:    tc.shutdownErr,
			}

			rt := Runtime{
				inner:          inner,
				tracerProvider: tracenoop.NewTracerProvider(),
				meterProvider:  metricnoop.NewMeterProvider(),
				loggerProvider: lp,
			}

			err := rt.Run(context.Background())
			if tc.expectError {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.True(t, inner.runCalled)
			require.True(t, lp.shutdownCalled)
		})
	}
}

func TestShutdown(t *testing.T) {
	testCases := []struct {
		name        string
		shutdowners []any
		expectError bool
	}{
		{
			name:        "shuts down all providers",
			shutdowners: []any{&mockShutdowner{}, &mockShutdowner{}},
		},
		{
			name:        "skips values which cannot be shut down",
			shutdowners: []any{"not a shutdowner", 42},
		},
		{
			name: "continues after an error",
			shutdowners: []any{
				&mockShutdowner{shutdownErr: errors.New("error 1")},
				&mockShutdowner{},
			},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := shutdown(tc.shutdowners...).Close()
			if tc.expectError {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			for _, v := range tc.shutdowners {
				if m, ok := v.(*mockShutdowner); ok {
					require.True(t, m.shutdownCalled)
				}
			}
		})
	}
}
