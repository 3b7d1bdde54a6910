// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package app provides interfaces and utilities for building and running the print service.
//
// The package supports post-run hooks for resource cleanup through the WithHooks builder.
// Hooks are executed after the inner runtime completes, which is where the broker
// connection, journal database and log file get released.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc/pool"
)

// Builder is a generic interface for building application components.
type Builder[T any] interface {
	Build(context.Context) (T, error)
}

// BuilderFunc is a function type that implements the Builder interface.
type BuilderFunc[T any] func(context.Context) (T, error)

// Build implements the [Builder] interface for BuilderFunc.
func (f BuilderFunc[T]) Build(ctx context.Context) (T, error) {
	return f(ctx)
}

// Bind chains two Builders together, where the output of the first is used to create the second.
func Bind[A, B any](builder Builder[A], binder func(A) Builder[B]) Builder[B] {
	return BuilderFunc[B](func(ctx context.Context) (B, error) {
		appA, err := builder.Build(ctx)
		if err != nil {
			var zero B
			return zero, err
		}
		return binder(appA).Build(ctx)
	})
}

// Runtime is an interface representing a runnable application component.
type Runtime interface {
	Run(context.Context) error
}

// RuntimeFunc is a function type that implements the Runtime interface.
type RuntimeFunc func(context.Context) error

// Run implements the [Runtime] interface for RuntimeFunc.
func (f RuntimeFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PanicError wraps a value recovered while building the application.
type PanicError struct {
	Value any
}

// Error implements the [error] interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("recovered from panic: %v", e.Value)
}

// Unwrap returns the recovered value when it is itself an error.
func (e PanicError) Unwrap() error {
	err, ok := e.Value.(error)
	if !ok {
		return nil
	}
	return err
}

// Run builds and runs the application using the provided Builder.
//
// The context handed to the builder and the runtime is cancelled on
// SIGINT or SIGTERM. Panics raised while building, typically from
// config.Must, are returned as a [PanicError].
func Run[T Runtime](ctx context.Context, builder Builder[T]) error {
	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := build(sigCtx, builder)
	if err != nil {
		return err
	}

	return rt.Run(sigCtx)
}

func build[T any](ctx context.Context, builder Builder[T]) (rt T, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err = PanicError{Value: r}
	}()

	return builder.Build(ctx)
}

// Group runs every non-nil runtime concurrently. The first runtime to fail
// cancels the others; context cancellation is not reported as an error.
func Group(rts ...Runtime) Runtime {
	return RuntimeFunc(func(ctx context.Context) error {
		p := pool.New().WithContext(ctx).WithCancelOnError()

		for _, rt := range rts {
			if rt == nil {
				continue
			}
			p.Go(func(ctx context.Context) error {
				err := rt.Run(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		}

		return p.Wait()
	})
}

// LogError logs an error using the provided logger.
func LogError(log *slog.Logger, err error) {
	if err == nil {
		return
	}

	log.Error("application error", slog.Any("error", err))
}
