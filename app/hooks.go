// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"context"
	"errors"
)

// HookFunc is a function that runs after the inner runtime completes.
// All hooks will be executed even if previous hooks fail; errors are collected and joined.
type HookFunc func(context.Context) error

// HookRegistry collects post-run hooks during application initialization.
type HookRegistry struct {
	hooks []HookFunc
}

// OnPostRun registers a hook to be executed after the inner runtime completes.
//
// Hooks run in reverse registration order, the same way deferred calls do,
// so a resource registered after the things it depends on is released first.
func (r *HookRegistry) OnPostRun(hook HookFunc) {
	r.hooks = append(r.hooks, hook)
}

type hookRuntime struct {
	inner Runtime
	hooks []HookFunc
}

// Run executes the inner runtime and then runs all registered hooks.
//
// Hooks receive a context which carries the values of ctx but is never
// cancelled, since by the time they run ctx has usually been cancelled
// by a shutdown signal.
func (rt hookRuntime) Run(ctx context.Context) error {
	runtimeErr := rt.inner.Run(ctx)

	hookCtx := context.WithoutCancel(ctx)

	var hookErrors error
	for i := len(rt.hooks) - 1; i >= 0; i-- {
		if err := rt.hooks[i](hookCtx); err != nil {
			hookErrors = errors.Join(hookErrors, err)
		}
	}

	return errors.Join(runtimeErr, hookErrors)
}

// WithHooks wraps a builder function with post-run hook support.
//
// Example usage:
//
//	builder := app.WithHooks(func(ctx context.Context, h *app.HookRegistry) (app.Runtime, error) {
//	    j, err := journal.Open(ctx, dsn)
//	    if err != nil {
//	        return nil, err
//	    }
//	    h.OnPostRun(func(ctx context.Context) error {
//	        return j.Close()
//	    })
//	    return service.New(connector, w, d, service.WithJournal(j)), nil
//	})
func WithHooks[T Runtime](f func(context.Context, *HookRegistry) (T, error)) Builder[Runtime] {
	return BuilderFunc[Runtime](func(ctx context.Context) (Runtime, error) {
		registry := &HookRegistry{}

		inner, err := f(ctx, registry)
		if err != nil {
			// Release whatever was acquired before the failure.
			rt := hookRuntime{inner: RuntimeFunc(func(context.Context) error { return nil }), hooks: registry.hooks}
			return nil, errors.Join(err, rt.Run(ctx))
		}

		return hookRuntime{
			inner: inner,
			hooks: registry.hooks,
		}, nil
	})
}
