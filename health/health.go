// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package health reports whether the print service is alive and ready to take jobs.
package health

import (
	"context"
	"sync/atomic"
)

// Monitor represents anything which can report its current state of health.
type Monitor interface {
	Healthy(context.Context) (bool, error)
}

// MonitorFunc is a func type of the [Monitor] interface.
type MonitorFunc func(context.Context) (bool, error)

// Healthy implements the [Monitor] interface.
func (f MonitorFunc) Healthy(ctx context.Context) (bool, error) {
	return f(ctx)
}

// Binary is a [Monitor] which simply has 2 states: healthy or unhealthy.
// It is safe for concurrent use. The zero value represents an unhealthy state.
type Binary struct {
	healthy atomic.Bool
}

// MarkUnhealthy changes the state to unhealthy.
func (b *Binary) MarkUnhealthy() {
	b.healthy.Store(false)
}

// MarkHealthy changes that state to healthy.
func (b *Binary) MarkHealthy() {
	b.healthy.Store(true)
}

// Healthy implements the [Monitor] interface.
func (b *Binary) Healthy(ctx context.Context) (bool, error) {
	return b.healthy.Load(), nil
}

// AndMonitor is a collection of [Monitor]s which follows
// the logical AND (&&) semantics for determining its own healthy/unhealthy state.
//
// In the case of an error it will fail fast.
type AndMonitor []Monitor

// And is a simple helper for initializing a [AndMonitor] in a more functional style.
func And(ms ...Monitor) AndMonitor {
	return AndMonitor(ms)
}

// Healthy implements the [Monitor] interface.
func (am AndMonitor) Healthy(ctx context.Context) (bool, error) {
	for _, m := range am {
		healthy, err := m.Healthy(ctx)
		if !healthy || err != nil {
			return healthy, err
		}
	}
	return true, nil
}
