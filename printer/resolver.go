// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package printer

import (
	"context"
	"errors"
	"log/slog"
)

// Resolver finds the print service to submit to.
type Resolver struct {
	spooler Spooler
	log     *slog.Logger
}

// NewResolver returns a [Resolver] backed by sp.
func NewResolver(sp Spooler, opts ...Option) *Resolver {
	o := newOptions(opts...)
	return &Resolver{
		spooler: sp,
		log:     o.log,
	}
}

// Resolve returns the print service named name.
//
// Only an exact name match is accepted. With fallback enabled, a missing
// or empty name resolves to the default print service and a warning is
// logged naming both. Resolve reports false when nothing could be resolved.
func (r *Resolver) Resolve(ctx context.Context, name string, fallback bool) (Service, bool) {
	services, err := r.spooler.Services(ctx)
	if err != nil {
		r.log.WarnContext(ctx, "failed to enumerate print services", slog.Any("error", err))
		services = nil
	}

	var (
		found Service
		ok    bool
	)
	for _, svc := range services {
		r.log.DebugContext(ctx, "print service available", PrinterAttr(svc.Name))
		if !ok && name != "" && svc.Name == name {
			found, ok = svc, true
		}
	}
	if ok {
		return found, true
	}
	if !fallback {
		return Service{}, false
	}

	def, err := r.spooler.Default(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoDefault) {
			r.log.WarnContext(ctx, "failed to look up default print service", slog.Any("error", err))
			return Service{}, false
		}
		r.log.WarnContext(ctx, "print service not found", slog.String("printer.requested", name))
		return Service{}, false
	}

	if def.Name != name {
		r.log.WarnContext(
			ctx,
			"printer not found, using default",
			slog.String("printer.requested", name),
			PrinterAttr(def.Name),
		)
	}
	return def, true
}
