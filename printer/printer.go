// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package printer resolves print services and submits documents to them.
//
// The host print subsystem is consumed through the [Spooler] interface.
// Printers come and go while the service runs, so the directory of print
// services is enumerated again on every resolution and never cached.
package printer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrNotFound is returned when no print service could be resolved.
	ErrNotFound = errors.New("printer: print service not found")

	// ErrNoDefault is returned by a [Spooler] with no default print service.
	ErrNoDefault = errors.New("printer: no default print service")
)

// FormatPDF is the only document format ever submitted.
const FormatPDF = "application/pdf"

// Service is a print service known to the host.
type Service struct {
	Name string
}

// Document is a single submission to a print service.
type Document struct {
	Format  string
	Payload []byte

	// JobName is optional.
	JobName string
}

// Spooler is the host print subsystem.
type Spooler interface {
	// Services enumerates every print service currently available.
	Services(context.Context) ([]Service, error)

	// Default returns the default print service or [ErrNoDefault].
	Default(context.Context) (Service, error)

	// Submit sends doc to svc and blocks until the spooler accepted it.
	// The returned string identifies the job to the spooler, if it
	// reports one.
	Submit(ctx context.Context, svc Service, doc Document) (string, error)
}

// SubmitError is returned when a spooler refused a document.
type SubmitError struct {
	Printer string
	Cause   error
}

// Error implements the [error] interface.
func (e SubmitError) Error() string {
	return fmt.Sprintf("printer: failed to submit job to %s: %s", e.Printer, e.Cause)
}

// Unwrap returns the underlying cause.
func (e SubmitError) Unwrap() error {
	return e.Cause
}

// Option configures a [Resolver] or [Dispatcher].
type Option func(*options)

type options struct {
	log *slog.Logger
}

// WithLogger sets the logger used to report resolution and submission.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

func newOptions(opts ...Option) options {
	o := options{
		log: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// PrinterAttr returns a slog attribute naming a print service.
func PrinterAttr(name string) slog.Attr {
	return slog.String("printer.name", name)
}
