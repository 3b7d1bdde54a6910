// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package printer

import (
	"context"
	"log/slog"
)

// Request asks for a payload to be printed.
type Request struct {
	Payload  []byte
	JobName  string
	Printer  string
	Fallback bool
}

// Result describes an accepted submission.
type Result struct {
	Requested string
	Service   Service
	JobID     string

	// Pages is zero when the payload could not be inspected.
	Pages int
}

// Dispatcher submits documents to the resolved print service.
type Dispatcher struct {
	resolver *Resolver
	spooler  Spooler
	log      *slog.Logger
}

// NewDispatcher returns a [Dispatcher] backed by sp.
func NewDispatcher(sp Spooler, opts ...Option) *Dispatcher {
	o := newOptions(opts...)
	return &Dispatcher{
		resolver: NewResolver(sp, opts...),
		spooler:  sp,
		log:      o.log,
	}
}

// Dispatch resolves a print service for req and submits its payload as a PDF.
//
// No submission is attempted when no service resolves; [ErrNotFound] is
// returned instead. A payload which cannot be parsed as a PDF is still
// submitted, only a warning is logged. A refused submission is returned
// as a [SubmitError].
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	res := Result{Requested: req.Printer}

	svc, ok := d.resolver.Resolve(ctx, req.Printer, req.Fallback)
	if !ok {
		d.log.WarnContext(ctx, "printer not found", slog.String("printer.requested", req.Printer))
		return res, ErrNotFound
	}
	res.Service = svc

	pages, err := Pages(req.Payload)
	if err != nil {
		d.log.WarnContext(ctx, "payload is not a readable pdf", PrinterAttr(svc.Name), slog.Any("error", err))
	}
	res.Pages = pages

	doc := Document{
		Format:  FormatPDF,
		Payload: req.Payload,
		JobName: req.JobName,
	}

	jobID, err := d.spooler.Submit(ctx, svc, doc)
	if err != nil {
		return res, SubmitError{Printer: svc.Name, Cause: err}
	}
	res.JobID = jobID

	d.log.InfoContext(
		ctx,
		"submitted print job",
		PrinterAttr(svc.Name),
		slog.String("print.job.name", req.JobName),
		slog.String("print.job.id", jobID),
		slog.Int("print.job.pages", pages),
	)
	return res, nil
}
