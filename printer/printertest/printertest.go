// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package printertest provides an in-memory [printer.Spooler] and PDF
// fixtures for tests.
package printertest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/z5labs/printq/printer"
)

// Submission is a document accepted by a [Spooler].
type Submission struct {
	Service  printer.Service
	Document printer.Document
}

// Spooler is an in-memory [printer.Spooler].
type Spooler struct {
	// Printers are the available print services, by name.
	Printers []string

	// DefaultPrinter is the default print service. Empty means none.
	DefaultPrinter string

	ServicesErr error
	SubmitErr   error

	// OnSubmit, if set, is called before a submission is recorded.
	OnSubmit func(context.Context, printer.Service, printer.Document)

	mu           sync.Mutex
	enumerations int
	submissions  []Submission
}

// Services implements the [printer.Spooler] interface.
func (s *Spooler) Services(ctx context.Context) ([]printer.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enumerations++
	if s.ServicesErr != nil {
		return nil, s.ServicesErr
	}

	svcs := make([]printer.Service, 0, len(s.Printers))
	for _, name := range s.Printers {
		svcs = append(svcs, printer.Service{Name: name})
	}
	return svcs, nil
}

// Default implements the [printer.Spooler] interface.
func (s *Spooler) Default(ctx context.Context) (printer.Service, error) {
	if s.DefaultPrinter == "" {
		return printer.Service{}, printer.ErrNoDefault
	}
	return printer.Service{Name: s.DefaultPrinter}, nil
}

// Submit implements the [printer.Spooler] interface.
func (s *Spooler) Submit(ctx context.Context, svc printer.Service, doc printer.Document) (string, error) {
	if s.OnSubmit != nil {
		s.OnSubmit(ctx, svc, doc)
	}
	if s.SubmitErr != nil {
		return "", s.SubmitErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.submissions = append(s.submissions, Submission{Service: svc, Document: doc})
	return fmt.Sprintf("%s-%d", svc.Name, len(s.submissions)), nil
}

// Submissions returns every accepted submission in order.
func (s *Spooler) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Submission(nil), s.submissions...)
}

// Enumerations returns how many times the print services were listed.
func (s *Spooler) Enumerations() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.enumerations
}

// PDF returns a structurally valid PDF document with the given number of
// blank pages.
func PDF(pages int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
	}

	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	objects = append(objects, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))

	for range pages {
		objects = append(objects, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	return buf.Bytes()
}
