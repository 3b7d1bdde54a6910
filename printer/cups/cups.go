// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package cups implements a [printer.Spooler] which talks IPP to a CUPS server.
package cups

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"strconv"

	"github.com/phin1x/go-ipp"
	"github.com/z5labs/printq/printer"
)

// DefaultServer is the CUPS server used when none is configured.
const DefaultServer = "localhost:631"

// Client is the subset of the go-ipp CUPS client used by [Spooler].
type Client interface {
	GetPrinters(attributes []string) (map[string]ipp.Attributes, error)
	PrintJob(doc ipp.Document, printer string, jobAttributes map[string]interface{}) (int, error)
	SendRequest(url string, req *ipp.Request, additionalResponseData io.Writer) (*ipp.Response, error)
}

// Spooler submits print jobs to a CUPS server.
type Spooler struct {
	client Client
	host   string
	port   int
	user   string
	pass   string
	tls    bool
	err    error
}

// Option configures a [Spooler].
type Option func(*Spooler)

// Server targets the CUPS server at host, optionally followed by ":port".
func Server(addr string) Option {
	return func(s *Spooler) {
		host, port, err := splitHostPort(addr)
		if err != nil {
			s.err = err
			return
		}
		s.host = host
		s.port = port
	}
}

// Credentials authenticates every request as user.
func Credentials(user, password string) Option {
	return func(s *Spooler) {
		s.user = user
		s.pass = password
	}
}

// TLS enables https for every request.
func TLS(enabled bool) Option {
	return func(s *Spooler) {
		s.tls = enabled
	}
}

// WithClient replaces the IPP client.
func WithClient(c Client) Option {
	return func(s *Spooler) {
		s.client = c
	}
}

// NewSpooler returns a [Spooler] for the local CUPS server.
func NewSpooler(opts ...Option) (*Spooler, error) {
	s := &Spooler{
		host: "localhost",
		port: 631,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.client == nil {
		s.client = ipp.NewCUPSClient(s.host, s.port, s.user, s.pass, s.tls)
	}
	return s, nil
}

func splitHostPort(addr string) (string, int, error) {
	if addr == "" {
		return "localhost", 631, nil
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		var addrErr *net.AddrError
		if errors.As(err, &addrErr) && addrErr.Err == "missing port in address" {
			return addr, 631, nil
		}
		return "", 0, fmt.Errorf("cups: invalid server address %q: %w", addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return "", 0, fmt.Errorf("cups: invalid server port %q", port)
	}
	return host, n, nil
}

func (s *Spooler) url() string {
	scheme := "http"
	if s.tls {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/", scheme, net.JoinHostPort(s.host, strconv.Itoa(s.port)))
}

// Services implements the [printer.Spooler] interface.
func (s *Spooler) Services(ctx context.Context) ([]printer.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	printers, err := s.client.GetPrinters([]string{ipp.AttributePrinterName})
	if err != nil {
		return nil, fmt.Errorf("cups: list printers: %w", err)
	}

	names := make([]string, 0, len(printers))
	for name := range printers {
		names = append(names, name)
	}
	slices.Sort(names)

	svcs := make([]printer.Service, 0, len(names))
	for _, name := range names {
		svcs = append(svcs, printer.Service{Name: name})
	}
	return svcs, nil
}

// Default implements the [printer.Spooler] interface.
func (s *Spooler) Default(ctx context.Context) (printer.Service, error) {
	if err := ctx.Err(); err != nil {
		return printer.Service{}, err
	}

	req := ipp.NewRequest(ipp.OperationCupsGetDefault, 1)
	req.OperationAttributes[ipp.AttributeRequestedAttributes] = []string{ipp.AttributePrinterName}

	resp, err := s.client.SendRequest(s.url(), req, nil)
	var ippErr ipp.IPPError
	if errors.As(err, &ippErr) && ippErr.Status == ipp.StatusErrorNotFound {
		return printer.Service{}, printer.ErrNoDefault
	}
	if err != nil {
		return printer.Service{}, fmt.Errorf("cups: get default printer: %w", err)
	}

	for _, attrs := range resp.PrinterAttributes {
		name := stringAttr(attrs, ipp.AttributePrinterName)
		if name != "" {
			return printer.Service{Name: name}, nil
		}
	}
	return printer.Service{}, printer.ErrNoDefault
}

func stringAttr(attrs ipp.Attributes, name string) string {
	for _, attr := range attrs[name] {
		if v, ok := attr.Value.(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Submit implements the [printer.Spooler] interface.
func (s *Spooler) Submit(ctx context.Context, svc printer.Service, doc printer.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := doc.JobName
	if name == "" {
		name = "Untitled"
	}
	format := doc.Format
	if format == "" {
		format = ipp.MimeTypeOctetStream
	}

	id, err := s.client.PrintJob(
		ipp.Document{
			Document: bytes.NewReader(doc.Payload),
			Size:     len(doc.Payload),
			Name:     name,
			MimeType: format,
		},
		svc.Name,
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("cups: print job: %w", err)
	}
	return svc.Name + "-" + strconv.Itoa(id), nil
}
