// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package service runs the single worker which moves documents from a
// broker queue to a printer.
//
// Every iteration the worker makes sure it is connected, waits for the next
// message, backs the document up and then prints it. Any failure other
// than cancellation tears the connection down so the next iteration starts
// from scratch. Messages are never redelivered: once received a document is
// either backed up, printed, both or neither, and the outcome is logged.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/z5labs/printq/backup"
	"github.com/z5labs/printq/broker"
	"github.com/z5labs/printq/health"
	"github.com/z5labs/printq/journal"
	"github.com/z5labs/printq/printer"
	"github.com/z5labs/printq/printjob"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultInterval is how long the worker sleeps between iterations.
const DefaultInterval = 5 * time.Second

// ErrAlreadyStarted is returned when starting a [Service] twice.
var ErrAlreadyStarted = errors.New("service: already started")

// Journal records the outcome of every handled job.
type Journal interface {
	Record(context.Context, journal.Entry) error
}

// Service is the queue to printer worker.
type Service struct {
	connector  *broker.Connector
	backup     backup.Writer
	dispatcher *printer.Dispatcher
	journal    Journal

	printer  string
	fallback bool
	interval time.Duration

	log           *slog.Logger
	meterProvider metric.MeterProvider
	metrics       loopMetrics
	now           func() time.Time
	liveness      health.Binary

	// connectedBefore marks that at least one connection was established,
	// so any later one counts as a reconnect.
	connectedBefore bool

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a [Service].
type Option func(*Service)

// WithLogger sets the logger for the worker loop.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) {
		s.meterProvider = mp
	}
}

// Printer names the print service documents are sent to.
func Printer(name string) Option {
	return func(s *Service) {
		s.printer = name
	}
}

// Fallback allows printing to the default print service when the named
// one cannot be found.
func Fallback(enabled bool) Option {
	return func(s *Service) {
		s.fallback = enabled
	}
}

// Interval sets the sleep between iterations. Non-positive values are ignored.
func Interval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithJournal records the outcome of every job to j.
func WithJournal(j Journal) Option {
	return func(s *Service) {
		s.journal = j
	}
}

// WithClock replaces the source of arrival and completion times.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New returns a stopped [Service].
func New(c *broker.Connector, w backup.Writer, d *printer.Dispatcher, opts ...Option) *Service {
	s := &Service{
		connector:  c,
		backup:     w,
		dispatcher: d,
		interval:   DefaultInterval,
		log:        slog.New(slog.DiscardHandler),
		now:        time.Now,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.meterProvider == nil {
		s.meterProvider = otel.GetMeterProvider()
	}
	s.metrics = initLoopMetrics(s.meterProvider, s.log)
	return s
}

// Healthy reports whether the worker loop is running.
func (s *Service) Healthy(ctx context.Context) (bool, error) {
	return s.liveness.Healthy(ctx)
}

// Start launches the worker on its own goroutine.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	go func() {
		defer close(s.done)
		s.Run(ctx)
	}()

	s.log.InfoContext(ctx, "worker started", broker.DestinationAttr(s.connector.Queue()))
	return nil
}

// Stop asks the worker to exit. It does not wait for it, see [Service.Wait].
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until a started worker has exited.
func (s *Service) Wait() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		return
	}
	<-s.done
}

// Run implements the [app.Runtime] interface.
//
// Run loops until ctx is cancelled and then closes the broker connection.
// Cancellation is not reported as an error and nothing else ever stops
// the loop, so Run always returns nil.
func (s *Service) Run(ctx context.Context) error {
	s.liveness.MarkHealthy()
	defer s.liveness.MarkUnhealthy()
	defer s.connector.Close()

	for {
		err := s.iterate(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.connector.Close()
			s.log.ErrorContext(
				ctx,
				"failed to receive message",
				broker.DestinationAttr(s.connector.Queue()),
				slog.Any("error", err),
			)
		}

		s.log.DebugContext(ctx, "sleeping", slog.Duration("interval", s.interval))
		if !sleep(ctx, s.interval) {
			return nil
		}
	}
}

func (s *Service) iterate(ctx context.Context) error {
	if !s.connector.Connected() && s.connector.Connect(ctx) {
		if s.connectedBefore {
			s.metrics.reconnects.Add(ctx, 1, s.queueAttr())
		}
		s.connectedBefore = true
	}

	s.log.DebugContext(ctx, "reading", broker.DestinationAttr(s.connector.Queue()))
	msg, err := s.connector.Receive(ctx)
	if err != nil {
		return err
	}

	// A received message is already acknowledged, so it is handled to
	// completion even if ctx is cancelled meanwhile.
	s.handle(context.WithoutCancel(ctx), msg)
	return nil
}

func (s *Service) queueAttr() metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("messaging.destination.name", s.connector.Queue()))
}

func (s *Service) handle(ctx context.Context, msg broker.Message) {
	s.metrics.messagesReceived.Add(ctx, 1, s.queueAttr())

	job, ok := printjob.Decode(msg, s.now())
	if !ok {
		s.metrics.messagesDropped.Add(ctx, 1, s.queueAttr())
		s.log.InfoContext(
			ctx,
			"received non-binary message",
			broker.MessageIDAttr(msg.ID),
			slog.String("message.kind", msg.Kind.String()),
		)
		return
	}

	ctx, span := tracer().Start(ctx, "handle print job", trace.WithAttributes(
		attribute.String("printq.job.id", job.ID.String()),
		attribute.String("messaging.message.id", job.MessageID),
		attribute.String("messaging.destination.name", job.Source),
	))
	defer span.End()

	entry := journal.Entry{
		JobID:            job.ID,
		MessageID:        job.MessageID,
		Source:           job.Source,
		FileName:         job.FileName,
		JobName:          job.JobName,
		PrinterRequested: s.printer,
		ArrivedAt:        job.ArrivedAt,
	}

	entry.BackupLocation, entry.BackupError = s.backupJob(ctx, job)
	entry.PrinterUsed, entry.Outcome, entry.Error = s.printJob(ctx, span, job)
	entry.FinishedAt = s.now()

	s.record(ctx, entry)
	s.log.InfoContext(ctx, "message read", slog.Any("job", job), slog.String("outcome", string(entry.Outcome)))
}

// backupJob always runs before printJob for the same job.
func (s *Service) backupJob(ctx context.Context, job printjob.Job) (location, errMsg string) {
	location, err := s.backup.Write(ctx, backup.Record{
		Payload:   job.Payload,
		FileName:  job.FileName,
		Timestamp: job.ArrivedAt,
	})
	if err != nil {
		s.metrics.backupsFailed.Add(ctx, 1, s.queueAttr())
		if errors.Is(err, backup.ErrNoFileName) {
			s.log.WarnContext(ctx, "file name not found", slog.String("job.id", job.ID.String()))
		} else {
			s.log.ErrorContext(ctx, "failed to write backup", slog.String("job.id", job.ID.String()), slog.Any("error", err))
		}
		return "", err.Error()
	}

	s.metrics.backupsWritten.Add(ctx, 1, s.queueAttr())
	s.log.InfoContext(ctx, "file write", slog.String("backup.location", location))
	return location, ""
}

func (s *Service) printJob(ctx context.Context, span trace.Span, job printjob.Job) (used string, outcome journal.Outcome, errMsg string) {
	res, err := s.dispatcher.Dispatch(ctx, printer.Request{
		Payload:  job.Payload,
		JobName:  job.JobName,
		Printer:  s.printer,
		Fallback: s.fallback,
	})
	if err == nil {
		s.metrics.jobsSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("printer.name", res.Service.Name)))
		return res.Service.Name, journal.OutcomePrinted, ""
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	reason := "submit_failed"
	outcome = journal.OutcomeSubmitFailed
	if errors.Is(err, printer.ErrNotFound) {
		reason = "printer_not_found"
		outcome = journal.OutcomePrinterNotFound
	} else {
		s.log.ErrorContext(ctx, "failed to submit print job", printer.PrinterAttr(s.printer), slog.Any("error", err))
	}
	s.metrics.jobsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	return "", outcome, err.Error()
}

func (s *Service) record(ctx context.Context, e journal.Entry) {
	if s.journal == nil {
		return
	}
	err := s.journal.Record(ctx, e)
	if err != nil {
		s.log.WarnContext(ctx, "failed to journal print job", slog.String("job.id", e.JobID.String()), slog.Any("error", err))
	}
}

// sleep reports false if ctx was cancelled before d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
