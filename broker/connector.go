// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package broker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/z5labs/printq/health"
)

// state is either disconnected or connected.
type state interface {
	isState()
}

type disconnected struct{}

func (disconnected) isState() {}

// connected always holds all three handles.
type connected struct {
	conn     Connection
	session  Session
	consumer Consumer
}

func (connected) isState() {}

// Connector owns the connection, session and consumer for one queue.
//
// A Connector is not safe for concurrent use except for [Connector.Healthy],
// which may be called from any goroutine.
type Connector struct {
	driver Driver
	queue  string
	log    *slog.Logger

	state   state
	healthy health.Binary
}

// Option configures a [Connector].
type Option func(*Connector)

// WithLogger sets the logger used to report connection lifecycle events.
func WithLogger(log *slog.Logger) Option {
	return func(c *Connector) {
		c.log = log
	}
}

// NewConnector returns a disconnected [Connector] for the given queue.
func NewConnector(driver Driver, queue string, opts ...Option) *Connector {
	c := &Connector{
		driver: driver,
		queue:  queue,
		log:    slog.New(slog.DiscardHandler),
		state:  disconnected{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Queue returns the name of the queue consumed from.
func (c *Connector) Queue() string {
	return c.queue
}

// Connected reports whether the connector currently holds a live connection.
func (c *Connector) Connected() bool {
	_, ok := c.state.(connected)
	return ok
}

// Healthy implements the [health.Monitor] interface. It reports whether
// the connector is connected and is safe to call from any goroutine.
func (c *Connector) Healthy(ctx context.Context) (bool, error) {
	return c.healthy.Healthy(ctx)
}

// Connect opens the connection, session and consumer as one unit.
//
// Connect is a no-op returning true when already connected. On failure
// every handle created so far is closed, the failure is logged and false
// is returned.
func (c *Connector) Connect(ctx context.Context) bool {
	if c.Connected() {
		return true
	}

	st, err := c.open(ctx)
	if err != nil {
		c.log.ErrorContext(ctx, "failed to connect to broker", DestinationAttr(c.queue), slog.Any("error", err))
		return false
	}

	c.state = st
	c.healthy.MarkHealthy()
	c.log.InfoContext(ctx, "connection created", DestinationAttr(c.queue))
	return true
}

func (c *Connector) open(ctx context.Context) (st connected, err error) {
	conn, err := c.driver.Dial(ctx)
	if err != nil {
		return st, err
	}

	session, err := conn.Session(ctx)
	if err != nil {
		return st, errors.Join(err, conn.Close())
	}

	consumer, err := session.Consumer(ctx, c.queue)
	if err != nil {
		return st, errors.Join(err, session.Close(), conn.Close())
	}

	return connected{
		conn:     conn,
		session:  session,
		consumer: consumer,
	}, nil
}

// Close tears down the consumer, session and connection in that order.
//
// Close returns false without doing anything when already disconnected.
// Every handle is closed even if an earlier close fails, each failure is
// logged, and the connector always ends up disconnected. The returned value
// is true only if every handle closed cleanly.
func (c *Connector) Close() bool {
	st, ok := c.state.(connected)
	if !ok {
		return false
	}
	defer func() {
		c.state = disconnected{}
		c.healthy.MarkUnhealthy()
	}()

	clean := true
	closers := []struct {
		name  string
		close func() error
	}{
		{name: "consumer", close: st.consumer.Close},
		{name: "session", close: st.session.Close},
		{name: "connection", close: st.conn.Close},
	}
	for _, closer := range closers {
		err := closer.close()
		if err == nil {
			continue
		}
		clean = false
		c.log.Error(
			"failed to close broker handle",
			slog.String("handle", closer.name),
			DestinationAttr(c.queue),
			slog.Any("error", err),
		)
	}

	c.log.Info("connection closed", DestinationAttr(c.queue))
	return clean
}

// Receive blocks until the next message is delivered or ctx is done.
//
// Receive fails fast with [ErrDisconnected] when not connected. A receive
// interrupted by ctx reports the context's error rather than whatever the
// consumer returned. A message which was delivered is always returned, even
// if ctx was cancelled in the meantime, since the broker already considers
// it acknowledged.
func (c *Connector) Receive(ctx context.Context) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	st, ok := c.state.(connected)
	if !ok {
		return Message{}, ErrDisconnected
	}

	msg, err := st.consumer.Receive(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Message{}, ctxErr
		}
		return Message{}, err
	}
	return msg, nil
}
