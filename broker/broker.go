// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package broker manages the lifecycle of a message broker connection.
//
// A broker client is consumed through three nested handles: a [Connection],
// a [Session] opened on it, and a [Consumer] bound to a single queue. The
// [Connector] creates and destroys the three as one unit, so callers only
// ever observe a fully connected or a fully disconnected state.
package broker

import (
	"context"
	"errors"
	"log/slog"
)

var (
	// ErrDisconnected is returned when receiving without a live connection.
	ErrDisconnected = errors.New("broker: not connected")

	// ErrConsumerClosed is returned by a [Consumer] whose delivery stream
	// ended, usually because the underlying connection broke.
	ErrConsumerClosed = errors.New("broker: consumer closed")
)

// Kind classifies the payload carried by a [Message].
type Kind int

const (
	// KindOther is any message whose body is neither bytes nor text.
	KindOther Kind = iota

	// KindBytes is a binary message whose body is the raw document.
	KindBytes

	// KindText is a text message.
	KindText
)

// String implements the [fmt.Stringer] interface.
func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindText:
		return "text"
	default:
		return "other"
	}
}

// Message is a single message received from a broker queue.
type Message struct {
	ID          string
	Kind        Kind
	Body        []byte
	ContentType string
	Destination string
	Properties  map[string]string

	// Raw is the driver specific message, e.g. an amqp.Delivery.
	Raw any
}

// Property returns the named string property, or "" when absent.
func (m Message) Property(name string) string {
	if m.Properties == nil {
		return ""
	}
	return m.Properties[name]
}

// LogValue implements the [slog.LogValuer] interface.
func (m Message) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", m.ID),
		slog.String("kind", m.Kind.String()),
		slog.String("content_type", m.ContentType),
		slog.Int("size", len(m.Body)),
	)
}

// Driver opens connections to a specific broker technology.
type Driver interface {
	Dial(context.Context) (Connection, error)
}

// DriverFunc is a func type of the [Driver] interface.
type DriverFunc func(context.Context) (Connection, error)

// Dial implements the [Driver] interface.
func (f DriverFunc) Dial(ctx context.Context) (Connection, error) {
	return f(ctx)
}

// Connection is an open network connection to a broker.
type Connection interface {
	Session(context.Context) (Session, error)
	Close() error
}

// Session is a unit of work opened on a [Connection].
type Session interface {
	Consumer(ctx context.Context, queue string) (Consumer, error)
	Close() error
}

// Consumer receives messages from a single queue. Messages are acknowledged
// by the broker as soon as they are delivered.
type Consumer interface {
	Receive(context.Context) (Message, error)
	Close() error
}

// DestinationAttr returns a slog attribute naming the queue a message was consumed from.
func DestinationAttr(queue string) slog.Attr {
	return slog.String("messaging.destination.name", queue)
}

// MessageIDAttr returns a slog attribute holding the broker assigned message id.
func MessageIDAttr(id string) slog.Attr {
	return slog.String("messaging.message.id", id)
}
