// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package amqp implements a [broker.Driver] for AMQP 0-9-1 brokers such as RabbitMQ.
//
// Every consumer declares its queue, durable by default, and consumes with
// automatic acknowledgement, so a message is considered delivered the moment it is
// handed to the client.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/z5labs/printq/broker"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Driver dials AMQP connections.
type Driver struct {
	url            string
	log            *slog.Logger
	durable        bool
	prefetch       int
	heartbeat      time.Duration
	connectTimeout time.Duration
	connectionName string
}

// Option configures a [Driver].
type Option func(*Driver)

// WithLogger sets the logger used by the driver.
func WithLogger(log *slog.Logger) Option {
	return func(d *Driver) {
		d.log = log
	}
}

// Durable controls whether queues are declared as durable. The default is true.
func Durable(durable bool) Option {
	return func(d *Driver) {
		d.durable = durable
	}
}

// Prefetch limits how many unprocessed deliveries the broker pushes ahead.
func Prefetch(n int) Option {
	return func(d *Driver) {
		d.prefetch = n
	}
}

// Heartbeat sets the heartbeat interval negotiated with the broker.
func Heartbeat(interval time.Duration) Option {
	return func(d *Driver) {
		d.heartbeat = interval
	}
}

// ConnectTimeout bounds the TCP dial and handshake.
func ConnectTimeout(timeout time.Duration) Option {
	return func(d *Driver) {
		d.connectTimeout = timeout
	}
}

// ConnectionName is reported to the broker for display in its management UI.
func ConnectionName(name string) Option {
	return func(d *Driver) {
		d.connectionName = name
	}
}

// NewDriver returns a [Driver] for the broker at host authenticating with
// the given credentials.
func NewDriver(host, user, password string, opts ...Option) (*Driver, error) {
	u, err := BrokerURL(host, user, password)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		url:            u,
		log:            slog.New(slog.DiscardHandler),
		durable:        true,
		prefetch:       1,
		heartbeat:      10 * time.Second,
		connectTimeout: 30 * time.Second,
		connectionName: "printq",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// BrokerURL builds an AMQP URL from a host and credentials.
//
// The host may be a bare host[:port] or a URL with an amqp, amqps or tcp
// scheme. tcp is treated as amqp. Credentials always replace any userinfo
// already present in host.
func BrokerURL(host, user, password string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", fmt.Errorf("amqp: empty broker host")
	}
	if !strings.Contains(host, "://") {
		host = "amqp://" + host
	}

	u, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("amqp: invalid broker host: %w", err)
	}

	switch u.Scheme {
	case "amqp", "amqps":
	case "tcp":
		u.Scheme = "amqp"
	default:
		return "", fmt.Errorf("amqp: unsupported scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("amqp: missing host in %q", host)
	}

	u.User = url.UserPassword(user, password)
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = ""
	return u.String(), nil
}

// Dial implements the [broker.Driver] interface.
//
// Cancelling ctx aborts a dial or handshake which is still in progress.
func (d *Driver) Dial(ctx context.Context) (broker.Connection, error) {
	var (
		mu   sync.Mutex
		dial net.Conn
	)
	stop := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if dial != nil {
			_ = dial.SetDeadline(time.Now())
		}
	})

	conn, err := amqp.DialConfig(d.url, amqp.Config{
		Heartbeat: d.heartbeat,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			dialer := net.Dialer{Timeout: d.connectTimeout}
			c, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			// The deadline covers the handshake and is cleared once the
			// connection is open.
			err = c.SetDeadline(time.Now().Add(d.connectTimeout))
			if err != nil {
				_ = c.Close()
				return nil, err
			}

			mu.Lock()
			defer mu.Unlock()
			dial = c
			if ctx.Err() != nil {
				_ = c.SetDeadline(time.Now())
			}
			return c, nil
		},
		Properties: amqp.Table{
			"connection_name": d.connectionName,
		},
	})
	if !stop() {
		if conn != nil {
			_ = conn.Close()
		}
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &connection{driver: d, conn: conn}, nil
}

type connection struct {
	driver *Driver
	conn   *amqp.Connection
}

func (c *connection) Session(ctx context.Context) (broker.Session, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}

	if c.driver.prefetch > 0 {
		err = ch.Qos(c.driver.prefetch, 0, false)
		if err != nil {
			_ = ch.Close()
			return nil, err
		}
	}
	return &session{driver: c.driver, ch: ch}, nil
}

func (c *connection) Close() error {
	return c.conn.Close()
}

type session struct {
	driver *Driver
	ch     *amqp.Channel
}

func (s *session) Consumer(ctx context.Context, queue string) (broker.Consumer, error) {
	q, err := s.ch.QueueDeclare(
		queue,            // name
		s.driver.durable, // durable
		false,            // delete when unused
		false,            // exclusive
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		return nil, err
	}

	tag := "printq-" + uuid.NewString()
	deliveries, err := s.ch.ConsumeWithContext(
		ctx,
		q.Name, // queue
		tag,    // consumer
		true,   // autoAck
		false,  // exclusive
		false,  // noLocal
		false,  // noWait
		nil,    // args
	)
	if err != nil {
		return nil, err
	}

	s.driver.log.DebugContext(ctx, "consuming", broker.DestinationAttr(q.Name), slog.String("consumer.tag", tag))

	return &consumer{
		ch:         s.ch,
		tag:        tag,
		queue:      q.Name,
		deliveries: deliveries,
	}, nil
}

func (s *session) Close() error {
	return s.ch.Close()
}

type consumer struct {
	ch         *amqp.Channel
	tag        string
	queue      string
	deliveries <-chan amqp.Delivery
}

func (c *consumer) Receive(ctx context.Context) (broker.Message, error) {
	select {
	case <-ctx.Done():
		return broker.Message{}, ctx.Err()
	case d, ok := <-c.deliveries:
		if !ok {
			return broker.Message{}, broker.ErrConsumerClosed
		}
		return toMessage(c.queue, d), nil
	}
}

func (c *consumer) Close() error {
	return c.ch.Cancel(c.tag, false)
}

func toMessage(queue string, d amqp.Delivery) broker.Message {
	id := d.MessageId
	if id == "" {
		id = strconv.FormatUint(d.DeliveryTag, 10)
	}

	return broker.Message{
		ID:          id,
		Kind:        kindOf(d.ContentType),
		Body:        d.Body,
		ContentType: d.ContentType,
		Destination: queue,
		Properties:  properties(d.Headers),
		Raw:         d,
	}
}

// kindOf treats text/* content as text and everything else as binary.
func kindOf(contentType string) broker.Kind {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "text/") {
		return broker.KindText
	}
	return broker.KindBytes
}

func properties(headers amqp.Table) map[string]string {
	props := make(map[string]string, len(headers))
	for k, v := range headers {
		switch v := v.(type) {
		case string:
			props[k] = v
		case []byte:
			props[k] = string(v)
		}
	}
	return props
}
