// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package kafka implements a [broker.Driver] for Apache Kafka.
//
// The queue name is used as the topic to consume. Records are committed
// before they are handed to the caller, giving the same at-most-once
// guarantee as an auto-acknowledging queue consumer.
package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/z5labs/printq/broker"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"github.com/twmb/franz-go/plugin/kslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ErrTopicNotFound is returned when the queue topic does not exist on the cluster.
var ErrTopicNotFound = errors.New("kafka: topic not found")

// GroupIDAttr returns a slog attribute naming the consumer group a record was read by.
func GroupIDAttr(groupID string) slog.Attr {
	return slog.String("messaging.consumer.group.name", groupID)
}

// PartitionAttr returns a slog attribute naming the partition a record was read from.
func PartitionAttr(partition int32) slog.Attr {
	return slog.Int64("messaging.destination.partition.id", int64(partition))
}

// OffsetAttr returns a slog attribute holding the offset of a record within its partition.
func OffsetAttr(offset int64) slog.Attr {
	return slog.Int64("messaging.kafka.offset", offset)
}

// Driver dials Kafka clusters.
type Driver struct {
	brokers        []string
	groupID        string
	log            *slog.Logger
	sessionTimeout time.Duration
	fetchMaxBytes  int32
	tlsConfig      *tls.Config
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures a [Driver].
type Option func(*Driver)

// WithLogger sets the logger used by the driver and the underlying client.
func WithLogger(log *slog.Logger) Option {
	return func(d *Driver) {
		d.log = log
	}
}

// SessionTimeout sets the consumer group session timeout.
func SessionTimeout(timeout time.Duration) Option {
	return func(d *Driver) {
		d.sessionTimeout = timeout
	}
}

// FetchMaxBytes bounds the size of a single fetch response.
func FetchMaxBytes(n int32) Option {
	return func(d *Driver) {
		d.fetchMaxBytes = n
	}
}

// TLSConfig enables TLS when dialing brokers.
func TLSConfig(cfg *tls.Config) Option {
	return func(d *Driver) {
		d.tlsConfig = cfg
	}
}

// TracerProvider sets the provider used for client tracing hooks.
func TracerProvider(tp trace.TracerProvider) Option {
	return func(d *Driver) {
		d.tracerProvider = tp
	}
}

// MeterProvider sets the provider used for client metric hooks.
func MeterProvider(mp metric.MeterProvider) Option {
	return func(d *Driver) {
		d.meterProvider = mp
	}
}

// Brokers splits a comma separated list of seed brokers.
func Brokers(hosts string) []string {
	var brokers []string
	for _, h := range strings.Split(hosts, ",") {
		h = strings.TrimSpace(h)
		h = strings.TrimPrefix(h, "tcp://")
		h = strings.TrimPrefix(h, "kafka://")
		if h == "" {
			continue
		}
		brokers = append(brokers, h)
	}
	return brokers
}

// NewDriver returns a [Driver] joining groupID on the given seed brokers.
func NewDriver(brokers []string, groupID string, opts ...Option) (*Driver, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker must be configured")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka: consumer group id must be configured")
	}

	d := &Driver{
		brokers:        brokers,
		groupID:        groupID,
		log:            slog.New(slog.DiscardHandler),
		sessionTimeout: 45 * time.Second,
		fetchMaxBytes:  50 * 1024 * 1024,
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Driver) clientOpts(extra ...kgo.Opt) []kgo.Opt {
	opts := []kgo.Opt{
		kgo.WithLogger(kslog.New(d.log)),
		kgo.WithHooks(
			kotel.NewTracer(
				kotel.TracerProvider(d.tracerProvider),
				kotel.TracerPropagator(otel.GetTextMapPropagator()),
				kotel.LinkSpans(),
				kotel.ConsumerGroup(d.groupID),
			),
			kotel.NewMeter(
				kotel.MeterProvider(d.meterProvider),
				kotel.WithMergedConnectsMeter(),
			),
		),
		kgo.SeedBrokers(d.brokers...),
	}
	if d.tlsConfig != nil {
		opts = append(opts, kgo.DialTLSConfig(d.tlsConfig))
	}
	return append(opts, extra...)
}

// Dial implements the [broker.Driver] interface. The returned connection
// has verified that at least one broker is reachable.
func (d *Driver) Dial(ctx context.Context) (broker.Connection, error) {
	client, err := kgo.NewClient(d.clientOpts()...)
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to create client: %w", err)
	}

	err = client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka: failed to reach brokers: %w", err)
	}
	return &connection{driver: d, client: client}, nil
}

type connection struct {
	driver *Driver
	client *kgo.Client
}

func (c *connection) Session(ctx context.Context) (broker.Session, error) {
	return &session{
		driver: c.driver,
		admin:  kadm.NewClient(c.client),
	}, nil
}

func (c *connection) Close() error {
	c.client.Close()
	return nil
}

// session shares the connection's client and owns no resources of its own.
type session struct {
	driver *Driver
	admin  *kadm.Client
}

func (s *session) Consumer(ctx context.Context, topic string) (broker.Consumer, error) {
	topics, err := s.admin.ListTopics(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to describe topic: %w", err)
	}
	if !topics.Has(topic) {
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
	}
	if err := topics[topic].Err; err != nil {
		return nil, fmt.Errorf("kafka: topic %s unavailable: %w", topic, err)
	}

	client, err := kgo.NewClient(s.driver.clientOpts(
		kgo.ConsumerGroup(s.driver.groupID),
		kgo.ConsumeTopics(topic),
		kgo.Balancers(kgo.CooperativeStickyBalancer()),
		kgo.SessionTimeout(s.driver.sessionTimeout),
		kgo.FetchMaxBytes(s.driver.fetchMaxBytes),
		kgo.DisableAutoCommit(),
	)...)
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to create consumer: %w", err)
	}

	return &consumer{
		log:    s.driver.log.With(GroupIDAttr(s.driver.groupID), broker.DestinationAttr(topic)),
		client: client,
	}, nil
}

func (s *session) Close() error {
	return nil
}

type consumer struct {
	log    *slog.Logger
	client *kgo.Client
}

// Receive polls a single record and commits it before returning.
func (c *consumer) Receive(ctx context.Context) (broker.Message, error) {
	for {
		fetches := c.client.PollRecords(ctx, 1)
		if fetches.IsClientClosed() {
			return broker.Message{}, broker.ErrConsumerClosed
		}
		if err := ctx.Err(); err != nil {
			return broker.Message{}, err
		}

		var fetchErr error
		fetches.EachError(func(topic string, partition int32, err error) {
			fetchErr = errors.Join(fetchErr, fmt.Errorf("kafka: fetch %s/%d: %w", topic, partition, err))
		})
		if fetchErr != nil {
			return broker.Message{}, fetchErr
		}

		records := fetches.Records()
		if len(records) == 0 {
			continue
		}

		rec := records[0]
		err := c.client.CommitRecords(ctx, rec)
		if err != nil {
			return broker.Message{}, fmt.Errorf("kafka: failed to commit record: %w", err)
		}

		c.log.DebugContext(ctx, "committed record", PartitionAttr(rec.Partition), OffsetAttr(rec.Offset))
		return toMessage(rec), nil
	}
}

// Close leaves the consumer group.
func (c *consumer) Close() error {
	c.client.Close()
	return nil
}

func toMessage(rec *kgo.Record) broker.Message {
	props := make(map[string]string, len(rec.Headers))
	for _, h := range rec.Headers {
		props[h.Key] = string(h.Value)
	}

	return broker.Message{
		ID:          rec.Topic + "/" + strconv.FormatInt(int64(rec.Partition), 10) + "/" + strconv.FormatInt(rec.Offset, 10),
		Kind:        broker.KindBytes,
		Body:        rec.Value,
		ContentType: props["content-type"],
		Destination: rec.Topic,
		Properties:  props,
		Raw:         rec,
	}
}
