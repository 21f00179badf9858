package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/proximity-stack/common/messaging"
)

// JetStreamClient is a Client with JetStream persistence. It is the
// messaging.Publisher used by the seeder and the dead letter queue.
type JetStreamClient struct {
	*Client
	js jetstream.JetStream
}

var _ messaging.Publisher = (*JetStreamClient)(nil)

// StreamConfig is the subset of jetstream.StreamConfig the sensor streams set.
type StreamConfig struct {
	Name      string
	Subjects  []string
	MaxAge    time.Duration
	MaxBytes  int64
	MaxMsgs   int64
	Retention jetstream.RetentionPolicy
	Storage   jetstream.StorageType

	// Duplicates is the Nats-Msg-Id de-duplication window.
	Duplicates time.Duration
}

func (s StreamConfig) toJS() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:       s.Name,
		Subjects:   s.Subjects,
		MaxAge:     s.MaxAge,
		MaxBytes:   s.MaxBytes,
		MaxMsgs:    s.MaxMsgs,
		Retention:  s.Retention,
		Storage:    s.Storage,
		Duplicates: s.Duplicates,
	}
}

// ConsumerConfig describes a durable, explicitly acked pull consumer.
// Zero values fall back to the defaults below.
type ConsumerConfig struct {
	Name          string
	FilterSubject string
	AckWait       time.Duration
	MaxDeliver    int

	// MaxAckPending caps unacked deliveries; it is the only backpressure.
	MaxAckPending int
}

const (
	defaultAckWait       = 30 * time.Second
	defaultMaxDeliver    = 5
	defaultMaxAckPending = 256
)

func (c ConsumerConfig) toJS() jetstream.ConsumerConfig {
	out := jetstream.ConsumerConfig{
		Name:          c.Name,
		Durable:       c.Name,
		FilterSubject: c.FilterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.AckWait,
		MaxDeliver:    c.MaxDeliver,
		MaxAckPending: c.MaxAckPending,
	}
	if out.AckWait <= 0 {
		out.AckWait = defaultAckWait
	}
	if out.MaxDeliver <= 0 {
		out.MaxDeliver = defaultMaxDeliver
	}
	if out.MaxAckPending <= 0 {
		out.MaxAckPending = defaultMaxAckPending
	}
	return out
}

func NewJetStreamClient(cfg Config) (*JetStreamClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(client.conn)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &JetStreamClient{Client: client, js: js}, nil
}

// CreateOrUpdateStream provisions cfg. It is idempotent.
func (c *JetStreamClient) CreateOrUpdateStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, cfg.toJS())
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// CreateOrUpdateConsumer provisions a durable consumer on streamName.
func (c *JetStreamClient) CreateOrUpdateConsumer(ctx context.Context, streamName string, cfg ConsumerConfig) (jetstream.Consumer, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", streamName, err)
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, cfg.toJS())
	if err != nil {
		return nil, fmt.Errorf("consumer %s on %s: %w", cfg.Name, streamName, err)
	}
	return consumer, nil
}

// PublishMsg waits for the stream ack. A non-empty msg.ID is sent as
// Nats-Msg-Id so repeats inside the stream's Duplicates window are dropped.
func (c *JetStreamClient) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	out := nats.NewMsg(msg.Subject)
	out.Data = msg.Data
	for k, v := range msg.Headers() {
		out.Header.Set(k, v)
	}
	if msg.ID != "" {
		out.Header.Set(nats.MsgIdHdr, msg.ID)
	}

	if _, err := c.js.PublishMsg(ctx, out); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// Consume hands every message of the durable consumer to handler, which
// must ack, nak or term it. The returned stop func drains in-flight
// handlers before returning.
func (c *JetStreamClient) Consume(ctx context.Context, streamName, consumerName string, handler func(context.Context, jetstream.Msg), logger *slog.Logger) (func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	consumer, err := c.js.Consumer(ctx, streamName, consumerName)
	if err != nil {
		return nil, fmt.Errorf("consumer %s on %s: %w", consumerName, streamName, err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	cc, err := consumer.Consume(
		func(msg jetstream.Msg) { handler(consumeCtx, msg) },
		jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
			logger.Warn("jetstream consume error", slog.String("consumer", consumerName), slog.String("error", err.Error()))
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("consume %s: %w", consumerName, err)
	}

	return func() {
		cc.Drain()
		<-cc.Closed()
		cancel()
	}, nil
}

var (
	// SensorTelemetryStream is a work queue: each envelope is removed once
	// the ingest consumer acks it.
	SensorTelemetryStream = StreamConfig{
		Name:       "SENSOR_TELEMETRY",
		Subjects:   []string{messaging.SubjectSensorTelemetryAll},
		MaxAge:     72 * time.Hour,
		MaxBytes:   1 << 30,
		MaxMsgs:    10_000_000,
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		Duplicates: 2 * time.Minute,
	}

	// SensorDLQStream holds envelopes that exhausted their deliveries.
	SensorDLQStream = StreamConfig{
		Name:      "SENSOR_DLQ",
		Subjects:  []string{messaging.SubjectSensorDLQAll},
		MaxAge:    7 * 24 * time.Hour,
		MaxBytes:  256 << 20,
		MaxMsgs:   1_000_000,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	}
)
