package subscriber

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/telhawk-systems/proximity-stack/common/logging"
	"github.com/telhawk-systems/proximity-stack/common/messaging/nats"
)

// Config names the stream and durable consumer to read from.
type Config struct {
	Stream        string
	Consumer      string
	Subject       string
	AckWait       time.Duration
	MaxDeliver    int
	MaxAckPending int
	NakDelay      time.Duration
}

// Subscriber runs a Handler against a durable JetStream consumer.
type Subscriber struct {
	js      *nats.JetStreamClient
	handler *Handler
	cfg     Config
	logger  *logging.Logger
}

func New(js *nats.JetStreamClient, handler *Handler, cfg Config, logger *logging.Logger) *Subscriber {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Subscriber{js: js, handler: handler, cfg: cfg, logger: logger}
}

// TelemetryStream returns the stream settings for cfg. Subjects outside
// sensor.telemetry.> get a stream bound to that subject alone.
func TelemetryStream(cfg Config) nats.StreamConfig {
	stream := nats.SensorTelemetryStream
	if cfg.Stream != "" {
		stream.Name = cfg.Stream
	}
	if cfg.Subject != "" && !strings.HasPrefix(cfg.Subject, "sensor.telemetry.") {
		stream.Subjects = []string{cfg.Subject}
	}
	return stream
}

// Start provisions the stream and consumer, then begins delivering
// messages. The returned function drains in-flight deliveries and stops.
func (s *Subscriber) Start(ctx context.Context) (func(), error) {
	stream := TelemetryStream(s.cfg)
	if _, err := s.js.CreateOrUpdateStream(ctx, stream); err != nil {
		return nil, fmt.Errorf("provision stream: %w", err)
	}

	consumer := nats.ConsumerConfig{
		Name:          s.cfg.Consumer,
		FilterSubject: s.cfg.Subject,
		AckWait:       s.cfg.AckWait,
		MaxDeliver:    s.cfg.MaxDeliver,
		MaxAckPending: s.cfg.MaxAckPending,
	}
	if _, err := s.js.CreateOrUpdateConsumer(ctx, stream.Name, consumer); err != nil {
		return nil, fmt.Errorf("provision consumer: %w", err)
	}

	stop, err := s.js.Consume(ctx, stream.Name, consumer.Name, s.handler.HandleMsg, s.logger.Logger)
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscriber started",
		"stream", stream.Name,
		"consumer", consumer.Name,
		logging.Subject(consumer.FilterSubject),
	)
	return stop, nil
}
