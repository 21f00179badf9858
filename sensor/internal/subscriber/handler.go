// Package subscriber feeds queue deliveries into the ingestion pipeline and
// settles each delivery exactly once.
package subscriber

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/proximity-stack/common/logging"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/dlq"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/metrics"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/models"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/sensorerr"
)

// Delivery is the part of jetstream.Msg the handler uses.
type Delivery interface {
	Data() []byte
	Subject() string
	Ack() error
	NakWithDelay(delay time.Duration) error
	Metadata() (*jetstream.MsgMetadata, error)
}

var _ Delivery = (jetstream.Msg)(nil)

// Ingester persists one envelope body.
type Ingester interface {
	IngestBytes(ctx context.Context, body []byte) (*models.SensorRecord, error)
}

// DeadLetterWriter receives envelopes that failed on their final delivery.
type DeadLetterWriter interface {
	Write(ctx context.Context, entry *dlq.FailedEnvelope) error
}

// Dispositions reported in metrics and logs.
const (
	DispositionAcked        = "acked"
	DispositionNaked        = "naked"
	DispositionDeadLettered = "dead_lettered"
)

type HandlerConfig struct {
	// MaxDeliver must match the consumer's MaxDeliver; the delivery that
	// reaches it is the last one and is dead-lettered on failure.
	MaxDeliver int
	// NakDelay is the redelivery delay requested on failure.
	NakDelay time.Duration
}

type Handler struct {
	ingester Ingester
	dlq      DeadLetterWriter
	cfg      HandlerConfig
	logger   *logging.Logger
}

// NewHandler creates a handler. deadLetters may be nil to disable the DLQ.
func NewHandler(ingester Ingester, deadLetters DeadLetterWriter, cfg HandlerConfig, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		ingester: ingester,
		dlq:      deadLetters,
		cfg:      cfg,
		logger:   logger,
	}
}

// HandleMsg adapts Handle to nats.JetStreamClient.Consume.
func (h *Handler) HandleMsg(ctx context.Context, msg jetstream.Msg) {
	h.Handle(ctx, msg)
}

// Handle ingests d and acks on success. Any failure is nak'd with the
// configured delay; on the final delivery the envelope is first written to
// the DLQ. It returns the chosen disposition.
func (h *Handler) Handle(ctx context.Context, d Delivery) string {
	deliveries, messageID := deliveryInfo(d)
	ctx = logging.WithStreamMessage(ctx, messageID)
	logger := h.logger.With(
		logging.Subject(d.Subject()),
		logging.Delivery(deliveries),
	)

	record, err := h.ingester.IngestBytes(ctx, d.Data())
	if err == nil {
		if ackErr := d.Ack(); ackErr != nil {
			logger.ErrorContext(ctx, "failed to ack delivery", logging.RecordID(record.ID), logging.Error(ackErr))
		}
		metrics.DeliveriesTotal.WithLabelValues(DispositionAcked).Inc()
		return DispositionAcked
	}

	disposition := DispositionNaked
	if h.isFinal(deliveries) && h.dlq != nil {
		entry := dlq.NewFailedEnvelope(d.Subject(), d.Data(), deliveries, err)
		entry.MessageID = messageID
		if dlqErr := h.dlq.Write(ctx, entry); dlqErr != nil {
			logger.ErrorContext(ctx, "dead letter write failed, envelope will be dropped by the consumer",
				logging.Kind(sensorerr.KindOf(err).String()),
				logging.Error(dlqErr),
			)
		} else {
			disposition = DispositionDeadLettered
		}
	}

	if nakErr := d.NakWithDelay(h.cfg.NakDelay); nakErr != nil {
		logger.ErrorContext(ctx, "failed to nak delivery", logging.Error(nakErr))
	}
	metrics.DeliveriesTotal.WithLabelValues(disposition).Inc()
	return disposition
}

func (h *Handler) isFinal(deliveries uint64) bool {
	return h.cfg.MaxDeliver > 0 && deliveries >= uint64(h.cfg.MaxDeliver)
}

// deliveryInfo returns the delivery count and a stable per-message id.
// Without metadata the delivery is treated as the first.
func deliveryInfo(d Delivery) (uint64, string) {
	meta, err := d.Metadata()
	if err != nil || meta == nil {
		return 1, ""
	}
	return meta.NumDelivered, fmt.Sprintf("%s-%d", meta.Stream, meta.Sequence.Stream)
}
