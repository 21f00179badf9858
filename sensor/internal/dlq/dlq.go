// Package dlq publishes envelopes that exhausted their deliveries to the
// JetStream dead letter stream.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/proximity-stack/common/logging"
	"github.com/telhawk-systems/proximity-stack/common/messaging"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/metrics"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/sensorerr"
)

// FailedEnvelope is the DLQ entry written for a rejected delivery. Payload
// holds the original message body unchanged.
type FailedEnvelope struct {
	Timestamp  time.Time `json:"timestamp"`
	Subject    string    `json:"subject"`
	MessageID  string    `json:"message_id,omitempty"`
	Kind       string    `json:"kind"`
	Field      string    `json:"field,omitempty"`
	Error      string    `json:"error"`
	Deliveries uint64    `json:"deliveries"`
	Payload    []byte    `json:"payload"`
}

// NewFailedEnvelope builds an entry from the classified error.
func NewFailedEnvelope(subject string, payload []byte, deliveries uint64, err error) *FailedEnvelope {
	return &FailedEnvelope{
		Timestamp:  time.Now().UTC(),
		Subject:    subject,
		Kind:       sensorerr.KindOf(err).String(),
		Field:      sensorerr.FieldOf(err),
		Error:      sensorerr.Message(err),
		Deliveries: deliveries,
		Payload:    payload,
	}
}

// Queue writes failed envelopes to sensor.dlq.<kind>. A nil *Queue is a
// disabled DLQ and drops writes.
type Queue struct {
	pub     messaging.Publisher
	logger  *logging.Logger
	written atomic.Uint64
}

func NewQueue(pub messaging.Publisher, logger *logging.Logger) (*Queue, error) {
	if pub == nil {
		return nil, fmt.Errorf("dlq publisher is nil")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Queue{pub: pub, logger: logger}, nil
}

// Write publishes entry. MessageID, when set, becomes the JetStream
// de-duplication ID so a redelivered failure is stored once.
func (q *Queue) Write(ctx context.Context, entry *FailedEnvelope) error {
	if q == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	id := entry.MessageID
	if id == "" {
		id = uuid.NewString()
	}

	msg := &messaging.Message{
		Subject: messaging.SensorDLQSubject(entry.Kind),
		Data:    data,
		ID:      "dlq-" + id,
		Metadata: map[string]string{
			"Sensor-Error-Kind":     entry.Kind,
			"Sensor-Origin-Subject": entry.Subject,
		},
		Timestamp: entry.Timestamp,
	}

	if err := q.pub.PublishMsg(ctx, msg); err != nil {
		metrics.DLQWriteErrors.Inc()
		q.logger.ErrorContext(ctx, "failed to publish DLQ entry",
			logging.Subject(msg.Subject),
			logging.Error(err),
		)
		return fmt.Errorf("publish dlq entry: %w", err)
	}

	q.written.Add(1)
	metrics.DLQMessagesTotal.WithLabelValues(entry.Kind).Inc()
	q.logger.InfoContext(ctx, "envelope dead-lettered",
		logging.Subject(msg.Subject),
		logging.Kind(entry.Kind),
	)
	return nil
}

// Written returns the number of entries this process has published.
func (q *Queue) Written() uint64 {
	if q == nil {
		return 0
	}
	return q.written.Load()
}
