// Package messaging defines what producers hand to the broker. The sensor
// seeder and the dead letter queue publish through Publisher so neither is
// tied to JetStream.
package messaging

import (
	"context"
	"time"
)

// HeaderPublishedAt carries Message.Timestamp in RFC 3339 form.
const HeaderPublishedAt = "Sensor-Published-At"

type Message struct {
	Subject string
	Data    []byte

	// ID, when set, lets a de-duplicating broker drop repeated publishes.
	ID string

	// Metadata becomes message headers.
	Metadata map[string]string

	// Timestamp is the producer's clock at publish time. Zero omits it.
	Timestamp time.Time
}

// Headers returns Metadata plus the derived headers, or nil when there are
// none.
func (m *Message) Headers() map[string]string {
	if len(m.Metadata) == 0 && m.Timestamp.IsZero() {
		return nil
	}
	h := make(map[string]string, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		h[k] = v
	}
	if !m.Timestamp.IsZero() {
		h[HeaderPublishedAt] = m.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return h
}

// Publisher sends a message and waits for the broker to persist it.
type Publisher interface {
	PublishMsg(ctx context.Context, msg *Message) error
}
