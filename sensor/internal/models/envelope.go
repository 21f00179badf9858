package models

// RawEnvelope is the push delivery wrapper produced by the message source
// (Pub/Sub push format). Only Message.Data is consumed; the remaining
// fields are carried for logging and are never validated.
type RawEnvelope struct {
	Message      *PushMessage `json:"message"`
	Subscription string       `json:"subscription,omitempty"`
}

// PushMessage carries the base64 payload and opaque delivery metadata.
type PushMessage struct {
	// Data is a pointer so that a missing key can be told apart from "".
	Data           *string           `json:"data"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	MessageID      string            `json:"messageId,omitempty"`
	MessageIDAlt   string            `json:"message_id,omitempty"`
	PublishTime    string            `json:"publishTime,omitempty"`
	PublishTimeAlt string            `json:"publish_time,omitempty"`
}

// ID returns whichever message id spelling the publisher used.
func (m *PushMessage) ID() string {
	if m == nil {
		return ""
	}
	if m.MessageID != "" {
		return m.MessageID
	}
	return m.MessageIDAlt
}

// Field names read from a decoded SensorReading.
const (
	ReadingSensorID      = "v0"
	ReadingHumanPresence = "v11"
	ReadingDwellTime     = "v18"
	ReadingTime          = "Time"
)
