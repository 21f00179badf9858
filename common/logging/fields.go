package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across services.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldKind      = "error_kind"
	FieldField     = "field"
	FieldSensorID  = "sensor_id"
	FieldRecordID  = "record_id"
	FieldSubject   = "subject"
	FieldSource    = "source"
	FieldDelivery  = "delivery"
	FieldStreamMsg = "stream_msg_id"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for d in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// Kind returns a slog attribute for a classified error kind.
func Kind(kind string) slog.Attr {
	return slog.String(FieldKind, kind)
}

// Field returns a slog attribute naming an offending payload field.
func Field(name string) slog.Attr {
	return slog.String(FieldField, name)
}

// SensorID returns a slog attribute for a sensor device ID.
func SensorID(id int64) slog.Attr {
	return slog.Int64(FieldSensorID, id)
}

// RecordID returns a slog attribute for a stored record ID.
func RecordID(id int64) slog.Attr {
	return slog.Int64(FieldRecordID, id)
}

// Subject returns a slog attribute for a message subject.
func Subject(subject string) slog.Attr {
	return slog.String(FieldSubject, subject)
}

// Source returns a slog attribute for the ingestion entry point (http, queue).
func Source(source string) slog.Attr {
	return slog.String(FieldSource, source)
}

// Delivery returns a slog attribute for a message delivery attempt number.
func Delivery(n uint64) slog.Attr {
	return slog.Uint64(FieldDelivery, n)
}
