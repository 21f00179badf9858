// Package sensorerr defines the error taxonomy shared by the ingestion
// pipeline and the query engine. Every failure is classified with a Kind so
// boundaries (HTTP handlers, the queue consumer) can choose a transport
// representation without inspecting concrete error types.
package sensorerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure by the layer that produced it.
type Kind int

const (
	KindUnknown Kind = iota

	// Ingestion, caller class.
	KindMalformedEnvelope
	KindDecode
	KindParse
	KindFieldExtraction
	KindValidation

	// Query, caller class.
	KindPagination
	KindPageNotFound
	KindInvalidFilter

	// System class.
	KindStore
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindMalformedEnvelope: "malformed_envelope",
	KindDecode:            "decode",
	KindParse:             "parse",
	KindFieldExtraction:   "field_extraction",
	KindValidation:        "validation",
	KindPagination:        "pagination",
	KindPageNotFound:      "page_not_found",
	KindInvalidFilter:     "invalid_filter",
	KindStore:             "store",
}

// String returns the snake_case name used in logs, metrics and DLQ subjects.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsClientError reports whether the caller, not the system, is at fault.
func (k Kind) IsClientError() bool {
	switch k {
	case KindMalformedEnvelope, KindDecode, KindParse, KindFieldExtraction,
		KindValidation, KindPagination, KindPageNotFound, KindInvalidFilter:
		return true
	default:
		return false
	}
}

// HTTPStatus maps the kind to the status code returned by the HTTP API.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindPageNotFound:
		return http.StatusNotFound
	case KindStore, KindUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Error is a classified failure. Field names the offending payload or query
// field when one is known.
type Error struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *Error) Error() string {
	msg := "unknown error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: field %q: %s", e.Kind, e.Field, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Kind, so errors.Is(err,
// &Error{Kind: KindDecode}) works as a kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Field == "" || t.Field == e.Field)
}

// New returns an *Error of kind k wrapping err.
func New(k Kind, err error) *Error {
	return &Error{Kind: k, Err: err}
}

// Newf returns an *Error of kind k with a formatted message.
func Newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Err: fmt.Errorf(format, args...)}
}

// FieldError returns an *Error of kind k attributed to field.
func FieldError(k Kind, field string, format string, args ...any) *Error {
	return &Error{Kind: k, Field: field, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// FieldOf returns the field attributed to err, if any.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

// Message returns the underlying cause without the kind prefix, suitable for
// an API error body.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
