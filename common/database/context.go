// Package database holds the per-operation deadlines shared by the record
// store backends.
package database

import (
	"context"
	"time"
)

const (
	// ReadTimeout bounds a single count or page fetch.
	ReadTimeout = 5 * time.Second

	// WriteTimeout bounds a single record insert, including id allocation.
	WriteTimeout = 5 * time.Second

	// PingTimeout bounds a readiness probe against the store.
	PingTimeout = 2 * time.Second
)

// ReadContext derives a context for count and list queries.
func ReadContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ReadTimeout)
}

// WriteContext derives a context for inserts.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, WriteTimeout)
}

func PingContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, PingTimeout)
}
