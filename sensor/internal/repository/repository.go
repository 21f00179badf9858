package repository

import (
	"context"
	"errors"

	"github.com/telhawk-systems/proximity-stack/sensor/internal/models"
)

var (
	ErrInvalidLimit  = errors.New("limit must be positive")
	ErrInvalidOffset = errors.New("offset must not be negative")
	ErrNilRecord     = errors.New("record is nil")
)

// Repository is the record store. Insert assigns record.ID; List returns
// records ordered by timestamp descending, then ID descending.
type Repository interface {
	Insert(ctx context.Context, record *models.SensorRecord) error
	Count(ctx context.Context, filter models.RecordFilter) (int, error)
	List(ctx context.Context, filter models.RecordFilter, limit, offset int) ([]*models.SensorRecord, error)
	Ping(ctx context.Context) error
	Close()
}

func checkWindow(limit, offset int) error {
	if limit < 1 {
		return ErrInvalidLimit
	}
	if offset < 0 {
		return ErrInvalidOffset
	}
	return nil
}
