package repository

import (
	"context"
	"time"

	"github.com/telhawk-systems/proximity-stack/sensor/internal/metrics"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/models"
)

// Instrumented records latency and error metrics for every call to the
// wrapped repository, labelled with backend.
type Instrumented struct {
	Repository
	backend string
}

func NewInstrumented(repo Repository, backend string) *Instrumented {
	return &Instrumented{Repository: repo, backend: backend}
}

func (r *Instrumented) observe(op string, start time.Time, err error) {
	metrics.StoreDuration.WithLabelValues(r.backend, op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreErrors.WithLabelValues(r.backend, op).Inc()
	}
}

func (r *Instrumented) Insert(ctx context.Context, record *models.SensorRecord) error {
	start := time.Now()
	err := r.Repository.Insert(ctx, record)
	r.observe("insert", start, err)
	return err
}

func (r *Instrumented) Count(ctx context.Context, filter models.RecordFilter) (int, error) {
	start := time.Now()
	n, err := r.Repository.Count(ctx, filter)
	r.observe("count", start, err)
	return n, err
}

func (r *Instrumented) List(ctx context.Context, filter models.RecordFilter, limit, offset int) ([]*models.SensorRecord, error) {
	start := time.Now()
	records, err := r.Repository.List(ctx, filter, limit, offset)
	r.observe("list", start, err)
	return records, err
}
