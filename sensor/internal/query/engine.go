// Package query filters and paginates stored sensor records.
package query

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/telhawk-systems/proximity-stack/common/logging"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/metrics"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/models"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/sensorerr"
)

// Reader is the read side of the record store.
type Reader interface {
	Count(ctx context.Context, filter models.RecordFilter) (int, error)
	List(ctx context.Context, filter models.RecordFilter, limit, offset int) ([]*models.SensorRecord, error)
}

// Engine answers paginated record queries. Identical concurrent queries
// share one store round trip; the returned Page must be treated as
// read-only.
type Engine struct {
	store  Reader
	group  singleflight.Group
	logger *logging.Logger
}

func NewEngine(store Reader, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{store: store, logger: logger}
}

// Query returns the requested page of records matching q, newest first.
func (e *Engine) Query(ctx context.Context, q models.QueryFilter) (*models.Page, error) {
	start := time.Now()
	defer func() {
		metrics.QueryDuration.Observe(time.Since(start).Seconds())
	}()

	page, err := e.query(ctx, q)
	if err != nil {
		kind := sensorerr.KindOf(err)
		metrics.QueryTotal.WithLabelValues(kind.String()).Inc()
		if kind.IsClientError() {
			e.logger.DebugContext(ctx, "query rejected", logging.Kind(kind.String()), logging.Error(err))
		} else {
			e.logger.ErrorContext(ctx, "query failed", logging.Kind(kind.String()), logging.Error(err))
		}
		return nil, err
	}

	metrics.QueryTotal.WithLabelValues(metrics.OutcomeAccepted).Inc()
	return page, nil
}

func (e *Engine) query(ctx context.Context, q models.QueryFilter) (*models.Page, error) {
	if q.PageSize < 1 {
		return nil, sensorerr.FieldError(sensorerr.KindPagination, ParamPageSize, "page_size must be at least 1")
	}
	if q.Page < 1 {
		return nil, sensorerr.FieldError(sensorerr.KindPageNotFound, ParamPage, "Invalid page number")
	}

	// Detached so one caller's cancellation does not fail the others
	// waiting on the same flight.
	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := e.group.Do(flightKey(q), func() (interface{}, error) {
		return e.fetch(flightCtx, q)
	})
	if shared {
		metrics.QueryCoalesced.Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*models.Page), nil
}

func (e *Engine) fetch(ctx context.Context, q models.QueryFilter) (*models.Page, error) {
	total, err := e.store.Count(ctx, q.RecordFilter)
	if err != nil {
		return nil, sensorerr.New(sensorerr.KindStore, fmt.Errorf("failed to count records: %w", err))
	}

	numPages := NumPages(total, q.PageSize)
	if q.Page > numPages {
		return nil, sensorerr.FieldError(sensorerr.KindPageNotFound, ParamPage, "Invalid page number")
	}

	records := []*models.SensorRecord{}
	if total > 0 {
		records, err = e.store.List(ctx, q.RecordFilter, q.PageSize, (q.Page-1)*q.PageSize)
		if err != nil {
			return nil, sensorerr.New(sensorerr.KindStore, fmt.Errorf("failed to list records: %w", err))
		}
	}

	return &models.Page{
		Records:     records,
		Page:        q.Page,
		PageSize:    q.PageSize,
		Total:       total,
		NumPages:    numPages,
		HasNext:     q.Page < numPages,
		HasPrevious: q.Page > 1,
	}, nil
}

// NumPages returns ceil(total/size), with an empty result counting as one
// (empty) page.
func NumPages(total, size int) int {
	if total <= 0 || size <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

func flightKey(q models.QueryFilter) string {
	key := fmt.Sprintf("p=%d;s=%d", q.Page, q.PageSize)
	if q.SensorID != nil {
		key += fmt.Sprintf(";id=%d", *q.SensorID)
	}
	if q.TimeRange != nil {
		key += fmt.Sprintf(";r=%d..%d", q.TimeRange.Start.UnixNano(), q.TimeRange.End.UnixNano())
	}
	return key
}
