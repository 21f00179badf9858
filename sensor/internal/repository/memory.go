package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/telhawk-systems/proximity-stack/sensor/internal/models"
)

// InMemoryRepository keeps records in process memory. Development and tests
// only; contents are lost on restart.
type InMemoryRepository struct {
	records []*models.SensorRecord
	nextID  int64
	mu      sync.RWMutex
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{nextID: 1}
}

func (r *InMemoryRepository) Insert(ctx context.Context, record *models.SensorRecord) error {
	if record == nil {
		return ErrNilRecord
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record.ID = r.nextID
	r.nextID++

	stored := *record
	r.records = append(r.records, &stored)
	return nil
}

func (r *InMemoryRepository) Count(ctx context.Context, filter models.RecordFilter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.records {
		if filter.Matches(rec) {
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter models.RecordFilter, limit, offset int) ([]*models.SensorRecord, error) {
	if err := checkWindow(limit, offset); err != nil {
		return nil, err
	}

	r.mu.RLock()
	matched := make([]*models.SensorRecord, 0, len(r.records))
	for _, rec := range r.records {
		if filter.Matches(rec) {
			cp := *rec
			matched = append(matched, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Less(matched[j])
	})

	if offset >= len(matched) {
		return []*models.SensorRecord{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *InMemoryRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *InMemoryRepository) Close() {}
