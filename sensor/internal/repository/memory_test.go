package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/proximity-stack/sensor/internal/models"
)

var baseTime = time.Date(2022, 11, 8, 4, 0, 0, 0, time.UTC)

func newRecord(sensorID int64, offset time.Duration) *models.SensorRecord {
	return &models.SensorRecord{
		SensorID:      sensorID,
		HumanPresence: sensorID%2 == 0,
		DwellTime:     1.5,
		Timestamp:     baseTime.Add(offset),
	}
}

func TestInMemoryRepository_InsertAssignsIDs(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	first := newRecord(1, 0)
	second := newRecord(1, time.Second)
	require.NoError(t, repo.Insert(ctx, first))
	require.NoError(t, repo.Insert(ctx, second))

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.ErrorIs(t, repo.Insert(ctx, nil), ErrNilRecord)
}

func TestInMemoryRepository_StoredCopyIsImmutable(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	rec := newRecord(5, 0)
	require.NoError(t, repo.Insert(ctx, rec))
	rec.SensorID = 99

	list, err := repo.List(ctx, models.RecordFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(5), list[0].SensorID)

	list[0].DwellTime = 1000
	again, err := repo.List(ctx, models.RecordFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.5, again[0].DwellTime)
}

func TestInMemoryRepository_OrderingAndTies(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	// Two records share a timestamp; the later insert must come first.
	require.NoError(t, repo.Insert(ctx, newRecord(1, time.Minute)))
	require.NoError(t, repo.Insert(ctx, newRecord(2, 0)))
	require.NoError(t, repo.Insert(ctx, newRecord(3, time.Minute)))
	require.NoError(t, repo.Insert(ctx, newRecord(4, 2*time.Minute)))

	list, err := repo.List(ctx, models.RecordFilter{}, 10, 0)
	require.NoError(t, err)

	ids := make([]int64, 0, len(list))
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{4, 3, 1, 2}, ids)
}

func TestInMemoryRepository_Filters(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, repo.Insert(ctx, newRecord(int64(i%3), time.Duration(i)*time.Minute)))
	}

	sensor := int64(1)
	n, err := repo.Count(ctx, models.RecordFilter{SensorID: &sensor})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	window := &models.TimeRange{Start: baseTime.Add(2 * time.Minute), End: baseTime.Add(5 * time.Minute)}
	n, err = repo.Count(ctx, models.RecordFilter{TimeRange: window})
	require.NoError(t, err)
	assert.Equal(t, 4, n, "range bounds are inclusive")

	list, err := repo.List(ctx, models.RecordFilter{SensorID: &sensor, TimeRange: window}, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].SensorID)
	assert.True(t, list[0].Timestamp.Equal(baseTime.Add(4*time.Minute)))
}

func TestInMemoryRepository_Window(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Insert(ctx, newRecord(1, time.Duration(i)*time.Second)))
	}

	page, err := repo.List(ctx, models.RecordFilter{}, 2, 4)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	page, err = repo.List(ctx, models.RecordFilter{}, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = repo.List(ctx, models.RecordFilter{}, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
	_, err = repo.List(ctx, models.RecordFilter{}, 1, -1)
	assert.ErrorIs(t, err, ErrInvalidOffset)
}

func TestInMemoryRepository_ConcurrentInserts(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, repo.Insert(ctx, newRecord(int64(i), 0)))
		}(i)
	}
	wg.Wait()

	n, err := repo.Count(ctx, models.RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	list, err := repo.List(ctx, models.RecordFilter{}, 100, 0)
	require.NoError(t, err)
	seen := make(map[int64]bool)
	for _, r := range list {
		assert.False(t, seen[r.ID], "duplicate id %d", r.ID)
		seen[r.ID] = true
	}
}

func TestInstrumented_Delegates(t *testing.T) {
	repo := NewInstrumented(NewInMemoryRepository(), "memory")
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, newRecord(1, 0)))
	n, err := repo.Count(ctx, models.RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.List(ctx, models.RecordFilter{}, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
	assert.NoError(t, repo.Ping(ctx))
}
