package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/telhawk-systems/proximity-stack/sensor/internal/models"
)

// setupTestDatabase creates a PostgreSQL testcontainer and runs migrations
func setupTestDatabase(t *testing.T) (*PostgresRepository, func()) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("sensor_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	if _, err := Migrate("file://../../migrations", connStr, true); err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	repo, err := NewPostgresRepository(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create repository: %v", err)
	}

	cleanup := func() {
		repo.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return repo, cleanup
}

func TestPostgresRepository(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.Ping(ctx))

	// Microsecond precision matches TIMESTAMPTZ.
	tied := baseTime.Add(317801 * time.Microsecond)
	inserted := []*models.SensorRecord{
		{SensorID: 100013, HumanPresence: false, DwellTime: 2.72, Timestamp: tied},
		{SensorID: 100014, HumanPresence: true, DwellTime: 0.5, Timestamp: baseTime},
		{SensorID: 100013, HumanPresence: true, DwellTime: 9, Timestamp: tied},
		{SensorID: 100013, HumanPresence: true, DwellTime: 1, Timestamp: baseTime.Add(time.Hour)},
	}
	for _, rec := range inserted {
		require.NoError(t, repo.Insert(ctx, rec))
		assert.NotZero(t, rec.ID)
	}

	t.Run("count all", func(t *testing.T) {
		n, err := repo.Count(ctx, models.RecordFilter{})
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("ordering with ties", func(t *testing.T) {
		list, err := repo.List(ctx, models.RecordFilter{}, 10, 0)
		require.NoError(t, err)
		require.Len(t, list, 4)
		assert.Equal(t, inserted[3].ID, list[0].ID)
		assert.Equal(t, inserted[2].ID, list[1].ID)
		assert.Equal(t, inserted[0].ID, list[2].ID)
		assert.Equal(t, inserted[1].ID, list[3].ID)
		assert.True(t, list[2].Timestamp.Equal(tied))
		assert.Equal(t, time.UTC, list[2].Timestamp.Location())
	})

	t.Run("sensor and range filter", func(t *testing.T) {
		sensor := int64(100013)
		filter := models.RecordFilter{
			SensorID:  &sensor,
			TimeRange: &models.TimeRange{Start: baseTime, End: tied},
		}
		n, err := repo.Count(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		list, err := repo.List(ctx, filter, 1, 1)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, inserted[0].ID, list[0].ID)
	})

	t.Run("invalid window", func(t *testing.T) {
		_, err := repo.List(ctx, models.RecordFilter{}, 0, 0)
		assert.ErrorIs(t, err, ErrInvalidLimit)
	})
}

func TestWhereClause(t *testing.T) {
	where, args := whereClause(models.RecordFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	sensor := int64(7)
	where, args = whereClause(models.RecordFilter{
		SensorID:  &sensor,
		TimeRange: &models.TimeRange{Start: baseTime, End: baseTime.Add(time.Hour)},
	})
	assert.Equal(t, " WHERE sensor_id = $1 AND timestamp BETWEEN $2 AND $3", where)
	assert.Len(t, args, 3)
}
