package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/proximity-stack/common/database"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/models"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := database.PingContext(ctx)
	defer cancel()
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Insert(ctx context.Context, record *models.SensorRecord) error {
	if record == nil {
		return ErrNilRecord
	}

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	query := `
		INSERT INTO sensor_records (sensor_id, human_presence, dwell_time, timestamp)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		record.SensorID, record.HumanPresence, record.DwellTime, record.Timestamp,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to insert sensor record: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Count(ctx context.Context, filter models.RecordFilter) (int, error) {
	ctx, cancel := database.ReadContext(ctx)
	defer cancel()

	where, args := whereClause(filter)
	query := `SELECT COUNT(*) FROM sensor_records` + where

	var n int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sensor records: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter models.RecordFilter, limit, offset int) ([]*models.SensorRecord, error) {
	if err := checkWindow(limit, offset); err != nil {
		return nil, err
	}

	ctx, cancel := database.ReadContext(ctx)
	defer cancel()

	where, args := whereClause(filter)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, sensor_id, human_presence, dwell_time, timestamp
		FROM sensor_records%s
		ORDER BY timestamp DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sensor records: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.SensorRecord, error) {
		var rec models.SensorRecord
		if err := row.Scan(&rec.ID, &rec.SensorID, &rec.HumanPresence, &rec.DwellTime, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.Timestamp = rec.Timestamp.UTC()
		return &rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sensor records: %w", err)
	}

	return records, nil
}

// whereClause renders filter as a WHERE clause with positional arguments.
func whereClause(filter models.RecordFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.SensorID != nil {
		args = append(args, *filter.SensorID)
		conds = append(conds, fmt.Sprintf("sensor_id = $%d", len(args)))
	}
	if filter.TimeRange != nil {
		args = append(args, filter.TimeRange.Start, filter.TimeRange.End)
		conds = append(conds, fmt.Sprintf("timestamp BETWEEN $%d AND $%d", len(args)-1, len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
