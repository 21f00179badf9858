package repository

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationStatus reports the schema version after a migration run.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate applies (up) or reverts (down) the migrations found at
// sourceURL, e.g. "file://sensor/migrations".
func Migrate(sourceURL, connString string, up bool) (*MigrationStatus, error) {
	m, err := migrate.New(sourceURL, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	status := &MigrationStatus{Changed: true}
	if up {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		status.Changed = false
	} else if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	status.Version, status.Dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("failed to read migration version: %w", err)
	}
	return status, nil
}
