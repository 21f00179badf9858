package cmd

import (
	"context"
	"fmt"

	"github.com/telhawk-systems/proximity-stack/common/logging"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/config"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/repository"
)

// openRepository connects the configured record store and wraps it with
// store metrics. With migrate set, pending Postgres migrations run first.
func openRepository(ctx context.Context, c *config.Config, migrate bool, logger *logging.Logger) (repository.Repository, error) {
	var repo repository.Repository

	switch c.Database.Type {
	case config.DatabasePostgres:
		connString := c.Database.Postgres.ConnString()
		if migrate {
			if err := runMigrations(c, true, logger); err != nil {
				return nil, err
			}
		}
		pg, err := repository.NewPostgresRepository(ctx, connString)
		if err != nil {
			return nil, err
		}
		repo = pg
		logger.Info("connected to postgres",
			"host", c.Database.Postgres.Host,
			"database", c.Database.Postgres.Database,
		)

	case config.DatabaseOpenSearch:
		osRepo, err := repository.NewOpenSearchRepository(ctx, repository.OpenSearchConfig{
			URL:           c.Database.OpenSearch.URL,
			Username:      c.Database.OpenSearch.Username,
			Password:      c.Database.OpenSearch.Password,
			TLSSkipVerify: c.Database.OpenSearch.TLSSkipVerify,
			IndexPrefix:   c.Database.OpenSearch.IndexPrefix,
			ShardCount:    c.Database.OpenSearch.ShardCount,
			ReplicaCount:  c.Database.OpenSearch.ReplicaCount,
			Refresh:       c.Database.OpenSearch.Refresh,
		})
		if err != nil {
			return nil, err
		}
		repo = osRepo
		logger.Info("connected to opensearch",
			"url", c.Database.OpenSearch.URL,
			"index_prefix", c.Database.OpenSearch.IndexPrefix,
		)

	case config.DatabaseMemory:
		repo = repository.NewInMemoryRepository()
		logger.Warn("using in-memory record store, records are lost on exit")

	default:
		return nil, fmt.Errorf("unsupported database type %q", c.Database.Type)
	}

	return repository.NewInstrumented(repo, c.Database.Type), nil
}

func runMigrations(c *config.Config, up bool, logger *logging.Logger) error {
	status, err := repository.Migrate(c.Database.MigrationsPath, c.Database.Postgres.ConnString(), up)
	if err != nil {
		return err
	}
	logger.Info("migrations applied",
		"direction", direction(up),
		"version", status.Version,
		"dirty", status.Dirty,
		"changed", status.Changed,
	)
	return nil
}

func direction(up bool) string {
	if up {
		return "up"
	}
	return "down"
}
