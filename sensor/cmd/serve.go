package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/proximity-stack/common/logging"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/config"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/handlers"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/pipeline"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/query"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/ratelimit"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/server"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sensor records HTTP API",
	Long: `Serve the sensor records API:

  POST /sensor-records      ingest one push envelope
  GET  /sensor-records      paginated, filtered record listing
  GET  /healthz, /readyz    liveness and store readiness
  GET  /metrics             Prometheus metrics

Examples:
  # Postgres, applying pending migrations on start
  sensor serve --migrate

  # In-memory store for local development
  SENSOR_DATABASE_TYPE=memory sensor serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply pending postgres migrations before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(c, "sensor-api")

	logger.Info("starting sensor API",
		"port", c.Server.Port,
		"database", c.Database.Type,
		"log_level", c.Logging.Level,
	)

	ctx := context.Background()
	repo, err := openRepository(ctx, c, serveMigrate, logger)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer repo.Close()

	limiter := newRateLimiter(c, logger)
	defer limiter.Close()

	ingest := pipeline.New(repo, pipeline.SourceHTTP, logger)
	engine := query.NewEngine(repo, logger)

	handler := handlers.NewSensorHandler(ingest, engine, repo, limiter, handlers.Config{
		MaxBodyBytes: c.Ingestion.MaxBodyBytes,
		Query: query.Defaults{
			PageSize:    c.Query.DefaultPageSize,
			MaxPageSize: c.Query.MaxPageSize,
		},
	}, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", c.Server.Port),
		Handler:      server.NewRouter(handler),
		ReadTimeout:  c.Server.ReadTimeout,
		WriteTimeout: c.Server.WriteTimeout,
		IdleTimeout:  c.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sensor API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// newRateLimiter returns the POST limiter. A Redis connection failure
// disables limiting rather than blocking startup.
func newRateLimiter(c *config.Config, logger *logging.Logger) ratelimit.RateLimiter {
	if !c.Ingestion.RateLimitEnabled {
		logger.Info("rate limiting disabled in configuration")
		return &ratelimit.NoOpRateLimiter{}
	}

	limiter, err := ratelimit.NewRedisRateLimiter(
		c.Redis.URL,
		c.Ingestion.RateLimitRequests,
		c.Ingestion.RateLimitWindow,
		"sensor-records",
	)
	if err != nil {
		logger.Warn("failed to initialize redis rate limiter, continuing without rate limiting", logging.Error(err))
		return &ratelimit.NoOpRateLimiter{}
	}

	logger.Info("rate limiting enabled",
		"requests", c.Ingestion.RateLimitRequests,
		"window", c.Ingestion.RateLimitWindow.String(),
	)
	return limiter
}
