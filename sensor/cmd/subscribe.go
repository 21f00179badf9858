package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/proximity-stack/common/httputil"
	"github.com/telhawk-systems/proximity-stack/common/logging"
	natsclient "github.com/telhawk-systems/proximity-stack/common/messaging/nats"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/config"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/dlq"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/pipeline"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/subscriber"
)

var (
	subscribeMigrate     bool
	subscribeMetricsAddr string
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Consume telemetry envelopes from NATS JetStream",
	Long: `Run the durable JetStream consumer that feeds push envelopes into the
ingestion pipeline. Accepted envelopes are acked; rejected ones are nak'd
with a delay and, on their final delivery, written to the SENSOR_DLQ stream.

Examples:
  sensor subscribe
  sensor subscribe --metrics-addr :9101
  SENSOR_NATS_URL=nats://nats:4222 sensor subscribe --migrate`,
	RunE: runSubscribe,
}

func init() {
	subscribeCmd.Flags().BoolVar(&subscribeMigrate, "migrate", false, "apply pending postgres migrations before consuming")
	subscribeCmd.Flags().StringVar(&subscribeMetricsAddr, "metrics-addr", ":9100", "address for the /metrics endpoint (empty disables it)")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(c, "sensor-subscriber")

	logger.Info("starting sensor subscriber",
		"nats_url", c.NATS.URL,
		"stream", c.NATS.Stream,
		"consumer", c.NATS.Consumer,
		"database", c.Database.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := openRepository(ctx, c, subscribeMigrate, logger)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer repo.Close()

	js, err := newJetStreamClient(c, "sensor-subscriber", logger)
	if err != nil {
		return err
	}
	defer js.Drain()

	var deadLetters subscriber.DeadLetterWriter
	if c.NATS.DLQEnabled {
		if _, err := js.CreateOrUpdateStream(ctx, natsclient.SensorDLQStream); err != nil {
			return fmt.Errorf("failed to provision DLQ stream: %w", err)
		}
		queue, err := dlq.NewQueue(js, logger)
		if err != nil {
			return err
		}
		deadLetters = queue
		logger.Info("dead letter queue enabled", "stream", natsclient.SensorDLQStream.Name)
	} else {
		logger.Info("dead letter queue disabled")
	}

	ingest := pipeline.New(repo, pipeline.SourceQueue, logger)
	handler := subscriber.NewHandler(ingest, deadLetters, subscriber.HandlerConfig{
		MaxDeliver: c.NATS.MaxDeliver,
		NakDelay:   c.NATS.NakDelay,
	}, logger)

	sub := subscriber.New(js, handler, subscriberConfig(c), logger)
	stop, err := sub.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start subscriber: %w", err)
	}

	var metricsSrv *http.Server
	if subscribeMetricsAddr != "" {
		metricsSrv = startMetricsServer(subscribeMetricsAddr, js.IsConnected, logger)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	<-quit

	logger.Info("draining subscriber")
	stop()

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	logger.Info("subscriber stopped")
	return nil
}

func subscriberConfig(c *config.Config) subscriber.Config {
	return subscriber.Config{
		Stream:        c.NATS.Stream,
		Consumer:      c.NATS.Consumer,
		Subject:       c.NATS.Subject,
		AckWait:       c.NATS.AckWait,
		MaxDeliver:    c.NATS.MaxDeliver,
		MaxAckPending: c.NATS.MaxAckPending,
		NakDelay:      c.NATS.NakDelay,
	}
}

func newJetStreamClient(c *config.Config, name string, logger *logging.Logger) (*natsclient.JetStreamClient, error) {
	natsCfg := natsclient.DefaultConfig()
	natsCfg.URL = c.NATS.URL
	natsCfg.Name = name
	natsCfg.Username = c.NATS.User
	natsCfg.Password = c.NATS.Password
	natsCfg.Token = c.NATS.Token
	natsCfg.Logger = logger.Logger

	js, err := natsclient.NewJetStreamClient(natsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return js, nil
}

// startMetricsServer serves /metrics and a /healthz that fails while the
// NATS connection is down.
func startMetricsServer(addr string, connected func() bool, logger *logging.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           subscriberMux(connected),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", logging.Error(err))
		}
	}()
	return srv
}

func subscriberMux(connected func() bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !connected() {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "disconnected"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	return mux
}
