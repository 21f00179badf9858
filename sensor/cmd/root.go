package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/proximity-stack/common/logging"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
	cfgErr  error
)

var rootCmd = &cobra.Command{
	Use:   "sensor",
	Short: "Proximity sensor telemetry service",
	Long: `sensor ingests proximity sensor telemetry delivered as push envelopes,
stores normalized records and serves them over a paginated HTTP API.

Configuration is read from --config, ./config.yaml or
/etc/telhawk/sensor/config.yaml, and every key can be overridden with a
SENSOR_ environment variable (SENSOR_DATABASE_TYPE=memory).`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}

func initConfig() {
	cfg, cfgErr = config.Load(cfgFile)
}

// loadConfig returns the loaded configuration or the error that prevented
// loading it.
func loadConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, fmt.Errorf("failed to load config: %w", cfgErr)
	}
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}

// newLogger builds the process logger and installs it as the slog default.
func newLogger(c *config.Config, service string) *logging.Logger {
	logger := logging.New(
		logging.ParseLevel(c.Logging.Level),
		c.Logging.Format,
	).With(logging.Service(service))
	logging.SetDefault(logger)
	return logger
}
