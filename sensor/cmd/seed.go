package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/proximity-stack/sensor/internal/seeder"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/subscriber"
)

var (
	seedProfile        string
	seedCount          int
	seedTarget         string
	seedURL            string
	seedSubject        string
	seedSensors        int
	seedTimeSpread     time.Duration
	seedInterval       time.Duration
	seedMalformedRatio float64
	seedSeed           int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Send synthetic sensor readings",
	Long: `Generate gateway-shaped proximity readings, wrap them in push envelopes
and publish them to JetStream or POST them to the records endpoint.

Configuration cascade (priority order):
  1. Command-line flags
  2. --profile YAML file
  3. Built-in defaults

Examples:
  # 1000 readings over the last day to the telemetry stream
  sensor seed

  # POST to a running API, 10% malformed envelopes
  sensor seed --target http --url http://localhost:8000/sensor-records --malformed-ratio 0.1

  # Print the default profile as a starting point
  sensor seed profile > seed.yaml`,
	RunE: runSeed,
}

var seedProfileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Print the effective seed profile as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := resolveSeedProfile(cmd)
		if err != nil {
			return err
		}
		data, err := p.Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	flags := seedCmd.PersistentFlags()
	flags.StringVar(&seedProfile, "profile", "", "seed profile YAML file")
	flags.IntVar(&seedCount, "count", 0, "number of envelopes to send")
	flags.StringVar(&seedTarget, "target", "", "delivery target: nats or http")
	flags.StringVar(&seedURL, "url", "", "records endpoint for target http")
	flags.StringVar(&seedSubject, "subject", "", "subject for target nats (default: nats.subject)")
	flags.IntVar(&seedSensors, "sensors", 0, "number of distinct sensor ids")
	flags.DurationVar(&seedTimeSpread, "time-spread", 0, "spread reading times over this window before now")
	flags.DurationVar(&seedInterval, "interval", 0, "delay between envelopes")
	flags.Float64Var(&seedMalformedRatio, "malformed-ratio", 0, "fraction of envelopes to corrupt")
	flags.Int64Var(&seedSeed, "seed", 0, "random seed (0 picks one)")

	seedCmd.AddCommand(seedProfileCmd)
}

// resolveSeedProfile applies the profile file, then changed flags, on top of
// the defaults.
func resolveSeedProfile(cmd *cobra.Command) (*seeder.Profile, error) {
	p, err := seeder.LoadProfile(seedProfile)
	if err != nil {
		return nil, err
	}

	if c, err := loadConfig(); err == nil && !cmd.Flags().Changed("subject") && seedProfile == "" {
		p.Subject = c.NATS.Subject
	}

	flags := cmd.Flags()
	if flags.Changed("count") {
		p.Count = seedCount
	}
	if flags.Changed("target") {
		p.Target = seedTarget
	}
	if flags.Changed("url") {
		p.URL = seedURL
	}
	if flags.Changed("subject") {
		p.Subject = seedSubject
	}
	if flags.Changed("sensors") {
		p.Sensors = nil
		p.SensorCount = seedSensors
	}
	if flags.Changed("time-spread") {
		p.TimeSpread = seedTimeSpread
	}
	if flags.Changed("interval") {
		p.Interval = seedInterval
	}
	if flags.Changed("malformed-ratio") {
		p.MalformedRatio = seedMalformedRatio
	}
	if flags.Changed("seed") {
		p.Seed = seedSeed
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid seed profile: %w", err)
	}
	return p, nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(c, "sensor-seed")

	p, err := resolveSeedProfile(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink seeder.Sink
	switch p.Target {
	case seeder.TargetHTTP:
		sink = seeder.NewHTTPSink(p.URL, p.Timeout)
	case seeder.TargetNATS:
		js, err := newJetStreamClient(c, "sensor-seed", logger)
		if err != nil {
			return err
		}
		defer js.Drain()

		subCfg := subscriberConfig(c)
		subCfg.Subject = p.Subject
		if _, err := js.CreateOrUpdateStream(ctx, subscriber.TelemetryStream(subCfg)); err != nil {
			return fmt.Errorf("failed to provision telemetry stream: %w", err)
		}
		sink = &seeder.PublisherSink{Publisher: js, Subject: p.Subject}
	}

	runner := seeder.NewRunner(p, seeder.NewGenerator(p, time.Now()), sink, logger)
	res, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	printSeedResult(cmd, res)
	return nil
}

func printSeedResult(cmd *cobra.Command, res seeder.Result) {
	summary := color.New(color.FgGreen, color.Bold)
	mark := "✓"
	if res.Failed > res.Malformed {
		summary = color.New(color.FgYellow, color.Bold)
		mark = "⚠"
	}
	summary.Fprintf(cmd.OutOrStdout(), "%s sent %d, failed %d, malformed %d\n", mark, res.Sent, res.Failed, res.Malformed)
}
