package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/proximity-stack/sensor/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down]",
	Short: "Apply or revert the postgres schema",
	Long: `Run the SQL migrations under database.migrations_path against the
configured postgres database. The default direction is up.

Examples:
  sensor migrate
  sensor migrate down
  SENSOR_DATABASE_MIGRATIONS_PATH=file:///srv/sensor/migrations sensor migrate up`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE:      runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Database.Type != config.DatabasePostgres {
		return fmt.Errorf("migrations only apply to database.type %q, got %q", config.DatabasePostgres, c.Database.Type)
	}
	logger := newLogger(c, "sensor-migrate")

	up := len(args) == 0 || args[0] == "up"
	return runMigrations(c, up, logger)
}
