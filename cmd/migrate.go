package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medigenius/medigenius/db"
	"github.com/medigenius/medigenius/internal/config"
	"github.com/medigenius/medigenius/internal/log"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Applies the embedded schema migrations to the configured PostgreSQL
database. serve runs migrations on startup; this command exists for
deployments that migrate separately from serving.`,
	RunE: func(*cobra.Command, []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{})
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("migrations applied")
	return nil
}
