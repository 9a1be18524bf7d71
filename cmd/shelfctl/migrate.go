package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/shelfsync/internal/app"
	"github.com/parsascontentcorner/shelfsync/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Driver == app.DriverMemory {
		return errors.New("migrate requires STORE_DRIVER=postgres")
	}

	db, err := database.NewDB(&cfg.Database, zap.NewNop())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	cmd.Println("Database schema is up to date.")
	return nil
}
