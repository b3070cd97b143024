package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/becauseimclever/budgetexperiment/internal/common"
	"github.com/becauseimclever/budgetexperiment/internal/config"
	"github.com/becauseimclever/budgetexperiment/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command ensures your local database has all the required
tables and indexes for the application to function properly.`,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	dbPath := config.DatabasePath()

	common.LogInfo("Starting database migration", common.Fields{"database": dbPath})

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	common.LogInfo("✅ Database migrations completed successfully!", nil)
	return nil
}
