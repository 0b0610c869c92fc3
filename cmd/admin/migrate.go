package main

import (
	"fmt"

	"github.com/nutrition-bot/internal/storage"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|version]",
	Short:     "Apply, roll back or inspect Postgres migrations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "version"},
	RunE: func(cmd *cobra.Command, args []string) error {
		databaseURL := cfg.Database.Postgres.URL()

		switch args[0] {
		case "up":
			fmt.Println("Running Postgres migrations...")
			if err := storage.RunMigrations(databaseURL); err != nil {
				return err
			}
			fmt.Println("Postgres migrations completed successfully")
		case "down":
			fmt.Println("Rolling back Postgres migration...")
			if err := storage.RollbackMigrations(databaseURL); err != nil {
				return err
			}
			fmt.Println("Postgres migration rolled back successfully")
		case "version":
			version, dirty, err := storage.MigrationVersion(databaseURL)
			if err != nil {
				return err
			}
			fmt.Printf("Current Postgres migration version: %d (dirty: %v)\n", version, dirty)
		}
		return nil
	},
}
