// Package main provides the operator CLI: migrations and entitlement
// inspection against the configured Postgres.
package main

import (
	"fmt"
	"os"

	"github.com/nutrition-bot/internal/config"
	"github.com/nutrition-bot/internal/logging"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "nutrition-admin",
	Short: "Operate the nutrition bot entitlement store",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.FormatText)
		return nil
	},
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(migrateCmd, limitsCmd, activateCmd, grantCmd, plansCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
