package main

import (
	"fmt"

	"github.com/alfredjeanlab/kmeta/internal/config"
	"github.com/alfredjeanlab/kmeta/internal/store/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Apply pending database migrations",
	GroupID: "system",
	Args:    cobra.NoArgs,
	// Override PersistentPreRunE so a fresh database does not need to be
	// opened as a store first.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		version, err := postgres.Migrate(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]any{"version": version})
		}
		fmt.Printf("Schema at version %d\n", version)
		return nil
	},
}
