package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/alfredjeanlab/kmeta/internal/host"
	"github.com/alfredjeanlab/kmeta/internal/ui"
	"github.com/spf13/cobra"
)

var (
	jsonOutput bool
	principal  int64
	asAdmin    bool

	rt    *runtime
	style ui.Styler
)

func defaultPrincipal() int64 {
	if s := os.Getenv("KMETA_PRINCIPAL"); s != "" {
		if guid, err := strconv.ParseInt(s, 10, 64); err == nil {
			return guid
		}
	}
	return 0
}

// commandContext carries the acting principal for the host's access checks.
func commandContext() context.Context {
	return host.WithPrincipal(context.Background(), host.Principal{GUID: principal, Admin: asAdmin})
}

var rootCmd = &cobra.Command{
	Use:           "kmeta <command>",
	Short:         "Entity metadata engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		style = ui.Styler{Color: ui.ColorEnabled(os.Stdout) && !jsonOutput}
		r, err := newRuntime(newLogger(cmd == serveCmd))
		if err != nil {
			return err
		}
		rt = r
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if rt != nil {
			rt.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().Int64Var(&principal, "as", defaultPrincipal(), "acting principal guid (env KMETA_PRINCIPAL)")
	rootCmd.PersistentFlags().BoolVar(&asAdmin, "admin", false, "act with admin rights")

	rootCmd.AddGroup(
		&cobra.Group{ID: "metadata", Title: "Metadata:"},
		&cobra.Group{ID: "entities", Title: "Entities:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)
	cobra.EnableCommandSorting = false

	// Metadata
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(clearOwnerCmd)

	// Entities
	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(entityCmd)
	rootCmd.AddCommand(syncAccessCmd)
	rootCmd.AddCommand(independentCmd)

	// System
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, style.Warn("Error: "+err.Error()))
		os.Exit(1)
	}
}
