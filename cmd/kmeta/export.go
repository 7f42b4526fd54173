package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alfredjeanlab/kmeta/internal/config"
	"github.com/alfredjeanlab/kmeta/internal/export"
	"github.com/alfredjeanlab/kmeta/internal/model"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:     "export <guid>",
	Short:   "Write an entity's visible metadata as JSONL",
	GroupID: "system",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		guid, err := parseGUID(args[0])
		if err != nil {
			return err
		}
		return export.ExportEntity(commandContext(), rt.svc, guid, os.Stdout)
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export all metadata to the configured destinations",
	Long: `Export every metadata record, regardless of access, as JSONL.

Destinations come from KMETA_EXPORT_S3_BUCKET and KMETA_EXPORT_FILE. With
--stdout, or when none is configured, the snapshot is written to stdout.
Requires --admin.`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !asAdmin {
			return fmt.Errorf("snapshot: %w: requires --admin", model.ErrForbidden)
		}
		ctx := commandContext()
		toStdout, _ := cmd.Flags().GetBool("stdout")
		dests := exportDestinations(ctx, rt.cfg, rt.logger)
		if toStdout || len(dests) == 0 {
			return export.ExportJSONL(ctx, rt.store, os.Stdout)
		}
		if err := export.NewScheduler(rt.store, dests, 0, rt.logger).Snapshot(ctx); err != nil {
			return err
		}
		for _, d := range dests {
			fmt.Fprintf(os.Stderr, "Exported to %s\n", d.Name())
		}
		return nil
	},
}

// exportDestinations builds the destinations named in cfg. A destination
// that cannot be set up is logged and skipped.
func exportDestinations(ctx context.Context, cfg *config.Config, logger *slog.Logger) []export.Destination {
	var dests []export.Destination
	if cfg.ExportS3Bucket != "" {
		d, err := export.NewS3Destination(ctx, cfg.ExportS3Bucket, cfg.ExportS3Key, cfg.ExportS3Region, cfg.ExportS3Endpoint)
		if err != nil {
			logger.Error("failed to create S3 export destination", "err", err)
		} else {
			dests = append(dests, d)
			logger.Info("export S3 destination enabled", "bucket", cfg.ExportS3Bucket, "key", cfg.ExportS3Key)
		}
	}
	if cfg.ExportFile != "" {
		dests = append(dests, export.NewFileDestination(cfg.ExportFile))
		logger.Info("export file destination enabled", "path", cfg.ExportFile)
	}
	return dests
}

func init() {
	snapshotCmd.Flags().Bool("stdout", false, "write to stdout instead of the configured destinations")
}
