package main

import (
	"os/signal"
	"syscall"

	"github.com/alfredjeanlab/kmeta/internal/events"
	"github.com/alfredjeanlab/kmeta/internal/export"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the entity event listener and the export scheduler",
	Long: `Run until SIGINT or SIGTERM.

With KMETA_NATS_URL set, entity events published by the host on
kmeta.entity.> run the local listeners, so an entity update cascades its
access level to the entity's metadata. With KMETA_EXPORT_INTERVAL set,
snapshots are exported to the configured destinations on that interval.`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := rt.logger
		cfg := rt.cfg

		// Listeners act on behalf of the host, which already authorized the change.
		ctx, stop := signal.NotifyContext(commandContext(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var scheduler *export.Scheduler
		if cfg.ExportInterval > 0 {
			if dests := exportDestinations(ctx, cfg, logger); len(dests) > 0 {
				scheduler = export.NewScheduler(rt.store, dests, cfg.ExportInterval, logger)
				scheduler.Start()
				logger.Info("export scheduler started", "interval", cfg.ExportInterval)
			}
		}

		done := make(chan struct{})
		if cfg.NATSURL != "" {
			sub, err := events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				logger.Error("failed to create entity subscriber", "err", err)
				close(done)
			} else {
				go func() {
					defer close(done)
					if err := rt.dispatcher.StartSubscriber(ctx, sub); err != nil {
						logger.Error("entity subscriber error", "err", err)
					}
					sub.Close()
				}()
			}
		} else {
			logger.Warn("KMETA_NATS_URL not set; entity events will not be consumed")
			close(done)
		}

		logger.Info("kmeta serve started", "nats_url", cfg.NATSURL, "export_interval", cfg.ExportInterval)
		<-ctx.Done()
		logger.Info("received signal, shutting down")
		<-done

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("export scheduler stopped")
		}
		logger.Info("shutdown complete")
		return nil
	},
}
