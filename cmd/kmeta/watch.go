package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/alfredjeanlab/kmeta/internal/events"
	"github.com/alfredjeanlab/kmeta/internal/ui"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print metadata and entity events as they are published",
	Long: `Subscribe to the event bus and print each accepted notification.

The bus URL comes from --nats or KMETA_NATS_URL. No database is needed.`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	// Override PersistentPreRunE so we don't open the database.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		style = ui.Styler{Color: ui.ColorEnabled(os.Stdout) && !jsonOutput}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats")
		if natsURL == "" {
			natsURL = os.Getenv("KMETA_NATS_URL")
		}
		if natsURL == "" {
			return fmt.Errorf("no bus configured: set --nats or KMETA_NATS_URL")
		}
		topic, _ := cmd.Flags().GetString("topic")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return watchNATS(ctx, natsURL, topic)
	},
}

func watchNATS(ctx context.Context, natsURL, topic string) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(topic)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			env, err := events.DecodeEnvelope(raw)
			if err != nil {
				fmt.Fprintln(os.Stderr, style.Warn(err.Error()))
				continue
			}
			if jsonOutput {
				if err := printJSON(env); err != nil {
					return err
				}
				continue
			}
			fmt.Println(formatEnvelope(env))
		}
	}
}

func formatEnvelope(env events.Envelope) string {
	at := style.Muted(env.At.Local().Format("15:04:05"))
	switch {
	case env.Metadata != nil:
		md := env.Metadata
		return fmt.Sprintf("%s %-6s metadata %d on %d: %s = %s", at, env.Kind, md.ID, md.EntityGUID,
			style.Name(md.Name), style.Value(md.Value, md.ValueType))
	case env.Entity != nil:
		e := env.Entity
		return fmt.Sprintf("%s %-6s %s/%s %d access=%s", at, env.Kind, e.Type, e.Subtype, e.GUID, accessLabel(e.AccessID))
	}
	return fmt.Sprintf("%s %-6s %s", at, env.Kind, env.Subject)
}

func init() {
	watchCmd.Flags().String("nats", "", "NATS URL (defaults to KMETA_NATS_URL)")
	watchCmd.Flags().String("topic", events.TopicAll, "subject to subscribe to")
}
