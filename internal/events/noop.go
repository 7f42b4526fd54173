package events

import "context"

// NoopPublisher discards events. It is used when no bus is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (NoopPublisher) Close() error { return nil }
