package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/kmeta/internal/events"
	"github.com/alfredjeanlab/kmeta/internal/model"
)

// Wildcard matches any event kind or subject in Register.
const Wildcard = "all"

// Response is a listener's verdict on a notification.
type Response struct {
	Block    bool     `json:"block,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Listener inspects a notification synchronously. Returning Block vetoes it.
type Listener func(ctx context.Context, n model.Notification) Response

type registration struct {
	kind     string
	subject  string
	listener Listener
}

func (r registration) matches(n model.Notification) bool {
	return (r.kind == Wildcard || r.kind == string(n.Kind)) &&
		(r.subject == Wildcard || r.subject == n.Subject)
}

// Dispatcher runs registered listeners in registration order. It implements
// the notifier the metadata service fires through.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []registration

	publisher events.Publisher
	logger    *slog.Logger
}

// NewDispatcher returns a dispatcher that publishes accepted notifications
// to pub. A nil pub disables publishing.
func NewDispatcher(pub events.Publisher, logger *slog.Logger) *Dispatcher {
	if pub == nil {
		pub = events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{publisher: pub, logger: logger}
}

// Register adds l for notifications of kind about subject. Either may be
// Wildcard.
func (d *Dispatcher) Register(kind, subject string, l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, registration{kind: kind, subject: subject, listener: l})
}

// Dispatch runs the matching listeners and aggregates their responses. It
// stops at the first block.
func (d *Dispatcher) Dispatch(ctx context.Context, n model.Notification) Response {
	d.mu.RLock()
	regs := make([]registration, 0, len(d.listeners))
	for _, r := range d.listeners {
		if r.matches(n) {
			regs = append(regs, r)
		}
	}
	d.mu.RUnlock()

	var resp Response
	for _, r := range regs {
		got := r.listener(ctx, n)
		resp.Warnings = append(resp.Warnings, got.Warnings...)
		if got.Block {
			resp.Block = true
			resp.Reason = got.Reason
			return resp
		}
	}
	return resp
}

// Notify dispatches n and reports whether it was accepted. Accepted
// notifications are published on the bus; publish failures are logged and
// do not affect the result.
func (d *Dispatcher) Notify(ctx context.Context, n model.Notification) bool {
	resp := d.Dispatch(ctx, n)
	for _, w := range resp.Warnings {
		d.logger.Warn("hooks: "+w, "kind", n.Kind, "subject", n.Subject)
	}
	if resp.Block {
		d.logger.Info("hooks: notification vetoed", "kind", n.Kind, "subject", n.Subject, "reason", resp.Reason)
		return false
	}
	d.publish(ctx, n)
	return true
}

func (d *Dispatcher) publish(ctx context.Context, n model.Notification) {
	env, err := events.NewEnvelope(n)
	if err != nil {
		d.logger.Error("hooks: build envelope", "err", err)
		return
	}
	topic := events.TopicFor(n)
	if err := d.publisher.Publish(ctx, topic, env); err != nil {
		d.logger.Error("hooks: publish event", "topic", topic, "id", env.ID, "err", err)
	}
}

// StartSubscriber consumes entity notifications published by the host on
// the bus and runs local listeners for them. Vetoes are logged only, since
// the host has already committed the change. It blocks until ctx is done.
func (d *Dispatcher) StartSubscriber(ctx context.Context, sub events.Subscriber) error {
	ch, cancel, err := sub.Subscribe("kmeta.entity.>")
	if err != nil {
		return fmt.Errorf("hooks: subscribe: %w", err)
	}
	defer cancel()

	d.logger.Info("hooks: subscriber started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("hooks: subscriber stopping")
			return nil
		case raw, ok := <-ch:
			if !ok {
				d.logger.Info("hooks: subscription channel closed")
				return nil
			}
			env, err := events.DecodeEnvelope(raw)
			if err != nil {
				d.logger.Warn("hooks: bad event payload", "err", err)
				continue
			}
			if env.Entity == nil {
				d.logger.Warn("hooks: entity event without entity", "id", env.ID)
				continue
			}
			resp := d.Dispatch(ctx, env.Notification())
			if resp.Block {
				d.logger.Warn("hooks: listener rejected committed entity event", "id", env.ID, "reason", resp.Reason)
			}
			for _, w := range resp.Warnings {
				d.logger.Warn("hooks: " + w)
			}
		}
	}
}
