// Package events publishes accepted metadata and entity notifications to a
// message bus. Publishing is best-effort; vetoes happen in package hooks
// before anything reaches the bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfredjeanlab/kmeta/internal/idgen"
	"github.com/alfredjeanlab/kmeta/internal/model"
)

// Topics
const (
	TopicMetadataCreated = "kmeta.metadata.created"
	TopicMetadataUpdated = "kmeta.metadata.updated"
	TopicMetadataDeleted = "kmeta.metadata.deleted"

	TopicEntityCreated = "kmeta.entity.created"
	TopicEntityUpdated = "kmeta.entity.updated"
	TopicEntityDeleted = "kmeta.entity.deleted"

	// TopicAll matches every topic above.
	TopicAll = "kmeta.>"
)

var pastTense = map[model.EventKind]string{
	model.EventCreate: "created",
	model.EventUpdate: "updated",
	model.EventDelete: "deleted",
}

// TopicFor returns the topic a notification is published on. Metadata
// notifications go to kmeta.metadata.*, everything else to kmeta.entity.*.
func TopicFor(n model.Notification) string {
	area := "entity"
	if n.Subject == model.SubjectMetadata {
		area = "metadata"
	}
	return "kmeta." + area + "." + pastTense[n.Kind]
}

// Envelope is the wire form of a notification.
type Envelope struct {
	ID       string          `json:"id"`
	Kind     model.EventKind `json:"kind"`
	Subject  string          `json:"subject"`
	At       time.Time       `json:"at"`
	Metadata *model.Metadata `json:"metadata,omitempty"`
	Entity   *model.Entity   `json:"entity,omitempty"`
}

// NewEnvelope stamps n with a fresh id and the current time.
func NewEnvelope(n model.Notification) (Envelope, error) {
	id, err := idgen.EventID()
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:       id,
		Kind:     n.Kind,
		Subject:  n.Subject,
		At:       time.Now().UTC(),
		Metadata: n.Metadata,
		Entity:   n.Entity,
	}, nil
}

// Notification converts the envelope back into a notification.
func (e Envelope) Notification() model.Notification {
	return model.Notification{Kind: e.Kind, Subject: e.Subject, Metadata: e.Metadata, Entity: e.Entity}
}

// DecodeEnvelope parses a payload received from the bus.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if !e.Kind.IsValid() {
		return Envelope{}, fmt.Errorf("decode envelope %s: %w: kind %q", e.ID, model.ErrInvalidArgument, e.Kind)
	}
	return e, nil
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
