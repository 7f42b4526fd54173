package events

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/alfredjeanlab/kmeta/internal/model"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNATSSubscriber_ReceivesEnvelopes(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicEntityUpdated)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	env, _ := NewEnvelope(model.Notification{
		Kind:    model.EventUpdate,
		Subject: "object",
		Entity:  &model.Entity{GUID: 42, Type: "object", AccessID: model.AccessPublic},
	})
	if err := pub.Publish(context.Background(), TopicEntityUpdated, env); err != nil {
		t.Fatalf("publishing: %v", err)
	}
	pub.Flush()

	select {
	case data := <-ch:
		got, err := DecodeEnvelope(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Entity == nil || got.Entity.GUID != 42 {
			t.Errorf("got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestNATSSubscriber_Wildcard(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	topics := []string{TopicMetadataCreated, TopicMetadataDeleted, TopicEntityUpdated}
	for _, topic := range topics {
		if err := pub.Publish(context.Background(), topic, map[string]string{"topic": topic}); err != nil {
			t.Fatalf("publishing to %s: %v", topic, err)
		}
	}
	pub.Flush()

	for i := range len(topics) {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestNATSSubscriber_CancelClosesChannel(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_ = pub.Publish(context.Background(), TopicMetadataCreated, i)
		}
		pub.Flush()
	}()

	cancel()
	cancel()
	<-done

	// Buffered payloads may still be read; the channel must end closed.
	drained := make(chan struct{})
	go func() {
		for range ch {
		}
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
