package hooks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/alfredjeanlab/kmeta/internal/events"
	"github.com/alfredjeanlab/kmeta/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingPublisher captures published topics.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

func mdNotification(kind model.EventKind) model.Notification {
	return model.Notification{
		Kind:     kind,
		Subject:  model.SubjectMetadata,
		Metadata: &model.Metadata{ID: 5, EntityGUID: 42, Name: "color", Value: "red"},
	}
}

func TestNotify_NoListenersAccepts(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, quietLogger())

	if !d.Notify(context.Background(), mdNotification(model.EventCreate)) {
		t.Fatal("expected notification to be accepted")
	}
	if got := pub.published(); len(got) != 1 || got[0] != events.TopicMetadataCreated {
		t.Errorf("published = %v", got)
	}
}

func TestNotify_VetoSkipsPublishAndLaterListeners(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, quietLogger())

	var calls []string
	d.Register(string(model.EventCreate), model.SubjectMetadata, func(context.Context, model.Notification) Response {
		calls = append(calls, "first")
		return Response{Block: true, Reason: "no"}
	})
	d.Register(Wildcard, Wildcard, func(context.Context, model.Notification) Response {
		calls = append(calls, "second")
		return Response{}
	})

	if d.Notify(context.Background(), mdNotification(model.EventCreate)) {
		t.Fatal("expected veto")
	}
	if len(calls) != 1 {
		t.Errorf("listeners called = %v, want only first", calls)
	}
	if got := pub.published(); len(got) != 0 {
		t.Errorf("vetoed notification was published: %v", got)
	}
}

func TestDispatch_Matching(t *testing.T) {
	d := NewDispatcher(nil, quietLogger())
	var got []string
	record := func(name string) Listener {
		return func(context.Context, model.Notification) Response {
			got = append(got, name)
			return Response{Warnings: []string{name}}
		}
	}
	d.Register(string(model.EventUpdate), model.SubjectMetadata, record("update-metadata"))
	d.Register(string(model.EventDelete), Wildcard, record("delete-any"))
	d.Register(Wildcard, "object", record("any-object"))
	d.Register(Wildcard, Wildcard, record("all"))

	resp := d.Dispatch(context.Background(), mdNotification(model.EventUpdate))
	if strings.Join(got, ",") != "update-metadata,all" {
		t.Errorf("called %v", got)
	}
	if len(resp.Warnings) != 2 {
		t.Errorf("warnings = %v", resp.Warnings)
	}

	got = nil
	d.Dispatch(context.Background(), model.Notification{Kind: model.EventDelete, Subject: "object", Entity: &model.Entity{GUID: 1}})
	if strings.Join(got, ",") != "delete-any,any-object,all" {
		t.Errorf("called %v", got)
	}
}

func TestNotify_PublishFailureStillAccepts(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("bus down")}
	d := NewDispatcher(pub, quietLogger())
	if !d.Notify(context.Background(), mdNotification(model.EventDelete)) {
		t.Fatal("publish failure must not veto")
	}
}

func TestRegisterCommand_Block(t *testing.T) {
	d := NewDispatcher(nil, quietLogger())
	err := d.RegisterCommand(CommandHook{
		Event:     "create",
		Subject:   model.SubjectMetadata,
		Command:   `test "$KMETA_VALUE" != red`,
		OnFailure: OnFailureBlock,
	})
	if err != nil {
		t.Fatalf("RegisterCommand: %v", err)
	}

	if d.Notify(context.Background(), mdNotification(model.EventCreate)) {
		t.Error("hook should block value red")
	}
	blue := mdNotification(model.EventCreate)
	blue.Metadata.Value = "blue"
	if !d.Notify(context.Background(), blue) {
		t.Error("hook should accept value blue")
	}
}

func TestRegisterCommand_WarnAndIgnore(t *testing.T) {
	for _, tc := range []struct {
		onFailure    string
		wantWarnings int
	}{
		{OnFailureWarn, 1},
		{OnFailureIgnore, 0},
		{"", 0},
	} {
		d := NewDispatcher(nil, quietLogger())
		if err := d.RegisterCommand(CommandHook{Command: "echo nope; exit 3", OnFailure: tc.onFailure}); err != nil {
			t.Fatal(err)
		}
		resp := d.Dispatch(context.Background(), mdNotification(model.EventDelete))
		if resp.Block {
			t.Errorf("%q: unexpected block", tc.onFailure)
		}
		if len(resp.Warnings) != tc.wantWarnings {
			t.Errorf("%q: warnings = %v", tc.onFailure, resp.Warnings)
		}
		if tc.wantWarnings > 0 && !strings.Contains(resp.Warnings[0], "nope") {
			t.Errorf("warning should carry command output: %q", resp.Warnings[0])
		}
	}
}

func TestRegisterCommand_Invalid(t *testing.T) {
	d := NewDispatcher(nil, quietLogger())
	for _, h := range []CommandHook{
		{},
		{Command: "true", Event: "explode"},
		{Command: "true", OnFailure: "panic"},
	} {
		if err := d.RegisterCommand(h); !errors.Is(err, model.ErrInvalidArgument) {
			t.Errorf("RegisterCommand(%+v) = %v, want ErrInvalidArgument", h, err)
		}
	}
}

func TestNotificationEnv(t *testing.T) {
	env := notificationEnv(mdNotification(model.EventUpdate))
	for k, want := range map[string]string{
		"KMETA_EVENT":       "update",
		"KMETA_SUBJECT":     "metadata",
		"KMETA_METADATA_ID": "5",
		"KMETA_ENTITY_GUID": "42",
		"KMETA_NAME":        "color",
		"KMETA_VALUE":       "red",
	} {
		if env[k] != want {
			t.Errorf("%s = %q, want %q", k, env[k], want)
		}
	}
	if !strings.Contains(env["KMETA_PAYLOAD"], `"color"`) {
		t.Errorf("payload = %s", env["KMETA_PAYLOAD"])
	}
}

func TestExecute(t *testing.T) {
	res := Execute(context.Background(), `echo "$GREETING"`, 5, t.TempDir(), map[string]string{"GREETING": "hi"})
	if res.Err != nil || res.Output != "hi" {
		t.Errorf("Execute = %+v", res)
	}

	res = Execute(context.Background(), "echo oops >&2; exit 1", 5, "", nil)
	if res.Err == nil || res.Output != "oops" {
		t.Errorf("failing Execute = %+v", res)
	}

	start := time.Now()
	res = Execute(context.Background(), "exec sleep 5", 1, "", nil)
	if res.Err == nil {
		t.Error("expected timeout error")
	}
	if time.Since(start) > 4*time.Second {
		t.Error("timeout not enforced")
	}
}

func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
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

func TestStartSubscriber_RunsEntityListeners(t *testing.T) {
	url := startTestNATS(t)

	sub, err := events.NewNATSSubscriber(url)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	pub, err := events.NewNATSPublisher(url)
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()

	d := NewDispatcher(nil, quietLogger())
	seen := make(chan int64, 1)
	d.Register(string(model.EventUpdate), Wildcard, func(_ context.Context, n model.Notification) Response {
		select {
		case seen <- n.Entity.GUID:
		default:
		}
		return Response{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.StartSubscriber(ctx, sub) }()

	// Wait for the subscription to be registered before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for {
		env, _ := events.NewEnvelope(model.Notification{
			Kind: model.EventUpdate, Subject: "object",
			Entity: &model.Entity{GUID: 42, Type: "object"},
		})
		if err := pub.Publish(context.Background(), events.TopicEntityUpdated, env); err != nil {
			t.Fatal(err)
		}
		pub.Flush()
		select {
		case guid := <-seen:
			if guid != 42 {
				t.Errorf("listener saw guid %d", guid)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("StartSubscriber: %v", err)
			}
			return
		case <-time.After(100 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("listener never ran")
		}
	}
}
