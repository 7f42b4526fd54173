package export

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// mockDestination records calls to Write.
type mockDestination struct {
	writes atomic.Int64
	last   atomic.Value // []byte
	err    error
}

func (d *mockDestination) Name() string { return "mock" }

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	cp := make([]byte, len(data))
	copy(cp, data)
	d.last.Store(cp)
	return d.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerStartStop(t *testing.T) {
	dest := &mockDestination{}
	sched := NewScheduler(&fakeSource{rows: sampleRows()}, []Destination{dest}, 50*time.Millisecond, quietLogger())
	sched.Start()

	// Wait for at least the initial export + one tick.
	time.Sleep(120 * time.Millisecond)
	sched.Stop()

	if writes := dest.writes.Load(); writes < 2 {
		t.Fatalf("expected at least 2 writes, got %d", writes)
	}
	data, ok := dest.last.Load().([]byte)
	if !ok || len(data) == 0 {
		t.Fatal("expected non-empty data")
	}
	if lines := nonEmptyLines(string(data)); len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(&fakeSource{}, nil, time.Minute, quietLogger())
	// Stop without Start should not panic.
	sched.Stop()
}

func TestSnapshot_FailingDestinationDoesNotStopOthers(t *testing.T) {
	boom := errors.New("bucket unavailable")
	bad := &mockDestination{err: boom}
	good := &mockDestination{}
	sched := NewScheduler(&fakeSource{rows: sampleRows()}, []Destination{bad, good}, time.Minute, quietLogger())

	err := sched.Snapshot(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined destination error, got %v", err)
	}
	if good.writes.Load() != 1 {
		t.Errorf("healthy destination written %d times", good.writes.Load())
	}
}

func TestSnapshot_SourceErrorSkipsDestinations(t *testing.T) {
	dest := &mockDestination{}
	sched := NewScheduler(&fakeSource{err: errors.New("db down")}, []Destination{dest}, time.Minute, quietLogger())
	if err := sched.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if dest.writes.Load() != 0 {
		t.Error("destination written after failed export")
	}
}

func TestFileDestination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.jsonl")
	dest := NewFileDestination(path)
	ctx := context.Background()

	for _, body := range []string{"first\n", "second\n"} {
		if err := dest.Write(ctx, []byte(body)); err != nil {
			t.Fatalf("Write: %v", err)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != body {
			t.Errorf("file = %q, want %q", got, body)
		}
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := dest.Write(cancelled, []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestS3Destination_Construct(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	d, err := NewS3Destination(context.Background(), "backups", "kmeta/metadata.jsonl", "us-east-1", "http://minio:9000")
	if err != nil {
		t.Fatalf("NewS3Destination: %v", err)
	}
	if d.Name() != "s3://backups/kmeta/metadata.jsonl" {
		t.Errorf("Name = %q", d.Name())
	}
	if len(s3Options("")) != 0 || len(s3Options("http://minio:9000")) != 1 {
		t.Error("path-style option only expected with a custom endpoint")
	}
}
