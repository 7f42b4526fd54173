package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Destination is a snapshot target (S3, local file).
type Destination interface {
	// Name identifies the destination in logs.
	Name() string
	// Write stores the JSONL payload, replacing any previous snapshot.
	Write(ctx context.Context, data []byte) error
}

// Scheduler exports snapshots to its destinations periodically.
type Scheduler struct {
	source       Source
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from src to the given
// destinations at the specified interval.
func NewScheduler(src Source, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		source:       src,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start runs a snapshot immediately and then on each tick until Stop.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for a running snapshot to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	if err := s.Snapshot(ctx); err != nil {
		s.logger.Error("export failed", "err", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Snapshot(ctx); err != nil {
				s.logger.Error("export failed", "err", err)
			}
		}
	}
}

// Snapshot exports once to every destination. A failing destination does
// not stop the others; their errors are joined.
func (s *Scheduler) Snapshot(ctx context.Context) error {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.source, &buf); err != nil {
		return err
	}
	data := buf.Bytes()

	var errs []error
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			s.logger.Error("export destination write failed", "destination", dest.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", dest.Name(), err))
		}
	}

	s.logger.Info("export completed", "destinations", len(s.destinations), "bytes", len(data))
	return errors.Join(errs...)
}
