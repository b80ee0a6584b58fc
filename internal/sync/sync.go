// Package sync periodically exports a ledger snapshot to S3 or a git repo.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Destination is a place snapshots are written to.
type Destination interface {
	// Name identifies the destination in logs.
	Name() string
	// Write stores the snapshot, replacing the previous one.
	Write(ctx context.Context, snap *Snapshot) error
}

// Scheduler takes a snapshot on every tick and writes it to each
// destination. A snapshot whose digest matches the last one every
// destination accepted is skipped.
type Scheduler struct {
	source       Source
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu         sync.Mutex
	lastDigest string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports a ledger snapshot to the given
// destinations at the specified interval.
func NewScheduler(src Source, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		source:       src,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		now:          time.Now,
	}
}

// Start begins periodic sync. It runs an initial sync immediately, then
// on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current sync (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.SyncOnce(ctx); err != nil {
		s.logger.Error("sync failed", "err", err)
	}
}

// SyncOnce takes one snapshot and writes it everywhere. It reports whether
// anything was written. Destination failures are joined into the returned
// error; the snapshot is then retried on the next call even if unchanged.
func (s *Scheduler) SyncOnce(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := Take(ctx, s.source, s.now())
	if err != nil {
		return false, fmt.Errorf("take snapshot: %w", err)
	}
	if snap.Digest == s.lastDigest {
		s.logger.Debug("sync skipped, ledger unchanged", "digest", snap.ShortDigest())
		return false, nil
	}

	var errs []error
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dest.Name(), err))
		}
	}
	if len(errs) > 0 {
		return true, errors.Join(errs...)
	}

	s.lastDigest = snap.Digest
	s.logger.Info("sync completed",
		"destinations", len(s.destinations),
		"bytes", len(snap.Data),
		"articles", snap.Counts.Articles,
		"receipts", snap.Counts.Receipts,
		"digest", snap.ShortDigest(),
	)
	return true, nil
}
