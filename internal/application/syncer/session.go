// Package syncer drains the pending-change queue of the active workout draft
// and transmits the surviving changes to the remote coaching API on a timer.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"repsync/internal/adapters/api"
	draftStore "repsync/internal/adapters/storage/draft"
	domain "repsync/internal/domain/draft"
)

// Status is the observable sync state: idle → syncing → {synced | error},
// re-entering syncing on every drain cycle that finds work.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
)

// ErrTransmitFailed is returned by SyncNow when at least one transmission in
// the batch did not make it. The failed changes have been requeued (up to the
// attempt cap); callers observing status see StatusError.
var ErrTransmitFailed = errors.New("one or more set transmissions failed")

// Store is the slice of draft persistence the sync engine needs.
type Store interface {
	Load(ctx context.Context, dayID string) (domain.Draft, error)
	ConsumePending(ctx context.Context, dayID string) ([]domain.PendingChange, error)
	Requeue(ctx context.Context, dayID string, changes []domain.PendingChange) error
	MarkSynced(ctx context.Context, dayID string) error
}

// Config controls the drain schedule and the retry cap.
type Config struct {
	Interval     time.Duration // fixed drain period
	InitialDelay time.Duration // deferred first drain, lets the UI settle
	MaxAttempts  int           // transmissions per change before it is dropped
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     10 * time.Second,
		InitialDelay: 2 * time.Second,
		MaxAttempts:  5,
	}
}

// Session owns one day's background sync: the active target, the drain timer,
// and the status subscribers. It is constructed by whoever composes the
// workout session, so independent sessions (and tests) never share state.
type Session struct {
	store       Store
	transmitter api.Transmitter
	cfg         Config

	mu      sync.Mutex
	dayID   string
	status  Status
	cancel  context.CancelFunc
	subs    map[int]func(Status)
	nextSub int
}

// NewSession creates a sync session. Nothing runs until Start.
func NewSession(store Store, transmitter api.Transmitter, cfg Config) *Session {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = 0
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	return &Session{
		store:       store,
		transmitter: transmitter,
		cfg:         cfg,
		status:      StatusIdle,
		subs:        make(map[int]func(Status)),
	}
}

// Start begins background syncing for a day, stopping any previous session
// first. One deferred initial drain runs shortly after start, then the fixed
// interval timer takes over.
func (s *Session) Start(dayID string) {
	s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.dayID = dayID
	s.status = StatusIdle
	s.cancel = cancel
	s.mu.Unlock()

	slog.Info("sync_session_started", "day_id", dayID, "interval", s.cfg.Interval)
	go s.run(ctx)
}

// run is the timer loop: deferred initial drain, then fixed-period drains
// until the session is stopped.
func (s *Session) run(ctx context.Context) {
	initial := time.NewTimer(s.cfg.InitialDelay)
	defer initial.Stop()
	select {
	case <-ctx.Done():
		return
	case <-initial.C:
	}
	if err := s.SyncNow(ctx); err != nil {
		slog.Warn("sync_initial_drain_failed", "error", err.Error())
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SyncNow(ctx); err != nil {
				slog.Warn("sync_drain_failed", "error", err.Error())
			}
		}
	}
}

// Stop cancels the timer, clears the active target and all subscribers, and
// resets status to idle. Safe to call when not started. An in-flight drain
// finishes the transmissions it already began; its later batches find no
// active target.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.dayID = ""
	s.status = StatusIdle
	s.subs = make(map[int]func(Status))
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// SyncNow drains and transmits the active day's pending changes. Idempotent
// and safe to call concurrently with the timer: a second invocation simply
// finds an already-empty queue.
// POST: all-success → draft marked synced, status synced; any failure →
// failed changes requeued up to the attempt cap, status error,
// ErrTransmitFailed returned
func (s *Session) SyncNow(ctx context.Context) error {
	s.mu.Lock()
	dayID := s.dayID
	s.mu.Unlock()
	if dayID == "" {
		return nil
	}

	changes, err := s.store.ConsumePending(ctx, dayID)
	if err != nil {
		s.setStatus(StatusError)
		return fmt.Errorf("drain pending changes: %w", err)
	}
	if len(changes) == 0 {
		s.setStatus(StatusSynced)
		return nil
	}

	s.setStatus(StatusSyncing)
	survivors := domain.DedupLatest(changes)
	slog.Debug("sync_drain", "day_id", dayID, "drained", len(changes), "after_dedup", len(survivors))

	d, err := s.store.Load(ctx, dayID)
	if errors.Is(err, draftStore.ErrNotFound) {
		// Draft cleared while the batch was in flight; nothing left to send.
		s.setStatus(StatusSynced)
		return nil
	}
	if err != nil {
		s.setStatus(StatusError)
		return fmt.Errorf("reload draft for transmit: %w", err)
	}

	// Each surviving change sends the set's current full value, not the
	// change's own partial: the transport only accepts complete payloads and
	// the store is the ordering authority.
	type attempt struct {
		change domain.PendingChange
		entry  domain.SetEntry
	}
	var attempts []attempt
	for _, c := range survivors {
		entry, ok := d.Set(c.ExerciseID, c.SetNumber)
		if !ok {
			// Set removed locally after the edit was queued.
			continue
		}
		attempts = append(attempts, attempt{change: c, entry: entry})
	}

	failed := make([]bool, len(attempts))
	var wg sync.WaitGroup
	for i, a := range attempts {
		wg.Add(1)
		go func(i int, a attempt) {
			defer wg.Done()
			err := s.transmitter.TransmitSet(ctx, a.change.ExerciseID, a.change.SetNumber,
				api.PayloadFromEntry(a.entry))
			if err != nil {
				failed[i] = true
				slog.Warn("set_transmit_failed",
					"day_id", dayID,
					"exercise_id", a.change.ExerciseID,
					"set_number", a.change.SetNumber,
					"attempt", a.change.Attempts+1,
					"error", err.Error(),
				)
			}
		}(i, a)
	}
	wg.Wait()

	var requeue []domain.PendingChange
	for i, a := range attempts {
		if !failed[i] {
			continue
		}
		c := a.change
		c.Attempts++
		if c.Attempts >= s.cfg.MaxAttempts {
			slog.Warn("set_change_dropped",
				"day_id", dayID,
				"exercise_id", c.ExerciseID,
				"set_number", c.SetNumber,
				"attempts", c.Attempts,
			)
			continue
		}
		requeue = append(requeue, c)
	}

	if len(requeue) == 0 && !anyFailed(failed) {
		if err := s.store.MarkSynced(ctx, dayID); err != nil {
			slog.Error("mark_synced_failed", "day_id", dayID, "error", err.Error())
		}
		s.setStatus(StatusSynced)
		return nil
	}

	if err := s.store.Requeue(ctx, dayID, requeue); err != nil {
		slog.Error("requeue_failed", "day_id", dayID, "error", err.Error())
	}
	s.setStatus(StatusError)
	return ErrTransmitFailed
}

func anyFailed(failed []bool) bool {
	for _, f := range failed {
		if f {
			return true
		}
	}
	return false
}

// OnStatusChange registers a subscriber, immediately invokes it with the
// current status, and returns a function that removes it.
func (s *Session) OnStatusChange(fn func(Status)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	current := s.status
	s.mu.Unlock()

	fn(current)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// setStatus records a transition and broadcasts it synchronously to all
// current subscribers. Repeats of the current status are not broadcast.
func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	if s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	fns := make([]func(Status), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(status)
	}
}

// Status returns the current sync status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsActive reports whether a drain timer is running.
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// CurrentDayID returns the active sync target, or "" when stopped.
func (s *Session) CurrentDayID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dayID
}
