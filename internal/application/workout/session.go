// Package workout is the consumption facade: one object through which a UI or
// CLI reads and edits the active day's draft without touching the store or the
// sync engine directly.
package workout

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	draftStore "repsync/internal/adapters/storage/draft"
	"repsync/internal/application/orchestrators"
	"repsync/internal/application/syncer"
	domain "repsync/internal/domain/draft"
)

// ErrNoActiveWorkout is returned by reads and edits before Open succeeds or
// after Finish/Cancel.
var ErrNoActiveWorkout = errors.New("no active workout")

// Deps wires a Session to its collaborators.
type Deps struct {
	Store      draftStore.Store
	Sync       *syncer.Session
	Plans      orchestrators.PlanFetcher // optional; nil opens offline only
	Email      orchestrators.EmailSender // optional; nil skips the coach summary
	CoachEmail string
	Now        func() time.Time
}

// Session is the active-workout facade. It keeps an in-memory snapshot of the
// draft, refreshed through the store's change notifications, so reads never
// hit storage.
type Session struct {
	deps Deps

	mu          sync.Mutex
	dayID       string
	snapshot    domain.Draft
	unsubscribe func()
}

// NewSession creates a facade. No workout is active until Open.
func NewSession(deps Deps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Session{deps: deps}
}

// Open makes a day the active workout: plan fetch, draft load-or-init, sync
// start, and snapshot subscription. Opening a second day closes the first
// without syncing or deleting it.
func (s *Session) Open(ctx context.Context, dayID string) (domain.Draft, error) {
	s.detach()

	d, err := orchestrators.ExecuteOpenDay(ctx, orchestrators.OpenDayInput{DayID: dayID}, orchestrators.OpenDayDeps{
		DraftStore: s.deps.Store,
		Plans:      s.deps.Plans,
		Sync:       s.deps.Sync,
	})
	if err != nil {
		return domain.Draft{}, err
	}

	unsubscribe := s.deps.Store.Subscribe(func(changed string) {
		if changed == dayID {
			s.refresh(dayID)
		}
	})

	s.mu.Lock()
	s.dayID = dayID
	s.snapshot = d
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	return d, nil
}

// refresh reloads the snapshot after a store mutation. A deleted draft leaves
// the last snapshot in place; Finish and Cancel clear state themselves.
func (s *Session) refresh(dayID string) {
	d, err := s.deps.Store.Load(context.Background(), dayID)
	if err != nil {
		if !errors.Is(err, draftStore.ErrNotFound) {
			slog.Warn("snapshot_refresh_failed", "day_id", dayID, "error", err.Error())
		}
		return
	}
	s.mu.Lock()
	if s.dayID == dayID {
		s.snapshot = d
	}
	s.mu.Unlock()
}

// DayID returns the active day, or "" when no workout is open.
func (s *Session) DayID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dayID
}

// Snapshot returns the current draft snapshot.
func (s *Session) Snapshot() (domain.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dayID == "" {
		return domain.Draft{}, ErrNoActiveWorkout
	}
	return s.snapshot, nil
}

// SetData returns the recorded state of one set.
func (s *Session) SetData(exerciseID string, setNumber int) (domain.SetEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dayID == "" {
		return domain.SetEntry{}, false
	}
	return s.snapshot.Set(exerciseID, setNumber)
}

// ExerciseSets returns all recorded sets of an exercise, keyed by set number.
func (s *Session) ExerciseSets(exerciseID string) map[int]domain.SetEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dayID == "" {
		return nil
	}
	return s.snapshot.ExerciseSets(exerciseID)
}

// ExerciseCompletion returns completed and total set counts for an exercise.
// Both figures use the planned set count, so leftover entries above the
// current plan neither count as completed nor inflate the total.
func (s *Session) ExerciseCompletion(exerciseID string) (completed, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dayID == "" {
		return 0, 0
	}
	for _, ex := range s.snapshot.Exercises {
		if ex.ID == exerciseID {
			return s.snapshot.CompletionCount(exerciseID, ex.Sets), ex.Sets
		}
	}
	return 0, 0
}

// UpdateSet records a partial edit to one set and queues it for sync.
func (s *Session) UpdateSet(ctx context.Context, exerciseID string, setNumber int, patch domain.SetPatch) error {
	dayID := s.DayID()
	if dayID == "" {
		return ErrNoActiveWorkout
	}
	return s.deps.Store.UpdateSet(ctx, dayID, exerciseID, setNumber, patch)
}

// ToggleCompletion flips a set's completed flag and returns the new value.
func (s *Session) ToggleCompletion(ctx context.Context, exerciseID string, setNumber int) (bool, error) {
	dayID := s.DayID()
	if dayID == "" {
		return false, ErrNoActiveWorkout
	}
	return s.deps.Store.ToggleCompletion(ctx, dayID, exerciseID, setNumber)
}

// RemoveSet deletes a set, renumbering the ones above it.
func (s *Session) RemoveSet(ctx context.Context, exerciseID string, setNumber int) error {
	dayID := s.DayID()
	if dayID == "" {
		return ErrNoActiveWorkout
	}
	return s.deps.Store.RemoveSet(ctx, dayID, exerciseID, setNumber)
}

// SyncNow forces an immediate drain of the pending queue.
func (s *Session) SyncNow(ctx context.Context) error {
	return s.deps.Sync.SyncNow(ctx)
}

// SyncStatus returns the current sync status.
func (s *Session) SyncStatus() syncer.Status {
	return s.deps.Sync.Status()
}

// OnSyncStatusChange registers a status listener; see syncer.Session.
func (s *Session) OnSyncStatusChange(fn func(syncer.Status)) func() {
	return s.deps.Sync.OnStatusChange(fn)
}

// Finish completes the active workout. On sync failure the workout stays open
// so it can be retried.
func (s *Session) Finish(ctx context.Context) error {
	dayID := s.DayID()
	if dayID == "" {
		return ErrNoActiveWorkout
	}

	err := orchestrators.ExecuteFinishWorkout(ctx, orchestrators.FinishWorkoutInput{
		DayID:      dayID,
		CoachEmail: s.deps.CoachEmail,
	}, orchestrators.FinishWorkoutDeps{
		DraftStore: s.deps.Store,
		Sync:       s.deps.Sync,
		Email:      s.deps.Email,
		Now:        s.deps.Now,
	})
	if err != nil {
		return err
	}

	s.detach()
	return nil
}

// Cancel abandons the active workout, discarding the draft and its queue.
func (s *Session) Cancel(ctx context.Context) error {
	dayID := s.DayID()
	if dayID == "" {
		return ErrNoActiveWorkout
	}

	err := orchestrators.ExecuteCancelWorkout(ctx, orchestrators.CancelWorkoutInput{DayID: dayID}, orchestrators.CancelWorkoutDeps{
		DraftStore: s.deps.Store,
		Sync:       s.deps.Sync,
	})
	if err != nil {
		return err
	}

	s.detach()
	return nil
}

// Close detaches the facade from the store without finishing, cancelling, or
// stopping background sync. The draft stays persisted and keeps syncing.
func (s *Session) Close() {
	s.detach()
}

func (s *Session) detach() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.dayID = ""
	s.snapshot = domain.Draft{}
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
