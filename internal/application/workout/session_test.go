package workout

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"repsync/internal/adapters/api"
	"repsync/internal/adapters/storage"
	draftStore "repsync/internal/adapters/storage/draft"
	"repsync/internal/application/syncer"
	domain "repsync/internal/domain/draft"
)

// recordingTransmitter counts transmissions and can be told to fail.
type recordingTransmitter struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (r *recordingTransmitter) TransmitSet(_ context.Context, _ string, _ int, _ api.SetPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.fail {
		return errors.New("network down")
	}
	return nil
}

func (r *recordingTransmitter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fixedPlans struct {
	plan []domain.Exercise
}

func (f *fixedPlans) FetchDayPlan(_ context.Context, _ string) ([]domain.Exercise, error) {
	return f.plan, nil
}

type recordingMailer struct {
	sent int
}

func (r *recordingMailer) SendSummary(_ context.Context, _, _, _ string) error {
	r.sent++
	return nil
}

// newTestSession wires a facade over a real in-memory store and a sync engine
// whose timer never fires on its own.
func newTestSession(t *testing.T, tx *recordingTransmitter, mailer *recordingMailer) *Session {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	// A single connection keeps every query on the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := storage.InitDB(db); err != nil {
		t.Fatalf("InitDB: %v", err)
	}

	store := draftStore.NewSQLiteStore(db)
	engine := syncer.NewSession(store, tx, syncer.Config{
		Interval:     time.Hour,
		InitialDelay: time.Hour,
		MaxAttempts:  5,
	})
	t.Cleanup(engine.Stop)

	deps := Deps{
		Store: store,
		Sync:  engine,
		Plans: &fixedPlans{plan: []domain.Exercise{
			{ID: "E1", Name: "Bench Press", Sets: 3, Reps: 5, Weight: 100},
		}},
		CoachEmail: "coach@example.com",
	}
	// A typed nil would defeat the optional-sender check downstream.
	if mailer != nil {
		deps.Email = mailer
	}
	s := NewSession(deps)
	t.Cleanup(s.Close)
	return s
}

func TestSession_OpenAndRead(t *testing.T) {
	s := newTestSession(t, &recordingTransmitter{}, nil)

	d, err := s.Open(context.Background(), "day1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.DayID != "day1" {
		t.Errorf("day = %q, want day1", d.DayID)
	}

	entry, ok := s.SetData("E1", 2)
	if !ok {
		t.Fatal("set 2 missing from opened draft")
	}
	if entry.Weight != 100 || entry.Reps != 5 {
		t.Errorf("entry = %+v, want planned defaults 100x5", entry)
	}
	if sets := s.ExerciseSets("E1"); len(sets) != 3 {
		t.Errorf("got %d sets, want 3", len(sets))
	}
}

func TestSession_ReadsRequireOpen(t *testing.T) {
	s := newTestSession(t, &recordingTransmitter{}, nil)

	if _, err := s.Snapshot(); !errors.Is(err, ErrNoActiveWorkout) {
		t.Errorf("Snapshot err = %v, want ErrNoActiveWorkout", err)
	}
	if err := s.UpdateSet(context.Background(), "E1", 1, domain.SetPatch{}); !errors.Is(err, ErrNoActiveWorkout) {
		t.Errorf("UpdateSet err = %v, want ErrNoActiveWorkout", err)
	}
	if _, ok := s.SetData("E1", 1); ok {
		t.Error("SetData returned data with no open workout")
	}
}

func TestSession_EditRefreshesSnapshot(t *testing.T) {
	s := newTestSession(t, &recordingTransmitter{}, nil)
	ctx := context.Background()
	if _, err := s.Open(ctx, "day1"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	w := 102.5
	if err := s.UpdateSet(ctx, "E1", 1, domain.SetPatch{Weight: &w}); err != nil {
		t.Fatalf("UpdateSet: %v", err)
	}

	entry, ok := s.SetData("E1", 1)
	if !ok || entry.Weight != 102.5 {
		t.Errorf("snapshot entry = %+v, want weight 102.5 after edit", entry)
	}

	done, err := s.ToggleCompletion(ctx, "E1", 1)
	if err != nil || !done {
		t.Fatalf("ToggleCompletion = %v, %v, want true, nil", done, err)
	}
	completed, total := s.ExerciseCompletion("E1")
	if completed != 1 || total != 3 {
		t.Errorf("completion = %d/%d, want 1/3", completed, total)
	}
}

func TestSession_CompletionCappedAtPlannedCount(t *testing.T) {
	s := newTestSession(t, &recordingTransmitter{}, nil)
	ctx := context.Background()
	if _, err := s.Open(ctx, "day1"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// An ad-hoc set above the planned count leaves a sparse entry at 5.
	for _, n := range []int{1, 2, 3, 5} {
		if _, err := s.ToggleCompletion(ctx, "E1", n); err != nil {
			t.Fatalf("ToggleCompletion set %d: %v", n, err)
		}
	}

	completed, total := s.ExerciseCompletion("E1")
	if completed != 3 || total != 3 {
		t.Errorf("completion = %d/%d, want 3/3 with the extra set ignored", completed, total)
	}

	if completed, total := s.ExerciseCompletion("ghost"); completed != 0 || total != 0 {
		t.Errorf("unknown exercise completion = %d/%d, want 0/0", completed, total)
	}
}

func TestSession_RemoveSetRenumbers(t *testing.T) {
	s := newTestSession(t, &recordingTransmitter{}, nil)
	ctx := context.Background()
	if _, err := s.Open(ctx, "day1"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.RemoveSet(ctx, "E1", 1); err != nil {
		t.Fatalf("RemoveSet: %v", err)
	}
	sets := s.ExerciseSets("E1")
	if len(sets) != 2 {
		t.Fatalf("got %d sets after removal, want 2", len(sets))
	}
	if _, ok := sets[3]; ok {
		t.Error("set 3 still present, want dense renumbering to 1..2")
	}
}

func TestSession_SyncNowDrainsQueue(t *testing.T) {
	tx := &recordingTransmitter{}
	s := newTestSession(t, tx, nil)
	ctx := context.Background()
	if _, err := s.Open(ctx, "day1"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	w := 105.0
	if err := s.UpdateSet(ctx, "E1", 1, domain.SetPatch{Weight: &w}); err != nil {
		t.Fatalf("UpdateSet: %v", err)
	}
	if err := s.SyncNow(ctx); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if tx.callCount() != 1 {
		t.Errorf("transmitted %d sets, want 1", tx.callCount())
	}
	if s.SyncStatus() != syncer.StatusSynced {
		t.Errorf("status = %s, want synced", s.SyncStatus())
	}
}

func TestSession_FinishSendsSummaryAndClears(t *testing.T) {
	tx := &recordingTransmitter{}
	mailer := &recordingMailer{}
	s := newTestSession(t, tx, mailer)
	ctx := context.Background()
	if _, err := s.Open(ctx, "day1"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.ToggleCompletion(ctx, "E1", 1); err != nil {
		t.Fatalf("ToggleCompletion: %v", err)
	}

	if err := s.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if mailer.sent != 1 {
		t.Errorf("summary sent %d times, want 1", mailer.sent)
	}
	if s.DayID() != "" {
		t.Error("workout still open after Finish")
	}
	if _, err := s.Snapshot(); !errors.Is(err, ErrNoActiveWorkout) {
		t.Error("snapshot survived Finish")
	}
}

func TestSession_FinishBlockedBySyncFailure(t *testing.T) {
	tx := &recordingTransmitter{fail: true}
	s := newTestSession(t, tx, nil)
	ctx := context.Background()
	if _, err := s.Open(ctx, "day1"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	w := 105.0
	if err := s.UpdateSet(ctx, "E1", 1, domain.SetPatch{Weight: &w}); err != nil {
		t.Fatalf("UpdateSet: %v", err)
	}

	if err := s.Finish(ctx); !errors.Is(err, syncer.ErrTransmitFailed) {
		t.Fatalf("Finish err = %v, want ErrTransmitFailed", err)
	}
	if s.DayID() != "day1" {
		t.Error("workout closed despite failed final sync")
	}

	// Connectivity returns: finishing again drains the requeued change.
	tx.mu.Lock()
	tx.fail = false
	tx.mu.Unlock()
	if err := s.Finish(ctx); err != nil {
		t.Fatalf("Finish retry: %v", err)
	}
	if s.DayID() != "" {
		t.Error("workout still open after successful retry")
	}
}

func TestSession_CancelDiscardsDraft(t *testing.T) {
	tx := &recordingTransmitter{}
	s := newTestSession(t, tx, nil)
	ctx := context.Background()
	if _, err := s.Open(ctx, "day1"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	w := 105.0
	if err := s.UpdateSet(ctx, "E1", 1, domain.SetPatch{Weight: &w}); err != nil {
		t.Fatalf("UpdateSet: %v", err)
	}

	if err := s.Cancel(ctx); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if tx.callCount() != 0 {
		t.Error("cancel transmitted queued changes")
	}
	if s.DayID() != "" {
		t.Error("workout still open after Cancel")
	}
}
