package draft

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"repsync/internal/adapters/storage"
	domain "repsync/internal/domain/draft"
)

var storeNow = time.UnixMilli(1700000000000)

// newTestStore creates a draft store backed by an in-memory SQLite database.
func newTestStore(t *testing.T) *SQLiteStore {
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

	s := NewSQLiteStore(db)
	s.SetClock(func() time.Time { return storeNow })
	seq := 0
	s.SetIDGenerator(func() string {
		seq++
		return fmt.Sprintf("change-%03d", seq)
	})
	return s
}

func rawDB(t *testing.T, s *SQLiteStore) *sql.DB {
	t.Helper()
	db, ok := s.db.(*sql.DB)
	if !ok {
		t.Fatal("test store is not backed by *sql.DB")
	}
	return db
}

func dayPlan() []domain.Exercise {
	return []domain.Exercise{
		{ID: "E1", Name: "Bench Press", Sets: 3, Reps: 5, Weight: 100},
	}
}

func f(v float64) *float64 { return &v }

// TestLoadOrInit_InitializesFresh verifies a new draft is created and
// persisted when no record exists.
func TestLoadOrInit_InitializesFresh(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d, err := s.LoadOrInit(ctx, "day1", dayPlan())
	if err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}
	if len(d.SetsData["E1"]) != 3 {
		t.Errorf("got %d sets, want 3", len(d.SetsData["E1"]))
	}

	persisted, err := s.Load(ctx, "day1")
	if err != nil {
		t.Fatalf("Load after init: %v", err)
	}
	if !reflect.DeepEqual(d, persisted) {
		t.Errorf("persisted draft differs from returned draft:\ngot  %+v\nwant %+v", persisted, d)
	}
}

// TestLoadOrInit_Idempotent verifies two loads with no intervening mutation
// return equal drafts.
func TestLoadOrInit_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.LoadOrInit(ctx, "day1", dayPlan())
	if err != nil {
		t.Fatalf("first LoadOrInit: %v", err)
	}
	second, err := s.LoadOrInit(ctx, "day1", nil)
	if err != nil {
		t.Fatalf("second LoadOrInit: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("drafts differ across idempotent loads:\nfirst  %+v\nsecond %+v", first, second)
	}
}

// TestLoadOrInit_NoRecordNoSnapshot verifies ErrNotFound when there is
// nothing to load and nothing to initialize from.
func TestLoadOrInit_NoRecordNoSnapshot(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LoadOrInit(context.Background(), "day1", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// TestLoadOrInit_MergesSnapshot verifies a supplied snapshot reconciles an
// existing draft instead of replacing local edits.
func TestLoadOrInit_MergesSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LoadOrInit(ctx, "day1", dayPlan()); err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}
	if err := s.UpdateSet(ctx, "day1", "E1", 2, domain.SetPatch{Weight: f(105)}); err != nil {
		t.Fatalf("UpdateSet: %v", err)
	}

	grown := dayPlan()
	grown[0].Sets = 5
	d, err := s.LoadOrInit(ctx, "day1", grown)
	if err != nil {
		t.Fatalf("LoadOrInit with snapshot: %v", err)
	}
	if d.SetsData["E1"][2].Weight != 105 {
		t.Errorf("set 2 weight = %v, want local edit 105 preserved", d.SetsData["E1"][2].Weight)
	}
	if len(d.SetsData["E1"]) != 5 {
		t.Errorf("got %d sets after grow, want 5", len(d.SetsData["E1"]))
	}
}

// TestLoad_CorruptRecordRecovery verifies a corrupt payload is treated as
// absent, purged, and replaced by a fresh initialization.
func TestLoad_CorruptRecordRecovery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	db := rawDB(t, s)

	_, err := db.Exec(
		`INSERT INTO workout_draft (key, payload, updated_at) VALUES (?, ?, ?)`,
		"workoutDraft_day1", "{not valid json", "2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}

	if _, err := s.Load(ctx, "day1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load corrupt = %v, want ErrNotFound", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM workout_draft`).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 0 {
		t.Errorf("corrupt row still present, count = %d", count)
	}

	d, err := s.LoadOrInit(ctx, "day1", dayPlan())
	if err != nil {
		t.Fatalf("LoadOrInit after corruption: %v", err)
	}
	if len(d.SetsData["E1"]) != 3 {
		t.Errorf("fresh draft has %d sets, want 3", len(d.SetsData["E1"]))
	}
}

// TestUpdateSet_QueuesPendingChange verifies the edit and its pending change
// are persisted together.
func TestUpdateSet_QueuesPendingChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LoadOrInit(ctx, "day1", dayPlan()); err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}
	if err := s.UpdateSet(ctx, "day1", "E1", 1, domain.SetPatch{Weight: f(102.5)}); err != nil {
		t.Fatalf("UpdateSet: %v", err)
	}

	d, err := s.Load(ctx, "day1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.SetsData["E1"][1].Weight != 102.5 {
		t.Errorf("weight = %v, want 102.5", d.SetsData["E1"][1].Weight)
	}
	if len(d.PendingChanges) != 1 {
		t.Fatalf("got %d pending changes, want 1", len(d.PendingChanges))
	}
	c := d.PendingChanges[0]
	if c.ExerciseID != "E1" || c.SetNumber != 1 || c.Data.Weight == nil || *c.Data.Weight != 102.5 {
		t.Errorf("pending change = %+v, want E1 set 1 weight 102.5", c)
	}
}

// TestUpdateSet_MissingDraftIsNoop verifies mutations on an absent day are
// silent no-ops, not errors.
func TestUpdateSet_MissingDraftIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpdateSet(ctx, "ghost", "E1", 1, domain.SetPatch{Weight: f(100)}); err != nil {
		t.Errorf("UpdateSet on missing draft = %v, want nil", err)
	}
	if _, err := s.Load(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("no-op mutation created a draft")
	}
}

// TestToggleCompletion_PersistedFlip verifies toggle returns true then false
// and the persisted entry matches the last return.
func TestToggleCompletion_PersistedFlip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LoadOrInit(ctx, "day1", dayPlan()); err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}

	got, err := s.ToggleCompletion(ctx, "day1", "E1", 1)
	if err != nil || !got {
		t.Fatalf("first toggle = (%v, %v), want (true, nil)", got, err)
	}
	got, err = s.ToggleCompletion(ctx, "day1", "E1", 1)
	if err != nil || got {
		t.Fatalf("second toggle = (%v, %v), want (false, nil)", got, err)
	}

	d, _ := s.Load(ctx, "day1")
	if d.SetsData["E1"][1].Completed {
		t.Error("persisted completed = true, want false")
	}
	if len(d.PendingChanges) != 2 {
		t.Errorf("got %d pending changes, want 2", len(d.PendingChanges))
	}
}

// TestConsumePending_DrainsAtomically verifies the drain returns the queue and
// a subsequent reader sees it empty.
func TestConsumePending_DrainsAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LoadOrInit(ctx, "day1", dayPlan()); err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}
	s.UpdateSet(ctx, "day1", "E1", 1, domain.SetPatch{Weight: f(101)})
	s.UpdateSet(ctx, "day1", "E1", 2, domain.SetPatch{Weight: f(102)})

	drained, err := s.ConsumePending(ctx, "day1")
	if err != nil {
		t.Fatalf("ConsumePending: %v", err)
	}
	if len(drained) != 2 {
		t.Fatalf("drained %d changes, want 2", len(drained))
	}

	d, _ := s.Load(ctx, "day1")
	if len(d.PendingChanges) != 0 {
		t.Errorf("queue has %d entries after drain, want 0", len(d.PendingChanges))
	}
	if d.SetsData["E1"][1].Weight != 101 {
		t.Errorf("set values must survive the drain, weight = %v", d.SetsData["E1"][1].Weight)
	}

	again, err := s.ConsumePending(ctx, "day1")
	if err != nil {
		t.Fatalf("second ConsumePending: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second drain returned %d changes, want 0", len(again))
	}
}

// TestConsumePending_NotifiesSubscribers verifies the drain counts as a
// mutation on the change feed, so a snapshot reader sees the emptied queue.
func TestConsumePending_NotifiesSubscribers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LoadOrInit(ctx, "day1", dayPlan()); err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}
	s.UpdateSet(ctx, "day1", "E1", 1, domain.SetPatch{Weight: f(101)})

	var seen []string
	unsubscribe := s.Subscribe(func(dayID string) { seen = append(seen, dayID) })
	defer unsubscribe()

	if _, err := s.ConsumePending(ctx, "day1"); err != nil {
		t.Fatalf("ConsumePending: %v", err)
	}
	if len(seen) != 1 || seen[0] != "day1" {
		t.Fatalf("notifications = %v, want [day1] after the drain", seen)
	}

	// An empty queue commits nothing and stays silent.
	if _, err := s.ConsumePending(ctx, "day1"); err != nil {
		t.Fatalf("second ConsumePending: %v", err)
	}
	if len(seen) != 1 {
		t.Errorf("empty drain notified, got %d notifications, want 1", len(seen))
	}
}

// TestConsumePending_MissingDraft verifies draining an absent day is a no-op.
func TestConsumePending_MissingDraft(t *testing.T) {
	s := newTestStore(t)

	drained, err := s.ConsumePending(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("ConsumePending: %v", err)
	}
	if drained != nil {
		t.Errorf("drained = %v, want nil", drained)
	}
}

// TestRequeue_PrependsChanges verifies requeued changes land ahead of edits
// queued in the meantime.
func TestRequeue_PrependsChanges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LoadOrInit(ctx, "day1", dayPlan()); err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}
	s.UpdateSet(ctx, "day1", "E1", 1, domain.SetPatch{Weight: f(101)})
	drained, _ := s.ConsumePending(ctx, "day1")
	s.UpdateSet(ctx, "day1", "E1", 2, domain.SetPatch{Weight: f(102)})

	if err := s.Requeue(ctx, "day1", drained); err != nil {
		t.Fatalf("Requeue: %v", err)
	}

	d, _ := s.Load(ctx, "day1")
	if len(d.PendingChanges) != 2 {
		t.Fatalf("queue has %d entries, want 2", len(d.PendingChanges))
	}
	if d.PendingChanges[0].SetNumber != 1 || d.PendingChanges[1].SetNumber != 2 {
		t.Errorf("requeued change is not at the front: %+v", d.PendingChanges)
	}
}

// TestMarkSynced updates lastSynced without touching the queue.
func TestMarkSynced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LoadOrInit(ctx, "day1", dayPlan()); err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}
	s.UpdateSet(ctx, "day1", "E1", 1, domain.SetPatch{Weight: f(101)})

	later := storeNow.Add(time.Minute)
	s.SetClock(func() time.Time { return later })
	if err := s.MarkSynced(ctx, "day1"); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}

	d, _ := s.Load(ctx, "day1")
	if d.LastSynced != later.UnixMilli() {
		t.Errorf("lastSynced = %d, want %d", d.LastSynced, later.UnixMilli())
	}
	if len(d.PendingChanges) != 1 {
		t.Errorf("MarkSynced touched the queue: %d entries, want 1", len(d.PendingChanges))
	}
}

// TestDelete_And_ListDayIDs covers the resume-prompt scan and record erasure.
func TestDelete_And_ListDayIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.LoadOrInit(ctx, "day1", dayPlan())
	s.LoadOrInit(ctx, "day2", dayPlan())

	ids, err := s.ListDayIDs(ctx)
	if err != nil {
		t.Fatalf("ListDayIDs: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"day1", "day2"}) {
		t.Errorf("ids = %v, want [day1 day2]", ids)
	}

	if err := s.Delete(ctx, "day1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ids, _ = s.ListDayIDs(ctx)
	if !reflect.DeepEqual(ids, []string{"day2"}) {
		t.Errorf("ids after delete = %v, want [day2]", ids)
	}

	// Deleting an absent record stays silent.
	if err := s.Delete(ctx, "day1"); err != nil {
		t.Errorf("second Delete = %v, want nil", err)
	}
}

// TestSubscribe_NotifiesOnMutation verifies the change feed fires on every
// successful mutation and stops after unsubscribe.
func TestSubscribe_NotifiesOnMutation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var seen []string
	unsubscribe := s.Subscribe(func(dayID string) { seen = append(seen, dayID) })

	s.LoadOrInit(ctx, "day1", dayPlan())
	s.UpdateSet(ctx, "day1", "E1", 1, domain.SetPatch{Weight: f(101)})

	if len(seen) != 2 {
		t.Fatalf("got %d notifications, want 2 (init save + update save)", len(seen))
	}
	for _, dayID := range seen {
		if dayID != "day1" {
			t.Errorf("notification for %q, want day1", dayID)
		}
	}

	unsubscribe()
	s.UpdateSet(ctx, "day1", "E1", 2, domain.SetPatch{Weight: f(102)})
	if len(seen) != 2 {
		t.Errorf("notification after unsubscribe, got %d, want 2", len(seen))
	}
}
