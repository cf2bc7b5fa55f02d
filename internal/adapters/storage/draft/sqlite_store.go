package draft

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"repsync/internal/adapters/storage"
	domain "repsync/internal/domain/draft"
)

const (
	dateLayout = "2006-01-02T15:04:05.999999999Z07:00"

	// keyPrefix namespaces draft rows, mirroring the per-day storage keys the
	// web client used. Enumerating drafts is a prefix scan over this space.
	keyPrefix = "workoutDraft_"
)

// SQLiteStore implements the draft Store interface using SQLite. Drafts are
// stored as JSON payloads in a key-value table; every operation is a full
// read-mutate-write cycle so the persisted record is the single source of
// truth.
type SQLiteStore struct {
	db  storage.SQLDB
	now func() time.Time
	id  func() string

	mu      sync.Mutex
	subs    map[int]func(string)
	nextSub int
}

// Compile-time check that *SQLiteStore satisfies Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new draft store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{
		db:   db,
		now:  time.Now,
		id:   func() string { return uuid.New().String() },
		subs: make(map[int]func(string)),
	}
}

// SetClock overrides the time source (tests only).
func (s *SQLiteStore) SetClock(now func() time.Time) { s.now = now }

// SetIDGenerator overrides the pending-change ID source (tests only).
func (s *SQLiteStore) SetIDGenerator(id func() string) { s.id = id }

func draftKey(dayID string) string {
	return keyPrefix + dayID
}

// Subscribe registers a change listener.
// POST: fn is invoked with the day ID after every successful mutation until
// the returned function is called
func (s *SQLiteStore) Subscribe(fn func(dayID string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// notify invokes all current subscribers synchronously.
func (s *SQLiteStore) notify(dayID string) {
	s.mu.Lock()
	fns := make([]func(string), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(dayID)
	}
}

// Load retrieves the persisted draft for a day.
// POST: Returns ErrNotFound for missing records; corrupt payloads are purged
// and reported as ErrNotFound
func (s *SQLiteStore) Load(ctx context.Context, dayID string) (domain.Draft, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM workout_draft WHERE key = ?`, draftKey(dayID)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Draft{}, ErrNotFound
	}
	if err != nil {
		return domain.Draft{}, fmt.Errorf("load draft: %w", err)
	}

	var d domain.Draft
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		// Fail closed to "no data": discard the corrupt record rather than
		// surfacing a parse error to the caller.
		slog.Warn("draft_corrupt_discarded", "day_id", dayID, "error", err.Error())
		if _, delErr := s.db.ExecContext(ctx,
			`DELETE FROM workout_draft WHERE key = ?`, draftKey(dayID)); delErr != nil {
			slog.Error("draft_corrupt_delete_failed", "day_id", dayID, "error", delErr.Error())
		}
		return domain.Draft{}, ErrNotFound
	}
	if d.DayID == "" {
		d.DayID = dayID
	}
	return d, nil
}

// Save persists a draft (insert or update) and notifies subscribers.
// PRE: d has been validated
func (s *SQLiteStore) Save(ctx context.Context, d domain.Draft) error {
	if err := d.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workout_draft (key, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		draftKey(d.DayID), string(payload), s.now().Format(dateLayout))
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	s.notify(d.DayID)
	return nil
}

// LoadOrInit loads the draft for a day, reconciling against the server
// snapshot when supplied, or initializes a fresh draft from it.
// POST: Returns ErrNotFound when there is neither a persisted record nor a
// non-empty snapshot to initialize from
func (s *SQLiteStore) LoadOrInit(ctx context.Context, dayID string, exercises []domain.Exercise) (domain.Draft, error) {
	d, err := s.Load(ctx, dayID)
	switch {
	case err == nil:
		if exercises != nil {
			d.Merge(exercises, s.now())
			if err := s.Save(ctx, d); err != nil {
				return domain.Draft{}, err
			}
		}
		return d, nil
	case errors.Is(err, ErrNotFound):
		if len(exercises) == 0 {
			return domain.Draft{}, ErrNotFound
		}
		d = domain.New(dayID, exercises, s.now())
		if err := s.Save(ctx, d); err != nil {
			return domain.Draft{}, err
		}
		slog.Info("draft_initialized", "day_id", dayID, "exercises", len(exercises))
		return d, nil
	default:
		return domain.Draft{}, err
	}
}

// mutate runs fn inside a read-mutate-write cycle. Missing drafts are a
// silent no-op per the store's failure semantics.
func (s *SQLiteStore) mutate(ctx context.Context, dayID string, fn func(d *domain.Draft)) error {
	d, err := s.Load(ctx, dayID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	fn(&d)
	return s.Save(ctx, d)
}

// UpdateSet shallow-merges a partial edit into the target set and queues a
// pending change.
func (s *SQLiteStore) UpdateSet(ctx context.Context, dayID, exerciseID string, setNumber int, patch domain.SetPatch) error {
	if patch.IsZero() {
		return nil
	}
	return s.mutate(ctx, dayID, func(d *domain.Draft) {
		d.ApplyPatch(s.id(), exerciseID, setNumber, patch, s.now())
	})
}

// ToggleCompletion flips the completed flag of the target set.
// POST: Returns the new completed value; false with nil error when the day
// has no draft
func (s *SQLiteStore) ToggleCompletion(ctx context.Context, dayID, exerciseID string, setNumber int) (bool, error) {
	var completed bool
	err := s.mutate(ctx, dayID, func(d *domain.Draft) {
		completed = d.ToggleCompletion(s.id(), exerciseID, setNumber, s.now())
	})
	return completed, err
}

// RemoveSet deletes a set and renumbers higher set numbers down by one.
func (s *SQLiteStore) RemoveSet(ctx context.Context, dayID, exerciseID string, setNumber int) error {
	return s.mutate(ctx, dayID, func(d *domain.Draft) {
		d.RemoveSet(exerciseID, setNumber, s.now())
	})
}

// ConsumePending atomically reads and clears the pending-change queue inside
// a transaction, so a concurrent reader never observes the drained entries.
// Subscribers are notified after the commit like any other mutation.
func (s *SQLiteStore) ConsumePending(ctx context.Context, dayID string) ([]domain.PendingChange, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin consume tx: %w", err)
	}
	defer tx.Rollback()

	var payload string
	err = tx.QueryRowContext(ctx,
		`SELECT payload FROM workout_draft WHERE key = ?`, draftKey(dayID)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume pending: %w", err)
	}

	var d domain.Draft
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		slog.Warn("draft_corrupt_discarded", "day_id", dayID, "error", err.Error())
		if _, delErr := tx.ExecContext(ctx,
			`DELETE FROM workout_draft WHERE key = ?`, draftKey(dayID)); delErr != nil {
			return nil, fmt.Errorf("purge corrupt draft: %w", delErr)
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		s.notify(dayID)
		return nil, nil
	}

	drained := d.PendingChanges
	if len(drained) == 0 {
		return nil, nil
	}
	d.PendingChanges = []domain.PendingChange{}

	updated, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal drained draft: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE workout_draft SET payload = ?, updated_at = ? WHERE key = ?`,
		string(updated), s.now().Format(dateLayout), draftKey(dayID)); err != nil {
		return nil, fmt.Errorf("clear pending queue: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit consume tx: %w", err)
	}
	s.notify(dayID)
	return drained, nil
}

// Requeue pushes drained-but-untransmitted changes back onto the front of the
// pending queue, preserving their original timestamps so a later drain still
// dedups by last write.
func (s *SQLiteStore) Requeue(ctx context.Context, dayID string, changes []domain.PendingChange) error {
	if len(changes) == 0 {
		return nil
	}
	return s.mutate(ctx, dayID, func(d *domain.Draft) {
		d.PendingChanges = append(append([]domain.PendingChange{}, changes...), d.PendingChanges...)
	})
}

// MarkSynced updates lastSynced to now, independent of queue state.
func (s *SQLiteStore) MarkSynced(ctx context.Context, dayID string) error {
	return s.mutate(ctx, dayID, func(d *domain.Draft) {
		d.LastSynced = s.now().UnixMilli()
	})
}

// Delete erases the persisted record entirely.
func (s *SQLiteStore) Delete(ctx context.Context, dayID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM workout_draft WHERE key = ?`, draftKey(dayID))
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	s.notify(dayID)
	return nil
}

// ListDayIDs returns the day IDs of all persisted drafts.
func (s *SQLiteStore) ListDayIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM workout_draft ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var dayIDs []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		if dayID, ok := strings.CutPrefix(key, keyPrefix); ok {
			dayIDs = append(dayIDs, dayID)
		}
	}
	return dayIDs, rows.Err()
}
