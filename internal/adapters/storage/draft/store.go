package draft

import (
	"context"
	"errors"

	domain "repsync/internal/domain/draft"
)

// ErrNotFound is returned when no draft is persisted for a day ID.
// Corrupt persisted records are reported the same way: the store discards
// them and treats the day as having no draft.
var ErrNotFound = errors.New("draft not found")

// Store defines the interface for workout draft persistence. The draft record
// is always accessed by full read-mutate-write cycles keyed by day ID; callers
// never hold a reference across operations.
type Store interface {
	// LoadOrInit loads the draft for a day, reconciling against the server
	// snapshot when one is supplied, or initializes a fresh draft from it.
	// PRE: dayID is non-empty; exercises is nil when no snapshot is available
	// POST: Returns the draft, or ErrNotFound when there is neither a
	// persisted record nor a non-empty snapshot to initialize from
	LoadOrInit(ctx context.Context, dayID string, exercises []domain.Exercise) (domain.Draft, error)

	// Load retrieves the persisted draft for a day.
	// POST: Returns ErrNotFound for missing or corrupt records
	Load(ctx context.Context, dayID string) (domain.Draft, error)

	// Save persists a draft (insert or update).
	// PRE: d has been validated
	Save(ctx context.Context, d domain.Draft) error

	// UpdateSet shallow-merges a partial edit into the target set and queues
	// a pending change. Silent no-op when the day has no draft.
	UpdateSet(ctx context.Context, dayID, exerciseID string, setNumber int, patch domain.SetPatch) error

	// ToggleCompletion flips the completed flag of the target set and queues
	// a pending change.
	// POST: Returns the new completed value; false with nil error when the
	// day has no draft
	ToggleCompletion(ctx context.Context, dayID, exerciseID string, setNumber int) (bool, error)

	// RemoveSet deletes a set and renumbers higher set numbers down by one.
	// Silent no-op when the day has no draft.
	RemoveSet(ctx context.Context, dayID, exerciseID string, setNumber int) error

	// ConsumePending atomically reads and clears the pending-change queue.
	// This is the sole hand-off point to the sync engine.
	// POST: A concurrent reader observing the draft afterward sees an empty
	// queue; returns nil for a day with no draft
	ConsumePending(ctx context.Context, dayID string) ([]domain.PendingChange, error)

	// Requeue pushes drained-but-untransmitted changes back onto the front of
	// the pending queue. Silent no-op when the day has no draft.
	Requeue(ctx context.Context, dayID string, changes []domain.PendingChange) error

	// MarkSynced updates lastSynced to now, independent of queue state.
	MarkSynced(ctx context.Context, dayID string) error

	// Delete erases the persisted record entirely (workout finished or
	// cancelled). Safe when no record exists.
	Delete(ctx context.Context, dayID string) error

	// ListDayIDs returns the day IDs of all persisted drafts — the
	// resume-prompt scan. Cardinality is expected to be low (one draft per
	// day actually in progress).
	ListDayIDs(ctx context.Context) ([]string, error)

	// Subscribe registers a change listener invoked with the day ID after
	// every successful mutation. Returns an unsubscribe function.
	Subscribe(fn func(dayID string)) func()
}
