package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"time"

	draftStore "repsync/internal/adapters/storage/draft"
	domain "repsync/internal/domain/draft"
)

// DraftStoreForOrchestrator defines the store interface needed by workout orchestrators.
type DraftStoreForOrchestrator interface {
	LoadOrInit(ctx context.Context, dayID string, exercises []domain.Exercise) (domain.Draft, error)
	Load(ctx context.Context, dayID string) (domain.Draft, error)
	Delete(ctx context.Context, dayID string) error
	ListDayIDs(ctx context.Context) ([]string, error)
}

// PlanFetcher retrieves the server's exercise plan for a training day.
type PlanFetcher interface {
	FetchDayPlan(ctx context.Context, dayID string) ([]domain.Exercise, error)
}

// SyncEngine is the slice of the sync session the orchestrators drive.
type SyncEngine interface {
	Start(dayID string)
	Stop()
	SyncNow(ctx context.Context) error
}

// EmailSender sends the finished-workout summary to the coach.
type EmailSender interface {
	SendSummary(ctx context.Context, to, subject, html string) error
}

// --- Open Day ---

// OpenDayInput carries input for the open day orchestrator.
type OpenDayInput struct {
	DayID string
}

// OpenDayDeps holds dependencies for OpenDay.
type OpenDayDeps struct {
	DraftStore DraftStoreForOrchestrator
	Plans      PlanFetcher
	Sync       SyncEngine
}

// ExecuteOpenDay makes a training day the active workout: it fetches the
// server plan when reachable, reconciles or initializes the local draft, and
// starts background sync for the day. A plan fetch failure is not fatal: a
// previously persisted draft still opens offline.
// PRE: DayID must be non-empty
// POST: Background sync is running for the day iff a draft exists
func ExecuteOpenDay(ctx context.Context, input OpenDayInput, deps OpenDayDeps) (domain.Draft, error) {
	if input.DayID == "" {
		return domain.Draft{}, errors.New("day ID is required")
	}

	var exercises []domain.Exercise
	if deps.Plans != nil {
		plan, err := deps.Plans.FetchDayPlan(ctx, input.DayID)
		if err != nil {
			slog.Warn("day_plan_fetch_failed", "day_id", input.DayID, "error", err.Error())
		} else {
			exercises = plan
		}
	}

	d, err := deps.DraftStore.LoadOrInit(ctx, input.DayID, exercises)
	if err != nil {
		return domain.Draft{}, err
	}

	deps.Sync.Start(input.DayID)
	slog.Info("workout_event", "event", "day_opened", "day_id", input.DayID, "exercises", len(d.Exercises), "pending", len(d.PendingChanges))
	return d, nil
}

// --- Finish Workout ---

// FinishWorkoutInput carries input for the finish workout orchestrator.
type FinishWorkoutInput struct {
	DayID      string
	CoachEmail string // optional; empty skips the summary email
}

// FinishWorkoutDeps holds dependencies for FinishWorkout.
type FinishWorkoutDeps struct {
	DraftStore DraftStoreForOrchestrator
	Sync       SyncEngine
	Email      EmailSender // optional
	Now        func() time.Time
}

// ExecuteFinishWorkout completes the active workout: final sync, coach
// summary, then draft removal and sync shutdown.
// PRE: DayID must be non-empty
// POST: On sync failure the draft and its queue are left intact and the error
// is returned, so finishing again retries. The summary email is best effort
// and never blocks completion.
func ExecuteFinishWorkout(ctx context.Context, input FinishWorkoutInput, deps FinishWorkoutDeps) error {
	if input.DayID == "" {
		return errors.New("day ID is required")
	}

	if err := deps.Sync.SyncNow(ctx); err != nil {
		slog.Warn("workout_finish_blocked", "day_id", input.DayID, "error", err.Error())
		return err
	}

	d, err := deps.DraftStore.Load(ctx, input.DayID)
	if err != nil && !errors.Is(err, draftStore.ErrNotFound) {
		return err
	}

	if err == nil && deps.Email != nil && input.CoachEmail != "" {
		subject, html := BuildWorkoutSummary(d, deps.Now())
		if err := deps.Email.SendSummary(ctx, input.CoachEmail, subject, html); err != nil {
			slog.Warn("summary_email_failed", "day_id", input.DayID, "error", err.Error())
		}
	}

	if err := deps.DraftStore.Delete(ctx, input.DayID); err != nil {
		return err
	}
	deps.Sync.Stop()

	slog.Info("workout_event", "event", "workout_finished", "day_id", input.DayID)
	return nil
}

// --- Cancel Workout ---

// CancelWorkoutInput carries input for the cancel workout orchestrator.
type CancelWorkoutInput struct {
	DayID string
}

// CancelWorkoutDeps holds dependencies for CancelWorkout.
type CancelWorkoutDeps struct {
	DraftStore DraftStoreForOrchestrator
	Sync       SyncEngine
}

// ExecuteCancelWorkout abandons the active workout: the draft and every
// queued change are discarded without transmitting anything.
// PRE: DayID must be non-empty
// POST: No record remains for the day; background sync is stopped
func ExecuteCancelWorkout(ctx context.Context, input CancelWorkoutInput, deps CancelWorkoutDeps) error {
	if input.DayID == "" {
		return errors.New("day ID is required")
	}

	if err := deps.DraftStore.Delete(ctx, input.DayID); err != nil {
		return err
	}
	deps.Sync.Stop()

	slog.Info("workout_event", "event", "workout_cancelled", "day_id", input.DayID)
	return nil
}

// --- List Unfinished Drafts ---

// UnfinishedDraft summarizes a persisted draft for the resume prompt.
type UnfinishedDraft struct {
	DayID         string
	LastModified  time.Time
	PendingCount  int
	ExerciseCount int
}

// ExecuteListUnfinishedDrafts scans persisted drafts so the caller can offer
// to resume or discard them. Records that fail to load are skipped rather
// than failing the scan.
func ExecuteListUnfinishedDrafts(ctx context.Context, store DraftStoreForOrchestrator) ([]UnfinishedDraft, error) {
	dayIDs, err := store.ListDayIDs(ctx)
	if err != nil {
		return nil, err
	}

	var drafts []UnfinishedDraft
	for _, dayID := range dayIDs {
		d, err := store.Load(ctx, dayID)
		if err != nil {
			continue
		}
		drafts = append(drafts, UnfinishedDraft{
			DayID:         d.DayID,
			LastModified:  time.UnixMilli(d.LastModified),
			PendingCount:  len(d.PendingChanges),
			ExerciseCount: len(d.Exercises),
		})
	}
	return drafts, nil
}
