package api

import (
	"context"

	domain "repsync/internal/domain/draft"
)

// SetPayload is the complete per-set state transmitted to the coaching API.
// Partial local patches are never sent; the sync engine re-reads the full
// current value before each transmission.
type SetPayload struct {
	Weight    float64 `json:"weight"`
	Reps      int     `json:"reps"`
	RPE       float64 `json:"rpe,omitempty"`
	Notes     string  `json:"notes,omitempty"`
	Completed bool    `json:"completed"`
}

// PayloadFromEntry builds the wire payload for one recorded set.
func PayloadFromEntry(e domain.SetEntry) SetPayload {
	return SetPayload{
		Weight:    e.Weight,
		Reps:      e.Reps,
		RPE:       e.RPE,
		Notes:     e.Notes,
		Completed: e.Completed,
	}
}

// Transmitter is the interface for sending one set's recorded state to the
// remote coaching API. Any error is treated uniformly as "this change did not
// make it"; status codes are not interpreted beyond success or failure.
type Transmitter interface {
	TransmitSet(ctx context.Context, exerciseID string, setNumber int, payload SetPayload) error
}

// PlanFetcher is the interface for retrieving the authoritative day plan: the
// exercises scheduled for a training day plus any server-known per-set
// results. This snapshot is the sole input to draft initialization and merge.
type PlanFetcher interface {
	FetchDayPlan(ctx context.Context, dayID string) ([]domain.Exercise, error)
}
