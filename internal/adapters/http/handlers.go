package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	draftStore "repsync/internal/adapters/storage/draft"
	"repsync/internal/application/orchestrators"
	"repsync/internal/application/syncer"
	"repsync/internal/application/workout"
	domain "repsync/internal/domain/draft"
)

// internalError logs the real error and returns a generic message to the client.
// This prevents leaking internal details per OWASP A05.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// setTarget extracts the exercise ID and set number path parameters.
func setTarget(w http.ResponseWriter, r *http.Request) (exerciseID string, setNumber int, ok bool) {
	exerciseID = r.PathValue("exerciseID")
	setNumber, err := strconv.Atoi(r.PathValue("setNumber"))
	if err != nil || setNumber < 1 {
		http.Error(w, "set number must be a positive integer", http.StatusBadRequest)
		return "", 0, false
	}
	return exerciseID, setNumber, true
}

// handleOpenDay handles POST /api/days/{dayID}/open — makes a day the active workout.
func handleOpenDay(w http.ResponseWriter, r *http.Request) {
	dayID := r.PathValue("dayID")

	d, err := session.Open(r.Context(), dayID)
	if errors.Is(err, draftStore.ErrNotFound) {
		http.Error(w, "no plan or saved draft for day", http.StatusNotFound)
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(d)
}

// handleGetDraft handles GET /api/draft — returns the active draft snapshot.
func handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := session.Snapshot()
	if errors.Is(err, workout.ErrNoActiveWorkout) {
		http.Error(w, "no active workout", http.StatusNotFound)
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(d)
}

// handleListDrafts handles GET /api/drafts — lists persisted unfinished drafts.
func handleListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := orchestrators.ExecuteListUnfinishedDrafts(r.Context(), store)
	if err != nil {
		internalError(w, err)
		return
	}
	if drafts == nil {
		drafts = []orchestrators.UnfinishedDraft{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(drafts)
}

// handleUpdateSet handles PATCH /api/exercises/{exerciseID}/sets/{setNumber}.
// The body is a partial set record; only the supplied fields change.
func handleUpdateSet(w http.ResponseWriter, r *http.Request) {
	exerciseID, setNumber, ok := setTarget(w, r)
	if !ok {
		return
	}

	var patch domain.SetPatch
	if err := strictDecode(r, &patch); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := session.UpdateSet(r.Context(), exerciseID, setNumber, patch); err != nil {
		if errors.Is(err, workout.ErrNoActiveWorkout) {
			http.Error(w, "no active workout", http.StatusConflict)
			return
		}
		internalError(w, err)
		return
	}

	entry, _ := session.SetData(exerciseID, setNumber)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// handleToggleSet handles POST /api/exercises/{exerciseID}/sets/{setNumber}/toggle.
func handleToggleSet(w http.ResponseWriter, r *http.Request) {
	exerciseID, setNumber, ok := setTarget(w, r)
	if !ok {
		return
	}

	completed, err := session.ToggleCompletion(r.Context(), exerciseID, setNumber)
	if err != nil {
		if errors.Is(err, workout.ErrNoActiveWorkout) {
			http.Error(w, "no active workout", http.StatusConflict)
			return
		}
		internalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"completed": completed})
}

// handleRemoveSet handles DELETE /api/exercises/{exerciseID}/sets/{setNumber}.
func handleRemoveSet(w http.ResponseWriter, r *http.Request) {
	exerciseID, setNumber, ok := setTarget(w, r)
	if !ok {
		return
	}

	if err := session.RemoveSet(r.Context(), exerciseID, setNumber); err != nil {
		if errors.Is(err, workout.ErrNoActiveWorkout) {
			http.Error(w, "no active workout", http.StatusConflict)
			return
		}
		internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSyncNow handles POST /api/sync — forces an immediate drain.
func handleSyncNow(w http.ResponseWriter, r *http.Request) {
	err := session.SyncNow(r.Context())
	status := http.StatusOK
	if errors.Is(err, syncer.ErrTransmitFailed) {
		status = http.StatusBadGateway
	} else if err != nil {
		internalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"status": string(session.SyncStatus())})
}

// handleSyncStatus handles GET /api/sync/status.
func handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": session.SyncStatus(),
		"day_id": session.DayID(),
		"active": session.DayID() != "",
	})
}

// handleFinish handles POST /api/finish — final sync, coach summary, draft removal.
// A failed final sync returns 409 and leaves the workout open for retry.
func handleFinish(w http.ResponseWriter, r *http.Request) {
	err := session.Finish(r.Context())
	if errors.Is(err, workout.ErrNoActiveWorkout) {
		http.Error(w, "no active workout", http.StatusConflict)
		return
	}
	if errors.Is(err, syncer.ErrTransmitFailed) {
		http.Error(w, "final sync failed, workout left open", http.StatusConflict)
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCancel handles POST /api/cancel — discards the draft and queued changes.
func handleCancel(w http.ResponseWriter, r *http.Request) {
	err := session.Cancel(r.Context())
	if errors.Is(err, workout.ErrNoActiveWorkout) {
		http.Error(w, "no active workout", http.StatusConflict)
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
