// Package web exposes the local JSON API used by UI shells and scripts to
// drive the active workout session.
package web

import (
	"net/http"
	"time"

	"repsync/internal/adapters/http/middleware"
	draftStore "repsync/internal/adapters/storage/draft"
	"repsync/internal/application/workout"
)

// Global session facade (set by NewMux)
var session *workout.Session

// Global draft store instance (set by NewMux)
var store draftStore.Store

// RateLimitPerSecond controls the per-IP rate limit. Tests can increase this.
var RateLimitPerSecond = 10

// NewMux wires HTTP handlers for the daemon API. authToken may be empty for
// localhost-only deployments.
func NewMux(s *workout.Session, drafts draftStore.Store, authToken string) http.Handler {
	session = s
	store = drafts

	mux := http.NewServeMux()
	registerRoutes(mux)

	limiter := middleware.NewRateLimiter(RateLimitPerSecond, time.Second)

	// Apply middleware: Timing -> RateLimit -> Auth -> SecurityHeaders -> Mux
	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.BearerAuth(authToken),
		middleware.RateLimit(limiter),
		middleware.Timing(),
	)
}

func registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/days/{dayID}/open", handleOpenDay)
	mux.HandleFunc("GET /api/draft", handleGetDraft)
	mux.HandleFunc("GET /api/drafts", handleListDrafts)

	mux.HandleFunc("PATCH /api/exercises/{exerciseID}/sets/{setNumber}", handleUpdateSet)
	mux.HandleFunc("POST /api/exercises/{exerciseID}/sets/{setNumber}/toggle", handleToggleSet)
	mux.HandleFunc("DELETE /api/exercises/{exerciseID}/sets/{setNumber}", handleRemoveSet)

	mux.HandleFunc("POST /api/sync", handleSyncNow)
	mux.HandleFunc("GET /api/sync/status", handleSyncStatus)

	mux.HandleFunc("POST /api/finish", handleFinish)
	mux.HandleFunc("POST /api/cancel", handleCancel)
}
