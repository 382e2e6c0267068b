// Package http implements the REST API for the Saga Progress Hub.
package http

import (
	"github.com/saga-hub/saga-progress-hub/internal/application/command"
	"github.com/saga-hub/saga-progress-hub/internal/application/query"
	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
	"github.com/saga-hub/saga-progress-hub/pkg/logger"

	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Saga Progress Hub API",
		"version":     "v1",
		"description": "REST API for the saga progression engine",
		"endpoints": map[string]string{
			"health":     "/health",
			"saga":       "/api/v1/learners/{id}/saga",
			"active":     "/api/v1/learners/{id}/saga/active",
			"activities": "/api/v1/learners/{id}/activities",
			"xp":         "/api/v1/learners/{id}/xp",
			"stats":      "/api/v1/stats",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	// Default health response
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// SAGA HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetSaga handles GET /api/v1/learners/{id}/saga
func (s *Server) handleGetSaga(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")
	if learnerID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Learner ID is required")
		return
	}

	if s.deps.GetSagaViewHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Saga view handler not configured")
		return
	}

	q := query.GetSagaViewQuery{
		LearnerID: learnerID,
		SkipCache: getQueryParamBool(r, "refresh"),
	}

	result, err := s.deps.GetSagaViewHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "get saga view")
		return
	}

	meta := &ResponseMeta{TotalCount: result.TotalCount}
	writeJSONWithMeta(w, r, http.StatusOK, result, meta)
}

// handleGetActiveChapter handles GET /api/v1/learners/{id}/saga/active
func (s *Server) handleGetActiveChapter(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")
	if learnerID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Learner ID is required")
		return
	}

	if s.deps.GetActiveChapterHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Active chapter handler not configured")
		return
	}

	result, err := s.deps.GetActiveChapterHandler.Handle(r.Context(), query.GetActiveChapterQuery{LearnerID: learnerID})
	if err != nil {
		s.writeDomainError(w, r, err, "get active chapter")
		return
	}

	// No active chapter (saga finished or catalog empty) answers 204.
	if result.Chapter == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleInitProgress handles POST /api/v1/learners/{id}/saga/init
func (s *Server) handleInitProgress(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")
	if learnerID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Learner ID is required")
		return
	}

	if s.deps.InitializeProgressHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Initialize handler not configured")
		return
	}

	cmd := command.InitializeProgressCommand{
		LearnerID:     learnerID,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.InitializeProgressHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "initialize progress")
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// activityRequest is the JSON body of POST /api/v1/learners/{id}/activities.
type activityRequest struct {
	// Kind - "lesson" or "quiz".
	Kind string `json:"kind"`

	// XP earned by the activity.
	XP int `json:"xp"`

	// TimeMinutes spent on the activity.
	TimeMinutes int `json:"time_minutes"`

	// ChapterID optionally pins the target chapter. When empty the
	// activity lands on the current active chapter.
	ChapterID string `json:"chapter_id,omitempty"`

	// Timestamp of the activity (defaults to server time).
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// handleApplyActivity handles POST /api/v1/learners/{id}/activities
func (s *Server) handleApplyActivity(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")
	if learnerID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Learner ID is required")
		return
	}

	if s.deps.ApplyActivityHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Activity handler not configured")
		return
	}

	var body activityRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	defer r.Body.Close()

	cmd := command.ApplyActivityCommand{
		LearnerID:        learnerID,
		Kind:             command.ActivityKind(body.Kind),
		XPDelta:          body.XP,
		TimeDeltaMinutes: body.TimeMinutes,
		TargetChapterID:  body.ChapterID,
		Timestamp:        body.Timestamp,
		CorrelationID:    getRequestID(r.Context()),
	}

	// Validate up front so malformed input never reads a 400 as a 500.
	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.deps.ApplyActivityHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "apply activity")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// XP HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleGetXPTotal handles GET /api/v1/learners/{id}/xp
func (s *Server) handleGetXPTotal(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")
	if learnerID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Learner ID is required")
		return
	}

	if s.deps.GetXPTotalHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "XP handler not configured")
		return
	}

	result, err := s.deps.GetXPTotalHandler.Handle(r.Context(), query.GetXPTotalQuery{LearnerID: learnerID})
	if err != nil {
		s.writeDomainError(w, r, err, "get xp total")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleGetStats handles GET /api/v1/stats
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"server": map[string]interface{}{
			"uptime":  s.Uptime().String(),
			"running": s.IsRunning(),
		},
	}

	if s.deps.IntegrityMonitor != nil {
		snapshot := s.deps.IntegrityMonitor.Snapshot()
		stats["integrity"] = map[string]interface{}{
			"anomalies":          snapshot.Anomalies,
			"reconcile_failures": snapshot.ReconcileFailures,
			"last_signal_at":     snapshot.LastSignalAt,
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError translates application errors into HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())

	case errors.Is(err, shared.ErrCatalogUnavailable) || errors.Is(err, shared.ErrServiceUnavailable):
		w.Header().Set("Retry-After", "5")
		writeJSONError(w, http.StatusServiceUnavailable, "catalog_unavailable", "Chapter catalog is temporarily unavailable")

	case shared.IsConflict(err):
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, http.StatusConflict, "conflict", "Progress was modified concurrently, retry the request")

	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", "Requested resource not found")

	default:
		s.logger.Error("request failed",
			logger.String("op", op),
			logger.Err(err),
			logger.String("request_id", getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
