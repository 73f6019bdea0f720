package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modelforge/star-engine/pkg/apperrors"
	"github.com/modelforge/star-engine/pkg/models"
	"github.com/modelforge/star-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// CreateSessionRequest for POST /api/sessions
type CreateSessionRequest struct {
	Fact       models.Table                   `json:"fact"`
	Tables     []models.Table                 `json:"tables,omitempty"`
	Candidates []models.RelationshipCandidate `json:"candidates,omitempty"`
}

// CreateSessionResponse for POST /api/sessions
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// IncludeRequest for POST /api/sessions/{sid}/candidates/include
type IncludeRequest struct {
	models.CandidateRef
	Included bool `json:"included"`
}

// ToggleActiveRequest for POST /api/sessions/{sid}/candidates/toggle-active
type ToggleActiveRequest struct {
	models.CandidateRef
}

// ChangeSetResponse reports every candidate whose state flipped.
type ChangeSetResponse struct {
	Changes models.ChangeSet `json:"changes"`
}

// ExpandSnowflakeRequest for POST /api/sessions/{sid}/snowflake
type ExpandSnowflakeRequest struct {
	Dimension models.Table             `json:"dimension"`
	Lookups   []models.LookupAttribute `json:"lookups"`
}

// ExpandSnowflakeResponse lists the parent candidates registered for the
// dimension.
type ExpandSnowflakeResponse struct {
	Candidates []models.RelationshipCandidate `json:"candidates"`
}

// SelectAttributesRequest for POST /api/sessions/{sid}/attributes
type SelectAttributesRequest struct {
	Table      string   `json:"table"`
	Attributes []string `json:"attributes"`
}

// RevalidateRequest for POST /api/sessions/{sid}/revalidate
type RevalidateRequest struct {
	Tables []models.TableMetadata `json:"tables"`
}

// ResumeSessionRequest for POST /api/sessions/resume
type ResumeSessionRequest struct {
	SessionID string `json:"session_id"`
}

// ============================================================================
// Handler
// ============================================================================

// SessionHandler handles modeling session HTTP requests.
type SessionHandler struct {
	sessions services.SessionService
	logger   *zap.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions services.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// RegisterRoutes registers the session handler's routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.Create)
	mux.HandleFunc("POST /api/sessions/resume", h.Resume)
	mux.HandleFunc("GET /api/sessions/{sid}", h.Get)
	mux.HandleFunc("DELETE /api/sessions/{sid}", h.Delete)
	mux.HandleFunc("POST /api/sessions/{sid}/candidates/include", h.SetIncluded)
	mux.HandleFunc("POST /api/sessions/{sid}/candidates/toggle-active", h.ToggleActive)
	mux.HandleFunc("GET /api/sessions/{sid}/groups/status", h.GroupStatus)
	mux.HandleFunc("POST /api/sessions/{sid}/snowflake", h.ExpandSnowflake)
	mux.HandleFunc("POST /api/sessions/{sid}/attributes", h.SelectAttributes)
	mux.HandleFunc("POST /api/sessions/{sid}/selection", h.BuildSelection)
	mux.HandleFunc("POST /api/sessions/{sid}/revalidate", h.Revalidate)
	mux.HandleFunc("POST /api/sessions/{sid}/save", h.Save)
}

// Create handles POST /api/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	id, err := h.sessions.Create(req.Fact, req.Tables, req.Candidates)
	if err != nil {
		h.logger.Error("Failed to create session",
			zap.String("fact_table", req.Fact.LogicalName),
			zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "create_session_failed", err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, CreateSessionResponse{SessionID: id.String()})
}

// Get handles GET /api/sessions/{sid}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseSessionID(w, r)
	if !ok {
		return
	}

	snap, err := h.sessions.Get(id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// Delete handles DELETE /api/sessions/{sid}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseSessionID(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Delete(id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetIncluded handles POST /api/sessions/{sid}/candidates/include
func (h *SessionHandler) SetIncluded(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseSessionID(w, r)
	if !ok {
		return
	}

	var req IncludeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	changes, err := h.sessions.SetIncluded(id, req.CandidateRef, req.Included)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ChangeSetResponse{Changes: changes})
}

// ToggleActive handles POST /api/sessions/{sid}/candidates/toggle-active
func (h *SessionHandler) ToggleActive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseSessionID(w, r)
	if !ok {
		return
	}

	var req ToggleActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	changes, err := h.sessions.ToggleActive(id, req.CandidateRef)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ChangeSetResponse{Changes: changes})
}

// GroupStatus handles GET /api/sessions/{sid}/groups/status
func (h *SessionHandler) GroupStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseSessionID(w, r)
	if !ok {
		return
	}

	source := r.URL.Query().Get("source")
	target := r.URL.Query().Get("target")
	if source == "" || target == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "source and target query parameters are required")
		return
	}

	status, err := h.sessions.GroupStatus(id, source, target)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// ExpandSnowflake handles POST /api/sessions/{sid}/snowflake
func (h *SessionHandler) ExpandSnowflake(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseSessionID(w, r)
	if !ok {
		return
	}

	var req ExpandSnowflakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	candidates, err := h.sessions.ExpandSnowflake(id, req.Dimension, req.Lookups)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ExpandSnowflakeResponse{Candidates: candidates})
}

// SelectAttributes handles POST /api/sessions/{sid}/attributes
func (h *SessionHandler) SelectAttributes(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseSessionID(w, r)
	if !ok {
		return
	}

	var req SelectAttributesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Table == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "table is required")
		return
	}

	if err := h.sessions.SelectAttributes(id, req.Table, req.Attributes); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BuildSelection handles POST /api/sessions/{sid}/selection
func (h *SessionHandler) BuildSelection(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseSessionID(w, r)
	if !ok {
		return
	}

	result, err := h.sessions.BuildSelection(id)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusUnprocessableEntity, verr)
			return
		}
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Revalidate handles POST /api/sessions/{sid}/revalidate
func (h *SessionHandler) Revalidate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseSessionID(w, r)
	if !ok {
		return
	}

	var req RevalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	report, err := h.sessions.Revalidate(id, req.Tables)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// Save handles POST /api/sessions/{sid}/save
func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseSessionID(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Save(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Resume handles POST /api/sessions/resume
func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	var req ResumeSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid session id")
		return
	}

	snap, err := h.sessions.Resume(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// ============================================================================
// Helpers
// ============================================================================

func (h *SessionHandler) parseSessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("sid"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps service errors onto HTTP status codes.
func (h *SessionHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound):
		h.writeError(w, http.StatusNotFound, "session_not_found", "no modeling session with that id")
	case errors.Is(err, apperrors.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "candidate_not_found", err.Error())
	case errors.Is(err, apperrors.ErrNotInModel):
		h.writeError(w, http.StatusConflict, "table_not_in_model", err.Error())
	default:
		h.logger.Error("Session operation failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (h *SessionHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *SessionHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
