package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/picthaisky/english-speaking-coach/internal/models"
)

type sessionService interface {
	Start(ctx context.Context, req models.StartSessionRequest) (*models.Session, error)
	End(ctx context.Context, id uuid.UUID, req models.EndSessionRequest) (*models.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
	Summary(ctx context.Context, id uuid.UUID) (*models.SessionSummary, error)
}

type sessionRecordings interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Recording, error)
}

type SessionHandler struct {
	sessions   sessionService
	recordings sessionRecordings
}

func NewSessionHandler(sessions sessionService, recordings sessionRecordings) *SessionHandler {
	return &SessionHandler{sessions: sessions, recordings: recordings}
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req models.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	session, err := h.sessions.Start(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session": session,
	})
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "session ID")
	if !ok {
		return
	}

	var req models.EndSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
			return
		}
	}

	session, err := h.sessions.End(r.Context(), id, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": session,
	})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "session ID")
	if !ok {
		return
	}

	session, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": session,
	})
}

// ListByUser returns the user's sessions, newest first.
func (h *SessionHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userId", "user ID")
	if !ok {
		return
	}

	sessions, err := h.sessions.ListByUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (h *SessionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "session ID")
	if !ok {
		return
	}

	summary, err := h.sessions.Summary(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// ListRecordings returns the session's recordings in submission order.
func (h *SessionHandler) ListRecordings(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "session ID")
	if !ok {
		return
	}

	if _, err := h.sessions.Get(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}

	recordings, err := h.recordings.ListBySession(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if recordings == nil {
		recordings = []models.Recording{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recordings": recordings,
		"total":      len(recordings),
	})
}
