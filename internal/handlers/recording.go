package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/picthaisky/english-speaking-coach/internal/metrics"
	"github.com/picthaisky/english-speaking-coach/internal/models"
	"github.com/picthaisky/english-speaking-coach/internal/services"
)

type recordingSubmitter interface {
	Submit(ctx context.Context, req models.SubmitRecordingRequest) (*models.Recording, error)
}

type recordingReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
}

type feedbackReader interface {
	ListByRecording(ctx context.Context, recordingID uuid.UUID) ([]models.Feedback, error)
}

type RecordingHandler struct {
	processor  recordingSubmitter
	recordings recordingReader
	feedback   feedbackReader
}

func NewRecordingHandler(processor recordingSubmitter, recordings recordingReader, feedback feedbackReader) *RecordingHandler {
	return &RecordingHandler{processor: processor, recordings: recordings, feedback: feedback}
}

// Submit accepts a recording for analysis and answers 202 before the
// analysis runs.
func (h *RecordingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRecordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	rec, err := h.processor.Submit(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	metrics.RecordingsSubmitted.Inc()
	writeJSON(w, http.StatusAccepted, rec)
}

func (h *RecordingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "recording ID")
	if !ok {
		return
	}

	rec, err := h.load(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// Analysis returns transcript, scores and feedback. Until the recording is
// Completed only its status is reported.
func (h *RecordingHandler) Analysis(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "recording ID")
	if !ok {
		return
	}

	rec, err := h.load(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	analysis := models.RecordingAnalysis{
		RecordingID:      rec.ID,
		ProcessingStatus: rec.ProcessingStatus,
		Feedback:         []models.Feedback{},
	}
	if rec.ProcessingStatus == models.StatusCompleted {
		feedback, err := h.feedback.ListByRecording(r.Context(), rec.ID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if feedback != nil {
			analysis.Feedback = feedback
		}
		analysis.Transcript = rec.Transcript
		analysis.PronunciationScore = rec.PronunciationScore
		analysis.FluencyScore = rec.FluencyScore
		analysis.AccuracyScore = rec.AccuracyScore
		analysis.ProcessedAt = rec.ProcessedAt
	}

	writeJSON(w, http.StatusOK, analysis)
}

func (h *RecordingHandler) load(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	rec, err := h.recordings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &services.NotFoundError{Message: "Recording not found"}
		}
		return nil, err
	}
	return rec, nil
}
