package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisJob is the queue payload for one recording awaiting analysis.
type AnalysisJob struct {
	RecordingID uuid.UUID `json:"recording_id"`
	SessionID   uuid.UUID `json:"session_id"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// WebSocket message types
const (
	EventStatusUpdate = "status_update"
	EventCompleted    = "completed"
	EventError        = "error"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type RecordingStatusEvent struct {
	RecordingID uuid.UUID        `json:"recording_id"`
	SessionID   uuid.UUID        `json:"session_id"`
	Status      ProcessingStatus `json:"status"`
}

type RecordingCompletedEvent struct {
	RecordingID        uuid.UUID `json:"recording_id"`
	SessionID          uuid.UUID `json:"session_id"`
	PronunciationScore float64   `json:"pronunciation_score"`
	FluencyScore       float64   `json:"fluency_score"`
	AccuracyScore      float64   `json:"accuracy_score"`
	FeedbackCount      int       `json:"feedback_count"`
}

type ErrorEvent struct {
	RecordingID  uuid.UUID `json:"recording_id"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
