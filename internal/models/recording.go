package models

import (
	"time"

	"github.com/google/uuid"
)

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "Pending"
	StatusProcessing ProcessingStatus = "Processing"
	StatusCompleted  ProcessingStatus = "Completed"
	StatusFailed     ProcessingStatus = "Failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition encodes the only legal edges of the recording lifecycle:
// Pending -> Processing -> Completed | Failed.
func CanTransition(from, to ProcessingStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

type Recording struct {
	ID                 uuid.UUID        `json:"id"`
	SessionID          uuid.UUID        `json:"session_id"`
	AudioRef           string           `json:"audio_url"`
	OriginalFileName   string           `json:"original_file_name"`
	DurationSeconds    *int             `json:"duration_seconds,omitempty"`
	FileSizeBytes      *int64           `json:"file_size_bytes,omitempty"`
	Transcript         *string          `json:"transcript,omitempty"`
	PronunciationScore *float64         `json:"pronunciation_score,omitempty"`
	FluencyScore       *float64         `json:"fluency_score,omitempty"`
	AccuracyScore      *float64         `json:"accuracy_score,omitempty"`
	ProcessingStatus   ProcessingStatus `json:"processing_status"`
	CreatedAt          time.Time        `json:"created_at"`
	ProcessedAt        *time.Time       `json:"processed_at,omitempty"`
}

// HasScores reports whether the recording carries a full analysis result.
func (r *Recording) HasScores() bool {
	return r.Transcript != nil && r.PronunciationScore != nil && r.FluencyScore != nil && r.AccuracyScore != nil
}

type Feedback struct {
	ID               uuid.UUID `json:"id"`
	RecordingID      uuid.UUID `json:"recording_id"`
	FeedbackType     string    `json:"feedback_type"`
	Content          string    `json:"content"`
	DetailedAnalysis *string   `json:"detailed_analysis,omitempty"`
	Severity         *int      `json:"severity,omitempty"`
	WordPosition     *int      `json:"word_position,omitempty"`
	Suggestion       *string   `json:"suggestion,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

const DefaultFeedbackType = "General"

// AnalysisResult is what an analysis provider returns for one audio reference.
type AnalysisResult struct {
	Transcript         string         `json:"transcript"`
	PronunciationScore float64        `json:"pronunciation_score"`
	FluencyScore       float64        `json:"fluency_score"`
	AccuracyScore      float64        `json:"accuracy_score"`
	Feedback           []FeedbackItem `json:"feedback"`
}

type FeedbackItem struct {
	Category         string  `json:"category"`
	Content          string  `json:"content"`
	DetailedAnalysis *string `json:"detailed_analysis,omitempty"`
	Severity         int     `json:"severity,omitempty"`
	WordPosition     *int    `json:"word_position,omitempty"`
	Suggestion       *string `json:"suggestion,omitempty"`
}

type SubmitRecordingRequest struct {
	AudioRef         string    `json:"audio_url"`
	SessionID        uuid.UUID `json:"session_id"`
	OriginalFileName string    `json:"original_file_name"`
	DurationSeconds  *int      `json:"duration_seconds,omitempty"`
	FileSizeBytes    *int64    `json:"file_size_bytes,omitempty"`
}

// RecordingAnalysis is the read model served once a recording has been scored.
type RecordingAnalysis struct {
	RecordingID        uuid.UUID        `json:"recording_id"`
	ProcessingStatus   ProcessingStatus `json:"processing_status"`
	Transcript         *string          `json:"transcript,omitempty"`
	PronunciationScore *float64         `json:"pronunciation_score,omitempty"`
	FluencyScore       *float64         `json:"fluency_score,omitempty"`
	AccuracyScore      *float64         `json:"accuracy_score,omitempty"`
	ProcessedAt        *time.Time       `json:"processed_at,omitempty"`
	Feedback           []Feedback       `json:"feedback"`
}
