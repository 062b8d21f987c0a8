package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "Active"
	SessionCompleted SessionStatus = "Completed"
	SessionAbandoned SessionStatus = "Abandoned"
)

type Session struct {
	ID              uuid.UUID     `json:"id"`
	UserID          uuid.UUID     `json:"user_id"`
	LessonID        *uuid.UUID    `json:"lesson_id,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	DurationSeconds *int          `json:"duration_seconds,omitempty"`
	Status          SessionStatus `json:"status"`
	Notes           *string       `json:"notes,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`

	// Recordings is populated only by queries that load a session together
	// with its recordings.
	Recordings []Recording `json:"recordings,omitempty"`
}

// Duration returns the practiced time in seconds: the stored duration when
// set, otherwise end minus start for ended sessions, otherwise zero.
func (s *Session) Duration() int {
	if s.DurationSeconds != nil {
		return *s.DurationSeconds
	}
	if s.EndedAt != nil && s.EndedAt.After(s.StartedAt) {
		return int(s.EndedAt.Sub(s.StartedAt).Seconds())
	}
	return 0
}

// SessionSummary condenses one session. AveragePronunciation is nil when no
// recording in the session has a pronunciation score.
type SessionSummary struct {
	ID                   uuid.UUID     `json:"id"`
	RecordingsCount      int           `json:"recordings_count"`
	DurationSeconds      int           `json:"duration_seconds"`
	AveragePronunciation *float64      `json:"average_pronunciation_score"`
	Status               SessionStatus `json:"status"`
}

type StartSessionRequest struct {
	UserID   uuid.UUID  `json:"user_id"`
	LessonID *uuid.UUID `json:"lesson_id,omitempty"`
	Notes    *string    `json:"notes,omitempty"`
}

type EndSessionRequest struct {
	Notes *string `json:"notes,omitempty"`
}
