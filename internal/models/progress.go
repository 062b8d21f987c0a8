package models

import (
	"time"

	"github.com/google/uuid"
)

type Period string

const (
	PeriodDaily   Period = "Daily"
	PeriodWeekly  Period = "Weekly"
	PeriodMonthly Period = "Monthly"
)

func (p Period) Valid() bool {
	return p == PeriodDaily || p == PeriodWeekly || p == PeriodMonthly
}

// ProgressMetric is a persisted per-user, per-day aggregate.
// OverallScore is the mean of the three per-type averages.
type ProgressMetric struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	MetricDate       time.Time `json:"metric_date"`
	Period           Period    `json:"period"`
	TotalSessions    int       `json:"total_sessions"`
	TotalRecordings  int       `json:"total_recordings"`
	TotalMinutes     int       `json:"total_minutes_practiced"`
	AvgPronunciation float64   `json:"average_pronunciation_score"`
	AvgFluency       float64   `json:"average_fluency_score"`
	AvgAccuracy      float64   `json:"average_accuracy_score"`
	OverallScore     float64   `json:"overall_score"`
	CompletedLessons int       `json:"lessons_completed"`
	Notes            *string   `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ProgressSummary is computed on demand over a window.
// AverageScore is the per-recording composite mean, which is a different
// quantity from ProgressMetric.OverallScore.
type ProgressSummary struct {
	UserID                uuid.UUID        `json:"user_id"`
	Period                Period           `json:"period"`
	WindowStart           time.Time        `json:"window_start"`
	TotalSessions         int              `json:"total_sessions"`
	TotalRecordings       int              `json:"total_recordings"`
	TotalMinutes          int              `json:"total_minutes_practiced"`
	AverageScore          float64          `json:"average_score"`
	ImprovementPercentage float64          `json:"improvement_percentage"`
	DailyMetrics          []ProgressMetric `json:"daily_metrics"`
}
