package services

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/picthaisky/english-speaking-coach/internal/models"
)

const (
	weeklyWindow  = 7 * 24 * time.Hour
	monthlyWindow = 30 * 24 * time.Hour
	day           = 24 * time.Hour
)

// SessionHistory loads sessions together with their recordings. A zero to
// leaves the window open-ended.
type SessionHistory interface {
	ListWithRecordings(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]models.Session, error)
}

// MetricStore persists daily snapshots. ListByUser returns rows whose
// metric_date is not before from, ordered by date ascending.
type MetricStore interface {
	Upsert(ctx context.Context, m *models.ProgressMetric) error
	ListByUser(ctx context.Context, userID uuid.UUID, from time.Time, period models.Period) ([]models.ProgressMetric, error)
}

type ProgressAggregator struct {
	sessions SessionHistory
	metrics  MetricStore
	now      func() time.Time
}

func NewProgressAggregator(sessions SessionHistory, metrics MetricStore) *ProgressAggregator {
	return &ProgressAggregator{
		sessions: sessions,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Summarize aggregates every session the user started at or after
// windowStart.
//
// AverageScore is the mean, over recordings that have a pronunciation score,
// of (pronunciation + fluency + accuracy) / 3 with a missing fluency or
// accuracy counted as 0. ImprovementPercentage compares the mean
// pronunciation score of recordings created before and after the window
// midpoint; it is 0 when either half is empty or the first half averages 0.
func (a *ProgressAggregator) Summarize(ctx context.Context, userID uuid.UUID, windowStart time.Time, period models.Period) (*models.ProgressSummary, error) {
	now := a.now()
	fields := map[string]string{}
	if userID == uuid.Nil {
		fields["user_id"] = "User ID is required"
	}
	if !period.Valid() {
		fields["period"] = "Period must be one of Daily, Weekly, Monthly"
	}
	if windowStart.IsZero() || windowStart.After(now) {
		fields["window_start"] = "Window start must be in the past"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	sessions, err := a.sessions.ListWithRecordings(ctx, userID, windowStart, time.Time{})
	if err != nil {
		return nil, &PersistenceError{Op: "load sessions", Err: err}
	}

	daily, err := a.metrics.ListByUser(ctx, userID, windowStart, models.PeriodDaily)
	if err != nil {
		return nil, &PersistenceError{Op: "load daily metrics", Err: err}
	}
	if daily == nil {
		daily = []models.ProgressMetric{}
	}

	recordings := flattenRecordings(sessions)

	return &models.ProgressSummary{
		UserID:                userID,
		Period:                period,
		WindowStart:           windowStart,
		TotalSessions:         len(sessions),
		TotalRecordings:       len(recordings),
		TotalMinutes:          totalMinutes(sessions),
		AverageScore:          round2(compositeAverage(recordings)),
		ImprovementPercentage: round2(improvement(recordings, windowStart.Add(now.Sub(windowStart)/2))),
		DailyMetrics:          daily,
	}, nil
}

func (a *ProgressAggregator) WeeklySummary(ctx context.Context, userID uuid.UUID) (*models.ProgressSummary, error) {
	return a.Summarize(ctx, userID, a.now().Add(-weeklyWindow), models.PeriodWeekly)
}

func (a *ProgressAggregator) MonthlySummary(ctx context.Context, userID uuid.UUID) (*models.ProgressSummary, error) {
	return a.Summarize(ctx, userID, a.now().Add(-monthlyWindow), models.PeriodMonthly)
}

// History returns the user's daily snapshots for the last days days, newest
// first.
func (a *ProgressAggregator) History(ctx context.Context, userID uuid.UUID, days int) ([]models.ProgressMetric, error) {
	if days < 1 || days > 366 {
		return nil, &ValidationError{Fields: map[string]string{"days": "Days must be between 1 and 366"}}
	}

	metrics, err := a.metrics.ListByUser(ctx, userID, a.now().Add(-time.Duration(days)*day), models.PeriodDaily)
	if err != nil {
		return nil, &PersistenceError{Op: "load metric history", Err: err}
	}

	history := make([]models.ProgressMetric, len(metrics))
	for i, m := range metrics {
		history[len(metrics)-1-i] = m
	}
	return history, nil
}

// RecordDailySnapshot stores today's (UTC) aggregate for the user, replacing
// any snapshot already taken today. It returns nil without writing when the
// user has no sessions today.
func (a *ProgressAggregator) RecordDailySnapshot(ctx context.Context, userID uuid.UUID) (*models.ProgressMetric, error) {
	if userID == uuid.Nil {
		return nil, &ValidationError{Fields: map[string]string{"user_id": "User ID is required"}}
	}

	today := a.now().Truncate(day)
	sessions, err := a.sessions.ListWithRecordings(ctx, userID, today, today.Add(day))
	if err != nil {
		return nil, &PersistenceError{Op: "load sessions", Err: err}
	}
	if len(sessions) == 0 {
		log.Debug().Str("user_id", userID.String()).Msg("no sessions today, snapshot skipped")
		return nil, nil
	}

	recordings := flattenRecordings(sessions)
	pron := round2(meanOf(recordings, func(r *models.Recording) *float64 { return r.PronunciationScore }))
	flu := round2(meanOf(recordings, func(r *models.Recording) *float64 { return r.FluencyScore }))
	acc := round2(meanOf(recordings, func(r *models.Recording) *float64 { return r.AccuracyScore }))

	completedLessons := 0
	for _, s := range sessions {
		if s.Status == models.SessionCompleted && s.LessonID != nil {
			completedLessons++
		}
	}

	metric := &models.ProgressMetric{
		ID:               uuid.New(),
		UserID:           userID,
		MetricDate:       today,
		Period:           models.PeriodDaily,
		TotalSessions:    len(sessions),
		TotalRecordings:  len(recordings),
		TotalMinutes:     totalMinutes(sessions),
		AvgPronunciation: pron,
		AvgFluency:       flu,
		AvgAccuracy:      acc,
		OverallScore:     round2((pron + flu + acc) / 3),
		CompletedLessons: completedLessons,
	}

	if err := a.metrics.Upsert(ctx, metric); err != nil {
		return nil, &PersistenceError{Op: "upsert daily metric", Err: err}
	}

	log.Info().
		Str("user_id", userID.String()).
		Time("metric_date", today).
		Float64("overall", metric.OverallScore).
		Msg("daily snapshot recorded")
	return metric, nil
}

func flattenRecordings(sessions []models.Session) []*models.Recording {
	var recordings []*models.Recording
	for i := range sessions {
		for j := range sessions[i].Recordings {
			recordings = append(recordings, &sessions[i].Recordings[j])
		}
	}
	return recordings
}

func totalMinutes(sessions []models.Session) int {
	seconds := 0
	for i := range sessions {
		seconds += sessions[i].Duration()
	}
	return seconds / 60
}

func compositeAverage(recordings []*models.Recording) float64 {
	sum, n := 0.0, 0
	for _, r := range recordings {
		if r.PronunciationScore == nil {
			continue
		}
		sum += (*r.PronunciationScore + valueOrZero(r.FluencyScore) + valueOrZero(r.AccuracyScore)) / 3
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func improvement(recordings []*models.Recording, midpoint time.Time) float64 {
	var firstSum, secondSum float64
	var firstN, secondN int
	for _, r := range recordings {
		if r.CreatedAt.Before(midpoint) {
			firstSum += valueOrZero(r.PronunciationScore)
			firstN++
		} else {
			secondSum += valueOrZero(r.PronunciationScore)
			secondN++
		}
	}
	if firstN == 0 || secondN == 0 {
		return 0
	}
	firstAvg := firstSum / float64(firstN)
	if firstAvg == 0 {
		return 0
	}
	secondAvg := secondSum / float64(secondN)
	return (secondAvg - firstAvg) / firstAvg * 100
}

// meanOf averages the score picked by pick over the recordings that have it.
func meanOf(recordings []*models.Recording, pick func(*models.Recording) *float64) float64 {
	sum, n := 0.0, 0
	for _, r := range recordings {
		if v := pick(r); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// round2 rounds half to even at two decimals.
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
