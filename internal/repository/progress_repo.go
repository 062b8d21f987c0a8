package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/picthaisky/english-speaking-coach/internal/models"
)

type ProgressRepo struct {
	pool *pgxpool.Pool
}

func NewProgressRepo(pool *pgxpool.Pool) *ProgressRepo {
	return &ProgressRepo{pool: pool}
}

// Upsert inserts the metric or, when a row for the same user, date and
// period exists, overwrites its figures. m.ID and timestamps are set from
// the stored row.
func (r *ProgressRepo) Upsert(ctx context.Context, m *models.ProgressMetric) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	query := `
		INSERT INTO progress_metrics (
			id, user_id, metric_date, period, total_sessions, total_recordings, total_minutes_practiced,
			average_pronunciation_score, average_fluency_score, average_accuracy_score, overall_score,
			lessons_completed, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, metric_date, period) DO UPDATE SET
			total_sessions = EXCLUDED.total_sessions,
			total_recordings = EXCLUDED.total_recordings,
			total_minutes_practiced = EXCLUDED.total_minutes_practiced,
			average_pronunciation_score = EXCLUDED.average_pronunciation_score,
			average_fluency_score = EXCLUDED.average_fluency_score,
			average_accuracy_score = EXCLUDED.average_accuracy_score,
			overall_score = EXCLUDED.overall_score,
			lessons_completed = EXCLUDED.lessons_completed,
			notes = COALESCE(EXCLUDED.notes, progress_metrics.notes),
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	return r.pool.QueryRow(ctx, query,
		m.ID, m.UserID, m.MetricDate, m.Period, m.TotalSessions, m.TotalRecordings, m.TotalMinutes,
		m.AvgPronunciation, m.AvgFluency, m.AvgAccuracy, m.OverallScore, m.CompletedLessons, m.Notes,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

// ListByUser returns rows whose metric date (midnight UTC) is not before
// from, oldest first. A from inside a day excludes that day.
func (r *ProgressRepo) ListByUser(ctx context.Context, userID uuid.UUID, from time.Time, period models.Period) ([]models.ProgressMetric, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, metric_date, period, total_sessions, total_recordings, total_minutes_practiced,
			average_pronunciation_score, average_fluency_score, average_accuracy_score, overall_score,
			lessons_completed, notes, created_at, updated_at
		FROM progress_metrics
		WHERE user_id = $1
		  AND period = $2
		  AND metric_date >= $3::date
		ORDER BY metric_date ASC
	`, userID, period, firstMetricDay(from))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metrics := []models.ProgressMetric{}
	for rows.Next() {
		var m models.ProgressMetric
		if err := rows.Scan(
			&m.ID, &m.UserID, &m.MetricDate, &m.Period, &m.TotalSessions, &m.TotalRecordings, &m.TotalMinutes,
			&m.AvgPronunciation, &m.AvgFluency, &m.AvgAccuracy, &m.OverallScore,
			&m.CompletedLessons, &m.Notes, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// firstMetricDay is the earliest metric date at or after from.
func firstMetricDay(from time.Time) time.Time {
	d := from.UTC().Truncate(24 * time.Hour)
	if d.Before(from) {
		d = d.Add(24 * time.Hour)
	}
	return d
}
