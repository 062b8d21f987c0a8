package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/picthaisky/english-speaking-coach/internal/models"
)

// FeedbackRepo is read-only; feedback rows are written by RecordingRepo.Complete.
type FeedbackRepo struct {
	pool *pgxpool.Pool
}

func NewFeedbackRepo(pool *pgxpool.Pool) *FeedbackRepo {
	return &FeedbackRepo{pool: pool}
}

func (r *FeedbackRepo) ListByRecording(ctx context.Context, recordingID uuid.UUID) ([]models.Feedback, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, recording_id, feedback_type, content, detailed_analysis, severity, word_position, suggestion, created_at
		FROM feedbacks
		WHERE recording_id = $1
		ORDER BY severity DESC NULLS LAST, created_at ASC
	`, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	feedback := []models.Feedback{}
	for rows.Next() {
		var f models.Feedback
		if err := rows.Scan(
			&f.ID, &f.RecordingID, &f.FeedbackType, &f.Content, &f.DetailedAnalysis,
			&f.Severity, &f.WordPosition, &f.Suggestion, &f.CreatedAt,
		); err != nil {
			return nil, err
		}
		feedback = append(feedback, f)
	}
	return feedback, rows.Err()
}
