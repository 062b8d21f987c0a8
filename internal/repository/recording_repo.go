package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/picthaisky/english-speaking-coach/internal/models"
)

// ErrNotProcessing is returned by Complete when the recording left the
// Processing state before the result could be written.
var ErrNotProcessing = errors.New("recording is not processing")

const recordingColumns = `id, session_id, audio_url, original_file_name, duration_seconds, file_size_bytes,
	transcript, pronunciation_score, fluency_score, accuracy_score, processing_status, created_at, processed_at`

type RecordingRepo struct {
	pool *pgxpool.Pool
}

func NewRecordingRepo(pool *pgxpool.Pool) *RecordingRepo {
	return &RecordingRepo{pool: pool}
}

func (r *RecordingRepo) Create(ctx context.Context, rec *models.Recording) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.ProcessingStatus == "" {
		rec.ProcessingStatus = models.StatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO recordings (id, session_id, audio_url, original_file_name, duration_seconds, file_size_bytes,
			processing_status, created_at, status_changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.SessionID, rec.AudioRef, rec.OriginalFileName, rec.DurationSeconds, rec.FileSizeBytes,
		rec.ProcessingStatus, rec.CreatedAt,
	)
	return err
}

func (r *RecordingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	query := `SELECT ` + recordingColumns + ` FROM recordings WHERE id = $1`
	return scanRecording(r.pool.QueryRow(ctx, query, id))
}

func (r *RecordingRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Recording, error) {
	query := `SELECT ` + recordingColumns + ` FROM recordings WHERE session_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recordings := []models.Recording{}
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recordings = append(recordings, *rec)
	}
	return recordings, rows.Err()
}

// TransitionStatus moves the recording from one status to another only if it
// is still in from. The returned bool reports whether this call won.
func (r *RecordingRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.ProcessingStatus) (bool, error) {
	if !models.CanTransition(from, to) {
		return false, fmt.Errorf("illegal status transition %s -> %s", from, to)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE recordings SET processing_status = $3, status_changed_at = NOW()
		WHERE id = $1 AND processing_status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Complete writes the analysis result and its feedback rows in one
// transaction.
func (r *RecordingRepo) Complete(ctx context.Context, rec *models.Recording, feedback []models.Feedback) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE recordings
		SET transcript = $2,
			pronunciation_score = $3,
			fluency_score = $4,
			accuracy_score = $5,
			processing_status = $6,
			processed_at = $7,
			status_changed_at = NOW()
		WHERE id = $1
		  AND processing_status = $8
	`, rec.ID, rec.Transcript, rec.PronunciationScore, rec.FluencyScore, rec.AccuracyScore,
		models.StatusCompleted, rec.ProcessedAt, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to update recording: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrNotProcessing
	}

	if len(feedback) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"feedbacks"},
			[]string{"id", "recording_id", "feedback_type", "content", "detailed_analysis", "severity", "word_position", "suggestion", "created_at"},
			pgx.CopyFromSlice(len(feedback), func(i int) ([]any, error) {
				f := feedback[i]
				return []any{f.ID, f.RecordingID, f.FeedbackType, f.Content, f.DetailedAnalysis, f.Severity, f.WordPosition, f.Suggestion, f.CreatedAt}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to insert feedback: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit recording result: %w", err)
	}
	return nil
}

// MarkFailed moves a Processing recording to Failed. Recordings in any other
// state are left alone.
func (r *RecordingRepo) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE recordings SET processing_status = $2, status_changed_at = NOW()
		WHERE id = $1 AND processing_status = $3`,
		id, models.StatusFailed, models.StatusProcessing,
	)
	return err
}

// ListPending returns jobs for recordings that have been Pending since
// before cutoff, oldest first.
func (r *RecordingRepo) ListPending(ctx context.Context, cutoff time.Time, limit int) ([]models.AnalysisJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id FROM recordings
		WHERE processing_status = $1 AND status_changed_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`, models.StatusPending, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now().UTC()
	var jobs []models.AnalysisJob
	for rows.Next() {
		job := models.AnalysisJob{EnqueuedAt: now}
		if err := rows.Scan(&job.RecordingID, &job.SessionID); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// FailStale moves recordings stuck in Processing since before cutoff to
// Failed and returns how many were moved.
func (r *RecordingRepo) FailStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE recordings SET processing_status = $1, status_changed_at = NOW()
		WHERE processing_status = $2 AND status_changed_at < $3`,
		models.StatusFailed, models.StatusProcessing, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRecording(row pgx.Row) (*models.Recording, error) {
	rec := &models.Recording{}
	err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.AudioRef, &rec.OriginalFileName, &rec.DurationSeconds, &rec.FileSizeBytes,
		&rec.Transcript, &rec.PronunciationScore, &rec.FluencyScore, &rec.AccuracyScore,
		&rec.ProcessingStatus, &rec.CreatedAt, &rec.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
