package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/picthaisky/english-speaking-coach/internal/models"
)

const sessionColumns = `id, user_id, lesson_id, started_at, ended_at, duration_seconds, status, notes, created_at`

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) Start(ctx context.Context, s *models.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = models.SessionActive
	}

	query := `
		INSERT INTO sessions (id, user_id, lesson_id, started_at, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	return r.pool.QueryRow(ctx, query, s.ID, s.UserID, s.LessonID, s.StartedAt, s.Status, s.Notes).Scan(&s.CreatedAt)
}

func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

// ListByUser returns every session of the user, newest first.
func (r *SessionRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY started_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// End writes the ended session only if it is still Active.
func (r *SessionRepo) End(ctx context.Context, s *models.Session) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET ended_at = $2,
			duration_seconds = $3,
			status = $4,
			notes = $5
		WHERE id = $1
		  AND status = $6
	`, s.ID, s.EndedAt, s.DurationSeconds, s.Status, s.Notes, models.SessionActive)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListWithRecordings returns the user's sessions started in [from, to),
// oldest first, each with its recordings. A zero to leaves the range open.
func (r *SessionRepo) ListWithRecordings(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]models.Session, error) {
	var upper *time.Time
	if !to.IsZero() {
		upper = &to
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1
		  AND started_at >= $2
		  AND ($3::timestamptz IS NULL OR started_at < $3)
		ORDER BY started_at ASC
	`, userID, from, upper)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.Session{}
	index := map[uuid.UUID]int{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		index[s.ID] = len(sessions)
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return sessions, nil
	}

	ids := make([]uuid.UUID, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}

	recRows, err := r.pool.Query(ctx, `
		SELECT `+recordingColumns+`
		FROM recordings
		WHERE session_id = ANY($1)
		ORDER BY created_at ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer recRows.Close()

	for recRows.Next() {
		rec, err := scanRecording(recRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[rec.SessionID]; ok {
			sessions[i].Recordings = append(sessions[i].Recordings, *rec)
		}
	}
	return sessions, recRows.Err()
}

// ListActiveUserIDs returns users who started at least one session in
// [from, to).
func (r *SessionRepo) ListActiveUserIDs(ctx context.Context, from, to time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM sessions WHERE started_at >= $1 AND started_at < $2`,
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func scanSession(row pgx.Row) (*models.Session, error) {
	s := &models.Session{}
	err := row.Scan(
		&s.ID, &s.UserID, &s.LessonID, &s.StartedAt, &s.EndedAt, &s.DurationSeconds,
		&s.Status, &s.Notes, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
