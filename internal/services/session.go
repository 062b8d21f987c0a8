package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/picthaisky/english-speaking-coach/internal/models"
)

type SessionStore interface {
	Start(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	// End persists the ended session. It reports false when the session
	// was no longer Active.
	End(ctx context.Context, s *models.Session) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
}

type SessionRecordingLister interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Recording, error)
}

type SessionService struct {
	sessions   SessionStore
	recordings SessionRecordingLister
	now        func() time.Time
}

func NewSessionService(sessions SessionStore, recordings SessionRecordingLister) *SessionService {
	return &SessionService{
		sessions:   sessions,
		recordings: recordings,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *SessionService) Start(ctx context.Context, req models.StartSessionRequest) (*models.Session, error) {
	if req.UserID == uuid.Nil {
		return nil, &ValidationError{Fields: map[string]string{"user_id": "User ID is required"}}
	}

	session := &models.Session{
		ID:        uuid.New(),
		UserID:    req.UserID,
		LessonID:  req.LessonID,
		StartedAt: s.now(),
		Status:    models.SessionActive,
		Notes:     req.Notes,
	}
	if err := s.sessions.Start(ctx, session); err != nil {
		return nil, &PersistenceError{Op: "start session", Err: err}
	}

	log.Info().Str("session_id", session.ID.String()).Str("user_id", session.UserID.String()).Msg("session started")
	return session, nil
}

// End closes an active session. Its duration is end minus start.
func (s *SessionService) End(ctx context.Context, id uuid.UUID, req models.EndSessionRequest) (*models.Session, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, &ConflictError{Message: "Session has already ended"}
	}

	endedAt := s.now()
	duration := 0
	if endedAt.After(session.StartedAt) {
		duration = int(endedAt.Sub(session.StartedAt).Seconds())
	}
	session.EndedAt = &endedAt
	session.DurationSeconds = &duration
	session.Status = models.SessionCompleted
	if req.Notes != nil {
		session.Notes = req.Notes
	}

	ended, err := s.sessions.End(ctx, session)
	if err != nil {
		return nil, &PersistenceError{Op: "end session", Err: err}
	}
	if !ended {
		return nil, &ConflictError{Message: "Session has already ended"}
	}
	return session, nil
}

func (s *SessionService) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, &PersistenceError{Op: "load session", Err: err}
	}
	return session, nil
}

// ListByUser returns the user's sessions, newest first.
func (s *SessionService) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	if userID == uuid.Nil {
		return nil, &ValidationError{Fields: map[string]string{"user_id": "User ID is required"}}
	}
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "list sessions", Err: err}
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	return sessions, nil
}

// Summary counts the session's recordings and averages the pronunciation
// scores that exist.
func (s *SessionService) Summary(ctx context.Context, id uuid.UUID) (*models.SessionSummary, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	recordings, err := s.recordings.ListBySession(ctx, id)
	if err != nil {
		return nil, &PersistenceError{Op: "load session recordings", Err: err}
	}

	summary := &models.SessionSummary{
		ID:              session.ID,
		RecordingsCount: len(recordings),
		DurationSeconds: session.Duration(),
		Status:          session.Status,
	}

	sum, scored := 0.0, 0
	for _, r := range recordings {
		if r.PronunciationScore != nil {
			sum += *r.PronunciationScore
			scored++
		}
	}
	if scored > 0 {
		avg := round2(sum / float64(scored))
		summary.AveragePronunciation = &avg
	}
	return summary, nil
}
