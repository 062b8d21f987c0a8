package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/picthaisky/english-speaking-coach/internal/models"
)

// AnalysisProvider turns an audio reference into a transcript, three scores
// and feedback items.
type AnalysisProvider interface {
	Analyze(ctx context.Context, audioRef string) (*models.AnalysisResult, error)
}

// RecordingStore is the persistence surface the processor drives.
// TransitionStatus is a compare-and-set: it reports false when the row is no
// longer in the from state. Complete writes the scored recording and its
// feedback rows atomically.
type RecordingStore interface {
	Create(ctx context.Context, rec *models.Recording) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.ProcessingStatus) (bool, error)
	Complete(ctx context.Context, rec *models.Recording, feedback []models.Feedback) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

type SessionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// Dispatcher schedules recordings for asynchronous processing.
type Dispatcher interface {
	CheckCapacity(ctx context.Context) error
	Enqueue(ctx context.Context, job models.AnalysisJob) error
}

// Notifier pushes live status messages to clients watching a session.
type Notifier interface {
	Publish(ctx context.Context, sessionID uuid.UUID, msg models.WSMessage)
}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, uuid.UUID, models.WSMessage) {}

const failureWriteTimeout = 10 * time.Second

type RecordingProcessor struct {
	recordings RecordingStore
	sessions   SessionReader
	provider   AnalysisProvider
	dispatcher Dispatcher
	notifier   Notifier
	now        func() time.Time
}

func NewRecordingProcessor(
	recordings RecordingStore,
	sessions SessionReader,
	provider AnalysisProvider,
	dispatcher Dispatcher,
	notifier Notifier,
) *RecordingProcessor {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &RecordingProcessor{
		recordings: recordings,
		sessions:   sessions,
		provider:   provider,
		dispatcher: dispatcher,
		notifier:   notifier,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Submit persists a new Pending recording and schedules it for analysis.
// It does not wait for the analysis.
func (p *RecordingProcessor) Submit(ctx context.Context, req models.SubmitRecordingRequest) (*models.Recording, error) {
	if fields := validateSubmit(req); len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	session, err := p.sessions.GetByID(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, &PersistenceError{Op: "load session", Err: err}
	}

	if p.dispatcher != nil {
		if err := p.dispatcher.CheckCapacity(ctx); err != nil {
			return nil, err
		}
	}

	rec := &models.Recording{
		ID:               uuid.New(),
		SessionID:        session.ID,
		AudioRef:         strings.TrimSpace(req.AudioRef),
		OriginalFileName: strings.TrimSpace(req.OriginalFileName),
		DurationSeconds:  req.DurationSeconds,
		FileSizeBytes:    req.FileSizeBytes,
		ProcessingStatus: models.StatusPending,
		CreatedAt:        p.now(),
	}
	if err := p.recordings.Create(ctx, rec); err != nil {
		return nil, &PersistenceError{Op: "create recording", Err: err}
	}

	if p.dispatcher != nil {
		job := models.AnalysisJob{RecordingID: rec.ID, SessionID: rec.SessionID, EnqueuedAt: p.now()}
		if err := p.dispatcher.Enqueue(ctx, job); err != nil {
			// The row is durable in Pending; the requeue sweep picks it up.
			log.Warn().Err(err).Str("recording_id", rec.ID.String()).Msg("failed to enqueue recording, left pending")
		}
	}

	log.Info().Str("recording_id", rec.ID.String()).Str("session_id", rec.SessionID.String()).Msg("recording submitted")
	return rec, nil
}

func validateSubmit(req models.SubmitRecordingRequest) map[string]string {
	fields := map[string]string{}
	if strings.TrimSpace(req.AudioRef) == "" {
		fields["audio_url"] = "Audio reference is required"
	}
	if req.SessionID == uuid.Nil {
		fields["session_id"] = "Session ID is required"
	}
	if req.DurationSeconds != nil && *req.DurationSeconds < 0 {
		fields["duration_seconds"] = "Duration must not be negative"
	}
	if req.FileSizeBytes != nil && *req.FileSizeBytes < 0 {
		fields["file_size_bytes"] = "File size must not be negative"
	}
	return fields
}

// Process drives one recording from Pending to a terminal state.
//
// A recording that is not Pending, or that another caller moved out of
// Pending first, is left untouched and nil is returned. Once the recording
// is Processing, every failure leaves it Failed and is returned to the
// caller.
func (p *RecordingProcessor) Process(ctx context.Context, recordingID uuid.UUID) error {
	rec, err := p.recordings.GetByID(ctx, recordingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Message: fmt.Sprintf("Recording %s not found", recordingID)}
		}
		return &PersistenceError{Op: "load recording", Err: err}
	}

	logger := log.With().Str("recording_id", rec.ID.String()).Logger()

	if rec.ProcessingStatus != models.StatusPending {
		logger.Debug().Str("status", string(rec.ProcessingStatus)).Msg("recording not pending, skipping")
		return nil
	}

	claimed, err := p.recordings.TransitionStatus(ctx, rec.ID, models.StatusPending, models.StatusProcessing)
	if err != nil {
		return &PersistenceError{Op: "mark processing", Err: err}
	}
	if !claimed {
		logger.Debug().Msg("recording claimed by another worker, skipping")
		return nil
	}
	rec.ProcessingStatus = models.StatusProcessing
	p.publishStatus(ctx, rec)

	result, err := p.provider.Analyze(ctx, rec.AudioRef)
	if err == nil {
		err = normalizeResult(result)
	}
	if err != nil {
		return p.fail(ctx, rec, &AnalysisError{RecordingID: rec.ID.String(), Err: err})
	}

	processedAt := p.now()
	completed := *rec
	completed.Transcript = &result.Transcript
	completed.PronunciationScore = &result.PronunciationScore
	completed.FluencyScore = &result.FluencyScore
	completed.AccuracyScore = &result.AccuracyScore
	completed.ProcessingStatus = models.StatusCompleted
	completed.ProcessedAt = &processedAt

	feedback := buildFeedback(rec.ID, result.Feedback, processedAt)
	if err := p.recordings.Complete(ctx, &completed, feedback); err != nil {
		return p.fail(ctx, rec, &PersistenceError{Op: "complete recording", Err: err})
	}
	*rec = completed

	p.notifier.Publish(ctx, rec.SessionID, models.WSMessage{
		Type: models.EventCompleted,
		Payload: models.RecordingCompletedEvent{
			RecordingID:        rec.ID,
			SessionID:          rec.SessionID,
			PronunciationScore: result.PronunciationScore,
			FluencyScore:       result.FluencyScore,
			AccuracyScore:      result.AccuracyScore,
			FeedbackCount:      len(feedback),
		},
	})

	logger.Info().
		Float64("pronunciation", result.PronunciationScore).
		Float64("fluency", result.FluencyScore).
		Float64("accuracy", result.AccuracyScore).
		Int("feedback", len(feedback)).
		Msg("recording completed")
	return nil
}

// fail moves a Processing recording to Failed and returns cause. The write
// runs on a detached context so a cancelled caller cannot strand the row.
func (p *RecordingProcessor) fail(ctx context.Context, rec *models.Recording, cause error) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	if err := p.recordings.MarkFailed(writeCtx, rec.ID); err != nil {
		log.Error().Err(err).Str("recording_id", rec.ID.String()).Msg("failed to mark recording failed")
	} else {
		rec.ProcessingStatus = models.StatusFailed
	}

	p.notifier.Publish(writeCtx, rec.SessionID, models.WSMessage{
		Type: models.EventError,
		Payload: models.ErrorEvent{
			RecordingID:  rec.ID,
			ErrorCode:    errorCode(cause),
			ErrorMessage: cause.Error(),
		},
	})

	log.Error().Err(cause).Str("recording_id", rec.ID.String()).Msg("recording processing failed")
	return cause
}

func (p *RecordingProcessor) publishStatus(ctx context.Context, rec *models.Recording) {
	p.notifier.Publish(ctx, rec.SessionID, models.WSMessage{
		Type: models.EventStatusUpdate,
		Payload: models.RecordingStatusEvent{
			RecordingID: rec.ID,
			SessionID:   rec.SessionID,
			Status:      rec.ProcessingStatus,
		},
	})
}

func buildFeedback(recordingID uuid.UUID, items []models.FeedbackItem, createdAt time.Time) []models.Feedback {
	feedback := make([]models.Feedback, 0, len(items))
	for _, item := range items {
		var severity *int
		if item.Severity > 0 {
			v := item.Severity
			severity = &v
		}
		feedback = append(feedback, models.Feedback{
			ID:               uuid.New(),
			RecordingID:      recordingID,
			FeedbackType:     item.Category,
			Content:          item.Content,
			DetailedAnalysis: item.DetailedAnalysis,
			Severity:         severity,
			WordPosition:     item.WordPosition,
			Suggestion:       item.Suggestion,
			CreatedAt:        createdAt,
		})
	}
	return feedback
}

func errorCode(err error) string {
	var persistErr *PersistenceError
	if errors.As(err, &persistErr) {
		return "PERSISTENCE_FAILED"
	}
	return "ANALYSIS_FAILED"
}
