package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/picthaisky/english-speaking-coach/internal/models"
)

type transition struct {
	from, to models.ProcessingStatus
}

type fakeRecordingStore struct {
	mu          sync.Mutex
	recordings  map[uuid.UUID]models.Recording
	feedback    map[uuid.UUID][]models.Feedback
	transitions map[uuid.UUID][]transition

	createErr     error
	getErr        error
	transitionErr error
	completeErr   error
	markFailedErr error
}

func newFakeRecordingStore() *fakeRecordingStore {
	return &fakeRecordingStore{
		recordings:  map[uuid.UUID]models.Recording{},
		feedback:    map[uuid.UUID][]models.Feedback{},
		transitions: map[uuid.UUID][]transition{},
	}
}

func (f *fakeRecordingStore) put(rec models.Recording) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordings[rec.ID] = rec
}

func (f *fakeRecordingStore) get(id uuid.UUID) models.Recording {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recordings[id]
}

func (f *fakeRecordingStore) feedbackFor(id uuid.UUID) []models.Feedback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Feedback(nil), f.feedback[id]...)
}

func (f *fakeRecordingStore) Create(_ context.Context, rec *models.Recording) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.put(*rec)
	return nil
}

func (f *fakeRecordingStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]models.Recording, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Recording{}
	for _, r := range f.recordings {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeRecordingStore) GetByID(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recordings[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &rec, nil
}

func (f *fakeRecordingStore) TransitionStatus(_ context.Context, id uuid.UUID, from, to models.ProcessingStatus) (bool, error) {
	if f.transitionErr != nil {
		return false, f.transitionErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recordings[id]
	if !ok || rec.ProcessingStatus != from {
		return false, nil
	}
	rec.ProcessingStatus = to
	f.recordings[id] = rec
	f.transitions[id] = append(f.transitions[id], transition{from, to})
	return true, nil
}

func (f *fakeRecordingStore) Complete(_ context.Context, rec *models.Recording, feedback []models.Feedback) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	current := f.recordings[rec.ID]
	if current.ProcessingStatus != models.StatusProcessing {
		return errors.New("recording is not processing")
	}
	f.recordings[rec.ID] = *rec
	f.feedback[rec.ID] = append(f.feedback[rec.ID], feedback...)
	f.transitions[rec.ID] = append(f.transitions[rec.ID], transition{current.ProcessingStatus, rec.ProcessingStatus})
	return nil
}

func (f *fakeRecordingStore) MarkFailed(_ context.Context, id uuid.UUID) error {
	if f.markFailedErr != nil {
		return f.markFailedErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.recordings[id]
	if rec.ProcessingStatus != models.StatusProcessing {
		return nil
	}
	rec.ProcessingStatus = models.StatusFailed
	f.recordings[id] = rec
	f.transitions[id] = append(f.transitions[id], transition{models.StatusProcessing, models.StatusFailed})
	return nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]models.Session
	err      error
	endErr   error
}

func newFakeSessionStore(sessions ...models.Session) *fakeSessionStore {
	f := &fakeSessionStore{sessions: map[uuid.UUID]models.Session{}}
	for _, s := range sessions {
		f.sessions[s.ID] = s
	}
	return f
}

func (f *fakeSessionStore) Start(_ context.Context, s *models.Session) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = *s
	return nil
}

func (f *fakeSessionStore) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &s, nil
}

func (f *fakeSessionStore) End(_ context.Context, s *models.Session) (bool, error) {
	if f.endErr != nil {
		return false, f.endErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.sessions[s.ID]
	if !ok || current.Status != models.SessionActive {
		return false, nil
	}
	f.sessions[s.ID] = *s
	return true, nil
}

func (f *fakeSessionStore) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Session
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// ListWithRecordings honours the same window semantics as the SQL
// repository: started_at >= from and, when to is set, started_at < to.
func (f *fakeSessionStore) ListWithRecordings(_ context.Context, userID uuid.UUID, from, to time.Time) ([]models.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Session
	for _, s := range f.sessions {
		if s.UserID != userID || s.StartedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !s.StartedAt.Before(to) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

type metricKey struct {
	user   uuid.UUID
	date   time.Time
	period models.Period
}

type fakeMetricStore struct {
	mu      sync.Mutex
	rows    map[metricKey]models.ProgressMetric
	upserts int
	err     error
}

func newFakeMetricStore(rows ...models.ProgressMetric) *fakeMetricStore {
	f := &fakeMetricStore{rows: map[metricKey]models.ProgressMetric{}}
	for _, m := range rows {
		f.rows[metricKey{m.UserID, m.MetricDate, m.Period}] = m
	}
	return f
}

func (f *fakeMetricStore) Upsert(_ context.Context, m *models.ProgressMetric) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := metricKey{m.UserID, m.MetricDate, m.Period}
	if existing, ok := f.rows[key]; ok {
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt
	}
	f.rows[key] = *m
	f.upserts++
	return nil
}

func (f *fakeMetricStore) ListByUser(_ context.Context, userID uuid.UUID, from time.Time, period models.Period) ([]models.ProgressMetric, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ProgressMetric
	for k, m := range f.rows {
		if k.user == userID && k.period == period && !k.date.Before(from) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MetricDate.Before(out[j].MetricDate) })
	return out, nil
}

func (f *fakeMetricStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeDispatcher struct {
	mu          sync.Mutex
	jobs        []models.AnalysisJob
	capacityErr error
	enqueueErr  error
}

func (f *fakeDispatcher) CheckCapacity(context.Context) error { return f.capacityErr }

func (f *fakeDispatcher) Enqueue(_ context.Context, job models.AnalysisJob) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

type providerFunc func(ctx context.Context, audioRef string) (*models.AnalysisResult, error)

func (f providerFunc) Analyze(ctx context.Context, audioRef string) (*models.AnalysisResult, error) {
	return f(ctx, audioRef)
}

type countingProvider struct {
	calls  atomic.Int32
	delay  time.Duration
	result func() *models.AnalysisResult
	err    error
}

func (c *countingProvider) Analyze(ctx context.Context, _ string) (*models.AnalysisResult, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.result(), nil
}

type recordedMessage struct {
	sessionID uuid.UUID
	msg       models.WSMessage
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []recordedMessage
}

func (f *fakeNotifier) Publish(_ context.Context, sessionID uuid.UUID, msg models.WSMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, recordedMessage{sessionID, msg})
}

func (f *fakeNotifier) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.messages {
		out = append(out, m.msg.Type)
	}
	return out
}

func fixedResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		Transcript:         "T",
		PronunciationScore: 80,
		FluencyScore:       70,
		AccuracyScore:      90,
		Feedback: []models.FeedbackItem{
			{Category: "Pronunciation", Content: "Stress the second syllable", Severity: 2},
		},
	}
}

func fptr(v float64) *float64 { return &v }
