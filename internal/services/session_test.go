package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picthaisky/english-speaking-coach/internal/models"
)

func newSessionService(store *fakeSessionStore, now time.Time) *SessionService {
	svc := NewSessionService(store, newFakeRecordingStore())
	svc.now = func() time.Time { return now }
	return svc
}

func TestSessionService_StartAndEnd(t *testing.T) {
	store := newFakeSessionStore()
	user := uuid.New()

	started, err := newSessionService(store, testNow).Start(context.Background(), models.StartSessionRequest{UserID: user})
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, started.Status)
	assert.True(t, started.StartedAt.Equal(testNow))

	notes := "felt confident"
	ended, err := newSessionService(store, testNow.Add(95*time.Second)).End(context.Background(), started.ID, models.EndSessionRequest{Notes: &notes})
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompleted, ended.Status)
	require.NotNil(t, ended.DurationSeconds)
	assert.Equal(t, 95, *ended.DurationSeconds)
	assert.Equal(t, 95, ended.Duration())
	assert.Equal(t, "felt confident", *ended.Notes)
}

func TestSessionService_EndTwiceConflicts(t *testing.T) {
	store := newFakeSessionStore()
	svc := newSessionService(store, testNow)
	started, err := svc.Start(context.Background(), models.StartSessionRequest{UserID: uuid.New()})
	require.NoError(t, err)

	_, err = svc.End(context.Background(), started.ID, models.EndSessionRequest{})
	require.NoError(t, err)

	_, err = svc.End(context.Background(), started.ID, models.EndSessionRequest{})
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestSessionService_Errors(t *testing.T) {
	svc := newSessionService(newFakeSessionStore(), testNow)

	_, err := svc.Start(context.Background(), models.StartSessionRequest{})
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)

	_, err = svc.End(context.Background(), uuid.New(), models.EndSessionRequest{})
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)

	broken := newFakeSessionStore()
	broken.err = errors.New("pool closed")
	_, err = newSessionService(broken, testNow).Get(context.Background(), uuid.New())
	var persistErr *PersistenceError
	assert.ErrorAs(t, err, &persistErr)
}

func TestSessionService_ListByUserNewestFirst(t *testing.T) {
	user := uuid.New()
	older := models.Session{ID: uuid.New(), UserID: user, StartedAt: testNow.Add(-48 * time.Hour), Status: models.SessionCompleted}
	newer := models.Session{ID: uuid.New(), UserID: user, StartedAt: testNow.Add(-time.Hour), Status: models.SessionActive}
	other := models.Session{ID: uuid.New(), UserID: uuid.New(), StartedAt: testNow, Status: models.SessionActive}
	svc := newSessionService(newFakeSessionStore(older, newer, other), testNow)

	list, err := svc.ListByUser(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	empty, err := svc.ListByUser(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = svc.ListByUser(context.Background(), uuid.Nil)
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestSessionService_Summary(t *testing.T) {
	duration := 300
	s := models.Session{ID: uuid.New(), UserID: uuid.New(), StartedAt: testNow, DurationSeconds: &duration, Status: models.SessionCompleted}
	recordings := newFakeRecordingStore()
	recordings.put(models.Recording{ID: uuid.New(), SessionID: s.ID, CreatedAt: testNow, PronunciationScore: fptr(80)})
	recordings.put(models.Recording{ID: uuid.New(), SessionID: s.ID, CreatedAt: testNow.Add(time.Minute), PronunciationScore: fptr(91)})
	recordings.put(models.Recording{ID: uuid.New(), SessionID: s.ID, CreatedAt: testNow.Add(2 * time.Minute)})
	recordings.put(models.Recording{ID: uuid.New(), SessionID: uuid.New(), CreatedAt: testNow, PronunciationScore: fptr(10)})

	svc := NewSessionService(newFakeSessionStore(s), recordings)
	summary, err := svc.Summary(context.Background(), s.ID)
	require.NoError(t, err)

	assert.Equal(t, s.ID, summary.ID)
	assert.Equal(t, 3, summary.RecordingsCount)
	assert.Equal(t, 300, summary.DurationSeconds)
	assert.Equal(t, models.SessionCompleted, summary.Status)
	require.NotNil(t, summary.AveragePronunciation)
	assert.Equal(t, 85.5, *summary.AveragePronunciation)
}

func TestSessionService_SummaryWithoutScores(t *testing.T) {
	s := models.Session{ID: uuid.New(), UserID: uuid.New(), StartedAt: testNow, Status: models.SessionActive}
	recordings := newFakeRecordingStore()
	recordings.put(models.Recording{ID: uuid.New(), SessionID: s.ID, CreatedAt: testNow, ProcessingStatus: models.StatusPending})

	svc := NewSessionService(newFakeSessionStore(s), recordings)
	summary, err := svc.Summary(context.Background(), s.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.RecordingsCount)
	assert.Equal(t, 0, summary.DurationSeconds)
	assert.Nil(t, summary.AveragePronunciation)

	_, err = svc.Summary(context.Background(), uuid.New())
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
