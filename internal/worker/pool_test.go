package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picthaisky/english-speaking-coach/internal/metrics"
	"github.com/picthaisky/english-speaking-coach/internal/models"
	"github.com/picthaisky/english-speaking-coach/internal/services"
)

type chanSource struct {
	jobs chan models.AnalysisJob
}

func newChanSource(size int) *chanSource {
	return &chanSource{jobs: make(chan models.AnalysisJob, size)}
}

func (s *chanSource) Dequeue(ctx context.Context, timeout time.Duration) (*models.AnalysisJob, error) {
	select {
	case job := <-s.jobs:
		return &job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}

type recordingProcessor struct {
	mu      sync.Mutex
	seen    []uuid.UUID
	ctxErrs []error
	block   chan struct{}
	started chan struct{}
}

func (p *recordingProcessor) Process(ctx context.Context, id uuid.UUID) error {
	if p.started != nil {
		p.started <- struct{}{}
	}
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, id)
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	return nil
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func testOptions(workers int) Options {
	return Options{WorkerCount: workers, PollTimeout: 10 * time.Millisecond, ErrorBackoff: 10 * time.Millisecond}
}

func TestPool_ProcessesAllJobs(t *testing.T) {
	source := newChanSource(20)
	proc := &recordingProcessor{}
	want := map[uuid.UUID]bool{}
	for i := 0; i < 10; i++ {
		id := uuid.New()
		want[id] = true
		source.jobs <- models.AnalysisJob{RecordingID: id}
	}

	pool := NewPool(source, proc, testOptions(3))
	pool.Start(context.Background())

	require.Eventually(t, func() bool { return proc.count() == 10 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, pool.Stop(context.Background()))

	for _, id := range proc.seen {
		assert.True(t, want[id])
	}
}

func TestPool_StopWaitsForInFlight(t *testing.T) {
	source := newChanSource(1)
	proc := &recordingProcessor{block: make(chan struct{}), started: make(chan struct{}, 1)}
	source.jobs <- models.AnalysisJob{RecordingID: uuid.New()}

	pool := NewPool(source, proc, testOptions(1))
	pool.Start(context.Background())
	<-proc.started

	stopped := make(chan error, 1)
	go func() { stopped <- pool.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a recording was still processing")
	case <-time.After(50 * time.Millisecond):
	}

	close(proc.block)
	require.NoError(t, <-stopped)
	require.Equal(t, 1, proc.count())
	assert.NoError(t, proc.ctxErrs[0], "in-flight job must not see the shutdown cancellation")
}

func TestPool_StopDeadline(t *testing.T) {
	source := newChanSource(1)
	proc := &recordingProcessor{block: make(chan struct{}), started: make(chan struct{}, 1)}
	source.jobs <- models.AnalysisJob{RecordingID: uuid.New()}

	pool := NewPool(source, proc, testOptions(1))
	pool.Start(context.Background())
	<-proc.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(proc.block)
	require.NoError(t, pool.Stop(context.Background()))
}

type flakySource struct {
	mu    sync.Mutex
	calls int
	job   models.AnalysisJob
}

func (s *flakySource) Dequeue(ctx context.Context, timeout time.Duration) (*models.AnalysisJob, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	switch {
	case call == 1:
		return nil, errors.New("connection reset")
	case call == 2:
		return &s.job, nil
	default:
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(timeout):
			return nil, nil
		}
	}
}

func TestPool_SurvivesDequeueError(t *testing.T) {
	source := &flakySource{job: models.AnalysisJob{RecordingID: uuid.New()}}
	proc := &recordingProcessor{}

	pool := NewPool(source, proc, testOptions(1))
	pool.Start(context.Background())

	require.Eventually(t, func() bool { return proc.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, pool.Stop(context.Background()))
	assert.Equal(t, source.job.RecordingID, proc.seen[0])
}

func TestNewPool_Defaults(t *testing.T) {
	pool := NewPool(newChanSource(0), &recordingProcessor{}, Options{})
	assert.Equal(t, DefaultOptions().WorkerCount, pool.opts.WorkerCount)
	assert.Equal(t, DefaultOptions().PollTimeout, pool.opts.PollTimeout)
	assert.Zero(t, pool.opts.JobTimeout)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, metrics.OutcomeOK, outcome(nil))
	assert.Equal(t, metrics.OutcomeNotFound, outcome(&services.NotFoundError{Message: "gone"}))
	assert.Equal(t, metrics.OutcomeFailed, outcome(&services.AnalysisError{RecordingID: "x", Err: errors.New("boom")}))
}
