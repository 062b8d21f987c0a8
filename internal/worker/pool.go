package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/picthaisky/english-speaking-coach/internal/metrics"
	"github.com/picthaisky/english-speaking-coach/internal/models"
	"github.com/picthaisky/english-speaking-coach/internal/services"
)

type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*models.AnalysisJob, error)
}

type Processor interface {
	Process(ctx context.Context, recordingID uuid.UUID) error
}

type Options struct {
	WorkerCount int
	// PollTimeout is how long one BLPOP waits before the worker checks for
	// shutdown again.
	PollTimeout time.Duration
	// JobTimeout bounds one recording end to end; zero means no bound.
	JobTimeout time.Duration
	// ErrorBackoff is the pause after a failed dequeue.
	ErrorBackoff time.Duration
}

func DefaultOptions() Options {
	return Options{
		WorkerCount:  5,
		PollTimeout:  5 * time.Second,
		JobTimeout:   10 * time.Minute,
		ErrorBackoff: 2 * time.Second,
	}
}

// Pool runs a fixed number of goroutines that take analysis jobs off the
// queue and drive each recording to a terminal state.
type Pool struct {
	queue     JobSource
	processor Processor
	opts      Options

	stopChan   chan struct{}
	stopOnce   sync.Once
	cancelPoll context.CancelFunc
	group      errgroup.Group
}

func NewPool(queue JobSource, processor Processor, opts Options) *Pool {
	defaults := DefaultOptions()
	if opts.WorkerCount < 1 {
		opts.WorkerCount = defaults.WorkerCount
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaults.PollTimeout
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = defaults.ErrorBackoff
	}
	return &Pool{
		queue:     queue,
		processor: processor,
		opts:      opts,
		stopChan:  make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancelPoll = cancel

	for i := 0; i < p.opts.WorkerCount; i++ {
		id := i
		p.group.Go(func() error {
			p.worker(pollCtx, id)
			return nil
		})
	}

	log.Info().Int("workers", p.opts.WorkerCount).Msg("started analysis workers")
}

// Stop stops taking new jobs and waits for in-flight recordings to finish.
// It returns ctx.Err() if ctx ends first.
func (p *Pool) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		if p.cancelPoll != nil {
			p.cancelPoll()
		}
	})

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()

	select {
	case err := <-done:
		log.Info().Msg("analysis workers stopped")
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	logger := log.With().Int("worker", id).Logger()

	for {
		select {
		case <-p.stopChan:
			logger.Debug().Msg("worker shutting down")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn().Err(err).Msg("failed to dequeue job")
			select {
			case <-p.stopChan:
				return
			case <-time.After(p.opts.ErrorBackoff):
			}
			continue
		}
		if job == nil {
			continue
		}

		p.handle(ctx, job)
	}
}

// handle processes one job on a context detached from the poll context, so
// shutdown lets the recording reach a terminal state.
func (p *Pool) handle(ctx context.Context, job *models.AnalysisJob) {
	jobCtx := context.WithoutCancel(ctx)
	if p.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, p.opts.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := p.processor.Process(jobCtx, job.RecordingID)
	metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	metrics.RecordingsProcessed.WithLabelValues(outcome(err)).Inc()

	if err != nil {
		log.Error().Err(err).
			Str("recording_id", job.RecordingID.String()).
			Dur("queued_for", start.Sub(job.EnqueuedAt)).
			Msg("analysis job failed")
	}
}

func outcome(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	var notFound *services.NotFoundError
	if errors.As(err, &notFound) {
		return metrics.OutcomeNotFound
	}
	return metrics.OutcomeFailed
}
