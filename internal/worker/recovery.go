package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/picthaisky/english-speaking-coach/internal/metrics"
	"github.com/picthaisky/english-speaking-coach/internal/models"
	"github.com/picthaisky/english-speaking-coach/internal/services"
)

type RecoveryStore interface {
	FailStale(ctx context.Context, cutoff time.Time) (int64, error)
	ListPending(ctx context.Context, cutoff time.Time, limit int) ([]models.AnalysisJob, error)
}

const requeueBatchSize = 500

// Recovery repairs recordings a crash or a lost queue entry left behind:
// Processing rows older than staleAfter become Failed and Pending rows are
// pushed back onto the queue.
type Recovery struct {
	store      RecoveryStore
	dispatcher services.Dispatcher
	staleAfter time.Duration
	now        func() time.Time
}

type RecoveryReport struct {
	FailedStale int64
	Requeued    int
}

func NewRecovery(store RecoveryStore, dispatcher services.Dispatcher, staleAfter time.Duration) *Recovery {
	return &Recovery{
		store:      store,
		dispatcher: dispatcher,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run fails stale Processing recordings and requeues recordings that have
// been Pending for longer than pendingAge. A full queue ends the requeue
// early without error; the next run continues.
func (r *Recovery) Run(ctx context.Context, pendingAge time.Duration) (RecoveryReport, error) {
	var report RecoveryReport
	now := r.now()

	failed, err := r.store.FailStale(ctx, now.Add(-r.staleAfter))
	if err != nil {
		return report, fmt.Errorf("failed to fail stale recordings: %w", err)
	}
	report.FailedStale = failed

	jobs, err := r.store.ListPending(ctx, now.Add(-pendingAge), requeueBatchSize)
	if err != nil {
		return report, fmt.Errorf("failed to list pending recordings: %w", err)
	}

	for _, job := range jobs {
		if err := r.dispatcher.Enqueue(ctx, job); err != nil {
			var full *services.QueueFullError
			if errors.As(err, &full) {
				log.Warn().Int64("depth", full.Depth).Msg("queue full, deferring requeue")
				break
			}
			return report, fmt.Errorf("failed to requeue recording %s: %w", job.RecordingID, err)
		}
		report.Requeued++
	}
	metrics.RecordingsRequeued.Add(float64(report.Requeued))

	if report.FailedStale > 0 || report.Requeued > 0 {
		log.Info().Int64("failed_stale", report.FailedStale).Int("requeued", report.Requeued).Msg("recovered recordings")
	}
	return report, nil
}
