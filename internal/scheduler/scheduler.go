// Package scheduler runs the periodic jobs of the service: the end-of-day
// progress snapshot for every user who practised that day, and the sweep
// that requeues Pending recordings and fails stuck ones.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/picthaisky/english-speaking-coach/internal/metrics"
	"github.com/picthaisky/english-speaking-coach/internal/models"
	"github.com/picthaisky/english-speaking-coach/internal/worker"
)

type ActiveUsers interface {
	ListActiveUserIDs(ctx context.Context, from, to time.Time) ([]uuid.UUID, error)
}

type Snapshotter interface {
	RecordDailySnapshot(ctx context.Context, userID uuid.UUID) (*models.ProgressMetric, error)
}

type Sweeper interface {
	Run(ctx context.Context, pendingAge time.Duration) (worker.RecoveryReport, error)
}

type Options struct {
	SnapshotSpec string
	SweepSpec    string
	// PendingAge is how long a recording may sit in Pending before the
	// sweep pushes it onto the queue again.
	PendingAge time.Duration
}

type Scheduler struct {
	cron      *cron.Cron
	users     ActiveUsers
	snapshots Snapshotter
	sweeper   Sweeper
	opts      Options
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func New(users ActiveUsers, snapshots Snapshotter, sweeper Sweeper, opts Options) *Scheduler {
	logger := cron.PrintfLogger(&log.Logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		users:     users,
		snapshots: snapshots,
		sweeper:   sweeper,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start registers the jobs and starts the cron loop. An empty cron expression leaves
// that job unscheduled.
func (s *Scheduler) Start() error {
	if s.opts.SnapshotSpec != "" {
		if _, err := s.cron.AddFunc(s.opts.SnapshotSpec, func() { s.RunDailySnapshots(s.ctx) }); err != nil {
			return fmt.Errorf("invalid snapshot schedule %q: %w", s.opts.SnapshotSpec, err)
		}
	}
	if s.opts.SweepSpec != "" && s.sweeper != nil {
		if _, err := s.cron.AddFunc(s.opts.SweepSpec, func() { s.sweep(s.ctx) }); err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", s.opts.SweepSpec, err)
		}
	}

	s.cron.Start()
	log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
	return nil
}

// Stop cancels running jobs and waits for them to return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Warn().Msg("scheduler stop timed out")
	}
}

// RunDailySnapshots records today's snapshot for every user with a session
// today and returns how many rows were written. A failure for one user does
// not stop the others.
func (s *Scheduler) RunDailySnapshots(ctx context.Context) int {
	dayStart := s.now().Truncate(24 * time.Hour)
	userIDs, err := s.users.ListActiveUserIDs(ctx, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		log.Error().Err(err).Msg("daily snapshot: failed to list active users")
		return 0
	}

	written := 0
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		metric, err := s.snapshots.RecordDailySnapshot(ctx, userID)
		switch {
		case err != nil:
			metrics.SnapshotsRecorded.WithLabelValues("failed").Inc()
			log.Error().Err(err).Str("user_id", userID.String()).Msg("daily snapshot: failed to record")
		case metric == nil:
			metrics.SnapshotsRecorded.WithLabelValues("empty").Inc()
		default:
			metrics.SnapshotsRecorded.WithLabelValues("written").Inc()
			written++
		}
	}

	log.Info().Int("users", len(userIDs)).Int("written", written).Msg("daily snapshots recorded")
	return written
}

func (s *Scheduler) sweep(ctx context.Context) {
	if _, err := s.sweeper.Run(ctx, s.opts.PendingAge); err != nil {
		log.Error().Err(err).Msg("recovery sweep failed")
	}
}
