package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/wariline/wariline/internal/jobs"
	"github.com/wariline/wariline/internal/shared"
)

const (
	// TaskArchiveRestore schedules the sweep returning hold-expired archived
	// accounts to the operational store.
	TaskArchiveRestore = "accounts:restore_archived"
)

// Restorer is the migrator-side contract for the restore sweep.
type Restorer interface {
	RestoreDue(ctx context.Context, now time.Time) (restored, failed int, err error)
}

// ArchiveRestoreJob sweeps the archive store for accounts whose hold period
// ended and moves them back. Only relevant when blocks park accounts in the
// archive; under the default policy the sweep finds nothing and exits.
type ArchiveRestoreJob struct {
	Restorer Restorer
	Lock     *shared.RunLock
	Lease    time.Duration
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewArchiveRestoreJob constructs the job handler.
func NewArchiveRestoreJob(restorer Restorer, lock *shared.RunLock, lease time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *ArchiveRestoreJob {
	if lease <= 0 {
		lease = 10 * time.Minute
	}
	return &ArchiveRestoreJob{
		Restorer: restorer,
		Lock:     lock,
		Lease:    lease,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewArchiveRestoreTask creates the Asynq task for the restore cron.
func NewArchiveRestoreTask() *asynq.Task {
	return asynq.NewTask(TaskArchiveRestore, nil, asynq.Queue(QueueDefault))
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ArchiveRestoreJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}

// Handle executes one restore sweep under the run lock.
func (j *ArchiveRestoreJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Restorer == nil {
		return errors.New("archive restore: dependencies not configured")
	}

	if j.Lock != nil {
		held, err := j.Lock.Acquire(ctx, TaskArchiveRestore, j.Lease)
		if err != nil {
			return err
		}
		if held == nil {
			j.log().Info("restore sweep already running elsewhere, skipping")
			return nil
		}
		defer func() {
			if err := held.Release(context.WithoutCancel(ctx)); err != nil {
				j.log().Warn("release run lock", slog.Any("error", err))
			}
		}()
	}

	tracker := j.metrics().Track(TaskArchiveRestore)
	restored, failed, err := j.Restorer.RestoreDue(ctx, j.clock())
	if err != nil {
		j.log().Error("restore sweep", slog.Any("error", err))
		return tracker.End(err)
	}
	j.log().Info("restore sweep finished",
		slog.Int("restored", restored),
		slog.Int("failed", failed))
	return tracker.End(nil)
}

func (j *ArchiveRestoreJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *ArchiveRestoreJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskArchiveRestore))
	}
	return slog.Default().With(slog.String("job", TaskArchiveRestore))
}
