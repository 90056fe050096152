package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/wariline/wariline/internal/jobs"
	"github.com/wariline/wariline/internal/reconcile"
	"github.com/wariline/wariline/internal/shared"
)

const (
	// TaskBlockReconcile schedules one reconciliation pass over scheduled
	// and expired account blocks.
	TaskBlockReconcile = "accounts:reconcile_blocks"
)

// BlockReconcilePayload configures one reconciliation run.
type BlockReconcilePayload struct {
	// LeaseSeconds bounds the run lock lease; defaults to the schedule
	// interval when zero.
	LeaseSeconds int `json:"lease_seconds"`
}

// Reconciler runs one reconciliation pass.
type Reconciler interface {
	Run(ctx context.Context) (reconcile.Report, error)
}

// BlockReconcileJob wraps the reconciliation runner with the job runtime:
// a leased run lock so two worker instances never double-process the same
// candidate set, plus metrics and logging.
type BlockReconcileJob struct {
	Runner  Reconciler
	Lock    *shared.RunLock
	Lease   time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewBlockReconcileJob constructs the job handler.
func NewBlockReconcileJob(runner Reconciler, lock *shared.RunLock, lease time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *BlockReconcileJob {
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	return &BlockReconcileJob{Runner: runner, Lock: lock, Lease: lease, Logger: logger, Metrics: metrics}
}

// NewBlockReconcileTask creates the Asynq task for the reconciliation cron.
func NewBlockReconcileTask(lease time.Duration) (*asynq.Task, error) {
	payload := BlockReconcilePayload{LeaseSeconds: int(lease / time.Second)}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBlockReconcile, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes one reconciliation pass under the run lock. A held lock
// means another instance is mid-run; that is not an error and must not
// trigger an asynq retry, the next cron tick covers it.
func (j *BlockReconcileJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("block reconcile: dependencies not configured")
	}
	var payload BlockReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	lease := j.Lease
	if payload.LeaseSeconds > 0 {
		lease = time.Duration(payload.LeaseSeconds) * time.Second
	}

	if j.Lock != nil {
		held, err := j.Lock.Acquire(ctx, TaskBlockReconcile, lease)
		if err != nil {
			return err
		}
		if held == nil {
			j.log().Info("reconciliation already running elsewhere, skipping")
			return nil
		}
		defer func() {
			if err := held.Release(context.WithoutCancel(ctx)); err != nil {
				j.log().Warn("release run lock", slog.Any("error", err))
			}
		}()
	}

	tracker := j.metrics().Track(TaskBlockReconcile)
	start := time.Now()
	report, err := j.Runner.Run(ctx)
	if err != nil {
		j.log().Error("reconciliation run", slog.Any("error", err))
		return tracker.End(err)
	}
	j.log().Info("reconciliation finished",
		slog.Int("activated", report.Activated),
		slog.Int("expired", report.Expired),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *BlockReconcileJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *BlockReconcileJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBlockReconcile))
	}
	return slog.Default().With(slog.String("job", TaskBlockReconcile))
}
