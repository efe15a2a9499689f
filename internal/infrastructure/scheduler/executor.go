package scheduler

import (
	"context"
	"time"

	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// JobRunner is the application entry point the executor drives
type JobRunner interface {
	Run(ctx context.Context, jobType processing.JobType, asOf time.Time, trigger string) (*appsub.BatchResult, error)
}

// BatchJobExecutor runs queued jobs through the job run service.
//
// Per-record failures inside a run are already queued for the next run,
// so only a run-level error makes the scheduler retry the job.
type BatchJobExecutor struct {
	runner JobRunner
	logger *zap.Logger
}

// NewBatchJobExecutor creates a new executor
func NewBatchJobExecutor(runner JobRunner, logger *zap.Logger) *BatchJobExecutor {
	return &BatchJobExecutor{runner: runner, logger: logger}
}

// Execute runs the job
func (e *BatchJobExecutor) Execute(ctx context.Context, job *Job) error {
	ctx, span := telemetry.StartSpan(ctx, "job."+job.JobType.String(),
		telemetry.AttrJobType, job.JobType.String(),
		telemetry.AttrJobTrigger, job.Trigger,
		telemetry.AttrAsOf, shared.FormatDate(job.AsOf),
		"job.retry", job.RetryCount,
	)
	defer span.End()

	var (
		result *appsub.BatchResult
		err    error
	)
	telemetry.WithJobLabels(ctx, job.JobType.String(), job.Trigger, func(ctx context.Context) {
		result, err = e.runner.Run(ctx, job.JobType, job.AsOf, job.Trigger)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if result != nil {
		telemetry.SetAttributes(span,
			"job.total", result.Total,
			"job.processed", result.Processed,
			"job.failed", result.Failed,
		)
		e.logger.Info("Batch run finished",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", job.JobType.String()),
			zap.Int("total", result.Total),
			zap.Int("processed", result.Processed),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
		)
	}
	return nil
}

var _ JobExecutor = (*BatchJobExecutor)(nil)
