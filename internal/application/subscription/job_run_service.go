package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// JobRunner runs one batch job for a business date
type JobRunner func(ctx context.Context, asOf time.Time) (*BatchResult, error)

// ReportArchiver stores the full result of a run and returns its key
type ReportArchiver interface {
	Archive(ctx context.Context, run *processing.JobRun, result *BatchResult) (string, error)
}

// JobMetrics records run outcomes
type JobMetrics interface {
	RecordJobRun(ctx context.Context, jobType processing.JobType, result *BatchResult, duration time.Duration, err error)
}

// Trigger values recorded on job runs
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
)

// JobRunService runs the batch jobs and keeps their history
type JobRunService struct {
	runRepo  processing.JobRunRepository
	runners  map[processing.JobType]JobRunner
	archiver ReportArchiver
	metrics  JobMetrics
	clock    shared.Clock
	logger   *zap.Logger
}

// NewJobRunService creates a JobRunService for the three engines
func NewJobRunService(
	runRepo processing.JobRunRepository,
	lifecycle *LifecycleService,
	renewals *RenewalService,
	recognition *RecognitionService,
	clock shared.Clock,
	logger *zap.Logger,
) *JobRunService {
	return &JobRunService{
		runRepo: runRepo,
		runners: map[processing.JobType]JobRunner{
			processing.JobLifecycle:   lifecycle.RunLifecycleTransitions,
			processing.JobRenewal:     renewals.RunRenewalGeneration,
			processing.JobRecognition: recognition.RunRecognitionProcessing,
		},
		clock:  clock,
		logger: logger,
	}
}

// SetArchiver sets the report archiver (optional)
func (s *JobRunService) SetArchiver(archiver ReportArchiver) {
	s.archiver = archiver
}

// SetMetrics sets the run metrics recorder (optional)
func (s *JobRunService) SetMetrics(metrics JobMetrics) {
	s.metrics = metrics
}

// SetRunner replaces the runner of a job type
func (s *JobRunService) SetRunner(jobType processing.JobType, runner JobRunner) {
	s.runners[jobType] = runner
}

// Run executes one job and records the run
func (s *JobRunService) Run(ctx context.Context, jobType processing.JobType, asOf time.Time, trigger string) (*BatchResult, error) {
	runner, ok := s.runners[jobType]
	if !ok {
		return nil, shared.NewValidationError("INVALID_JOB_TYPE", fmt.Sprintf("Unknown job type %q", jobType))
	}
	asOf = shared.TruncateDay(asOf)
	run := processing.NewJobRun(jobType, asOf, trigger, s.clock.Now())
	if err := s.runRepo.Create(ctx, run); err != nil {
		s.logger.Warn("Failed to record job run start", zap.String("job_type", jobType.String()), zap.Error(err))
	}

	result, runErr := runner(ctx, asOf)
	now := s.clock.Now()
	if runErr != nil {
		run.Fail(runErr, now)
		if result != nil {
			run.Total, run.Processed, run.Skipped, run.Failed = result.Total, result.Processed, result.Skipped, result.Failed
		}
		s.logger.Error("Job run failed",
			zap.String("job_type", jobType.String()),
			zap.String("as_of", shared.FormatDate(asOf)),
			zap.Error(runErr),
		)
	} else {
		run.Complete(result.Total, result.Processed, result.Skipped, result.Failed, now)
	}

	if s.archiver != nil && result != nil {
		key, err := s.archiver.Archive(ctx, run, result)
		if err != nil {
			s.logger.Warn("Failed to archive job report", zap.String("run_id", run.ID.String()), zap.Error(err))
		} else {
			run.ReportKey = key
		}
	}
	if err := s.runRepo.Update(ctx, run); err != nil {
		s.logger.Warn("Failed to record job run outcome", zap.String("run_id", run.ID.String()), zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.RecordJobRun(ctx, jobType, result, run.Duration(), runErr)
	}
	return result, runErr
}

// RunAll runs lifecycle, renewal and recognition in order. A failing job
// does not stop the following ones.
func (s *JobRunService) RunAll(ctx context.Context, asOf time.Time, trigger string) (map[processing.JobType]*BatchResult, error) {
	results := make(map[processing.JobType]*BatchResult, len(processing.AllJobTypes))
	var firstErr error
	for _, jobType := range processing.AllJobTypes {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		result, err := s.Run(ctx, jobType, asOf, trigger)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", jobType, err)
		}
		results[jobType] = result
	}
	return results, firstErr
}

// ListRuns lists recorded runs, newest first
func (s *JobRunService) ListRuns(ctx context.Context, filter JobRunListFilter) ([]JobRunResponse, error) {
	f := toFilter(filter.Page, filter.PageSize, "started_at", "desc")
	if filter.JobType != "" {
		f.Filters["job_type"] = filter.JobType
	}
	if filter.Status != "" {
		f.Filters["status"] = filter.Status
	}
	runs, err := s.runRepo.FindAll(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]JobRunResponse, len(runs))
	for i := range runs {
		out[i] = ToJobRunResponse(&runs[i])
	}
	return out, nil
}
