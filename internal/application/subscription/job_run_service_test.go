package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockArchiver struct {
	mock.Mock
}

func (m *mockArchiver) Archive(ctx context.Context, run *processing.JobRun, result *BatchResult) (string, error) {
	args := m.Called(ctx, run, result)
	return args.String(0), args.Error(1)
}

type recordedRun struct {
	jobType processing.JobType
	result  *BatchResult
	err     error
}

type recordingMetrics struct {
	runs []recordedRun
}

func (m *recordingMetrics) RecordJobRun(_ context.Context, jobType processing.JobType, result *BatchResult, _ time.Duration, err error) {
	m.runs = append(m.runs, recordedRun{jobType: jobType, result: result, err: err})
}

func stubRunner(jobType processing.JobType, processed int, err error, calls *[]processing.JobType) JobRunner {
	return func(_ context.Context, asOf time.Time) (*BatchResult, error) {
		*calls = append(*calls, jobType)
		return &BatchResult{JobType: jobType, AsOf: asOf, Total: processed, Processed: processed}, err
	}
}

func TestJobRunService_RunRecordsSuccess(t *testing.T) {
	env := newEngineEnv(t)
	env.ledger.On("PostJournalEntry", mock.Anything, mock.Anything).Return(nil)
	env.activate(t, env.basic, "C-100", shared.Date(2024, 1, 1))

	archiver := new(mockArchiver)
	archiver.On("Archive", mock.Anything, mock.Anything, mock.Anything).Return("reports/recognition/2024-03-01.json", nil)
	metrics := &recordingMetrics{}
	env.jobSvc.SetArchiver(archiver)
	env.jobSvc.SetMetrics(metrics)

	env.clock.Set(shared.Date(2024, 3, 1))
	result, err := env.jobSvc.Run(env.ctx, processing.JobRecognition, shared.Date(2024, 3, 1).Add(15*time.Hour), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)

	runs, err := env.jobSvc.ListRuns(env.ctx, JobRunListFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "SUCCESS", runs[0].Status)
	assert.Equal(t, "recognition", runs[0].JobType)
	assert.Equal(t, "2024-03-01", runs[0].AsOf)
	assert.Equal(t, TriggerManual, runs[0].Trigger)
	assert.Equal(t, 2, runs[0].Processed)
	assert.Equal(t, "reports/recognition/2024-03-01.json", runs[0].ReportKey)

	require.Len(t, metrics.runs, 1)
	assert.Equal(t, processing.JobRecognition, metrics.runs[0].jobType)
	assert.NoError(t, metrics.runs[0].err)
	archiver.AssertExpectations(t)
}

func TestJobRunService_RunRecordsFailure(t *testing.T) {
	env := newEngineEnv(t)
	archiver := new(mockArchiver)
	archiver.On("Archive", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("bucket missing"))
	env.jobSvc.SetArchiver(archiver)

	var calls []processing.JobType
	env.jobSvc.SetRunner(processing.JobLifecycle, stubRunner(processing.JobLifecycle, 3, errors.New("database down"), &calls))

	result, err := env.jobSvc.Run(env.ctx, processing.JobLifecycle, shared.Date(2024, 2, 1), TriggerSchedule)
	require.Error(t, err)
	require.NotNil(t, result)

	latest, err := env.runs.FindLatest(env.ctx, processing.JobLifecycle)
	require.NoError(t, err)
	assert.Equal(t, processing.RunStatusFailed, latest.Status)
	assert.Equal(t, "database down", latest.Error)
	assert.Equal(t, 3, latest.Processed)
	assert.Empty(t, latest.ReportKey)
	require.NotNil(t, latest.CompletedAt)
}

func TestJobRunService_UnknownJobType(t *testing.T) {
	env := newEngineEnv(t)
	_, err := env.jobSvc.Run(env.ctx, processing.JobType("payroll"), shared.Date(2024, 2, 1), TriggerCLI)
	assert.Equal(t, "INVALID_JOB_TYPE", codeOf(err))
	assert.Empty(t, env.runs.runs)
}

func TestJobRunService_RunAllKeepsOrderAndContinues(t *testing.T) {
	env := newEngineEnv(t)
	var calls []processing.JobType
	env.jobSvc.SetRunner(processing.JobLifecycle, stubRunner(processing.JobLifecycle, 1, nil, &calls))
	env.jobSvc.SetRunner(processing.JobRenewal, stubRunner(processing.JobRenewal, 0, errors.New("invoicing down"), &calls))
	env.jobSvc.SetRunner(processing.JobRecognition, stubRunner(processing.JobRecognition, 4, nil, &calls))

	results, err := env.jobSvc.RunAll(env.ctx, shared.Date(2024, 2, 1), TriggerSchedule)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "renewal")
	assert.Equal(t, []processing.JobType{processing.JobLifecycle, processing.JobRenewal, processing.JobRecognition}, calls)
	assert.Equal(t, 4, results[processing.JobRecognition].Processed)
	assert.Len(t, env.runs.runs, 3)
}

func TestJobRunService_RunAllStopsOnCancel(t *testing.T) {
	env := newEngineEnv(t)
	var calls []processing.JobType
	env.jobSvc.SetRunner(processing.JobLifecycle, stubRunner(processing.JobLifecycle, 1, nil, &calls))

	ctx, cancel := context.WithCancel(env.ctx)
	cancel()
	_, err := env.jobSvc.RunAll(ctx, shared.Date(2024, 2, 1), TriggerSchedule)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, calls)
}
