package processing

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the state of a batch run
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailed  RunStatus = "FAILED"
)

// JobRun is the history record of one batch execution
type JobRun struct {
	ID          uuid.UUID  `json:"id"`
	JobType     JobType    `json:"job_type"`
	AsOf        time.Time  `json:"as_of"`
	Status      RunStatus  `json:"status"`
	Trigger     string     `json:"trigger"`
	Total       int        `json:"total"`
	Processed   int        `json:"processed"`
	Skipped     int        `json:"skipped"`
	Failed      int        `json:"failed"`
	Error       string     `json:"error,omitempty"`
	ReportKey   string     `json:"report_key,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewJobRun starts a run record
func NewJobRun(jobType JobType, asOf time.Time, trigger string, startedAt time.Time) *JobRun {
	return &JobRun{
		ID:        uuid.New(),
		JobType:   jobType,
		AsOf:      asOf,
		Status:    RunStatusRunning,
		Trigger:   trigger,
		StartedAt: startedAt.UTC(),
	}
}

// Complete records the counters. A run with per-record failures still
// completes successfully; only a run that could not execute is FAILED.
func (r *JobRun) Complete(total, processed, skipped, failed int, at time.Time) {
	done := at.UTC()
	r.Status = RunStatusSuccess
	r.Total = total
	r.Processed = processed
	r.Skipped = skipped
	r.Failed = failed
	r.CompletedAt = &done
}

// Fail marks the whole run failed
func (r *JobRun) Fail(err error, at time.Time) {
	done := at.UTC()
	r.Status = RunStatusFailed
	r.Error = err.Error()
	r.CompletedAt = &done
}

// Duration of a completed run
func (r *JobRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
