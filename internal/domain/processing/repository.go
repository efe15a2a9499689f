package processing

import (
	"context"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// FailureRepository defines the interface for the failure queue
type FailureRepository interface {
	// FindByID finds a failure by ID
	FindByID(ctx context.Context, id uuid.UUID) (*ProcessingFailure, error)

	// FindUnresolved finds the open or manual-review entry for a subject
	FindUnresolved(ctx context.Context, jobType JobType, subjectType SubjectType, subjectID uuid.UUID) (*ProcessingFailure, error)

	// FindBlockedSubjects returns subject IDs in manual review for a job
	FindBlockedSubjects(ctx context.Context, jobType JobType, subjectType SubjectType) ([]uuid.UUID, error)

	// FindOpenBySubject lists retryable (open) entries of a subject type
	FindOpenBySubject(ctx context.Context, jobType JobType, subjectType SubjectType, limit int) ([]ProcessingFailure, error)

	// FindAll lists failures. Supported Filters keys: status, job_type, category
	FindAll(ctx context.Context, filter shared.Filter) ([]ProcessingFailure, error)

	// Count counts failures matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// Save creates or updates a failure
	Save(ctx context.Context, f *ProcessingFailure) error
}

// JobRunRepository defines the interface for batch run history
type JobRunRepository interface {
	// Create records a started run
	Create(ctx context.Context, run *JobRun) error

	// Update stores the outcome of a run
	Update(ctx context.Context, run *JobRun) error

	// FindLatest returns the most recent run of a job type
	FindLatest(ctx context.Context, jobType JobType) (*JobRun, error)

	// FindAll lists runs, newest first. Supported Filters keys: job_type, status
	FindAll(ctx context.Context, filter shared.Filter) ([]JobRun, error)
}
