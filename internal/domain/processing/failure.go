package processing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// JobType names the scheduled batch jobs
type JobType string

const (
	JobLifecycle   JobType = "lifecycle"
	JobRenewal     JobType = "renewal"
	JobRecognition JobType = "recognition"
)

// AllJobTypes in the order a full daily run executes them
var AllJobTypes = []JobType{JobLifecycle, JobRenewal, JobRecognition}

// IsValid checks if the job type is a valid JobType
func (j JobType) IsValid() bool {
	return j == JobLifecycle || j == JobRenewal || j == JobRecognition
}

// String returns the string representation of JobType
func (j JobType) String() string {
	return string(j)
}

// SubjectType identifies what a failure is about
type SubjectType string

const (
	SubjectSubscription         SubjectType = "subscription"
	SubjectRecognitionLine      SubjectType = "recognition_line"
	SubjectRenewalEvent         SubjectType = "renewal_event"
	SubjectImmediateRecognition SubjectType = "immediate_recognition"
	SubjectPlanChange           SubjectType = "plan_change"
)

// FailureStatus is the state of a queued failure
type FailureStatus string

const (
	FailureOpen         FailureStatus = "open"
	FailureManualReview FailureStatus = "manual_review"
	FailureResolved     FailureStatus = "resolved"
)

// IsValid checks if the status is a valid FailureStatus
func (s FailureStatus) IsValid() bool {
	return s == FailureOpen || s == FailureManualReview || s == FailureResolved
}

// ProcessingFailure is an entry in the retry / operator queue. Processing
// failures are retried by the next run with the same idempotency key; after
// maxAttempts consecutive failures the entry waits for an operator.
// Non-retryable failures go to manual review immediately.
type ProcessingFailure struct {
	shared.BaseAggregateRoot
	JobType        JobType              `json:"job_type"`
	Category       shared.ErrorCategory `json:"category"`
	SubjectType    SubjectType          `json:"subject_type"`
	SubjectID      uuid.UUID            `json:"subject_id"`
	SubscriptionID uuid.UUID            `json:"subscription_id"`
	IdempotencyKey string               `json:"idempotency_key,omitempty"`
	Attempts       int                  `json:"attempts"`
	LastError      string               `json:"last_error"`
	Status         FailureStatus        `json:"status"`
	Payload        json.RawMessage      `json:"payload,omitempty"`
	LastFailedAt   time.Time            `json:"last_failed_at"`
	ResolvedAt     *time.Time           `json:"resolved_at,omitempty"`
	ResolvedBy     string               `json:"resolved_by,omitempty"`
	ResolutionNote string               `json:"resolution_note,omitempty"`
}

// FailureSubject identifies the record a failure belongs to
type FailureSubject struct {
	JobType        JobType
	SubjectType    SubjectType
	SubjectID      uuid.UUID
	SubscriptionID uuid.UUID
	IdempotencyKey string
	Payload        any
}

// NewProcessingFailure opens a queue entry for the first failure of subject
func NewProcessingFailure(subject FailureSubject, cause error, maxAttempts int, at time.Time) (*ProcessingFailure, error) {
	if !subject.JobType.IsValid() {
		return nil, shared.NewValidationError("INVALID_JOB_TYPE", fmt.Sprintf("Unknown job type %q", subject.JobType))
	}
	f := &ProcessingFailure{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		JobType:           subject.JobType,
		SubjectType:       subject.SubjectType,
		SubjectID:         subject.SubjectID,
		SubscriptionID:    subject.SubscriptionID,
		IdempotencyKey:    subject.IdempotencyKey,
		Status:            FailureOpen,
	}
	if subject.Payload != nil {
		raw, err := json.Marshal(subject.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode failure payload: %w", err)
		}
		f.Payload = raw
	}
	f.RecordAttempt(cause, maxAttempts, at)
	return f, nil
}

// RecordAttempt notes another consecutive failure and escalates when the
// limit is reached or the error is a configuration problem
func (f *ProcessingFailure) RecordAttempt(cause error, maxAttempts int, at time.Time) {
	f.Attempts++
	f.Category = shared.CategoryOf(cause)
	f.LastError = cause.Error()
	f.LastFailedAt = at.UTC()
	if f.Status == FailureResolved {
		f.Status = FailureOpen
		f.ResolvedAt = nil
	}
	if !f.Retryable() || (maxAttempts > 0 && f.Attempts >= maxAttempts) {
		f.Status = FailureManualReview
	}
	f.Touch()
	f.IncrementVersion()
}

// Retryable is true for transient failures. Configuration and validation
// problems need an operator before another attempt can succeed.
func (f *ProcessingFailure) Retryable() bool {
	return f.Category == shared.CategoryProcessing || f.Category == shared.CategoryConcurrency
}

// IsBlocked reports whether automated runs must skip the subject
func (f *ProcessingFailure) IsBlocked() bool {
	return f.Status == FailureManualReview
}

// Succeeded closes the entry after an automated retry worked. An
// operator's release note is kept.
func (f *ProcessingFailure) Succeeded(at time.Time) {
	resolvedAt := at.UTC()
	f.Status = FailureResolved
	f.Attempts = 0
	f.ResolvedAt = &resolvedAt
	if f.ResolvedBy == "" {
		f.ResolvedBy = "system"
		f.ResolutionNote = "succeeded on retry"
	}
	f.Touch()
	f.IncrementVersion()
}

// Resolve is the operator action that releases a blocked entry. The entry
// goes back to open with a fresh attempt counter so the next run retries
// the subject; it is closed only when that retry succeeds.
func (f *ProcessingFailure) Resolve(by, note string) error {
	if f.Status == FailureResolved {
		return shared.NewValidationError("INVALID_STATE", "Failure is already resolved")
	}
	f.Status = FailureOpen
	f.Attempts = 0
	f.ResolvedAt = nil
	f.ResolvedBy = by
	f.ResolutionNote = note
	f.Touch()
	f.IncrementVersion()
	return nil
}

// DecodePayload unmarshals the stored payload into v
func (f *ProcessingFailure) DecodePayload(v any) error {
	if len(f.Payload) == 0 {
		return shared.NewValidationError("MISSING_PAYLOAD", "Failure has no payload")
	}
	return json.Unmarshal(f.Payload, v)
}
