package models

import (
	"encoding/json"
	"time"

	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ProcessingFailureModel is the persistence model for the failure queue
type ProcessingFailureModel struct {
	AggregateModel
	JobType        processing.JobType       `gorm:"type:varchar(20);not null;index:idx_failure_subject,priority:1"`
	Category       shared.ErrorCategory     `gorm:"type:varchar(20);not null"`
	SubjectType    processing.SubjectType   `gorm:"type:varchar(30);not null;index:idx_failure_subject,priority:2"`
	SubjectID      uuid.UUID                `gorm:"type:uuid;not null;index:idx_failure_subject,priority:3"`
	SubscriptionID uuid.UUID                `gorm:"type:uuid;not null;index"`
	IdempotencyKey string                   `gorm:"type:varchar(200)"`
	Attempts       int                      `gorm:"not null"`
	LastError      string                   `gorm:"type:text;not null"`
	Status         processing.FailureStatus `gorm:"type:varchar(20);not null;index"`
	Payload        *string                  `gorm:"type:jsonb"`
	LastFailedAt   time.Time                `gorm:"not null"`
	ResolvedAt     *time.Time
	ResolvedBy     string `gorm:"type:varchar(100)"`
	ResolutionNote string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (ProcessingFailureModel) TableName() string {
	return "processing_failures"
}

// ToDomain converts the persistence model to a domain ProcessingFailure
func (m *ProcessingFailureModel) ToDomain() *processing.ProcessingFailure {
	f := &processing.ProcessingFailure{
		BaseAggregateRoot: m.ToAggregateRoot(),
		JobType:           m.JobType,
		Category:          m.Category,
		SubjectType:       m.SubjectType,
		SubjectID:         m.SubjectID,
		SubscriptionID:    m.SubscriptionID,
		IdempotencyKey:    m.IdempotencyKey,
		Attempts:          m.Attempts,
		LastError:         m.LastError,
		Status:            m.Status,
		LastFailedAt:      m.LastFailedAt.UTC(),
		ResolvedAt:        utcPtr(m.ResolvedAt),
		ResolvedBy:        m.ResolvedBy,
		ResolutionNote:    m.ResolutionNote,
	}
	if m.Payload != nil && *m.Payload != "" {
		f.Payload = json.RawMessage(*m.Payload)
	}
	return f
}

// FromDomain populates the persistence model from a domain ProcessingFailure
func (m *ProcessingFailureModel) FromDomain(f *processing.ProcessingFailure) {
	m.FromDomainAggregateRoot(f.BaseAggregateRoot)
	m.JobType = f.JobType
	m.Category = f.Category
	m.SubjectType = f.SubjectType
	m.SubjectID = f.SubjectID
	m.SubscriptionID = f.SubscriptionID
	m.IdempotencyKey = f.IdempotencyKey
	m.Attempts = f.Attempts
	m.LastError = f.LastError
	m.Status = f.Status
	m.Payload = nil
	if len(f.Payload) > 0 {
		payload := string(f.Payload)
		m.Payload = &payload
	}
	m.LastFailedAt = f.LastFailedAt
	m.ResolvedAt = f.ResolvedAt
	m.ResolvedBy = f.ResolvedBy
	m.ResolutionNote = f.ResolutionNote
}

// ProcessingFailureModelFromDomain creates a new persistence model from a domain ProcessingFailure
func ProcessingFailureModelFromDomain(f *processing.ProcessingFailure) *ProcessingFailureModel {
	m := &ProcessingFailureModel{}
	m.FromDomain(f)
	return m
}

// JobRunModel records one execution of a batch job
type JobRunModel struct {
	ID          uuid.UUID            `gorm:"type:uuid;primary_key"`
	JobType     processing.JobType   `gorm:"type:varchar(20);not null;index:idx_job_run_type_started,priority:1"`
	AsOf        time.Time            `gorm:"type:date;not null"`
	Status      processing.RunStatus `gorm:"type:varchar(20);not null;index"`
	Trigger     string               `gorm:"type:varchar(20);not null"`
	Total       int                  `gorm:"not null"`
	Processed   int                  `gorm:"not null"`
	Skipped     int                  `gorm:"not null"`
	Failed      int                  `gorm:"not null"`
	Error       string               `gorm:"type:text"`
	ReportKey   string               `gorm:"type:varchar(500)"`
	StartedAt   time.Time            `gorm:"not null;index:idx_job_run_type_started,priority:2"`
	CompletedAt *time.Time
}

// TableName returns the table name for GORM
func (JobRunModel) TableName() string {
	return "job_runs"
}

// ToDomain converts the persistence model to a domain JobRun
func (m *JobRunModel) ToDomain() *processing.JobRun {
	return &processing.JobRun{
		ID:          m.ID,
		JobType:     m.JobType,
		AsOf:        day(m.AsOf),
		Status:      m.Status,
		Trigger:     m.Trigger,
		Total:       m.Total,
		Processed:   m.Processed,
		Skipped:     m.Skipped,
		Failed:      m.Failed,
		Error:       m.Error,
		ReportKey:   m.ReportKey,
		StartedAt:   m.StartedAt.UTC(),
		CompletedAt: utcPtr(m.CompletedAt),
	}
}

// JobRunModelFromDomain creates a new persistence model from a domain JobRun
func JobRunModelFromDomain(r *processing.JobRun) *JobRunModel {
	return &JobRunModel{
		ID:          r.ID,
		JobType:     r.JobType,
		AsOf:        r.AsOf,
		Status:      r.Status,
		Trigger:     r.Trigger,
		Total:       r.Total,
		Processed:   r.Processed,
		Skipped:     r.Skipped,
		Failed:      r.Failed,
		Error:       r.Error,
		ReportKey:   r.ReportKey,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

// AllModels lists every model for AutoMigrate in tests and local runs
func AllModels() []any {
	return []any{
		&BillingPeriodModel{},
		&PlanModel{},
		&SubscriptionModel{},
		&PlanChangeModel{},
		&RevenueScheduleModel{},
		&RecognitionLineModel{},
		&RenewalEventModel{},
		&ProcessingFailureModel{},
		&JobRunModel{},
	}
}
