package handler

import (
	"context"
	"time"

	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/infrastructure/scheduler"
	"github.com/google/uuid"
)

// SubscriptionService is the subscription API surface used by the handlers
type SubscriptionService interface {
	CreateSubscription(ctx context.Context, req appsub.CreateSubscriptionRequest) (*appsub.SubscriptionResponse, error)
	GetSubscription(ctx context.Context, id uuid.UUID) (*appsub.SubscriptionResponse, error)
	ListSubscriptions(ctx context.Context, filter appsub.SubscriptionListFilter) ([]appsub.SubscriptionResponse, int64, error)
	Activate(ctx context.Context, id uuid.UUID, req appsub.StatusChangeRequest) (*appsub.SubscriptionResponse, error)
	Suspend(ctx context.Context, id uuid.UUID, req appsub.StatusChangeRequest) (*appsub.SubscriptionResponse, error)
	Terminate(ctx context.Context, id uuid.UUID, req appsub.StatusChangeRequest) (*appsub.SubscriptionResponse, error)
	Cancel(ctx context.Context, id uuid.UUID, req appsub.StatusChangeRequest) (*appsub.SubscriptionResponse, error)
	Reinstate(ctx context.Context, id uuid.UUID, req appsub.StatusChangeRequest) (*appsub.SubscriptionResponse, error)
	PreviewPlanChange(ctx context.Context, id uuid.UUID, req appsub.PlanChangeRequest) (*appsub.ProrationResponse, error)
	ApplyPlanChange(ctx context.Context, id uuid.UUID, req appsub.PlanChangeRequest) (*appsub.PlanChangeResponse, error)
	ListPlanChanges(ctx context.Context, id uuid.UUID) ([]appsub.PlanChangeResponse, error)
}

// RecognitionReader exposes revenue schedules
type RecognitionReader interface {
	GetRecognitionSchedule(ctx context.Context, subscriptionID uuid.UUID) (*appsub.RevenueScheduleResponse, error)
	ListSchedules(ctx context.Context, subscriptionID uuid.UUID) ([]appsub.RevenueScheduleResponse, error)
}

// RenewalService exposes renewal events and payment confirmation
type RenewalService interface {
	ConfirmRenewal(ctx context.Context, eventID uuid.UUID) (*appsub.RenewalEventResponse, error)
	ListRenewals(ctx context.Context, subscriptionID uuid.UUID) ([]appsub.RenewalEventResponse, error)
}

// CatalogService manages plans and billing periods
type CatalogService interface {
	CreateBillingPeriod(ctx context.Context, req appsub.CreateBillingPeriodRequest) (*appsub.BillingPeriodResponse, error)
	GetBillingPeriod(ctx context.Context, id uuid.UUID) (*appsub.BillingPeriodResponse, error)
	ListBillingPeriods(ctx context.Context, filter appsub.CatalogListFilter) ([]appsub.BillingPeriodResponse, error)
	SetDefaultBillingPeriod(ctx context.Context, id uuid.UUID) (*appsub.BillingPeriodResponse, error)
	UpdateBillingPeriodDuration(ctx context.Context, id uuid.UUID, req appsub.UpdateBillingPeriodRequest) (*appsub.BillingPeriodResponse, error)
	CreatePlan(ctx context.Context, req appsub.CreatePlanRequest) (*appsub.PlanResponse, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*appsub.PlanResponse, error)
	ListPlans(ctx context.Context, filter appsub.CatalogListFilter) ([]appsub.PlanResponse, error)
	DeactivatePlan(ctx context.Context, id uuid.UUID) (*appsub.PlanResponse, error)
}

// FailureService manages the operator failure queue
type FailureService interface {
	List(ctx context.Context, filter appsub.FailureListFilter) ([]appsub.ProcessingFailureResponse, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*appsub.ProcessingFailureResponse, error)
	Resolve(ctx context.Context, id uuid.UUID, req appsub.ResolveFailureRequest) (*appsub.ProcessingFailureResponse, error)
}

// JobService runs the batch engines and reads their history
type JobService interface {
	Run(ctx context.Context, jobType processing.JobType, asOf time.Time, trigger string) (*appsub.BatchResult, error)
	RunAll(ctx context.Context, asOf time.Time, trigger string) (map[processing.JobType]*appsub.BatchResult, error)
	ListRuns(ctx context.Context, filter appsub.JobRunListFilter) ([]appsub.JobRunResponse, error)
}

// SchedulerStatus reports the cron entries
type SchedulerStatus interface {
	Status() []scheduler.EntryStatus
}

var (
	_ SubscriptionService = (*appsub.SubscriptionService)(nil)
	_ RecognitionReader   = (*appsub.RecognitionService)(nil)
	_ RenewalService      = (*appsub.RenewalService)(nil)
	_ CatalogService      = (*appsub.CatalogService)(nil)
	_ FailureService      = (*appsub.FailureService)(nil)
	_ JobService          = (*appsub.JobRunService)(nil)
	_ SchedulerStatus     = (*scheduler.CronTrigger)(nil)
)
