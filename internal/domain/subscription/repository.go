package subscription

import (
	"context"
	"time"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// SubscriptionRepository defines the interface for subscription persistence
type SubscriptionRepository interface {
	// FindByID finds a subscription by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// FindAll finds subscriptions matching the filter.
	// Supported Filters keys: status, subscriber_ref, plan_id, kind
	FindAll(ctx context.Context, filter shared.Filter) ([]Subscription, error)

	// Count counts subscriptions matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// FindDueForLifecycle returns IDs of subscriptions with an automated
	// transition date before asOf (active past paid-through, grace past
	// grace end, suspended past suspend end)
	FindDueForLifecycle(ctx context.Context, asOf time.Time) ([]uuid.UUID, error)

	// FindRenewable returns IDs of live auto-renewing subscriptions whose
	// paid-through date is on or before horizon
	FindRenewable(ctx context.Context, horizon time.Time) ([]uuid.UUID, error)

	// CountLiveByBillingPeriod counts non-terminal subscriptions on a billing period
	CountLiveByBillingPeriod(ctx context.Context, billingPeriodID uuid.UUID) (int64, error)

	// Save inserts a new subscription
	Save(ctx context.Context, s *Subscription) error

	// SaveWithLock updates a subscription with optimistic locking
	// Returns shared.ErrConcurrencyConflict if the version doesn't match
	SaveWithLock(ctx context.Context, s *Subscription) error
}

// PlanChangeRepository defines the interface for plan change audit records
type PlanChangeRepository interface {
	// FindBySubscription lists plan changes of a subscription, newest first
	FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]PlanChange, error)

	// FindPendingInvoices lists changes still owing an adjustment invoice
	FindPendingInvoices(ctx context.Context, subscriptionID uuid.UUID) ([]PlanChange, error)

	// Save creates or updates a plan change
	Save(ctx context.Context, pc *PlanChange) error
}
