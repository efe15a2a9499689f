package billing

import (
	"context"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// BillingPeriodRepository defines the interface for billing period persistence
type BillingPeriodRepository interface {
	// FindByID finds a billing period by ID
	FindByID(ctx context.Context, id uuid.UUID) (*BillingPeriod, error)

	// FindByCode finds a billing period by its unique code
	FindByCode(ctx context.Context, code string) (*BillingPeriod, error)

	// FindDefault returns the system default billing period
	FindDefault(ctx context.Context) (*BillingPeriod, error)

	// FindAll finds all billing periods matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]BillingPeriod, error)

	// ExistsByCode checks whether a code is taken
	ExistsByCode(ctx context.Context, code string) (bool, error)

	// Save creates or updates a billing period
	Save(ctx context.Context, bp *BillingPeriod) error
}

// PlanRepository defines the interface for plan persistence
type PlanRepository interface {
	// FindByID finds a plan by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Plan, error)

	// FindByCode finds a plan by its unique code
	FindByCode(ctx context.Context, code string) (*Plan, error)

	// FindAll finds all plans matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]Plan, error)

	// ExistsByCode checks whether a code is taken
	ExistsByCode(ctx context.Context, code string) (bool, error)

	// CountByBillingPeriod counts plans referencing a billing period
	CountByBillingPeriod(ctx context.Context, billingPeriodID uuid.UUID) (int64, error)

	// Save creates or updates a plan
	Save(ctx context.Context, plan *Plan) error
}
