package billing

import (
	"context"

	"github.com/google/uuid"
)

// Catalog is the read path for plans and billing periods. Batch runs look
// the same few plans up for every subscription, so implementations may cache.
type Catalog interface {
	Plan(ctx context.Context, id uuid.UUID) (*Plan, error)
	BillingPeriod(ctx context.Context, id uuid.UUID) (*BillingPeriod, error)
}

// CatalogInvalidator drops cached catalog entries after a write
type CatalogInvalidator interface {
	InvalidatePlan(id uuid.UUID)
	InvalidateBillingPeriod(id uuid.UUID)
}

// RepositoryCatalog reads straight from the repositories
type RepositoryCatalog struct {
	Plans          PlanRepository
	BillingPeriods BillingPeriodRepository
}

// Plan finds a plan by ID
func (c RepositoryCatalog) Plan(ctx context.Context, id uuid.UUID) (*Plan, error) {
	return c.Plans.FindByID(ctx, id)
}

// BillingPeriod finds a billing period by ID
func (c RepositoryCatalog) BillingPeriod(ctx context.Context, id uuid.UUID) (*BillingPeriod, error) {
	return c.BillingPeriods.FindByID(ctx, id)
}
