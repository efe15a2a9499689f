package persistence

import (
	"context"

	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/renewal"
	"github.com/ams/backend/internal/domain/revenue"
	"github.com/ams/backend/internal/domain/subscription"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appsub.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

func (r *gormTransactionalRepositories) SubscriptionRepo() subscription.SubscriptionRepository {
	return NewGormSubscriptionRepository(r.tx)
}

func (r *gormTransactionalRepositories) PlanChangeRepo() subscription.PlanChangeRepository {
	return NewGormPlanChangeRepository(r.tx)
}

func (r *gormTransactionalRepositories) ScheduleRepo() revenue.ScheduleRepository {
	return NewGormScheduleRepository(r.tx)
}

func (r *gormTransactionalRepositories) RenewalRepo() renewal.RenewalEventRepository {
	return NewGormRenewalEventRepository(r.tx)
}

func (r *gormTransactionalRepositories) FailureRepo() processing.FailureRepository {
	return NewGormFailureRepository(r.tx)
}

func (r *gormTransactionalRepositories) BillingPeriodRepo() billing.BillingPeriodRepository {
	return NewGormBillingPeriodRepository(r.tx)
}

func (r *gormTransactionalRepositories) PlanRepo() billing.PlanRepository {
	return NewGormPlanRepository(r.tx)
}

// NewRepositories wires the non-transactional repository set
func NewRepositories(db *gorm.DB) appsub.Repositories {
	return appsub.Repositories{
		Subscriptions:  NewGormSubscriptionRepository(db),
		PlanChanges:    NewGormPlanChangeRepository(db),
		Schedules:      NewGormScheduleRepository(db),
		Renewals:       NewGormRenewalEventRepository(db),
		Failures:       NewGormFailureRepository(db),
		JobRuns:        NewGormJobRunRepository(db),
		BillingPeriods: NewGormBillingPeriodRepository(db),
		Plans:          NewGormPlanRepository(db),
	}
}

var (
	_ appsub.TransactionScope          = (*GormTransactionScope)(nil)
	_ appsub.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
)
