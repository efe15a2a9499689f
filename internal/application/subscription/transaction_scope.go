package subscription

import (
	"context"

	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/renewal"
	"github.com/ams/backend/internal/domain/revenue"
	"github.com/ams/backend/internal/domain/subscription"
)

// TransactionScope provides transactional access to the engine's repositories.
// When a function is executed within a transaction scope, all repository operations
// will be part of the same database transaction and will be committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all repositories within a transaction.
// All repositories returned share the same underlying database transaction.
//
// Aggregate boundary notes:
//   - SubscriptionRepo: the Subscription aggregate; every status change goes through SaveWithLock.
//   - ScheduleRepo: schedules are inserted with their lines; lines are later updated one by one.
//   - RenewalRepo: one event per subscription and due date.
//   - FailureRepo: the retry / operator queue.
type TransactionalRepositories interface {
	SubscriptionRepo() subscription.SubscriptionRepository
	PlanChangeRepo() subscription.PlanChangeRepository
	ScheduleRepo() revenue.ScheduleRepository
	RenewalRepo() renewal.RenewalEventRepository
	FailureRepo() processing.FailureRepository
	BillingPeriodRepo() billing.BillingPeriodRepository
	PlanRepo() billing.PlanRepository
}

// Repositories is the non-transactional repository set
type Repositories struct {
	Subscriptions  subscription.SubscriptionRepository
	PlanChanges    subscription.PlanChangeRepository
	Schedules      revenue.ScheduleRepository
	Renewals       renewal.RenewalEventRepository
	Failures       processing.FailureRepository
	JobRuns        processing.JobRunRepository
	BillingPeriods billing.BillingPeriodRepository
	Plans          billing.PlanRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use transactions.
// This is useful for testing or when transaction support is not required.
type NoOpTransactionScope struct {
	repos Repositories
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(repos Repositories) *NoOpTransactionScope {
	return &NoOpTransactionScope{repos: repos}
}

// Execute runs the function without a real transaction (for testing/compatibility).
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

func (s *NoOpTransactionScope) SubscriptionRepo() subscription.SubscriptionRepository {
	return s.repos.Subscriptions
}

func (s *NoOpTransactionScope) PlanChangeRepo() subscription.PlanChangeRepository {
	return s.repos.PlanChanges
}

func (s *NoOpTransactionScope) ScheduleRepo() revenue.ScheduleRepository {
	return s.repos.Schedules
}

func (s *NoOpTransactionScope) RenewalRepo() renewal.RenewalEventRepository {
	return s.repos.Renewals
}

func (s *NoOpTransactionScope) FailureRepo() processing.FailureRepository {
	return s.repos.Failures
}

func (s *NoOpTransactionScope) BillingPeriodRepo() billing.BillingPeriodRepository {
	return s.repos.BillingPeriods
}

func (s *NoOpTransactionScope) PlanRepo() billing.PlanRepository {
	return s.repos.Plans
}
