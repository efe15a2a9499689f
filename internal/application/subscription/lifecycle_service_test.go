package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/subscription"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLifecycleService_GraceThenLapse(t *testing.T) {
	env := newEngineEnv(t)
	id := env.activate(t, env.monthlyPlan, "C-100", shared.Date(2024, 1, 1))
	require.Equal(t, shared.Date(2024, 2, 1), *env.subscription(t, id).PaidThroughDate)

	run := func(asOf string) *BatchResult {
		t.Helper()
		date, err := shared.ParseDate(asOf)
		require.NoError(t, err)
		env.clock.Set(date)
		result, err := env.lifecycleSvc.RunLifecycleTransitions(env.ctx, date)
		require.NoError(t, err)
		return result
	}

	result := run("2024-02-01")
	assert.Equal(t, 0, result.Total)
	assert.Equal(t, subscription.StatusActive, env.subscription(t, id).Status)

	result = run("2024-02-02")
	assert.Equal(t, 1, result.Processed)
	sub := env.subscription(t, id)
	assert.Equal(t, subscription.StatusGrace, sub.Status)
	assert.Equal(t, shared.Date(2024, 2, 15), *sub.GraceEndDate)

	result = run("2024-02-15")
	assert.Equal(t, 0, result.Total)
	assert.Equal(t, subscription.StatusGrace, env.subscription(t, id).Status)

	result = run("2024-02-16")
	assert.Equal(t, 1, result.Processed)
	sub = env.subscription(t, id)
	assert.Equal(t, subscription.StatusLapsed, sub.Status)
	assert.Nil(t, sub.GraceEndDate)
	require.NoError(t, sub.CheckInvariants())
}

func TestLifecycleService_CatchUpIsOneSave(t *testing.T) {
	env := newEngineEnv(t)
	id := env.activate(t, env.monthlyPlan, "C-100", shared.Date(2024, 1, 1))
	before := env.subscription(t, id).Version

	env.clock.Set(shared.Date(2024, 3, 1))
	result, err := env.lifecycleSvc.RunLifecycleTransitions(env.ctx, shared.Date(2024, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	sub := env.subscription(t, id)
	assert.Equal(t, subscription.StatusLapsed, sub.Status)
	assert.Equal(t, before+1, sub.Version)

	changed := 0
	for _, typ := range env.publisher.types() {
		if typ == subscription.EventTypeSubscriptionStatusChanged {
			changed++
		}
	}
	// activation, grace, lapse
	assert.Equal(t, 3, changed)
}

func TestLifecycleService_RerunIsNoOp(t *testing.T) {
	env := newEngineEnv(t)
	id := env.activate(t, env.monthlyPlan, "C-100", shared.Date(2024, 1, 1))
	asOf := shared.Date(2024, 2, 5)
	env.clock.Set(asOf)

	first, err := env.lifecycleSvc.RunLifecycleTransitions(env.ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Processed)
	version := env.subscription(t, id).Version

	env.clock.Advance(time.Hour)
	second, err := env.lifecycleSvc.RunLifecycleTransitions(env.ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 0, second.Failed)
	assert.Equal(t, version, env.subscription(t, id).Version)
}

func TestLifecycleService_ManualChangeWins(t *testing.T) {
	env := newEngineEnv(t)
	env.activeSubscriber("C-100")
	created, err := env.subscriptionSvc.CreateSubscription(env.ctx, CreateSubscriptionRequest{
		SubscriberRef: "C-100",
		PlanID:        env.monthlyPlan.ID,
		StartDate:     "2024-01-01",
	})
	require.NoError(t, err)
	id := created.ID

	// activated late, already past the paid-through date on the run's business day
	env.clock.Set(shared.Date(2024, 2, 5))
	_, err = env.subscriptionSvc.Activate(env.ctx, id, StatusChangeRequest{Reason: "approved"})
	require.NoError(t, err)
	require.Equal(t, shared.Date(2024, 2, 1), *env.subscription(t, id).PaidThroughDate)

	result, err := env.lifecycleSvc.RunLifecycleTransitions(env.ctx, shared.Date(2024, 2, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, subscription.StatusActive, env.subscription(t, id).Status)

	env.clock.Set(shared.Date(2024, 2, 6))
	result, err = env.lifecycleSvc.RunLifecycleTransitions(env.ctx, shared.Date(2024, 2, 6))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, subscription.StatusGrace, env.subscription(t, id).Status)
}

func TestLifecycleService_ReinstatedAfterLapseStaysActive(t *testing.T) {
	env := newEngineEnv(t)
	id := env.activate(t, env.monthlyPlan, "C-100", shared.Date(2024, 1, 1))

	for _, day := range []time.Time{shared.Date(2024, 2, 2), shared.Date(2024, 2, 16)} {
		env.clock.Set(day)
		_, err := env.lifecycleSvc.RunLifecycleTransitions(env.ctx, day)
		require.NoError(t, err)
	}
	require.Equal(t, subscription.StatusLapsed, env.subscription(t, id).Status)

	env.clock.Set(shared.Date(2024, 3, 1).Add(10 * time.Hour))
	resp, err := env.subscriptionSvc.Reinstate(env.ctx, id, StatusChangeRequest{Reason: "paid at the desk"})
	require.NoError(t, err)
	assert.Equal(t, "active", resp.Status)
	assert.Equal(t, "2024-03-01", *resp.CurrentPeriodStart)
	assert.Equal(t, "2024-04-01", *resp.PaidThroughDate)

	exists, err := env.schedules.ExistsForPeriod(env.ctx, id, shared.Date(2024, 3, 1))
	require.NoError(t, err)
	assert.True(t, exists, "the restarted period gets a revenue schedule")

	env.clock.Set(shared.Date(2024, 3, 2))
	result, err := env.lifecycleSvc.RunLifecycleTransitions(env.ctx, shared.Date(2024, 3, 2))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, subscription.StatusActive, env.subscription(t, id).Status)

	env.clock.Set(shared.Date(2024, 4, 2))
	result, err = env.lifecycleSvc.RunLifecycleTransitions(env.ctx, shared.Date(2024, 4, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, subscription.StatusGrace, env.subscription(t, id).Status)
}

func TestLifecycleService_SuspensionExpires(t *testing.T) {
	env := newEngineEnv(t)
	id := env.activate(t, env.basic, "C-100", shared.Date(2024, 1, 1))

	env.clock.Set(shared.Date(2024, 1, 10))
	_, err := env.subscriptionSvc.Suspend(env.ctx, id, StatusChangeRequest{Reason: "dues dispute"})
	require.NoError(t, err)
	require.Equal(t, shared.Date(2024, 3, 10), *env.subscription(t, id).SuspendEndDate)

	env.clock.Set(shared.Date(2024, 3, 10))
	result, err := env.lifecycleSvc.RunLifecycleTransitions(env.ctx, shared.Date(2024, 3, 10))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)

	env.clock.Set(shared.Date(2024, 3, 11))
	result, err = env.lifecycleSvc.RunLifecycleTransitions(env.ctx, shared.Date(2024, 3, 11))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	sub := env.subscription(t, id)
	assert.Equal(t, subscription.StatusLapsed, sub.Status)
	assert.Equal(t, "suspension period expired", sub.StatusReason)
}

func TestLifecycleService_FailuresAndBlockedRecords(t *testing.T) {
	env := newEngineEnv(t)
	broken := env.activate(t, env.monthlyPlan, "C-100", shared.Date(2024, 1, 1))
	healthy := env.activate(t, env.basic, "C-200", shared.Date(2023, 1, 1))

	// a plan removed behind the engine's back
	orphan := env.subscription(t, broken)
	orphan.PlanID = env.premium.ID
	delete(env.plans.data, env.premium.ID)
	env.subs.put(orphan)

	asOf := shared.Date(2024, 3, 1)
	env.clock.Set(asOf)
	result, err := env.lifecycleSvc.RunLifecycleTransitions(env.ctx, asOf)
	require.NoError(t, err, "a failing record never fails the run")
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, broken, result.Errors[0].SubjectID)
	assert.Equal(t, shared.CategoryConfiguration, result.Errors[0].Category)

	assert.Equal(t, subscription.StatusLapsed, env.subscription(t, healthy).Status)

	queued := env.failures.forSubject(broken)
	require.NotNil(t, queued)
	assert.Equal(t, processing.FailureManualReview, queued.Status, "configuration errors are not retried")

	// blocked until an operator resolves it
	env.clock.Advance(time.Hour)
	result, err = env.lifecycleSvc.RunLifecycleTransitions(env.ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)

	_, err = env.failureSvc.Resolve(env.ctx, queued.ID, ResolveFailureRequest{ResolvedBy: "ops", Note: "plan restored"})
	require.NoError(t, err)
	require.NoError(t, env.plans.Save(env.ctx, env.premium))

	result, err = env.lifecycleSvc.RunLifecycleTransitions(env.ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
}

var errDatabaseDown = errors.New("database down")

type failingSubscriptionRepo struct {
	*memSubscriptionRepo
}

func (failingSubscriptionRepo) FindDueForLifecycle(context.Context, time.Time) ([]uuid.UUID, error) {
	return nil, errDatabaseDown
}

func TestLifecycleService_SourceErrorFailsRun(t *testing.T) {
	env := newEngineEnv(t)
	catalog := billing.RepositoryCatalog{Plans: env.plans, BillingPeriods: env.periods}
	svc := NewLifecycleService(failingSubscriptionRepo{env.subs}, env.failures, catalog, env.clock, DefaultEngineConfig(), zap.NewNop())

	_, err := svc.RunLifecycleTransitions(env.ctx, shared.Date(2024, 3, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errDatabaseDown))
}
