package persistence

import (
	"context"
	"testing"
	"time"

	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/renewal"
	"github.com/ams/backend/internal/domain/revenue"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/shared/valueobject"
	"github.com/ams/backend/internal/domain/subscription"
	"github.com/ams/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

type catalogFixture struct {
	monthly *billing.BillingPeriod
	plan    *billing.Plan
}

func seedCatalog(t *testing.T, db *gorm.DB) catalogFixture {
	t.Helper()
	ctx := context.Background()

	monthly, err := billing.NewBillingPeriod("MONTHLY", "Monthly", 1, billing.UnitMonth)
	require.NoError(t, err)
	require.NoError(t, NewGormBillingPeriodRepository(db).Save(ctx, monthly))

	plan, err := billing.NewPlan("GOLD", "Gold membership", decimal.NewFromInt(120), valueobject.USD, monthly.ID)
	require.NoError(t, err)
	require.NoError(t, plan.ConfigureRecognition(billing.RecognitionDeferred, nil))
	require.NoError(t, plan.ConfigureLedgerAccounts(billing.LedgerAccounts{
		DeferredRevenueAccount: "2400",
		RevenueAccount:         "4100",
	}))
	require.NoError(t, NewGormPlanRepository(db).Save(ctx, plan))

	return catalogFixture{monthly: monthly, plan: plan}
}

func newActiveSubscription(t *testing.T, fx catalogFixture, ref string, start time.Time) *subscription.Subscription {
	t.Helper()
	s, err := subscription.NewSubscription(subscription.NewSubscriptionInput{
		SubscriberRef: ref,
		StartDate:     start,
	}, fx.plan)
	require.NoError(t, err)
	require.NoError(t, s.Activate(fx.monthly, "signup", start))
	return s
}

func TestCatalogRepositories(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	fx := seedCatalog(t, db)
	periods := NewGormBillingPeriodRepository(db)
	plans := NewGormPlanRepository(db)

	t.Run("finds billing period by code case-insensitively", func(t *testing.T) {
		found, err := periods.FindByCode(ctx, "monthly")
		require.NoError(t, err)
		assert.Equal(t, fx.monthly.ID, found.ID)
		assert.Equal(t, billing.UnitMonth, found.Duration.Unit)
	})

	t.Run("round-trips plan configuration", func(t *testing.T) {
		found, err := plans.FindByID(ctx, fx.plan.ID)
		require.NoError(t, err)
		assert.Equal(t, "GOLD", found.Code)
		assert.True(t, found.Amount.Equal(decimal.NewFromInt(120)))
		assert.Equal(t, billing.RecognitionDeferred, found.RecognitionMethod)
		assert.Equal(t, "2400", found.LedgerAccounts.DeferredRevenueAccount)
		assert.Equal(t, billing.DefaultReminderDays(), found.ReminderDays)
		assert.True(t, found.AutoRenewDefault)
		assert.True(t, found.Active)
	})

	t.Run("persists false flags on update", func(t *testing.T) {
		plan, err := plans.FindByID(ctx, fx.plan.ID)
		require.NoError(t, err)
		plan.Deactivate()
		require.NoError(t, plans.Save(ctx, plan))

		found, err := plans.FindByID(ctx, fx.plan.ID)
		require.NoError(t, err)
		assert.False(t, found.Active)

		active, err := plans.FindAll(ctx, shared.Filter{Filters: map[string]interface{}{"active": true}})
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("counts plans referencing a billing period", func(t *testing.T) {
		count, err := plans.CountByBillingPeriod(ctx, fx.monthly.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("missing plan maps to ErrNotFound", func(t *testing.T) {
		_, err := plans.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormSubscriptionRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	fx := seedCatalog(t, db)
	repo := NewGormSubscriptionRepository(db)

	start := shared.Date(2026, time.January, 1)
	sub := newActiveSubscription(t, fx, "M-100", start)
	require.NoError(t, repo.Save(ctx, sub))

	t.Run("round-trips dates and amounts", func(t *testing.T) {
		found, err := repo.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, found.Status)
		assert.Equal(t, start, found.StartDate)
		require.NotNil(t, found.PaidThroughDate)
		assert.Equal(t, shared.Date(2026, time.February, 1), *found.PaidThroughDate)
		assert.True(t, found.Amount.Equal(decimal.NewFromInt(120)))
		assert.Equal(t, sub.Version, found.Version)
	})

	t.Run("finds subscriptions due for lifecycle processing", func(t *testing.T) {
		ids, err := repo.FindDueForLifecycle(ctx, shared.Date(2026, time.February, 1))
		require.NoError(t, err)
		assert.Empty(t, ids, "paid-through date itself is not yet due")

		ids, err = repo.FindDueForLifecycle(ctx, shared.Date(2026, time.February, 2))
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{sub.ID}, ids)
	})

	t.Run("finds renewable subscriptions within the horizon", func(t *testing.T) {
		ids, err := repo.FindRenewable(ctx, shared.Date(2026, time.January, 31))
		require.NoError(t, err)
		assert.Empty(t, ids)

		ids, err = repo.FindRenewable(ctx, shared.Date(2026, time.February, 1))
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{sub.ID}, ids)
	})

	t.Run("filters by status and subscriber", func(t *testing.T) {
		list, err := repo.FindAll(ctx, shared.Filter{Filters: map[string]interface{}{
			"status":         "active",
			"subscriber_ref": "M-100",
		}})
		require.NoError(t, err)
		require.Len(t, list, 1)

		count, err := repo.Count(ctx, shared.Filter{Filters: map[string]interface{}{"status": "grace"}})
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("save with lock applies the next version", func(t *testing.T) {
		loaded, err := repo.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		require.NoError(t, loaded.Suspend("member request", fx.plan.Policy, shared.Date(2026, time.January, 10)))
		require.NoError(t, repo.SaveWithLock(ctx, loaded))

		found, err := repo.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusSuspended, found.Status)
		assert.Equal(t, loaded.Version, found.Version)
		require.NotNil(t, found.SuspendEndDate)
	})

	t.Run("stale version is a concurrency conflict", func(t *testing.T) {
		stale, err := repo.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		fresh, err := repo.FindByID(ctx, sub.ID)
		require.NoError(t, err)

		require.NoError(t, fresh.Cancel("moved away", shared.Date(2026, time.January, 11)))
		require.NoError(t, repo.SaveWithLock(ctx, fresh))

		require.NoError(t, stale.Terminate("fraud", shared.Date(2026, time.January, 11)))
		err = repo.SaveWithLock(ctx, stale)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("terminal subscriptions are not live", func(t *testing.T) {
		count, err := repo.CountLiveByBillingPeriod(ctx, fx.monthly.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("save with lock on a missing row is not found", func(t *testing.T) {
		ghost := newActiveSubscription(t, fx, "M-404", start)
		err := repo.SaveWithLock(ctx, ghost)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormPlanChangeRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewGormPlanChangeRepository(db)
	subID := uuid.New()

	charge := subscription.NewPlanChange(subID, uuid.New(), uuid.New(), "upgrade", &subscription.ProrationResult{
		OldAmount:     decimal.NewFromInt(100),
		NewAmount:     decimal.NewFromInt(200),
		NetAdjustment: decimal.RequireFromString("50.00"),
		EffectiveDate: shared.Date(2026, time.March, 15),
		ChangeType:    subscription.ChangeUpgrade,
	}, decimal.Zero)
	credit := subscription.NewPlanChange(subID, uuid.New(), uuid.New(), "downgrade", &subscription.ProrationResult{
		OldAmount:     decimal.NewFromInt(200),
		NewAmount:     decimal.NewFromInt(100),
		NetAdjustment: decimal.RequireFromString("-50.00"),
		EffectiveDate: shared.Date(2026, time.March, 16),
		ChangeType:    subscription.ChangeDowngrade,
	}, decimal.Zero)
	require.NoError(t, repo.Save(ctx, charge))
	require.NoError(t, repo.Save(ctx, credit))

	all, err := repo.FindBySubscription(ctx, subID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := repo.FindPendingInvoices(ctx, subID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, charge.ID, pending[0].ID)

	charge.AdjustmentInvoiceRef = "INV-1"
	require.NoError(t, repo.Save(ctx, charge))
	pending, err = repo.FindPendingInvoices(ctx, subID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func newTestSchedule(t *testing.T, subID uuid.UUID) *revenue.RevenueSchedule {
	t.Helper()
	s, err := revenue.NewDeferredSchedule(revenue.ScheduleInput{
		SubscriptionID: subID,
		TotalAmount:    decimal.NewFromInt(1200),
		Currency:       valueobject.USD,
		PeriodStart:    shared.Date(2026, time.January, 1),
		PeriodEnd:      shared.Date(2027, time.January, 1),
		Interval:       billing.MonthlyDuration(),
		Accounts:       billing.LedgerAccounts{DeferredRevenueAccount: "2400", RevenueAccount: "4100"},
	})
	require.NoError(t, err)
	return s
}

func TestGormScheduleRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewGormScheduleRepository(db)
	subID := uuid.New()

	schedule := newTestSchedule(t, subID)
	require.NoError(t, repo.Save(ctx, schedule))

	t.Run("loads lines in sequence", func(t *testing.T) {
		found, err := repo.FindCurrentBySubscription(ctx, subID)
		require.NoError(t, err)
		require.Len(t, found.Lines, 12)
		assert.Equal(t, 1, found.Lines[0].Sequence)
		assert.Equal(t, shared.Date(2026, time.January, 31), found.Lines[0].LineEnd)
		assert.True(t, found.Sum().Equal(decimal.NewFromInt(1200)))
	})

	t.Run("reports an existing period", func(t *testing.T) {
		exists, err := repo.ExistsForPeriod(ctx, subID, shared.Date(2026, time.January, 1))
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = repo.ExistsForPeriod(ctx, subID, shared.Date(2027, time.January, 1))
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("duplicate period is a concurrency conflict", func(t *testing.T) {
		err := repo.Save(ctx, newTestSchedule(t, subID))
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("finds due lines up to the as-of date", func(t *testing.T) {
		lines, err := repo.FindDueLines(ctx, shared.Date(2026, time.March, 1), 0)
		require.NoError(t, err)
		require.Len(t, lines, 2)
		assert.Equal(t, 1, lines[0].Sequence)
		assert.Equal(t, 2, lines[1].Sequence)

		limited, err := repo.FindDueLines(ctx, shared.Date(2026, time.March, 1), 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("a line is recognized at most once", func(t *testing.T) {
		lines, err := repo.FindDueLines(ctx, shared.Date(2026, time.February, 1), 0)
		require.NoError(t, err)
		require.Len(t, lines, 1)

		first := lines[0]
		second := lines[0]
		require.NoError(t, first.MarkRecognized(shared.Date(2026, time.February, 1)))
		require.NoError(t, repo.SaveLine(ctx, &first))

		require.NoError(t, second.MarkRecognized(shared.Date(2026, time.February, 1)))
		assert.ErrorIs(t, repo.SaveLine(ctx, &second), shared.ErrConcurrencyConflict)

		due, err := repo.FindDueLines(ctx, shared.Date(2026, time.February, 1), 0)
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("records a failure on a pending line", func(t *testing.T) {
		lines, err := repo.FindDueLines(ctx, shared.Date(2026, time.March, 1), 0)
		require.NoError(t, err)
		require.Len(t, lines, 1)

		line := lines[0]
		line.RecordFailure(assert.AnError, time.Date(2026, time.March, 1, 2, 0, 0, 0, time.UTC))
		require.NoError(t, repo.SaveLine(ctx, &line))

		found, err := repo.FindByID(ctx, schedule.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, found.Lines[1].FailureCount)
		assert.Equal(t, revenue.LineStatusPending, found.Lines[1].Status)
	})
}

func TestGormScheduleRepository_DueLinesSkipManualReview(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewGormScheduleRepository(db)
	failures := NewGormFailureRepository(db)
	asOf := shared.Date(2026, time.March, 1)

	schedule := newTestSchedule(t, uuid.New())
	require.NoError(t, repo.Save(ctx, schedule))
	first := schedule.Lines[0]

	held, err := processing.NewProcessingFailure(processing.FailureSubject{
		JobType:        processing.JobRecognition,
		SubjectType:    processing.SubjectRecognitionLine,
		SubjectID:      first.ID,
		SubscriptionID: first.SubscriptionID,
		IdempotencyKey: first.IdempotencyKey(),
	}, shared.NewConfigurationError("MISSING_LEDGER_ACCOUNT", "no accounts"), 5, asOf)
	require.NoError(t, err)
	require.Equal(t, processing.FailureManualReview, held.Status)
	require.NoError(t, failures.Save(ctx, held))

	lines, err := repo.FindDueLines(ctx, asOf, 1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Sequence)

	// released lines are due again
	require.NoError(t, held.Resolve("ops", "accounts mapped"))
	require.NoError(t, failures.Save(ctx, held))

	lines, err = repo.FindDueLines(ctx, asOf, 1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, first.ID, lines[0].ID)
}

func TestGormRenewalEventRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewGormRenewalEventRepository(db)
	subID := uuid.New()

	event, err := renewal.NewRenewalEvent(subID, shared.Date(2026, time.June, 1), decimal.NewFromInt(120))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, event))

	t.Run("one event per due date", func(t *testing.T) {
		dup, err := renewal.NewRenewalEvent(subID, shared.Date(2026, time.June, 1), decimal.NewFromInt(120))
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Save(ctx, dup), shared.ErrConcurrencyConflict)
	})

	t.Run("finds by due date", func(t *testing.T) {
		found, err := repo.FindBySubscriptionAndDueDate(ctx, subID, time.Date(2026, time.June, 1, 15, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, event.ID, found.ID)
	})

	t.Run("invoicing moves the event out of pending", func(t *testing.T) {
		loaded, err := repo.FindByID(ctx, event.ID)
		require.NoError(t, err)
		require.NoError(t, loaded.MarkInvoiced("INV-9"))
		require.NoError(t, repo.SaveWithLock(ctx, loaded))

		pending, err := repo.FindByStatus(ctx, renewal.StatusPending, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)

		open, err := repo.FindOpenBySubscription(ctx, subID)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, "INV-9", open[0].InvoiceRef)
	})
}

func TestGormFailureRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewGormFailureRepository(db)
	now := time.Date(2026, time.April, 2, 1, 0, 0, 0, time.UTC)

	subject := processing.FailureSubject{
		JobType:        processing.JobRecognition,
		SubjectType:    processing.SubjectRecognitionLine,
		SubjectID:      uuid.New(),
		SubscriptionID: uuid.New(),
		IdempotencyKey: "revrec:1",
		Payload:        map[string]string{"line": "1"},
	}
	failure, err := processing.NewProcessingFailure(subject, shared.NewProcessingError("LEDGER_DOWN", "ledger unavailable", nil), 3, now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, failure))

	t.Run("finds the unresolved entry of a subject", func(t *testing.T) {
		found, err := repo.FindUnresolved(ctx, subject.JobType, subject.SubjectType, subject.SubjectID)
		require.NoError(t, err)
		assert.Equal(t, failure.ID, found.ID)
		assert.JSONEq(t, `{"line":"1"}`, string(found.Payload))

		open, err := repo.FindOpenBySubject(ctx, subject.JobType, subject.SubjectType, 10)
		require.NoError(t, err)
		assert.Len(t, open, 1)
	})

	t.Run("escalated subjects are blocked", func(t *testing.T) {
		failure.RecordAttempt(shared.NewProcessingError("LEDGER_DOWN", "still down", nil), 2, now.Add(time.Hour))
		require.NoError(t, repo.Save(ctx, failure))

		blocked, err := repo.FindBlockedSubjects(ctx, subject.JobType, subject.SubjectType)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{subject.SubjectID}, blocked)

		count, err := repo.Count(ctx, shared.Filter{Filters: map[string]interface{}{"status": "manual_review"}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("unknown subject is not found", func(t *testing.T) {
		_, err := repo.FindUnresolved(ctx, subject.JobType, subject.SubjectType, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormJobRunRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewGormJobRunRepository(db)

	first := processing.NewJobRun(processing.JobRenewal, shared.Date(2026, time.May, 1), "scheduler", time.Date(2026, time.May, 1, 2, 0, 0, 0, time.UTC))
	second := processing.NewJobRun(processing.JobRenewal, shared.Date(2026, time.May, 2), "manual", time.Date(2026, time.May, 2, 2, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	second.Complete(10, 8, 1, 1, second.StartedAt.Add(time.Minute))
	require.NoError(t, repo.Update(ctx, second))

	latest, err := repo.FindLatest(ctx, processing.JobRenewal)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, 8, latest.Processed)
	assert.NotNil(t, latest.CompletedAt)

	runs, err := repo.FindAll(ctx, shared.Filter{Filters: map[string]interface{}{"job_type": "renewal"}})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)

	_, err = repo.FindLatest(ctx, processing.JobLifecycle)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	ghost := processing.NewJobRun(processing.JobLifecycle, shared.Date(2026, time.May, 1), "manual", time.Now())
	assert.ErrorIs(t, repo.Update(ctx, ghost), shared.ErrNotFound)
}

func TestGormTransactionScope(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	fx := seedCatalog(t, db)
	scope := NewGormTransactionScope(db)
	repos := NewRepositories(db)

	t.Run("commits on success", func(t *testing.T) {
		sub := newActiveSubscription(t, fx, "M-TX1", shared.Date(2026, time.January, 1))
		err := scope.Execute(ctx, func(tx appsub.TransactionalRepositories) error {
			return tx.SubscriptionRepo().Save(ctx, sub)
		})
		require.NoError(t, err)

		_, err = repos.Subscriptions.FindByID(ctx, sub.ID)
		assert.NoError(t, err)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		sub := newActiveSubscription(t, fx, "M-TX2", shared.Date(2026, time.January, 1))
		err := scope.Execute(ctx, func(tx appsub.TransactionalRepositories) error {
			if err := tx.SubscriptionRepo().Save(ctx, sub); err != nil {
				return err
			}
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		_, err = repos.Subscriptions.FindByID(ctx, sub.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
