package subscription

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/renewal"
	"github.com/ams/backend/internal/domain/revenue"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/shared/valueobject"
	"github.com/ams/backend/internal/domain/subscription"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Mock collaborators

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) GetSubscriber(ctx context.Context, ref string) (*subscription.SubscriberInfo, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.SubscriberInfo), args.Error(1)
}

type mockInvoicing struct {
	mock.Mock
}

func (m *mockInvoicing) CreateInvoice(ctx context.Context, subscriptionRef string, amount decimal.Decimal, dueDate time.Time, idempotencyKey string) (string, error) {
	args := m.Called(ctx, subscriptionRef, amount, dueDate, idempotencyKey)
	return args.String(0), args.Error(1)
}

func (m *mockInvoicing) GetInvoiceStatus(ctx context.Context, invoiceRef string) (*renewal.InvoiceStatus, error) {
	args := m.Called(ctx, invoiceRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*renewal.InvoiceStatus), args.Error(1)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) PostJournalEntry(ctx context.Context, entry revenue.JournalEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendReminder(ctx context.Context, subscriberRef, templateID string, data map[string]any) error {
	args := m.Called(ctx, subscriberRef, templateID, data)
	return args.Error(0)
}

// testClock is a settable clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to the given business date at 09:00
func (c *testClock) Set(date time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = shared.TruncateDay(date).Add(9 * time.Hour)
}

// Advance moves the clock forward within the same day
func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// engineEnv wires every service over in-memory repositories
type engineEnv struct {
	ctx   context.Context
	clock *testClock

	subs      *memSubscriptionRepo
	changes   *memPlanChangeRepo
	schedules *memScheduleRepo
	renewals  *memRenewalRepo
	failures  *memFailureRepo
	runs      *memJobRunRepo
	periods   *memBillingPeriodRepo
	plans     *memPlanRepo

	directory *mockDirectory
	invoicing *mockInvoicing
	ledger    *mockLedger
	notifier  *mockNotifier
	publisher *recordingPublisher
	reminders *memIdempotencyStore

	monthly *billing.BillingPeriod
	annual  *billing.BillingPeriod
	basic   *billing.Plan // 1200 USD / year, deferred monthly
	premium *billing.Plan // 1800 USD / year, deferred monthly
	event   *billing.Plan // 300 USD / year, immediate

	monthlyPlan *billing.Plan // 100 USD / month, deferred, 14 day grace

	catalogSvc      *CatalogService
	subscriptionSvc *SubscriptionService
	lifecycleSvc    *LifecycleService
	renewalSvc      *RenewalService
	recognitionSvc  *RecognitionService
	jobSvc          *JobRunService
	failureSvc      *FailureService
}

func newEngineEnv(t *testing.T) *engineEnv {
	t.Helper()
	env := &engineEnv{
		ctx:       context.Background(),
		clock:     &testClock{},
		subs:      newMemSubscriptionRepo(),
		changes:   newMemPlanChangeRepo(),
		schedules: newMemScheduleRepo(),
		renewals:  newMemRenewalRepo(),
		failures:  newMemFailureRepo(),
		runs:      &memJobRunRepo{},
		periods:   newMemBillingPeriodRepo(),
		plans:     newMemPlanRepo(),
		directory: new(mockDirectory),
		invoicing: new(mockInvoicing),
		ledger:    new(mockLedger),
		notifier:  new(mockNotifier),
		publisher: &recordingPublisher{},
		reminders: &memIdempotencyStore{},
	}
	env.clock.Set(shared.Date(2024, 1, 1))

	env.monthly = env.addPeriod(t, "MONTHLY", 1, billing.UnitMonth)
	env.annual = env.addPeriod(t, "ANNUAL", 1, billing.UnitYear)
	env.basic = env.addPlan(t, "BASIC", 1200, env.annual, billing.RecognitionDeferred)
	env.premium = env.addPlan(t, "PREMIUM", 1800, env.annual, billing.RecognitionDeferred)
	env.event = env.addPlan(t, "EVENT", 300, env.annual, billing.RecognitionImmediate)
	env.monthlyPlan = env.addPlan(t, "MONTHLY", 100, env.monthly, billing.RecognitionDeferred)
	env.monthlyPlan.Policy = billing.LifecyclePolicy{GracePeriodDays: 14, SuspendDays: 60}
	require.NoError(t, env.plans.Save(env.ctx, env.monthlyPlan))

	repos := Repositories{
		Subscriptions:  env.subs,
		PlanChanges:    env.changes,
		Schedules:      env.schedules,
		Renewals:       env.renewals,
		Failures:       env.failures,
		JobRuns:        env.runs,
		BillingPeriods: env.periods,
		Plans:          env.plans,
	}
	txScope := NewNoOpTransactionScope(repos)
	catalog := billing.RepositoryCatalog{Plans: env.plans, BillingPeriods: env.periods}
	collaborators := Collaborators{
		Directory: env.directory,
		Invoicing: env.invoicing,
		Ledger:    env.ledger,
		Notifier:  env.notifier,
	}
	config := DefaultEngineConfig()
	config.Parallelism = 4
	logger := zap.NewNop()

	env.recognitionSvc = NewRecognitionService(env.schedules, env.subs, env.failures, catalog, env.ledger, env.clock, config, logger)
	env.recognitionSvc.SetEventPublisher(env.publisher)

	env.subscriptionSvc = NewSubscriptionService(txScope, repos, catalog, collaborators, env.recognitionSvc, env.clock, config, logger)
	env.subscriptionSvc.SetEventPublisher(env.publisher)

	env.lifecycleSvc = NewLifecycleService(env.subs, env.failures, catalog, env.clock, config, logger)
	env.lifecycleSvc.SetEventPublisher(env.publisher)

	env.renewalSvc = NewRenewalService(txScope, repos, catalog, collaborators, env.recognitionSvc, env.clock, config, logger)
	env.renewalSvc.SetEventPublisher(env.publisher)
	env.renewalSvc.SetReminderStore(env.reminders)

	env.catalogSvc = NewCatalogService(env.periods, env.plans, env.subs, txScope, logger)
	env.jobSvc = NewJobRunService(env.runs, env.lifecycleSvc, env.renewalSvc, env.recognitionSvc, env.clock, logger)
	env.failureSvc = NewFailureService(env.failures, logger)
	return env
}

func (env *engineEnv) addPeriod(t *testing.T, code string, value int, unit billing.DurationUnit) *billing.BillingPeriod {
	t.Helper()
	bp, err := billing.NewBillingPeriod(code, code, value, unit)
	require.NoError(t, err)
	require.NoError(t, env.periods.Save(env.ctx, bp))
	return bp
}

func (env *engineEnv) addPlan(t *testing.T, code string, amount int64, period *billing.BillingPeriod, method billing.RecognitionMethod) *billing.Plan {
	t.Helper()
	p, err := billing.NewPlan(code, code, decimal.NewFromInt(amount), valueobject.USD, period.ID)
	require.NoError(t, err)
	var interval *uuid.UUID
	if method == billing.RecognitionDeferred {
		interval = &env.monthly.ID
	}
	require.NoError(t, p.ConfigureRecognition(method, interval))
	require.NoError(t, p.ConfigureLedgerAccounts(billing.LedgerAccounts{
		DeferredRevenueAccount: "2400",
		RevenueAccount:         "4000",
	}))
	require.NoError(t, env.plans.Save(env.ctx, p))
	return p
}

// activeSubscriber makes the directory know ref as an active member
func (env *engineEnv) activeSubscriber(ref string) {
	env.directory.On("GetSubscriber", mock.Anything, ref).Return(&subscription.SubscriberInfo{
		Ref:    ref,
		Status: subscription.SubscriberActive,
	}, nil).Maybe()
}

// activate creates and activates a subscription on plan starting at start.
// The clock is left on start.
func (env *engineEnv) activate(t *testing.T, plan *billing.Plan, ref string, start time.Time) uuid.UUID {
	t.Helper()
	env.activeSubscriber(ref)
	env.clock.Set(start)
	created, err := env.subscriptionSvc.CreateSubscription(env.ctx, CreateSubscriptionRequest{
		SubscriberRef: ref,
		PlanID:        plan.ID,
		StartDate:     shared.FormatDate(start),
	})
	require.NoError(t, err)
	_, err = env.subscriptionSvc.Activate(env.ctx, created.ID, StatusChangeRequest{})
	require.NoError(t, err)
	return created.ID
}

func (env *engineEnv) subscription(t *testing.T, id uuid.UUID) *subscription.Subscription {
	t.Helper()
	sub, err := env.subs.FindByID(env.ctx, id)
	require.NoError(t, err)
	return sub
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// decimalEq matches a decimal argument by value
func decimalEq(want string) any {
	return mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(dec(want))
	})
}
