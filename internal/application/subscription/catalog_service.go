package subscription

import (
	"context"
	"errors"

	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/shared/valueobject"
	"github.com/ams/backend/internal/domain/subscription"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CatalogService manages billing periods and plans
type CatalogService struct {
	periodRepo       billing.BillingPeriodRepository
	planRepo         billing.PlanRepository
	subscriptionRepo subscription.SubscriptionRepository
	txScope          TransactionScope
	invalidator      billing.CatalogInvalidator
	eventPublisher   shared.EventPublisher
	logger           *zap.Logger
}

// NewCatalogService creates a new CatalogService
func NewCatalogService(
	periodRepo billing.BillingPeriodRepository,
	planRepo billing.PlanRepository,
	subscriptionRepo subscription.SubscriptionRepository,
	txScope TransactionScope,
	logger *zap.Logger,
) *CatalogService {
	return &CatalogService{
		periodRepo:       periodRepo,
		planRepo:         planRepo,
		subscriptionRepo: subscriptionRepo,
		txScope:          txScope,
		logger:           logger,
	}
}

// SetInvalidator sets the cache to invalidate after writes
func (s *CatalogService) SetInvalidator(invalidator billing.CatalogInvalidator) {
	s.invalidator = invalidator
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *CatalogService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// CreateBillingPeriod creates a billing period, optionally as the default
func (s *CatalogService) CreateBillingPeriod(ctx context.Context, req CreateBillingPeriodRequest) (*BillingPeriodResponse, error) {
	bp, err := billing.NewBillingPeriod(req.Code, req.Name, req.Value, billing.DurationUnit(req.Unit))
	if err != nil {
		return nil, err
	}
	exists, err := s.periodRepo.ExistsByCode(ctx, bp.Code)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "Billing period code already exists")
	}
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if req.IsDefault {
			if err := s.clearDefault(ctx, repos.BillingPeriodRepo()); err != nil {
				return err
			}
			if err := bp.MarkDefault(); err != nil {
				return err
			}
		}
		return repos.BillingPeriodRepo().Save(ctx, bp)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, bp.GetDomainEvents()...)
	bp.ClearDomainEvents()

	s.logger.Info("Billing period created",
		zap.String("billing_period_id", bp.ID.String()),
		zap.String("code", bp.Code),
		zap.String("duration", bp.Duration.String()),
	)
	resp := ToBillingPeriodResponse(bp)
	return &resp, nil
}

// GetBillingPeriod retrieves a billing period by ID
func (s *CatalogService) GetBillingPeriod(ctx context.Context, id uuid.UUID) (*BillingPeriodResponse, error) {
	bp, err := s.periodRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToBillingPeriodResponse(bp)
	return &resp, nil
}

// ListBillingPeriods lists billing periods
func (s *CatalogService) ListBillingPeriods(ctx context.Context, filter CatalogListFilter) ([]BillingPeriodResponse, error) {
	f := toFilter(filter.Page, filter.PageSize, "code", "asc")
	f.Search = filter.Search
	if filter.ActiveOnly {
		f.Filters["active"] = true
	}
	periods, err := s.periodRepo.FindAll(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]BillingPeriodResponse, len(periods))
	for i := range periods {
		out[i] = ToBillingPeriodResponse(&periods[i])
	}
	return out, nil
}

// SetDefaultBillingPeriod makes id the single system default
func (s *CatalogService) SetDefaultBillingPeriod(ctx context.Context, id uuid.UUID) (*BillingPeriodResponse, error) {
	bp, err := s.periodRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if bp.IsDefault {
		resp := ToBillingPeriodResponse(bp)
		return &resp, nil
	}
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := s.clearDefault(ctx, repos.BillingPeriodRepo()); err != nil {
			return err
		}
		if err := bp.MarkDefault(); err != nil {
			return err
		}
		return repos.BillingPeriodRepo().Save(ctx, bp)
	})
	if err != nil {
		return nil, err
	}
	s.invalidatePeriod(bp.ID)
	resp := ToBillingPeriodResponse(bp)
	return &resp, nil
}

// UpdateBillingPeriodDuration changes the duration of a billing period that
// no live subscription uses
func (s *CatalogService) UpdateBillingPeriodDuration(ctx context.Context, id uuid.UUID, req UpdateBillingPeriodRequest) (*BillingPeriodResponse, error) {
	bp, err := s.periodRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	live, err := s.subscriptionRepo.CountLiveByBillingPeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := bp.ChangeDuration(req.Value, billing.DurationUnit(req.Unit), live > 0); err != nil {
		return nil, err
	}
	if err := s.periodRepo.Save(ctx, bp); err != nil {
		return nil, err
	}
	s.invalidatePeriod(bp.ID)
	resp := ToBillingPeriodResponse(bp)
	return &resp, nil
}

// CreatePlan creates a plan with its recognition and ledger configuration
func (s *CatalogService) CreatePlan(ctx context.Context, req CreatePlanRequest) (*PlanResponse, error) {
	currency, err := valueobject.ParseCurrency(req.Currency)
	if err != nil {
		return nil, shared.NewValidationError("INVALID_CURRENCY", err.Error())
	}
	period, err := s.periodRepo.FindByID(ctx, req.BillingPeriodID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewConfigurationError("MISSING_BILLING_PERIOD", "Billing period does not exist")
		}
		return nil, err
	}
	if req.RecognitionIntervalID != nil {
		if _, err := s.periodRepo.FindByID(ctx, *req.RecognitionIntervalID); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, shared.NewConfigurationError("MISSING_RECOGNITION_INTERVAL", "Recognition interval billing period does not exist")
			}
			return nil, err
		}
	}

	plan, err := billing.NewPlan(req.Code, req.Name, req.Amount, currency, period.ID)
	if err != nil {
		return nil, err
	}
	exists, err := s.planRepo.ExistsByCode(ctx, plan.Code)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "Plan code already exists")
	}

	if err := plan.ConfigureRecognition(billing.RecognitionMethod(req.RecognitionMethod), req.RecognitionIntervalID); err != nil {
		return nil, err
	}
	if err := plan.ConfigureLedgerAccounts(billing.LedgerAccounts{
		DeferredRevenueAccount: req.DeferredRevenueAccount,
		RevenueAccount:         req.RevenueAccount,
	}); err != nil {
		return nil, err
	}
	policy := plan.Policy
	if req.GracePeriodDays != nil {
		policy.GracePeriodDays = *req.GracePeriodDays
	}
	if req.SuspendDays != nil {
		policy.SuspendDays = *req.SuspendDays
	}
	if err := plan.ConfigureLifecycle(policy); err != nil {
		return nil, err
	}
	notice := plan.RenewalNoticeDays
	if req.RenewalNoticeDays != nil {
		notice = *req.RenewalNoticeDays
	}
	reminders := plan.ReminderDays
	if req.ReminderDays != nil {
		reminders = billing.DayOffsets(req.ReminderDays)
	}
	autoRenew := plan.AutoRenewDefault
	if req.AutoRenew != nil {
		autoRenew = *req.AutoRenew
	}
	if err := plan.ConfigureRenewal(notice, reminders, autoRenew, period.TotalDaysApprox()); err != nil {
		return nil, err
	}
	plan.EnablePerSeat(req.PerSeat)

	if err := s.planRepo.Save(ctx, plan); err != nil {
		return nil, err
	}
	s.publish(ctx, plan.GetDomainEvents()...)
	plan.ClearDomainEvents()

	s.logger.Info("Plan created",
		zap.String("plan_id", plan.ID.String()),
		zap.String("code", plan.Code),
		zap.String("amount", plan.Amount.StringFixed(2)),
		zap.String("recognition_method", plan.RecognitionMethod.String()),
	)
	resp := ToPlanResponse(plan)
	return &resp, nil
}

// GetPlan retrieves a plan by ID
func (s *CatalogService) GetPlan(ctx context.Context, id uuid.UUID) (*PlanResponse, error) {
	plan, err := s.planRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToPlanResponse(plan)
	return &resp, nil
}

// ListPlans lists plans
func (s *CatalogService) ListPlans(ctx context.Context, filter CatalogListFilter) ([]PlanResponse, error) {
	f := toFilter(filter.Page, filter.PageSize, "code", "asc")
	f.Search = filter.Search
	if filter.ActiveOnly {
		f.Filters["active"] = true
	}
	plans, err := s.planRepo.FindAll(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]PlanResponse, len(plans))
	for i := range plans {
		out[i] = ToPlanResponse(&plans[i])
	}
	return out, nil
}

// DeactivatePlan hides a plan from new subscriptions
func (s *CatalogService) DeactivatePlan(ctx context.Context, id uuid.UUID) (*PlanResponse, error) {
	plan, err := s.planRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	plan.Deactivate()
	if err := s.planRepo.Save(ctx, plan); err != nil {
		return nil, err
	}
	if s.invalidator != nil {
		s.invalidator.InvalidatePlan(plan.ID)
	}
	resp := ToPlanResponse(plan)
	return &resp, nil
}

func (s *CatalogService) clearDefault(ctx context.Context, repo billing.BillingPeriodRepository) error {
	current, err := repo.FindDefault(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	current.ClearDefault()
	if err := repo.Save(ctx, current); err != nil {
		return err
	}
	s.invalidatePeriod(current.ID)
	return nil
}

func (s *CatalogService) invalidatePeriod(id uuid.UUID) {
	if s.invalidator != nil {
		s.invalidator.InvalidateBillingPeriod(id)
	}
}

func (s *CatalogService) publish(ctx context.Context, events ...shared.DomainEvent) {
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish catalog events", zap.Error(err))
	}
}
