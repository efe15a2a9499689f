package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/renewal"
	"github.com/ams/backend/internal/domain/revenue"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/subscription"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Collaborators groups the external systems the engine calls
type Collaborators struct {
	Directory subscription.Directory
	Invoicing renewal.Invoicing
	Ledger    revenue.Ledger
	Notifier  subscription.Notifier
}

// SubscriptionService handles the user-invoked subscription operations
type SubscriptionService struct {
	txScope          TransactionScope
	subscriptionRepo subscription.SubscriptionRepository
	planChangeRepo   subscription.PlanChangeRepository
	catalog          billing.Catalog
	directory        subscription.Directory
	recognition      *RecognitionService
	balance          *balanceChecker
	adjustments      *adjustmentInvoicer
	calculator       *subscription.ProrationCalculator
	locker           shared.Locker
	clock            shared.Clock
	config           EngineConfig
	eventPublisher   shared.EventPublisher
	logger           *zap.Logger
}

// NewSubscriptionService creates a new SubscriptionService
func NewSubscriptionService(
	txScope TransactionScope,
	repos Repositories,
	catalog billing.Catalog,
	collaborators Collaborators,
	recognition *RecognitionService,
	clock shared.Clock,
	config EngineConfig,
	logger *zap.Logger,
) *SubscriptionService {
	config = config.withDefaults()
	failures := newFailureQueue(repos.Failures, config.MaxFailureAttempts, logger)
	return &SubscriptionService{
		txScope:          txScope,
		subscriptionRepo: repos.Subscriptions,
		planChangeRepo:   repos.PlanChanges,
		catalog:          catalog,
		directory:        collaborators.Directory,
		recognition:      recognition,
		balance: &balanceChecker{
			renewalRepo:    repos.Renewals,
			planChangeRepo: repos.PlanChanges,
			invoicing:      collaborators.Invoicing,
		},
		adjustments: &adjustmentInvoicer{
			planChangeRepo: repos.PlanChanges,
			invoicing:      collaborators.Invoicing,
			failures:       failures,
			clock:          clock,
			logger:         logger,
		},
		calculator: subscription.NewProrationCalculator(),
		clock:      clock,
		config:     config,
		logger:     logger,
	}
}

// SetLocker sets the per-subscription locker
func (s *SubscriptionService) SetLocker(locker shared.Locker) {
	s.locker = locker
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *SubscriptionService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// publishDomainEvents publishes and clears the subscription's pending events
func (s *SubscriptionService) publishDomainEvents(ctx context.Context, sub *subscription.Subscription) {
	if s.eventPublisher == nil {
		sub.ClearDomainEvents()
		return
	}
	events := sub.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	// errors are logged by the event bus, not propagated
	_ = s.eventPublisher.Publish(ctx, events...)
	sub.ClearDomainEvents()
}

// CreateSubscription creates a draft subscription for a known subscriber
func (s *SubscriptionService) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*SubscriptionResponse, error) {
	startDate, err := shared.ParseDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	plan, err := s.lookupPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if _, err := s.lookupSubscriber(ctx, req.SubscriberRef); err != nil {
		return nil, err
	}

	sub, err := subscription.NewSubscription(subscription.NewSubscriptionInput{
		SubscriberRef: req.SubscriberRef,
		Kind:          subscription.Kind(req.Kind),
		StartDate:     startDate,
		SeatCount:     req.SeatCount,
		Attributes:    req.Attributes,
		AutoRenew:     req.AutoRenew,
	}, plan)
	if err != nil {
		return nil, err
	}
	if err := s.subscriptionRepo.Save(ctx, sub); err != nil {
		return nil, err
	}
	s.publishDomainEvents(ctx, sub)

	s.logger.Info("Subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("subscriber_ref", sub.SubscriberRef),
		zap.String("plan", plan.Code),
		zap.String("start_date", shared.FormatDate(sub.StartDate)),
	)
	resp := ToSubscriptionResponse(sub)
	return &resp, nil
}

// GetSubscription retrieves a subscription by ID
func (s *SubscriptionService) GetSubscription(ctx context.Context, id uuid.UUID) (*SubscriptionResponse, error) {
	sub, err := s.subscriptionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToSubscriptionResponse(sub)
	return &resp, nil
}

// ListSubscriptions lists subscriptions with filtering and pagination
func (s *SubscriptionService) ListSubscriptions(ctx context.Context, filter SubscriptionListFilter) ([]SubscriptionResponse, int64, error) {
	f := toFilter(filter.Page, filter.PageSize, filter.OrderBy, filter.OrderDir)
	if filter.Status != "" {
		f.Filters["status"] = filter.Status
	}
	if filter.SubscriberRef != "" {
		f.Filters["subscriber_ref"] = filter.SubscriberRef
	}
	if filter.PlanID != nil {
		f.Filters["plan_id"] = *filter.PlanID
	}
	if filter.Kind != "" {
		f.Filters["kind"] = filter.Kind
	}

	subs, err := s.subscriptionRepo.FindAll(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.subscriptionRepo.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]SubscriptionResponse, len(subs))
	for i := range subs {
		out[i] = ToSubscriptionResponse(&subs[i])
	}
	return out, total, nil
}

// Activate moves a draft subscription to active, creating the first
// revenue schedule in the same transaction
func (s *SubscriptionService) Activate(ctx context.Context, id uuid.UUID, req StatusChangeRequest) (*SubscriptionResponse, error) {
	var (
		sub      *subscription.Subscription
		plan     *billing.Plan
		schedule *revenue.RevenueSchedule
	)
	err := withSubscriptionLock(ctx, s.locker, s.config, id, func(ctx context.Context) error {
		return retryOnConflict(ctx, func(ctx context.Context) error {
			var err error
			sub, err = s.subscriptionRepo.FindByID(ctx, id)
			if err != nil {
				return err
			}
			if plan, err = s.planForProcessing(ctx, sub.PlanID); err != nil {
				return err
			}
			period, err := s.periodFor(ctx, sub.BillingPeriodID)
			if err != nil {
				return err
			}
			info, err := s.lookupSubscriber(ctx, sub.SubscriberRef)
			if err != nil {
				return err
			}
			if info.Status != subscription.SubscriberActive {
				return shared.NewValidationError("SUBSCRIBER_INACTIVE",
					fmt.Sprintf("Subscriber %s is not active in the directory", sub.SubscriberRef))
			}

			if err := sub.Activate(period, reason(req.Reason, "activated"), s.clock.Now()); err != nil {
				return err
			}
			return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
				if err := repos.SubscriptionRepo().SaveWithLock(ctx, sub); err != nil {
					return err
				}
				schedule, err = s.recognition.CreateSchedule(ctx, repos, sub, plan, sub.Amount, *sub.CurrentPeriodStart, *sub.PaidThroughDate)
				return err
			})
		})
	})
	if err != nil {
		return nil, err
	}

	s.publishDomainEvents(ctx, sub)
	s.recognition.PublishSchedule(ctx, schedule)
	s.recognition.PostImmediate(ctx, sub, plan, sub.Amount, *sub.CurrentPeriodStart, s.clock.Now())

	s.logger.Info("Subscription activated",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("paid_through", shared.FormatDate(*sub.PaidThroughDate)),
	)
	resp := ToSubscriptionResponse(sub)
	return &resp, nil
}

// Suspend puts an active or grace subscription on hold
func (s *SubscriptionService) Suspend(ctx context.Context, id uuid.UUID, req StatusChangeRequest) (*SubscriptionResponse, error) {
	return s.mutate(ctx, id, "suspended", func(ctx context.Context, sub *subscription.Subscription, now time.Time) error {
		plan, err := s.lookupPlan(ctx, sub.PlanID)
		if err != nil {
			return err
		}
		return sub.Suspend(req.Reason, plan.Policy, now)
	}, nil)
}

// Terminate ends a subscription and withdraws its unpaid renewals
func (s *SubscriptionService) Terminate(ctx context.Context, id uuid.UUID, req StatusChangeRequest) (*SubscriptionResponse, error) {
	return s.mutate(ctx, id, "terminated", func(_ context.Context, sub *subscription.Subscription, now time.Time) error {
		return sub.Terminate(req.Reason, now)
	}, cancelOpenRenewals)
}

// Cancel ends a subscription at the member's request and withdraws its
// unpaid renewals
func (s *SubscriptionService) Cancel(ctx context.Context, id uuid.UUID, req StatusChangeRequest) (*SubscriptionResponse, error) {
	return s.mutate(ctx, id, "cancelled", func(_ context.Context, sub *subscription.Subscription, now time.Time) error {
		return sub.Cancel(reason(req.Reason, "cancelled by member"), now)
	}, cancelOpenRenewals)
}

// Reinstate returns a suspended, lapsed or terminated subscription to
// active once nothing is owed. When the paid-through date has already
// passed a new period starts today and gets its revenue schedule.
func (s *SubscriptionService) Reinstate(ctx context.Context, id uuid.UUID, req StatusChangeRequest) (*SubscriptionResponse, error) {
	var (
		plan       *billing.Plan
		schedule   *revenue.RevenueSchedule
		restarted  bool
		reinstated *subscription.Subscription
	)
	resp, err := s.mutate(ctx, id, "reinstated", func(ctx context.Context, sub *subscription.Subscription, now time.Time) error {
		restarted, schedule = false, nil
		if !sub.Status.CanReinstate() {
			// report the invalid state without calling invoicing
			_, err := sub.Reinstate(nil, req.Reason, decimal.Zero, now)
			return err
		}
		outstanding, err := s.balance.Outstanding(ctx, sub.ID)
		if err != nil {
			return err
		}
		var period *billing.BillingPeriod
		if sub.PaidThroughDate != nil && sub.PaidThroughDate.Before(shared.TruncateDay(now)) {
			if plan, err = s.planForProcessing(ctx, sub.PlanID); err != nil {
				return err
			}
			if period, err = s.periodFor(ctx, sub.BillingPeriodID); err != nil {
				return err
			}
		}
		restarted, err = sub.Reinstate(period, reason(req.Reason, "reinstated"), outstanding, now)
		return err
	}, func(ctx context.Context, repos TransactionalRepositories, sub *subscription.Subscription) error {
		if !restarted {
			return nil
		}
		reinstated = sub
		var err error
		schedule, err = s.recognition.CreateSchedule(ctx, repos, sub, plan, sub.Amount, *sub.CurrentPeriodStart, *sub.PaidThroughDate)
		return err
	})
	if err != nil {
		return nil, err
	}
	if restarted {
		s.recognition.PublishSchedule(ctx, schedule)
		s.recognition.PostImmediate(ctx, reinstated, plan, reinstated.Amount, *reinstated.CurrentPeriodStart, s.clock.Now())
	}
	return resp, nil
}

// mutate applies one manual transition under the subscription lock and
// saves it in a single transaction, re-reading once on a version conflict
func (s *SubscriptionService) mutate(
	ctx context.Context,
	id uuid.UUID,
	action string,
	apply func(ctx context.Context, sub *subscription.Subscription, now time.Time) error,
	inTx func(ctx context.Context, repos TransactionalRepositories, sub *subscription.Subscription) error,
) (*SubscriptionResponse, error) {
	var sub *subscription.Subscription
	err := withSubscriptionLock(ctx, s.locker, s.config, id, func(ctx context.Context) error {
		return retryOnConflict(ctx, func(ctx context.Context) error {
			var err error
			sub, err = s.subscriptionRepo.FindByID(ctx, id)
			if err != nil {
				return err
			}
			if err := apply(ctx, sub, s.clock.Now()); err != nil {
				return err
			}
			return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
				if err := repos.SubscriptionRepo().SaveWithLock(ctx, sub); err != nil {
					return err
				}
				if inTx != nil {
					return inTx(ctx, repos, sub)
				}
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	s.publishDomainEvents(ctx, sub)

	s.logger.Info("Subscription "+action,
		zap.String("subscription_id", sub.ID.String()),
		zap.String("status", sub.Status.String()),
		zap.String("reason", sub.StatusReason),
	)
	resp := ToSubscriptionResponse(sub)
	return &resp, nil
}

// cancelOpenRenewals withdraws renewal events that were never invoiced
func cancelOpenRenewals(ctx context.Context, repos TransactionalRepositories, sub *subscription.Subscription) error {
	events, err := repos.RenewalRepo().FindOpenBySubscription(ctx, sub.ID)
	if err != nil {
		return err
	}
	for i := range events {
		e := &events[i]
		if e.Status != renewal.StatusPending && e.Status != renewal.StatusFailed {
			continue
		}
		if err := e.Cancel("subscription " + sub.Status.String()); err != nil {
			return err
		}
		if err := repos.RenewalRepo().SaveWithLock(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// PreviewPlanChange computes the proration of a plan change without
// changing anything
func (s *SubscriptionService) PreviewPlanChange(ctx context.Context, id uuid.UUID, req PlanChangeRequest) (*ProrationResponse, error) {
	sub, err := s.subscriptionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	newPlan, result, err := s.prorate(ctx, sub, req)
	if err != nil {
		return nil, err
	}
	pc := subscription.NewPlanChange(sub.ID, sub.PlanID, newPlan.ID, req.Reason, result, s.config.ApprovalThreshold)
	return &ProrationResponse{
		OldPlanID:         sub.PlanID,
		NewPlanID:         newPlan.ID,
		OldAmount:         result.OldAmount,
		NewAmount:         result.NewAmount,
		DaysRemaining:     result.DaysRemaining,
		TotalDaysInPeriod: result.TotalDaysInPeriod,
		CreditAmount:      result.CreditAmount,
		ChargeAmount:      result.ChargeAmount,
		NetAdjustment:     result.NetAdjustment,
		EffectiveDate:     shared.FormatDate(result.EffectiveDate),
		ChangeType:        string(result.ChangeType),
		RequiresApproval:  pc.RequiresApproval,
	}, nil
}

// ApplyPlanChange moves the subscription to the new plan and records the
// change in one transaction, then requests the adjustment invoice when the
// member owes money. An invoicing failure does not undo the change.
func (s *SubscriptionService) ApplyPlanChange(ctx context.Context, id uuid.UUID, req PlanChangeRequest) (*PlanChangeResponse, error) {
	var (
		sub *subscription.Subscription
		pc  *subscription.PlanChange
	)
	err := withSubscriptionLock(ctx, s.locker, s.config, id, func(ctx context.Context) error {
		return retryOnConflict(ctx, func(ctx context.Context) error {
			var err error
			sub, err = s.subscriptionRepo.FindByID(ctx, id)
			if err != nil {
				return err
			}
			newPlan, result, err := s.prorate(ctx, sub, req)
			if err != nil {
				return err
			}
			pc = subscription.NewPlanChange(sub.ID, sub.PlanID, newPlan.ID, req.Reason, result, s.config.ApprovalThreshold)
			if err := sub.ChangePlan(newPlan, result.EffectiveDate); err != nil {
				return err
			}
			return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
				if err := repos.SubscriptionRepo().SaveWithLock(ctx, sub); err != nil {
					return err
				}
				return repos.PlanChangeRepo().Save(ctx, pc)
			})
		})
	})
	if err != nil {
		return nil, err
	}
	s.publishDomainEvents(ctx, sub)

	s.logger.Info("Plan change applied",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("plan_change_id", pc.ID.String()),
		zap.String("change_type", string(pc.ChangeType)),
		zap.String("net_adjustment", pc.NetAdjustment.StringFixed(2)),
		zap.Bool("requires_approval", pc.RequiresApproval),
	)

	if err := s.adjustments.Invoice(ctx, sub, pc); err != nil {
		s.logger.Warn("Adjustment invoice failed, queued for retry",
			zap.String("plan_change_id", pc.ID.String()),
			zap.Error(err),
		)
	}
	resp := ToPlanChangeResponse(pc)
	return &resp, nil
}

// ListPlanChanges lists the plan change history of a subscription
func (s *SubscriptionService) ListPlanChanges(ctx context.Context, id uuid.UUID) ([]PlanChangeResponse, error) {
	if _, err := s.subscriptionRepo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	changes, err := s.planChangeRepo.FindBySubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]PlanChangeResponse, len(changes))
	for i := range changes {
		out[i] = ToPlanChangeResponse(&changes[i])
	}
	return out, nil
}

func (s *SubscriptionService) prorate(ctx context.Context, sub *subscription.Subscription, req PlanChangeRequest) (*billing.Plan, *subscription.ProrationResult, error) {
	effective, err := shared.ParseDate(req.EffectiveDate)
	if err != nil {
		return nil, nil, err
	}
	if !sub.Status.IsLive() || sub.CurrentPeriodStart == nil || sub.PaidThroughDate == nil {
		return nil, nil, shared.NewValidationError("INVALID_STATE",
			fmt.Sprintf("Cannot change plan in %s status", sub.Status))
	}
	if req.NewPlanID == sub.PlanID {
		return nil, nil, shared.NewValidationError("SAME_PLAN", "Subscription is already on this plan")
	}
	newPlan, err := s.lookupPlan(ctx, req.NewPlanID)
	if err != nil {
		return nil, nil, err
	}
	if !newPlan.Active {
		return nil, nil, shared.NewValidationError("INVALID_PLAN", fmt.Sprintf("Plan %s is not active", newPlan.Code))
	}
	if newPlan.Currency != sub.Currency {
		return nil, nil, shared.NewValidationError("CURRENCY_MISMATCH",
			fmt.Sprintf("Plan currency %s differs from subscription currency %s", newPlan.Currency, sub.Currency))
	}
	result, err := s.calculator.Calculate(subscription.ProrationInput{
		OldAmount:          sub.Amount,
		NewAmount:          newPlan.PriceFor(sub.SeatCount),
		Currency:           sub.Currency,
		CurrentPeriodStart: *sub.CurrentPeriodStart,
		PaidThroughDate:    *sub.PaidThroughDate,
		EffectiveDate:      effective,
	})
	if err != nil {
		return nil, nil, err
	}
	return newPlan, result, nil
}

// lookupPlan resolves a plan reference given by a caller
func (s *SubscriptionService) lookupPlan(ctx context.Context, id uuid.UUID) (*billing.Plan, error) {
	plan, err := s.catalog.Plan(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewValidationError("INVALID_PLAN", fmt.Sprintf("Plan %s does not exist", id))
		}
		return nil, err
	}
	return plan, nil
}

// planForProcessing resolves the plan of an existing subscription and
// checks it is fully configured
func (s *SubscriptionService) planForProcessing(ctx context.Context, id uuid.UUID) (*billing.Plan, error) {
	plan, err := s.catalog.Plan(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewConfigurationError("MISSING_PLAN", fmt.Sprintf("Plan %s does not exist", id))
		}
		return nil, err
	}
	if err := plan.ValidateForProcessing(); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *SubscriptionService) periodFor(ctx context.Context, id uuid.UUID) (*billing.BillingPeriod, error) {
	period, err := s.catalog.BillingPeriod(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewConfigurationError("MISSING_BILLING_PERIOD", fmt.Sprintf("Billing period %s does not exist", id))
		}
		return nil, err
	}
	return period, nil
}

func (s *SubscriptionService) lookupSubscriber(ctx context.Context, ref string) (*subscription.SubscriberInfo, error) {
	info, err := s.directory.GetSubscriber(ctx, ref)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewValidationError("UNKNOWN_SUBSCRIBER", fmt.Sprintf("Subscriber %s is not in the directory", ref))
		}
		if shared.IsValidation(err) {
			return nil, err
		}
		return nil, shared.NewProcessingError("DIRECTORY_FAILED", "look up subscriber", err)
	}
	return info, nil
}

// reason returns the operator's reason or a default for optional reasons
func reason(given, fallback string) string {
	if given != "" {
		return given
	}
	return fallback
}
