package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/renewal"
	"github.com/ams/backend/internal/domain/revenue"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/subscription"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RenewalService generates renewal invoices ahead of paid-through dates,
// sends reminders and confirms renewals once invoices are paid
type RenewalService struct {
	txScope          TransactionScope
	subscriptionRepo subscription.SubscriptionRepository
	renewalRepo      renewal.RenewalEventRepository
	planChangeRepo   subscription.PlanChangeRepository
	catalog          billing.Catalog
	invoicing        renewal.Invoicing
	notifier         subscription.Notifier
	reminders        shared.IdempotencyStore
	recognition      *RecognitionService
	balance          *balanceChecker
	adjustments      *adjustmentInvoicer
	failures         *failureQueue
	locker           shared.Locker
	clock            shared.Clock
	config           EngineConfig
	eventPublisher   shared.EventPublisher
	logger           *zap.Logger
}

// NewRenewalService creates a new RenewalService
func NewRenewalService(
	txScope TransactionScope,
	repos Repositories,
	catalog billing.Catalog,
	collaborators Collaborators,
	recognition *RecognitionService,
	clock shared.Clock,
	config EngineConfig,
	logger *zap.Logger,
) *RenewalService {
	config = config.withDefaults()
	failures := newFailureQueue(repos.Failures, config.MaxFailureAttempts, logger)
	return &RenewalService{
		txScope:          txScope,
		subscriptionRepo: repos.Subscriptions,
		renewalRepo:      repos.Renewals,
		planChangeRepo:   repos.PlanChanges,
		catalog:          catalog,
		invoicing:        collaborators.Invoicing,
		notifier:         collaborators.Notifier,
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
		failures: failures,
		clock:    clock,
		config:   config,
		logger:   logger,
	}
}

// SetLocker sets the per-subscription locker
func (s *RenewalService) SetLocker(locker shared.Locker) {
	s.locker = locker
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *RenewalService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetReminderStore sets the store that deduplicates reminder sends
func (s *RenewalService) SetReminderStore(store shared.IdempotencyStore) {
	s.reminders = store
}

// RunRenewalGeneration sends due reminders, invoices renewals inside the
// notice window, confirms paid renewals and retries queued adjustment
// invoices
func (s *RenewalService) RunRenewalGeneration(ctx context.Context, asOf time.Time) (*BatchResult, error) {
	asOf = shared.TruncateDay(asOf)
	tally := newBatchTally(processing.JobRenewal, asOf, s.clock.Now())

	horizon := shared.AddDays(asOf, s.config.RenewalLookaheadDays)
	ids, err := s.subscriptionRepo.FindRenewable(ctx, horizon)
	if err != nil {
		return nil, fmt.Errorf("find renewable subscriptions: %w", err)
	}
	blockedSubs, err := s.failures.Blocked(ctx, processing.JobRenewal, processing.SubjectSubscription)
	if err != nil {
		return nil, fmt.Errorf("find blocked subscriptions: %w", err)
	}
	blockedEvents, err := s.failures.Blocked(ctx, processing.JobRenewal, processing.SubjectRenewalEvent)
	if err != nil {
		return nil, fmt.Errorf("find blocked renewal events: %w", err)
	}

	s.logger.Info("Starting renewal generation",
		zap.String("as_of", shared.FormatDate(asOf)),
		zap.Int("candidates", len(ids)),
	)

	err = runBatch(ctx, itemsOf(processing.SubjectSubscription, ids), s.config.Parallelism, tally,
		func(ctx context.Context, item batchItem) (outcome, error) {
			if _, ok := blockedSubs[item.ID]; ok {
				return outcomeSkipped, nil
			}
			return s.renewOne(ctx, item.ID, asOf, blockedEvents)
		})
	if err != nil {
		return tally.finish(s.clock.Now()), err
	}

	if err := s.pollSettlements(ctx, tally, blockedEvents); err != nil {
		return tally.finish(s.clock.Now()), err
	}
	if err := s.retryAdjustments(ctx, tally); err != nil {
		return tally.finish(s.clock.Now()), err
	}

	result := tally.finish(s.clock.Now())
	s.logger.Info("Completed renewal generation",
		zap.String("as_of", shared.FormatDate(asOf)),
		zap.Int("total", result.Total),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// renewOne handles reminders and invoice generation for one subscription
func (s *RenewalService) renewOne(ctx context.Context, id uuid.UUID, asOf time.Time, blockedEvents map[uuid.UUID]struct{}) (outcome, error) {
	sub, err := s.subscriptionRepo.FindByID(ctx, id)
	if err != nil {
		return outcomeFailed, err
	}
	if !sub.Status.IsLive() || !sub.AutoRenew || sub.PaidThroughDate == nil {
		return outcomeSkipped, nil
	}
	plan, err := s.catalog.Plan(ctx, sub.PlanID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			err = shared.NewConfigurationError("MISSING_PLAN",
				fmt.Sprintf("Plan %s of subscription %s does not exist", sub.PlanID, sub.ID))
		}
		s.recordSubscriptionFailure(ctx, sub.ID, err)
		return outcomeFailed, err
	}

	dueDate := *sub.PaidThroughDate
	reminded := s.sendReminder(ctx, sub, plan, dueDate, asOf)

	if asOf.Before(shared.AddDays(dueDate, -plan.RenewalNoticeDays)) {
		if reminded {
			return outcomeProcessed, nil
		}
		return outcomeSkipped, nil
	}

	var o outcome
	err = withSubscriptionLock(ctx, s.locker, s.config, sub.ID, func(ctx context.Context) error {
		var err error
		o, err = s.generate(ctx, sub.ID, dueDate, blockedEvents)
		return err
	})
	if err != nil {
		return outcomeFailed, err
	}
	if o == outcomeSkipped && reminded {
		o = outcomeProcessed
	}
	return o, nil
}

// generate creates or reuses the renewal event for dueDate and requests its
// invoice. The event's idempotency key makes repeated requests safe.
func (s *RenewalService) generate(ctx context.Context, subscriptionID uuid.UUID, dueDate time.Time, blockedEvents map[uuid.UUID]struct{}) (outcome, error) {
	// re-read under the lock: a manual cancel or terminate wins
	sub, err := s.subscriptionRepo.FindByID(ctx, subscriptionID)
	if err != nil {
		return outcomeFailed, err
	}
	if !sub.Status.IsLive() || !sub.AutoRenew || sub.PaidThroughDate == nil || !sub.PaidThroughDate.Equal(dueDate) {
		return outcomeSkipped, nil
	}

	event, err := s.renewalRepo.FindBySubscriptionAndDueDate(ctx, sub.ID, dueDate)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return outcomeFailed, err
	}
	if event != nil {
		if !event.Status.CanInvoice() {
			return outcomeSkipped, nil
		}
		if _, ok := blockedEvents[event.ID]; ok {
			return outcomeSkipped, nil
		}
	}

	outstanding, err := s.balance.Outstanding(ctx, sub.ID)
	if err != nil {
		return outcomeFailed, err
	}
	if outstanding.IsPositive() {
		s.logger.Info("Renewal held for outstanding balance",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("outstanding", outstanding.StringFixed(2)),
		)
		return outcomeSkipped, nil
	}

	if event == nil {
		event, err = renewal.NewRenewalEvent(sub.ID, dueDate, sub.Amount)
		if err != nil {
			s.recordSubscriptionFailure(ctx, sub.ID, err)
			return outcomeFailed, err
		}
		if err := s.renewalRepo.Save(ctx, event); err != nil {
			return outcomeFailed, err
		}
	}

	ref, err := s.invoicing.CreateInvoice(ctx, sub.SubscriberRef, event.Amount, event.DueDate, event.IdempotencyKey())
	if err != nil {
		perr := shared.NewProcessingError("INVOICE_FAILED", "create renewal invoice", err)
		if markErr := event.MarkFailed(perr.Error()); markErr == nil {
			if saveErr := s.renewalRepo.SaveWithLock(ctx, event); saveErr != nil {
				s.logger.Error("Failed to save renewal failure",
					zap.String("renewal_event_id", event.ID.String()),
					zap.Error(saveErr),
				)
			}
		}
		s.failures.Record(ctx, processing.FailureSubject{
			JobType:        processing.JobRenewal,
			SubjectType:    processing.SubjectRenewalEvent,
			SubjectID:      event.ID,
			SubscriptionID: sub.ID,
			IdempotencyKey: event.IdempotencyKey(),
		}, perr, s.clock.Now())
		return outcomeFailed, perr
	}

	if err := event.MarkInvoiced(ref); err != nil {
		return outcomeFailed, err
	}
	if err := s.renewalRepo.SaveWithLock(ctx, event); err != nil {
		return outcomeFailed, err
	}
	s.failures.Clear(ctx, processing.JobRenewal, processing.SubjectRenewalEvent, event.ID, s.clock.Now())
	s.publishEvents(ctx, event.GetDomainEvents()...)
	event.ClearDomainEvents()

	s.logger.Info("Renewal invoiced",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("renewal_event_id", event.ID.String()),
		zap.String("due_date", shared.FormatDate(event.DueDate)),
		zap.String("invoice_ref", ref),
	)
	return outcomeProcessed, nil
}

// sendReminder sends the renewal reminder when asOf is one of the plan's
// reminder offsets before dueDate. It never fails the record.
func (s *RenewalService) sendReminder(ctx context.Context, sub *subscription.Subscription, plan *billing.Plan, dueDate, asOf time.Time) bool {
	if s.notifier == nil {
		return false
	}
	days := shared.DaysBetween(asOf, dueDate)
	if days < 0 || !plan.ReminderDays.Contains(days) {
		return false
	}

	key := fmt.Sprintf("reminder:%s:%s:%d", sub.ID, shared.FormatDate(dueDate), days)
	if s.reminders != nil {
		fresh, err := s.reminders.MarkProcessed(ctx, key, s.config.ReminderTTL)
		if err != nil {
			s.logger.Warn("Reminder dedupe check failed", zap.String("key", key), zap.Error(err))
			return false
		}
		if !fresh {
			return false
		}
	}

	err := s.notifier.SendReminder(ctx, sub.SubscriberRef, subscription.TemplateRenewalReminder, map[string]any{
		"subscription_id": sub.ID.String(),
		"plan_code":       plan.Code,
		"plan_name":       plan.Name,
		"due_date":        shared.FormatDate(dueDate),
		"days_remaining":  days,
		"amount":          sub.Amount.StringFixed(2),
		"currency":        string(sub.Currency),
	})
	if err != nil {
		s.logger.Warn("Renewal reminder failed",
			zap.String("subscription_id", sub.ID.String()),
			zap.Int("days_before", days),
			zap.Error(err),
		)
		return false
	}
	s.logger.Debug("Renewal reminder sent",
		zap.String("subscription_id", sub.ID.String()),
		zap.Int("days_before", days),
	)
	return true
}

// pollSettlements confirms invoiced renewals whose invoice has been paid
func (s *RenewalService) pollSettlements(ctx context.Context, tally *batchTally, blockedEvents map[uuid.UUID]struct{}) error {
	events, err := s.renewalRepo.FindByStatus(ctx, renewal.StatusInvoiced, s.config.BatchSize)
	if err != nil {
		return fmt.Errorf("find invoiced renewals: %w", err)
	}
	ids := make([]uuid.UUID, len(events))
	refs := make(map[uuid.UUID]string, len(events))
	for i := range events {
		ids[i] = events[i].ID
		refs[events[i].ID] = events[i].InvoiceRef
	}

	return runBatch(ctx, itemsOf(processing.SubjectRenewalEvent, ids), s.config.Parallelism, tally,
		func(ctx context.Context, item batchItem) (outcome, error) {
			if _, ok := blockedEvents[item.ID]; ok {
				return outcomeSkipped, nil
			}
			status, err := s.invoicing.GetInvoiceStatus(ctx, refs[item.ID])
			if err != nil {
				perr := shared.NewProcessingError("INVOICE_STATUS_FAILED", "get renewal invoice status", err)
				s.recordEventFailure(ctx, item.ID, perr)
				return outcomeFailed, perr
			}
			if !status.Paid {
				return outcomeSkipped, nil
			}
			if _, err := s.ConfirmRenewal(ctx, item.ID); err != nil {
				s.recordEventFailure(ctx, item.ID, err)
				return outcomeFailed, err
			}
			return outcomeProcessed, nil
		})
}

// retryAdjustments re-requests queued plan change adjustment invoices
func (s *RenewalService) retryAdjustments(ctx context.Context, tally *batchTally) error {
	open, err := s.failures.repo.FindOpenBySubject(ctx, processing.JobRenewal, processing.SubjectPlanChange, s.config.BatchSize)
	if err != nil {
		return fmt.Errorf("find queued adjustment invoices: %w", err)
	}
	for i := range open {
		entry := &open[i]
		item := batchItem{SubjectType: processing.SubjectPlanChange, ID: entry.SubjectID}

		sub, err := s.subscriptionRepo.FindByID(ctx, entry.SubscriptionID)
		if err != nil {
			tally.add(item, outcomeFailed, err)
			continue
		}
		pending, err := s.planChangeRepo.FindPendingInvoices(ctx, sub.ID)
		if err != nil {
			tally.add(item, outcomeFailed, err)
			continue
		}
		var pc *subscription.PlanChange
		for j := range pending {
			if pending[j].ID == entry.SubjectID {
				pc = &pending[j]
				break
			}
		}
		if pc == nil {
			// invoiced in the meantime
			s.failures.Clear(ctx, processing.JobRenewal, processing.SubjectPlanChange, entry.SubjectID, s.clock.Now())
			tally.add(item, outcomeSkipped, nil)
			continue
		}
		if err := s.adjustments.Invoice(ctx, sub, pc); err != nil {
			tally.add(item, outcomeFailed, err)
			continue
		}
		tally.add(item, outcomeProcessed, nil)
	}
	return nil
}

// ConfirmRenewal records a renewal payment: the event is confirmed, the
// paid period extended and the next revenue schedule created in one
// transaction. Confirming an already confirmed event is a no-op.
func (s *RenewalService) ConfirmRenewal(ctx context.Context, eventID uuid.UUID) (*RenewalEventResponse, error) {
	event, err := s.renewalRepo.FindByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status == renewal.StatusConfirmed {
		resp := ToRenewalEventResponse(event)
		return &resp, nil
	}

	var (
		sub         *subscription.Subscription
		plan        *billing.Plan
		schedule    *revenue.RevenueSchedule
		periodStart time.Time
		changed     bool
	)
	err = withSubscriptionLock(ctx, s.locker, s.config, event.SubscriptionID, func(ctx context.Context) error {
		return retryOnConflict(ctx, func(ctx context.Context) error {
			var err error
			if event, err = s.renewalRepo.FindByID(ctx, eventID); err != nil {
				return err
			}
			if sub, err = s.subscriptionRepo.FindByID(ctx, event.SubscriptionID); err != nil {
				return err
			}
			if plan, err = s.catalog.Plan(ctx, sub.PlanID); err != nil {
				return configurationIfMissing(err, "MISSING_PLAN", "Plan of subscription does not exist")
			}
			period, err := s.catalog.BillingPeriod(ctx, sub.BillingPeriodID)
			if err != nil {
				return configurationIfMissing(err, "MISSING_BILLING_PERIOD", "Billing period of subscription does not exist")
			}

			now := s.clock.Now()
			if changed, err = event.Confirm(now); err != nil || !changed {
				return err
			}
			periodStart = *sub.PaidThroughDate
			if err := sub.ConfirmRenewal(period, event.DueDate, now); err != nil {
				return err
			}
			return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
				if err := repos.RenewalRepo().SaveWithLock(ctx, event); err != nil {
					return err
				}
				if err := repos.SubscriptionRepo().SaveWithLock(ctx, sub); err != nil {
					return err
				}
				schedule, err = s.recognition.CreateSchedule(ctx, repos, sub, plan, event.Amount, periodStart, *sub.PaidThroughDate)
				return err
			})
		})
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		resp := ToRenewalEventResponse(event)
		return &resp, nil
	}

	s.publishEvents(ctx, event.GetDomainEvents()...)
	event.ClearDomainEvents()
	s.publishEvents(ctx, sub.GetDomainEvents()...)
	sub.ClearDomainEvents()
	s.recognition.PublishSchedule(ctx, schedule)
	s.recognition.PostImmediate(ctx, sub, plan, event.Amount, periodStart, s.clock.Now())
	s.failures.Clear(ctx, processing.JobRenewal, processing.SubjectRenewalEvent, event.ID, s.clock.Now())

	s.logger.Info("Renewal confirmed",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("renewal_event_id", event.ID.String()),
		zap.String("paid_through", shared.FormatDate(*sub.PaidThroughDate)),
	)
	resp := ToRenewalEventResponse(event)
	return &resp, nil
}

// ListRenewals lists the renewal events of a subscription
func (s *RenewalService) ListRenewals(ctx context.Context, subscriptionID uuid.UUID) ([]RenewalEventResponse, error) {
	if _, err := s.subscriptionRepo.FindByID(ctx, subscriptionID); err != nil {
		return nil, err
	}
	events, err := s.renewalRepo.FindBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	out := make([]RenewalEventResponse, len(events))
	for i := range events {
		out[i] = ToRenewalEventResponse(&events[i])
	}
	return out, nil
}

func (s *RenewalService) recordSubscriptionFailure(ctx context.Context, id uuid.UUID, cause error) {
	s.failures.Record(ctx, processing.FailureSubject{
		JobType:        processing.JobRenewal,
		SubjectType:    processing.SubjectSubscription,
		SubjectID:      id,
		SubscriptionID: id,
	}, cause, s.clock.Now())
}

func (s *RenewalService) recordEventFailure(ctx context.Context, eventID uuid.UUID, cause error) {
	subject := processing.FailureSubject{
		JobType:     processing.JobRenewal,
		SubjectType: processing.SubjectRenewalEvent,
		SubjectID:   eventID,
	}
	if event, err := s.renewalRepo.FindByID(ctx, eventID); err == nil {
		subject.SubscriptionID = event.SubscriptionID
		subject.IdempotencyKey = event.IdempotencyKey()
	}
	s.failures.Record(ctx, subject, cause, s.clock.Now())
}

func (s *RenewalService) publishEvents(ctx context.Context, events ...shared.DomainEvent) {
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish renewal events", zap.Error(err))
	}
}

func configurationIfMissing(err error, code, message string) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewConfigurationError(code, message)
	}
	return err
}
