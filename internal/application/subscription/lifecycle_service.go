package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/subscription"
	"go.uber.org/zap"
)

// LifecycleService applies the automated date-driven transitions
// (active → grace → lapsed, suspended → lapsed)
type LifecycleService struct {
	subscriptionRepo subscription.SubscriptionRepository
	catalog          billing.Catalog
	failures         *failureQueue
	locker           shared.Locker
	clock            shared.Clock
	config           EngineConfig
	eventPublisher   shared.EventPublisher
	logger           *zap.Logger
}

// NewLifecycleService creates a new LifecycleService
func NewLifecycleService(
	subscriptionRepo subscription.SubscriptionRepository,
	failureRepo processing.FailureRepository,
	catalog billing.Catalog,
	clock shared.Clock,
	config EngineConfig,
	logger *zap.Logger,
) *LifecycleService {
	config = config.withDefaults()
	return &LifecycleService{
		subscriptionRepo: subscriptionRepo,
		catalog:          catalog,
		failures:         newFailureQueue(failureRepo, config.MaxFailureAttempts, logger),
		clock:            clock,
		config:           config,
		logger:           logger,
	}
}

// SetLocker sets the per-subscription locker
func (s *LifecycleService) SetLocker(locker shared.Locker) {
	s.locker = locker
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *LifecycleService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// RunLifecycleTransitions evaluates every subscription with a transition
// date before asOf. Re-running for the same date is a no-op; a subscription
// changed by an operator after the run started or on asOf is left alone.
func (s *LifecycleService) RunLifecycleTransitions(ctx context.Context, asOf time.Time) (*BatchResult, error) {
	asOf = shared.TruncateDay(asOf)
	runStartedAt := s.clock.Now()
	tally := newBatchTally(processing.JobLifecycle, asOf, runStartedAt)

	ids, err := s.subscriptionRepo.FindDueForLifecycle(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("find subscriptions due for lifecycle: %w", err)
	}
	blocked, err := s.failures.Blocked(ctx, processing.JobLifecycle, processing.SubjectSubscription)
	if err != nil {
		return nil, fmt.Errorf("find blocked subscriptions: %w", err)
	}

	s.logger.Info("Starting lifecycle transitions",
		zap.String("as_of", shared.FormatDate(asOf)),
		zap.Int("candidates", len(ids)),
	)

	err = runBatch(ctx, itemsOf(processing.SubjectSubscription, ids), s.config.Parallelism, tally,
		func(ctx context.Context, item batchItem) (outcome, error) {
			if _, ok := blocked[item.ID]; ok {
				return outcomeSkipped, nil
			}
			o, err := s.transitionOne(ctx, item, asOf, runStartedAt)
			if err != nil {
				s.failures.Record(ctx, processing.FailureSubject{
					JobType:        processing.JobLifecycle,
					SubjectType:    processing.SubjectSubscription,
					SubjectID:      item.ID,
					SubscriptionID: item.ID,
				}, err, s.clock.Now())
				return outcomeFailed, err
			}
			if o == outcomeProcessed {
				s.failures.Clear(ctx, processing.JobLifecycle, processing.SubjectSubscription, item.ID, s.clock.Now())
			}
			return o, nil
		})

	result := tally.finish(s.clock.Now())
	if err != nil {
		return result, err
	}
	s.logger.Info("Completed lifecycle transitions",
		zap.String("as_of", shared.FormatDate(asOf)),
		zap.Int("total", result.Total),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// transitionOne re-reads the subscription under its lock so a manual
// cancel or terminate that landed first always wins
func (s *LifecycleService) transitionOne(ctx context.Context, item batchItem, asOf, runStartedAt time.Time) (outcome, error) {
	var (
		o   outcome
		sub *subscription.Subscription
	)
	err := withSubscriptionLock(ctx, s.locker, s.config, item.ID, func(ctx context.Context) error {
		return retryOnConflict(ctx, func(ctx context.Context) error {
			var err error
			sub, err = s.subscriptionRepo.FindByID(ctx, item.ID)
			if err != nil {
				return err
			}
			if sub.ManualChangeSince(runStartedAt, asOf) {
				o = outcomeSkipped
				return nil
			}
			plan, err := s.catalog.Plan(ctx, sub.PlanID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return shared.NewConfigurationError("MISSING_PLAN",
						fmt.Sprintf("Plan %s of subscription %s does not exist", sub.PlanID, sub.ID))
				}
				return err
			}
			if err := plan.Policy.Validate(); err != nil {
				return err
			}

			steps := sub.ApplyTransitions(asOf, plan.Policy, s.clock.Now())
			if len(steps) == 0 {
				o = outcomeSkipped
				return nil
			}
			if err := s.subscriptionRepo.SaveWithLock(ctx, sub); err != nil {
				return err
			}
			for _, step := range steps {
				s.logger.Info("Subscription transitioned",
					zap.String("subscription_id", sub.ID.String()),
					zap.String("from", step.From.String()),
					zap.String("to", step.To.String()),
					zap.String("reason", step.Reason),
				)
			}
			o = outcomeProcessed
			return nil
		})
	})
	if err != nil {
		return outcomeFailed, err
	}
	if o == outcomeProcessed && s.eventPublisher != nil {
		if events := sub.GetDomainEvents(); len(events) > 0 {
			_ = s.eventPublisher.Publish(ctx, events...)
		}
		sub.ClearDomainEvents()
	}
	return o, nil
}
