package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/revenue"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/shared/valueobject"
	"github.com/ams/backend/internal/domain/subscription"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// immediatePosting is the queued payload of a failed immediate recognition
type immediatePosting struct {
	SubscriptionID uuid.UUID              `json:"subscription_id"`
	PeriodStart    time.Time              `json:"period_start"`
	Amount         decimal.Decimal        `json:"amount"`
	Currency       valueobject.Currency   `json:"currency"`
	Accounts       billing.LedgerAccounts `json:"accounts"`
	PostingDate    time.Time              `json:"posting_date"`
}

func (p immediatePosting) entry() revenue.JournalEntry {
	return revenue.ImmediateEntry(p.SubscriptionID, p.PeriodStart, p.Amount, p.Currency, p.Accounts, p.PostingDate)
}

// subjectID derives a stable queue subject from the posting's idempotency key
func (p immediatePosting) subjectID() uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(p.entry().IdempotencyKey))
}

// RecognitionService builds revenue schedules and posts recognized revenue
// to the ledger
type RecognitionService struct {
	scheduleRepo     revenue.ScheduleRepository
	subscriptionRepo subscription.SubscriptionRepository
	catalog          billing.Catalog
	ledger           revenue.Ledger
	failures         *failureQueue
	clock            shared.Clock
	config           EngineConfig
	eventPublisher   shared.EventPublisher
	logger           *zap.Logger
}

// NewRecognitionService creates a new RecognitionService
func NewRecognitionService(
	scheduleRepo revenue.ScheduleRepository,
	subscriptionRepo subscription.SubscriptionRepository,
	failureRepo processing.FailureRepository,
	catalog billing.Catalog,
	ledger revenue.Ledger,
	clock shared.Clock,
	config EngineConfig,
	logger *zap.Logger,
) *RecognitionService {
	config = config.withDefaults()
	return &RecognitionService{
		scheduleRepo:     scheduleRepo,
		subscriptionRepo: subscriptionRepo,
		catalog:          catalog,
		ledger:           ledger,
		failures:         newFailureQueue(failureRepo, config.MaxFailureAttempts, logger),
		clock:            clock,
		config:           config,
		logger:           logger,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *RecognitionService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// CreateSchedule creates the deferred schedule for one paid period inside
// the caller's transaction. It returns nil for immediate plans and when a
// schedule for the period already exists.
func (s *RecognitionService) CreateSchedule(
	ctx context.Context,
	repos TransactionalRepositories,
	sub *subscription.Subscription,
	plan *billing.Plan,
	amount decimal.Decimal,
	periodStart, periodEnd time.Time,
) (*revenue.RevenueSchedule, error) {
	if plan.RecognitionMethod != billing.RecognitionDeferred {
		return nil, nil
	}
	exists, err := repos.ScheduleRepo().ExistsForPeriod(ctx, sub.ID, periodStart)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	interval := billing.MonthlyDuration()
	if plan.RecognitionIntervalID != nil {
		period, err := s.catalog.BillingPeriod(ctx, *plan.RecognitionIntervalID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, shared.NewConfigurationError("MISSING_RECOGNITION_INTERVAL",
					fmt.Sprintf("Recognition interval of plan %s does not exist", plan.Code))
			}
			return nil, err
		}
		interval = period.Duration
	}

	schedule, err := revenue.NewDeferredSchedule(revenue.ScheduleInput{
		SubscriptionID: sub.ID,
		TotalAmount:    amount,
		Currency:       sub.Currency,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		Interval:       interval,
		Accounts:       plan.LedgerAccounts,
	})
	if err != nil {
		return nil, err
	}
	if err := repos.ScheduleRepo().Save(ctx, schedule); err != nil {
		return nil, err
	}

	s.logger.Info("Revenue schedule created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("period_start", shared.FormatDate(schedule.PeriodStart)),
		zap.String("period_end", shared.FormatDate(schedule.PeriodEnd)),
		zap.Int("lines", len(schedule.Lines)),
	)
	return schedule, nil
}

// PublishSchedule publishes the schedule's events after commit
func (s *RecognitionService) PublishSchedule(ctx context.Context, schedule *revenue.RevenueSchedule) {
	if schedule == nil || s.eventPublisher == nil {
		return
	}
	if events := schedule.GetDomainEvents(); len(events) > 0 {
		if err := s.eventPublisher.Publish(ctx, events...); err != nil {
			s.logger.Warn("Failed to publish schedule events", zap.Error(err))
		}
	}
	schedule.ClearDomainEvents()
}

// PostImmediate recognizes a paid period of an immediate plan in one entry.
// A ledger failure is queued with its payload and retried by the next
// recognition run; it is never returned to the caller.
func (s *RecognitionService) PostImmediate(ctx context.Context, sub *subscription.Subscription, plan *billing.Plan, amount decimal.Decimal, periodStart, postingDate time.Time) {
	if plan.RecognitionMethod != billing.RecognitionImmediate {
		return
	}
	posting := immediatePosting{
		SubscriptionID: sub.ID,
		PeriodStart:    shared.TruncateDay(periodStart),
		Amount:         amount,
		Currency:       sub.Currency,
		Accounts:       plan.LedgerAccounts,
		PostingDate:    shared.TruncateDay(postingDate),
	}
	if err := s.postImmediate(ctx, posting); err != nil {
		s.logger.Warn("Immediate recognition failed, queued for retry",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("period_start", shared.FormatDate(periodStart)),
			zap.Error(err),
		)
		s.failures.Record(ctx, processing.FailureSubject{
			JobType:        processing.JobRecognition,
			SubjectType:    processing.SubjectImmediateRecognition,
			SubjectID:      posting.subjectID(),
			SubscriptionID: sub.ID,
			IdempotencyKey: posting.entry().IdempotencyKey,
			Payload:        posting,
		}, err, s.clock.Now())
	}
}

func (s *RecognitionService) postImmediate(ctx context.Context, posting immediatePosting) error {
	if err := s.ledger.PostJournalEntry(ctx, posting.entry()); err != nil {
		return shared.NewProcessingError("LEDGER_POST_FAILED", "post immediate recognition", err)
	}
	return nil
}

// RunRecognitionProcessing posts every pending line due as of asOf and
// retries queued immediate postings
func (s *RecognitionService) RunRecognitionProcessing(ctx context.Context, asOf time.Time) (*BatchResult, error) {
	asOf = shared.TruncateDay(asOf)
	tally := newBatchTally(processing.JobRecognition, asOf, s.clock.Now())

	lines, err := s.scheduleRepo.FindDueLines(ctx, asOf, s.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("find due recognition lines: %w", err)
	}
	blocked, err := s.failures.Blocked(ctx, processing.JobRecognition, processing.SubjectRecognitionLine)
	if err != nil {
		return nil, fmt.Errorf("find blocked recognition lines: %w", err)
	}

	schedules := make(map[uuid.UUID]*revenue.RevenueSchedule)
	for _, line := range lines {
		if _, ok := schedules[line.ScheduleID]; ok {
			continue
		}
		schedule, err := s.scheduleRepo.FindByID(ctx, line.ScheduleID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("load revenue schedule %s: %w", line.ScheduleID, err)
		}
		schedules[line.ScheduleID] = schedule
	}

	byID := make(map[uuid.UUID]*revenue.RecognitionLine, len(lines))
	ids := make([]uuid.UUID, len(lines))
	for i := range lines {
		byID[lines[i].ID] = &lines[i]
		ids[i] = lines[i].ID
	}

	s.logger.Info("Starting recognition processing",
		zap.String("as_of", shared.FormatDate(asOf)),
		zap.Int("due_lines", len(lines)),
	)

	err = runBatch(ctx, itemsOf(processing.SubjectRecognitionLine, ids), s.config.Parallelism, tally,
		func(ctx context.Context, item batchItem) (outcome, error) {
			line := byID[item.ID]
			if _, ok := blocked[line.ID]; ok {
				return outcomeSkipped, nil
			}
			schedule := schedules[line.ScheduleID]
			if schedule == nil {
				err := shared.NewConfigurationError("MISSING_SCHEDULE",
					fmt.Sprintf("Recognition line %s has no schedule", line.ID))
				s.recordLineFailure(ctx, line, err)
				return outcomeFailed, err
			}
			if err := s.recognizeLine(ctx, schedule, line, asOf); err != nil {
				return outcomeFailed, err
			}
			return outcomeProcessed, nil
		})
	if err != nil {
		return tally.finish(s.clock.Now()), err
	}

	if err := s.retryImmediate(ctx, tally); err != nil {
		return tally.finish(s.clock.Now()), err
	}

	result := tally.finish(s.clock.Now())
	s.logger.Info("Completed recognition processing",
		zap.String("as_of", shared.FormatDate(asOf)),
		zap.Int("total", result.Total),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// recognizeLine posts one line and marks it recognized. A stored line that
// is no longer pending means another run got there first.
func (s *RecognitionService) recognizeLine(ctx context.Context, schedule *revenue.RevenueSchedule, line *revenue.RecognitionLine, asOf time.Time) error {
	entry := schedule.EntryFor(line, line.RecognitionDate())
	if err := s.ledger.PostJournalEntry(ctx, entry); err != nil {
		perr := shared.NewProcessingError("LEDGER_POST_FAILED", "post recognition line", err)
		s.recordLineFailure(ctx, line, perr)
		return perr
	}

	if err := line.MarkRecognized(asOf); err != nil {
		return err
	}
	if err := s.scheduleRepo.SaveLine(ctx, line); err != nil {
		if shared.IsConcurrency(err) {
			s.logger.Debug("Recognition line already recognized",
				zap.String("line_id", line.ID.String()),
			)
			return nil
		}
		return err
	}
	s.failures.Clear(ctx, processing.JobRecognition, processing.SubjectRecognitionLine, line.ID, s.clock.Now())
	return nil
}

func (s *RecognitionService) recordLineFailure(ctx context.Context, line *revenue.RecognitionLine, cause error) {
	now := s.clock.Now()
	line.RecordFailure(cause, now)
	if err := s.scheduleRepo.SaveLine(ctx, line); err != nil {
		s.logger.Warn("Failed to save recognition line failure",
			zap.String("line_id", line.ID.String()),
			zap.Error(err),
		)
	}
	s.failures.Record(ctx, processing.FailureSubject{
		JobType:        processing.JobRecognition,
		SubjectType:    processing.SubjectRecognitionLine,
		SubjectID:      line.ID,
		SubscriptionID: line.SubscriptionID,
		IdempotencyKey: line.IdempotencyKey(),
	}, cause, now)
}

// retryImmediate re-posts queued immediate recognitions from their payload
func (s *RecognitionService) retryImmediate(ctx context.Context, tally *batchTally) error {
	open, err := s.failures.repo.FindOpenBySubject(ctx, processing.JobRecognition, processing.SubjectImmediateRecognition, s.config.BatchSize)
	if err != nil {
		return fmt.Errorf("find queued immediate recognitions: %w", err)
	}
	for i := range open {
		entry := &open[i]
		item := batchItem{SubjectType: processing.SubjectImmediateRecognition, ID: entry.SubjectID}

		var posting immediatePosting
		if err := entry.DecodePayload(&posting); err != nil {
			cause := shared.NewConfigurationError("INVALID_PAYLOAD", "Queued immediate recognition payload is unreadable")
			s.failures.Record(ctx, processing.FailureSubject{
				JobType:     entry.JobType,
				SubjectType: entry.SubjectType,
				SubjectID:   entry.SubjectID,
			}, cause, s.clock.Now())
			tally.add(item, outcomeFailed, cause)
			continue
		}
		if err := s.postImmediate(ctx, posting); err != nil {
			s.failures.Record(ctx, processing.FailureSubject{
				JobType:        processing.JobRecognition,
				SubjectType:    processing.SubjectImmediateRecognition,
				SubjectID:      entry.SubjectID,
				SubscriptionID: posting.SubscriptionID,
			}, err, s.clock.Now())
			tally.add(item, outcomeFailed, err)
			continue
		}
		s.failures.Clear(ctx, processing.JobRecognition, processing.SubjectImmediateRecognition, entry.SubjectID, s.clock.Now())
		tally.add(item, outcomeProcessed, nil)
	}
	return nil
}

// GetRecognitionSchedule returns the schedule of the current paid period
func (s *RecognitionService) GetRecognitionSchedule(ctx context.Context, subscriptionID uuid.UUID) (*RevenueScheduleResponse, error) {
	if _, err := s.subscriptionRepo.FindByID(ctx, subscriptionID); err != nil {
		return nil, err
	}
	schedule, err := s.scheduleRepo.FindCurrentBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	resp := ToRevenueScheduleResponse(schedule)
	return &resp, nil
}

// ListSchedules returns every schedule of the subscription, newest first
func (s *RecognitionService) ListSchedules(ctx context.Context, subscriptionID uuid.UUID) ([]RevenueScheduleResponse, error) {
	schedules, err := s.scheduleRepo.FindBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	out := make([]RevenueScheduleResponse, len(schedules))
	for i := range schedules {
		out[i] = ToRevenueScheduleResponse(&schedules[i])
	}
	return out, nil
}
