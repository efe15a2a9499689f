package subscription

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/renewal"
	"github.com/ams/backend/internal/domain/revenue"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/subscription"
	"github.com/google/uuid"
)

// In-memory repositories. Every read returns a copy so services see the
// same isolation they get from the database.

type memSubscriptionRepo struct {
	mu   sync.Mutex
	data map[uuid.UUID]subscription.Subscription
	// conflictOnce makes the next SaveWithLock fail with a conflict
	conflictOnce bool
}

func newMemSubscriptionRepo() *memSubscriptionRepo {
	return &memSubscriptionRepo{data: make(map[uuid.UUID]subscription.Subscription)}
}

func (r *memSubscriptionRepo) FindByID(_ context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &s, nil
}

func (r *memSubscriptionRepo) FindAll(_ context.Context, filter shared.Filter) ([]subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]subscription.Subscription, 0, len(r.data))
	for _, s := range r.data {
		if status, ok := filter.Filters["status"]; ok && fmt.Sprint(status) != string(s.Status) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memSubscriptionRepo) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	all, err := r.FindAll(ctx, filter)
	return int64(len(all)), err
}

func (r *memSubscriptionRepo) FindDueForLifecycle(_ context.Context, asOf time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id, s := range r.data {
		switch {
		case s.Status == subscription.StatusActive && s.PaidThroughDate != nil && s.PaidThroughDate.Before(asOf),
			s.Status == subscription.StatusGrace && s.GraceEndDate != nil && s.GraceEndDate.Before(asOf),
			s.Status == subscription.StatusSuspended && s.SuspendEndDate != nil && s.SuspendEndDate.Before(asOf):
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memSubscriptionRepo) FindRenewable(_ context.Context, horizon time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id, s := range r.data {
		if s.Status.IsLive() && s.AutoRenew && s.PaidThroughDate != nil && !s.PaidThroughDate.After(horizon) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memSubscriptionRepo) CountLiveByBillingPeriod(_ context.Context, billingPeriodID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.data {
		if s.BillingPeriodID == billingPeriodID && !s.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (r *memSubscriptionRepo) Save(_ context.Context, s *subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *s
	c.ClearDomainEvents()
	r.data[s.ID] = c
	return nil
}

func (r *memSubscriptionRepo) SaveWithLock(_ context.Context, s *subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflictOnce {
		r.conflictOnce = false
		return shared.ErrConcurrencyConflict
	}
	stored, ok := r.data[s.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != s.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	c := *s
	c.ClearDomainEvents()
	r.data[s.ID] = c
	return nil
}

func (r *memSubscriptionRepo) put(s *subscription.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *s
	c.ClearDomainEvents()
	r.data[s.ID] = c
}

type memPlanChangeRepo struct {
	mu   sync.Mutex
	data map[uuid.UUID]subscription.PlanChange
}

func newMemPlanChangeRepo() *memPlanChangeRepo {
	return &memPlanChangeRepo{data: make(map[uuid.UUID]subscription.PlanChange)}
}

func (r *memPlanChangeRepo) FindBySubscription(_ context.Context, subscriptionID uuid.UUID) ([]subscription.PlanChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []subscription.PlanChange
	for _, pc := range r.data {
		if pc.SubscriptionID == subscriptionID {
			out = append(out, pc)
		}
	}
	return out, nil
}

func (r *memPlanChangeRepo) FindPendingInvoices(ctx context.Context, subscriptionID uuid.UUID) ([]subscription.PlanChange, error) {
	all, _ := r.FindBySubscription(ctx, subscriptionID)
	var out []subscription.PlanChange
	for _, pc := range all {
		if pc.NeedsAdjustmentInvoice() {
			out = append(out, pc)
		}
	}
	return out, nil
}

func (r *memPlanChangeRepo) Save(_ context.Context, pc *subscription.PlanChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[pc.ID] = *pc
	return nil
}

type memScheduleRepo struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]revenue.RevenueSchedule
}

func newMemScheduleRepo() *memScheduleRepo {
	return &memScheduleRepo{schedules: make(map[uuid.UUID]revenue.RevenueSchedule)}
}

func copySchedule(s revenue.RevenueSchedule) revenue.RevenueSchedule {
	s.Lines = append([]revenue.RecognitionLine(nil), s.Lines...)
	s.ClearDomainEvents()
	return s
}

func (r *memScheduleRepo) FindByID(_ context.Context, id uuid.UUID) (*revenue.RevenueSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	c := copySchedule(s)
	return &c, nil
}

func (r *memScheduleRepo) FindCurrentBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*revenue.RevenueSchedule, error) {
	all, _ := r.FindBySubscription(ctx, subscriptionID)
	if len(all) == 0 {
		return nil, shared.ErrNotFound
	}
	return &all[0], nil
}

func (r *memScheduleRepo) FindBySubscription(_ context.Context, subscriptionID uuid.UUID) ([]revenue.RevenueSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []revenue.RevenueSchedule
	for _, s := range r.schedules {
		if s.SubscriptionID == subscriptionID {
			out = append(out, copySchedule(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.After(out[j].PeriodStart) })
	return out, nil
}

func (r *memScheduleRepo) ExistsForPeriod(_ context.Context, subscriptionID uuid.UUID, periodStart time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.schedules {
		if s.SubscriptionID == subscriptionID && s.PeriodStart.Equal(periodStart) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memScheduleRepo) Save(_ context.Context, s *revenue.RevenueSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[s.ID] = copySchedule(*s)
	return nil
}

func (r *memScheduleRepo) FindDueLines(_ context.Context, asOf time.Time, limit int) ([]revenue.RecognitionLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []revenue.RecognitionLine
	for _, s := range r.schedules {
		for _, l := range s.Lines {
			if l.IsDue(asOf) {
				out = append(out, l)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineEnd.Before(out[j].LineEnd) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memScheduleRepo) SaveLine(_ context.Context, line *revenue.RecognitionLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[line.ScheduleID]
	if !ok {
		return shared.ErrNotFound
	}
	for i := range s.Lines {
		if s.Lines[i].ID != line.ID {
			continue
		}
		if line.Status == revenue.LineStatusRecognized && s.Lines[i].Status != revenue.LineStatusPending {
			return shared.ErrConcurrencyConflict
		}
		s.Lines[i] = *line
		r.schedules[s.ID] = s
		return nil
	}
	return shared.ErrNotFound
}

func (r *memScheduleRepo) lines(subscriptionID uuid.UUID) []revenue.RecognitionLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []revenue.RecognitionLine
	for _, s := range r.schedules {
		if s.SubscriptionID == subscriptionID {
			out = append(out, s.Lines...)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineStart.Before(out[j].LineStart) })
	return out
}

type memRenewalRepo struct {
	mu   sync.Mutex
	data map[uuid.UUID]renewal.RenewalEvent
}

func newMemRenewalRepo() *memRenewalRepo {
	return &memRenewalRepo{data: make(map[uuid.UUID]renewal.RenewalEvent)}
}

func (r *memRenewalRepo) FindByID(_ context.Context, id uuid.UUID) (*renewal.RenewalEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.data[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &e, nil
}

func (r *memRenewalRepo) FindBySubscriptionAndDueDate(_ context.Context, subscriptionID uuid.UUID, dueDate time.Time) (*renewal.RenewalEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.data {
		if e.SubscriptionID == subscriptionID && e.DueDate.Equal(dueDate) {
			return &e, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memRenewalRepo) FindBySubscription(_ context.Context, subscriptionID uuid.UUID) ([]renewal.RenewalEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []renewal.RenewalEvent
	for _, e := range r.data {
		if e.SubscriptionID == subscriptionID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.After(out[j].DueDate) })
	return out, nil
}

func (r *memRenewalRepo) FindByStatus(_ context.Context, status renewal.EventStatus, limit int) ([]renewal.RenewalEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []renewal.RenewalEvent
	for _, e := range r.data {
		if e.Status == status {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRenewalRepo) FindOpenBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]renewal.RenewalEvent, error) {
	all, _ := r.FindBySubscription(ctx, subscriptionID)
	var out []renewal.RenewalEvent
	for _, e := range all {
		if !e.Status.IsTerminal() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memRenewalRepo) Save(_ context.Context, e *renewal.RenewalEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *e
	c.ClearDomainEvents()
	r.data[e.ID] = c
	return nil
}

func (r *memRenewalRepo) SaveWithLock(_ context.Context, e *renewal.RenewalEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.data[e.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != e.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	c := *e
	c.ClearDomainEvents()
	r.data[e.ID] = c
	return nil
}

type memFailureRepo struct {
	mu   sync.Mutex
	data map[uuid.UUID]processing.ProcessingFailure
}

func newMemFailureRepo() *memFailureRepo {
	return &memFailureRepo{data: make(map[uuid.UUID]processing.ProcessingFailure)}
}

func (r *memFailureRepo) FindByID(_ context.Context, id uuid.UUID) (*processing.ProcessingFailure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.data[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &f, nil
}

func (r *memFailureRepo) FindUnresolved(_ context.Context, jobType processing.JobType, subjectType processing.SubjectType, subjectID uuid.UUID) (*processing.ProcessingFailure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.data {
		if f.JobType == jobType && f.SubjectType == subjectType && f.SubjectID == subjectID && f.Status != processing.FailureResolved {
			return &f, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memFailureRepo) FindBlockedSubjects(_ context.Context, jobType processing.JobType, subjectType processing.SubjectType) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for _, f := range r.data {
		if f.JobType == jobType && f.SubjectType == subjectType && f.Status == processing.FailureManualReview {
			ids = append(ids, f.SubjectID)
		}
	}
	return ids, nil
}

func (r *memFailureRepo) FindOpenBySubject(_ context.Context, jobType processing.JobType, subjectType processing.SubjectType, limit int) ([]processing.ProcessingFailure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []processing.ProcessingFailure
	for _, f := range r.data {
		if f.JobType == jobType && f.SubjectType == subjectType && f.Status == processing.FailureOpen {
			out = append(out, f)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memFailureRepo) FindAll(_ context.Context, filter shared.Filter) ([]processing.ProcessingFailure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []processing.ProcessingFailure
	for _, f := range r.data {
		if status, ok := filter.Filters["status"]; ok && fmt.Sprint(status) != string(f.Status) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (r *memFailureRepo) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	all, err := r.FindAll(ctx, filter)
	return int64(len(all)), err
}

func (r *memFailureRepo) Save(_ context.Context, f *processing.ProcessingFailure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *f
	c.ClearDomainEvents()
	r.data[f.ID] = c
	return nil
}

func (r *memFailureRepo) forSubject(subjectID uuid.UUID) *processing.ProcessingFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.data {
		if f.SubjectID == subjectID {
			return &f
		}
	}
	return nil
}

type memJobRunRepo struct {
	mu   sync.Mutex
	runs []processing.JobRun
}

func (r *memJobRunRepo) Create(_ context.Context, run *processing.JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, *run)
	return nil
}

func (r *memJobRunRepo) Update(_ context.Context, run *processing.JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.runs {
		if r.runs[i].ID == run.ID {
			r.runs[i] = *run
			return nil
		}
	}
	return shared.ErrNotFound
}

func (r *memJobRunRepo) FindLatest(_ context.Context, jobType processing.JobType) (*processing.JobRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.runs) - 1; i >= 0; i-- {
		if r.runs[i].JobType == jobType {
			run := r.runs[i]
			return &run, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memJobRunRepo) FindAll(_ context.Context, _ shared.Filter) ([]processing.JobRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]processing.JobRun(nil), r.runs...), nil
}

type memBillingPeriodRepo struct {
	mu   sync.Mutex
	data map[uuid.UUID]billing.BillingPeriod
}

func newMemBillingPeriodRepo() *memBillingPeriodRepo {
	return &memBillingPeriodRepo{data: make(map[uuid.UUID]billing.BillingPeriod)}
}

func (r *memBillingPeriodRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.BillingPeriod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bp, ok := r.data[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &bp, nil
}

func (r *memBillingPeriodRepo) FindByCode(_ context.Context, code string) (*billing.BillingPeriod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bp := range r.data {
		if bp.Code == code {
			return &bp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memBillingPeriodRepo) FindDefault(_ context.Context) (*billing.BillingPeriod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bp := range r.data {
		if bp.IsDefault {
			return &bp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memBillingPeriodRepo) FindAll(_ context.Context, _ shared.Filter) ([]billing.BillingPeriod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]billing.BillingPeriod, 0, len(r.data))
	for _, bp := range r.data {
		out = append(out, bp)
	}
	return out, nil
}

func (r *memBillingPeriodRepo) ExistsByCode(ctx context.Context, code string) (bool, error) {
	_, err := r.FindByCode(ctx, code)
	return err == nil, nil
}

func (r *memBillingPeriodRepo) Save(_ context.Context, bp *billing.BillingPeriod) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *bp
	c.ClearDomainEvents()
	r.data[bp.ID] = c
	return nil
}

type memPlanRepo struct {
	mu   sync.Mutex
	data map[uuid.UUID]billing.Plan
}

func newMemPlanRepo() *memPlanRepo {
	return &memPlanRepo{data: make(map[uuid.UUID]billing.Plan)}
}

func (r *memPlanRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &p, nil
}

func (r *memPlanRepo) FindByCode(_ context.Context, code string) (*billing.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if p.Code == code {
			return &p, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memPlanRepo) FindAll(_ context.Context, _ shared.Filter) ([]billing.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]billing.Plan, 0, len(r.data))
	for _, p := range r.data {
		out = append(out, p)
	}
	return out, nil
}

func (r *memPlanRepo) ExistsByCode(ctx context.Context, code string) (bool, error) {
	_, err := r.FindByCode(ctx, code)
	return err == nil, nil
}

func (r *memPlanRepo) CountByBillingPeriod(_ context.Context, billingPeriodID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.data {
		if p.BillingPeriodID == billingPeriodID {
			n++
		}
	}
	return n, nil
}

func (r *memPlanRepo) Save(_ context.Context, p *billing.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *p
	c.ClearDomainEvents()
	r.data[p.ID] = c
	return nil
}

// memIdempotencyStore is a minimal IdempotencyStore
type memIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (s *memIdempotencyStore) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = make(map[string]struct{})
	}
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

func (s *memIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok, nil
}

func (s *memIdempotencyStore) Close() error { return nil }

// recordingPublisher collects published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}
