package subscription

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Attributes holds kind-specific values (chapter code, publication format, ...)
type Attributes map[string]string

// Value implements driver.Valuer for JSONB storage
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSONB retrieval
func (a *Attributes) Scan(value any) error {
	if value == nil {
		*a = Attributes{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte or string failed")
	}
	return json.Unmarshal(bytes, a)
}

// Subscription is the aggregate root of a member's paid access.
// Records are never deleted; terminal statuses keep the history.
type Subscription struct {
	shared.BaseAggregateRoot
	SubscriberRef      string               `json:"subscriber_ref"`
	PlanID             uuid.UUID            `json:"plan_id"`
	BillingPeriodID    uuid.UUID            `json:"billing_period_id"`
	Kind               Kind                 `json:"kind"`
	Attributes         Attributes           `json:"attributes"`
	SeatCount          int                  `json:"seat_count"`
	Status             Status               `json:"status"`
	StartDate          time.Time            `json:"start_date"`
	CurrentPeriodStart *time.Time           `json:"current_period_start,omitempty"`
	PaidThroughDate    *time.Time           `json:"paid_through_date,omitempty"`
	GraceEndDate       *time.Time           `json:"grace_end_date,omitempty"`
	SuspendEndDate     *time.Time           `json:"suspend_end_date,omitempty"`
	TerminateDate      *time.Time           `json:"terminate_date,omitempty"`
	CancelledDate      *time.Time           `json:"cancelled_date,omitempty"`
	Amount             decimal.Decimal      `json:"amount"`
	Currency           valueobject.Currency `json:"currency"`
	AutoRenew          bool                 `json:"auto_renew"`
	StatusReason       string               `json:"status_reason,omitempty"`
	// LastManualChangeAt / LastManualChangeDate let batch runs yield to
	// operator actions made during or on the same business day as the run
	LastManualChangeAt   *time.Time `json:"last_manual_change_at,omitempty"`
	LastManualChangeDate *time.Time `json:"last_manual_change_date,omitempty"`
}

// NewSubscriptionInput carries the caller-provided fields of a new subscription
type NewSubscriptionInput struct {
	SubscriberRef string
	Kind          Kind
	StartDate     time.Time
	SeatCount     int
	Attributes    Attributes
	AutoRenew     *bool
}

// NewSubscription creates a draft subscription priced from the plan
func NewSubscription(in NewSubscriptionInput, plan *billing.Plan) (*Subscription, error) {
	ref := strings.TrimSpace(in.SubscriberRef)
	if ref == "" {
		return nil, shared.NewValidationError("INVALID_SUBSCRIBER", "Subscriber reference cannot be empty")
	}
	if plan == nil {
		return nil, shared.NewValidationError("INVALID_PLAN", "Plan is required")
	}
	if !plan.Active {
		return nil, shared.NewValidationError("INVALID_PLAN", fmt.Sprintf("Plan %s is not active", plan.Code))
	}
	kind := in.Kind
	if kind == "" {
		kind = KindIndividual
	}
	if !kind.IsValid() {
		return nil, shared.NewValidationError("INVALID_KIND", fmt.Sprintf("Unknown subscription kind %q", kind))
	}
	if in.SeatCount < 0 {
		return nil, shared.NewValidationError("INVALID_SEAT_COUNT", "Seat count cannot be negative")
	}
	if kind.RequiresSeats() && in.SeatCount == 0 {
		return nil, shared.NewValidationError("INVALID_SEAT_COUNT", "Enterprise subscriptions require a seat count")
	}
	if in.StartDate.IsZero() {
		return nil, shared.NewValidationError("INVALID_START_DATE", "Start date is required")
	}

	autoRenew := plan.AutoRenewDefault
	if in.AutoRenew != nil {
		autoRenew = *in.AutoRenew
	}
	attrs := in.Attributes
	if attrs == nil {
		attrs = Attributes{}
	}

	s := &Subscription{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SubscriberRef:     ref,
		PlanID:            plan.ID,
		BillingPeriodID:   plan.BillingPeriodID,
		Kind:              kind,
		Attributes:        attrs,
		SeatCount:         in.SeatCount,
		Status:            StatusDraft,
		StartDate:         shared.TruncateDay(in.StartDate),
		Amount:            plan.PriceFor(in.SeatCount),
		Currency:          plan.Currency,
		AutoRenew:         autoRenew,
	}
	s.AddDomainEvent(NewSubscriptionCreatedEvent(s))
	return s, nil
}

// Activate moves a draft subscription to active. Activation counts as the
// first payment confirmation: the first paid period starts at StartDate.
func (s *Subscription) Activate(period *billing.BillingPeriod, reason string, now time.Time) error {
	if s.Status != StatusDraft {
		return invalidTransition(s.Status, StatusActive)
	}
	if period == nil || period.ID != s.BillingPeriodID {
		return shared.NewConfigurationError("MISSING_BILLING_PERIOD", "Subscription billing period is not available")
	}
	start := s.StartDate
	paidThrough := period.NextDate(start)
	s.CurrentPeriodStart = &start
	s.PaidThroughDate = &paidThrough
	s.transition(StatusActive, reason, now, true)
	return nil
}

// Suspend puts an active or grace subscription on hold for the policy's
// SuspendDays, after which it lapses
func (s *Subscription) Suspend(reason string, policy billing.LifecyclePolicy, now time.Time) error {
	if !s.Status.CanSuspend() {
		return invalidTransition(s.Status, StatusSuspended)
	}
	if strings.TrimSpace(reason) == "" {
		return shared.NewValidationError("REASON_REQUIRED", "A reason is required to suspend a subscription")
	}
	end := shared.AddDays(now, policy.SuspendDays)
	s.transition(StatusSuspended, reason, now, true)
	s.SuspendEndDate = &end
	return nil
}

// Terminate ends the subscription immediately
func (s *Subscription) Terminate(reason string, now time.Time) error {
	if s.Status.IsTerminal() {
		return invalidTransition(s.Status, StatusTerminated)
	}
	if strings.TrimSpace(reason) == "" {
		return shared.NewValidationError("REASON_REQUIRED", "A reason is required to terminate a subscription")
	}
	s.transition(StatusTerminated, reason, now, true)
	s.TerminateDate = shared.DatePtr(now)
	return nil
}

// Cancel ends the subscription at the member's request
func (s *Subscription) Cancel(reason string, now time.Time) error {
	if s.Status.IsTerminal() {
		return invalidTransition(s.Status, StatusCancelled)
	}
	s.transition(StatusCancelled, reason, now, true)
	s.CancelledDate = shared.DatePtr(now)
	return nil
}

// Reinstate returns a suspended, lapsed or terminated subscription to
// active. A paid-through date still ahead of now is kept. One already past
// starts a fresh period on today, otherwise the next lifecycle run would
// walk the subscription straight back to lapsed. restarted reports whether
// a new period began.
func (s *Subscription) Reinstate(period *billing.BillingPeriod, reason string, outstanding decimal.Decimal, now time.Time) (restarted bool, err error) {
	if !s.Status.CanReinstate() {
		return false, invalidTransition(s.Status, StatusActive)
	}
	if s.PaidThroughDate == nil {
		return false, shared.NewValidationError("NEVER_ACTIVATED", "A subscription that was never activated cannot be reinstated")
	}
	if outstanding.IsPositive() {
		return false, shared.NewValidationError("OUTSTANDING_BALANCE",
			fmt.Sprintf("Cannot reinstate with an outstanding balance of %s", outstanding.StringFixed(2)))
	}
	today := shared.TruncateDay(now)
	if s.PaidThroughDate.Before(today) {
		if period == nil || period.ID != s.BillingPeriodID {
			return false, shared.NewConfigurationError("MISSING_BILLING_PERIOD", "Subscription billing period is not available")
		}
		paidThrough := period.NextDate(today)
		s.CurrentPeriodStart = &today
		s.PaidThroughDate = &paidThrough
		restarted = true
	}
	s.transition(StatusActive, reason, now, true)
	return restarted, nil
}

// ConfirmRenewal extends the paid period by one billing period. A
// subscription in grace or suspension returns to active.
func (s *Subscription) ConfirmRenewal(period *billing.BillingPeriod, dueDate, now time.Time) error {
	if !s.Status.IsLive() {
		return shared.NewValidationError("INVALID_STATE",
			fmt.Sprintf("Cannot confirm a renewal in %s status", s.Status))
	}
	if s.PaidThroughDate == nil || !s.PaidThroughDate.Equal(shared.TruncateDay(dueDate)) {
		return shared.NewValidationError("RENEWAL_MISMATCH",
			fmt.Sprintf("Renewal due %s does not match paid-through date", shared.FormatDate(dueDate)))
	}
	if period == nil || period.ID != s.BillingPeriodID {
		return shared.NewConfigurationError("MISSING_BILLING_PERIOD", "Subscription billing period is not available")
	}

	previous := *s.PaidThroughDate
	next := period.NextDate(previous)
	s.CurrentPeriodStart = &previous
	s.PaidThroughDate = &next
	if s.Status != StatusActive {
		s.transition(StatusActive, "renewal payment confirmed", now, false)
	} else {
		s.Touch()
		s.IncrementVersion()
	}
	s.AddDomainEvent(NewSubscriptionRenewedEvent(s, previous, next))
	return nil
}

// ChangePlan points the subscription at a new plan and price. The new
// plan's billing period applies from the next renewal.
func (s *Subscription) ChangePlan(plan *billing.Plan, effectiveDate time.Time) error {
	if !s.Status.IsLive() {
		return shared.NewValidationError("INVALID_STATE",
			fmt.Sprintf("Cannot change plan in %s status", s.Status))
	}
	if plan.Currency != s.Currency {
		return shared.NewValidationError("CURRENCY_MISMATCH",
			fmt.Sprintf("Plan currency %s differs from subscription currency %s", plan.Currency, s.Currency))
	}
	oldPlan := s.PlanID
	s.PlanID = plan.ID
	s.BillingPeriodID = plan.BillingPeriodID
	s.Amount = plan.PriceFor(s.SeatCount)
	s.Touch()
	s.IncrementVersion()
	s.AddDomainEvent(NewSubscriptionPlanChangedEvent(s, oldPlan, effectiveDate))
	return nil
}

// SetAutoRenew toggles automatic renewal
func (s *Subscription) SetAutoRenew(enabled bool) {
	if s.AutoRenew == enabled {
		return
	}
	s.AutoRenew = enabled
	s.Touch()
	s.IncrementVersion()
}

// ManualChangeSince reports whether an operator changed the status after
// runStartedAt or on the run's business date. Batch runs skip such records.
func (s *Subscription) ManualChangeSince(runStartedAt, asOf time.Time) bool {
	if s.LastManualChangeAt != nil && !s.LastManualChangeAt.Before(runStartedAt) {
		return true
	}
	return s.LastManualChangeDate != nil && s.LastManualChangeDate.Equal(shared.TruncateDay(asOf))
}

// CheckInvariants verifies that the status-specific date matches Status
func (s *Subscription) CheckInvariants() error {
	set := 0
	for _, d := range []*time.Time{s.GraceEndDate, s.SuspendEndDate, s.TerminateDate} {
		if d != nil {
			set++
		}
	}
	if set > 1 {
		return fmt.Errorf("subscription %s: more than one of grace/suspend/terminate dates set", s.ID)
	}
	if (s.Status == StatusGrace) != (s.GraceEndDate != nil) {
		return fmt.Errorf("subscription %s: grace end date does not match status %s", s.ID, s.Status)
	}
	if (s.Status == StatusSuspended) != (s.SuspendEndDate != nil) {
		return fmt.Errorf("subscription %s: suspend end date does not match status %s", s.ID, s.Status)
	}
	if (s.Status == StatusTerminated) != (s.TerminateDate != nil) {
		return fmt.Errorf("subscription %s: terminate date does not match status %s", s.ID, s.Status)
	}
	if s.Status != StatusDraft && s.Status != StatusCancelled && s.Status != StatusTerminated && s.PaidThroughDate == nil {
		return fmt.Errorf("subscription %s: paid-through date missing in status %s", s.ID, s.Status)
	}
	return nil
}

// transition moves to `to`, clears status-specific dates and records the change
func (s *Subscription) transition(to Status, reason string, now time.Time, manual bool) {
	from := s.Status
	s.Status = to
	s.StatusReason = reason
	s.GraceEndDate = nil
	s.SuspendEndDate = nil
	s.TerminateDate = nil
	if manual {
		at := now.UTC()
		s.LastManualChangeAt = &at
		s.LastManualChangeDate = shared.DatePtr(now)
	}
	s.Touch()
	s.IncrementVersion()
	s.AddDomainEvent(NewSubscriptionStatusChangedEvent(s, from, to, reason, !manual, shared.TruncateDay(now)))
}

func invalidTransition(from, to Status) error {
	return shared.NewValidationError("INVALID_STATE",
		fmt.Sprintf("Cannot move subscription from %s to %s", from, to))
}
