package subscription

import (
	"time"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const AggregateTypeSubscription = "Subscription"

const (
	EventTypeSubscriptionCreated       = "SubscriptionCreated"
	EventTypeSubscriptionStatusChanged = "SubscriptionStatusChanged"
	EventTypeSubscriptionPlanChanged   = "SubscriptionPlanChanged"
	EventTypeSubscriptionRenewed       = "SubscriptionRenewed"
)

// SubscriptionCreatedEvent is raised when a draft subscription is created
type SubscriptionCreatedEvent struct {
	shared.BaseDomainEvent
	SubscriberRef string          `json:"subscriber_ref"`
	PlanID        uuid.UUID       `json:"plan_id"`
	Kind          Kind            `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
}

// NewSubscriptionCreatedEvent creates a new SubscriptionCreatedEvent
func NewSubscriptionCreatedEvent(s *Subscription) *SubscriptionCreatedEvent {
	return &SubscriptionCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionCreated, AggregateTypeSubscription, s.ID),
		SubscriberRef:   s.SubscriberRef,
		PlanID:          s.PlanID,
		Kind:            s.Kind,
		Amount:          s.Amount,
	}
}

// EventType returns the event type name
func (e *SubscriptionCreatedEvent) EventType() string {
	return EventTypeSubscriptionCreated
}

// SubscriptionStatusChangedEvent is raised on every lifecycle transition
type SubscriptionStatusChangedEvent struct {
	shared.BaseDomainEvent
	SubscriberRef string    `json:"subscriber_ref"`
	FromStatus    Status    `json:"from_status"`
	ToStatus      Status    `json:"to_status"`
	Reason        string    `json:"reason"`
	Automated     bool      `json:"automated"`
	EffectiveDate time.Time `json:"effective_date"`
}

// NewSubscriptionStatusChangedEvent creates a new SubscriptionStatusChangedEvent
func NewSubscriptionStatusChangedEvent(s *Subscription, from, to Status, reason string, automated bool, effective time.Time) *SubscriptionStatusChangedEvent {
	return &SubscriptionStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionStatusChanged, AggregateTypeSubscription, s.ID),
		SubscriberRef:   s.SubscriberRef,
		FromStatus:      from,
		ToStatus:        to,
		Reason:          reason,
		Automated:       automated,
		EffectiveDate:   effective,
	}
}

// EventType returns the event type name
func (e *SubscriptionStatusChangedEvent) EventType() string {
	return EventTypeSubscriptionStatusChanged
}

// SubscriptionPlanChangedEvent is raised when a plan change is applied
type SubscriptionPlanChangedEvent struct {
	shared.BaseDomainEvent
	OldPlanID     uuid.UUID       `json:"old_plan_id"`
	NewPlanID     uuid.UUID       `json:"new_plan_id"`
	NewAmount     decimal.Decimal `json:"new_amount"`
	EffectiveDate time.Time       `json:"effective_date"`
}

// NewSubscriptionPlanChangedEvent creates a new SubscriptionPlanChangedEvent
func NewSubscriptionPlanChangedEvent(s *Subscription, oldPlan uuid.UUID, effective time.Time) *SubscriptionPlanChangedEvent {
	return &SubscriptionPlanChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionPlanChanged, AggregateTypeSubscription, s.ID),
		OldPlanID:       oldPlan,
		NewPlanID:       s.PlanID,
		NewAmount:       s.Amount,
		EffectiveDate:   effective,
	}
}

// EventType returns the event type name
func (e *SubscriptionPlanChangedEvent) EventType() string {
	return EventTypeSubscriptionPlanChanged
}

// SubscriptionRenewedEvent is raised when a renewal payment extends the paid period
type SubscriptionRenewedEvent struct {
	shared.BaseDomainEvent
	PeriodStart     time.Time `json:"period_start"`
	PaidThroughDate time.Time `json:"paid_through_date"`
}

// NewSubscriptionRenewedEvent creates a new SubscriptionRenewedEvent
func NewSubscriptionRenewedEvent(s *Subscription, periodStart, paidThrough time.Time) *SubscriptionRenewedEvent {
	return &SubscriptionRenewedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionRenewed, AggregateTypeSubscription, s.ID),
		PeriodStart:     periodStart,
		PaidThroughDate: paidThrough,
	}
}

// EventType returns the event type name
func (e *SubscriptionRenewedEvent) EventType() string {
	return EventTypeSubscriptionRenewed
}
