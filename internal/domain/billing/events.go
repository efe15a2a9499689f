package billing

import (
	"github.com/ams/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	AggregateTypeBillingPeriod = "BillingPeriod"
	AggregateTypePlan          = "Plan"

	EventTypeBillingPeriodCreated = "BillingPeriodCreated"
	EventTypePlanCreated          = "PlanCreated"
)

// BillingPeriodCreatedEvent is raised when a billing period is defined
type BillingPeriodCreatedEvent struct {
	shared.BaseDomainEvent
	Code     string   `json:"code"`
	Duration Duration `json:"duration"`
}

// NewBillingPeriodCreatedEvent creates a new BillingPeriodCreatedEvent
func NewBillingPeriodCreatedEvent(bp *BillingPeriod) *BillingPeriodCreatedEvent {
	return &BillingPeriodCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBillingPeriodCreated, AggregateTypeBillingPeriod, bp.ID),
		Code:            bp.Code,
		Duration:        bp.Duration,
	}
}

// EventType returns the event type name
func (e *BillingPeriodCreatedEvent) EventType() string {
	return EventTypeBillingPeriodCreated
}

// PlanCreatedEvent is raised when a plan is added to the catalog
type PlanCreatedEvent struct {
	shared.BaseDomainEvent
	Code            string          `json:"code"`
	Amount          decimal.Decimal `json:"amount"`
	BillingPeriodID uuid.UUID       `json:"billing_period_id"`
}

// NewPlanCreatedEvent creates a new PlanCreatedEvent
func NewPlanCreatedEvent(p *Plan) *PlanCreatedEvent {
	return &PlanCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePlanCreated, AggregateTypePlan, p.ID),
		Code:            p.Code,
		Amount:          p.Amount,
		BillingPeriodID: p.BillingPeriodID,
	}
}

// EventType returns the event type name
func (e *PlanCreatedEvent) EventType() string {
	return EventTypePlanCreated
}
