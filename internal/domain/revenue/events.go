package revenue

import (
	"time"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	AggregateTypeRevenueSchedule = "RevenueSchedule"

	EventTypeScheduleCreated = "RevenueScheduleCreated"
)

// ScheduleCreatedEvent is raised when a paid period gets its schedule
type ScheduleCreatedEvent struct {
	shared.BaseDomainEvent
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PeriodStart    time.Time       `json:"period_start"`
	PeriodEnd      time.Time       `json:"period_end"`
	LineCount      int             `json:"line_count"`
}

// NewScheduleCreatedEvent creates a new ScheduleCreatedEvent
func NewScheduleCreatedEvent(s *RevenueSchedule) *ScheduleCreatedEvent {
	return &ScheduleCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeScheduleCreated, AggregateTypeRevenueSchedule, s.ID),
		SubscriptionID:  s.SubscriptionID,
		TotalAmount:     s.TotalAmount,
		PeriodStart:     s.PeriodStart,
		PeriodEnd:       s.PeriodEnd,
		LineCount:       len(s.Lines),
	}
}

// EventType returns the event type name
func (e *ScheduleCreatedEvent) EventType() string {
	return EventTypeScheduleCreated
}
