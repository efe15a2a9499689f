package renewal

import (
	"time"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	AggregateTypeRenewalEvent = "RenewalEvent"

	EventTypeRenewalGenerated = "RenewalGenerated"
	EventTypeRenewalConfirmed = "RenewalConfirmed"
)

// RenewalGeneratedEvent is raised when a renewal is opened for a due date
type RenewalGeneratedEvent struct {
	shared.BaseDomainEvent
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	DueDate        time.Time       `json:"due_date"`
	Amount         decimal.Decimal `json:"amount"`
}

// NewRenewalGeneratedEvent creates a new RenewalGeneratedEvent
func NewRenewalGeneratedEvent(e *RenewalEvent) *RenewalGeneratedEvent {
	return &RenewalGeneratedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRenewalGenerated, AggregateTypeRenewalEvent, e.ID),
		SubscriptionID:  e.SubscriptionID,
		DueDate:         e.DueDate,
		Amount:          e.Amount,
	}
}

// EventType returns the event type name
func (e *RenewalGeneratedEvent) EventType() string {
	return EventTypeRenewalGenerated
}

// RenewalConfirmedEvent is raised when a renewal invoice is paid
type RenewalConfirmedEvent struct {
	shared.BaseDomainEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	DueDate        time.Time `json:"due_date"`
	InvoiceRef     string    `json:"invoice_ref"`
}

// NewRenewalConfirmedEvent creates a new RenewalConfirmedEvent
func NewRenewalConfirmedEvent(e *RenewalEvent) *RenewalConfirmedEvent {
	return &RenewalConfirmedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRenewalConfirmed, AggregateTypeRenewalEvent, e.ID),
		SubscriptionID:  e.SubscriptionID,
		DueDate:         e.DueDate,
		InvoiceRef:      e.InvoiceRef,
	}
}

// EventType returns the event type name
func (e *RenewalConfirmedEvent) EventType() string {
	return EventTypeRenewalConfirmed
}
