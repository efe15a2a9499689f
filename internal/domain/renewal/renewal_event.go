package renewal

import (
	"fmt"
	"time"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventStatus is the state of a renewal event
type EventStatus string

const (
	StatusPending   EventStatus = "pending"
	StatusInvoiced  EventStatus = "invoiced"
	StatusConfirmed EventStatus = "confirmed"
	StatusFailed    EventStatus = "failed"
	StatusCancelled EventStatus = "cancelled"
)

// IsValid checks if the status is a valid EventStatus
func (s EventStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInvoiced, StatusConfirmed, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of EventStatus
func (s EventStatus) String() string {
	return string(s)
}

// IsTerminal returns true once the event is confirmed or cancelled
func (s EventStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

// CanInvoice returns true if an invoice may (still) be requested
func (s EventStatus) CanInvoice() bool {
	return s == StatusPending || s == StatusFailed
}

// RenewalEvent tracks the invoice for one renewal of a subscription.
// There is at most one event per subscription and due date.
type RenewalEvent struct {
	shared.BaseAggregateRoot
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	DueDate        time.Time       `json:"due_date"`
	Amount         decimal.Decimal `json:"amount"`
	Status         EventStatus     `json:"status"`
	InvoiceRef     string          `json:"invoice_ref,omitempty"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	Attempts       int             `json:"attempts"`
	ConfirmedAt    *time.Time      `json:"confirmed_at,omitempty"`
}

// NewRenewalEvent creates a pending renewal for the paid-through date
func NewRenewalEvent(subscriptionID uuid.UUID, dueDate time.Time, amount decimal.Decimal) (*RenewalEvent, error) {
	if subscriptionID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_SUBSCRIPTION", "Subscription ID cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Renewal amount must be positive")
	}
	e := &RenewalEvent{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SubscriptionID:    subscriptionID,
		DueDate:           shared.TruncateDay(dueDate),
		Amount:            amount,
		Status:            StatusPending,
	}
	e.AddDomainEvent(NewRenewalGeneratedEvent(e))
	return e, nil
}

// IdempotencyKey is the key sent with every invoice request of this event,
// so retries after a failure never create a second invoice
func (e *RenewalEvent) IdempotencyKey() string {
	return "renewal:" + e.ID.String()
}

// MarkInvoiced records the invoice reference
func (e *RenewalEvent) MarkInvoiced(invoiceRef string) error {
	if !e.Status.CanInvoice() {
		return shared.NewValidationError("INVALID_STATE",
			fmt.Sprintf("Cannot invoice a renewal in %s status", e.Status))
	}
	if invoiceRef == "" {
		return shared.NewValidationError("INVALID_INVOICE", "Invoice reference cannot be empty")
	}
	e.Attempts++
	e.Status = StatusInvoiced
	e.InvoiceRef = invoiceRef
	e.FailureReason = ""
	e.Touch()
	e.IncrementVersion()
	return nil
}

// MarkFailed records an invoicing failure; the event stays retryable
func (e *RenewalEvent) MarkFailed(reason string) error {
	if !e.Status.CanInvoice() {
		return shared.NewValidationError("INVALID_STATE",
			fmt.Sprintf("Cannot fail a renewal in %s status", e.Status))
	}
	e.Attempts++
	e.Status = StatusFailed
	e.FailureReason = reason
	e.Touch()
	e.IncrementVersion()
	return nil
}

// Confirm marks the renewal paid. Confirming twice is a no-op.
func (e *RenewalEvent) Confirm(now time.Time) (changed bool, err error) {
	if e.Status == StatusConfirmed {
		return false, nil
	}
	if e.Status != StatusInvoiced {
		return false, shared.NewValidationError("INVALID_STATE",
			fmt.Sprintf("Cannot confirm a renewal in %s status", e.Status))
	}
	at := now.UTC()
	e.Status = StatusConfirmed
	e.ConfirmedAt = &at
	e.Touch()
	e.IncrementVersion()
	e.AddDomainEvent(NewRenewalConfirmedEvent(e))
	return true, nil
}

// Cancel withdraws a renewal that has not been paid
func (e *RenewalEvent) Cancel(reason string) error {
	if e.Status.IsTerminal() {
		return shared.NewValidationError("INVALID_STATE",
			fmt.Sprintf("Cannot cancel a renewal in %s status", e.Status))
	}
	e.Status = StatusCancelled
	e.FailureReason = reason
	e.Touch()
	e.IncrementVersion()
	return nil
}
