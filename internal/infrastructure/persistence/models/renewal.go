package models

import (
	"time"

	"github.com/ams/backend/internal/domain/renewal"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RenewalEventModel is the persistence model for the RenewalEvent aggregate.
// (subscription_id, due_date) is unique: one invoice per renewal.
type RenewalEventModel struct {
	AggregateModel
	SubscriptionID uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_renewal_event_due,priority:1"`
	DueDate        time.Time           `gorm:"type:date;not null;uniqueIndex:idx_renewal_event_due,priority:2"`
	Amount         decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	Status         renewal.EventStatus `gorm:"type:varchar(20);not null;index"`
	InvoiceRef     string              `gorm:"type:varchar(100)"`
	FailureReason  string              `gorm:"type:text"`
	Attempts       int                 `gorm:"not null"`
	ConfirmedAt    *time.Time
}

// TableName returns the table name for GORM
func (RenewalEventModel) TableName() string {
	return "renewal_events"
}

// ToDomain converts the persistence model to a domain RenewalEvent
func (m *RenewalEventModel) ToDomain() *renewal.RenewalEvent {
	return &renewal.RenewalEvent{
		BaseAggregateRoot: m.ToAggregateRoot(),
		SubscriptionID:    m.SubscriptionID,
		DueDate:           day(m.DueDate),
		Amount:            m.Amount,
		Status:            m.Status,
		InvoiceRef:        m.InvoiceRef,
		FailureReason:     m.FailureReason,
		Attempts:          m.Attempts,
		ConfirmedAt:       utcPtr(m.ConfirmedAt),
	}
}

// FromDomain populates the persistence model from a domain RenewalEvent
func (m *RenewalEventModel) FromDomain(e *renewal.RenewalEvent) {
	m.FromDomainAggregateRoot(e.BaseAggregateRoot)
	m.SubscriptionID = e.SubscriptionID
	m.DueDate = e.DueDate
	m.Amount = e.Amount
	m.Status = e.Status
	m.InvoiceRef = e.InvoiceRef
	m.FailureReason = e.FailureReason
	m.Attempts = e.Attempts
	m.ConfirmedAt = e.ConfirmedAt
}

// RenewalEventModelFromDomain creates a new persistence model from a domain RenewalEvent
func RenewalEventModelFromDomain(e *renewal.RenewalEvent) *RenewalEventModel {
	m := &RenewalEventModel{}
	m.FromDomain(e)
	return m
}
