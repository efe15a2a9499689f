package models

import (
	"time"

	"github.com/ams/backend/internal/domain/shared/valueobject"
	"github.com/ams/backend/internal/domain/subscription"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubscriptionModel is the persistence model for the Subscription aggregate.
// Business dates are DATE columns; LastManualChangeAt is a full timestamp.
type SubscriptionModel struct {
	AggregateModel
	SubscriberRef        string                  `gorm:"type:varchar(100);not null;index"`
	PlanID               uuid.UUID               `gorm:"type:uuid;not null;index"`
	BillingPeriodID      uuid.UUID               `gorm:"type:uuid;not null;index"`
	Kind                 subscription.Kind       `gorm:"type:varchar(20);not null"`
	Attributes           subscription.Attributes `gorm:"type:jsonb;not null"`
	SeatCount            int                     `gorm:"not null"`
	Status               subscription.Status     `gorm:"type:varchar(20);not null;index"`
	StartDate            time.Time               `gorm:"type:date;not null"`
	CurrentPeriodStart   *time.Time              `gorm:"type:date"`
	PaidThroughDate      *time.Time              `gorm:"type:date;index"`
	GraceEndDate         *time.Time              `gorm:"type:date"`
	SuspendEndDate       *time.Time              `gorm:"type:date"`
	TerminateDate        *time.Time              `gorm:"type:date"`
	CancelledDate        *time.Time              `gorm:"type:date"`
	Amount               decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	Currency             string                  `gorm:"type:char(3);not null"`
	AutoRenew            bool                    `gorm:"not null"`
	StatusReason         string                  `gorm:"type:varchar(500)"`
	LastManualChangeAt   *time.Time
	LastManualChangeDate *time.Time `gorm:"type:date"`
}

// TableName returns the table name for GORM
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToDomain converts the persistence model to a domain Subscription
func (m *SubscriptionModel) ToDomain() *subscription.Subscription {
	attrs := m.Attributes
	if attrs == nil {
		attrs = subscription.Attributes{}
	}
	return &subscription.Subscription{
		BaseAggregateRoot:    m.ToAggregateRoot(),
		SubscriberRef:        m.SubscriberRef,
		PlanID:               m.PlanID,
		BillingPeriodID:      m.BillingPeriodID,
		Kind:                 m.Kind,
		Attributes:           attrs,
		SeatCount:            m.SeatCount,
		Status:               m.Status,
		StartDate:            day(m.StartDate),
		CurrentPeriodStart:   dayPtr(m.CurrentPeriodStart),
		PaidThroughDate:      dayPtr(m.PaidThroughDate),
		GraceEndDate:         dayPtr(m.GraceEndDate),
		SuspendEndDate:       dayPtr(m.SuspendEndDate),
		TerminateDate:        dayPtr(m.TerminateDate),
		CancelledDate:        dayPtr(m.CancelledDate),
		Amount:               m.Amount,
		Currency:             valueobject.Currency(m.Currency),
		AutoRenew:            m.AutoRenew,
		StatusReason:         m.StatusReason,
		LastManualChangeAt:   utcPtr(m.LastManualChangeAt),
		LastManualChangeDate: dayPtr(m.LastManualChangeDate),
	}
}

// FromDomain populates the persistence model from a domain Subscription
func (m *SubscriptionModel) FromDomain(s *subscription.Subscription) {
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	m.SubscriberRef = s.SubscriberRef
	m.PlanID = s.PlanID
	m.BillingPeriodID = s.BillingPeriodID
	m.Kind = s.Kind
	m.Attributes = s.Attributes
	m.SeatCount = s.SeatCount
	m.Status = s.Status
	m.StartDate = s.StartDate
	m.CurrentPeriodStart = s.CurrentPeriodStart
	m.PaidThroughDate = s.PaidThroughDate
	m.GraceEndDate = s.GraceEndDate
	m.SuspendEndDate = s.SuspendEndDate
	m.TerminateDate = s.TerminateDate
	m.CancelledDate = s.CancelledDate
	m.Amount = s.Amount
	m.Currency = string(s.Currency)
	m.AutoRenew = s.AutoRenew
	m.StatusReason = s.StatusReason
	m.LastManualChangeAt = s.LastManualChangeAt
	m.LastManualChangeDate = s.LastManualChangeDate
}

// SubscriptionModelFromDomain creates a new persistence model from a domain Subscription
func SubscriptionModelFromDomain(s *subscription.Subscription) *SubscriptionModel {
	m := &SubscriptionModel{}
	m.FromDomain(s)
	return m
}

// PlanChangeModel is the append-mostly audit row of an applied plan change
type PlanChangeModel struct {
	BaseModel
	SubscriptionID       uuid.UUID               `gorm:"type:uuid;not null;index"`
	OldPlanID            uuid.UUID               `gorm:"type:uuid;not null"`
	NewPlanID            uuid.UUID               `gorm:"type:uuid;not null"`
	EffectiveDate        time.Time               `gorm:"type:date;not null"`
	Reason               string                  `gorm:"type:varchar(500)"`
	ChangeType           subscription.ChangeType `gorm:"type:varchar(20);not null"`
	OldAmount            decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	NewAmount            decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	DaysRemaining        int                     `gorm:"not null"`
	TotalDaysInPeriod    int                     `gorm:"not null"`
	CreditAmount         decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	ChargeAmount         decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	NetAdjustment        decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	RequiresApproval     bool                    `gorm:"not null"`
	AdjustmentInvoiceRef string                  `gorm:"type:varchar(100)"`
	InvoiceError         string                  `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (PlanChangeModel) TableName() string {
	return "plan_changes"
}

// ToDomain converts the persistence model to a domain PlanChange
func (m *PlanChangeModel) ToDomain() *subscription.PlanChange {
	return &subscription.PlanChange{
		BaseEntity:           m.BaseModel.ToDomain(),
		SubscriptionID:       m.SubscriptionID,
		OldPlanID:            m.OldPlanID,
		NewPlanID:            m.NewPlanID,
		EffectiveDate:        day(m.EffectiveDate),
		Reason:               m.Reason,
		ChangeType:           m.ChangeType,
		OldAmount:            m.OldAmount,
		NewAmount:            m.NewAmount,
		DaysRemaining:        m.DaysRemaining,
		TotalDaysInPeriod:    m.TotalDaysInPeriod,
		CreditAmount:         m.CreditAmount,
		ChargeAmount:         m.ChargeAmount,
		NetAdjustment:        m.NetAdjustment,
		RequiresApproval:     m.RequiresApproval,
		AdjustmentInvoiceRef: m.AdjustmentInvoiceRef,
		InvoiceError:         m.InvoiceError,
	}
}

// FromDomain populates the persistence model from a domain PlanChange
func (m *PlanChangeModel) FromDomain(pc *subscription.PlanChange) {
	m.FromDomainBaseEntity(pc.BaseEntity)
	m.SubscriptionID = pc.SubscriptionID
	m.OldPlanID = pc.OldPlanID
	m.NewPlanID = pc.NewPlanID
	m.EffectiveDate = pc.EffectiveDate
	m.Reason = pc.Reason
	m.ChangeType = pc.ChangeType
	m.OldAmount = pc.OldAmount
	m.NewAmount = pc.NewAmount
	m.DaysRemaining = pc.DaysRemaining
	m.TotalDaysInPeriod = pc.TotalDaysInPeriod
	m.CreditAmount = pc.CreditAmount
	m.ChargeAmount = pc.ChargeAmount
	m.NetAdjustment = pc.NetAdjustment
	m.RequiresApproval = pc.RequiresApproval
	m.AdjustmentInvoiceRef = pc.AdjustmentInvoiceRef
	m.InvoiceError = pc.InvoiceError
}

// PlanChangeModelFromDomain creates a new persistence model from a domain PlanChange
func PlanChangeModelFromDomain(pc *subscription.PlanChange) *PlanChangeModel {
	m := &PlanChangeModel{}
	m.FromDomain(pc)
	return m
}

