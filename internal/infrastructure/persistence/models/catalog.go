package models

import (
	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingPeriodModel is the persistence model for the BillingPeriod aggregate
type BillingPeriodModel struct {
	AggregateModel
	Code          string               `gorm:"type:varchar(25);not null;uniqueIndex"`
	Name          string               `gorm:"type:varchar(100);not null"`
	DurationValue int                  `gorm:"not null"`
	DurationUnit  billing.DurationUnit `gorm:"type:varchar(10);not null"`
	IsDefault     bool                 `gorm:"not null;index"`
	Active        bool                 `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BillingPeriodModel) TableName() string {
	return "billing_periods"
}

// ToDomain converts the persistence model to a domain BillingPeriod
func (m *BillingPeriodModel) ToDomain() *billing.BillingPeriod {
	return &billing.BillingPeriod{
		BaseAggregateRoot: m.ToAggregateRoot(),
		Code:              m.Code,
		Name:              m.Name,
		Duration:          billing.Duration{Value: m.DurationValue, Unit: m.DurationUnit},
		IsDefault:         m.IsDefault,
		Active:            m.Active,
	}
}

// FromDomain populates the persistence model from a domain BillingPeriod
func (m *BillingPeriodModel) FromDomain(bp *billing.BillingPeriod) {
	m.FromDomainAggregateRoot(bp.BaseAggregateRoot)
	m.Code = bp.Code
	m.Name = bp.Name
	m.DurationValue = bp.Duration.Value
	m.DurationUnit = bp.Duration.Unit
	m.IsDefault = bp.IsDefault
	m.Active = bp.Active
}

// BillingPeriodModelFromDomain creates a new persistence model from a domain BillingPeriod
func BillingPeriodModelFromDomain(bp *billing.BillingPeriod) *BillingPeriodModel {
	m := &BillingPeriodModel{}
	m.FromDomain(bp)
	return m
}

// PlanModel is the persistence model for the Plan aggregate
type PlanModel struct {
	AggregateModel
	Code                   string                    `gorm:"type:varchar(25);not null;uniqueIndex"`
	Name                   string                    `gorm:"type:varchar(200);not null"`
	Amount                 decimal.Decimal           `gorm:"type:decimal(18,2);not null"`
	Currency               string                    `gorm:"type:char(3);not null"`
	BillingPeriodID        uuid.UUID                 `gorm:"type:uuid;not null;index"`
	RecognitionMethod      billing.RecognitionMethod `gorm:"type:varchar(20);not null"`
	RecognitionIntervalID  *uuid.UUID                `gorm:"type:uuid"`
	DeferredRevenueAccount string                    `gorm:"type:varchar(50)"`
	RevenueAccount         string                    `gorm:"type:varchar(50)"`
	GracePeriodDays        int                       `gorm:"not null"`
	SuspendDays            int                       `gorm:"not null"`
	RenewalNoticeDays      int                       `gorm:"not null"`
	ReminderDays           billing.DayOffsets        `gorm:"type:jsonb;not null"`
	AutoRenewDefault       bool                      `gorm:"not null"`
	PerSeat                bool                      `gorm:"not null"`
	Active                 bool                      `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (PlanModel) TableName() string {
	return "plans"
}

// ToDomain converts the persistence model to a domain Plan
func (m *PlanModel) ToDomain() *billing.Plan {
	return &billing.Plan{
		BaseAggregateRoot:     m.ToAggregateRoot(),
		Code:                  m.Code,
		Name:                  m.Name,
		Amount:                m.Amount,
		Currency:              valueobject.Currency(m.Currency),
		BillingPeriodID:       m.BillingPeriodID,
		RecognitionMethod:     m.RecognitionMethod,
		RecognitionIntervalID: m.RecognitionIntervalID,
		LedgerAccounts: billing.LedgerAccounts{
			DeferredRevenueAccount: m.DeferredRevenueAccount,
			RevenueAccount:         m.RevenueAccount,
		},
		Policy: billing.LifecyclePolicy{
			GracePeriodDays: m.GracePeriodDays,
			SuspendDays:     m.SuspendDays,
		},
		RenewalNoticeDays: m.RenewalNoticeDays,
		ReminderDays:      m.ReminderDays,
		AutoRenewDefault:  m.AutoRenewDefault,
		PerSeat:           m.PerSeat,
		Active:            m.Active,
	}
}

// FromDomain populates the persistence model from a domain Plan
func (m *PlanModel) FromDomain(p *billing.Plan) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.Code = p.Code
	m.Name = p.Name
	m.Amount = p.Amount
	m.Currency = string(p.Currency)
	m.BillingPeriodID = p.BillingPeriodID
	m.RecognitionMethod = p.RecognitionMethod
	m.RecognitionIntervalID = p.RecognitionIntervalID
	m.DeferredRevenueAccount = p.LedgerAccounts.DeferredRevenueAccount
	m.RevenueAccount = p.LedgerAccounts.RevenueAccount
	m.GracePeriodDays = p.Policy.GracePeriodDays
	m.SuspendDays = p.Policy.SuspendDays
	m.RenewalNoticeDays = p.RenewalNoticeDays
	m.ReminderDays = p.ReminderDays
	m.AutoRenewDefault = p.AutoRenewDefault
	m.PerSeat = p.PerSeat
	m.Active = p.Active
}

// PlanModelFromDomain creates a new persistence model from a domain Plan
func PlanModelFromDomain(p *billing.Plan) *PlanModel {
	m := &PlanModel{}
	m.FromDomain(p)
	return m
}
