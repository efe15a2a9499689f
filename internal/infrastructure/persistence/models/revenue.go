package models

import (
	"time"

	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/revenue"
	"github.com/ams/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RevenueScheduleModel is the persistence model for the RevenueSchedule aggregate
type RevenueScheduleModel struct {
	AggregateModel
	SubscriptionID         uuid.UUID                 `gorm:"type:uuid;not null;uniqueIndex:idx_revenue_schedule_period,priority:1"`
	TotalAmount            decimal.Decimal           `gorm:"type:decimal(18,2);not null"`
	Currency               string                    `gorm:"type:char(3);not null"`
	Method                 billing.RecognitionMethod `gorm:"column:recognition_method;type:varchar(20);not null"`
	PeriodStart            time.Time                 `gorm:"type:date;not null;uniqueIndex:idx_revenue_schedule_period,priority:2"`
	PeriodEnd              time.Time                 `gorm:"type:date;not null"`
	IntervalValue          int                       `gorm:"not null"`
	IntervalUnit           billing.DurationUnit      `gorm:"type:varchar(10);not null"`
	DeferredRevenueAccount string                    `gorm:"type:varchar(50);not null"`
	RevenueAccount         string                    `gorm:"type:varchar(50);not null"`
	Lines                  []RecognitionLineModel    `gorm:"foreignKey:ScheduleID"`
}

// TableName returns the table name for GORM
func (RevenueScheduleModel) TableName() string {
	return "revenue_schedules"
}

// ToDomain converts the persistence model to a domain RevenueSchedule
func (m *RevenueScheduleModel) ToDomain() *revenue.RevenueSchedule {
	s := &revenue.RevenueSchedule{
		BaseAggregateRoot: m.ToAggregateRoot(),
		SubscriptionID:    m.SubscriptionID,
		TotalAmount:       m.TotalAmount,
		Currency:          valueobject.Currency(m.Currency),
		Method:            m.Method,
		PeriodStart:       day(m.PeriodStart),
		PeriodEnd:         day(m.PeriodEnd),
		Interval:          billing.Duration{Value: m.IntervalValue, Unit: m.IntervalUnit},
		Accounts: billing.LedgerAccounts{
			DeferredRevenueAccount: m.DeferredRevenueAccount,
			RevenueAccount:         m.RevenueAccount,
		},
		Lines: make([]revenue.RecognitionLine, 0, len(m.Lines)),
	}
	for i := range m.Lines {
		s.Lines = append(s.Lines, *m.Lines[i].ToDomain())
	}
	return s
}

// FromDomain populates the persistence model, lines included
func (m *RevenueScheduleModel) FromDomain(s *revenue.RevenueSchedule) {
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	m.SubscriptionID = s.SubscriptionID
	m.TotalAmount = s.TotalAmount
	m.Currency = string(s.Currency)
	m.Method = s.Method
	m.PeriodStart = s.PeriodStart
	m.PeriodEnd = s.PeriodEnd
	m.IntervalValue = s.Interval.Value
	m.IntervalUnit = s.Interval.Unit
	m.DeferredRevenueAccount = s.Accounts.DeferredRevenueAccount
	m.RevenueAccount = s.Accounts.RevenueAccount
	m.Lines = make([]RecognitionLineModel, 0, len(s.Lines))
	for i := range s.Lines {
		m.Lines = append(m.Lines, *RecognitionLineModelFromDomain(&s.Lines[i]))
	}
}

// RevenueScheduleModelFromDomain creates a new persistence model from a domain RevenueSchedule
func RevenueScheduleModelFromDomain(s *revenue.RevenueSchedule) *RevenueScheduleModel {
	m := &RevenueScheduleModel{}
	m.FromDomain(s)
	return m
}

// RecognitionLineModel is one recognition slice of a schedule
type RecognitionLineModel struct {
	ID             uuid.UUID          `gorm:"type:uuid;primary_key"`
	ScheduleID     uuid.UUID          `gorm:"type:uuid;not null;index"`
	SubscriptionID uuid.UUID          `gorm:"type:uuid;not null;index"`
	Sequence       int                `gorm:"not null"`
	LineStart      time.Time          `gorm:"type:date;not null"`
	LineEnd        time.Time          `gorm:"type:date;not null;index:idx_recognition_line_due,priority:2"`
	Amount         decimal.Decimal    `gorm:"type:decimal(18,2);not null"`
	Status         revenue.LineStatus `gorm:"type:varchar(20);not null;index:idx_recognition_line_due,priority:1"`
	RecognizedDate *time.Time         `gorm:"type:date"`
	FailureCount   int                `gorm:"not null"`
	LastError      string             `gorm:"type:text"`
	LastFailedAt   *time.Time
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RecognitionLineModel) TableName() string {
	return "recognition_lines"
}

// ToDomain converts the persistence model to a domain RecognitionLine
func (m *RecognitionLineModel) ToDomain() *revenue.RecognitionLine {
	return &revenue.RecognitionLine{
		ID:             m.ID,
		ScheduleID:     m.ScheduleID,
		SubscriptionID: m.SubscriptionID,
		Sequence:       m.Sequence,
		LineStart:      day(m.LineStart),
		LineEnd:        day(m.LineEnd),
		Amount:         m.Amount,
		Status:         m.Status,
		RecognizedDate: dayPtr(m.RecognizedDate),
		FailureCount:   m.FailureCount,
		LastError:      m.LastError,
		LastFailedAt:   utcPtr(m.LastFailedAt),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

// RecognitionLineModelFromDomain creates a new persistence model from a domain RecognitionLine
func RecognitionLineModelFromDomain(l *revenue.RecognitionLine) *RecognitionLineModel {
	return &RecognitionLineModel{
		ID:             l.ID,
		ScheduleID:     l.ScheduleID,
		SubscriptionID: l.SubscriptionID,
		Sequence:       l.Sequence,
		LineStart:      l.LineStart,
		LineEnd:        l.LineEnd,
		Amount:         l.Amount,
		Status:         l.Status,
		RecognizedDate: l.RecognizedDate,
		FailureCount:   l.FailureCount,
		LastError:      l.LastError,
		LastFailedAt:   l.LastFailedAt,
		UpdatedAt:      l.UpdatedAt,
	}
}
