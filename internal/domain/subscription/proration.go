package subscription

import (
	"fmt"
	"time"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ChangeType classifies a plan change by price direction
type ChangeType string

const (
	ChangeUpgrade   ChangeType = "upgrade"
	ChangeDowngrade ChangeType = "downgrade"
	ChangeLateral   ChangeType = "lateral"
)

// ProrationInput describes the current paid period and the two prices
type ProrationInput struct {
	OldAmount          decimal.Decimal
	NewAmount          decimal.Decimal
	Currency           valueobject.Currency
	CurrentPeriodStart time.Time
	PaidThroughDate    time.Time
	EffectiveDate      time.Time
}

// ProrationResult is the credit / charge split of a mid-period change
type ProrationResult struct {
	OldAmount         decimal.Decimal `json:"old_amount"`
	NewAmount         decimal.Decimal `json:"new_amount"`
	DaysRemaining     int             `json:"days_remaining"`
	TotalDaysInPeriod int             `json:"total_days_in_period"`
	CreditAmount      decimal.Decimal `json:"credit_amount"`
	ChargeAmount      decimal.Decimal `json:"charge_amount"`
	NetAdjustment     decimal.Decimal `json:"net_adjustment"`
	EffectiveDate     time.Time       `json:"effective_date"`
	ChangeType        ChangeType      `json:"change_type"`
}

// ProrationCalculator computes plan change adjustments.
//
// daysRemaining counts from effectiveDate (inclusive) to paidThroughDate
// (exclusive); totalDays is the length of the current paid period. Credit
// and charge are each rounded half-up to cents.
type ProrationCalculator struct{}

// NewProrationCalculator creates a calculator
func NewProrationCalculator() *ProrationCalculator {
	return &ProrationCalculator{}
}

// Calculate returns the proration for in. It has no side effects.
func (c *ProrationCalculator) Calculate(in ProrationInput) (*ProrationResult, error) {
	if in.OldAmount.IsNegative() || in.NewAmount.IsNegative() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Plan amounts cannot be negative")
	}
	start := shared.TruncateDay(in.CurrentPeriodStart)
	paidThrough := shared.TruncateDay(in.PaidThroughDate)
	effective := shared.TruncateDay(in.EffectiveDate)

	totalDays := shared.DaysBetween(start, paidThrough)
	if totalDays <= 0 {
		return nil, shared.NewValidationError("INVALID_PERIOD", "Current period has no days")
	}
	if effective.Before(start) || effective.After(paidThrough) {
		return nil, shared.NewValidationError("INVALID_EFFECTIVE_DATE",
			fmt.Sprintf("Effective date %s must fall within the current period %s to %s",
				shared.FormatDate(effective), shared.FormatDate(start), shared.FormatDate(paidThrough)))
	}
	daysRemaining := shared.DaysBetween(effective, paidThrough)

	currency := in.Currency
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}
	oldAmount, err := valueobject.NewMoney(in.OldAmount, currency)
	if err != nil {
		return nil, err
	}
	newAmount, err := valueobject.NewMoney(in.NewAmount, currency)
	if err != nil {
		return nil, err
	}
	credit, err := oldAmount.ProRate(int64(daysRemaining), int64(totalDays))
	if err != nil {
		return nil, err
	}
	charge, err := newAmount.ProRate(int64(daysRemaining), int64(totalDays))
	if err != nil {
		return nil, err
	}
	net, err := charge.Subtract(credit)
	if err != nil {
		return nil, err
	}

	return &ProrationResult{
		OldAmount:         in.OldAmount,
		NewAmount:         in.NewAmount,
		DaysRemaining:     daysRemaining,
		TotalDaysInPeriod: totalDays,
		CreditAmount:      credit.Amount(),
		ChargeAmount:      charge.Amount(),
		NetAdjustment:     net.Amount(),
		EffectiveDate:     effective,
		ChangeType:        classifyChange(in.OldAmount, in.NewAmount),
	}, nil
}

func classifyChange(oldAmount, newAmount decimal.Decimal) ChangeType {
	switch newAmount.Cmp(oldAmount) {
	case 1:
		return ChangeUpgrade
	case -1:
		return ChangeDowngrade
	default:
		return ChangeLateral
	}
}
