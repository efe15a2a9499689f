package billing

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ams/backend/internal/domain/shared"
)

const maxCodeLength = 25

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// BillingPeriod is a named, reusable duration (e.g. ANNUAL = 1 year)
type BillingPeriod struct {
	shared.BaseAggregateRoot
	Code      string   `json:"code"`
	Name      string   `json:"name"`
	Duration  Duration `json:"duration"`
	IsDefault bool     `json:"is_default"`
	Active    bool     `json:"active"`
}

// NewBillingPeriod creates a new billing period
func NewBillingPeriod(code, name string, value int, unit DurationUnit) (*BillingPeriod, error) {
	code = strings.TrimSpace(code)
	if err := validateCode(code); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewValidationError("INVALID_NAME", "Billing period name cannot be empty")
	}
	duration, err := NewDuration(value, unit)
	if err != nil {
		return nil, err
	}

	bp := &BillingPeriod{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              strings.ToUpper(code),
		Name:              name,
		Duration:          duration,
		Active:            true,
	}
	bp.AddDomainEvent(NewBillingPeriodCreatedEvent(bp))
	return bp, nil
}

func validateCode(code string) error {
	if code == "" {
		return shared.NewValidationError("INVALID_CODE", "Code cannot be empty")
	}
	if len(code) > maxCodeLength {
		return shared.NewValidationError("INVALID_CODE", fmt.Sprintf("Code cannot exceed %d characters", maxCodeLength))
	}
	if !codePattern.MatchString(code) {
		return shared.NewValidationError("INVALID_CODE", "Code can only contain letters, numbers, underscores and hyphens")
	}
	return nil
}

// TotalDaysApprox is the nominal length in days
func (bp *BillingPeriod) TotalDaysApprox() int {
	return bp.Duration.TotalDaysApprox()
}

// NextDate is the start date of the period following the one starting at from
func (bp *BillingPeriod) NextDate(from time.Time) time.Time {
	return bp.Duration.NextDate(from)
}

// PeriodRange is the inclusive range of the period starting at from
func (bp *BillingPeriod) PeriodRange(from time.Time) DateRange {
	return bp.Duration.PeriodRange(from)
}

// ChangeDuration updates the duration. Periods referenced by live
// subscriptions are immutable so past and future dates stay consistent.
func (bp *BillingPeriod) ChangeDuration(value int, unit DurationUnit, referenced bool) error {
	if referenced {
		return shared.NewConfigurationError("BILLING_PERIOD_IN_USE",
			fmt.Sprintf("Billing period %s is referenced by active subscriptions and cannot change duration", bp.Code))
	}
	d, err := NewDuration(value, unit)
	if err != nil {
		return err
	}
	bp.Duration = d
	bp.Touch()
	bp.IncrementVersion()
	return nil
}

// MarkDefault flags this period as the system default. The caller clears
// the flag on the previous default inside the same transaction.
func (bp *BillingPeriod) MarkDefault() error {
	if !bp.Active {
		return shared.NewValidationError("INVALID_STATE", "An inactive billing period cannot be the default")
	}
	bp.IsDefault = true
	bp.Touch()
	bp.IncrementVersion()
	return nil
}

// ClearDefault removes the default flag
func (bp *BillingPeriod) ClearDefault() {
	if !bp.IsDefault {
		return
	}
	bp.IsDefault = false
	bp.Touch()
	bp.IncrementVersion()
}

// Deactivate hides the period from new plans
func (bp *BillingPeriod) Deactivate() error {
	if bp.IsDefault {
		return shared.NewValidationError("INVALID_STATE", "The default billing period cannot be deactivated")
	}
	bp.Active = false
	bp.Touch()
	bp.IncrementVersion()
	return nil
}
