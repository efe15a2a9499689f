package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecognitionMethod decides how a paid amount moves from deferred revenue
// to revenue
type RecognitionMethod string

const (
	RecognitionImmediate RecognitionMethod = "immediate"
	RecognitionDeferred  RecognitionMethod = "deferred"
)

// IsValid checks if the method is a known RecognitionMethod
func (m RecognitionMethod) IsValid() bool {
	return m == RecognitionImmediate || m == RecognitionDeferred
}

func (m RecognitionMethod) String() string {
	return string(m)
}

// LedgerAccounts maps a plan to the accounts used for recognition postings
type LedgerAccounts struct {
	DeferredRevenueAccount string `json:"deferred_revenue_account"`
	RevenueAccount         string `json:"revenue_account"`
}

// IsComplete reports whether both accounts are mapped
func (a LedgerAccounts) IsComplete() bool {
	return strings.TrimSpace(a.DeferredRevenueAccount) != "" && strings.TrimSpace(a.RevenueAccount) != ""
}

// LifecyclePolicy holds the day counts the lifecycle engine applies
type LifecyclePolicy struct {
	// GracePeriodDays after paidThroughDate before a subscription lapses
	GracePeriodDays int `json:"grace_period_days"`
	// SuspendDays a manual suspension lasts before it lapses
	SuspendDays int `json:"suspend_days"`
}

// DefaultLifecyclePolicy returns the default policy
func DefaultLifecyclePolicy() LifecyclePolicy {
	return LifecyclePolicy{
		GracePeriodDays: 30,
		SuspendDays:     60,
	}
}

// Validate checks the day counts
func (p LifecyclePolicy) Validate() error {
	if p.GracePeriodDays < 0 {
		return shared.NewConfigurationError("INVALID_LIFECYCLE_POLICY", "Grace period days cannot be negative")
	}
	if p.SuspendDays <= 0 {
		return shared.NewConfigurationError("INVALID_LIFECYCLE_POLICY", "Suspend days must be positive")
	}
	return nil
}

// DayOffsets is a list of day counts stored as JSON
type DayOffsets []int

// DefaultReminderDays are the offsets before paidThroughDate at which a
// renewal reminder goes out
func DefaultReminderDays() DayOffsets {
	return DayOffsets{90, 60, 30, 7}
}

// Contains reports whether days is one of the offsets
func (d DayOffsets) Contains(days int) bool {
	for _, v := range d {
		if v == days {
			return true
		}
	}
	return false
}

// ParseDayOffsets parses "90,60,30,7"
func ParseDayOffsets(s string) (DayOffsets, error) {
	var out DayOffsets
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(part, "%d", &n); err != nil {
			return nil, shared.NewValidationError("INVALID_REMINDER_DAYS", fmt.Sprintf("invalid reminder day %q", part))
		}
		out = append(out, n)
	}
	return out, nil
}

// Value implements driver.Valuer for JSONB storage
func (d DayOffsets) Value() (driver.Value, error) {
	if d == nil {
		return "[]", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSONB retrieval
func (d *DayOffsets) Scan(value any) error {
	if value == nil {
		*d = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte or string failed")
	}
	return json.Unmarshal(bytes, d)
}

// Plan is a priced subscription offering
type Plan struct {
	shared.BaseAggregateRoot
	Code                  string               `json:"code"`
	Name                  string               `json:"name"`
	Amount                decimal.Decimal      `json:"amount"`
	Currency              valueobject.Currency `json:"currency"`
	BillingPeriodID       uuid.UUID            `json:"billing_period_id"`
	RecognitionMethod     RecognitionMethod    `json:"recognition_method"`
	RecognitionIntervalID *uuid.UUID           `json:"recognition_interval_id,omitempty"`
	LedgerAccounts        LedgerAccounts       `json:"ledger_accounts"`
	Policy                LifecyclePolicy      `json:"lifecycle_policy"`
	RenewalNoticeDays     int                  `json:"renewal_notice_days"`
	ReminderDays          DayOffsets           `json:"reminder_days"`
	AutoRenewDefault      bool                 `json:"auto_renew_default"`
	PerSeat               bool                 `json:"per_seat"`
	Active                bool                 `json:"active"`
}

// NewPlan creates a plan with default lifecycle and renewal settings.
// Recognition method and ledger accounts must be configured before a
// subscription on the plan can be activated.
func NewPlan(code, name string, amount decimal.Decimal, currency valueobject.Currency, billingPeriodID uuid.UUID) (*Plan, error) {
	code = strings.TrimSpace(code)
	if err := validateCode(code); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewValidationError("INVALID_NAME", "Plan name cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Plan amount must be positive")
	}
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}
	if billingPeriodID == uuid.Nil {
		return nil, shared.NewConfigurationError("MISSING_BILLING_PERIOD", "Plan must reference a billing period")
	}

	p := &Plan{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              strings.ToUpper(code),
		Name:              name,
		Amount:            amount.Round(valueobject.CentPlaces),
		Currency:          currency,
		BillingPeriodID:   billingPeriodID,
		Policy:            DefaultLifecyclePolicy(),
		RenewalNoticeDays: 30,
		ReminderDays:      DefaultReminderDays(),
		AutoRenewDefault:  true,
		Active:            true,
	}
	p.AddDomainEvent(NewPlanCreatedEvent(p))
	return p, nil
}

// ConfigureRecognition sets the recognition method and, for deferred
// plans, the interval billing period (nil means monthly)
func (p *Plan) ConfigureRecognition(method RecognitionMethod, intervalID *uuid.UUID) error {
	if !method.IsValid() {
		return shared.NewConfigurationError("INVALID_RECOGNITION_METHOD",
			fmt.Sprintf("Recognition method %q must be immediate or deferred", method))
	}
	p.RecognitionMethod = method
	if method == RecognitionImmediate {
		intervalID = nil
	}
	p.RecognitionIntervalID = intervalID
	p.Touch()
	return nil
}

// ConfigureLedgerAccounts sets the deferred revenue / revenue mapping
func (p *Plan) ConfigureLedgerAccounts(accounts LedgerAccounts) error {
	if !accounts.IsComplete() {
		return shared.NewConfigurationError("MISSING_LEDGER_ACCOUNT", "Both deferred revenue and revenue accounts are required")
	}
	p.LedgerAccounts = accounts
	p.Touch()
	return nil
}

// ConfigureLifecycle replaces the lifecycle policy
func (p *Plan) ConfigureLifecycle(policy LifecyclePolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	p.Policy = policy
	p.Touch()
	return nil
}

// ConfigureRenewal sets the renewal notice window and reminder offsets.
// periodDays is the plan billing period's TotalDaysApprox.
func (p *Plan) ConfigureRenewal(noticeDays int, reminderDays DayOffsets, autoRenew bool, periodDays int) error {
	if noticeDays < 0 {
		return shared.NewConfigurationError("INVALID_RENEWAL_NOTICE", "Renewal notice days cannot be negative")
	}
	for _, d := range reminderDays {
		if d < 0 {
			return shared.NewConfigurationError("INVALID_REMINDER_DAYS", "Reminder days cannot be negative")
		}
		if periodDays > 0 && d > periodDays {
			return shared.NewConfigurationError("INVALID_REMINDER_DAYS",
				fmt.Sprintf("Reminder day %d exceeds the billing period length of %d days", d, periodDays))
		}
	}
	sorted := append(DayOffsets(nil), reminderDays...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	p.RenewalNoticeDays = noticeDays
	p.ReminderDays = sorted
	p.AutoRenewDefault = autoRenew
	p.Touch()
	return nil
}

// EnablePerSeat prices the plan per seat (enterprise memberships)
func (p *Plan) EnablePerSeat(enabled bool) {
	p.PerSeat = enabled
	p.Touch()
}

// Deactivate hides the plan from new subscriptions
func (p *Plan) Deactivate() {
	p.Active = false
	p.Touch()
	p.IncrementVersion()
}

// PriceFor returns the per-period price for the given seat count
func (p *Plan) PriceFor(seats int) decimal.Decimal {
	if p.PerSeat && seats > 0 {
		return p.Amount.Mul(decimal.NewFromInt(int64(seats)))
	}
	return p.Amount
}

// ValidateForProcessing reports a ConfigurationError when the plan lacks
// anything the lifecycle, renewal or recognition engines need
func (p *Plan) ValidateForProcessing() error {
	if p.BillingPeriodID == uuid.Nil {
		return shared.NewConfigurationError("MISSING_BILLING_PERIOD", fmt.Sprintf("Plan %s has no billing period", p.Code))
	}
	if !p.RecognitionMethod.IsValid() {
		return shared.NewConfigurationError("MISSING_RECOGNITION_METHOD", fmt.Sprintf("Plan %s has no recognition method", p.Code))
	}
	if !p.LedgerAccounts.IsComplete() {
		return shared.NewConfigurationError("MISSING_LEDGER_ACCOUNT", fmt.Sprintf("Plan %s has no ledger account mapping", p.Code))
	}
	return p.Policy.Validate()
}
