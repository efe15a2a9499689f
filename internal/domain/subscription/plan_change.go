package subscription

import (
	"time"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanChange is the audit record of an applied plan change
type PlanChange struct {
	shared.BaseEntity
	SubscriptionID       uuid.UUID       `json:"subscription_id"`
	OldPlanID            uuid.UUID       `json:"old_plan_id"`
	NewPlanID            uuid.UUID       `json:"new_plan_id"`
	EffectiveDate        time.Time       `json:"effective_date"`
	Reason               string          `json:"reason"`
	ChangeType           ChangeType      `json:"change_type"`
	OldAmount            decimal.Decimal `json:"old_amount"`
	NewAmount            decimal.Decimal `json:"new_amount"`
	DaysRemaining        int             `json:"days_remaining"`
	TotalDaysInPeriod    int             `json:"total_days_in_period"`
	CreditAmount         decimal.Decimal `json:"credit_amount"`
	ChargeAmount         decimal.Decimal `json:"charge_amount"`
	NetAdjustment        decimal.Decimal `json:"net_adjustment"`
	RequiresApproval     bool            `json:"requires_approval"`
	AdjustmentInvoiceRef string          `json:"adjustment_invoice_ref,omitempty"`
	InvoiceError         string          `json:"invoice_error,omitempty"`
}

// NewPlanChange records a proration result. Downgrades and adjustments
// larger than approvalThreshold (when positive) are flagged for approval.
func NewPlanChange(subscriptionID, oldPlanID, newPlanID uuid.UUID, reason string, result *ProrationResult, approvalThreshold decimal.Decimal) *PlanChange {
	requiresApproval := result.ChangeType == ChangeDowngrade
	if approvalThreshold.IsPositive() && result.NetAdjustment.Abs().GreaterThan(approvalThreshold) {
		requiresApproval = true
	}
	return &PlanChange{
		BaseEntity:        shared.NewBaseEntity(),
		SubscriptionID:    subscriptionID,
		OldPlanID:         oldPlanID,
		NewPlanID:         newPlanID,
		EffectiveDate:     result.EffectiveDate,
		Reason:            reason,
		ChangeType:        result.ChangeType,
		OldAmount:         result.OldAmount,
		NewAmount:         result.NewAmount,
		DaysRemaining:     result.DaysRemaining,
		TotalDaysInPeriod: result.TotalDaysInPeriod,
		CreditAmount:      result.CreditAmount,
		ChargeAmount:      result.ChargeAmount,
		NetAdjustment:     result.NetAdjustment,
		RequiresApproval:  requiresApproval,
	}
}

// NeedsAdjustmentInvoice is true when the member owes money
func (pc *PlanChange) NeedsAdjustmentInvoice() bool {
	return pc.NetAdjustment.IsPositive() && pc.AdjustmentInvoiceRef == ""
}

// IdempotencyKey is the key used for the adjustment invoice
func (pc *PlanChange) IdempotencyKey() string {
	return "planchange:" + pc.ID.String()
}

// RecordInvoice stores the adjustment invoice reference
func (pc *PlanChange) RecordInvoice(ref string) {
	pc.AdjustmentInvoiceRef = ref
	pc.InvoiceError = ""
	pc.Touch()
}

// RecordInvoiceFailure keeps the last invoicing error for operators
func (pc *PlanChange) RecordInvoiceFailure(err error) {
	pc.InvoiceError = err.Error()
	pc.Touch()
}
