package subscription

import (
	"context"

	"github.com/ams/backend/internal/domain/renewal"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/subscription"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// balanceChecker sums what a subscriber still owes on the subscription's
// open renewal invoices and plan change adjustment invoices
type balanceChecker struct {
	renewalRepo    renewal.RenewalEventRepository
	planChangeRepo subscription.PlanChangeRepository
	invoicing      renewal.Invoicing
}

func (b *balanceChecker) Outstanding(ctx context.Context, subscriptionID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero

	events, err := b.renewalRepo.FindOpenBySubscription(ctx, subscriptionID)
	if err != nil {
		return decimal.Zero, err
	}
	refs := make([]string, 0, len(events))
	for _, e := range events {
		if e.Status == renewal.StatusInvoiced && e.InvoiceRef != "" {
			refs = append(refs, e.InvoiceRef)
		}
	}

	changes, err := b.planChangeRepo.FindBySubscription(ctx, subscriptionID)
	if err != nil {
		return decimal.Zero, err
	}
	for _, pc := range changes {
		if pc.AdjustmentInvoiceRef != "" {
			refs = append(refs, pc.AdjustmentInvoiceRef)
		}
	}

	for _, ref := range refs {
		status, err := b.invoicing.GetInvoiceStatus(ctx, ref)
		if err != nil {
			return decimal.Zero, shared.NewProcessingError("INVOICE_STATUS_FAILED", "get invoice status "+ref, err)
		}
		if !status.Paid {
			total = total.Add(status.OutstandingBalance)
		}
	}
	return total, nil
}
