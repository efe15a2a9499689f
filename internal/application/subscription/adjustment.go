package subscription

import (
	"context"

	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/renewal"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/subscription"
	"go.uber.org/zap"
)

// adjustmentInvoicer requests the invoice owed after an upgrade. A failure
// is kept on the plan change and queued; the plan change itself stands.
type adjustmentInvoicer struct {
	planChangeRepo subscription.PlanChangeRepository
	invoicing      renewal.Invoicing
	failures       *failureQueue
	clock          shared.Clock
	logger         *zap.Logger
}

func (a *adjustmentInvoicer) Invoice(ctx context.Context, sub *subscription.Subscription, pc *subscription.PlanChange) error {
	if !pc.NeedsAdjustmentInvoice() {
		return nil
	}
	ref, err := a.invoicing.CreateInvoice(ctx, sub.SubscriberRef, pc.NetAdjustment, pc.EffectiveDate, pc.IdempotencyKey())
	if err != nil {
		perr := shared.NewProcessingError("INVOICE_FAILED", "create plan change adjustment invoice", err)
		pc.RecordInvoiceFailure(perr)
		if saveErr := a.planChangeRepo.Save(ctx, pc); saveErr != nil {
			a.logger.Error("Failed to save plan change invoice failure",
				zap.String("plan_change_id", pc.ID.String()),
				zap.Error(saveErr),
			)
		}
		a.failures.Record(ctx, processing.FailureSubject{
			JobType:        processing.JobRenewal,
			SubjectType:    processing.SubjectPlanChange,
			SubjectID:      pc.ID,
			SubscriptionID: sub.ID,
			IdempotencyKey: pc.IdempotencyKey(),
		}, perr, a.clock.Now())
		return perr
	}

	pc.RecordInvoice(ref)
	if err := a.planChangeRepo.Save(ctx, pc); err != nil {
		return err
	}
	a.failures.Clear(ctx, processing.JobRenewal, processing.SubjectPlanChange, pc.ID, a.clock.Now())
	a.logger.Info("Plan change adjustment invoiced",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("plan_change_id", pc.ID.String()),
		zap.String("invoice_ref", ref),
		zap.String("amount", pc.NetAdjustment.StringFixed(2)),
	)
	return nil
}
