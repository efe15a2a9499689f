package subscription

import (
	"context"
	"fmt"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/subscription"
	"go.uber.org/zap"
)

// StatusNotificationHandler handles SubscriptionStatusChanged events
// and tells the member about the new status
type StatusNotificationHandler struct {
	notifier subscription.Notifier
	logger   *zap.Logger
}

// NewStatusNotificationHandler creates a new handler for status change events
func NewStatusNotificationHandler(notifier subscription.Notifier, logger *zap.Logger) *StatusNotificationHandler {
	return &StatusNotificationHandler{
		notifier: notifier,
		logger:   logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *StatusNotificationHandler) EventTypes() []string {
	return []string{subscription.EventTypeSubscriptionStatusChanged}
}

// Handle sends the status change notification. Delivery failures are
// logged and swallowed.
func (h *StatusNotificationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*subscription.SubscriptionStatusChangedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	if e.FromStatus == subscription.StatusDraft && e.ToStatus == subscription.StatusActive {
		// activation is confirmed by the invoicing system
		return nil
	}

	err := h.notifier.SendReminder(ctx, e.SubscriberRef, subscription.TemplateStatusChanged, map[string]any{
		"subscription_id": e.AggregateID().String(),
		"from_status":     e.FromStatus.String(),
		"to_status":       e.ToStatus.String(),
		"reason":          e.Reason,
		"automated":       e.Automated,
		"effective_date":  shared.FormatDate(e.EffectiveDate),
	})
	if err != nil {
		h.logger.Warn("Status change notification failed",
			zap.String("subscription_id", e.AggregateID().String()),
			zap.String("to_status", e.ToStatus.String()),
			zap.Error(err),
		)
		return nil
	}
	h.logger.Debug("Status change notification sent",
		zap.String("subscription_id", e.AggregateID().String()),
		zap.String("to_status", e.ToStatus.String()),
	)
	return nil
}
