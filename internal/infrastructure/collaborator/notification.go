package collaborator

import (
	"context"
	"net/http"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/subscription"
)

// NotificationClient hands reminders to the notification service
type NotificationClient struct {
	client *Client
}

// NewNotificationClient creates a new notification client
func NewNotificationClient(client *Client) *NotificationClient {
	return &NotificationClient{client: client}
}

type reminderRequest struct {
	SubscriberRef string         `json:"subscriber_ref"`
	TemplateID    string         `json:"template_id"`
	Context       map[string]any `json:"context,omitempty"`
}

// SendReminder implements subscription.Notifier
func (n *NotificationClient) SendReminder(ctx context.Context, subscriberRef, templateID string, data map[string]any) error {
	req := reminderRequest{
		SubscriberRef: subscriberRef,
		TemplateID:    templateID,
		Context:       data,
	}
	if err := n.client.do(ctx, http.MethodPost, "/reminders", "", req, nil); err != nil {
		return shared.NewProcessingError("NOTIFICATION_FAILED", "send reminder", err)
	}
	return nil
}

var _ subscription.Notifier = (*NotificationClient)(nil)
