package subscription

import "context"

// SubscriberStatus is the directory status of a contact
type SubscriberStatus string

const (
	SubscriberActive   SubscriberStatus = "active"
	SubscriberInactive SubscriberStatus = "inactive"
)

// SubscriberInfo is what the engine needs to know about a subscriber
type SubscriberInfo struct {
	Ref            string           `json:"ref"`
	Status         SubscriberStatus `json:"status"`
	PortalEligible bool             `json:"portal_eligible"`
}

// Directory is the external contact directory.
// It answers whether a subscriber exists and may hold a subscription.
//
// Implementations return shared.ErrNotFound for unknown references and a
// processing error when the directory is unreachable.
type Directory interface {
	// GetSubscriber returns the directory record for ref
	GetSubscriber(ctx context.Context, ref string) (*SubscriberInfo, error)
}

// Notifier delivers member notifications. Calls are fire-and-forget:
// callers log failures and never roll back on them.
type Notifier interface {
	// SendReminder sends the template to the subscriber with the given context
	SendReminder(ctx context.Context, subscriberRef, templateID string, context map[string]any) error
}

// Notification templates
const (
	TemplateRenewalReminder = "renewal.reminder"
	TemplateStatusChanged   = "subscription.status_changed"
)
