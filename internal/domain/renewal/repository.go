package renewal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RenewalEventRepository defines the interface for renewal event persistence
type RenewalEventRepository interface {
	// FindByID finds a renewal event by ID
	FindByID(ctx context.Context, id uuid.UUID) (*RenewalEvent, error)

	// FindBySubscriptionAndDueDate finds the event for one due date
	FindBySubscriptionAndDueDate(ctx context.Context, subscriptionID uuid.UUID, dueDate time.Time) (*RenewalEvent, error)

	// FindBySubscription lists all events of a subscription, newest first
	FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]RenewalEvent, error)

	// FindByStatus lists events in a status, oldest due date first
	FindByStatus(ctx context.Context, status EventStatus, limit int) ([]RenewalEvent, error)

	// FindOpenBySubscription lists pending, invoiced and failed events
	FindOpenBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]RenewalEvent, error)

	// Save inserts a new renewal event
	Save(ctx context.Context, e *RenewalEvent) error

	// SaveWithLock updates a renewal event with optimistic locking
	SaveWithLock(ctx context.Context, e *RenewalEvent) error
}
