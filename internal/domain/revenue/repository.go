package revenue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ScheduleRepository defines the interface for revenue schedule persistence
type ScheduleRepository interface {
	// FindByID finds a schedule with its lines
	FindByID(ctx context.Context, id uuid.UUID) (*RevenueSchedule, error)

	// FindCurrentBySubscription returns the schedule with the latest period start
	FindCurrentBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*RevenueSchedule, error)

	// FindBySubscription lists all schedules of a subscription, newest first
	FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]RevenueSchedule, error)

	// ExistsForPeriod checks whether a schedule already covers the paid period
	ExistsForPeriod(ctx context.Context, subscriptionID uuid.UUID, periodStart time.Time) (bool, error)

	// Save inserts a schedule and its lines
	Save(ctx context.Context, s *RevenueSchedule) error

	// FindDueLines returns pending lines whose line end is on or before asOf,
	// oldest first, at most limit rows. Lines held in manual review are not
	// returned.
	FindDueLines(ctx context.Context, asOf time.Time, limit int) ([]RecognitionLine, error)

	// SaveLine persists a line. Moving a line to recognized only succeeds
	// while the stored row is still pending; otherwise
	// shared.ErrConcurrencyConflict is returned.
	SaveLine(ctx context.Context, line *RecognitionLine) error
}
