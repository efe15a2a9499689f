package persistence

import (
	"context"
	"time"

	"github.com/ams/backend/internal/domain/renewal"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var openRenewalStatuses = []renewal.EventStatus{
	renewal.StatusPending,
	renewal.StatusInvoiced,
	renewal.StatusFailed,
}

// GormRenewalEventRepository implements RenewalEventRepository using GORM
type GormRenewalEventRepository struct {
	db *gorm.DB
}

// NewGormRenewalEventRepository creates a new GormRenewalEventRepository
func NewGormRenewalEventRepository(db *gorm.DB) *GormRenewalEventRepository {
	return &GormRenewalEventRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormRenewalEventRepository) WithTx(tx *gorm.DB) *GormRenewalEventRepository {
	return &GormRenewalEventRepository{db: tx}
}

// FindByID finds a renewal event by ID
func (r *GormRenewalEventRepository) FindByID(ctx context.Context, id uuid.UUID) (*renewal.RenewalEvent, error) {
	var model models.RenewalEventModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// FindBySubscriptionAndDueDate finds the event for one due date
func (r *GormRenewalEventRepository) FindBySubscriptionAndDueDate(ctx context.Context, subscriptionID uuid.UUID, dueDate time.Time) (*renewal.RenewalEvent, error) {
	var model models.RenewalEventModel
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND due_date = ?", subscriptionID, shared.TruncateDay(dueDate)).
		First(&model).Error
	if err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// FindBySubscription lists all events of a subscription, newest first
func (r *GormRenewalEventRepository) FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]renewal.RenewalEvent, error) {
	return r.find(r.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).Order("due_date DESC"))
}

// FindByStatus lists events in a status, oldest due date first
func (r *GormRenewalEventRepository) FindByStatus(ctx context.Context, status renewal.EventStatus, limit int) ([]renewal.RenewalEvent, error) {
	q := r.db.WithContext(ctx).Where("status = ?", status).Order("due_date, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.find(q)
}

// FindOpenBySubscription lists pending, invoiced and failed events
func (r *GormRenewalEventRepository) FindOpenBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]renewal.RenewalEvent, error) {
	return r.find(r.db.WithContext(ctx).
		Where("subscription_id = ? AND status IN ?", subscriptionID, openRenewalStatuses).
		Order("due_date DESC"))
}

func (r *GormRenewalEventRepository) find(q *gorm.DB) ([]renewal.RenewalEvent, error) {
	var rows []models.RenewalEventModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]renewal.RenewalEvent, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, nil
}

// Save inserts a new renewal event. A duplicate (subscription, due date)
// is reported as a concurrency conflict.
func (r *GormRenewalEventRepository) Save(ctx context.Context, e *renewal.RenewalEvent) error {
	return translate(r.db.WithContext(ctx).Create(models.RenewalEventModelFromDomain(e)).Error)
}

// SaveWithLock updates a renewal event with optimistic locking
func (r *GormRenewalEventRepository) SaveWithLock(ctx context.Context, e *renewal.RenewalEvent) error {
	return saveWithVersion(ctx, r.db, models.RenewalEventModelFromDomain(e), e.ID, e.Version)
}

var _ renewal.RenewalEventRepository = (*GormRenewalEventRepository)(nil)
