package persistence

import (
	"context"
	"time"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/subscription"
	"github.com/ams/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var subscriptionFilterColumns = map[string]string{
	"status":         "status",
	"subscriber_ref": "subscriber_ref",
	"plan_id":        "plan_id",
	"kind":           "kind",
}

var liveStatuses = []subscription.Status{
	subscription.StatusActive,
	subscription.StatusGrace,
	subscription.StatusSuspended,
}

var terminalStatuses = []subscription.Status{
	subscription.StatusLapsed,
	subscription.StatusTerminated,
	subscription.StatusCancelled,
}

// GormSubscriptionRepository implements SubscriptionRepository using GORM
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormSubscriptionRepository) WithTx(tx *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: tx}
}

// FindByID finds a subscription by ID
func (r *GormSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	var model models.SubscriptionModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

func (r *GormSubscriptionRepository) filtered(ctx context.Context, filter shared.Filter) *gorm.DB {
	q := applyFilters(r.db.WithContext(ctx).Model(&models.SubscriptionModel{}), filter, subscriptionFilterColumns)
	if filter.Search != "" {
		q = q.Where("subscriber_ref LIKE ?", "%"+filter.Search+"%")
	}
	return q
}

// FindAll finds subscriptions matching the filter
func (r *GormSubscriptionRepository) FindAll(ctx context.Context, filter shared.Filter) ([]subscription.Subscription, error) {
	var rows []models.SubscriptionModel
	q := applyPage(r.filtered(ctx, filter), filter, SubscriptionSortFields, "created_at")
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]subscription.Subscription, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, nil
}

// Count counts subscriptions matching the filter
func (r *GormSubscriptionRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	err := r.filtered(ctx, filter).Count(&count).Error
	return count, err
}

// FindDueForLifecycle returns IDs whose automated transition date is before asOf
func (r *GormSubscriptionRepository) FindDueForLifecycle(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	asOf = shared.TruncateDay(asOf)
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.SubscriptionModel{}).
		Where("(status = ? AND paid_through_date < ?) OR (status = ? AND grace_end_date < ?) OR (status = ? AND suspend_end_date < ?)",
			subscription.StatusActive, asOf,
			subscription.StatusGrace, asOf,
			subscription.StatusSuspended, asOf).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// FindRenewable returns IDs of live auto-renewing subscriptions paid through horizon or earlier
func (r *GormSubscriptionRepository) FindRenewable(ctx context.Context, horizon time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.SubscriptionModel{}).
		Where("status IN ? AND auto_renew = ? AND paid_through_date IS NOT NULL AND paid_through_date <= ?",
			liveStatuses, true, shared.TruncateDay(horizon)).
		Order("paid_through_date, id").
		Pluck("id", &ids).Error
	return ids, err
}

// CountLiveByBillingPeriod counts non-terminal subscriptions on a billing period
func (r *GormSubscriptionRepository) CountLiveByBillingPeriod(ctx context.Context, billingPeriodID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SubscriptionModel{}).
		Where("billing_period_id = ? AND status NOT IN ?", billingPeriodID, terminalStatuses).
		Count(&count).Error
	return count, err
}

// Save inserts a new subscription
func (r *GormSubscriptionRepository) Save(ctx context.Context, s *subscription.Subscription) error {
	return translate(r.db.WithContext(ctx).Create(models.SubscriptionModelFromDomain(s)).Error)
}

// SaveWithLock updates a subscription whose stored version is s.Version-1.
// The caller increments the version before saving.
func (r *GormSubscriptionRepository) SaveWithLock(ctx context.Context, s *subscription.Subscription) error {
	model := models.SubscriptionModelFromDomain(s)
	return saveWithVersion(ctx, r.db, model, s.ID, s.Version)
}

// saveWithVersion updates every column of model guarded by the previous version
func saveWithVersion(ctx context.Context, db *gorm.DB, model any, id uuid.UUID, version int) error {
	result := db.WithContext(ctx).Model(model).
		Where("version = ?", version-1).
		Select("*").Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return shared.ErrNotFound
	}
	return shared.ErrConcurrencyConflict
}

// GormPlanChangeRepository implements PlanChangeRepository using GORM
type GormPlanChangeRepository struct {
	db *gorm.DB
}

// NewGormPlanChangeRepository creates a new GormPlanChangeRepository
func NewGormPlanChangeRepository(db *gorm.DB) *GormPlanChangeRepository {
	return &GormPlanChangeRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormPlanChangeRepository) WithTx(tx *gorm.DB) *GormPlanChangeRepository {
	return &GormPlanChangeRepository{db: tx}
}

// FindBySubscription lists plan changes of a subscription, newest first
func (r *GormPlanChangeRepository) FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]subscription.PlanChange, error) {
	return r.find(r.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID))
}

// FindPendingInvoices lists changes with a positive net adjustment and no invoice yet
func (r *GormPlanChangeRepository) FindPendingInvoices(ctx context.Context, subscriptionID uuid.UUID) ([]subscription.PlanChange, error) {
	return r.find(r.db.WithContext(ctx).
		Where("subscription_id = ? AND net_adjustment > 0 AND (adjustment_invoice_ref = '' OR adjustment_invoice_ref IS NULL)", subscriptionID))
}

func (r *GormPlanChangeRepository) find(q *gorm.DB) ([]subscription.PlanChange, error) {
	var rows []models.PlanChangeModel
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]subscription.PlanChange, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, nil
}

// Save creates or updates a plan change
func (r *GormPlanChangeRepository) Save(ctx context.Context, pc *subscription.PlanChange) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(models.PlanChangeModelFromDomain(pc)).Error
	return translate(err)
}

var (
	_ subscription.SubscriptionRepository = (*GormSubscriptionRepository)(nil)
	_ subscription.PlanChangeRepository   = (*GormPlanChangeRepository)(nil)
)
