package persistence

import (
	"context"
	"strings"

	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var catalogFilterColumns = map[string]string{
	"active": "active",
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GormBillingPeriodRepository implements BillingPeriodRepository using GORM
type GormBillingPeriodRepository struct {
	db *gorm.DB
}

// NewGormBillingPeriodRepository creates a new GormBillingPeriodRepository
func NewGormBillingPeriodRepository(db *gorm.DB) *GormBillingPeriodRepository {
	return &GormBillingPeriodRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormBillingPeriodRepository) WithTx(tx *gorm.DB) *GormBillingPeriodRepository {
	return &GormBillingPeriodRepository{db: tx}
}

// FindByID finds a billing period by ID
func (r *GormBillingPeriodRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.BillingPeriod, error) {
	var model models.BillingPeriodModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// FindByCode finds a billing period by its code, case-insensitively
func (r *GormBillingPeriodRepository) FindByCode(ctx context.Context, code string) (*billing.BillingPeriod, error) {
	var model models.BillingPeriodModel
	if err := r.db.WithContext(ctx).Where("code = ?", normalizeCode(code)).First(&model).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// FindDefault returns the system default billing period
func (r *GormBillingPeriodRepository) FindDefault(ctx context.Context) (*billing.BillingPeriod, error) {
	var model models.BillingPeriodModel
	if err := r.db.WithContext(ctx).Where("is_default = ?", true).First(&model).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// FindAll lists billing periods. Supported Filters keys: active
func (r *GormBillingPeriodRepository) FindAll(ctx context.Context, filter shared.Filter) ([]billing.BillingPeriod, error) {
	q := applyFilters(r.db.WithContext(ctx).Model(&models.BillingPeriodModel{}), filter, catalogFilterColumns)
	if filter.OrderBy == "" {
		filter.OrderBy, filter.OrderDir = "code", "asc"
	}
	var rows []models.BillingPeriodModel
	if err := applyPage(q, filter, CatalogSortFields, "code").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]billing.BillingPeriod, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, nil
}

// ExistsByCode checks whether a code is taken
func (r *GormBillingPeriodRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.BillingPeriodModel{}).
		Where("code = ?", normalizeCode(code)).Count(&count).Error
	return count > 0, err
}

// Save creates or updates a billing period
func (r *GormBillingPeriodRepository) Save(ctx context.Context, bp *billing.BillingPeriod) error {
	model := models.BillingPeriodModelFromDomain(bp)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(model).Error
	return translate(err)
}

// GormPlanRepository implements PlanRepository using GORM
type GormPlanRepository struct {
	db *gorm.DB
}

// NewGormPlanRepository creates a new GormPlanRepository
func NewGormPlanRepository(db *gorm.DB) *GormPlanRepository {
	return &GormPlanRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormPlanRepository) WithTx(tx *gorm.DB) *GormPlanRepository {
	return &GormPlanRepository{db: tx}
}

// FindByID finds a plan by ID
func (r *GormPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Plan, error) {
	var model models.PlanModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// FindByCode finds a plan by its code, case-insensitively
func (r *GormPlanRepository) FindByCode(ctx context.Context, code string) (*billing.Plan, error) {
	var model models.PlanModel
	if err := r.db.WithContext(ctx).Where("code = ?", normalizeCode(code)).First(&model).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// FindAll lists plans. Supported Filters keys: active
func (r *GormPlanRepository) FindAll(ctx context.Context, filter shared.Filter) ([]billing.Plan, error) {
	q := applyFilters(r.db.WithContext(ctx).Model(&models.PlanModel{}), filter, catalogFilterColumns)
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		q = q.Where("LOWER(code) LIKE ? OR LOWER(name) LIKE ?", like, like)
	}
	if filter.OrderBy == "" {
		filter.OrderBy, filter.OrderDir = "code", "asc"
	}
	var rows []models.PlanModel
	if err := applyPage(q, filter, CatalogSortFields, "code").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]billing.Plan, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, nil
}

// ExistsByCode checks whether a code is taken
func (r *GormPlanRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PlanModel{}).
		Where("code = ?", normalizeCode(code)).Count(&count).Error
	return count > 0, err
}

// CountByBillingPeriod counts plans billed on a billing period
func (r *GormPlanRepository) CountByBillingPeriod(ctx context.Context, billingPeriodID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PlanModel{}).
		Where("billing_period_id = ?", billingPeriodID).Count(&count).Error
	return count, err
}

// Save creates or updates a plan
func (r *GormPlanRepository) Save(ctx context.Context, p *billing.Plan) error {
	model := models.PlanModelFromDomain(p)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(model).Error
	return translate(err)
}

var (
	_ billing.BillingPeriodRepository = (*GormBillingPeriodRepository)(nil)
	_ billing.PlanRepository          = (*GormPlanRepository)(nil)
)
