package persistence

import (
	"context"

	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var failureFilterColumns = map[string]string{
	"status":          "status",
	"job_type":        "job_type",
	"category":        "category",
	"subscription_id": "subscription_id",
}

var jobRunFilterColumns = map[string]string{
	"job_type": "job_type",
	"status":   "status",
}

// GormFailureRepository implements FailureRepository using GORM
type GormFailureRepository struct {
	db *gorm.DB
}

// NewGormFailureRepository creates a new GormFailureRepository
func NewGormFailureRepository(db *gorm.DB) *GormFailureRepository {
	return &GormFailureRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormFailureRepository) WithTx(tx *gorm.DB) *GormFailureRepository {
	return &GormFailureRepository{db: tx}
}

// FindByID finds a failure by ID
func (r *GormFailureRepository) FindByID(ctx context.Context, id uuid.UUID) (*processing.ProcessingFailure, error) {
	var model models.ProcessingFailureModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// FindUnresolved returns the open or manual-review entry of one subject
func (r *GormFailureRepository) FindUnresolved(ctx context.Context, jobType processing.JobType, subjectType processing.SubjectType, subjectID uuid.UUID) (*processing.ProcessingFailure, error) {
	var model models.ProcessingFailureModel
	err := r.db.WithContext(ctx).
		Where("job_type = ? AND subject_type = ? AND subject_id = ? AND status <> ?",
			jobType, subjectType, subjectID, processing.FailureResolved).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// FindBlockedSubjects lists subjects waiting for an operator
func (r *GormFailureRepository) FindBlockedSubjects(ctx context.Context, jobType processing.JobType, subjectType processing.SubjectType) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.ProcessingFailureModel{}).
		Where("job_type = ? AND subject_type = ? AND status = ?", jobType, subjectType, processing.FailureManualReview).
		Distinct().
		Pluck("subject_id", &ids).Error
	return ids, err
}

// FindOpenBySubject lists open entries that the next run should retry
func (r *GormFailureRepository) FindOpenBySubject(ctx context.Context, jobType processing.JobType, subjectType processing.SubjectType, limit int) ([]processing.ProcessingFailure, error) {
	q := r.db.WithContext(ctx).
		Where("job_type = ? AND subject_type = ? AND status = ?", jobType, subjectType, processing.FailureOpen).
		Order("last_failed_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.ProcessingFailureModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return failuresToDomain(rows), nil
}

// FindAll lists failures matching the filter
func (r *GormFailureRepository) FindAll(ctx context.Context, filter shared.Filter) ([]processing.ProcessingFailure, error) {
	var rows []models.ProcessingFailureModel
	q := applyPage(r.filtered(ctx, filter), filter, FailureSortFields, "last_failed_at")
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return failuresToDomain(rows), nil
}

// Count counts failures matching the filter
func (r *GormFailureRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	err := r.filtered(ctx, filter).Count(&count).Error
	return count, err
}

func (r *GormFailureRepository) filtered(ctx context.Context, filter shared.Filter) *gorm.DB {
	return applyFilters(r.db.WithContext(ctx).Model(&models.ProcessingFailureModel{}), filter, failureFilterColumns)
}

// Save creates or updates a failure entry
func (r *GormFailureRepository) Save(ctx context.Context, f *processing.ProcessingFailure) error {
	model := models.ProcessingFailureModelFromDomain(f)
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(model).Error)
}

func failuresToDomain(rows []models.ProcessingFailureModel) []processing.ProcessingFailure {
	out := make([]processing.ProcessingFailure, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out
}

// GormJobRunRepository implements JobRunRepository using GORM
type GormJobRunRepository struct {
	db *gorm.DB
}

// NewGormJobRunRepository creates a new GormJobRunRepository
func NewGormJobRunRepository(db *gorm.DB) *GormJobRunRepository {
	return &GormJobRunRepository{db: db}
}

// Create inserts a new run record
func (r *GormJobRunRepository) Create(ctx context.Context, run *processing.JobRun) error {
	return translate(r.db.WithContext(ctx).Create(models.JobRunModelFromDomain(run)).Error)
}

// Update writes the outcome of a run
func (r *GormJobRunRepository) Update(ctx context.Context, run *processing.JobRun) error {
	model := models.JobRunModelFromDomain(run)
	result := r.db.WithContext(ctx).Model(model).
		Select("status", "total", "processed", "skipped", "failed", "error", "report_key", "completed_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindLatest returns the most recently started run of a job
func (r *GormJobRunRepository) FindLatest(ctx context.Context, jobType processing.JobType) (*processing.JobRun, error) {
	var model models.JobRunModel
	err := r.db.WithContext(ctx).
		Where("job_type = ?", jobType).
		Order("started_at DESC").
		First(&model).Error
	if err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// FindAll lists runs matching the filter, newest first by default
func (r *GormJobRunRepository) FindAll(ctx context.Context, filter shared.Filter) ([]processing.JobRun, error) {
	q := applyFilters(r.db.WithContext(ctx).Model(&models.JobRunModel{}), filter, jobRunFilterColumns)
	q = applyPage(q, filter, JobRunSortFields, "started_at")

	var rows []models.JobRunModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]processing.JobRun, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, nil
}

var (
	_ processing.FailureRepository = (*GormFailureRepository)(nil)
	_ processing.JobRunRepository  = (*GormJobRunRepository)(nil)
)
