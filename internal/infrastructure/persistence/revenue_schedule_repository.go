package persistence

import (
	"context"
	"time"

	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/revenue"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormScheduleRepository implements ScheduleRepository using GORM.
// Schedules are inserted once with their lines; afterwards only lines change.
type GormScheduleRepository struct {
	db *gorm.DB
}

// NewGormScheduleRepository creates a new GormScheduleRepository
func NewGormScheduleRepository(db *gorm.DB) *GormScheduleRepository {
	return &GormScheduleRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormScheduleRepository) WithTx(tx *gorm.DB) *GormScheduleRepository {
	return &GormScheduleRepository{db: tx}
}

func (r *GormScheduleRepository) withLines(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("sequence")
	})
}

// FindByID finds a schedule with its lines
func (r *GormScheduleRepository) FindByID(ctx context.Context, id uuid.UUID) (*revenue.RevenueSchedule, error) {
	var model models.RevenueScheduleModel
	if err := r.withLines(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// FindCurrentBySubscription returns the schedule with the latest period start
func (r *GormScheduleRepository) FindCurrentBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*revenue.RevenueSchedule, error) {
	var model models.RevenueScheduleModel
	err := r.withLines(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("period_start DESC").
		First(&model).Error
	if err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// FindBySubscription lists all schedules of a subscription, newest first
func (r *GormScheduleRepository) FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]revenue.RevenueSchedule, error) {
	var rows []models.RevenueScheduleModel
	err := r.withLines(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("period_start DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]revenue.RevenueSchedule, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, nil
}

// ExistsForPeriod checks whether a schedule already covers the paid period
func (r *GormScheduleRepository) ExistsForPeriod(ctx context.Context, subscriptionID uuid.UUID, periodStart time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RevenueScheduleModel{}).
		Where("subscription_id = ? AND period_start = ?", subscriptionID, shared.TruncateDay(periodStart)).
		Count(&count).Error
	return count > 0, err
}

// Save inserts a schedule and its lines. A second schedule for the same
// subscription and period start violates the unique index and is reported
// as a concurrency conflict.
func (r *GormScheduleRepository) Save(ctx context.Context, s *revenue.RevenueSchedule) error {
	return translate(r.db.WithContext(ctx).Create(models.RevenueScheduleModelFromDomain(s)).Error)
}

// FindDueLines returns pending lines ending on or before asOf, oldest first.
// Lines waiting for an operator are excluded before the limit applies so
// they cannot fill every batch.
func (r *GormScheduleRepository) FindDueLines(ctx context.Context, asOf time.Time, limit int) ([]revenue.RecognitionLine, error) {
	blocked := r.db.WithContext(ctx).Model(&models.ProcessingFailureModel{}).
		Select("subject_id").
		Where("job_type = ? AND subject_type = ? AND status = ?",
			processing.JobRecognition, processing.SubjectRecognitionLine, processing.FailureManualReview)
	q := r.db.WithContext(ctx).
		Where("status = ? AND line_end <= ?", revenue.LineStatusPending, shared.TruncateDay(asOf)).
		Where("id NOT IN (?)", blocked).
		Order("line_end, subscription_id, sequence")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.RecognitionLineModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]revenue.RecognitionLine, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, nil
}

// SaveLine persists a line. Recognizing a line is a compare-and-set on the
// pending status so two runs can never both post it.
func (r *GormScheduleRepository) SaveLine(ctx context.Context, line *revenue.RecognitionLine) error {
	model := models.RecognitionLineModelFromDomain(line)
	q := r.db.WithContext(ctx).Model(model)
	if line.Status == revenue.LineStatusRecognized {
		q = q.Where("status = ?", revenue.LineStatusPending)
	}
	result := q.Select("status", "recognized_date", "failure_count", "last_error", "last_failed_at", "updated_at").
		Updates(model)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.RecognitionLineModel{}).Where("id = ?", line.ID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return shared.ErrNotFound
	}
	return shared.ErrConcurrencyConflict
}

var _ revenue.ScheduleRepository = (*GormScheduleRepository)(nil)
