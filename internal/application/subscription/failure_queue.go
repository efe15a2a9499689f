package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// failureQueue records per-record batch failures and clears them on success
type failureQueue struct {
	repo        processing.FailureRepository
	maxAttempts int
	logger      *zap.Logger
}

func newFailureQueue(repo processing.FailureRepository, maxAttempts int, logger *zap.Logger) *failureQueue {
	return &failureQueue{repo: repo, maxAttempts: maxAttempts, logger: logger}
}

// Record opens or bumps the queue entry of subject
func (q *failureQueue) Record(ctx context.Context, subject processing.FailureSubject, cause error, at time.Time) {
	existing, err := q.repo.FindUnresolved(ctx, subject.JobType, subject.SubjectType, subject.SubjectID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		q.logger.Error("Failed to look up failure queue entry",
			zap.String("subject_id", subject.SubjectID.String()),
			zap.Error(err),
		)
		return
	}

	var entry *processing.ProcessingFailure
	if existing != nil {
		existing.RecordAttempt(cause, q.maxAttempts, at)
		entry = existing
	} else {
		entry, err = processing.NewProcessingFailure(subject, cause, q.maxAttempts, at)
		if err != nil {
			q.logger.Error("Failed to build failure queue entry", zap.Error(err))
			return
		}
	}
	if err := q.repo.Save(ctx, entry); err != nil {
		q.logger.Error("Failed to save failure queue entry",
			zap.String("subject_id", subject.SubjectID.String()),
			zap.Error(err),
		)
		return
	}
	if entry.IsBlocked() {
		q.logger.Warn("Record moved to manual review",
			zap.String("job_type", string(subject.JobType)),
			zap.String("subject_type", string(subject.SubjectType)),
			zap.String("subject_id", subject.SubjectID.String()),
			zap.Int("attempts", entry.Attempts),
			zap.String("category", string(entry.Category)),
		)
	}
}

// Clear resolves an open entry after the subject succeeded
func (q *failureQueue) Clear(ctx context.Context, jobType processing.JobType, subjectType processing.SubjectType, subjectID uuid.UUID, at time.Time) {
	existing, err := q.repo.FindUnresolved(ctx, jobType, subjectType, subjectID)
	if err != nil || existing == nil {
		return
	}
	existing.Succeeded(at)
	if err := q.repo.Save(ctx, existing); err != nil {
		q.logger.Warn("Failed to clear failure queue entry",
			zap.String("subject_id", subjectID.String()),
			zap.Error(err),
		)
	}
}

// Blocked returns the set of subjects waiting for an operator
func (q *failureQueue) Blocked(ctx context.Context, jobType processing.JobType, subjectType processing.SubjectType) (map[uuid.UUID]struct{}, error) {
	ids, err := q.repo.FindBlockedSubjects(ctx, jobType, subjectType)
	if err != nil {
		return nil, err
	}
	blocked := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		blocked[id] = struct{}{}
	}
	return blocked, nil
}
