package subscription

import (
	"context"

	"github.com/ams/backend/internal/domain/processing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FailureService exposes the failure queue to operators
type FailureService struct {
	failureRepo processing.FailureRepository
	logger      *zap.Logger
}

// NewFailureService creates a new FailureService
func NewFailureService(failureRepo processing.FailureRepository, logger *zap.Logger) *FailureService {
	return &FailureService{
		failureRepo: failureRepo,
		logger:      logger,
	}
}

// List lists queued failures with filtering and pagination
func (s *FailureService) List(ctx context.Context, filter FailureListFilter) ([]ProcessingFailureResponse, int64, error) {
	f := toFilter(filter.Page, filter.PageSize, "last_failed_at", "desc")
	if filter.Status != "" {
		f.Filters["status"] = filter.Status
	}
	if filter.JobType != "" {
		f.Filters["job_type"] = filter.JobType
	}
	if filter.Category != "" {
		f.Filters["category"] = filter.Category
	}
	failures, err := s.failureRepo.FindAll(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.failureRepo.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ProcessingFailureResponse, len(failures))
	for i := range failures {
		out[i] = ToProcessingFailureResponse(&failures[i])
	}
	return out, total, nil
}

// Get retrieves one queued failure
func (s *FailureService) Get(ctx context.Context, id uuid.UUID) (*ProcessingFailureResponse, error) {
	f, err := s.failureRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToProcessingFailureResponse(f)
	return &resp, nil
}

// Resolve releases a failure back to the open queue so the next run
// retries its subject. The entry is closed once that retry succeeds.
func (s *FailureService) Resolve(ctx context.Context, id uuid.UUID, req ResolveFailureRequest) (*ProcessingFailureResponse, error) {
	f, err := s.failureRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := f.Resolve(req.ResolvedBy, req.Note); err != nil {
		return nil, err
	}
	if err := s.failureRepo.Save(ctx, f); err != nil {
		return nil, err
	}
	s.logger.Info("Failure released for retry",
		zap.String("failure_id", f.ID.String()),
		zap.String("subject_type", string(f.SubjectType)),
		zap.String("subject_id", f.SubjectID.String()),
		zap.String("resolved_by", req.ResolvedBy),
	)
	resp := ToProcessingFailureResponse(f)
	return &resp, nil
}
