package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BatchResult is the summary returned by every scheduled run
type BatchResult struct {
	JobType     processing.JobType `json:"job_type"`
	AsOf        time.Time          `json:"as_of"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
	Total       int                `json:"total"`
	Processed   int                `json:"processed"`
	Skipped     int                `json:"skipped"`
	Failed      int                `json:"failed"`
	Errors      []BatchError       `json:"errors,omitempty"`
}

// BatchError describes one failed record
type BatchError struct {
	SubjectType processing.SubjectType `json:"subject_type"`
	SubjectID   uuid.UUID              `json:"subject_id"`
	Category    shared.ErrorCategory   `json:"category"`
	Message     string                 `json:"message"`
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeFailed
)

// batchItem is one unit of work in a run
type batchItem struct {
	SubjectType processing.SubjectType
	ID          uuid.UUID
}

// batchTally accumulates outcomes from concurrent workers
type batchTally struct {
	mu     sync.Mutex
	result *BatchResult
}

func newBatchTally(jobType processing.JobType, asOf, startedAt time.Time) *batchTally {
	return &batchTally{result: &BatchResult{
		JobType:   jobType,
		AsOf:      asOf,
		StartedAt: startedAt,
		Errors:    make([]BatchError, 0),
	}}
}

func (t *batchTally) add(item batchItem, o outcome, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result.Total++
	switch o {
	case outcomeProcessed:
		t.result.Processed++
	case outcomeSkipped:
		t.result.Skipped++
	case outcomeFailed:
		t.result.Failed++
		if err != nil {
			t.result.Errors = append(t.result.Errors, BatchError{
				SubjectType: item.SubjectType,
				SubjectID:   item.ID,
				Category:    shared.CategoryOf(err),
				Message:     err.Error(),
			})
		}
	}
}

func (t *batchTally) finish(at time.Time) *BatchResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result.CompletedAt = at
	return t.result
}

// runBatch processes items with at most parallelism workers. A failing
// record never stops the batch; only context cancellation does.
func runBatch(ctx context.Context, items []batchItem, parallelism int, tally *batchTally, fn func(ctx context.Context, item batchItem) (outcome, error)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o, err := fn(gctx, item)
			tally.add(item, o, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func itemsOf(subjectType processing.SubjectType, ids []uuid.UUID) []batchItem {
	items := make([]batchItem, len(ids))
	for i, id := range ids {
		items[i] = batchItem{SubjectType: subjectType, ID: id}
	}
	return items
}
