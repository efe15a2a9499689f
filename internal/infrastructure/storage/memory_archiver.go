package storage

import (
	"context"
	"sync"

	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/shared"
)

// MemoryArchiver keeps reports in process. Used when storage is disabled
// and in tests.
type MemoryArchiver struct {
	mu      sync.RWMutex
	reports map[string]Report
}

// NewMemoryArchiver creates an empty archiver
func NewMemoryArchiver() *MemoryArchiver {
	return &MemoryArchiver{reports: make(map[string]Report)}
}

// Archive implements appsub.ReportArchiver
func (a *MemoryArchiver) Archive(_ context.Context, run *processing.JobRun, result *appsub.BatchResult) (string, error) {
	key := ReportKey("memory", run)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports[key] = Report{Run: run, Result: result}
	return key, nil
}

// Fetch returns a stored report
func (a *MemoryArchiver) Fetch(_ context.Context, key string) (*Report, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.reports[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &r, nil
}

// Len returns the number of stored reports
func (a *MemoryArchiver) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.reports)
}

var _ appsub.ReportArchiver = (*MemoryArchiver)(nil)
