package handler

import (
	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/ams/backend/internal/interfaces/http/dto"
)

// APIResponse represents a generic API response for OpenAPI documentation
// @Description Standard API response wrapper with typed data field
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}

// ErrorResponse represents an error API response for OpenAPI documentation
// @Description Standard error response
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}

// RunAllData holds one result per job type
// @Description Outcome of running all three daily jobs
type RunAllData struct {
	Results map[string]*appsub.BatchResult `json:"results"`
	Error   string                         `json:"error,omitempty"`
}

// SchedulerStatusData represents the cron trigger status
// @Description Scheduler status information
type SchedulerStatusData struct {
	Enabled bool             `json:"enabled"`
	Running bool             `json:"running"`
	Entries []SchedulerEntry `json:"entries"`
}

// SchedulerEntry is one scheduled job
type SchedulerEntry struct {
	JobType string `json:"job_type" example:"renewal"`
	Spec    string `json:"spec" example:"0 2 * * *"`
	NextRun string `json:"next_run,omitempty"`
	PrevRun string `json:"prev_run,omitempty"`
}
