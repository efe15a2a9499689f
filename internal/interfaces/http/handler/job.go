package handler

import (
	"time"

	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
)

// JobHandler triggers the daily batch engines on demand and lists past runs
type JobHandler struct {
	BaseHandler
	jobs      JobService
	scheduler SchedulerStatus
	clock     shared.Clock
}

// NewJobHandler creates a new JobHandler. scheduler may be nil when the
// cron trigger is disabled.
func NewJobHandler(jobs JobService, scheduler SchedulerStatus, clock shared.Clock) *JobHandler {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &JobHandler{jobs: jobs, scheduler: scheduler, clock: clock}
}

// RunLifecycle godoc
// @ID           runLifecycleTransitions
// @Summary      Run lifecycle transitions
// @Description  Moves subscriptions through grace, suspension, lapse and termination for the business date. Safe to repeat.
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Param        request body subscription.RunJobRequest false "Business date, defaults to today"
// @Success      200 {object} APIResponse[subscription.BatchResult]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /jobs/lifecycle/run [post]
func (h *JobHandler) RunLifecycle(c *gin.Context) {
	h.run(c, processing.JobLifecycle)
}

// RunRenewal godoc
// @ID           runRenewalGeneration
// @Summary      Run renewal generation
// @Description  Sends due reminders and creates renewal invoices for the business date. Safe to repeat.
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Param        request body subscription.RunJobRequest false "Business date, defaults to today"
// @Success      200 {object} APIResponse[subscription.BatchResult]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /jobs/renewal/run [post]
func (h *JobHandler) RunRenewal(c *gin.Context) {
	h.run(c, processing.JobRenewal)
}

// RunRecognition godoc
// @ID           runRecognitionProcessing
// @Summary      Run revenue recognition
// @Description  Posts journal entries for every recognition line due on or before the business date. Safe to repeat.
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Param        request body subscription.RunJobRequest false "Business date, defaults to today"
// @Success      200 {object} APIResponse[subscription.BatchResult]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /jobs/recognition/run [post]
func (h *JobHandler) RunRecognition(c *gin.Context) {
	h.run(c, processing.JobRecognition)
}

func (h *JobHandler) run(c *gin.Context, jobType processing.JobType) {
	asOf, ok := h.bindAsOf(c)
	if !ok {
		return
	}

	result, err := h.jobs.Run(c.Request.Context(), jobType, asOf, appsub.TriggerManual)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RunAll godoc
// @ID           runAllJobs
// @Summary      Run all daily jobs
// @Description  Runs lifecycle, renewal and recognition in that order for the business date
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Param        request body subscription.RunJobRequest false "Business date, defaults to today"
// @Success      200 {object} APIResponse[RunAllData]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /jobs/run [post]
func (h *JobHandler) RunAll(c *gin.Context) {
	asOf, ok := h.bindAsOf(c)
	if !ok {
		return
	}

	results, err := h.jobs.RunAll(c.Request.Context(), asOf, appsub.TriggerManual)
	data := RunAllData{Results: make(map[string]*appsub.BatchResult, len(results))}
	for jobType, result := range results {
		data.Results[jobType.String()] = result
	}
	if err != nil {
		if len(results) == 0 {
			h.HandleError(c, err)
			return
		}
		data.Error = err.Error()
	}
	h.Success(c, data)
}

func (h *JobHandler) bindAsOf(c *gin.Context) (time.Time, bool) {
	var req appsub.RunJobRequest
	if !h.bindOptionalJSON(c, &req) {
		return time.Time{}, false
	}
	if req.AsOf == "" {
		req.AsOf = c.Query("as_of")
	}
	return h.parseAsOf(c, req.AsOf, h.clock)
}

// ListRuns godoc
// @ID           listJobRuns
// @Summary      List job runs
// @Description  Run history with counts, newest first
// @Tags         jobs
// @Produce      json
// @Param        job_type query string false "Job type" Enums(lifecycle, renewal, recognition)
// @Param        status query string false "Run status" Enums(RUNNING, SUCCESS, FAILED)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]subscription.JobRunResponse]
// @Security     BearerAuth
// @Router       /jobs/runs [get]
func (h *JobHandler) ListRuns(c *gin.Context) {
	var filter appsub.JobRunListFilter
	if !h.bindQuery(c, &filter) {
		return
	}

	runs, err := h.jobs.ListRuns(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, runs)
}

// SchedulerStatus godoc
// @ID           getSchedulerStatus
// @Summary      Get the cron schedule
// @Tags         jobs
// @Produce      json
// @Success      200 {object} APIResponse[SchedulerStatusData]
// @Security     BearerAuth
// @Router       /jobs/schedule [get]
func (h *JobHandler) SchedulerStatus(c *gin.Context) {
	data := SchedulerStatusData{Entries: []SchedulerEntry{}}
	if h.scheduler != nil {
		data.Enabled = true
		for _, e := range h.scheduler.Status() {
			entry := SchedulerEntry{JobType: e.JobType.String(), Spec: e.Spec}
			// cron computes the next run only once started
			if !e.NextRun.IsZero() {
				data.Running = true
				entry.NextRun = e.NextRun.Format(time.RFC3339)
			}
			if !e.PrevRun.IsZero() {
				entry.PrevRun = e.PrevRun.Format(time.RFC3339)
			}
			data.Entries = append(data.Entries, entry)
		}
	}
	h.Success(c, data)
}
