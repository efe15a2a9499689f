package handler

import (
	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/ams/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// FailureHandler exposes the operator failure queue
type FailureHandler struct {
	BaseHandler
	failures FailureService
}

// NewFailureHandler creates a new FailureHandler
func NewFailureHandler(failures FailureService) *FailureHandler {
	return &FailureHandler{failures: failures}
}

// List godoc
// @ID           listFailures
// @Summary      List processing failures
// @Description  Failed records of the batch jobs. Entries in manual_review have exhausted automatic retries.
// @Tags         failures
// @Produce      json
// @Param        status query string false "Status" Enums(open, manual_review, resolved)
// @Param        job_type query string false "Job type" Enums(lifecycle, renewal, recognition)
// @Param        category query string false "Error category"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]subscription.ProcessingFailureResponse]
// @Security     BearerAuth
// @Router       /failures [get]
func (h *FailureHandler) List(c *gin.Context) {
	var filter appsub.FailureListFilter
	if !h.bindQuery(c, &filter) {
		return
	}

	failures, total, err := h.failures.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, pageSize := pageParams(filter.Page, filter.PageSize)
	h.SuccessWithMeta(c, failures, total, page, pageSize)
}

// Get godoc
// @ID           getFailure
// @Summary      Get a processing failure
// @Tags         failures
// @Produce      json
// @Param        id path string true "Failure ID" format(uuid)
// @Success      200 {object} APIResponse[subscription.ProcessingFailureResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /failures/{id} [get]
func (h *FailureHandler) Get(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}

	failure, err := h.failures.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, failure)
}

// resolveFailureBody is the request body; the resolver defaults to the caller
type resolveFailureBody struct {
	ResolvedBy string `json:"resolved_by" binding:"max=100"`
	Note       string `json:"note" binding:"max=1000"`
}

// Resolve godoc
// @ID           resolveFailure
// @Summary      Resolve a processing failure
// @Description  Releases the entry back to the open queue so the next run retries the record
// @Tags         failures
// @Accept       json
// @Produce      json
// @Param        id path string true "Failure ID" format(uuid)
// @Param        request body resolveFailureBody false "Resolution"
// @Success      200 {object} APIResponse[subscription.ProcessingFailureResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /failures/{id}/resolve [post]
func (h *FailureHandler) Resolve(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var body resolveFailureBody
	if !h.bindOptionalJSON(c, &body) {
		return
	}

	req := appsub.ResolveFailureRequest{ResolvedBy: body.ResolvedBy, Note: body.Note}
	if actor := middleware.GetActor(c); actor != "" {
		req.ResolvedBy = actor
	}
	if req.ResolvedBy == "" {
		h.BadRequest(c, "resolved_by is required")
		return
	}

	failure, err := h.failures.Resolve(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, failure)
}
