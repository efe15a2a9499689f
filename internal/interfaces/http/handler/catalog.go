package handler

import (
	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/gin-gonic/gin"
)

// CatalogHandler handles plan and billing period endpoints
type CatalogHandler struct {
	BaseHandler
	catalog CatalogService
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalog CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// CreateBillingPeriod godoc
// @ID           createBillingPeriod
// @Summary      Create a billing period
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Param        request body subscription.CreateBillingPeriodRequest true "Billing period"
// @Success      201 {object} APIResponse[subscription.BillingPeriodResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /billing-periods [post]
func (h *CatalogHandler) CreateBillingPeriod(c *gin.Context) {
	var req appsub.CreateBillingPeriodRequest
	if !h.bindJSON(c, &req) {
		return
	}

	bp, err := h.catalog.CreateBillingPeriod(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, bp)
}

// GetBillingPeriod godoc
// @ID           getBillingPeriod
// @Summary      Get a billing period
// @Tags         catalog
// @Produce      json
// @Param        id path string true "Billing period ID" format(uuid)
// @Success      200 {object} APIResponse[subscription.BillingPeriodResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /billing-periods/{id} [get]
func (h *CatalogHandler) GetBillingPeriod(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}

	bp, err := h.catalog.GetBillingPeriod(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bp)
}

// ListBillingPeriods godoc
// @ID           listBillingPeriods
// @Summary      List billing periods
// @Tags         catalog
// @Produce      json
// @Param        search query string false "Code or name"
// @Param        active_only query bool false "Only active periods"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]subscription.BillingPeriodResponse]
// @Security     BearerAuth
// @Router       /billing-periods [get]
func (h *CatalogHandler) ListBillingPeriods(c *gin.Context) {
	var filter appsub.CatalogListFilter
	if !h.bindQuery(c, &filter) {
		return
	}

	periods, err := h.catalog.ListBillingPeriods(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, periods)
}

// SetDefaultBillingPeriod godoc
// @ID           setDefaultBillingPeriod
// @Summary      Make a billing period the default
// @Description  The previous default loses the flag in the same transaction
// @Tags         catalog
// @Produce      json
// @Param        id path string true "Billing period ID" format(uuid)
// @Success      200 {object} APIResponse[subscription.BillingPeriodResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /billing-periods/{id}/default [post]
func (h *CatalogHandler) SetDefaultBillingPeriod(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}

	bp, err := h.catalog.SetDefaultBillingPeriod(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bp)
}

// UpdateBillingPeriodDuration godoc
// @ID           updateBillingPeriodDuration
// @Summary      Change a billing period's duration
// @Description  Rejected once any plan references the period
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Param        id path string true "Billing period ID" format(uuid)
// @Param        request body subscription.UpdateBillingPeriodRequest true "Duration"
// @Success      200 {object} APIResponse[subscription.BillingPeriodResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /billing-periods/{id}/duration [put]
func (h *CatalogHandler) UpdateBillingPeriodDuration(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req appsub.UpdateBillingPeriodRequest
	if !h.bindJSON(c, &req) {
		return
	}

	bp, err := h.catalog.UpdateBillingPeriodDuration(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bp)
}

// CreatePlan godoc
// @ID           createPlan
// @Summary      Create a plan
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Param        request body subscription.CreatePlanRequest true "Plan"
// @Success      201 {object} APIResponse[subscription.PlanResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /plans [post]
func (h *CatalogHandler) CreatePlan(c *gin.Context) {
	var req appsub.CreatePlanRequest
	if !h.bindJSON(c, &req) {
		return
	}

	plan, err := h.catalog.CreatePlan(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, plan)
}

// GetPlan godoc
// @ID           getPlan
// @Summary      Get a plan
// @Tags         catalog
// @Produce      json
// @Param        id path string true "Plan ID" format(uuid)
// @Success      200 {object} APIResponse[subscription.PlanResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /plans/{id} [get]
func (h *CatalogHandler) GetPlan(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}

	plan, err := h.catalog.GetPlan(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, plan)
}

// ListPlans godoc
// @ID           listPlans
// @Summary      List plans
// @Tags         catalog
// @Produce      json
// @Param        search query string false "Code or name"
// @Param        active_only query bool false "Only active plans"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]subscription.PlanResponse]
// @Security     BearerAuth
// @Router       /plans [get]
func (h *CatalogHandler) ListPlans(c *gin.Context) {
	var filter appsub.CatalogListFilter
	if !h.bindQuery(c, &filter) {
		return
	}

	plans, err := h.catalog.ListPlans(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, plans)
}

// DeactivatePlan godoc
// @ID           deactivatePlan
// @Summary      Deactivate a plan
// @Description  Existing subscriptions keep the plan; new subscriptions and plan changes reject it
// @Tags         catalog
// @Produce      json
// @Param        id path string true "Plan ID" format(uuid)
// @Success      200 {object} APIResponse[subscription.PlanResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /plans/{id}/deactivate [post]
func (h *CatalogHandler) DeactivatePlan(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}

	plan, err := h.catalog.DeactivatePlan(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, plan)
}
