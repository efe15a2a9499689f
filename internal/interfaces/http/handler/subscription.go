package handler

import (
	"context"

	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/ams/backend/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SubscriptionHandler handles subscription lifecycle and plan change endpoints
type SubscriptionHandler struct {
	BaseHandler
	subscriptions SubscriptionService
	recognition   RecognitionReader
	renewals      RenewalService
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(subscriptions SubscriptionService, recognition RecognitionReader, renewals RenewalService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptions: subscriptions,
		recognition:   recognition,
		renewals:      renewals,
	}
}

// Create godoc
// @ID           createSubscription
// @Summary      Create a subscription
// @Description  Creates a draft subscription on a plan. Activation is a separate step.
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        request body subscription.CreateSubscriptionRequest true "Subscription creation request"
// @Success      201 {object} APIResponse[subscription.SubscriptionResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /subscriptions [post]
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req appsub.CreateSubscriptionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	sub, err := h.subscriptions.CreateSubscription(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, sub)
}

// Get godoc
// @ID           getSubscription
// @Summary      Get a subscription
// @Tags         subscriptions
// @Produce      json
// @Param        id path string true "Subscription ID" format(uuid)
// @Success      200 {object} APIResponse[subscription.SubscriptionResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /subscriptions/{id} [get]
func (h *SubscriptionHandler) Get(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}

	sub, err := h.subscriptions.GetSubscription(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, sub)
}

// List godoc
// @ID           listSubscriptions
// @Summary      List subscriptions
// @Description  Pages subscriptions filtered by status, subscriber, plan or kind
// @Tags         subscriptions
// @Produce      json
// @Param        status query string false "Status" Enums(draft, active, grace, suspended, lapsed, terminated, cancelled)
// @Param        subscriber_ref query string false "Subscriber reference"
// @Param        plan_id query string false "Plan ID" format(uuid)
// @Param        kind query string false "Subscription kind"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Param        order_by query string false "Order by field" default(created_at)
// @Param        order_dir query string false "Order direction" Enums(asc, desc) default(desc)
// @Success      200 {object} APIResponse[[]subscription.SubscriptionResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /subscriptions [get]
func (h *SubscriptionHandler) List(c *gin.Context) {
	var filter appsub.SubscriptionListFilter
	if !h.bindQuery(c, &filter) {
		return
	}

	subs, total, err := h.subscriptions.ListSubscriptions(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, pageSize := pageParams(filter.Page, filter.PageSize)
	h.SuccessWithMeta(c, subs, total, page, pageSize)
}

type statusChange func(ctx context.Context, id uuid.UUID, req appsub.StatusChangeRequest) (*appsub.SubscriptionResponse, error)

// changeStatus runs one of the manual transitions
func (h *SubscriptionHandler) changeStatus(c *gin.Context, apply statusChange) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req appsub.StatusChangeRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	ctx := logger.WithSubscriptionID(c.Request.Context(), id.String())
	sub, err := apply(ctx, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, sub)
}

// Activate godoc
// @ID           activateSubscription
// @Summary      Activate a subscription
// @Description  Moves a draft subscription to active, creating its first billing period, revenue schedule and invoice
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        id path string true "Subscription ID" format(uuid)
// @Param        request body subscription.StatusChangeRequest false "Reason"
// @Success      200 {object} APIResponse[subscription.SubscriptionResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /subscriptions/{id}/activate [post]
func (h *SubscriptionHandler) Activate(c *gin.Context) {
	h.changeStatus(c, h.subscriptions.Activate)
}

// Suspend godoc
// @ID           suspendSubscription
// @Summary      Suspend a subscription
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        id path string true "Subscription ID" format(uuid)
// @Param        request body subscription.StatusChangeRequest false "Reason"
// @Success      200 {object} APIResponse[subscription.SubscriptionResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /subscriptions/{id}/suspend [post]
func (h *SubscriptionHandler) Suspend(c *gin.Context) {
	h.changeStatus(c, h.subscriptions.Suspend)
}

// Terminate godoc
// @ID           terminateSubscription
// @Summary      Terminate a subscription
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        id path string true "Subscription ID" format(uuid)
// @Param        request body subscription.StatusChangeRequest false "Reason"
// @Success      200 {object} APIResponse[subscription.SubscriptionResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /subscriptions/{id}/terminate [post]
func (h *SubscriptionHandler) Terminate(c *gin.Context) {
	h.changeStatus(c, h.subscriptions.Terminate)
}

// Cancel godoc
// @ID           cancelSubscription
// @Summary      Cancel a subscription
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        id path string true "Subscription ID" format(uuid)
// @Param        request body subscription.StatusChangeRequest false "Reason"
// @Success      200 {object} APIResponse[subscription.SubscriptionResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /subscriptions/{id}/cancel [post]
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	h.changeStatus(c, h.subscriptions.Cancel)
}

// Reinstate godoc
// @ID           reinstateSubscription
// @Summary      Reinstate a subscription
// @Description  Returns a suspended or lapsed subscription to active without moving its paid-through date
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        id path string true "Subscription ID" format(uuid)
// @Param        request body subscription.StatusChangeRequest false "Reason"
// @Success      200 {object} APIResponse[subscription.SubscriptionResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /subscriptions/{id}/reinstate [post]
func (h *SubscriptionHandler) Reinstate(c *gin.Context) {
	h.changeStatus(c, h.subscriptions.Reinstate)
}

// PreviewPlanChange godoc
// @ID           previewPlanChange
// @Summary      Preview a plan change
// @Description  Computes the prorated credit, charge and net adjustment without changing anything
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        id path string true "Subscription ID" format(uuid)
// @Param        request body subscription.PlanChangeRequest true "Plan change request"
// @Success      200 {object} APIResponse[subscription.ProrationResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /subscriptions/{id}/plan-change/preview [post]
func (h *SubscriptionHandler) PreviewPlanChange(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req appsub.PlanChangeRequest
	if !h.bindJSON(c, &req) {
		return
	}

	preview, err := h.subscriptions.PreviewPlanChange(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, preview)
}

// ApplyPlanChange godoc
// @ID           applyPlanChange
// @Summary      Apply a plan change
// @Description  Switches the plan, records the change and invoices a positive net adjustment
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        id path string true "Subscription ID" format(uuid)
// @Param        request body subscription.PlanChangeRequest true "Plan change request"
// @Success      200 {object} APIResponse[subscription.PlanChangeResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /subscriptions/{id}/plan-change [post]
func (h *SubscriptionHandler) ApplyPlanChange(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req appsub.PlanChangeRequest
	if !h.bindJSON(c, &req) {
		return
	}

	ctx := logger.WithSubscriptionID(c.Request.Context(), id.String())
	change, err := h.subscriptions.ApplyPlanChange(ctx, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, change)
}

// ListPlanChanges godoc
// @ID           listPlanChanges
// @Summary      List plan changes
// @Tags         subscriptions
// @Produce      json
// @Param        id path string true "Subscription ID" format(uuid)
// @Success      200 {object} APIResponse[[]subscription.PlanChangeResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /subscriptions/{id}/plan-changes [get]
func (h *SubscriptionHandler) ListPlanChanges(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}

	changes, err := h.subscriptions.ListPlanChanges(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, changes)
}

// GetRecognitionSchedule godoc
// @ID           getRecognitionSchedule
// @Summary      Get the current revenue schedule
// @Description  Returns the schedule of the current billing period with its recognition lines
// @Tags         revenue
// @Produce      json
// @Param        id path string true "Subscription ID" format(uuid)
// @Success      200 {object} APIResponse[subscription.RevenueScheduleResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /subscriptions/{id}/recognition-schedule [get]
func (h *SubscriptionHandler) GetRecognitionSchedule(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}

	schedule, err := h.recognition.GetRecognitionSchedule(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, schedule)
}

// ListRecognitionSchedules godoc
// @ID           listRecognitionSchedules
// @Summary      List all revenue schedules of a subscription
// @Tags         revenue
// @Produce      json
// @Param        id path string true "Subscription ID" format(uuid)
// @Success      200 {object} APIResponse[[]subscription.RevenueScheduleResponse]
// @Security     BearerAuth
// @Router       /subscriptions/{id}/recognition-schedules [get]
func (h *SubscriptionHandler) ListRecognitionSchedules(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}

	schedules, err := h.recognition.ListSchedules(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, schedules)
}

// ListRenewals godoc
// @ID           listRenewals
// @Summary      List renewal events
// @Tags         renewals
// @Produce      json
// @Param        id path string true "Subscription ID" format(uuid)
// @Success      200 {object} APIResponse[[]subscription.RenewalEventResponse]
// @Security     BearerAuth
// @Router       /subscriptions/{id}/renewals [get]
func (h *SubscriptionHandler) ListRenewals(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}

	events, err := h.renewals.ListRenewals(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, events)
}

// ConfirmRenewal godoc
// @ID           confirmRenewal
// @Summary      Confirm a renewal payment
// @Description  Checks the renewal invoice with the invoicing system and, once paid, advances the subscription's period
// @Tags         renewals
// @Produce      json
// @Param        id path string true "Renewal event ID" format(uuid)
// @Success      200 {object} APIResponse[subscription.RenewalEventResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /renewals/{id}/confirm [post]
func (h *SubscriptionHandler) ConfirmRenewal(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}

	event, err := h.renewals.ConfirmRenewal(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, event)
}
