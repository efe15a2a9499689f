package handler

import (
	"net/http"
	"testing"

	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newCatalogRouter(svc *MockCatalogService) *gin.Engine {
	h := NewCatalogHandler(svc)
	r := gin.New()
	g := r.Group("/api/v1")
	g.POST("/billing-periods", h.CreateBillingPeriod)
	g.GET("/billing-periods", h.ListBillingPeriods)
	g.GET("/billing-periods/:id", h.GetBillingPeriod)
	g.POST("/billing-periods/:id/default", h.SetDefaultBillingPeriod)
	g.PUT("/billing-periods/:id/duration", h.UpdateBillingPeriodDuration)
	g.POST("/plans", h.CreatePlan)
	g.GET("/plans", h.ListPlans)
	g.GET("/plans/:id", h.GetPlan)
	g.POST("/plans/:id/deactivate", h.DeactivatePlan)
	return r
}

func TestCatalogHandler_CreateBillingPeriod(t *testing.T) {
	svc := new(MockCatalogService)
	router := newCatalogRouter(svc)
	req := appsub.CreateBillingPeriodRequest{Code: "ANNUAL", Name: "Annual", Value: 1, Unit: "year", IsDefault: true}
	svc.On("CreateBillingPeriod", mock.Anything, req).
		Return(&appsub.BillingPeriodResponse{ID: uuid.New(), Code: "ANNUAL", TotalDaysApprox: 365}, nil)

	w := performRequest(router, http.MethodPost, "/api/v1/billing-periods", req)

	require.Equal(t, http.StatusCreated, w.Code)
	var got appsub.BillingPeriodResponse
	decodeData(t, w, &got)
	assert.Equal(t, 365, got.TotalDaysApprox)
}

func TestCatalogHandler_CreateBillingPeriod_BadUnit(t *testing.T) {
	svc := new(MockCatalogService)
	router := newCatalogRouter(svc)

	w := performRequest(router, http.MethodPost, "/api/v1/billing-periods", map[string]any{
		"code": "FORTNIGHT", "name": "Fortnight", "value": 2, "unit": "fortnight",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "CreateBillingPeriod", mock.Anything, mock.Anything)
}

func TestCatalogHandler_CreateBillingPeriod_Duplicate(t *testing.T) {
	svc := new(MockCatalogService)
	router := newCatalogRouter(svc)
	svc.On("CreateBillingPeriod", mock.Anything, mock.Anything).Return(nil, shared.ErrAlreadyExists)

	w := performRequest(router, http.MethodPost, "/api/v1/billing-periods", map[string]any{
		"code": "ANNUAL", "name": "Annual", "value": 1, "unit": "year",
	})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCatalogHandler_BillingPeriodOperations(t *testing.T) {
	svc := new(MockCatalogService)
	router := newCatalogRouter(svc)
	id := uuid.New()

	svc.On("ListBillingPeriods", mock.Anything, appsub.CatalogListFilter{ActiveOnly: true}).
		Return([]appsub.BillingPeriodResponse{{ID: id}}, nil)
	svc.On("GetBillingPeriod", mock.Anything, id).Return(&appsub.BillingPeriodResponse{ID: id}, nil)
	svc.On("SetDefaultBillingPeriod", mock.Anything, id).Return(&appsub.BillingPeriodResponse{ID: id, IsDefault: true}, nil)
	svc.On("UpdateBillingPeriodDuration", mock.Anything, id, appsub.UpdateBillingPeriodRequest{Value: 3, Unit: "month"}).
		Return(nil, shared.NewDomainError("INVALID_STATE", "billing period is referenced by a plan"))

	assert.Equal(t, http.StatusOK, performRequest(router, http.MethodGet, "/api/v1/billing-periods?active_only=true", nil).Code)
	assert.Equal(t, http.StatusOK, performRequest(router, http.MethodGet, "/api/v1/billing-periods/"+id.String(), nil).Code)
	assert.Equal(t, http.StatusOK, performRequest(router, http.MethodPost, "/api/v1/billing-periods/"+id.String()+"/default", nil).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, performRequest(router, http.MethodPut,
		"/api/v1/billing-periods/"+id.String()+"/duration", appsub.UpdateBillingPeriodRequest{Value: 3, Unit: "month"}).Code)
	svc.AssertExpectations(t)
}

func TestCatalogHandler_CreatePlan(t *testing.T) {
	svc := new(MockCatalogService)
	router := newCatalogRouter(svc)
	periodID := uuid.New()
	svc.On("CreatePlan", mock.Anything, mock.MatchedBy(func(req appsub.CreatePlanRequest) bool {
		return req.Code == "GOLD" && req.Amount.Equal(decimal.NewFromInt(1200)) && req.BillingPeriodID == periodID
	})).Return(&appsub.PlanResponse{ID: uuid.New(), Code: "GOLD"}, nil)

	w := performRequest(router, http.MethodPost, "/api/v1/plans", map[string]any{
		"code":                     "GOLD",
		"name":                     "Gold membership",
		"amount":                   "1200",
		"billing_period_id":        periodID,
		"recognition_method":       "deferred",
		"deferred_revenue_account": "2400",
		"revenue_account":          "4100",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	svc.AssertExpectations(t)
}

func TestCatalogHandler_PlanOperations(t *testing.T) {
	svc := new(MockCatalogService)
	router := newCatalogRouter(svc)
	id := uuid.New()
	svc.On("ListPlans", mock.Anything, appsub.CatalogListFilter{Search: "gold"}).Return([]appsub.PlanResponse{{ID: id}}, nil)
	svc.On("GetPlan", mock.Anything, id).Return(&appsub.PlanResponse{ID: id, Active: true}, nil)
	svc.On("DeactivatePlan", mock.Anything, id).Return(&appsub.PlanResponse{ID: id, Active: false}, nil)

	assert.Equal(t, http.StatusOK, performRequest(router, http.MethodGet, "/api/v1/plans?search=gold", nil).Code)
	assert.Equal(t, http.StatusOK, performRequest(router, http.MethodGet, "/api/v1/plans/"+id.String(), nil).Code)

	w := performRequest(router, http.MethodPost, "/api/v1/plans/"+id.String()+"/deactivate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var plan appsub.PlanResponse
	decodeData(t, w, &plan)
	assert.False(t, plan.Active)
	svc.AssertExpectations(t)
}
