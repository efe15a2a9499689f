package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/infrastructure/scheduler"
	"github.com/ams/backend/internal/interfaces/http/dto"
	"github.com/ams/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// MockSubscriptionService implements SubscriptionService for testing
type MockSubscriptionService struct {
	mock.Mock
}

func (m *MockSubscriptionService) subscription(args mock.Arguments) (*appsub.SubscriptionResponse, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsub.SubscriptionResponse), args.Error(1)
}

func (m *MockSubscriptionService) CreateSubscription(ctx context.Context, req appsub.CreateSubscriptionRequest) (*appsub.SubscriptionResponse, error) {
	return m.subscription(m.Called(ctx, req))
}

func (m *MockSubscriptionService) GetSubscription(ctx context.Context, id uuid.UUID) (*appsub.SubscriptionResponse, error) {
	return m.subscription(m.Called(ctx, id))
}

func (m *MockSubscriptionService) ListSubscriptions(ctx context.Context, filter appsub.SubscriptionListFilter) ([]appsub.SubscriptionResponse, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]appsub.SubscriptionResponse), args.Get(1).(int64), args.Error(2)
}

func (m *MockSubscriptionService) Activate(ctx context.Context, id uuid.UUID, req appsub.StatusChangeRequest) (*appsub.SubscriptionResponse, error) {
	return m.subscription(m.Called(ctx, id, req))
}

func (m *MockSubscriptionService) Suspend(ctx context.Context, id uuid.UUID, req appsub.StatusChangeRequest) (*appsub.SubscriptionResponse, error) {
	return m.subscription(m.Called(ctx, id, req))
}

func (m *MockSubscriptionService) Terminate(ctx context.Context, id uuid.UUID, req appsub.StatusChangeRequest) (*appsub.SubscriptionResponse, error) {
	return m.subscription(m.Called(ctx, id, req))
}

func (m *MockSubscriptionService) Cancel(ctx context.Context, id uuid.UUID, req appsub.StatusChangeRequest) (*appsub.SubscriptionResponse, error) {
	return m.subscription(m.Called(ctx, id, req))
}

func (m *MockSubscriptionService) Reinstate(ctx context.Context, id uuid.UUID, req appsub.StatusChangeRequest) (*appsub.SubscriptionResponse, error) {
	return m.subscription(m.Called(ctx, id, req))
}

func (m *MockSubscriptionService) PreviewPlanChange(ctx context.Context, id uuid.UUID, req appsub.PlanChangeRequest) (*appsub.ProrationResponse, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsub.ProrationResponse), args.Error(1)
}

func (m *MockSubscriptionService) ApplyPlanChange(ctx context.Context, id uuid.UUID, req appsub.PlanChangeRequest) (*appsub.PlanChangeResponse, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsub.PlanChangeResponse), args.Error(1)
}

func (m *MockSubscriptionService) ListPlanChanges(ctx context.Context, id uuid.UUID) ([]appsub.PlanChangeResponse, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]appsub.PlanChangeResponse), args.Error(1)
}

// MockRecognitionReader implements RecognitionReader for testing
type MockRecognitionReader struct {
	mock.Mock
}

func (m *MockRecognitionReader) GetRecognitionSchedule(ctx context.Context, subscriptionID uuid.UUID) (*appsub.RevenueScheduleResponse, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsub.RevenueScheduleResponse), args.Error(1)
}

func (m *MockRecognitionReader) ListSchedules(ctx context.Context, subscriptionID uuid.UUID) ([]appsub.RevenueScheduleResponse, error) {
	args := m.Called(ctx, subscriptionID)
	return args.Get(0).([]appsub.RevenueScheduleResponse), args.Error(1)
}

// MockRenewalService implements RenewalService for testing
type MockRenewalService struct {
	mock.Mock
}

func (m *MockRenewalService) ConfirmRenewal(ctx context.Context, eventID uuid.UUID) (*appsub.RenewalEventResponse, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsub.RenewalEventResponse), args.Error(1)
}

func (m *MockRenewalService) ListRenewals(ctx context.Context, subscriptionID uuid.UUID) ([]appsub.RenewalEventResponse, error) {
	args := m.Called(ctx, subscriptionID)
	return args.Get(0).([]appsub.RenewalEventResponse), args.Error(1)
}

// MockCatalogService implements CatalogService for testing
type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) period(args mock.Arguments) (*appsub.BillingPeriodResponse, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsub.BillingPeriodResponse), args.Error(1)
}

func (m *MockCatalogService) plan(args mock.Arguments) (*appsub.PlanResponse, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsub.PlanResponse), args.Error(1)
}

func (m *MockCatalogService) CreateBillingPeriod(ctx context.Context, req appsub.CreateBillingPeriodRequest) (*appsub.BillingPeriodResponse, error) {
	return m.period(m.Called(ctx, req))
}

func (m *MockCatalogService) GetBillingPeriod(ctx context.Context, id uuid.UUID) (*appsub.BillingPeriodResponse, error) {
	return m.period(m.Called(ctx, id))
}

func (m *MockCatalogService) ListBillingPeriods(ctx context.Context, filter appsub.CatalogListFilter) ([]appsub.BillingPeriodResponse, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]appsub.BillingPeriodResponse), args.Error(1)
}

func (m *MockCatalogService) SetDefaultBillingPeriod(ctx context.Context, id uuid.UUID) (*appsub.BillingPeriodResponse, error) {
	return m.period(m.Called(ctx, id))
}

func (m *MockCatalogService) UpdateBillingPeriodDuration(ctx context.Context, id uuid.UUID, req appsub.UpdateBillingPeriodRequest) (*appsub.BillingPeriodResponse, error) {
	return m.period(m.Called(ctx, id, req))
}

func (m *MockCatalogService) CreatePlan(ctx context.Context, req appsub.CreatePlanRequest) (*appsub.PlanResponse, error) {
	return m.plan(m.Called(ctx, req))
}

func (m *MockCatalogService) GetPlan(ctx context.Context, id uuid.UUID) (*appsub.PlanResponse, error) {
	return m.plan(m.Called(ctx, id))
}

func (m *MockCatalogService) ListPlans(ctx context.Context, filter appsub.CatalogListFilter) ([]appsub.PlanResponse, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]appsub.PlanResponse), args.Error(1)
}

func (m *MockCatalogService) DeactivatePlan(ctx context.Context, id uuid.UUID) (*appsub.PlanResponse, error) {
	return m.plan(m.Called(ctx, id))
}

// MockFailureService implements FailureService for testing
type MockFailureService struct {
	mock.Mock
}

func (m *MockFailureService) List(ctx context.Context, filter appsub.FailureListFilter) ([]appsub.ProcessingFailureResponse, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]appsub.ProcessingFailureResponse), args.Get(1).(int64), args.Error(2)
}

func (m *MockFailureService) Get(ctx context.Context, id uuid.UUID) (*appsub.ProcessingFailureResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsub.ProcessingFailureResponse), args.Error(1)
}

func (m *MockFailureService) Resolve(ctx context.Context, id uuid.UUID, req appsub.ResolveFailureRequest) (*appsub.ProcessingFailureResponse, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsub.ProcessingFailureResponse), args.Error(1)
}

// MockJobService implements JobService for testing
type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) Run(ctx context.Context, jobType processing.JobType, asOf time.Time, trigger string) (*appsub.BatchResult, error) {
	args := m.Called(ctx, jobType, asOf, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsub.BatchResult), args.Error(1)
}

func (m *MockJobService) RunAll(ctx context.Context, asOf time.Time, trigger string) (map[processing.JobType]*appsub.BatchResult, error) {
	args := m.Called(ctx, asOf, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[processing.JobType]*appsub.BatchResult), args.Error(1)
}

func (m *MockJobService) ListRuns(ctx context.Context, filter appsub.JobRunListFilter) ([]appsub.JobRunResponse, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]appsub.JobRunResponse), args.Error(1)
}

type stubSchedulerStatus []scheduler.EntryStatus

func (s stubSchedulerStatus) Status() []scheduler.EntryStatus { return s }

// performRequest sends method/path with an optional JSON body through router
func performRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		buf = bytes.NewBuffer(b)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// decodeData unmarshals the data field of a success response into v
func decodeData(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NoError(t, json.Unmarshal(resp.Data, v))
}
