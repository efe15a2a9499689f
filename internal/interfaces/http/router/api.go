package router

import (
	"github.com/ams/backend/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
)

// Handlers bundles the HTTP handlers served under the API prefix
type Handlers struct {
	Subscriptions *handler.SubscriptionHandler
	Catalog       *handler.CatalogHandler
	Failures      *handler.FailureHandler
	Jobs          *handler.JobHandler
	System        *handler.SystemHandler
}

// Access holds the role guards applied per route. A nil guard lets every
// request through, which is how the API runs with authentication disabled.
type Access struct {
	Reader   gin.HandlerFunc
	Operator gin.HandlerFunc
}

func (a Access) read(h gin.HandlerFunc) []gin.HandlerFunc {
	return guarded(a.Reader, h)
}

func (a Access) operate(h gin.HandlerFunc) []gin.HandlerFunc {
	return guarded(a.Operator, h)
}

func guarded(guard, h gin.HandlerFunc) []gin.HandlerFunc {
	if guard == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{guard, h}
}

// APIGroups builds the domain groups of the subscription API. Queries need
// the reader role; state changes, job triggers and failure resolution need
// the operator role.
func APIGroups(h Handlers, access Access) []*DomainGroup {
	subs := NewDomainGroup("subscriptions", "/subscriptions")
	subs.POST("", access.operate(h.Subscriptions.Create)...).
		GET("", access.read(h.Subscriptions.List)...).
		GET("/:id", access.read(h.Subscriptions.Get)...).
		POST("/:id/activate", access.operate(h.Subscriptions.Activate)...).
		POST("/:id/suspend", access.operate(h.Subscriptions.Suspend)...).
		POST("/:id/terminate", access.operate(h.Subscriptions.Terminate)...).
		POST("/:id/cancel", access.operate(h.Subscriptions.Cancel)...).
		POST("/:id/reinstate", access.operate(h.Subscriptions.Reinstate)...).
		POST("/:id/plan-change/preview", access.read(h.Subscriptions.PreviewPlanChange)...).
		POST("/:id/plan-change", access.operate(h.Subscriptions.ApplyPlanChange)...).
		GET("/:id/plan-changes", access.read(h.Subscriptions.ListPlanChanges)...).
		GET("/:id/recognition-schedule", access.read(h.Subscriptions.GetRecognitionSchedule)...).
		GET("/:id/recognition-schedules", access.read(h.Subscriptions.ListRecognitionSchedules)...).
		GET("/:id/renewals", access.read(h.Subscriptions.ListRenewals)...)

	renewals := NewDomainGroup("renewals", "/renewals")
	renewals.POST("/:id/confirm", access.operate(h.Subscriptions.ConfirmRenewal)...)

	periods := NewDomainGroup("billing-periods", "/billing-periods")
	periods.POST("", access.operate(h.Catalog.CreateBillingPeriod)...).
		GET("", access.read(h.Catalog.ListBillingPeriods)...).
		GET("/:id", access.read(h.Catalog.GetBillingPeriod)...).
		POST("/:id/default", access.operate(h.Catalog.SetDefaultBillingPeriod)...).
		PUT("/:id/duration", access.operate(h.Catalog.UpdateBillingPeriodDuration)...)

	plans := NewDomainGroup("plans", "/plans")
	plans.POST("", access.operate(h.Catalog.CreatePlan)...).
		GET("", access.read(h.Catalog.ListPlans)...).
		GET("/:id", access.read(h.Catalog.GetPlan)...).
		POST("/:id/deactivate", access.operate(h.Catalog.DeactivatePlan)...)

	jobs := NewDomainGroup("jobs", "/jobs")
	jobs.POST("/run", access.operate(h.Jobs.RunAll)...).
		POST("/lifecycle/run", access.operate(h.Jobs.RunLifecycle)...).
		POST("/renewal/run", access.operate(h.Jobs.RunRenewal)...).
		POST("/recognition/run", access.operate(h.Jobs.RunRecognition)...).
		GET("/runs", access.read(h.Jobs.ListRuns)...).
		GET("/schedule", access.read(h.Jobs.SchedulerStatus)...)

	failures := NewDomainGroup("failures", "/failures")
	failures.GET("", access.read(h.Failures.List)...).
		GET("/:id", access.read(h.Failures.Get)...).
		POST("/:id/resolve", access.operate(h.Failures.Resolve)...)

	system := NewDomainGroup("system", "/system")
	system.GET("/info", access.read(h.System.GetSystemInfo)...)

	return []*DomainGroup{subs, renewals, periods, plans, jobs, failures, system}
}

// RegisterAPI adds the API groups to r
func RegisterAPI(r *Router, h Handlers, access Access) *Router {
	for _, g := range APIGroups(h, access) {
		r.Register(g)
	}
	return r
}
