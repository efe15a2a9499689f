package subscription

import (
	"time"

	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/processing"
	"github.com/ams/backend/internal/domain/renewal"
	"github.com/ams/backend/internal/domain/revenue"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/subscription"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// CreateSubscriptionRequest represents a request to create a draft subscription
type CreateSubscriptionRequest struct {
	SubscriberRef string            `json:"subscriber_ref" binding:"required,max=100"`
	PlanID        uuid.UUID         `json:"plan_id" binding:"required"`
	StartDate     string            `json:"start_date" binding:"required,isodate"`
	Kind          string            `json:"kind" binding:"omitempty,oneof=individual enterprise chapter publication"`
	SeatCount     int               `json:"seat_count" binding:"min=0"`
	Attributes    map[string]string `json:"attributes"`
	AutoRenew     *bool             `json:"auto_renew"`
}

// StatusChangeRequest carries the operator's reason for a manual transition
type StatusChangeRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// PlanChangeRequest represents a preview or apply plan change request
type PlanChangeRequest struct {
	NewPlanID     uuid.UUID `json:"new_plan_id" binding:"required"`
	EffectiveDate string    `json:"effective_date" binding:"required,isodate"`
	Reason        string    `json:"reason" binding:"max=500"`
}

// SubscriptionListFilter represents filter options for the subscription list
type SubscriptionListFilter struct {
	Status        string     `form:"status" binding:"omitempty,oneof=draft active grace suspended lapsed terminated cancelled"`
	SubscriberRef string     `form:"subscriber_ref"`
	PlanID        *uuid.UUID `form:"plan_id"`
	Kind          string     `form:"kind"`
	Page          int        `form:"page" binding:"omitempty,min=1"`
	PageSize      int        `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy       string     `form:"order_by"`
	OrderDir      string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// CreateBillingPeriodRequest represents a request to create a billing period
type CreateBillingPeriodRequest struct {
	Code      string `json:"code" binding:"required,max=25"`
	Name      string `json:"name" binding:"required,max=100"`
	Value     int    `json:"value" binding:"required,min=1"`
	Unit      string `json:"unit" binding:"required,oneof=day week month year"`
	IsDefault bool   `json:"is_default"`
}

// UpdateBillingPeriodRequest changes a billing period's duration
type UpdateBillingPeriodRequest struct {
	Value int    `json:"value" binding:"required,min=1"`
	Unit  string `json:"unit" binding:"required,oneof=day week month year"`
}

// CreatePlanRequest represents a request to create a plan
type CreatePlanRequest struct {
	Code                   string          `json:"code" binding:"required,max=25"`
	Name                   string          `json:"name" binding:"required,max=200"`
	Amount                 decimal.Decimal `json:"amount" binding:"required"`
	Currency               string          `json:"currency"`
	BillingPeriodID        uuid.UUID       `json:"billing_period_id" binding:"required"`
	RecognitionMethod      string          `json:"recognition_method" binding:"required,oneof=immediate deferred"`
	RecognitionIntervalID  *uuid.UUID      `json:"recognition_interval_id"`
	DeferredRevenueAccount string          `json:"deferred_revenue_account" binding:"required"`
	RevenueAccount         string          `json:"revenue_account" binding:"required"`
	GracePeriodDays        *int            `json:"grace_period_days" binding:"omitempty,min=0"`
	SuspendDays            *int            `json:"suspend_days" binding:"omitempty,min=0"`
	RenewalNoticeDays      *int            `json:"renewal_notice_days" binding:"omitempty,min=0"`
	ReminderDays           []int           `json:"reminder_days"`
	AutoRenew              *bool           `json:"auto_renew"`
	PerSeat                bool            `json:"per_seat"`
}

// CatalogListFilter pages plans and billing periods
type CatalogListFilter struct {
	Search     string `form:"search"`
	ActiveOnly bool   `form:"active_only"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// FailureListFilter represents filter options for the failure queue
type FailureListFilter struct {
	Status   string `form:"status" binding:"omitempty,oneof=open manual_review resolved"`
	JobType  string `form:"job_type" binding:"omitempty,oneof=lifecycle renewal recognition"`
	Category string `form:"category"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// ResolveFailureRequest is the operator action on a queued failure
type ResolveFailureRequest struct {
	ResolvedBy string `json:"resolved_by" binding:"required,max=100"`
	Note       string `json:"note" binding:"max=1000"`
}

// JobRunListFilter represents filter options for the job run history
type JobRunListFilter struct {
	JobType  string `form:"job_type" binding:"omitempty,oneof=lifecycle renewal recognition"`
	Status   string `form:"status" binding:"omitempty,oneof=RUNNING SUCCESS FAILED"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// RunJobRequest triggers a batch run for a business date
type RunJobRequest struct {
	AsOf string `json:"as_of" binding:"omitempty,isodate"` // defaults to today
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// SubscriptionResponse represents a subscription in API responses
type SubscriptionResponse struct {
	ID                 uuid.UUID         `json:"id"`
	SubscriberRef      string            `json:"subscriber_ref"`
	PlanID             uuid.UUID         `json:"plan_id"`
	BillingPeriodID    uuid.UUID         `json:"billing_period_id"`
	Kind               string            `json:"kind"`
	Attributes         map[string]string `json:"attributes,omitempty"`
	SeatCount          int               `json:"seat_count"`
	Status             string            `json:"status"`
	StatusReason       string            `json:"status_reason,omitempty"`
	StartDate          string            `json:"start_date"`
	CurrentPeriodStart *string           `json:"current_period_start,omitempty"`
	PaidThroughDate    *string           `json:"paid_through_date,omitempty"`
	GraceEndDate       *string           `json:"grace_end_date,omitempty"`
	SuspendEndDate     *string           `json:"suspend_end_date,omitempty"`
	TerminateDate      *string           `json:"terminate_date,omitempty"`
	CancelledDate      *string           `json:"cancelled_date,omitempty"`
	Amount             decimal.Decimal   `json:"amount"`
	Currency           string            `json:"currency"`
	AutoRenew          bool              `json:"auto_renew"`
	AllowedTransitions []string          `json:"allowed_transitions"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	Version            int               `json:"version"`
}

// ToSubscriptionResponse converts a domain Subscription to a response
func ToSubscriptionResponse(s *subscription.Subscription) SubscriptionResponse {
	allowed := make([]string, 0, len(s.Status.AllowedTransitions()))
	for _, st := range s.Status.AllowedTransitions() {
		allowed = append(allowed, st.String())
	}
	return SubscriptionResponse{
		ID:                 s.ID,
		SubscriberRef:      s.SubscriberRef,
		PlanID:             s.PlanID,
		BillingPeriodID:    s.BillingPeriodID,
		Kind:               string(s.Kind),
		Attributes:         s.Attributes,
		SeatCount:          s.SeatCount,
		Status:             s.Status.String(),
		StatusReason:       s.StatusReason,
		StartDate:          shared.FormatDate(s.StartDate),
		CurrentPeriodStart: formatDatePtr(s.CurrentPeriodStart),
		PaidThroughDate:    formatDatePtr(s.PaidThroughDate),
		GraceEndDate:       formatDatePtr(s.GraceEndDate),
		SuspendEndDate:     formatDatePtr(s.SuspendEndDate),
		TerminateDate:      formatDatePtr(s.TerminateDate),
		CancelledDate:      formatDatePtr(s.CancelledDate),
		Amount:             s.Amount,
		Currency:           string(s.Currency),
		AutoRenew:          s.AutoRenew,
		AllowedTransitions: allowed,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
		Version:            s.Version,
	}
}

// ProrationResponse represents a plan change preview
type ProrationResponse struct {
	OldPlanID         uuid.UUID       `json:"old_plan_id"`
	NewPlanID         uuid.UUID       `json:"new_plan_id"`
	OldAmount         decimal.Decimal `json:"old_amount"`
	NewAmount         decimal.Decimal `json:"new_amount"`
	DaysRemaining     int             `json:"days_remaining"`
	TotalDaysInPeriod int             `json:"total_days_in_period"`
	CreditAmount      decimal.Decimal `json:"credit_amount"`
	ChargeAmount      decimal.Decimal `json:"charge_amount"`
	NetAdjustment     decimal.Decimal `json:"net_adjustment"`
	EffectiveDate     string          `json:"effective_date"`
	ChangeType        string          `json:"change_type"`
	RequiresApproval  bool            `json:"requires_approval"`
}

// PlanChangeResponse represents an applied plan change
type PlanChangeResponse struct {
	ID                   uuid.UUID       `json:"id"`
	SubscriptionID       uuid.UUID       `json:"subscription_id"`
	OldPlanID            uuid.UUID       `json:"old_plan_id"`
	NewPlanID            uuid.UUID       `json:"new_plan_id"`
	EffectiveDate        string          `json:"effective_date"`
	Reason               string          `json:"reason,omitempty"`
	ChangeType           string          `json:"change_type"`
	CreditAmount         decimal.Decimal `json:"credit_amount"`
	ChargeAmount         decimal.Decimal `json:"charge_amount"`
	NetAdjustment        decimal.Decimal `json:"net_adjustment"`
	DaysRemaining        int             `json:"days_remaining"`
	TotalDaysInPeriod    int             `json:"total_days_in_period"`
	RequiresApproval     bool            `json:"requires_approval"`
	AdjustmentInvoiceRef string          `json:"adjustment_invoice_ref,omitempty"`
	InvoiceError         string          `json:"invoice_error,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// ToPlanChangeResponse converts a domain PlanChange to a response
func ToPlanChangeResponse(pc *subscription.PlanChange) PlanChangeResponse {
	return PlanChangeResponse{
		ID:                   pc.ID,
		SubscriptionID:       pc.SubscriptionID,
		OldPlanID:            pc.OldPlanID,
		NewPlanID:            pc.NewPlanID,
		EffectiveDate:        shared.FormatDate(pc.EffectiveDate),
		Reason:               pc.Reason,
		ChangeType:           string(pc.ChangeType),
		CreditAmount:         pc.CreditAmount,
		ChargeAmount:         pc.ChargeAmount,
		NetAdjustment:        pc.NetAdjustment,
		DaysRemaining:        pc.DaysRemaining,
		TotalDaysInPeriod:    pc.TotalDaysInPeriod,
		RequiresApproval:     pc.RequiresApproval,
		AdjustmentInvoiceRef: pc.AdjustmentInvoiceRef,
		InvoiceError:         pc.InvoiceError,
		CreatedAt:            pc.CreatedAt,
	}
}

// RecognitionLineResponse represents one recognition line
type RecognitionLineResponse struct {
	ID              uuid.UUID       `json:"id"`
	Sequence        int             `json:"sequence"`
	LineStart       string          `json:"line_start"`
	LineEnd         string          `json:"line_end"`
	RecognitionDate string          `json:"recognition_date"`
	Amount          decimal.Decimal `json:"amount"`
	Status          string          `json:"status"`
	RecognizedDate  *string         `json:"recognized_date,omitempty"`
	FailureCount    int             `json:"failure_count,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
}

// RevenueScheduleResponse represents a revenue schedule with its lines
type RevenueScheduleResponse struct {
	ID                     uuid.UUID                 `json:"id"`
	SubscriptionID         uuid.UUID                 `json:"subscription_id"`
	Method                 string                    `json:"recognition_method"`
	TotalAmount            decimal.Decimal           `json:"total_amount"`
	RecognizedAmount       decimal.Decimal           `json:"recognized_amount"`
	Currency               string                    `json:"currency"`
	PeriodStart            string                    `json:"period_start"`
	PeriodEnd              string                    `json:"period_end"`
	Interval               string                    `json:"recognition_interval"`
	DeferredRevenueAccount string                    `json:"deferred_revenue_account"`
	RevenueAccount         string                    `json:"revenue_account"`
	Lines                  []RecognitionLineResponse `json:"lines"`
	CreatedAt              time.Time                 `json:"created_at"`
}

// ToRevenueScheduleResponse converts a domain RevenueSchedule to a response
func ToRevenueScheduleResponse(s *revenue.RevenueSchedule) RevenueScheduleResponse {
	lines := make([]RecognitionLineResponse, len(s.Lines))
	for i := range s.Lines {
		l := &s.Lines[i]
		lines[i] = RecognitionLineResponse{
			ID:              l.ID,
			Sequence:        l.Sequence,
			LineStart:       shared.FormatDate(l.LineStart),
			LineEnd:         shared.FormatDate(l.LineEnd),
			RecognitionDate: shared.FormatDate(l.RecognitionDate()),
			Amount:          l.Amount,
			Status:          string(l.Status),
			RecognizedDate:  formatDatePtr(l.RecognizedDate),
			FailureCount:    l.FailureCount,
			LastError:       l.LastError,
		}
	}
	return RevenueScheduleResponse{
		ID:                     s.ID,
		SubscriptionID:         s.SubscriptionID,
		Method:                 s.Method.String(),
		TotalAmount:            s.TotalAmount,
		RecognizedAmount:       s.RecognizedAmount(),
		Currency:               string(s.Currency),
		PeriodStart:            shared.FormatDate(s.PeriodStart),
		PeriodEnd:              shared.FormatDate(s.PeriodEnd),
		Interval:               s.Interval.String(),
		DeferredRevenueAccount: s.Accounts.DeferredRevenueAccount,
		RevenueAccount:         s.Accounts.RevenueAccount,
		Lines:                  lines,
		CreatedAt:              s.CreatedAt,
	}
}

// RenewalEventResponse represents a renewal event
type RenewalEventResponse struct {
	ID             uuid.UUID       `json:"id"`
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	DueDate        string          `json:"due_date"`
	Amount         decimal.Decimal `json:"amount"`
	Status         string          `json:"status"`
	InvoiceRef     string          `json:"invoice_ref,omitempty"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	Attempts       int             `json:"attempts"`
	ConfirmedAt    *time.Time      `json:"confirmed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ToRenewalEventResponse converts a domain RenewalEvent to a response
func ToRenewalEventResponse(e *renewal.RenewalEvent) RenewalEventResponse {
	return RenewalEventResponse{
		ID:             e.ID,
		SubscriptionID: e.SubscriptionID,
		DueDate:        shared.FormatDate(e.DueDate),
		Amount:         e.Amount,
		Status:         e.Status.String(),
		InvoiceRef:     e.InvoiceRef,
		FailureReason:  e.FailureReason,
		Attempts:       e.Attempts,
		ConfirmedAt:    e.ConfirmedAt,
		CreatedAt:      e.CreatedAt,
	}
}

// ProcessingFailureResponse represents a failure queue entry
type ProcessingFailureResponse struct {
	ID             uuid.UUID  `json:"id"`
	JobType        string     `json:"job_type"`
	Category       string     `json:"category"`
	SubjectType    string     `json:"subject_type"`
	SubjectID      uuid.UUID  `json:"subject_id"`
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	Attempts       int        `json:"attempts"`
	LastError      string     `json:"last_error"`
	Status         string     `json:"status"`
	LastFailedAt   time.Time  `json:"last_failed_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
}

// ToProcessingFailureResponse converts a domain ProcessingFailure to a response
func ToProcessingFailureResponse(f *processing.ProcessingFailure) ProcessingFailureResponse {
	return ProcessingFailureResponse{
		ID:             f.ID,
		JobType:        f.JobType.String(),
		Category:       string(f.Category),
		SubjectType:    string(f.SubjectType),
		SubjectID:      f.SubjectID,
		SubscriptionID: f.SubscriptionID,
		IdempotencyKey: f.IdempotencyKey,
		Attempts:       f.Attempts,
		LastError:      f.LastError,
		Status:         string(f.Status),
		LastFailedAt:   f.LastFailedAt,
		ResolvedAt:     f.ResolvedAt,
		ResolvedBy:     f.ResolvedBy,
		ResolutionNote: f.ResolutionNote,
	}
}

// JobRunResponse represents a batch run
type JobRunResponse struct {
	ID          uuid.UUID  `json:"id"`
	JobType     string     `json:"job_type"`
	AsOf        string     `json:"as_of"`
	Status      string     `json:"status"`
	Trigger     string     `json:"trigger"`
	Total       int        `json:"total"`
	Processed   int        `json:"processed"`
	Skipped     int        `json:"skipped"`
	Failed      int        `json:"failed"`
	Error       string     `json:"error,omitempty"`
	ReportKey   string     `json:"report_key,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms"`
}

// ToJobRunResponse converts a domain JobRun to a response
func ToJobRunResponse(r *processing.JobRun) JobRunResponse {
	return JobRunResponse{
		ID:          r.ID,
		JobType:     r.JobType.String(),
		AsOf:        shared.FormatDate(r.AsOf),
		Status:      string(r.Status),
		Trigger:     r.Trigger,
		Total:       r.Total,
		Processed:   r.Processed,
		Skipped:     r.Skipped,
		Failed:      r.Failed,
		Error:       r.Error,
		ReportKey:   r.ReportKey,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		DurationMs:  r.Duration().Milliseconds(),
	}
}

// BillingPeriodResponse represents a billing period
type BillingPeriodResponse struct {
	ID              uuid.UUID `json:"id"`
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	Value           int       `json:"value"`
	Unit            string    `json:"unit"`
	TotalDaysApprox int       `json:"total_days_approx"`
	IsDefault       bool      `json:"is_default"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ToBillingPeriodResponse converts a domain BillingPeriod to a response
func ToBillingPeriodResponse(bp *billing.BillingPeriod) BillingPeriodResponse {
	return BillingPeriodResponse{
		ID:              bp.ID,
		Code:            bp.Code,
		Name:            bp.Name,
		Value:           bp.Duration.Value,
		Unit:            bp.Duration.Unit.String(),
		TotalDaysApprox: bp.TotalDaysApprox(),
		IsDefault:       bp.IsDefault,
		Active:          bp.Active,
		CreatedAt:       bp.CreatedAt,
		UpdatedAt:       bp.UpdatedAt,
	}
}

// PlanResponse represents a plan
type PlanResponse struct {
	ID                     uuid.UUID       `json:"id"`
	Code                   string          `json:"code"`
	Name                   string          `json:"name"`
	Amount                 decimal.Decimal `json:"amount"`
	Currency               string          `json:"currency"`
	BillingPeriodID        uuid.UUID       `json:"billing_period_id"`
	RecognitionMethod      string          `json:"recognition_method"`
	RecognitionIntervalID  *uuid.UUID      `json:"recognition_interval_id,omitempty"`
	DeferredRevenueAccount string          `json:"deferred_revenue_account"`
	RevenueAccount         string          `json:"revenue_account"`
	GracePeriodDays        int             `json:"grace_period_days"`
	SuspendDays            int             `json:"suspend_days"`
	RenewalNoticeDays      int             `json:"renewal_notice_days"`
	ReminderDays           []int           `json:"reminder_days"`
	AutoRenewDefault       bool            `json:"auto_renew_default"`
	PerSeat                bool            `json:"per_seat"`
	Active                 bool            `json:"active"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// ToPlanResponse converts a domain Plan to a response
func ToPlanResponse(p *billing.Plan) PlanResponse {
	return PlanResponse{
		ID:                     p.ID,
		Code:                   p.Code,
		Name:                   p.Name,
		Amount:                 p.Amount,
		Currency:               string(p.Currency),
		BillingPeriodID:        p.BillingPeriodID,
		RecognitionMethod:      p.RecognitionMethod.String(),
		RecognitionIntervalID:  p.RecognitionIntervalID,
		DeferredRevenueAccount: p.LedgerAccounts.DeferredRevenueAccount,
		RevenueAccount:         p.LedgerAccounts.RevenueAccount,
		GracePeriodDays:        p.Policy.GracePeriodDays,
		SuspendDays:            p.Policy.SuspendDays,
		RenewalNoticeDays:      p.RenewalNoticeDays,
		ReminderDays:           []int(p.ReminderDays),
		AutoRenewDefault:       p.AutoRenewDefault,
		PerSeat:                p.PerSeat,
		Active:                 p.Active,
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
	}
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := shared.FormatDate(*t)
	return &s
}

// toFilter maps page parameters onto a shared.Filter
func toFilter(page, pageSize int, orderBy, orderDir string) shared.Filter {
	f := shared.DefaultFilter()
	if page > 0 {
		f.Page = page
	}
	if pageSize > 0 {
		f.PageSize = pageSize
	}
	if orderBy != "" {
		f.OrderBy = orderBy
	}
	if orderDir != "" {
		f.OrderDir = orderDir
	}
	return f
}
