package subscription

import (
	"time"

	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/shared"
)

// Transition is one automated step of the lifecycle
type Transition struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	AsOf   time.Time `json:"as_of"`
	Reason string    `json:"reason"`
}

const (
	reasonPaymentOverdue = "paid-through date passed"
	reasonGraceExpired   = "grace period expired"
	reasonSuspendExpired = "suspension period expired"
)

// EvaluateTransitions computes the automated transitions due as of asOf.
// It is pure: the result depends only on the status, the stored dates and
// the policy, so evaluating twice for the same date yields the same steps.
// Several steps may be returned when a run catches up on missed days.
func (s *Subscription) EvaluateTransitions(asOf time.Time, policy billing.LifecyclePolicy) []Transition {
	asOf = shared.TruncateDay(asOf)
	status := s.Status
	graceEnd := s.GraceEndDate
	var steps []Transition

	for {
		switch {
		case status == StatusActive && s.PaidThroughDate != nil && asOf.After(*s.PaidThroughDate):
			end := shared.AddDays(*s.PaidThroughDate, policy.GracePeriodDays)
			graceEnd = &end
			steps = append(steps, Transition{From: status, To: StatusGrace, AsOf: asOf, Reason: reasonPaymentOverdue})
			status = StatusGrace
		case status == StatusGrace && graceEnd != nil && asOf.After(*graceEnd):
			steps = append(steps, Transition{From: status, To: StatusLapsed, AsOf: asOf, Reason: reasonGraceExpired})
			status = StatusLapsed
		case status == StatusSuspended && s.SuspendEndDate != nil && asOf.After(*s.SuspendEndDate):
			steps = append(steps, Transition{From: status, To: StatusLapsed, AsOf: asOf, Reason: reasonSuspendExpired})
			status = StatusLapsed
		default:
			return steps
		}
	}
}

// ApplyTransitions evaluates and applies the automated transitions due as
// of asOf, returning the steps taken
func (s *Subscription) ApplyTransitions(asOf time.Time, policy billing.LifecyclePolicy, now time.Time) []Transition {
	steps := s.EvaluateTransitions(asOf, policy)
	version := s.Version
	for _, step := range steps {
		s.transition(step.To, step.Reason, now, false)
		if step.To == StatusGrace {
			end := shared.AddDays(*s.PaidThroughDate, policy.GracePeriodDays)
			s.GraceEndDate = &end
		}
	}
	if len(steps) > 0 {
		// one save, one version step
		s.Version = version + 1
	}
	return steps
}
