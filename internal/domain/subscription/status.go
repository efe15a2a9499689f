package subscription

// Status is the lifecycle state of a subscription
type Status string

const (
	StatusDraft      Status = "draft"
	StatusActive     Status = "active"
	StatusGrace      Status = "grace"
	StatusSuspended  Status = "suspended"
	StatusLapsed     Status = "lapsed"
	StatusTerminated Status = "terminated"
	StatusCancelled  Status = "cancelled"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []Status{
	StatusDraft, StatusActive, StatusGrace, StatusSuspended,
	StatusLapsed, StatusTerminated, StatusCancelled,
}

// transitions is the complete edge list of the lifecycle graph
var transitions = map[Status][]Status{
	StatusDraft:      {StatusActive, StatusCancelled, StatusTerminated},
	StatusActive:     {StatusGrace, StatusSuspended, StatusTerminated, StatusCancelled},
	StatusGrace:      {StatusLapsed, StatusActive, StatusSuspended, StatusTerminated, StatusCancelled},
	StatusSuspended:  {StatusLapsed, StatusActive, StatusTerminated, StatusCancelled},
	StatusLapsed:     {StatusActive},
	StatusTerminated: {StatusActive},
	StatusCancelled:  {},
}

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true for statuses only reinstatement can leave
func (s Status) IsTerminal() bool {
	return s == StatusLapsed || s == StatusTerminated || s == StatusCancelled
}

// IsLive returns true while the subscription is paid up or recovering
func (s Status) IsLive() bool {
	return s == StatusActive || s == StatusGrace || s == StatusSuspended
}

// CanTransitionTo reports whether the edge s -> to exists
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from s in one step
func (s Status) AllowedTransitions() []Status {
	return append([]Status(nil), transitions[s]...)
}

// CanSuspend returns true if a manual suspension is allowed
func (s Status) CanSuspend() bool {
	return s.CanTransitionTo(StatusSuspended)
}

// CanReinstate returns true if reinstatement is allowed
func (s Status) CanReinstate() bool {
	return s == StatusSuspended || s == StatusLapsed || s == StatusTerminated
}

// Kind tags the membership variant
type Kind string

const (
	KindIndividual  Kind = "individual"
	KindEnterprise  Kind = "enterprise"
	KindChapter     Kind = "chapter"
	KindPublication Kind = "publication"
)

// IsValid checks if the kind is a valid Kind
func (k Kind) IsValid() bool {
	switch k {
	case KindIndividual, KindEnterprise, KindChapter, KindPublication:
		return true
	}
	return false
}

// RequiresSeats reports whether the kind is priced per seat
func (k Kind) RequiresSeats() bool {
	return k == KindEnterprise
}
