package request

// Status is the lifecycle state of an access request. A request starts as
// pending and moves exactly once to approved or failed.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusFailed   Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal step.
// The only legal steps are pending -> approved and pending -> failed.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && next.Terminal()
}
