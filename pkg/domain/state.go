package domain

// Axis is an independent dimension of an entity's state.
type Axis string

// StateID names a state on one axis.
type StateID string

const (
	AxisReview       Axis = "review"
	AxisCancellation Axis = "cancellation"
	AxisInactive     Axis = "inactive"
)

// States shared by the activity axes.
const (
	StateActive    StateID = "active"
	StateCancelled StateID = "cancelled"
	StateInactive  StateID = "inactive"
)

// States is a snapshot of an entity's current state per axis.
type States map[Axis]StateID

// Active reports whether the snapshot is neither cancelled nor inactive.
// Missing axes count as active.
func (s States) Active() bool {
	if s[AxisCancellation] == StateCancelled {
		return false
	}
	return s[AxisInactive] != StateInactive
}

// Clone returns an independent copy.
func (s States) Clone() States {
	out := make(States, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
