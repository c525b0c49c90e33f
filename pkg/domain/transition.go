package domain

import "slices"

// TransitionID names a transition. The same id may be declared by several entity
// types, each with its own sources and destination.
type TransitionID string

// TriggerKind tells whether a transition is offered to users or only fired by cascades.
type TriggerKind string

const (
	TriggerUser      TriggerKind = "user"
	TriggerAutomatic TriggerKind = "automatic"
)

// Permission is an opaque permission token checked against the current actor.
type Permission string

// Transition is a legal move on a single axis.
type Transition struct {
	ID    TransitionID `json:"id" yaml:"id"`
	Title string       `json:"title,omitempty" yaml:"title,omitempty"`
	Axis  Axis         `json:"axis" yaml:"axis"`
	// From lists the states the transition may leave. It is supported only there.
	From    []StateID   `json:"from" yaml:"from"`
	To      StateID     `json:"to" yaml:"to"`
	Trigger TriggerKind `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	// Permission, when set, must be granted to the actor for the guard to pass.
	Permission Permission `json:"permission,omitempty" yaml:"permission,omitempty"`
}

// SupportedFrom reports whether the transition may leave state.
func (t Transition) SupportedFrom(state StateID) bool {
	return slices.Contains(t.From, state)
}

// IsUserAction reports whether the transition is offered to users.
// An empty trigger defaults to user.
func (t Transition) IsUserAction() bool {
	return t.Trigger == "" || t.Trigger == TriggerUser
}
