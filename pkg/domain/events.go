package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTransitionPerformed EventType = "transition_performed"
	EventTransitionRejected  EventType = "transition_rejected"
	EventTransitionFailed    EventType = "transition_failed"
	EventStateForced         EventType = "state_forced"
	EventHookFailed          EventType = "hook_failed"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Entity    Ref       `json:"entity"`
}

// TransitionEvent describes the end of a transition request.
type TransitionEvent struct {
	EventBase
	Transition TransitionID  `json:"transition"`
	Axis       Axis          `json:"axis,omitempty"`
	From       StateID       `json:"from,omitempty"`
	To         StateID       `json:"to,omitempty"`
	Actor      string        `json:"actor,omitempty"`
	Reason     Reason        `json:"reason"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// HookEvent describes a hook that returned an error.
type HookEvent struct {
	EventBase
	Transition TransitionID `json:"transition"`
	Kind       HookKind     `json:"kind"`
	Err        error        `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
// Nil callbacks are skipped.
type LifecycleHooks struct {
	OnTransition  func(context.Context, *TransitionEvent)
	OnStateForced func(context.Context, *TransitionEvent)
	OnHookFailed  func(context.Context, *HookEvent)
}
