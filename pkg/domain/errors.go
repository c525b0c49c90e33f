package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownTransition is returned when a transition id is not declared for an entity type.
var ErrUnknownTransition = errors.New("unknown transition")

// ErrStateNotFound is returned by a store when no state was ever recorded for an axis.
var ErrStateNotFound = errors.New("state not found")

// ErrEntityNotFound is returned when a UID cannot be resolved to an entity.
var ErrEntityNotFound = errors.New("entity not found")

// ErrInvalidState is the sentinel matched by InvalidStateError.
var ErrInvalidState = errors.New("invalid state")

// ErrHookConflict is returned when a hook is registered twice for the same key.
var ErrHookConflict = errors.New("hook already registered")

// ErrInvalidDefinition is the sentinel matched by DefinitionError.
var ErrInvalidDefinition = errors.New("invalid workflow definition")

// UnknownTransitionError names the entity type and the transition that could not be resolved.
type UnknownTransitionError struct {
	EntityType EntityType
	Transition TransitionID
}

func (e *UnknownTransitionError) Error() string {
	return fmt.Sprintf("unknown transition %q for %s", e.Transition, e.EntityType)
}

// Is makes errors.Is(err, ErrUnknownTransition) hold.
func (e *UnknownTransitionError) Is(target error) bool {
	return target == ErrUnknownTransition
}

// InvalidStateError reports an invariant violation, such as adding an entity to a
// container that no longer accepts it. It is a programming error, distinct from an
// ordinary guard rejection.
type InvalidStateError struct {
	UID    string
	Type   EntityType
	State  StateID
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s is %s: %s", e.Type, e.UID, e.State, e.Reason)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// DefinitionError is returned when a workflow definition fails validation.
type DefinitionError struct {
	EntityType EntityType
	Field      string
	Reason     string
}

func (e *DefinitionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("workflow %s: %s", e.EntityType, e.Reason)
	}
	return fmt.Sprintf("workflow %s: %s: %s", e.EntityType, e.Field, e.Reason)
}

func (e *DefinitionError) Is(target error) bool {
	return target == ErrInvalidDefinition
}
