package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/labflow/pkg/domain"
)

// State returns the state of ent on axis. Entities the store has never seen hold
// the declared initial state. An undeclared axis or an unreadable state yields
// the empty state, which no transition leaves.
func (e *Engine) State(ctx context.Context, ent domain.Entity, axis domain.Axis) domain.StateID {
	state, err := e.readState(ctx, ent, axis)
	if err != nil {
		e.logger.Error("Failed to read state", "uid", ent.UID(), "axis", axis, "err", err)
		return ""
	}
	return state
}

// readState is State with store failures reported instead of swallowed.
func (e *Engine) readState(ctx context.Context, ent domain.Entity, axis domain.Axis) (domain.StateID, error) {
	if isNil(ent) {
		return "", nil
	}
	state, err := e.store.GetState(ctx, ent.UID(), axis)
	if errors.Is(err, domain.ErrStateNotFound) {
		initial, _ := e.registry.InitialState(ent.Type(), axis)
		return initial, nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s state of %s: %w", axis, ent.UID(), err)
	}
	return state, nil
}

// States returns the state of ent on every declared axis.
func (e *Engine) States(ctx context.Context, ent domain.Entity) domain.States {
	out := make(domain.States)
	if isNil(ent) {
		return out
	}
	for _, axis := range e.registry.Axes(ent.Type()) {
		out[axis] = e.State(ctx, ent, axis)
	}
	return out
}

// IsActive reports whether ent is neither cancelled nor inactive.
// Types without activity axes are always active.
func (e *Engine) IsActive(ctx context.Context, ent domain.Entity) bool {
	return e.States(ctx, ent).Active()
}

// IsEndState reports whether the current state of ent on axis has no exit transitions.
func (e *Engine) IsEndState(ctx context.Context, ent domain.Entity, axis domain.Axis) bool {
	if isNil(ent) {
		return false
	}
	return e.registry.IsEndState(ent.Type(), axis, e.State(ctx, ent, axis))
}
