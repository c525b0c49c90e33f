package runtime

import (
	"context"

	"github.com/aretw0/labflow/pkg/domain"
)

// SupportedTransitions lists what the registry offers from the current states of
// ent, before any guard runs.
func (e *Engine) SupportedTransitions(ctx context.Context, ent domain.Entity) []domain.Transition {
	if isNil(ent) {
		return nil
	}
	return e.registry.SupportedTransitions(ent.Type(), e.States(ctx, ent))
}

// AllowedTransitions lists the user-triggered transitions whose guard currently
// passes for ent. Automatic transitions are never offered.
func (e *Engine) AllowedTransitions(ctx context.Context, ent domain.Entity) []domain.Transition {
	var out []domain.Transition
	for _, t := range e.SupportedTransitions(ctx, ent) {
		if !t.IsUserAction() {
			continue
		}
		if e.evaluate(ctx, ent, t, false).Allowed {
			out = append(out, t)
		}
	}
	return out
}

func (e *Engine) transitionIDs(ctx context.Context, ent domain.Entity) []domain.TransitionID {
	allowed := e.AllowedTransitions(ctx, ent)
	out := make([]domain.TransitionID, 0, len(allowed))
	for _, t := range allowed {
		out = append(out, t.ID)
	}
	return out
}
