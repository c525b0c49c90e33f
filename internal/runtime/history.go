package runtime

import (
	"context"
	"time"

	"github.com/aretw0/labflow/pkg/domain"
)

// History returns the audit trail of ent, newest first.
// A store error is logged and yields an empty trail.
func (e *Engine) History(ctx context.Context, ent domain.Entity) []domain.HistoryEntry {
	if isNil(ent) {
		return []domain.HistoryEntry{}
	}
	history, err := e.store.History(ctx, ent.UID())
	if err != nil {
		e.logger.Warn("Failed to read history", "uid", ent.UID(), "err", err)
		return []domain.HistoryEntry{}
	}
	if history == nil {
		return []domain.HistoryEntry{}
	}
	return history
}

// WasPerformed reports whether t appears anywhere in the history of ent,
// regardless of the current state.
func (e *Engine) WasPerformed(ctx context.Context, ent domain.Entity, t domain.TransitionID) bool {
	_, ok := e.lastEntry(ctx, ent, t)
	return ok
}

// TransitionActor returns the actor of the most recent t on ent.
func (e *Engine) TransitionActor(ctx context.Context, ent domain.Entity, t domain.TransitionID) (string, bool) {
	h, ok := e.lastEntry(ctx, ent, t)
	return h.Actor, ok
}

// TransitionActors returns the actors of every t on ent, newest first.
func (e *Engine) TransitionActors(ctx context.Context, ent domain.Entity, t domain.TransitionID) []string {
	var out []string
	for _, h := range e.History(ctx, ent) {
		if h.Transition == t {
			out = append(out, h.Actor)
		}
	}
	return out
}

// TransitionDate returns when t was last performed on ent.
func (e *Engine) TransitionDate(ctx context.Context, ent domain.Entity, t domain.TransitionID) (time.Time, bool) {
	h, ok := e.lastEntry(ctx, ent, t)
	return h.Timestamp, ok
}

// TransitionCount returns how many times t was performed on ent.
func (e *Engine) TransitionCount(ctx context.Context, ent domain.Entity, t domain.TransitionID) int {
	return len(e.TransitionActors(ctx, ent, t))
}

func (e *Engine) lastEntry(ctx context.Context, ent domain.Entity, t domain.TransitionID) (domain.HistoryEntry, bool) {
	for _, h := range e.History(ctx, ent) {
		if h.Transition == t {
			return h, true
		}
	}
	return domain.HistoryEntry{}, false
}
