package runtime

import (
	"context"
	"fmt"
	"reflect"

	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/scope"
)

// Perform requests transition t on ent.
//
// A call without a scope in ctx starts a new logical action. Hooks receive the
// scoped context, so every nested Perform shares one skip-list and can never
// re-run a transition that already happened on the same entity.
//
// Steps, in order: skip-list peek, guard, before hook, commit, skip-list mark,
// after hook, reflex hook, reindex.
func (e *Engine) Perform(ctx context.Context, ent domain.Entity, t domain.TransitionID, opts ...domain.PerformOption) domain.Outcome {
	if isNil(ent) {
		return domain.Rejection(domain.ReasonNoEntity, "no entity")
	}
	o := domain.ApplyPerformOptions(opts...)
	ctx, sc := scope.Ensure(ctx, domain.SystemActor)
	start := e.now()
	logger := e.logger.With("uid", ent.UID(), "type", ent.Type(), "transition", t)

	ev := &domain.TransitionEvent{
		EventBase:  domain.EventBase{Type: domain.EventTransitionRejected, Entity: domain.RefOf(ent)},
		Transition: t,
		Actor:      sc.Actor(),
	}
	finish := func(out domain.Outcome) domain.Outcome {
		ev.Timestamp = e.now()
		ev.Duration = ev.Timestamp.Sub(start)
		ev.Reason = out.Reason
		ev.Err = out.Err
		switch {
		case out.Performed:
			ev.Type = domain.EventTransitionPerformed
		case out.Failed():
			ev.Type = domain.EventTransitionFailed
		}
		if e.lifecycle.OnTransition != nil {
			e.lifecycle.OnTransition(ctx, ev)
		}
		return out
	}

	if sc.Peek(ent.UID(), t) {
		logger.Debug("Transition already performed in this action")
		return finish(domain.Rejection(domain.ReasonSkipped, fmt.Sprintf("%s already performed on %s", t, ent.UID())))
	}

	def, err := e.registry.TransitionDef(ent.Type(), t)
	if err != nil {
		logger.Error("Transition is not declared", "err", err)
		return finish(domain.Failure(domain.ReasonUnknownTransition, err))
	}
	ev.Axis = def.Axis

	// Guards and support are decided on the stored state. A store that cannot
	// answer fails the request rather than letting it run on a guessed state.
	if _, err := e.readState(ctx, ent, def.Axis); err != nil {
		logger.Error("Failed to read state", "err", err)
		return finish(domain.Failure(domain.ReasonReadFailed, err))
	}

	if o.SkipGuard {
		logger.Warn("Guard bypassed", "actor", sc.Actor())
	} else if res := e.evaluate(ctx, ent, def, o.IncludeInactive); !res.Allowed {
		logger.Warn("Transition not allowed",
			"reason", res.Reason,
			"state", e.State(ctx, ent, def.Axis),
			"available", e.transitionIDs(ctx, ent),
		)
		return finish(domain.Rejection(domain.ReasonNotAllowed, res.Reason))
	}

	if err := e.fire(ctx, ent, t, domain.HookBefore); err != nil {
		logger.Error("Before hook failed", "err", err)
		return finish(domain.Failure(domain.ReasonHookFailed, err))
	}

	// A before hook may cascade back into this very transition. The nested call
	// committed it and the action already reached what was asked.
	if sc.Peek(ent.UID(), t) {
		logger.Debug("Transition committed by a nested call")
		return domain.Outcome{Performed: true, Reason: domain.ReasonPerformed, Message: "performed by a nested transition"}
	}

	// The before hook may have moved the entity, so support is checked on the fresh state.
	from, err := e.readState(ctx, ent, def.Axis)
	if err != nil {
		logger.Error("Failed to read state", "err", err)
		return finish(domain.Failure(domain.ReasonReadFailed, err))
	}
	if !def.SupportedFrom(from) {
		logger.Warn("Transition not supported from current state", "state", from)
		return finish(domain.Rejection(domain.ReasonUnsupported, fmt.Sprintf("%s is not supported from state %s", t, from)))
	}
	ev.From = from
	ev.To = def.To

	entry := domain.HistoryEntry{
		Transition: t,
		Axis:       def.Axis,
		From:       from,
		To:         def.To,
		Actor:      sc.Actor(),
		Timestamp:  e.now(),
		Comment:    o.Comment,
	}
	if err := e.store.SetState(ctx, ent.UID(), def.Axis, def.To, entry); err != nil {
		logger.Error("Failed to commit transition", "err", err)
		return finish(domain.Failure(domain.ReasonCommitFailed, fmt.Errorf("commit %s on %s: %w", t, ent.UID(), err)))
	}
	sc.Mark(ent.UID(), t)
	logger.Debug("Transition committed", "from", from, "to", def.To)

	out := domain.Performed()
	if err := e.fire(ctx, ent, t, domain.HookAfter); err != nil {
		logger.Error("After hook failed", "err", err)
		out.Message = err.Error()
	}
	if err := e.fire(ctx, ent, t, domain.HookReflex); err != nil {
		logger.Error("Reflex hook failed", "err", err)
		out.Message = err.Error()
	}

	if err := e.store.Reindex(ctx, ent.UID(), def.Axis); err != nil {
		logger.Warn("Failed to reindex", "err", err)
	}
	return finish(out)
}

// PerformSelection performs t on the single entity of a front-end selection.
// Empty and multi-entity selections are rejected.
func (e *Engine) PerformSelection(ctx context.Context, selection []domain.Entity, t domain.TransitionID, opts ...domain.PerformOption) domain.Outcome {
	switch len(selection) {
	case 0:
		return domain.Rejection(domain.ReasonNoEntity, "empty selection")
	case 1:
		return e.Perform(ctx, selection[0], t, opts...)
	}
	uids := make([]string, 0, len(selection))
	for _, ent := range selection {
		if !isNil(ent) {
			uids = append(uids, ent.UID())
		}
	}
	e.logger.Error("Selection holds more than one entity", "transition", t, "uids", uids)
	return domain.Rejection(domain.ReasonInvalidSelection, fmt.Sprintf("expected one entity, got %d", len(selection)))
}

// PerformSequence walks ids in order on ent. Leading ids already present in the
// history are skipped; from the first missing one on, every id is attempted.
func (e *Engine) PerformSequence(ctx context.Context, ent domain.Entity, ids ...domain.TransitionID) []domain.Outcome {
	if isNil(ent) {
		return []domain.Outcome{domain.Rejection(domain.ReasonNoEntity, "no entity")}
	}
	ctx, _ = scope.Ensure(ctx, domain.SystemActor)

	done := make(map[domain.TransitionID]bool)
	for _, h := range e.History(ctx, ent) {
		done[h.Transition] = true
	}

	var outs []domain.Outcome
	started := false
	for _, id := range ids {
		if !started && done[id] {
			continue
		}
		started = true
		outs = append(outs, e.Perform(ctx, ent, id))
	}
	return outs
}

// ChangeState forces ent to state on axis. No guard runs, no hook fires and the
// skip-list is untouched. The audit entry carries comment, or a default one.
func (e *Engine) ChangeState(ctx context.Context, ent domain.Entity, axis domain.Axis, state domain.StateID, comment string) error {
	if isNil(ent) {
		return fmt.Errorf("change state: %w", domain.ErrEntityNotFound)
	}
	if _, ok := e.registry.InitialState(ent.Type(), axis); !ok {
		return &domain.DefinitionError{EntityType: ent.Type(), Field: string(axis), Reason: "axis not registered"}
	}
	if comment == "" {
		comment = domain.ForcedComment(state)
	}

	from := e.State(ctx, ent, axis)
	entry := domain.HistoryEntry{
		Axis:      axis,
		From:      from,
		To:        state,
		Actor:     actorOf(ctx),
		Timestamp: e.now(),
		Comment:   comment,
	}
	if err := e.store.SetState(ctx, ent.UID(), axis, state, entry); err != nil {
		return fmt.Errorf("change state of %s: %w", ent.UID(), err)
	}
	if err := e.store.Reindex(ctx, ent.UID(), axis); err != nil {
		e.logger.Warn("Failed to reindex", "uid", ent.UID(), "err", err)
	}
	e.logger.Info("State forced", "uid", ent.UID(), "axis", axis, "from", from, "to", state)

	if e.lifecycle.OnStateForced != nil {
		e.lifecycle.OnStateForced(ctx, &domain.TransitionEvent{
			EventBase: domain.EventBase{Timestamp: entry.Timestamp, Type: domain.EventStateForced, Entity: domain.RefOf(ent)},
			Axis:      axis,
			From:      from,
			To:        state,
			Actor:     entry.Actor,
			Reason:    domain.ReasonPerformed,
		})
	}
	return nil
}

func (e *Engine) fire(ctx context.Context, ent domain.Entity, t domain.TransitionID, kind domain.HookKind) error {
	hook, ok := e.hooks.Hook(ent.Type(), t, kind)
	if !ok {
		return nil
	}
	err := hook(ctx, e, ent)
	if err != nil && e.lifecycle.OnHookFailed != nil {
		e.lifecycle.OnHookFailed(ctx, &domain.HookEvent{
			EventBase:  domain.EventBase{Timestamp: e.now(), Type: domain.EventHookFailed, Entity: domain.RefOf(ent)},
			Transition: t,
			Kind:       kind,
			Err:        err,
		})
	}
	return err
}

func actorOf(ctx context.Context) string {
	return scope.Actor(ctx)
}

func isNil(ent domain.Entity) bool {
	if ent == nil {
		return true
	}
	v := reflect.ValueOf(ent)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
