package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/labflow/pkg/domain"
)

// AuditHooks logs every transition request at Info, failures at Error.
func AuditHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, ev *domain.TransitionEvent) {
			attrs := []any{
				"uid", ev.Entity.UID,
				"type", ev.Entity.Type,
				"transition", ev.Transition,
				"actor", ev.Actor,
				"reason", ev.Reason,
				"duration", ev.Duration,
			}
			switch ev.Type {
			case domain.EventTransitionPerformed:
				logger.InfoContext(ctx, "Transition performed", append(attrs, "from", ev.From, "to", ev.To)...)
			case domain.EventTransitionFailed:
				logger.ErrorContext(ctx, "Transition failed", append(attrs, "err", ev.Err)...)
			default:
				logger.InfoContext(ctx, "Transition rejected", attrs...)
			}
		},
		OnStateForced: func(ctx context.Context, ev *domain.TransitionEvent) {
			logger.WarnContext(ctx, "State forced",
				"uid", ev.Entity.UID, "axis", ev.Axis, "from", ev.From, "to", ev.To, "actor", ev.Actor)
		},
		OnHookFailed: func(ctx context.Context, ev *domain.HookEvent) {
			logger.ErrorContext(ctx, "Hook failed",
				"uid", ev.Entity.UID, "transition", ev.Transition, "kind", ev.Kind, "err", ev.Err)
		},
	}
}

// Combine merges lifecycle hooks. Callbacks run in argument order.
func Combine(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range hooks {
		out.OnTransition = chain(out.OnTransition, h.OnTransition)
		out.OnStateForced = chain(out.OnStateForced, h.OnStateForced)
		out.OnHookFailed = chain(out.OnHookFailed, h.OnHookFailed)
	}
	return out
}

func chain[E any](first, second func(context.Context, E)) func(context.Context, E) {
	switch {
	case first == nil:
		return second
	case second == nil:
		return first
	}
	return func(ctx context.Context, ev E) {
		first(ctx, ev)
		second(ctx, ev)
	}
}
