package ports

import (
	"context"

	"github.com/aretw0/labflow/pkg/domain"
)

// Workflow is the engine as seen by domain hooks and guards.
// Hooks re-enter it to cascade and escalate. Nested calls share the request scope
// carried by ctx.
type Workflow interface {
	// Perform requests transition t on e.
	Perform(ctx context.Context, e domain.Entity, t domain.TransitionID, opts ...domain.PerformOption) domain.Outcome

	// IsAllowed runs the generic eligibility check configured by opts.
	IsAllowed(ctx context.Context, e domain.Entity, t domain.TransitionID, opts domain.GuardOptions) bool

	// Evaluate runs the full guard of t on e, domain predicate included.
	Evaluate(ctx context.Context, e domain.Entity, t domain.TransitionID, opts ...domain.PerformOption) domain.GuardResult

	// State returns the current state of e on axis, falling back to the declared
	// initial state. An unreadable state is the empty state.
	State(ctx context.Context, e domain.Entity, axis domain.Axis) domain.StateID

	// IsActive reports whether e is neither cancelled nor inactive.
	IsActive(ctx context.Context, e domain.Entity) bool

	// WasPerformed reports whether t appears anywhere in the history of e.
	WasPerformed(ctx context.Context, e domain.Entity, t domain.TransitionID) bool

	// History returns the audit trail of e, newest first.
	History(ctx context.Context, e domain.Entity) []domain.HistoryEntry

	// ChangeState forces e to state on axis without a transition.
	ChangeState(ctx context.Context, e domain.Entity, axis domain.Axis, state domain.StateID, comment string) error

	// IsEndState reports whether the current state of e on axis has no exit transitions.
	IsEndState(ctx context.Context, e domain.Entity, axis domain.Axis) bool

	// HasPermission checks permission for the actor of the current scope.
	HasPermission(ctx context.Context, permission domain.Permission, e domain.Entity) bool
}

// HookFunc is a before, after or reflex hook. An error marks a configuration or
// domain failure: it is logged and reported, never panicked.
type HookFunc func(ctx context.Context, wf Workflow, e domain.Entity) error

// GuardFunc is a domain predicate layered on the generic guard for one
// (entity type, transition) pair.
type GuardFunc func(ctx context.Context, wf Workflow, e domain.Entity) domain.GuardResult
