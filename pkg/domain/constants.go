package domain

// HookKind distinguishes the extension points of a transition.
type HookKind string

const (
	// HookGuard is a domain predicate layered on top of the generic guard.
	HookGuard HookKind = "guard"
	// HookBefore fires after the guard passed and before the commit.
	HookBefore HookKind = "before"
	// HookAfter fires after the commit. Cascades and escalations live here.
	HookAfter HookKind = "after"
	// HookReflex fires after HookAfter and may synthesize new entities.
	HookReflex HookKind = "reflex"
)

// HookKey addresses one entry of the hook table.
type HookKey struct {
	EntityType EntityType
	Transition TransitionID
	Kind       HookKind
}

// Actors and comments used by the engine itself.
const (
	// SystemActor is recorded when no actor is attached to the scope.
	SystemActor = "system"

	forcedCommentPrefix = "Setting state to "
)

// ForcedComment is the audit comment of a forced state change.
func ForcedComment(state StateID) string {
	return forcedCommentPrefix + string(state)
}
