package domain

// GuardResult is a guard decision plus an optional diagnostic naming the failed condition.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Allow is a passing GuardResult.
func Allow() GuardResult { return GuardResult{Allowed: true} }

// Deny is a failing GuardResult with a diagnostic.
func Deny(reason string) GuardResult { return GuardResult{Reason: reason} }

// GuardOptions configures the generic eligibility check.
//
// The zero value is the conservative default: inactive entities are rejected, the
// transition must be supported by the registry for the current state, and
// dependencies (if any) are combined existentially.
type GuardOptions struct {
	// IncludeInactive lets cancelled or inactive entities pass the activity check.
	IncludeInactive bool
	// RequirePermission is checked against the current actor when non-empty.
	RequirePermission Permission
	// Dependencies whose state or history gates the decision.
	Dependencies []Entity
	// TargetStatuses: a dependency already in one of these states (on the
	// transition's axis) is satisfied.
	TargetStatuses []StateID
	// CheckAll requires every dependency to be satisfied instead of any one.
	CheckAll bool
	// CheckHistory counts a dependency that ever performed the transition as satisfied.
	CheckHistory bool
	// SkipActionCheck skips the registry support check. Guards evaluating their own
	// transition must set it, or the guard would re-enter itself.
	SkipActionCheck bool
}
