package domain

// PerformOptions tunes a single transition request.
type PerformOptions struct {
	// IncludeInactive lets a cancelled or inactive entity transition (reinstate, activate).
	IncludeInactive bool
	// SkipGuard bypasses the guard evaluation. Structural support is still enforced.
	SkipGuard bool
	// Comment is recorded in the audit entry.
	Comment string
}

// PerformOption configures PerformOptions.
type PerformOption func(*PerformOptions)

// IncludeInactive allows the transition on inactive entities.
func IncludeInactive() PerformOption {
	return func(o *PerformOptions) {
		o.IncludeInactive = true
	}
}

// SkipGuard bypasses guard evaluation. Intended for migrations and repairs only.
func SkipGuard() PerformOption {
	return func(o *PerformOptions) {
		o.SkipGuard = true
	}
}

// WithComment records a comment with the audit entry.
func WithComment(comment string) PerformOption {
	return func(o *PerformOptions) {
		o.Comment = comment
	}
}

// ApplyPerformOptions folds opts into a PerformOptions value.
func ApplyPerformOptions(opts ...PerformOption) PerformOptions {
	var o PerformOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
