package domain

// Reason classifies why a transition request did or did not perform.
type Reason string

const (
	ReasonPerformed         Reason = "performed"
	ReasonSkipped           Reason = "skipped"
	ReasonNotAllowed        Reason = "not_allowed"
	ReasonUnsupported       Reason = "unsupported"
	ReasonNoEntity          Reason = "no_entity"
	ReasonUnknownTransition Reason = "unknown_transition"
	ReasonHookFailed        Reason = "hook_failed"
	ReasonCommitFailed      Reason = "commit_failed"
	ReasonReadFailed        Reason = "read_failed"
	ReasonInvalidSelection  Reason = "invalid_selection"
)

// Outcome is the result of a transition request.
//
// A rejected request (Performed false, Err nil) is policy: the transition is not
// currently permitted. A failed request carries Err and is a system error.
type Outcome struct {
	Performed bool
	Message   string
	Reason    Reason
	Err       error
}

// Rejected reports a policy rejection.
func (o Outcome) Rejected() bool {
	return !o.Performed && o.Err == nil
}

// Failed reports a system error, such as a store commit failure or an unknown transition.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Performed is the outcome of a committed transition.
func Performed() Outcome {
	return Outcome{Performed: true, Reason: ReasonPerformed}
}

// Rejection builds a policy rejection outcome.
func Rejection(reason Reason, msg string) Outcome {
	return Outcome{Reason: reason, Message: msg}
}

// Failure builds a system error outcome.
func Failure(reason Reason, err error) Outcome {
	return Outcome{Reason: reason, Message: err.Error(), Err: err}
}
