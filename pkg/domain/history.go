package domain

import "time"

// HistoryEntry is one audit record of a state change.
// Forced state changes carry an empty Transition.
type HistoryEntry struct {
	Transition TransitionID `json:"transition,omitempty"`
	Axis       Axis         `json:"axis"`
	From       StateID      `json:"from,omitempty"`
	To         StateID      `json:"to"`
	Actor      string       `json:"actor,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
	Comment    string       `json:"comment,omitempty"`
}
