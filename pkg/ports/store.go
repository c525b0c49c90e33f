package ports

import (
	"context"

	"github.com/aretw0/labflow/pkg/domain"
)

// StateStore persists the current state of entities per axis, with its audit trail.
//
// Transactional isolation between concurrent actions is the store's concern. The
// engine performs no locking of its own.
type StateStore interface {
	// GetState returns the current state of uid on axis.
	// Returns domain.ErrStateNotFound if no state was ever recorded.
	GetState(ctx context.Context, uid string, axis domain.Axis) (domain.StateID, error)

	// SetState records state on axis and appends entry to the history, atomically.
	SetState(ctx context.Context, uid string, axis domain.Axis, state domain.StateID, entry domain.HistoryEntry) error

	// History returns the audit trail of uid, newest first.
	// An entity without history yields an empty slice and no error.
	History(ctx context.Context, uid string) ([]domain.HistoryEntry, error)

	// Reindex refreshes derived projections of uid for the affected axes.
	Reindex(ctx context.Context, uid string, axes ...domain.Axis) error

	// Delete removes every state and history entry of uid.
	Delete(ctx context.Context, uid string) error

	// List returns the UIDs with recorded state.
	List(ctx context.Context) ([]string, error)
}
