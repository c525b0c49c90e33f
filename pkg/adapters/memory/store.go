package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/labflow/pkg/domain"
)

type record struct {
	states  domain.States
	history []domain.HistoryEntry // oldest first
}

// Store implements ports.StateStore in memory.
// Safe for concurrent use.
type Store struct {
	data    map[string]*record
	reindex map[string]int
	mu      sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data:    make(map[string]*record),
		reindex: make(map[string]int),
	}
}

// GetState returns the state of uid on axis.
func (s *Store) GetState(ctx context.Context, uid string, axis domain.Axis) (domain.StateID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[uid]
	if !ok {
		return "", domain.ErrStateNotFound
	}
	state, ok := rec.states[axis]
	if !ok {
		return "", domain.ErrStateNotFound
	}
	return state, nil
}

// SetState records state and appends entry in one critical section.
func (s *Store) SetState(ctx context.Context, uid string, axis domain.Axis, state domain.StateID, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[uid]
	if !ok {
		rec = &record{states: make(domain.States)}
		s.data[uid] = rec
	}
	rec.states[axis] = state
	rec.history = append(rec.history, entry)
	return nil
}

// History returns a copy of the trail, newest first.
func (s *Store) History(ctx context.Context, uid string) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[uid]
	if !ok {
		return []domain.HistoryEntry{}, nil
	}
	out := slices.Clone(rec.history)
	slices.Reverse(out)
	return out, nil
}

// Reindex has no projections to refresh in memory. It only counts calls.
func (s *Store) Reindex(ctx context.Context, uid string, axes ...domain.Axis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reindex[uid]++
	return nil
}

// Reindexed returns how many times uid was reindexed.
func (s *Store) Reindexed(uid string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reindex[uid]
}

// Snapshot returns a copy of every axis state of uid.
func (s *Store) Snapshot(uid string) domain.States {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[uid]
	if !ok {
		return domain.States{}
	}
	return rec.states.Clone()
}

// Delete removes the states and history of uid.
func (s *Store) Delete(ctx context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, uid)
	delete(s.reindex, uid)
	return nil
}

// List returns the UIDs with recorded state.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uids := make([]string, 0, len(s.data))
	for uid := range s.data {
		uids = append(uids, uid)
	}
	slices.Sort(uids)
	return uids, nil
}
