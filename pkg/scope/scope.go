// Package scope holds the per-action state of the engine: the actor and the
// skip-list that breaks cascade loops.
//
// A Scope lives exactly as long as one logical user action. It travels in the
// context.Context of every nested Perform call and is never shared between actions.
package scope

import (
	"context"

	"github.com/aretw0/labflow/pkg/domain"
	mapset "github.com/deckarep/golang-set/v2"
)

// Key records that a transition was performed on an entity within the scope.
type Key struct {
	UID        string
	Transition domain.TransitionID
}

// Scope is the transient state of one logical action.
type Scope struct {
	actor string
	skip  mapset.Set[Key]
}

// New creates an empty scope for actor. An empty actor is recorded as domain.SystemActor.
func New(actor string) *Scope {
	if actor == "" {
		actor = domain.SystemActor
	}
	return &Scope{
		actor: actor,
		skip:  mapset.NewSet[Key](),
	}
}

// Actor returns the user on whose behalf the action runs.
func (s *Scope) Actor() string {
	return s.actor
}

// Peek reports whether (uid, t) was already performed in this scope.
func (s *Scope) Peek(uid string, t domain.TransitionID) bool {
	return s.skip.Contains(Key{UID: uid, Transition: t})
}

// Mark records (uid, t). Later attempts in the same scope are suppressed.
func (s *Scope) Mark(uid string, t domain.TransitionID) {
	s.skip.Add(Key{UID: uid, Transition: t})
}

// Unmark removes (uid, t), re-enabling the transition for manual overrides.
func (s *Scope) Unmark(uid string, t domain.TransitionID) {
	s.skip.Remove(Key{UID: uid, Transition: t})
}

// Keys returns the recorded keys in no particular order.
func (s *Scope) Keys() []Key {
	return s.skip.ToSlice()
}

// Len returns the number of recorded keys.
func (s *Scope) Len() int {
	return s.skip.Cardinality()
}

type ctxKey struct{}

// WithScope attaches s to ctx.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the scope attached to ctx, if any.
func FromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Scope)
	return s, ok && s != nil
}

// Ensure returns ctx unchanged when it already carries a scope. Otherwise it
// attaches a fresh scope for actor, making the caller the root of a new action.
func Ensure(ctx context.Context, actor string) (context.Context, *Scope) {
	if s, ok := FromContext(ctx); ok {
		return ctx, s
	}
	s := New(actor)
	return WithScope(ctx, s), s
}

// Actor returns the actor of the scope in ctx, or domain.SystemActor.
func Actor(ctx context.Context) string {
	if s, ok := FromContext(ctx); ok {
		return s.actor
	}
	return domain.SystemActor
}
