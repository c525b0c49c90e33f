package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
)

// Hooks is the registration table of domain extension points, keyed by
// (entity type, transition, kind). It is populated at startup by domain modules.
type Hooks struct {
	mu     sync.RWMutex
	hooks  map[domain.HookKey]ports.HookFunc
	guards map[domain.HookKey]ports.GuardFunc
}

// NewHooks creates an empty hook table.
func NewHooks() *Hooks {
	return &Hooks{
		hooks:  make(map[domain.HookKey]ports.HookFunc),
		guards: make(map[domain.HookKey]ports.GuardFunc),
	}
}

// Register adds fn under key. Guard keys must go through RegisterGuard.
// Returns domain.ErrHookConflict if the key is taken.
func (h *Hooks) Register(key domain.HookKey, fn ports.HookFunc) error {
	if key.Kind == domain.HookGuard {
		return fmt.Errorf("%s/%s: guards must be registered with RegisterGuard", key.EntityType, key.Transition)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.hooks[key]; exists {
		return fmt.Errorf("%s %s/%s: %w", key.Kind, key.EntityType, key.Transition, domain.ErrHookConflict)
	}
	h.hooks[key] = fn
	return nil
}

// RegisterGuard adds a domain predicate for (et, t).
func (h *Hooks) RegisterGuard(et domain.EntityType, t domain.TransitionID, fn ports.GuardFunc) error {
	key := domain.HookKey{EntityType: et, Transition: t, Kind: domain.HookGuard}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.guards[key]; exists {
		return fmt.Errorf("guard %s/%s: %w", et, t, domain.ErrHookConflict)
	}
	h.guards[key] = fn
	return nil
}

// RegisterBefore adds a hook fired before the commit of (et, t).
func (h *Hooks) RegisterBefore(et domain.EntityType, t domain.TransitionID, fn ports.HookFunc) error {
	return h.Register(domain.HookKey{EntityType: et, Transition: t, Kind: domain.HookBefore}, fn)
}

// RegisterAfter adds a hook fired after the commit of (et, t).
func (h *Hooks) RegisterAfter(et domain.EntityType, t domain.TransitionID, fn ports.HookFunc) error {
	return h.Register(domain.HookKey{EntityType: et, Transition: t, Kind: domain.HookAfter}, fn)
}

// RegisterReflex adds a hook fired once the after hook of (et, t) returned.
func (h *Hooks) RegisterReflex(et domain.EntityType, t domain.TransitionID, fn ports.HookFunc) error {
	return h.Register(domain.HookKey{EntityType: et, Transition: t, Kind: domain.HookReflex}, fn)
}

// Hook looks up a before, after or reflex hook.
func (h *Hooks) Hook(et domain.EntityType, t domain.TransitionID, kind domain.HookKind) (ports.HookFunc, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	fn, ok := h.hooks[domain.HookKey{EntityType: et, Transition: t, Kind: kind}]
	return fn, ok
}

// Guard looks up the domain predicate of (et, t).
func (h *Hooks) Guard(et domain.EntityType, t domain.TransitionID) (ports.GuardFunc, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	fn, ok := h.guards[domain.HookKey{EntityType: et, Transition: t, Kind: domain.HookGuard}]
	return fn, ok
}

// Keys lists every registered key, sorted by type, transition and kind.
func (h *Hooks) Keys() []domain.HookKey {
	h.mu.RLock()
	defer h.mu.RUnlock()

	keys := make([]domain.HookKey, 0, len(h.hooks)+len(h.guards))
	for k := range h.hooks {
		keys = append(keys, k)
	}
	for k := range h.guards {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.EntityType != b.EntityType {
			return a.EntityType < b.EntityType
		}
		if a.Transition != b.Transition {
			return a.Transition < b.Transition
		}
		return a.Kind < b.Kind
	})
	return keys
}
