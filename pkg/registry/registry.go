package registry

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/aretw0/labflow/pkg/domain"
	mapset "github.com/deckarep/golang-set/v2"
)

// Workflow declares the states and transitions of one entity type on one axis.
type Workflow struct {
	EntityType  domain.EntityType   `json:"type" yaml:"type"`
	Axis        domain.Axis         `json:"axis" yaml:"axis"`
	Initial     domain.StateID      `json:"initial" yaml:"initial"`
	Transitions []domain.Transition `json:"transitions" yaml:"transitions"`
}

// States returns every state mentioned by the workflow, initial state first.
func (w Workflow) States() []domain.StateID {
	seen := mapset.NewThreadUnsafeSet[domain.StateID]()
	out := make([]domain.StateID, 0, len(w.Transitions)+1)
	add := func(s domain.StateID) {
		if s != "" && seen.Add(s) {
			out = append(out, s)
		}
	}
	add(w.Initial)
	for _, t := range w.Transitions {
		for _, from := range t.From {
			add(from)
		}
		add(t.To)
	}
	return out
}

// Registry holds the workflow definitions of every entity type.
// It is static configuration: populated at startup, then only read.
type Registry struct {
	mu          sync.RWMutex
	workflows   map[domain.EntityType][]*Workflow
	transitions map[domain.EntityType]map[domain.TransitionID]domain.Transition
}

// New creates a new empty registry.
func New() *Registry {
	return &Registry{
		workflows:   make(map[domain.EntityType][]*Workflow),
		transitions: make(map[domain.EntityType]map[domain.TransitionID]domain.Transition),
	}
}

// Register validates wf and adds it to the registry.
// A type may declare several axes, but each transition id once per type, and each axis once.
func (r *Registry) Register(wf Workflow) error {
	if err := Validate(wf); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.workflows[wf.EntityType] {
		if existing.Axis == wf.Axis {
			return &domain.DefinitionError{EntityType: wf.EntityType, Field: string(wf.Axis), Reason: "axis already registered"}
		}
	}
	byID := r.transitions[wf.EntityType]
	if byID == nil {
		byID = make(map[domain.TransitionID]domain.Transition)
	}
	for _, t := range wf.Transitions {
		if _, dup := byID[t.ID]; dup {
			return &domain.DefinitionError{EntityType: wf.EntityType, Field: string(t.ID), Reason: "transition declared on two axes"}
		}
	}

	stored := wf
	stored.Transitions = make([]domain.Transition, len(wf.Transitions))
	for i, t := range wf.Transitions {
		if t.Axis == "" {
			t.Axis = wf.Axis
		}
		if t.Trigger == "" {
			t.Trigger = domain.TriggerUser
		}
		t.From = slices.Clone(t.From)
		stored.Transitions[i] = t
		byID[t.ID] = t
	}
	r.transitions[wf.EntityType] = byID
	r.workflows[wf.EntityType] = append(r.workflows[wf.EntityType], &stored)
	return nil
}

// MustRegister registers every workflow and panics on the first invalid one.
func (r *Registry) MustRegister(wfs ...Workflow) {
	for _, wf := range wfs {
		if err := r.Register(wf); err != nil {
			panic(fmt.Sprintf("registry: %v", err))
		}
	}
}

// TransitionDef returns the declaration of id for the entity type.
// Returns an *domain.UnknownTransitionError if it is not declared.
func (r *Registry) TransitionDef(et domain.EntityType, id domain.TransitionID) (domain.Transition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.transitions[et][id]
	if !ok {
		return domain.Transition{}, &domain.UnknownTransitionError{EntityType: et, Transition: id}
	}
	return t, nil
}

// SupportedTransitions lists the transitions whose source states include the
// current state on their axis, in declaration order.
func (r *Registry) SupportedTransitions(et domain.EntityType, states domain.States) []domain.Transition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Transition
	for _, wf := range r.workflows[et] {
		current, ok := states[wf.Axis]
		if !ok {
			current = wf.Initial
		}
		for _, t := range wf.Transitions {
			if t.SupportedFrom(current) {
				out = append(out, t)
			}
		}
	}
	return out
}

// IsEndState reports whether state has no exit transitions on axis.
// Unknown types or axes are never end states.
func (r *Registry) IsEndState(et domain.EntityType, axis domain.Axis, state domain.StateID) bool {
	wf := r.workflow(et, axis)
	if wf == nil {
		return false
	}
	for _, t := range wf.Transitions {
		if t.SupportedFrom(state) {
			return false
		}
	}
	return true
}

// InitialState returns the state an entity holds on axis before any transition.
func (r *Registry) InitialState(et domain.EntityType, axis domain.Axis) (domain.StateID, bool) {
	wf := r.workflow(et, axis)
	if wf == nil {
		return "", false
	}
	return wf.Initial, true
}

// IncomingTransitions returns the ids of the transitions leading to state, on any axis.
func (r *Registry) IncomingTransitions(et domain.EntityType, state domain.StateID) []domain.TransitionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.TransitionID
	for _, wf := range r.workflows[et] {
		for _, t := range wf.Transitions {
			if t.To == state {
				out = append(out, t.ID)
			}
		}
	}
	return out
}

// Axes returns the axes declared for the entity type, in registration order.
func (r *Registry) Axes(et domain.EntityType) []domain.Axis {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Axis, 0, len(r.workflows[et]))
	for _, wf := range r.workflows[et] {
		out = append(out, wf.Axis)
	}
	return out
}

// Workflows returns copies of the definitions of the entity type.
func (r *Registry) Workflows(et domain.EntityType) []Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Workflow, 0, len(r.workflows[et]))
	for _, wf := range r.workflows[et] {
		cp := *wf
		cp.Transitions = slices.Clone(wf.Transitions)
		out = append(out, cp)
	}
	return out
}

// Types returns the registered entity types, sorted.
func (r *Registry) Types() []domain.EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.EntityType, 0, len(r.workflows))
	for et := range r.workflows {
		out = append(out, et)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) workflow(et domain.EntityType, axis domain.Axis) *Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, wf := range r.workflows[et] {
		if wf.Axis == axis {
			return wf
		}
	}
	return nil
}
