package labflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/labflow/internal/logging"
	"github.com/aretw0/labflow/internal/runtime"
	"github.com/aretw0/labflow/pkg/adapters/memory"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/lims"
	"github.com/aretw0/labflow/pkg/persistence/middleware"
	"github.com/aretw0/labflow/pkg/ports"
	"github.com/aretw0/labflow/pkg/registry"
	"github.com/aretw0/labflow/pkg/scope"
)

// Version is the library version, overridden at link time by release builds.
var Version = "0.1.0-dev"

// Engine is the high-level entry point of the library.
// It wraps the internal runtime and provides a simplified API for consumers.
type Engine struct {
	runtime     *runtime.Engine
	registry    *registry.Registry
	store       ports.StateStore
	middleware  []middleware.Middleware
	hooks       *registry.Hooks
	permissions ports.PermissionChecker
	lifecycle   domain.LifecycleHooks
	logger      *slog.Logger
	Name        string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore sets the state store. Defaults to an in-memory store.
func WithStore(s ports.StateStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithStoreMiddleware wraps the store, first middleware outermost.
func WithStoreMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Engine) {
		e.middleware = append(e.middleware, mws...)
	}
}

// WithHooks installs the guard and hook table.
func WithHooks(h *registry.Hooks) Option {
	return func(e *Engine) {
		e.hooks = h
	}
}

// WithPermissionChecker sets the permission backend.
func WithPermissionChecker(p ports.PermissionChecker) Option {
	return func(e *Engine) {
		e.permissions = p
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.lifecycle = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithName labels the engine in logs.
func WithName(name string) Option {
	return func(e *Engine) {
		e.Name = name
	}
}

// New initializes an Engine over the workflow definitions in reg.
func New(reg *registry.Registry, opts ...Option) (*Engine, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	eng := &Engine{registry: reg}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if len(eng.middleware) > 0 {
		eng.store = middleware.Chain(eng.store, eng.middleware...)
	}

	// Never pass a nil logger down: the runtime keeps its own default then.
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("engine", eng.Name)
	}

	eng.runtime = runtime.NewEngine(eng.registry, eng.store,
		runtime.WithHooks(eng.hooks),
		runtime.WithPermissionChecker(eng.permissions),
		runtime.WithLifecycleHooks(eng.lifecycle),
		runtime.WithLogger(eng.logger),
	)
	return eng, nil
}

// Perform runs transition t on ent. See domain.Outcome for the result semantics.
func (e *Engine) Perform(ctx context.Context, ent domain.Entity, t domain.TransitionID, opts ...domain.PerformOption) domain.Outcome {
	return e.runtime.Perform(ctx, ent, t, opts...)
}

// PerformSequence performs ids in order, skipping the leading ones already in history.
func (e *Engine) PerformSequence(ctx context.Context, ent domain.Entity, ids ...domain.TransitionID) []domain.Outcome {
	return e.runtime.PerformSequence(ctx, ent, ids...)
}

// PerformSelection performs t on the single entity of a front-end selection.
func (e *Engine) PerformSelection(ctx context.Context, selection []domain.Entity, t domain.TransitionID, opts ...domain.PerformOption) domain.Outcome {
	return e.runtime.PerformSelection(ctx, selection, t, opts...)
}

// ChangeState forces state on axis without guards or hooks.
func (e *Engine) ChangeState(ctx context.Context, ent domain.Entity, axis domain.Axis, state domain.StateID, comment string) error {
	return e.runtime.ChangeState(ctx, ent, axis, state, comment)
}

// IsAllowed runs the generic eligibility check.
func (e *Engine) IsAllowed(ctx context.Context, ent domain.Entity, t domain.TransitionID, opts domain.GuardOptions) bool {
	return e.runtime.IsAllowed(ctx, ent, t, opts)
}

// Evaluate runs the full guard of t without performing it.
func (e *Engine) Evaluate(ctx context.Context, ent domain.Entity, t domain.TransitionID, opts ...domain.PerformOption) domain.GuardResult {
	return e.runtime.Evaluate(ctx, ent, t, opts...)
}

// AllowedTransitions lists the user transitions whose guard passes now.
func (e *Engine) AllowedTransitions(ctx context.Context, ent domain.Entity) []domain.Transition {
	return e.runtime.AllowedTransitions(ctx, ent)
}

// State returns the state of ent on axis.
func (e *Engine) State(ctx context.Context, ent domain.Entity, axis domain.Axis) domain.StateID {
	return e.runtime.State(ctx, ent, axis)
}

// States returns the state of ent on every declared axis.
func (e *Engine) States(ctx context.Context, ent domain.Entity) domain.States {
	return e.runtime.States(ctx, ent)
}

// IsActive reports whether ent is neither cancelled nor inactive.
func (e *Engine) IsActive(ctx context.Context, ent domain.Entity) bool {
	return e.runtime.IsActive(ctx, ent)
}

// History returns the audit trail of ent, newest first.
func (e *Engine) History(ctx context.Context, ent domain.Entity) []domain.HistoryEntry {
	return e.runtime.History(ctx, ent)
}

// WasPerformed reports whether t is in the history of ent.
func (e *Engine) WasPerformed(ctx context.Context, ent domain.Entity, t domain.TransitionID) bool {
	return e.runtime.WasPerformed(ctx, ent, t)
}

// Workflow returns the engine as hooks and adapters see it.
func (e *Engine) Workflow() ports.Workflow {
	return e.runtime
}

// Registry returns the workflow definitions.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Store returns the state store, middleware included.
func (e *Engine) Store() ports.StateStore {
	return e.store
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// OpenLab builds the laboratory described by fx and an Engine running its
// workflows. Worksheet assignments of the fixture are applied before returning.
func OpenLab(ctx context.Context, fx *lims.Fixture, opts ...Option) (*Engine, *lims.Lab, error) {
	probe := &Engine{}
	for _, opt := range opts {
		opt(probe)
	}
	var labOpts []lims.Option
	if probe.logger != nil {
		labOpts = append(labOpts, lims.WithLogger(probe.logger))
	}

	lab, err := fx.Build(labOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build lab: %w", err)
	}
	reg, err := lims.NewRegistry()
	if err != nil {
		return nil, nil, err
	}
	hooks, err := lab.Hooks(reg)
	if err != nil {
		return nil, nil, err
	}

	eng, err := New(reg, append(opts, WithHooks(hooks))...)
	if err != nil {
		return nil, nil, err
	}
	if err := fx.Apply(ctx, eng.Workflow(), lab); err != nil {
		return nil, nil, fmt.Errorf("failed to apply fixture: %w", err)
	}
	return eng, lab, nil
}

// WithActor returns a context carrying a fresh action scope for actor.
func WithActor(ctx context.Context, actor string) context.Context {
	return scope.WithScope(ctx, scope.New(actor))
}

// Actor returns the actor of the scope carried by ctx.
func Actor(ctx context.Context) string {
	return scope.Actor(ctx)
}
