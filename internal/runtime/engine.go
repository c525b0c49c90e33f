package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/labflow/internal/logging"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
	"github.com/aretw0/labflow/pkg/registry"
)

// Engine is the transition engine. It evaluates guards against the registry,
// commits transitions to the store and fires the hook table.
//
// The Engine holds no per-request state. Everything transient lives in the
// scope carried by the context, so one Engine serves concurrent actions.
type Engine struct {
	registry    *registry.Registry
	store       ports.StateStore
	hooks       *registry.Hooks
	permissions ports.PermissionChecker
	lifecycle   domain.LifecycleHooks
	logger      *slog.Logger
	now         func() time.Time
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithHooks installs the guard and hook table.
func WithHooks(h *registry.Hooks) EngineOption {
	return func(e *Engine) {
		if h != nil {
			e.hooks = h
		}
	}
}

// WithPermissionChecker sets the permission backend. Defaults to ports.AllowAll.
func WithPermissionChecker(p ports.PermissionChecker) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.permissions = p
		}
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(h domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.lifecycle = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source used for audit entries.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine over reg and store.
func NewEngine(reg *registry.Registry, store ports.StateStore, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:    reg,
		store:       store,
		hooks:       registry.NewHooks(),
		permissions: ports.AllowAll,
		logger:      logging.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the workflow definitions the engine runs on.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Store returns the state store.
func (e *Engine) Store() ports.StateStore {
	return e.store
}

var _ ports.Workflow = (*Engine)(nil)
