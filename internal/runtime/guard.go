package runtime

import (
	"context"
	"fmt"
	"slices"

	"github.com/aretw0/labflow/pkg/domain"
)

// IsAllowed runs the generic eligibility check of t on ent.
//
// Dependencies are satisfied by TargetStatuses or CheckHistory when either is set.
// Only when neither is set does a dependency recurse into IsAllowed for the same
// transition, with the action check skipped.
func (e *Engine) IsAllowed(ctx context.Context, ent domain.Entity, t domain.TransitionID, opts domain.GuardOptions) bool {
	return e.check(ctx, ent, t, opts).Allowed
}

// Evaluate runs the full guard Perform would run: the generic check with the
// declared permission, then the registered domain guard.
func (e *Engine) Evaluate(ctx context.Context, ent domain.Entity, t domain.TransitionID, opts ...domain.PerformOption) domain.GuardResult {
	if isNil(ent) {
		return domain.Deny("no entity")
	}
	def, err := e.registry.TransitionDef(ent.Type(), t)
	if err != nil {
		return domain.Deny(err.Error())
	}
	return e.evaluate(ctx, ent, def, domain.ApplyPerformOptions(opts...).IncludeInactive)
}

func (e *Engine) evaluate(ctx context.Context, ent domain.Entity, def domain.Transition, includeInactive bool) domain.GuardResult {
	res := e.check(ctx, ent, def.ID, domain.GuardOptions{
		IncludeInactive:   includeInactive,
		RequirePermission: def.Permission,
	})
	if !res.Allowed {
		return res
	}
	if guard, ok := e.hooks.Guard(ent.Type(), def.ID); ok {
		return guard(ctx, e, ent)
	}
	return res
}

func (e *Engine) check(ctx context.Context, ent domain.Entity, t domain.TransitionID, opts domain.GuardOptions) domain.GuardResult {
	if isNil(ent) {
		return domain.Deny("no entity")
	}

	axis := domain.AxisReview
	def, err := e.registry.TransitionDef(ent.Type(), t)
	switch {
	case err == nil:
		axis = def.Axis
	case !opts.SkipActionCheck:
		e.logger.Error("Guard on undeclared transition", "uid", ent.UID(), "type", ent.Type(), "err", err)
		return domain.Deny(err.Error())
	}

	if !opts.IncludeInactive && !e.IsActive(ctx, ent) {
		return domain.Deny(fmt.Sprintf("%s is not active", ent.UID()))
	}

	if opts.RequirePermission != "" && !e.HasPermission(ctx, opts.RequirePermission, ent) {
		return domain.Deny(fmt.Sprintf("permission %q required", opts.RequirePermission))
	}

	if !opts.SkipActionCheck {
		state, err := e.readState(ctx, ent, axis)
		if err != nil {
			e.logger.Error("Failed to read state", "uid", ent.UID(), "axis", axis, "err", err)
			return domain.Deny(fmt.Sprintf("state of %s is unavailable", ent.UID()))
		}
		if !def.SupportedFrom(state) {
			return domain.Deny(fmt.Sprintf("%s is not supported from state %s", t, state))
		}
	}

	if len(opts.Dependencies) == 0 {
		return domain.Allow()
	}

	for _, dep := range opts.Dependencies {
		ok := e.dependencySatisfied(ctx, dep, t, axis, opts)
		if ok && !opts.CheckAll {
			return domain.Allow()
		}
		if !ok && opts.CheckAll {
			return domain.Deny(fmt.Sprintf("dependency %s is not ready for %s", dep.UID(), t))
		}
	}
	if opts.CheckAll {
		return domain.Allow()
	}
	return domain.Deny(fmt.Sprintf("no dependency is ready for %s", t))
}

func (e *Engine) dependencySatisfied(ctx context.Context, dep domain.Entity, t domain.TransitionID, axis domain.Axis, opts domain.GuardOptions) bool {
	if isNil(dep) {
		return false
	}
	if len(opts.TargetStatuses) > 0 {
		depAxis := axis
		if def, err := e.registry.TransitionDef(dep.Type(), t); err == nil {
			depAxis = def.Axis
		}
		if slices.Contains(opts.TargetStatuses, e.State(ctx, dep, depAxis)) {
			return true
		}
	}
	if opts.CheckHistory && e.WasPerformed(ctx, dep, t) {
		return true
	}
	if len(opts.TargetStatuses) > 0 || opts.CheckHistory {
		return false
	}
	return e.IsAllowed(ctx, dep, t, domain.GuardOptions{SkipActionCheck: true})
}

// HasPermission checks permission for the actor of the scope in ctx.
func (e *Engine) HasPermission(ctx context.Context, permission domain.Permission, ent domain.Entity) bool {
	if permission == "" {
		return true
	}
	return e.permissions.CheckPermission(ctx, permission, actorOf(ctx), ent)
}
