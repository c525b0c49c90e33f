// Package dispatch propagates transitions along the entity graph.
//
// Cascades push a transition down to children, escalations (Promote) push it up
// to the parent. Both only attempt the transition: the guard of each target
// decides, and the skip-list in the request scope stops an escalation from
// cascading back into the entity that caused it.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
)

// Each attempts t on every entity in order and returns how many were performed.
// Rejections are normal: ineligible targets are skipped silently. Failed
// attempts do not stop the loop; their errors are joined.
func Each(ctx context.Context, wf ports.Workflow, targets []domain.Entity, t domain.TransitionID, opts ...domain.PerformOption) (int, error) {
	performed := 0
	var errs []error
	for _, target := range targets {
		if target == nil {
			continue
		}
		out := wf.Perform(ctx, target, t, opts...)
		switch {
		case out.Performed:
			performed++
		case out.Failed():
			errs = append(errs, fmt.Errorf("%s on %s: %w", t, target.UID(), out.Err))
		}
	}
	return performed, errors.Join(errs...)
}

// Cascade attempts t on the children of e under rel.
func Cascade(ctx context.Context, wf ports.Workflow, e domain.Entity, rel domain.Relation, t domain.TransitionID, opts ...domain.PerformOption) (int, error) {
	return Each(ctx, wf, e.Children(rel), t, opts...)
}

// Promote attempts t on the parent of e. Entities without a parent yield a
// ReasonNoEntity rejection.
func Promote(ctx context.Context, wf ports.Workflow, e domain.Entity, t domain.TransitionID, opts ...domain.PerformOption) domain.Outcome {
	parent := e.Parent()
	if parent == nil {
		return domain.Rejection(domain.ReasonNoEntity, "no parent")
	}
	return wf.Perform(ctx, parent, t, opts...)
}

// Fanout declares the propagation of one transition: every relation in
// Children is cascaded in order, then the parent is promoted when Parent is set.
type Fanout struct {
	Transition domain.TransitionID
	Children   []domain.Relation
	Parent     bool
	Options    []domain.PerformOption
}

// Hook turns f into an after hook. Rejected targets are ignored; the errors of
// failed children and of a failed parent are joined.
func (f Fanout) Hook() ports.HookFunc {
	return func(ctx context.Context, wf ports.Workflow, e domain.Entity) error {
		var errs []error
		for _, rel := range f.Children {
			if _, err := Cascade(ctx, wf, e, rel, f.Transition, f.Options...); err != nil {
				errs = append(errs, err)
			}
		}
		if f.Parent {
			if out := Promote(ctx, wf, e, f.Transition, f.Options...); out.Failed() {
				errs = append(errs, out.Err)
			}
		}
		return errors.Join(errs...)
	}
}

// Sequence runs hooks in order. Every hook runs; the errors are joined.
func Sequence(hooks ...ports.HookFunc) ports.HookFunc {
	return func(ctx context.Context, wf ports.Workflow, e domain.Entity) error {
		var errs []error
		for _, h := range hooks {
			if h == nil {
				continue
			}
			if err := h(ctx, wf, e); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
