package lims

import (
	"context"
	"fmt"
	"slices"

	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
)

func invalid(e domain.Entity, state domain.StateID, format string, args ...any) error {
	return &domain.InvalidStateError{UID: e.UID(), Type: e.Type(), State: state, Reason: fmt.Sprintf(format, args...)}
}

// AddAnalysis adds an analysis to a request that already entered its workflow.
//
// Verified, published and cancelled requests refuse new analyses with an
// *domain.InvalidStateError. A request waiting for verification is retracted,
// since it now holds an analysis without result. The new analysis catches up
// with the intake transitions the request already went through.
func (l *Lab) AddAnalysis(ctx context.Context, wf ports.Workflow, r *AnalysisRequest, spec AnalysisSpec) (*Analysis, error) {
	a, err := l.addAnalysis(ctx, wf, r, spec, func(*Analysis) {})
	if err != nil {
		return nil, err
	}
	l.replayIntake(ctx, wf, a)
	return a, nil
}

func (l *Lab) addAnalysis(ctx context.Context, wf ports.Workflow, r *AnalysisRequest, spec AnalysisSpec, origin func(*Analysis)) (*Analysis, error) {
	state := wf.State(ctx, r, domain.AxisReview)
	switch {
	case state == StateVerified || state == StatePublished:
		return nil, invalid(r, state, "cannot add analyses to a %s request", state)
	case !wf.IsActive(ctx, r):
		return nil, invalid(r, state, "cannot add analyses to an inactive request")
	}

	l.mu.Lock()
	a, err := l.newAnalysis(r, spec)
	if err == nil {
		origin(a)
	}
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if state == StateToBeVerified {
		if out := wf.Perform(ctx, r, Retract); !out.Performed {
			l.logger.Warn("Failed to retract request after adding an analysis",
				"uid", r.UID(), "analysis", a.UID(), "reason", out.Reason)
		}
	}
	return a, nil
}

// Assign puts the analysis on worksheet w through the assign transition.
//
// A verified worksheet refuses it with an *domain.InvalidStateError, as does an
// analysis already on another worksheet. A worksheet waiting for verification is
// retracted. If the transition is refused the link is undone and the outcome
// tells why.
func (l *Lab) Assign(ctx context.Context, wf ports.Workflow, w *Worksheet, a *Analysis) (domain.Outcome, error) {
	state := wf.State(ctx, w, domain.AxisReview)
	if state == StateVerified {
		return domain.Outcome{}, invalid(w, state, "cannot assign analyses to a verified worksheet")
	}

	linked, err := l.attach(w, a)
	if err != nil {
		return domain.Outcome{}, err
	}

	out := wf.Perform(ctx, a, Assign)
	if !out.Performed {
		if !linked {
			l.detach(a)
		}
		return out, nil
	}

	if state == StateToBeVerified {
		wf.Perform(ctx, w, Retract)
	}
	return out, nil
}

// Unassign takes the analysis off its worksheet. Cancelled and rejected
// analyses may still be unassigned.
func (l *Lab) Unassign(ctx context.Context, wf ports.Workflow, a *Analysis) domain.Outcome {
	return wf.Perform(ctx, a, Unassign, domain.IncludeInactive())
}

// attach links a to w without a transition. It reports whether the link existed.
func (l *Lab) attach(w *Worksheet, a *Analysis) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if a.worksheet != nil && a.worksheet != w {
		return false, invalid(a, StateAssigned, "already assigned to worksheet %s", a.worksheet.UID())
	}
	linked := a.worksheet == w
	a.worksheet = w
	if !slices.Contains(w.analyses, domain.Entity(a)) {
		w.analyses = append(w.analyses, a)
	}
	return linked, nil
}

func (l *Lab) detach(a *Analysis) *Worksheet {
	l.mu.Lock()
	defer l.mu.Unlock()

	ws := a.worksheet
	if ws == nil {
		return nil
	}
	a.worksheet = nil
	ws.analyses = slices.DeleteFunc(ws.analyses, func(e domain.Entity) bool { return e == domain.Entity(a) })
	return ws
}

// AddToBatch puts r in batch b. Closed and cancelled batches refuse it.
func (l *Lab) AddToBatch(ctx context.Context, wf ports.Workflow, b *Batch, r *AnalysisRequest) error {
	state := wf.State(ctx, b, domain.AxisReview)
	if state == StateClosed {
		return invalid(b, state, "cannot add requests to a closed batch")
	}
	if !wf.IsActive(ctx, b) {
		return invalid(b, state, "cannot add requests to a cancelled batch")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if r.batch != nil && r.batch != b {
		return invalid(r, "", "already in batch %s", r.batch.UID())
	}
	r.batch = b
	if !slices.Contains(b.requests, domain.Entity(r)) {
		b.requests = append(b.requests, r)
	}
	return nil
}
