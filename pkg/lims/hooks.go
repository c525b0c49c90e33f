package lims

import (
	"context"
	"slices"

	"github.com/aretw0/labflow/pkg/dispatch"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
	"github.com/aretw0/labflow/pkg/registry"
)

type binding struct {
	et   domain.EntityType
	t    domain.TransitionID
	kind domain.HookKind
	fn   ports.HookFunc
}

type guardBinding struct {
	et domain.EntityType
	t  domain.TransitionID
	fn ports.GuardFunc
}

// Hooks builds the guard and hook table of the laboratory. reg must hold the
// definitions returned by Workflows.
func (l *Lab) Hooks(reg *registry.Registry) (*registry.Hooks, error) {
	g := guards{lab: l}
	h := registry.NewHooks()

	var gs []guardBinding
	for _, et := range []domain.EntityType{TypePartition, TypeRequest} {
		gs = append(gs,
			guardBinding{et, NoSamplingWorkflow, g.noSampling},
			guardBinding{et, SamplingWorkflow, g.sampling},
			guardBinding{et, ScheduleSampling, g.scheduleSampling},
		)
	}
	for _, t := range []domain.TransitionID{NoSamplingWorkflow, SamplingWorkflow, ScheduleSampling, TakeSample} {
		gs = append(gs, guardBinding{TypeSample, t, allPerformed(t)})
	}
	for _, et := range []domain.EntityType{TypePartition, TypeRequest, TypeAnalysis} {
		gs = append(gs, guardBinding{et, Reject, g.rejection})
	}
	for _, t := range []domain.TransitionID{StartPreparation, FinishPreparation, FailPreparation} {
		gs = append(gs, guardBinding{TypeRequest, t, g.preparation})
	}
	for _, t := range []domain.TransitionID{Close, Open} {
		gs = append(gs, guardBinding{TypeBatch, t, g.activeBatch})
	}
	gs = append(gs,
		guardBinding{TypeSample, Reject, g.sampleReject},
		guardBinding{TypePartition, ToBePreserved, g.toBePreserved},
		guardBinding{TypeSample, ToBePreserved, anyPartitionIn(ToBePreserved, StateToBePreserved)},
		guardBinding{TypeSample, Preserve, samplePreserve},
		guardBinding{TypeSample, SampleDue, sampleDue},
		guardBinding{TypeRequest, ToBePreserved, sampleIn(ToBePreserved, false, StateToBePreserved)},
		guardBinding{TypeRequest, Preserve, sampleIn(Preserve, true, StateSampleDue)},
		guardBinding{TypeRequest, SampleDue, sampleIn(SampleDue, true, StateSampleDue)},
		guardBinding{TypeSample, Receive, sampleReceive},
		guardBinding{TypeRequest, Submit, allReached(Submit, RelAnalyses, submittedStates)},
		guardBinding{TypeRequest, Verify, allReached(Verify, RelAnalyses, verifiedStates)},
		guardBinding{TypeWorksheet, Submit, allReached(Submit, RelAnalyses, submittedStates)},
		guardBinding{TypeWorksheet, Verify, allReached(Verify, RelAnalyses, verifiedStates)},
		guardBinding{TypeAnalysis, Submit, g.submit},
		guardBinding{TypeAnalysis, MultiVerify, g.verification(false)},
		guardBinding{TypeAnalysis, Verify, g.verification(true)},
		guardBinding{TypeAnalysis, Assign, g.assign},
		guardBinding{TypeAnalysis, Unassign, g.unassign},
		guardBinding{TypeReferenceAnalysis, Submit, g.controlSubmit},
		guardBinding{TypeDuplicateAnalysis, Submit, g.controlSubmit},
	)
	for _, b := range gs {
		if err := h.RegisterGuard(b.et, b.t, b.fn); err != nil {
			return nil, err
		}
	}

	for _, b := range l.bindings(reg) {
		if err := h.Register(domain.HookKey{EntityType: b.et, Transition: b.t, Kind: b.kind}, b.fn); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (l *Lab) bindings(reg *registry.Registry) []binding {
	after := func(et domain.EntityType, t domain.TransitionID, fn ports.HookFunc) binding {
		return binding{et, t, domain.HookAfter, fn}
	}
	fanout := func(t domain.TransitionID, parent bool, rels ...domain.Relation) ports.HookFunc {
		return dispatch.Fanout{Transition: t, Children: rels, Parent: parent}.Hook()
	}
	reinstate := func(rels ...domain.Relation) ports.HookFunc {
		return dispatch.Fanout{Transition: Reinstate, Children: rels, Options: []domain.PerformOption{domain.IncludeInactive()}}.Hook()
	}

	var bs []binding
	for _, t := range IntakeTransitions {
		sample := fanout(t, false, RelPartitions, RelRequests)
		partition := fanout(t, true, RelAnalyses)
		request := fanout(t, true, RelPartitions, RelAnalyses)
		switch t {
		case TakeSample:
			sample = dispatch.Sequence(sample, settle)
			partition = dispatch.Sequence(partition, settle)
		case ToBePreserved:
			// analyses follow their own partition into preservation
			request = fanout(t, true)
		}
		bs = append(bs,
			after(TypeSample, t, sample),
			after(TypePartition, t, partition),
			after(TypeRequest, t, request),
		)
	}

	prep := l.preparationDone(reg)
	bs = append(bs,
		after(TypeSample, Reject, fanout(Reject, false, RelPartitions, RelRequests)),
		after(TypeSample, Expire, fanout(Expire, false, RelPartitions)),
		after(TypeSample, Dispose, fanout(Dispose, false, RelPartitions)),
		after(TypeSample, Cancel, fanout(Cancel, false, RelPartitions, RelRequests)),
		after(TypeSample, Reinstate, reinstate(RelPartitions, RelRequests)),

		after(TypePartition, Reject, fanout(Reject, true)),
		after(TypePartition, Cancel, fanout(Cancel, false, RelAnalyses)),
		after(TypePartition, Reinstate, reinstate(RelAnalyses)),

		after(TypeRequest, Reject, fanout(Reject, true, RelAnalyses)),
		after(TypeRequest, Publish, fanout(Publish, false, RelAnalyses)),
		after(TypeRequest, Cancel, fanout(Cancel, false, RelAnalyses)),
		after(TypeRequest, Reinstate, reinstate(RelAnalyses)),
		after(TypeRequest, FinishPreparation, prep),
		after(TypeRequest, FailPreparation, prep),

		binding{TypeAnalysis, Submit, domain.HookBefore, fanout(Submit, false, RelDependencies)},
		after(TypeAnalysis, Submit, dispatch.Sequence(fanout(Submit, true, RelDependents), promoteToWorksheet(Submit))),
		binding{TypeAnalysis, Submit, domain.HookReflex, l.reflex(Submit)},
		after(TypeAnalysis, Verify, dispatch.Sequence(fanout(Verify, true, RelDependencies), promoteToWorksheet(Verify))),
		binding{TypeAnalysis, Verify, domain.HookReflex, l.reflex(Verify)},
		after(TypeAnalysis, Retract, l.retest),
		after(TypeAnalysis, Cancel, l.unassignAfter),
		after(TypeAnalysis, Reject, l.unassignAfter),
		after(TypeAnalysis, Unassign, l.detachAfter),
	)
	for _, et := range []domain.EntityType{TypeReferenceAnalysis, TypeDuplicateAnalysis} {
		for _, t := range []domain.TransitionID{Submit, Verify, Retract} {
			bs = append(bs, after(et, t, fanout(t, true)))
		}
	}
	return bs
}

// settle moves a freshly sampled entity on: into to_be_preserved when its guard
// allows, to sample_due otherwise.
func settle(ctx context.Context, wf ports.Workflow, e domain.Entity) error {
	out := wf.Perform(ctx, e, ToBePreserved)
	if out.Failed() {
		return out.Err
	}
	if out.Performed {
		return nil
	}
	if out = wf.Perform(ctx, e, SampleDue); out.Failed() {
		return out.Err
	}
	return nil
}

func promoteToWorksheet(t domain.TransitionID) ports.HookFunc {
	return func(ctx context.Context, wf ports.Workflow, e domain.Entity) error {
		a, ok := e.(*Analysis)
		if !ok {
			return nil
		}
		if ws := a.Worksheet(); ws != nil {
			if out := wf.Perform(ctx, ws, t); out.Failed() {
				return out.Err
			}
		}
		return nil
	}
}

func (l *Lab) unassignAfter(ctx context.Context, wf ports.Workflow, e domain.Entity) error {
	a, ok := e.(*Analysis)
	if !ok || wf.State(ctx, a, AxisAssignment) != StateAssigned {
		return nil
	}
	if out := l.Unassign(ctx, wf, a); out.Failed() {
		return out.Err
	}
	return nil
}

// detachAfter drops the worksheet link once unassign committed. The remaining
// analyses may now all be submitted, so the worksheet is offered submit.
func (l *Lab) detachAfter(ctx context.Context, wf ports.Workflow, e domain.Entity) error {
	a, ok := e.(*Analysis)
	if !ok {
		return nil
	}
	if ws := l.detach(a); ws != nil {
		wf.Perform(ctx, ws, Submit)
	}
	return nil
}

// preparationDone leaves sample_prep once the preparation axis reached an end
// state: the request lands on the review state of the same name, or on
// sample_received when the review workflow has none.
func (l *Lab) preparationDone(reg *registry.Registry) ports.HookFunc {
	var review []domain.StateID
	for _, wf := range reg.Workflows(TypeRequest) {
		if wf.Axis == domain.AxisReview {
			review = wf.States()
		}
	}
	return func(ctx context.Context, wf ports.Workflow, e domain.Entity) error {
		if !wf.IsEndState(ctx, e, AxisPreparation) {
			return nil
		}
		if wf.State(ctx, e, domain.AxisReview) != StateSamplePrep {
			return nil
		}
		target := StateReceived
		if prep := wf.State(ctx, e, AxisPreparation); slices.Contains(review, prep) {
			target = prep
		}
		return wf.ChangeState(ctx, e, domain.AxisReview, target, "")
	}
}
