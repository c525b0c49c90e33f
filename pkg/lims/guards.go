package lims

import (
	"context"
	"fmt"
	"slices"

	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
	"github.com/aretw0/labflow/pkg/scope"
)

// valid filters the members of a container that still count towards its
// quorum: active, and not retracted, rejected, expired or disposed.
func valid(ctx context.Context, wf ports.Workflow, members []domain.Entity) []domain.Entity {
	out := make([]domain.Entity, 0, len(members))
	for _, m := range members {
		if !wf.IsActive(ctx, m) {
			continue
		}
		switch wf.State(ctx, m, domain.AxisReview) {
		case StateRetracted, StateRejected, StateExpired, StateDisposed:
			continue
		}
		out = append(out, m)
	}
	return out
}

func active(ctx context.Context, wf ports.Workflow, entities []domain.Entity) []domain.Entity {
	out := make([]domain.Entity, 0, len(entities))
	for _, e := range entities {
		if wf.IsActive(ctx, e) {
			out = append(out, e)
		}
	}
	return out
}

func decide(ok bool, reason string) domain.GuardResult {
	if ok {
		return domain.Allow()
	}
	return domain.Deny(reason)
}

// allPerformed passes once every valid partition of the sample performed t.
func allPerformed(t domain.TransitionID) ports.GuardFunc {
	return func(ctx context.Context, wf ports.Workflow, e domain.Entity) domain.GuardResult {
		partitions := valid(ctx, wf, e.Children(RelPartitions))
		if len(partitions) == 0 {
			return domain.Allow()
		}
		return decide(wf.IsAllowed(ctx, e, t, domain.GuardOptions{
			Dependencies:    partitions,
			CheckAll:        true,
			CheckHistory:    true,
			SkipActionCheck: true,
		}), fmt.Sprintf("not every partition performed %s", t))
	}
}

// allReached passes once every valid member under rel is in one of states.
// Empty containers never pass.
func allReached(t domain.TransitionID, rel domain.Relation, states []domain.StateID) ports.GuardFunc {
	return func(ctx context.Context, wf ports.Workflow, e domain.Entity) domain.GuardResult {
		members := valid(ctx, wf, e.Children(rel))
		if len(members) == 0 {
			return domain.Deny(fmt.Sprintf("no %s to %s", rel, t))
		}
		return decide(wf.IsAllowed(ctx, e, t, domain.GuardOptions{
			Dependencies:    members,
			TargetStatuses:  states,
			CheckAll:        true,
			SkipActionCheck: true,
		}), fmt.Sprintf("not every %s reached %v", rel, states))
	}
}

// sampleReceive passes once every valid partition is received.
func sampleReceive(ctx context.Context, wf ports.Workflow, e domain.Entity) domain.GuardResult {
	partitions := valid(ctx, wf, e.Children(RelPartitions))
	if len(partitions) == 0 {
		return domain.Allow()
	}
	return decide(wf.IsAllowed(ctx, e, Receive, domain.GuardOptions{
		Dependencies:    partitions,
		TargetStatuses:  []domain.StateID{StateReceived},
		CheckAll:        true,
		SkipActionCheck: true,
	}), "not every partition is received")
}

// anyPartitionIn passes once at least one valid partition is in state.
func anyPartitionIn(t domain.TransitionID, state domain.StateID) ports.GuardFunc {
	return func(ctx context.Context, wf ports.Workflow, e domain.Entity) domain.GuardResult {
		partitions := valid(ctx, wf, e.Children(RelPartitions))
		return decide(len(partitions) > 0 && wf.IsAllowed(ctx, e, t, domain.GuardOptions{
			Dependencies:    partitions,
			TargetStatuses:  []domain.StateID{state},
			SkipActionCheck: true,
		}), fmt.Sprintf("no partition is %s", state))
	}
}

// reachedDue reports whether p got to sample_due, by either path.
func reachedDue(ctx context.Context, wf ports.Workflow, p domain.Entity) bool {
	return wf.State(ctx, p, domain.AxisReview) == StateSampleDue ||
		wf.WasPerformed(ctx, p, SampleDue) ||
		wf.WasPerformed(ctx, p, Preserve)
}

// sampleDue passes once every valid partition reached sample_due.
func sampleDue(ctx context.Context, wf ports.Workflow, e domain.Entity) domain.GuardResult {
	for _, p := range valid(ctx, wf, e.Children(RelPartitions)) {
		if !reachedDue(ctx, wf, p) {
			return domain.Deny(fmt.Sprintf("partition %s is not due", p.UID()))
		}
	}
	return domain.Allow()
}

// samplePreserve passes when every valid partition is either due already or can
// be preserved along with the sample.
func samplePreserve(ctx context.Context, wf ports.Workflow, e domain.Entity) domain.GuardResult {
	for _, p := range valid(ctx, wf, e.Children(RelPartitions)) {
		if reachedDue(ctx, wf, p) {
			continue
		}
		if res := wf.Evaluate(ctx, p, Preserve); !res.Allowed {
			return domain.Deny(fmt.Sprintf("partition %s cannot be preserved: %s", p.UID(), res.Reason))
		}
	}
	return domain.Allow()
}

// sampleIn passes a request transition once its sample is in one of states.
// With history set, a sample that already performed t passes too.
func sampleIn(t domain.TransitionID, history bool, states ...domain.StateID) ports.GuardFunc {
	return func(ctx context.Context, wf ports.Workflow, e domain.Entity) domain.GuardResult {
		r, ok := e.(*AnalysisRequest)
		if !ok || r.Sample() == nil {
			return domain.Deny("no sample")
		}
		return decide(wf.IsAllowed(ctx, e, t, domain.GuardOptions{
			Dependencies:    []domain.Entity{r.Sample()},
			TargetStatuses:  states,
			CheckHistory:    history,
			SkipActionCheck: true,
		}), fmt.Sprintf("sample %s is not %v", r.Sample().UID(), states))
	}
}

type guards struct {
	lab *Lab
}

func (g guards) noSampling(context.Context, ports.Workflow, domain.Entity) domain.GuardResult {
	return decide(!g.lab.Setup().SamplingWorkflowEnabled, "sampling workflow is enabled")
}

func (g guards) sampling(context.Context, ports.Workflow, domain.Entity) domain.GuardResult {
	return decide(g.lab.Setup().SamplingWorkflowEnabled, "sampling workflow is disabled")
}

func (g guards) scheduleSampling(context.Context, ports.Workflow, domain.Entity) domain.GuardResult {
	return decide(g.lab.Setup().ScheduleSamplingEnabled, "schedule sampling is disabled")
}

// toBePreserved passes for partitions flagged for preservation while the
// sampling workflow is on.
func (g guards) toBePreserved(_ context.Context, _ ports.Workflow, e domain.Entity) domain.GuardResult {
	p, ok := e.(*Partition)
	if !ok || !p.NeedsPreservation() {
		return domain.Deny("no preservation required")
	}
	return decide(g.lab.Setup().SamplingWorkflowEnabled, "sampling workflow is disabled")
}

// preparation gates the preparation axis on the request being sent to preparation.
func (g guards) preparation(ctx context.Context, wf ports.Workflow, e domain.Entity) domain.GuardResult {
	state := wf.State(ctx, e, domain.AxisReview)
	return decide(state == StateSamplePrep, fmt.Sprintf("request is %s, not %s", state, StateSamplePrep))
}

// activeBatch admits close and open only on batches that are not cancelled,
// even when the caller includes inactive entities.
func (g guards) activeBatch(ctx context.Context, wf ports.Workflow, e domain.Entity) domain.GuardResult {
	return decide(wf.State(ctx, e, domain.AxisCancellation) == domain.StateActive, fmt.Sprintf("batch %s is cancelled", e.UID()))
}

func (g guards) rejection(context.Context, ports.Workflow, domain.Entity) domain.GuardResult {
	return decide(g.lab.Setup().RejectionWorkflowEnabled, "rejection workflow is disabled")
}

// sampleReject passes a direct reject of the sample. A reject escalated from one
// of its partitions passes only once every active partition is rejected.
func (g guards) sampleReject(ctx context.Context, wf ports.Workflow, e domain.Entity) domain.GuardResult {
	if res := g.rejection(ctx, wf, e); !res.Allowed {
		return res
	}
	sc, ok := scope.FromContext(ctx)
	if !ok {
		return domain.Allow()
	}
	partitions := active(ctx, wf, e.Children(RelPartitions))
	escalated := slices.ContainsFunc(partitions, func(p domain.Entity) bool {
		return sc.Peek(p.UID(), Reject)
	})
	if !escalated {
		return domain.Allow()
	}
	return decide(wf.IsAllowed(ctx, e, Reject, domain.GuardOptions{
		Dependencies:    partitions,
		TargetStatuses:  []domain.StateID{StateRejected},
		CheckAll:        true,
		SkipActionCheck: true,
	}), "not every partition is rejected")
}

// submit passes when the analysis has a result, or a resolved calculation whose
// dependencies submitted or can submit.
func (g guards) submit(ctx context.Context, wf ports.Workflow, e domain.Entity) domain.GuardResult {
	a, ok := e.(*Analysis)
	if !ok {
		return domain.Deny("not a routine analysis")
	}
	if wf.State(ctx, a, domain.AxisReview) == StateSampleDue && a.Capture() != CaptureField {
		return domain.Deny("lab results need a received sample")
	}
	if a.Result() != "" {
		return domain.Allow()
	}
	if _, bound := a.Calculation(); !bound {
		return domain.Deny("no result")
	}
	if !a.CalculationResolved() {
		return domain.Deny("calculation interim fields missing")
	}
	for _, dep := range a.Children(RelDependencies) {
		if wf.WasPerformed(ctx, dep, Submit) {
			continue
		}
		if res := wf.Evaluate(ctx, dep, Submit); !res.Allowed {
			return domain.Deny(fmt.Sprintf("dependency %s cannot submit: %s", dep.UID(), res.Reason))
		}
	}
	return domain.Allow()
}

func (g guards) controlSubmit(_ context.Context, _ ports.Workflow, e domain.Entity) domain.GuardResult {
	c, ok := e.(*ControlAnalysis)
	return decide(ok && c.Result() != "", "no result")
}

// verification builds the verify (final) and multi_verify (intermediate) guards.
func (g guards) verification(final bool) ports.GuardFunc {
	return func(ctx context.Context, wf ports.Workflow, e domain.Entity) domain.GuardResult {
		a, ok := e.(*Analysis)
		if !ok {
			return domain.Deny("not a routine analysis")
		}

		history := wf.History(ctx, a)
		var verifiers []string
		submitter := ""
		for _, h := range history {
			switch h.Transition {
			case MultiVerify:
				verifiers = append(verifiers, h.Actor)
			case Submit:
				if submitter == "" {
					submitter = h.Actor
				}
			}
		}

		remaining := g.lab.RequiredVerifications(a) - len(verifiers)
		if final && remaining != 1 {
			return domain.Deny(fmt.Sprintf("%d verifications still required", remaining))
		}
		if !final && remaining <= 1 {
			return domain.Deny("only the final verification remains")
		}

		if len(verifiers) == 0 {
			for _, dep := range a.Children(RelDependencies) {
				if slices.Contains(verifiedStates, wf.State(ctx, dep, domain.AxisReview)) {
					continue
				}
				if res := wf.Evaluate(ctx, dep, Verify); !res.Allowed {
					return domain.Deny(fmt.Sprintf("dependency %s cannot verify: %s", dep.UID(), res.Reason))
				}
			}
		}

		actor := scope.Actor(ctx)
		if actor == submitter && !g.lab.Setup().SelfVerificationEnabled {
			return domain.Deny("the submitter cannot verify")
		}
		if slices.Contains(verifiers, actor) {
			return domain.Deny(fmt.Sprintf("%s already verified", actor))
		}
		return domain.Allow()
	}
}

func (g guards) assign(_ context.Context, _ ports.Workflow, e domain.Entity) domain.GuardResult {
	a, ok := e.(*Analysis)
	return decide(ok && a.Worksheet() != nil, "not linked to a worksheet")
}

// unassign needs the Unassign permission on an active worksheet.
func (g guards) unassign(ctx context.Context, wf ports.Workflow, e domain.Entity) domain.GuardResult {
	a, ok := e.(*Analysis)
	if !ok {
		return domain.Deny("not a routine analysis")
	}
	ws := a.Worksheet()
	if ws == nil {
		return domain.Deny("not on a worksheet")
	}
	if !wf.IsActive(ctx, ws) {
		return domain.Deny(fmt.Sprintf("worksheet %s is not active", ws.UID()))
	}
	return decide(wf.HasPermission(ctx, PermUnassign, ws), fmt.Sprintf("permission %q required on %s", PermUnassign, ws.UID()))
}
