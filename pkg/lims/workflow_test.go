package lims_test

import (
	"context"
	"testing"

	"github.com/aretw0/labflow/internal/runtime"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/lims"
	"github.com/aretw0/labflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_AllTypes(t *testing.T) {
	reg, err := lims.NewRegistry()
	require.NoError(t, err)

	assert.ElementsMatch(t, []domain.EntityType{
		lims.TypeSample, lims.TypePartition, lims.TypeRequest, lims.TypeAnalysis,
		lims.TypeWorksheet, lims.TypeReferenceAnalysis, lims.TypeDuplicateAnalysis, lims.TypeBatch,
	}, reg.Types())
	assert.Equal(t, []domain.Axis{domain.AxisReview, lims.AxisPreparation, domain.AxisCancellation}, reg.Axes(lims.TypeRequest))
	assert.True(t, reg.IsEndState(lims.TypeAnalysis, domain.AxisReview, lims.StateRetracted))
	assert.ElementsMatch(t, []domain.TransitionID{lims.Receive}, reg.IncomingTransitions(lims.TypeSample, lims.StateReceived))
}

func TestIntake_CascadesToPartitionsAndAnalyses(t *testing.T) {
	h := newHarness(t, labYAML, nil)

	out := h.perform("clerk", "AR-1", lims.NoSamplingWorkflow)
	require.True(t, out.Performed, out.Message)

	for _, uid := range []string{"S-1", "P-1", "P-2", "P-3", "AR-1", "AN-1", "AN-2", "AN-3"} {
		assert.Equal(t, lims.StateSampleDue, h.state(uid), uid)
		assert.Len(t, h.reviewHistory(uid), 1, uid)
	}
}

func TestIntake_SamplingWorkflowSwitch(t *testing.T) {
	h := newHarness(t, labYAML, map[string]any{"sampling_workflow_enabled": "true"})

	assert.Equal(t, domain.ReasonNotAllowed, h.perform("clerk", "AR-1", lims.NoSamplingWorkflow).Reason)
	require.True(t, h.perform("clerk", "AR-1", lims.SamplingWorkflow).Performed)
	assert.Equal(t, lims.StateToBeSampled, h.state("S-1"))

	require.True(t, h.perform("sampler", "AR-1", lims.TakeSample).Performed)
	assert.Equal(t, lims.StateSampleDue, h.state("S-1"))
	assert.Equal(t, lims.StateSampleDue, h.state("AN-3"))
}

func TestReceive_SampleWaitsForEveryPartition(t *testing.T) {
	h := newHarness(t, labYAML, nil)
	require.True(t, h.perform("clerk", "AR-1", lims.NoSamplingWorkflow).Performed)

	require.True(t, h.perform("clerk", "P-1", lims.Receive).Performed)
	require.True(t, h.perform("clerk", "P-2", lims.Receive).Performed)
	assert.Equal(t, lims.StateSampleDue, h.state("S-1"), "two of three partitions received")
	assert.Equal(t, lims.StateReceived, h.state("AN-1"))
	assert.Equal(t, lims.StateSampleDue, h.state("AN-3"))

	require.True(t, h.perform("clerk", "P-3", lims.Receive).Performed)
	assert.Equal(t, lims.StateReceived, h.state("S-1"))
	assert.Equal(t, lims.StateReceived, h.state("AR-1"), "the received sample cascades to its requests")
	assert.Equal(t, lims.StateReceived, h.state("AN-3"))
	assert.Len(t, h.engine.History(context.Background(), h.entity("S-1")), 2)
}

func TestReceive_CancelledPartitionDoesNotBlock(t *testing.T) {
	h := newHarness(t, labYAML, nil)
	require.True(t, h.perform("clerk", "AR-1", lims.NoSamplingWorkflow).Performed)
	require.True(t, h.perform("clerk", "P-3", lims.Cancel).Performed)
	assert.False(t, h.engine.IsActive(context.Background(), h.entity("AN-3")), "partition cancel cascades to its analyses")

	h.perform("clerk", "P-1", lims.Receive)
	h.perform("clerk", "P-2", lims.Receive)
	assert.Equal(t, lims.StateReceived, h.state("S-1"))
}

func TestSubmit_EscalatesOnceAllAnalysesSubmitted(t *testing.T) {
	h := newHarness(t, labYAML, nil)
	h.intake("AR-1", "P-1", "P-2", "P-3")

	h.result("AN-2", "12")
	require.True(t, h.perform("analyst", "AN-2", lims.Submit).Performed)
	assert.Equal(t, lims.StateReceived, h.state("AR-1"))

	assert.Equal(t, domain.ReasonNotAllowed, h.perform("analyst", "AN-1", lims.Submit).Reason, "no result")

	h.result("AN-1", "3.1")
	out := h.perform("analyst", "AN-3", lims.Submit)
	assert.Equal(t, domain.ReasonNotAllowed, out.Reason)
	assert.Contains(t, out.Message, "interim")

	require.NoError(t, h.lab.SetInterim(h.analysis("AN-3"), "dilution", "10"))
	out = h.perform("analyst", "AN-3", lims.Submit)
	require.True(t, out.Performed, out.Message)

	// the dependency was submitted first by the before hook
	assert.Equal(t, lims.StateToBeVerified, h.state("AN-1"))
	assert.Equal(t, lims.StateToBeVerified, h.state("AN-3"))
	assert.Equal(t, lims.StateToBeVerified, h.state("AR-1"))
	assert.Equal(t, lims.StateToBeVerified, h.state("WS-1"))
	assert.Len(t, h.engine.History(context.Background(), h.entity("AN-3")), 4)
}

func TestSubmit_FieldCaptureBeforeReceive(t *testing.T) {
	yaml := `
samples:
  - uid: S-1
    partitions: [P-1]
    requests:
      - uid: AR-1
        partitions: [P-1]
        analyses:
          - {uid: AN-1, keyword: pH, partition: P-1, capture: field, result: "7.1"}
          - {uid: AN-2, keyword: Cl, partition: P-1, result: "10"}
`
	h := newHarness(t, yaml, nil)
	require.True(t, h.perform("clerk", "AR-1", lims.NoSamplingWorkflow).Performed)

	assert.True(t, h.perform("sampler", "AN-1", lims.Submit).Performed)
	assert.Equal(t, domain.ReasonNotAllowed, h.perform("analyst", "AN-2", lims.Submit).Reason)
}

func TestVerify_SubmitterCannotVerify(t *testing.T) {
	h := newHarness(t, labYAML, nil)
	h.intake("AR-1", "P-1", "P-2", "P-3")
	h.submitAll()

	out := h.perform("analyst", "AN-1", lims.Verify)
	assert.Equal(t, domain.ReasonNotAllowed, out.Reason)
	assert.Contains(t, out.Message, "submitter")

	for _, uid := range []string{"AN-1", "AN-2", "AN-3"} {
		require.True(t, h.perform("reviewer", uid, lims.Verify).Performed, uid)
	}
	assert.Equal(t, lims.StateVerified, h.state("AR-1"))
	assert.Equal(t, lims.StateVerified, h.state("WS-1"))

	require.True(t, h.perform("manager", "AR-1", lims.Publish).Performed)
	assert.Equal(t, lims.StatePublished, h.state("AN-2"), "publish cascades to analyses")
}

func TestVerify_SelfVerification(t *testing.T) {
	h := newHarness(t, labYAML, map[string]any{"self_verification_enabled": 1})
	h.intake("AR-1", "P-1", "P-2", "P-3")
	h.submitAll()

	assert.True(t, h.perform("analyst", "AN-2", lims.Verify).Performed)
}

func TestVerify_MultipleVerifications(t *testing.T) {
	h := newHarness(t, labYAML, map[string]any{"required_verifications": 3})
	h.intake("AR-1", "P-1", "P-2", "P-3")
	h.submitAll()

	assert.Equal(t, domain.ReasonNotAllowed, h.perform("bob", "AN-2", lims.Verify).Reason, "3 remaining")
	require.True(t, h.perform("bob", "AN-2", lims.MultiVerify).Performed)
	assert.Equal(t, domain.ReasonNotAllowed, h.perform("bob", "AN-2", lims.MultiVerify).Reason, "skip-list aside, bob already verified")
	require.True(t, h.perform("carol", "AN-2", lims.MultiVerify).Performed)

	assert.Equal(t, domain.ReasonNotAllowed, h.perform("carol", "AN-2", lims.Verify).Reason)
	assert.Equal(t, domain.ReasonNotAllowed, h.perform("dave", "AN-2", lims.MultiVerify).Reason, "only the final verification remains")
	require.True(t, h.perform("dave", "AN-2", lims.Verify).Performed)
	assert.Equal(t, lims.StateVerified, h.state("AN-2"))
}

func TestRetract_CreatesRetest(t *testing.T) {
	h := newHarness(t, labYAML, nil)
	h.intake("AR-1", "P-1", "P-2", "P-3")
	h.submitAll()
	require.Equal(t, lims.StateToBeVerified, h.state("WS-1"))

	require.True(t, h.perform("reviewer", "AN-2", lims.Retract).Performed)

	assert.Equal(t, lims.StateRetracted, h.state("AN-2"))
	assert.Equal(t, lims.StateReceived, h.state("AR-1"), "new analysis reopens the request")
	assert.Equal(t, lims.StateOpen, h.state("WS-1"), "new analysis reopens the worksheet")

	var retest *lims.Analysis
	found := 0
	for _, e := range h.entity("AR-1").Children(lims.RelAnalyses) {
		if a := e.(*lims.Analysis); a.RetestOf() == "AN-2" {
			retest = a
			found++
		}
	}
	require.Equal(t, 1, found)
	assert.Equal(t, "Cl", retest.Keyword())
	assert.Equal(t, lims.StateReceived, h.state(retest.UID()))
	assert.Equal(t, lims.StateAssigned, h.axis(retest.UID(), lims.AxisAssignment))
	assert.Equal(t, "WS-1", retest.Worksheet().UID())

	history := h.engine.History(context.Background(), retest)
	require.NotEmpty(t, history)
	assert.Equal(t, domain.ForcedComment(lims.StateReceived), history[len(history)-1].Comment)
}

func TestRetract_SpreadsToDependents(t *testing.T) {
	h := newHarness(t, labYAML, nil)
	h.intake("AR-1", "P-1", "P-2", "P-3")
	h.submitAll()

	require.True(t, h.perform("reviewer", "AN-1", lims.Retract).Performed)
	assert.Equal(t, lims.StateRetracted, h.state("AN-3"), "AN-3 is calculated from AN-1")
	assert.Equal(t, lims.StateToBeVerified, h.state("AN-2"))
}

func TestCancel_UnassignsAndReinstates(t *testing.T) {
	h := newHarness(t, labYAML, nil)
	ctx := context.Background()
	h.intake("AR-1", "P-1", "P-2", "P-3")

	require.True(t, h.perform("clerk", "AR-1", lims.Cancel).Performed)
	for _, uid := range []string{"AN-1", "AN-2", "AN-3"} {
		assert.False(t, h.engine.IsActive(ctx, h.entity(uid)), uid)
		assert.Equal(t, lims.StateUnassigned, h.axis(uid, lims.AxisAssignment), uid)
		assert.Nil(t, h.analysis(uid).Worksheet(), uid)
	}
	assert.Empty(t, h.entity("WS-1").Children(lims.RelAnalyses))
	assert.True(t, h.engine.IsActive(ctx, h.entity("S-1")), "cancel never escalates")

	assert.False(t, h.perform("clerk", "AR-1", lims.Reinstate).Performed)
	require.True(t, h.perform("clerk", "AR-1", lims.Reinstate, domain.IncludeInactive()).Performed)
	for _, uid := range []string{"AN-1", "AN-2", "AN-3"} {
		assert.True(t, h.engine.IsActive(ctx, h.entity(uid)), uid)
	}
}

func TestReject_NeedsRejectionWorkflow(t *testing.T) {
	h := newHarness(t, labYAML, nil)
	h.intake("AR-1", "P-1", "P-2", "P-3")
	assert.Equal(t, domain.ReasonNotAllowed, h.perform("manager", "AR-1", lims.Reject).Reason)

	h = newHarness(t, labYAML, map[string]any{"rejection_workflow_enabled": true})
	h.intake("AR-1", "P-1", "P-2", "P-3")
	require.True(t, h.perform("manager", "AR-1", lims.Reject).Performed)

	for _, uid := range []string{"S-1", "P-1", "P-2", "P-3", "AR-1", "AN-1", "AN-2", "AN-3"} {
		assert.Equal(t, lims.StateRejected, h.state(uid), uid)
	}
	assert.Empty(t, h.entity("WS-1").Children(lims.RelAnalyses), "rejected analyses leave the worksheet")
}

func TestUnassign_NeedsPermission(t *testing.T) {
	deny := ports.PermissionFunc(func(_ context.Context, p domain.Permission, actor string, _ domain.Entity) bool {
		return p != lims.PermUnassign || actor == "manager"
	})
	h := newHarness(t, labYAML, nil, runtime.WithPermissionChecker(deny))

	assert.Equal(t, domain.ReasonNotAllowed, h.perform("analyst", "AN-1", lims.Unassign).Reason)
	require.True(t, h.perform("manager", "AN-1", lims.Unassign).Performed)
	assert.Nil(t, h.analysis("AN-1").Worksheet())
	assert.Len(t, h.entity("WS-1").Children(lims.RelAnalyses), 2)
}

func TestPreparation_ForcesReviewState(t *testing.T) {
	tests := []struct {
		name   string
		finish domain.TransitionID
		want   domain.StateID
	}{
		{"prepared lands on received", lims.FinishPreparation, lims.StateReceived},
		{"failed lands on rejected", lims.FailPreparation, lims.StateRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, labYAML, nil)
			require.True(t, h.perform("clerk", "AR-1", lims.NoSamplingWorkflow).Performed)
			require.True(t, h.perform("clerk", "AR-1", lims.SamplePrep).Performed)

			require.True(t, h.perform("prep", "AR-1", lims.StartPreparation).Performed)
			assert.Equal(t, lims.StateSamplePrep, h.state("AR-1"), "preparing is not an end state")

			require.True(t, h.perform("prep", "AR-1", tt.finish).Performed)
			assert.Equal(t, tt.want, h.state("AR-1"))
		})
	}
}

func TestAllowedTransitions_Analysis(t *testing.T) {
	h := newHarness(t, labYAML, nil)
	h.intake("AR-1", "P-1", "P-2", "P-3")
	h.result("AN-2", "12")

	var ids []domain.TransitionID
	for _, tr := range h.engine.AllowedTransitions(context.Background(), h.entity("AN-2")) {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []domain.TransitionID{lims.Submit, lims.Cancel, lims.Unassign}, ids)
}

func TestReject_PartitionEscalatesOnlyWhenAllRejected(t *testing.T) {
	h := newHarness(t, labYAML, map[string]any{"rejection_workflow_enabled": true})
	h.intake("AR-1", "P-1", "P-2", "P-3")

	require.True(t, h.perform("manager", "P-1", lims.Reject).Performed)
	assert.Equal(t, lims.StateRejected, h.state("P-1"))
	for _, uid := range []string{"S-1", "P-2", "P-3", "AR-1", "AN-1"} {
		assert.Equal(t, lims.StateReceived, h.state(uid), uid)
	}

	require.True(t, h.perform("manager", "P-2", lims.Reject).Performed)
	assert.Equal(t, lims.StateReceived, h.state("S-1"), "one partition left")

	require.True(t, h.perform("manager", "P-3", lims.Reject).Performed)
	for _, uid := range []string{"S-1", "AR-1", "AN-1", "AN-2", "AN-3"} {
		assert.Equal(t, lims.StateRejected, h.state(uid), uid)
	}
}

func TestReject_SampleDirectly(t *testing.T) {
	h := newHarness(t, labYAML, map[string]any{"rejection_workflow_enabled": true})
	h.intake("AR-1", "P-1", "P-2", "P-3")

	require.True(t, h.perform("manager", "S-1", lims.Reject).Performed)
	for _, uid := range []string{"P-1", "P-2", "P-3", "AR-1", "AN-3"} {
		assert.Equal(t, lims.StateRejected, h.state(uid), uid)
	}
}

func TestReceive_RejectedPartitionDoesNotBlock(t *testing.T) {
	h := newHarness(t, labYAML, map[string]any{"rejection_workflow_enabled": true})
	require.True(t, h.perform("clerk", "AR-1", lims.NoSamplingWorkflow).Performed)
	require.True(t, h.perform("manager", "P-3", lims.Reject).Performed)
	require.Equal(t, lims.StateSampleDue, h.state("S-1"))

	require.True(t, h.perform("clerk", "P-1", lims.Receive).Performed)
	assert.Equal(t, lims.StateSampleDue, h.state("S-1"))
	require.True(t, h.perform("clerk", "P-2", lims.Receive).Performed)
	assert.Equal(t, lims.StateReceived, h.state("S-1"))
	assert.Equal(t, lims.StateReceived, h.state("AR-1"))
}

func TestPreparation_NeedsSamplePrep(t *testing.T) {
	h := newHarness(t, labYAML, nil)
	require.True(t, h.perform("clerk", "AR-1", lims.NoSamplingWorkflow).Performed)

	out := h.perform("prep", "AR-1", lims.StartPreparation)
	assert.Equal(t, domain.ReasonNotAllowed, out.Reason)
	assert.Contains(t, out.Message, string(lims.StateSamplePrep))
	assert.Equal(t, lims.StatePrepPending, h.axis("AR-1", lims.AxisPreparation))

	require.True(t, h.perform("clerk", "AR-1", lims.SamplePrep).Performed)
	require.True(t, h.perform("prep", "AR-1", lims.StartPreparation).Performed)
	require.True(t, h.perform("prep", "AR-1", lims.FinishPreparation).Performed)
	assert.Equal(t, lims.StateReceived, h.state("AR-1"))
	assert.Equal(t, lims.StatePrepared, h.axis("AR-1", lims.AxisPreparation))
}

const preservationYAML = `
setup:
  sampling_workflow_enabled: true
samples:
  - uid: S-1
    partitions: [P-1, P-2]
    preserve: [P-2]
    requests:
      - uid: AR-1
        partitions: [P-1, P-2]
        analyses:
          - {uid: AN-1, keyword: Ca, partition: P-1}
          - {uid: AN-2, keyword: Cl, partition: P-2}
`

func TestSample_PreservationHoldsTheSample(t *testing.T) {
	h := newHarness(t, preservationYAML, nil)
	require.True(t, h.perform("clerk", "AR-1", lims.SamplingWorkflow).Performed)
	require.True(t, h.perform("sampler", "AR-1", lims.TakeSample).Performed)

	assert.Equal(t, lims.StateSampleDue, h.state("P-1"), "no preservation needed")
	assert.Equal(t, lims.StateSampleDue, h.state("AN-1"))
	for _, uid := range []string{"S-1", "P-2", "AR-1", "AN-2"} {
		assert.Equal(t, lims.StateToBePreserved, h.state(uid), uid)
	}
	assert.Equal(t, domain.ReasonNotAllowed, h.perform("clerk", "S-1", lims.Receive).Reason)

	require.True(t, h.perform("sampler", "P-2", lims.Preserve).Performed)
	for _, uid := range []string{"S-1", "P-2", "AR-1", "AN-2"} {
		assert.Equal(t, lims.StateSampleDue, h.state(uid), uid)
	}

	h.perform("clerk", "P-1", lims.Receive)
	h.perform("clerk", "P-2", lims.Receive)
	assert.Equal(t, lims.StateReceived, h.state("S-1"))
}

func TestSample_PreservationNeedsSamplingWorkflow(t *testing.T) {
	h := newHarness(t, preservationYAML, map[string]any{"sampling_workflow_enabled": false})
	require.True(t, h.perform("clerk", "AR-1", lims.NoSamplingWorkflow).Performed)

	for _, uid := range []string{"S-1", "P-2", "AR-1", "AN-2"} {
		assert.Equal(t, lims.StateSampleDue, h.state(uid), uid)
	}
}

func TestSample_ScheduleSampling(t *testing.T) {
	h := newHarness(t, labYAML, map[string]any{"sampling_workflow_enabled": true})
	require.True(t, h.perform("clerk", "AR-1", lims.SamplingWorkflow).Performed)
	assert.Equal(t, domain.ReasonNotAllowed, h.perform("clerk", "AR-1", lims.ScheduleSampling).Reason)

	h = newHarness(t, labYAML, map[string]any{"sampling_workflow_enabled": true, "schedule_sampling_enabled": true})
	require.True(t, h.perform("clerk", "AR-1", lims.SamplingWorkflow).Performed)
	require.True(t, h.perform("clerk", "AR-1", lims.ScheduleSampling).Performed)
	for _, uid := range []string{"S-1", "P-1", "P-2", "P-3", "AR-1", "AN-3"} {
		assert.Equal(t, lims.StateScheduled, h.state(uid), uid)
	}

	require.True(t, h.perform("sampler", "AR-1", lims.TakeSample).Performed)
	for _, uid := range []string{"S-1", "P-1", "P-3", "AR-1", "AN-3"} {
		assert.Equal(t, lims.StateSampleDue, h.state(uid), uid)
	}
	assert.True(t, h.engine.WasPerformed(context.Background(), h.entity("S-1"), lims.SampleDue))
}

func TestSample_WaitsForEveryPartitionToBeSampled(t *testing.T) {
	h := newHarness(t, labYAML, map[string]any{"sampling_workflow_enabled": true})
	require.True(t, h.perform("clerk", "AR-1", lims.SamplingWorkflow).Performed)

	require.True(t, h.perform("sampler", "P-1", lims.TakeSample).Performed)
	require.True(t, h.perform("sampler", "P-2", lims.TakeSample).Performed)
	assert.Equal(t, lims.StateSampleDue, h.state("P-1"))
	assert.Equal(t, lims.StateToBeSampled, h.state("S-1"))
	assert.Equal(t, lims.StateToBeSampled, h.state("AR-1"))

	require.True(t, h.perform("sampler", "P-3", lims.TakeSample).Performed)
	assert.Equal(t, lims.StateSampleDue, h.state("S-1"))
	assert.Equal(t, lims.StateSampleDue, h.state("AR-1"))
}

func TestReferenceAnalysis_ExpireAndDispose(t *testing.T) {
	yaml := `
samples:
  - uid: S-1
    partitions: [P-1]
    requests:
      - uid: AR-1
        partitions: [P-1]
        analyses:
          - {uid: AN-1, keyword: Ca, partition: P-1, result: "3.1"}
worksheets:
  - uid: WS-1
    analyses: [AN-1]
    references: [REF-1]
`
	h := newHarness(t, yaml, nil)
	h.intake("AR-1", "P-1")

	require.True(t, h.perform("analyst", "AN-1", lims.Submit).Performed)
	assert.Equal(t, lims.StateOpen, h.state("WS-1"), "the reference is still pending")

	require.True(t, h.perform("manager", "REF-1", lims.Expire).Performed)
	assert.Equal(t, lims.StateExpired, h.state("REF-1"))
	assert.Equal(t, domain.ReasonNotAllowed, h.perform("analyst", "REF-1", lims.Submit).Reason)

	require.True(t, h.perform("manager", "REF-1", lims.Dispose).Performed)
	assert.Equal(t, lims.StateDisposed, h.state("REF-1"))

	require.True(t, h.perform("system", "WS-1", lims.Submit).Performed, "a disposed reference no longer holds the worksheet")
	assert.Equal(t, lims.StateToBeVerified, h.state("WS-1"))
}
