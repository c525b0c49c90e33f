package lims_test

import (
	"context"
	"testing"

	"github.com/aretw0/labflow/internal/runtime"
	"github.com/aretw0/labflow/pkg/adapters/memory"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/lims"
	"github.com/aretw0/labflow/pkg/scope"
	"github.com/stretchr/testify/require"
)

const labYAML = `
samples:
  - uid: S-1
    partitions: [P-1, P-2, P-3]
    requests:
      - uid: AR-1
        partitions: [P-1, P-2, P-3]
        analyses:
          - {uid: AN-1, keyword: Ca, partition: P-1}
          - {uid: AN-2, keyword: Cl, partition: P-2}
          - uid: AN-3
            keyword: Hardness
            partition: P-3
            calculation: {name: hardness, interims: {dilution: ""}}
            dependencies: [AN-1]
worksheets:
  - uid: WS-1
    analyses: [AN-1, AN-2, AN-3]
batches:
  - uid: B-1
    requests: [AR-1]
`

type harness struct {
	t      *testing.T
	lab    *lims.Lab
	engine *runtime.Engine
	store  *memory.Store
}

func newHarness(t *testing.T, yaml string, setup map[string]any, opts ...runtime.EngineOption) *harness {
	t.Helper()
	fx, err := lims.ParseFixture([]byte(yaml))
	require.NoError(t, err)
	if setup != nil {
		fx.Setup = setup
	}
	lab, err := fx.Build()
	require.NoError(t, err)

	reg, err := lims.NewRegistry()
	require.NoError(t, err)
	hooks, err := lab.Hooks(reg)
	require.NoError(t, err)

	store := memory.NewStore()
	opts = append([]runtime.EngineOption{runtime.WithHooks(hooks)}, opts...)
	h := &harness{t: t, lab: lab, store: store, engine: runtime.NewEngine(reg, store, opts...)}
	require.NoError(t, fx.Apply(context.Background(), h.engine, lab))
	return h
}

func (h *harness) entity(uid string) domain.Entity {
	h.t.Helper()
	e, err := h.lab.Resolve(context.Background(), uid)
	require.NoError(h.t, err)
	return e
}

func (h *harness) analysis(uid string) *lims.Analysis {
	h.t.Helper()
	a, ok := h.lab.Analysis(uid)
	require.True(h.t, ok, uid)
	return a
}

func (h *harness) perform(actor, uid string, t domain.TransitionID, opts ...domain.PerformOption) domain.Outcome {
	ctx := scope.WithScope(context.Background(), scope.New(actor))
	return h.engine.Perform(ctx, h.entity(uid), t, opts...)
}

func (h *harness) state(uid string) domain.StateID {
	return h.axis(uid, domain.AxisReview)
}

func (h *harness) axis(uid string, axis domain.Axis) domain.StateID {
	return h.engine.State(context.Background(), h.entity(uid), axis)
}

// reviewHistory keeps the review axis entries of uid, leaving out assignments.
func (h *harness) reviewHistory(uid string) []domain.HistoryEntry {
	var out []domain.HistoryEntry
	for _, e := range h.engine.History(context.Background(), h.entity(uid)) {
		if e.Axis == domain.AxisReview {
			out = append(out, e)
		}
	}
	return out
}

func (h *harness) result(uid, value string) {
	h.t.Helper()
	require.NoError(h.t, h.lab.SetResult(h.entity(uid), value))
}

// intake runs the request through no_sampling_workflow and receives every partition.
func (h *harness) intake(request string, partitions ...string) {
	h.t.Helper()
	require.True(h.t, h.perform("clerk", request, lims.NoSamplingWorkflow).Performed)
	for _, p := range partitions {
		require.True(h.t, h.perform("clerk", p, lims.Receive).Performed, p)
	}
}

// submitAll captures results and submits the three analyses of labYAML.
func (h *harness) submitAll() {
	h.t.Helper()
	h.result("AN-1", "3.1")
	h.result("AN-2", "12")
	require.NoError(h.t, h.lab.SetInterim(h.analysis("AN-3"), "dilution", "10"))
	for _, uid := range []string{"AN-2", "AN-3"} {
		out := h.perform("analyst", uid, lims.Submit)
		require.True(h.t, out.Performed, "%s: %s", uid, out.Message)
	}
}
