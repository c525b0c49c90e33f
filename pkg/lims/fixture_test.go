package lims_test

import (
	"context"
	"testing"

	"github.com/aretw0/labflow/internal/runtime"
	"github.com/aretw0/labflow/internal/testutils"
	"github.com/aretw0/labflow/pkg/adapters/memory"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/lims"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoFixture(t *testing.T) {
	fx := lims.DemoFixture()
	lab, err := fx.Build()
	require.NoError(t, err)

	assert.True(t, lab.Setup().RejectionWorkflowEnabled)
	assert.Len(t, lab.Setup().ReflexRules, 2)

	ctx := context.Background()
	s, err := lab.Resolve(ctx, "S-0001")
	require.NoError(t, err)
	assert.Len(t, s.Children(lims.RelPartitions), 3)

	hardness, ok := lab.Analysis("AN-0003")
	require.True(t, ok)
	name, bound := hardness.Calculation()
	assert.True(t, bound)
	assert.Equal(t, "total hardness", name)
	require.Len(t, hardness.Children(lims.RelDependencies), 1)
	ca := hardness.Children(lims.RelDependencies)[0]
	assert.Equal(t, "AN-0001", ca.UID())
	assert.Equal(t, []domain.Entity{hardness}, ca.Children(lims.RelDependents))

	reg, err := lims.NewRegistry()
	require.NoError(t, err)
	hooks, err := lab.Hooks(reg)
	require.NoError(t, err)
	engine := runtime.NewEngine(reg, memory.NewStore(), runtime.WithHooks(hooks))
	require.NoError(t, fx.Apply(ctx, engine, lab))

	ws, err := lab.Resolve(ctx, "WS-0001")
	require.NoError(t, err)
	assert.Len(t, ws.Children(lims.RelAnalyses), 4, "three routine analyses and one reference")
	assert.Equal(t, lims.StateAssigned, engine.State(ctx, hardness, lims.AxisAssignment))

	ref, err := lab.Resolve(ctx, "REF-0001")
	require.NoError(t, err)
	assert.Equal(t, lims.StateAssigned, engine.State(ctx, ref, domain.AxisReview))
	assert.Same(t, ws, ref.Parent())
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown partition", `
samples:
  - uid: S-1
    requests: [{uid: AR-1, partitions: [P-9]}]
`, "unknown partition P-9"},
		{"unknown dependency", `
samples:
  - uid: S-1
    partitions: [P-1]
    requests:
      - uid: AR-1
        partitions: [P-1]
        analyses: [{uid: AN-1, keyword: Ca, dependencies: [AN-9]}]
`, "unknown dependency AN-9"},
		{"duplicate uid", `
samples:
  - uid: S-1
    partitions: [S-1]
`, "already exists"},
		{"missing keyword", `
samples:
  - uid: S-1
    requests: [{uid: AR-1, analyses: [{uid: AN-1}]}]
`, "missing keyword"},
		{"bad setup", `
setup: {required_verifications: -1}
`, "required_verifications"},
		{"unknown batch request", `
batches: [{uid: B-1, requests: [AR-9]}]
`, "unknown request AR-9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx, err := lims.ParseFixture([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = fx.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFixture(t *testing.T) {
	path := testutils.WriteFile(t, "lab.yaml", labYAML)
	fx, err := lims.LoadFixture(path)
	require.NoError(t, err)
	require.Len(t, fx.Samples, 1)
	assert.Equal(t, "AR-1", fx.Samples[0].Requests[0].UID)

	_, err = lims.LoadFixture(path + ".missing")
	assert.Error(t, err)

	_, err = lims.ParseFixture([]byte("samples: {uid: [}"))
	assert.Error(t, err)
}

func TestApply_UnknownAnalysis(t *testing.T) {
	fx, err := lims.ParseFixture([]byte(`
worksheets: [{uid: WS-1, analyses: [AN-9]}]
`))
	require.NoError(t, err)
	lab, err := fx.Build()
	require.NoError(t, err)

	reg, err := lims.NewRegistry()
	require.NoError(t, err)
	hooks, err := lab.Hooks(reg)
	require.NoError(t, err)
	engine := runtime.NewEngine(reg, memory.NewStore(), runtime.WithHooks(hooks))
	assert.ErrorContains(t, fx.Apply(context.Background(), engine, lab), "unknown analysis AN-9")
}

func TestApply_ReopenLinksWithoutTransitions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	reg, err := lims.NewRegistry()
	require.NoError(t, err)

	open := func() (*lims.Lab, *runtime.Engine) {
		fx := lims.DemoFixture()
		lab, err := fx.Build()
		require.NoError(t, err)
		hooks, err := lab.Hooks(reg)
		require.NoError(t, err)
		engine := runtime.NewEngine(reg, store, runtime.WithHooks(hooks))
		require.NoError(t, fx.Apply(ctx, engine, lab))
		return lab, engine
	}

	open()
	lab, engine := open()

	ws, err := lab.Resolve(ctx, "WS-0001")
	require.NoError(t, err)
	assert.Len(t, ws.Children(lims.RelAnalyses), 4)

	ca, ok := lab.Analysis("AN-0001")
	require.True(t, ok)
	assert.Same(t, ws, ca.Worksheet())
	var assigns int
	for _, h := range engine.History(ctx, ca) {
		if h.Transition == lims.Assign {
			assigns++
		}
	}
	assert.Equal(t, 1, assigns)
}
