package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/labflow/internal/presentation/graph"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/lims"
	"github.com/aretw0/labflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateMermaid(t *testing.T) {
	review := registry.Workflow{
		EntityType: "item",
		Axis:       domain.AxisReview,
		Initial:    "due",
		Transitions: []domain.Transition{
			{ID: "receive", From: []domain.StateID{"due"}, To: "received"},
			{ID: "escalate", From: []domain.StateID{"received"}, To: "done", Trigger: domain.TriggerAutomatic},
			{ID: "reopen", From: []domain.StateID{"done", "received"}, To: "due", Permission: "Reopen"},
		},
	}

	tests := []struct {
		name     string
		wfs      []registry.Workflow
		overlay  *graph.Overlay
		contains []string
		excludes []string
	}{
		{
			name: "Initial State And Edges",
			wfs:  []registry.Workflow{review},
			contains: []string{
				"stateDiagram-v2",
				`state "review" as review {`,
				"[*] --> review_due",
				"review_due --> review_received : receive",
			},
			excludes: []string{"classDef"},
		},
		{
			name: "Automatic And Permission Labels",
			wfs:  []registry.Workflow{review},
			contains: []string{
				"review_received --> review_done : escalate (auto)",
				"review_done --> review_due : reopen [Reopen]",
				"review_received --> review_due : reopen [Reopen]",
			},
		},
		{
			name:    "Overlay",
			wfs:     []registry.Workflow{review},
			overlay: &graph.Overlay{States: domain.States{domain.AxisReview: "received", "missing": "x"}},
			contains: []string{
				"classDef current",
				"class review_received current",
			},
			excludes: []string{"missing_x"},
		},
		{
			name: "ID Sanitization",
			wfs: []registry.Workflow{{
				EntityType: "item", Axis: "pre-check", Initial: "a.b",
				Transitions: []domain.Transition{{ID: "go", From: []domain.StateID{"a.b"}, To: "c d"}},
			}},
			contains: []string{"pre_check_a_b --> pre_check_c_d : go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(tt.wfs, tt.overlay)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, got, unwanted)
			}
		})
	}
}

func TestGenerateMermaid_LabRegistry(t *testing.T) {
	reg, err := lims.NewRegistry()
	require.NoError(t, err)

	got := graph.GenerateMermaid(reg.Workflows(lims.TypeAnalysis), nil)
	assert.Equal(t, len(reg.Axes(lims.TypeAnalysis)), strings.Count(got, "[*] -->"))
	assert.Contains(t, got, "review_to_be_verified")
}
