package lims_test

import (
	"testing"

	"github.com/aretw0/labflow/pkg/lims"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSetup(t *testing.T) {
	setup, err := lims.DecodeSetup(map[string]any{
		"sampling_workflow_enabled": "true",
		"self_verification_enabled": 0,
		"required_verifications":    "2",
		"reflex_rules": []any{
			map[string]any{"keyword": "Ca", "trigger": "submit", "min": "100", "action": "repeat"},
		},
	})
	require.NoError(t, err)

	assert.True(t, setup.SamplingWorkflowEnabled)
	assert.False(t, setup.SelfVerificationEnabled)
	assert.Equal(t, 2, setup.RequiredVerifications)
	require.Len(t, setup.ReflexRules, 1)
	require.NotNil(t, setup.ReflexRules[0].Min)
	assert.Equal(t, 100.0, *setup.ReflexRules[0].Min)
	assert.Nil(t, setup.ReflexRules[0].Max)
}

func TestDecodeSetup_Defaults(t *testing.T) {
	setup, err := lims.DecodeSetup(nil)
	require.NoError(t, err)
	assert.Equal(t, lims.DefaultSetup(), setup)
	assert.Equal(t, 1, setup.RequiredVerifications)
}

func TestDecodeSetup_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{"unknown key", map[string]any{"auto_receive": true}, "auto_receive"},
		{"zero verifications", map[string]any{"required_verifications": 0}, "at least 1"},
		{"bad trigger", map[string]any{"reflex_rules": []any{
			map[string]any{"keyword": "Ca", "trigger": "publish", "action": "repeat"},
		}}, "trigger"},
		{"missing new keyword", map[string]any{"reflex_rules": []any{
			map[string]any{"keyword": "Ca", "trigger": "verify", "action": "new_analysis"},
		}}, "new_keyword"},
		{"unknown action", map[string]any{"reflex_rules": []any{
			map[string]any{"keyword": "Ca", "trigger": "verify", "action": "dilute"},
		}}, "unknown action"},
		{"inverted range", map[string]any{"reflex_rules": []any{
			map[string]any{"keyword": "Ca", "trigger": "verify", "action": "repeat", "min": 10, "max": 1},
		}}, "min above max"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lims.DecodeSetup(tt.raw)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReflexRule_Matches(t *testing.T) {
	lo, hi := 1.0, 5.0
	rule := lims.ReflexRule{Keyword: "Ca", Trigger: lims.Verify, Min: &lo, Max: &hi, Action: lims.ReflexRepeat}

	assert.True(t, rule.Matches("Ca", lims.Verify, 1))
	assert.True(t, rule.Matches("Ca", lims.Verify, 5))
	assert.False(t, rule.Matches("Ca", lims.Verify, 5.01))
	assert.False(t, rule.Matches("Ca", lims.Submit, 3))
	assert.False(t, rule.Matches("Mg", lims.Verify, 3))

	rule.Max = nil
	assert.True(t, rule.Matches("Ca", lims.Verify, 1e6))
}
