package lims

import (
	"fmt"

	"github.com/aretw0/labflow/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// ReflexAction is what a matching reflex rule does.
type ReflexAction string

const (
	// ReflexRepeat adds a retest of the triggering analysis.
	ReflexRepeat ReflexAction = "repeat"
	// ReflexNewAnalysis adds an analysis for another keyword.
	ReflexNewAnalysis ReflexAction = "new_analysis"
)

// ReflexRule fires after Trigger on analyses of Keyword whose numeric result
// falls within [Min, Max]. A nil bound is open.
type ReflexRule struct {
	Keyword    string              `mapstructure:"keyword"`
	Trigger    domain.TransitionID `mapstructure:"trigger"`
	Min        *float64            `mapstructure:"min"`
	Max        *float64            `mapstructure:"max"`
	Action     ReflexAction        `mapstructure:"action"`
	NewKeyword string              `mapstructure:"new_keyword"`
}

// Setup holds the laboratory-wide switches the guards read.
type Setup struct {
	SamplingWorkflowEnabled  bool         `mapstructure:"sampling_workflow_enabled"`
	ScheduleSamplingEnabled  bool         `mapstructure:"schedule_sampling_enabled"`
	SelfVerificationEnabled  bool         `mapstructure:"self_verification_enabled"`
	RejectionWorkflowEnabled bool         `mapstructure:"rejection_workflow_enabled"`
	RequiredVerifications    int          `mapstructure:"required_verifications"`
	ReflexRules              []ReflexRule `mapstructure:"reflex_rules"`
}

// DefaultSetup is a lab without sampling workflow, rejection or self verification,
// requiring one verification per analysis.
func DefaultSetup() Setup {
	return Setup{RequiredVerifications: 1}
}

// DecodeSetup decodes a free-form mapping (from YAML, JSON or flags) onto the
// defaults. Values are weakly typed: "true", 1 and true are all accepted as a bool.
func DecodeSetup(raw map[string]any) (Setup, error) {
	setup := DefaultSetup()
	if len(raw) == 0 {
		return setup, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &setup,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return setup, err
	}
	if err := dec.Decode(raw); err != nil {
		return setup, fmt.Errorf("failed to decode lab setup: %w", err)
	}
	return setup, setup.Validate()
}

// Validate checks the reflex rules and the verification count.
func (s Setup) Validate() error {
	if s.RequiredVerifications < 1 {
		return fmt.Errorf("required_verifications must be at least 1, got %d", s.RequiredVerifications)
	}
	for i, r := range s.ReflexRules {
		if r.Keyword == "" {
			return fmt.Errorf("reflex rule %d: missing keyword", i)
		}
		if r.Trigger != Submit && r.Trigger != Verify {
			return fmt.Errorf("reflex rule %d: trigger must be submit or verify, got %q", i, r.Trigger)
		}
		switch r.Action {
		case ReflexRepeat:
		case ReflexNewAnalysis:
			if r.NewKeyword == "" {
				return fmt.Errorf("reflex rule %d: new_analysis needs new_keyword", i)
			}
		default:
			return fmt.Errorf("reflex rule %d: unknown action %q", i, r.Action)
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return fmt.Errorf("reflex rule %d: min above max", i)
		}
	}
	return nil
}

// Matches reports whether the rule applies to result.
func (r ReflexRule) Matches(keyword string, trigger domain.TransitionID, result float64) bool {
	if r.Keyword != keyword || r.Trigger != trigger {
		return false
	}
	if r.Min != nil && result < *r.Min {
		return false
	}
	if r.Max != nil && result > *r.Max {
		return false
	}
	return true
}
