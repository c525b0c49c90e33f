package lims

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/aretw0/labflow/pkg/dispatch"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
)

// reflex fires the rules bound to trigger. Analyses created by a reflex rule do
// not fire rules themselves.
func (l *Lab) reflex(trigger domain.TransitionID) ports.HookFunc {
	return func(ctx context.Context, wf ports.Workflow, e domain.Entity) error {
		a, ok := e.(*Analysis)
		if !ok || a.ReflexOf() != "" {
			return nil
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(a.Result()), 64)
		if err != nil {
			return nil
		}

		var errs []error
		for _, rule := range l.Setup().ReflexRules {
			if !rule.Matches(a.Keyword(), trigger, value) {
				continue
			}
			keyword := a.Keyword()
			if rule.Action == ReflexNewAnalysis {
				keyword = rule.NewKeyword
			}
			created, err := l.addAnalysis(ctx, wf, a.Request(), AnalysisSpec{Keyword: keyword, Partition: a.Partition()}, func(n *Analysis) {
				n.reflexOf = a.UID()
				if rule.Action == ReflexRepeat {
					n.retestOf = a.UID()
				}
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("reflex rule on %s: %w", a.UID(), err))
				continue
			}
			l.logger.Info("Reflex rule created analysis",
				"uid", created.UID(), "keyword", keyword, "source", a.UID(), "action", rule.Action)

			l.replayIntake(ctx, wf, created)
			if ws := a.Worksheet(); ws != nil {
				if _, err := l.Assign(ctx, wf, ws, created); err != nil {
					errs = append(errs, err)
				}
			}
		}
		return errors.Join(errs...)
	}
}

// replayIntake drives a late analysis through the intake transitions its
// request already performed, oldest first.
func (l *Lab) replayIntake(ctx context.Context, wf ports.Workflow, a *Analysis) {
	history := wf.History(ctx, a.Request())
	var done []domain.TransitionID
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i].Transition
		if slices.Contains(IntakeTransitions, t) && !slices.Contains(done, t) {
			done = append(done, t)
		}
	}
	for _, t := range done {
		wf.Perform(ctx, a, t)
	}
}

// retest runs after an analysis is retracted: a fresh copy lands directly in
// sample_received on the same request and worksheet, and the retraction spreads
// to dependencies and dependents.
func (l *Lab) retest(ctx context.Context, wf ports.Workflow, e domain.Entity) error {
	a, ok := e.(*Analysis)
	if !ok {
		return nil
	}
	var errs []error

	copySpec := AnalysisSpec{
		Keyword:               a.Keyword(),
		Partition:             a.Partition(),
		Capture:               a.Capture(),
		RequiredVerifications: a.required,
	}
	if name, bound := a.Calculation(); bound {
		copySpec.Calculation = &Calculation{Name: name}
	}
	for _, dep := range a.Children(RelDependencies) {
		if d, ok := dep.(*Analysis); ok {
			copySpec.Dependencies = append(copySpec.Dependencies, d)
		}
	}

	retest, err := l.addAnalysis(ctx, wf, a.Request(), copySpec, func(n *Analysis) {
		n.retestOf = a.UID()
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("retest of %s: %w", a.UID(), err))
	} else {
		if err := wf.ChangeState(ctx, retest, domain.AxisReview, StateReceived, ""); err != nil {
			errs = append(errs, err)
		}
		if ws := a.Worksheet(); ws != nil {
			if _, err := l.Assign(ctx, wf, ws, retest); err != nil {
				errs = append(errs, err)
			}
		}
	}

	for _, rel := range []domain.Relation{RelDependencies, RelDependents} {
		if _, err := dispatch.Cascade(ctx, wf, a, rel, Retract); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
