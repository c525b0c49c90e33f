package registry

import (
	"fmt"
	"strings"

	"github.com/aretw0/labflow/pkg/domain"
	mapset "github.com/deckarep/golang-set/v2"
)

// Validate checks the structure of a workflow definition and that every source
// state can be reached from the initial state.
func Validate(wf Workflow) error {
	if wf.EntityType == "" {
		return &domain.DefinitionError{Reason: "missing entity type"}
	}
	if wf.Axis == "" {
		return &domain.DefinitionError{EntityType: wf.EntityType, Reason: "missing axis"}
	}
	if wf.Initial == "" {
		return &domain.DefinitionError{EntityType: wf.EntityType, Field: string(wf.Axis), Reason: "missing initial state"}
	}

	var problems []string
	ids := mapset.NewThreadUnsafeSet[domain.TransitionID]()
	for i, t := range wf.Transitions {
		switch {
		case t.ID == "":
			problems = append(problems, fmt.Sprintf("transition #%d has no id", i))
			continue
		case !ids.Add(t.ID):
			problems = append(problems, fmt.Sprintf("transition '%s' declared twice", t.ID))
		}
		if t.Axis != "" && t.Axis != wf.Axis {
			problems = append(problems, fmt.Sprintf("transition '%s' declares axis '%s' inside workflow for '%s'", t.ID, t.Axis, wf.Axis))
		}
		if len(t.From) == 0 {
			problems = append(problems, fmt.Sprintf("transition '%s' has no source state", t.ID))
		}
		if t.To == "" {
			problems = append(problems, fmt.Sprintf("transition '%s' has no destination", t.ID))
		}
		if t.Trigger != "" && t.Trigger != domain.TriggerUser && t.Trigger != domain.TriggerAutomatic {
			problems = append(problems, fmt.Sprintf("transition '%s' has unknown trigger '%s'", t.ID, t.Trigger))
		}
	}

	reachable := reachableStates(wf)
	for _, t := range wf.Transitions {
		for _, from := range t.From {
			if !reachable.Contains(from) {
				problems = append(problems, fmt.Sprintf("transition '%s' leaves unreachable state '%s'", t.ID, from))
			}
		}
	}

	if len(problems) > 0 {
		return &domain.DefinitionError{
			EntityType: wf.EntityType,
			Field:      string(wf.Axis),
			Reason:     fmt.Sprintf("found %d errors:\n- %s", len(problems), strings.Join(problems, "\n- ")),
		}
	}
	return nil
}

// reachableStates crawls the transition graph breadth-first from the initial state.
func reachableStates(wf Workflow) mapset.Set[domain.StateID] {
	visited := mapset.NewThreadUnsafeSet[domain.StateID]()
	queue := []domain.StateID{wf.Initial}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if !visited.Add(current) {
			continue
		}
		for _, t := range wf.Transitions {
			if t.To != "" && t.SupportedFrom(current) && !visited.Contains(t.To) {
				queue = append(queue, t.To)
			}
		}
	}
	return visited
}
