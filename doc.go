/*
Package labflow is a multi-axis workflow engine for laboratory entities.

Entities (samples, partitions, analysis requests, analyses, worksheets) hold one
state per axis: review, cancellation, preparation, assignment. Transitions are
declared per entity type in a registry, guarded by generic eligibility checks and
domain guards, committed to a StateStore with an audit entry, and followed by
cascades to children and escalations to parents.

# Actions

One user action (a button, an API call) is one scope. The scope carries the actor
and the skip-list that keeps an action from performing the same transition twice
on the same entity while cascades and escalations run into each other.

	ctx = labflow.WithActor(ctx, "analyst")
	out := eng.Perform(ctx, analysis, lims.Submit)
	if out.Failed() {
		log.Fatal(out.Err)
	}
	if !out.Performed {
		log.Println("not allowed:", out.Message)
	}

# Usage

The lims package provides the laboratory workflows. OpenLab wires them together:

	eng, lab, err := labflow.OpenLab(ctx, lims.DemoFixture())
	if err != nil {
		log.Fatal(err)
	}
	request, _ := lab.Resolve(ctx, "AR-0001")
	eng.Perform(labflow.WithActor(ctx, "clerk"), request, lims.NoSamplingWorkflow)
*/
package labflow
