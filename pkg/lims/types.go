package lims

import "github.com/aretw0/labflow/pkg/domain"

// Entity types.
const (
	TypeSample            domain.EntityType = "sample"
	TypePartition         domain.EntityType = "sample_partition"
	TypeRequest           domain.EntityType = "analysis_request"
	TypeAnalysis          domain.EntityType = "analysis"
	TypeWorksheet         domain.EntityType = "worksheet"
	TypeReferenceAnalysis domain.EntityType = "reference_analysis"
	TypeDuplicateAnalysis domain.EntityType = "duplicate_analysis"
	TypeBatch             domain.EntityType = "batch"
)

// Relations.
const (
	RelPartitions   domain.Relation = "partitions"
	RelRequests     domain.Relation = "requests"
	RelAnalyses     domain.Relation = "analyses"
	RelDependencies domain.Relation = "dependencies"
	RelDependents   domain.Relation = "dependents"
)

// Axes beyond the engine defaults.
const (
	AxisPreparation domain.Axis = "preparation"
	AxisAssignment  domain.Axis = "assignment"
)

// Review states.
const (
	StateRegistered    domain.StateID = "sample_registered"
	StateToBeSampled   domain.StateID = "to_be_sampled"
	StateScheduled     domain.StateID = "scheduled_sampling"
	StateSampled       domain.StateID = "sampled"
	StateToBePreserved domain.StateID = "to_be_preserved"
	StateSampleDue     domain.StateID = "sample_due"
	StateSamplePrep    domain.StateID = "sample_prep"
	StateReceived      domain.StateID = "sample_received"
	StateToBeVerified  domain.StateID = "to_be_verified"
	StateVerified      domain.StateID = "verified"
	StatePublished     domain.StateID = "published"
	StateRetracted     domain.StateID = "retracted"
	StateRejected      domain.StateID = "rejected"
	StateExpired       domain.StateID = "expired"
	StateDisposed      domain.StateID = "disposed"
	StateAssigned      domain.StateID = "assigned"
	StateUnassigned    domain.StateID = "unassigned"
	StateOpen          domain.StateID = "open"
	StateClosed        domain.StateID = "closed"
)

// Preparation states of an analysis request.
const (
	StatePrepPending domain.StateID = "pending"
	StatePreparing   domain.StateID = "preparing"
	StatePrepared    domain.StateID = "prepared"
)

// Transitions.
const (
	NoSamplingWorkflow domain.TransitionID = "no_sampling_workflow"
	SamplingWorkflow   domain.TransitionID = "sampling_workflow"
	ScheduleSampling   domain.TransitionID = "schedule_sampling"
	TakeSample         domain.TransitionID = "sample"
	ToBePreserved      domain.TransitionID = "to_be_preserved"
	Preserve           domain.TransitionID = "preserve"
	SampleDue          domain.TransitionID = "sample_due"
	SamplePrep         domain.TransitionID = "sample_prep"
	Receive            domain.TransitionID = "receive"
	Submit             domain.TransitionID = "submit"
	MultiVerify        domain.TransitionID = "multi_verify"
	Verify             domain.TransitionID = "verify"
	Publish            domain.TransitionID = "publish"
	Retract            domain.TransitionID = "retract"
	Reject             domain.TransitionID = "reject"
	Expire             domain.TransitionID = "expire"
	Dispose            domain.TransitionID = "dispose"
	Cancel             domain.TransitionID = "cancel"
	Reinstate          domain.TransitionID = "reinstate"
	Assign             domain.TransitionID = "assign"
	Unassign           domain.TransitionID = "unassign"
	Close              domain.TransitionID = "close"
	Open               domain.TransitionID = "open"

	StartPreparation  domain.TransitionID = "start_preparation"
	FinishPreparation domain.TransitionID = "finish_preparation"
	FailPreparation   domain.TransitionID = "fail_preparation"
)

// Permissions checked through the ports.PermissionChecker.
const (
	PermPublish  domain.Permission = "Publish"
	PermUnassign domain.Permission = "Unassign"
	PermReject   domain.Permission = "Reject"

	PermViewHistory domain.Permission = "ViewHistory"
)

// IntakeTransitions are replayed, in this order, on analyses created after their
// request went through intake.
var IntakeTransitions = []domain.TransitionID{
	NoSamplingWorkflow, SamplingWorkflow, ScheduleSampling, TakeSample,
	ToBePreserved, Preserve, SampleDue, Receive,
}

// submittedStates are the review states of an analysis that already submitted.
var submittedStates = []domain.StateID{StateToBeVerified, StateVerified, StatePublished}

// verifiedStates are the review states of an analysis that already verified.
var verifiedStates = []domain.StateID{StateVerified, StatePublished}
