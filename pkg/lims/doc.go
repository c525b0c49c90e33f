// Package lims is the laboratory domain driven by the labflow engine.
//
// It declares the entity types (Sample, SamplePartition, AnalysisRequest,
// Analysis, Worksheet, ReferenceAnalysis, DuplicateAnalysis, Batch), their
// workflow definitions, the guards layered on the generic eligibility check
// and the hooks that keep the object graph consistent:
//
//   - intake transitions (no_sampling_workflow, sampling_workflow, sample,
//     receive) flow from a request down to its partitions and analyses, then up
//     from each partition to the Sample, which moves once all partitions did.
//   - submit and verify flow from analyses up to their request and worksheet,
//     which only move once every valid analysis did.
//   - reflex rules and retractions create new analyses and feed them back into
//     the engine.
//
// The Lab holds the entity graph in memory. Current states live in the
// ports.StateStore behind the engine, never on the entities themselves.
package lims
