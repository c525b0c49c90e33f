/*
Package domain contains the core types of the labflow workflow engine.

It defines what the engine moves around: entities, the independent state axes they
live on, the transitions declared for each axis, and the audit trail left behind.
The package is kept pure. It has no I/O and no persistence, following Hexagonal
Architecture principles.

# Key Types

  - Entity: a node of the lab object graph. It exposes its parent and its children
    per relation, so cascades never rely on implicit traversal.
  - Transition: a legal move on one axis, from a set of source states to a
    destination state.
  - HistoryEntry: one audit record of a committed state change.
  - Outcome: the result of a transition request. Rejections and failures are
    distinguishable without inspecting messages.
  - GuardOptions: declarative configuration for the generic eligibility check.
*/
package domain
