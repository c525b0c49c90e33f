/*
Package ports defines the driven ports (interfaces) of the labflow engine.

These interfaces decouple the workflow core from the surrounding system. The engine
never persists, indexes or authorizes anything itself. It goes through these ports.

# Key Interfaces

  - StateStore: reads and writes per-axis state, the audit history and index updates.
  - PermissionChecker: answers "may actor A do P on entity X".
  - EntityResolver: turns UIDs from front ends into domain entities.
  - DistributedLocker: coordinates logical actions across replicas.
  - Workflow: the engine as seen by domain hooks and guards.
*/
package ports
