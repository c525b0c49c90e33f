/*
Package action runs logical user actions against the engine.

A logical action is one button press or one API call. It may perform many
transitions through cascades and escalations, and all of them share one scope:
the actor and the skip-list. The Runner creates that scope and serializes actions
that touch the same root entity, locally and, with a DistributedLocker, across
replicas. The engine itself never locks.
*/
package action
