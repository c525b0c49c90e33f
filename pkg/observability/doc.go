/*
Package observability turns engine lifecycle events into Prometheus metrics and
structured audit logs.

Both are plain domain.LifecycleHooks values, so they plug into the engine with
WithLifecycleHooks and can be merged with Combine.
*/
package observability
