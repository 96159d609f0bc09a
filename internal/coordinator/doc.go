// Package coordinator provides the ambient pieces a control-plane process
// needs around the allocator itself: periodic liveness probing of data
// nodes (HealthMonitor) and a read-only placement mirror (ShardRegistry).
//
// Neither type drives placement decisions — that is internal/allocator's
// job. HealthMonitor only reports which nodes have stopped answering
// /health so the caller can trigger a reroute and drop them from the live
// set. ShardRegistry records the allocator's own routing decisions as they
// happen, updated every time a reroute places a shard copy, and surfaced
// read-only for observability via GET /cluster/routing.
package coordinator
