// Package allocator implements the unassigned-shard allocator: the decision
// engine that, on every cluster reroute, chooses which data node (if any)
// should host each currently unassigned shard copy of each index.
//
// # Architecture
//
//	┌────────────────────────────────────────┐
//	│              AllocateUnassigned         │
//	├────────────────────────────────────────┤
//	│  primary phase   → PlacePrimary(...)    │
//	│  replica phase   → PlaceReplica(...)    │
//	└──────────────┬───────────────┬──────────┘
//	               │               │
//	       StateCache.Fetch   StoreCache.Fetch
//	               │               │
//	               └──── FanOutClient ─────┘
//
// The driver (driver.go) runs two strict phases per reroute: every
// unassigned primary first, then every unassigned replica. Primary
// placement (primary.go) picks the node with the freshest on-disk version
// under a quorum gate, with a forced-allocation escape hatch deciders
// cannot veto. Replica placement (replica.go) scores candidates by how
// much of the primary's on-disk store they can reuse, with no forced
// path — a replica with no acceptable candidate simply stays unassigned.
//
// Both policies are backed by per-shard caches (statecache.go,
// storecache.go) that memoize the expensive per-node queries between
// reroutes and are invalidated by ApplyStarted/ApplyFailed, never by time.
//
// The decider chain (decider.go) is the package's only pluggable input: a
// Decider is a plain function, and a DeciderChain's CanAllocate method has
// the same shape, so chains nest without any interface hierarchy.
package allocator
