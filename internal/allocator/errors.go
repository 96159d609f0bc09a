package allocator

import "github.com/cockroachdb/errors"

// Sentinel errors of allocator-owned code. None is returned to callers:
// each is wrapped with context where its condition is detected and then
// logged; they are never re-created ad hoc at call sites.
var (
	// ErrNoCandidates is logged when a placement policy ends up with no
	// candidate node for a shard.
	ErrNoCandidates = errors.New("allocator: no candidate node available")

	// ErrTransportUnavailable marks a fan-out call that failed as a whole
	// (as opposed to a per-node failure). The cache that issued the call
	// logs it and returns the entries it already holds for the shard; the
	// reroute is not aborted.
	ErrTransportUnavailable = errors.New("allocator: transport unavailable")

	// ErrUnknownShard is logged when a lifecycle event names a shard the
	// caches have no record of; invalidation is then a no-op, not an error
	// to the caller.
	ErrUnknownShard = errors.New("allocator: unknown shard")
)
