package allocator

import (
	"context"

	"github.com/cockroachdb/errors"
)

// AllocateUnassigned runs one reroute: a primary phase over every
// unassigned primary, then a replica phase over every remaining
// unassigned replica. It is deterministic given identical inputs and
// cache state, and returns whether it made any change.
//
// Removed shards go either into the routing table (assigned) or into
// ignored-unassigned; nothing is silently dropped (P1).
func AllocateUnassigned(ctx context.Context, a *Allocation, unassigned []ShardRouting) (changed bool) {
	a.RoutingTable.ResetIgnored()

	var remaining []ShardRouting

	// Primary phase.
	for _, s := range unassigned {
		if !s.Primary {
			remaining = append(remaining, s)
			continue
		}
		if !s.PrimaryAllocatedPostAPI {
			continue
		}
		if PlacePrimary(ctx, a, s) {
			changed = true
		}
	}

	// Replica phase.
	for _, s := range remaining {
		if s.Primary {
			continue
		}
		if PlaceReplica(ctx, a, s) {
			changed = true
		}
	}

	return changed
}

// ApplyStarted drops the cache entries for a shard that has transitioned
// to STARTED (invariant 3, P3).
func ApplyStarted(a *Allocation, shard ShardID) {
	warnIfUnknown(a, shard)
	a.StateCache.Invalidate(shard)
	a.StoreCache.Invalidate(shard)
}

// ApplyFailed drops the cache entries for a shard whose recovery failed
// (invariant 3, P3).
func ApplyFailed(a *Allocation, shard ShardID) {
	warnIfUnknown(a, shard)
	a.StateCache.Invalidate(shard)
	a.StoreCache.Invalidate(shard)
}

// warnIfUnknown logs when a lifecycle event names a shard neither cache has
// a record of. Invalidation is still a no-op in that case, not an error to
// the caller, so this is purely diagnostic.
func warnIfUnknown(a *Allocation, shard ShardID) {
	if !a.StateCache.Has(shard) && !a.StoreCache.Has(shard) {
		a.Logger.Debug("%v", errors.Wrapf(ErrUnknownShard, "shard %s: lifecycle event for shard with no cache record", shard))
	}
}
