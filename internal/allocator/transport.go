package allocator

import (
	"context"
	"time"
)

// FanOutFailure is one node's failure entry from a fan-out call. A fan-out
// must never throw for this — the node simply doesn't appear in Responses.
type FanOutFailure struct {
	Node NodeID
	Err  error
}

// FanOutResult is the typed wrapper the fan-out client adapter returns:
// per-node successes plus per-node failures, never mixed into one slice so
// callers don't have to type-switch to tell them apart.
type FanOutResult[T any] struct {
	Responses map[NodeID]T
	Failures  []FanOutFailure
}

// FanOutClient is the transport contract the two caches consume. It is
// deliberately the only place in this package that knows a network call is
// involved; everything above it operates on FanOutResult values.
//
// A total failure (the call itself returning a non-nil error, as opposed to
// per-node failures inside the result) means the transport was unavailable.
// The calling cache logs it and returns the entries it already holds for
// the shard; the reroute is not aborted.
type FanOutClient interface {
	ListStartedShards(ctx context.Context, shard ShardID, indexUUID string, nodes []Node, timeout time.Duration) (FanOutResult[NodeShardState], error)
	ListStoreMetadata(ctx context.Context, shard ShardID, includeUnallocated bool, nodes []Node, timeout time.Duration) (FanOutResult[StoreFilesMetadata], error)
}

// IsConnectFailure reports whether err represents expected churn (a node
// that is known unreachable, e.g. connection refused) rather than an
// unexpected transport error. The node-state and node-store caches log
// these at DEBUG instead of WARN (§4.4 Step 5).
func IsConnectFailure(err error) bool {
	ce, ok := err.(interface{ ConnectFailure() bool })
	return ok && ce.ConnectFailure()
}
