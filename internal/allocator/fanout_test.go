package allocator

import (
	"context"
	"time"
)

// fakeClient is a deterministic, in-memory stand-in for FanOutClient used
// throughout this package's tests. A node listed in failNodes yields a
// per-node failure, and a non-nil totalError fails the whole call; nothing
// else fails.
type fakeClient struct {
	states     map[NodeID]int64
	stores     map[NodeID]StoreFilesMetadata
	failNodes  map[NodeID]bool
	totalError error
	calls      int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		states:    make(map[NodeID]int64),
		stores:    make(map[NodeID]StoreFilesMetadata),
		failNodes: make(map[NodeID]bool),
	}
}

func (f *fakeClient) ListStartedShards(ctx context.Context, shard ShardID, indexUUID string, nodes []Node, timeout time.Duration) (FanOutResult[NodeShardState], error) {
	f.calls++
	if f.totalError != nil {
		return FanOutResult[NodeShardState]{}, f.totalError
	}
	result := FanOutResult[NodeShardState]{Responses: make(map[NodeID]NodeShardState)}
	for _, n := range nodes {
		if f.failNodes[n.ID] {
			result.Failures = append(result.Failures, FanOutFailure{Node: n.ID, Err: context.DeadlineExceeded})
			continue
		}
		v, ok := f.states[n.ID]
		if !ok {
			v = -1
		}
		result.Responses[n.ID] = NodeShardState{Version: v}
	}
	return result, nil
}

func (f *fakeClient) ListStoreMetadata(ctx context.Context, shard ShardID, includeUnallocated bool, nodes []Node, timeout time.Duration) (FanOutResult[StoreFilesMetadata], error) {
	f.calls++
	if f.totalError != nil {
		return FanOutResult[StoreFilesMetadata]{}, f.totalError
	}
	result := FanOutResult[StoreFilesMetadata]{Responses: make(map[NodeID]StoreFilesMetadata)}
	for _, n := range nodes {
		if f.failNodes[n.ID] {
			result.Failures = append(result.Failures, FanOutFailure{Node: n.ID, Err: context.DeadlineExceeded})
			continue
		}
		meta, ok := f.stores[n.ID]
		if !ok {
			meta = StoreFilesMetadata{}
		}
		result.Responses[n.ID] = meta
	}
	return result, nil
}

func alwaysYes(ShardRouting, Node, *Allocation) Decision {
	return Decision{Verdict: Yes, Reason: "test"}
}

func deciderFor(verdicts map[NodeID]Verdict, reason string) Decider {
	return func(s ShardRouting, n Node, a *Allocation) Decision {
		v, ok := verdicts[n.ID]
		if !ok {
			v = Yes
		}
		return Decision{Verdict: v, Reason: reason}
	}
}
