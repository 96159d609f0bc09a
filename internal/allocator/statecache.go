package allocator

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// StateCache is the per-shard map {node → on-disk version} the primary
// placement policy consults. Entries are never exposed directly — Fetch
// always returns a copy — and a node no longer live is purged on every
// access before anything else happens, matching the purge-before-fetch
// order the allocator's data model requires (invariant 1).
type StateCache struct {
	mu      sync.RWMutex
	byShard map[ShardID]map[NodeID]int64
}

// NewStateCache returns an empty state cache.
func NewStateCache() *StateCache {
	return &StateCache{byShard: make(map[ShardID]map[NodeID]int64)}
}

// Fetch returns a {node → version} mapping over liveNodes, populating any
// missing entries via a single fan-out RPC bounded by timeout. Nodes whose
// fetch failed are left out and asked again on the next call. A version of
// -1 is a valid, cached value and is never treated as "missing" on a later
// call.
func (c *StateCache) Fetch(ctx context.Context, client FanOutClient, logger Logger, shard ShardID, indexUUID string, liveNodes []Node, timeout time.Duration) map[NodeID]int64 {
	liveSet := make(map[NodeID]Node, len(liveNodes))
	for _, n := range liveNodes {
		liveSet[n.ID] = n
	}

	c.mu.Lock()
	entry, ok := c.byShard[shard]
	if !ok {
		entry = make(map[NodeID]int64)
		c.byShard[shard] = entry
	} else {
		for nodeID := range entry {
			if _, stillLive := liveSet[nodeID]; !stillLive {
				delete(entry, nodeID)
			}
		}
	}

	var toFetch []Node
	for _, n := range liveNodes {
		if _, present := entry[n.ID]; !present {
			toFetch = append(toFetch, n)
		}
	}
	c.mu.Unlock()

	if len(toFetch) == 0 {
		return c.snapshot(shard)
	}

	result, err := client.ListStartedShards(ctx, shard, indexUUID, toFetch, timeout)
	if err != nil {
		err = errors.Mark(err, ErrTransportUnavailable)
		logger.Warning("state cache fan-out for shard %s failed entirely: %v", shard, err)
		return c.snapshot(shard)
	}

	c.mu.Lock()
	for nodeID, state := range result.Responses {
		c.byShard[shard][nodeID] = state.Version
	}
	c.mu.Unlock()

	for _, f := range result.Failures {
		if IsConnectFailure(f.Err) {
			logger.Debug("state fetch for shard %s node %s: %v (expected churn)", shard, f.Node, f.Err)
		} else {
			logger.Warning("state fetch for shard %s node %s failed: %v", shard, f.Node, f.Err)
		}
	}

	return c.snapshot(shard)
}

func (c *StateCache) snapshot(shard ShardID) map[NodeID]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[NodeID]int64, len(c.byShard[shard]))
	for k, v := range c.byShard[shard] {
		out[k] = v
	}
	return out
}

// Invalidate drops every cached entry for a shard. Called on apply_started
// and apply_failed (invariant 3).
func (c *StateCache) Invalidate(shard ShardID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byShard, shard)
}

// Has reports whether a shard currently has a cache entry, for tests that
// assert P3 directly.
func (c *StateCache) Has(shard ShardID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byShard[shard]
	return ok
}
