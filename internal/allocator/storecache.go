package allocator

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// storeEntry wraps StoreFilesMetadata with a flag distinguishing "no store
// metadata available" from the zero value, since a zero-value
// StoreFilesMetadata is a legitimate response (an empty, unallocated
// store).
type storeEntry struct {
	meta    StoreFilesMetadata
	present bool
}

// StoreCache is the per-shard map {node → store file metadata} the replica
// placement policy consults. Same shape as StateCache, except failed
// fetches leave no entry behind — the next reroute retries them rather
// than caching a negative result, because an absent store entry is not a
// stable fact the way version=-1 is.
type StoreCache struct {
	mu      sync.RWMutex
	byShard map[ShardID]map[NodeID]storeEntry
}

// NewStoreCache returns an empty store cache.
func NewStoreCache() *StoreCache {
	return &StoreCache{byShard: make(map[ShardID]map[NodeID]storeEntry)}
}

// Fetch returns a {node → *StoreFilesMetadata} mapping over liveNodes. A
// node whose fetch failed is absent from the map; a node that already hosts
// a copy is present with Allocated set. §4.3 Step 4 skips both cases.
func (c *StoreCache) Fetch(ctx context.Context, client FanOutClient, logger Logger, shard ShardID, includeUnallocated bool, liveNodes []Node, timeout time.Duration) map[NodeID]*StoreFilesMetadata {
	liveSet := make(map[NodeID]Node, len(liveNodes))
	for _, n := range liveNodes {
		liveSet[n.ID] = n
	}

	c.mu.Lock()
	entry, ok := c.byShard[shard]
	if !ok {
		entry = make(map[NodeID]storeEntry)
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

	result, err := client.ListStoreMetadata(ctx, shard, includeUnallocated, toFetch, timeout)
	if err != nil {
		err = errors.Mark(err, ErrTransportUnavailable)
		logger.Warning("store cache fan-out for shard %s failed entirely: %v", shard, err)
		return c.snapshot(shard)
	}

	c.mu.Lock()
	for nodeID, meta := range result.Responses {
		c.byShard[shard][nodeID] = storeEntry{meta: meta, present: true}
	}
	c.mu.Unlock()

	for _, f := range result.Failures {
		if IsConnectFailure(f.Err) {
			logger.Debug("store fetch for shard %s node %s: %v (expected churn)", shard, f.Node, f.Err)
		} else {
			logger.Warning("store fetch for shard %s node %s failed: %v", shard, f.Node, f.Err)
		}
		// No insertion on failure: the next reroute retries this node.
	}

	return c.snapshot(shard)
}

func (c *StoreCache) snapshot(shard ShardID) map[NodeID]*StoreFilesMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[NodeID]*StoreFilesMetadata, len(c.byShard[shard]))
	for k, v := range c.byShard[shard] {
		if !v.present {
			continue
		}
		m := v.meta
		out[k] = &m
	}
	return out
}

// Invalidate drops every cached entry for a shard (apply_started,
// apply_failed).
func (c *StoreCache) Invalidate(shard ShardID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byShard, shard)
}

// Has reports whether a shard currently has a cache entry.
func (c *StoreCache) Has(shard ShardID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byShard[shard]
	return ok
}
