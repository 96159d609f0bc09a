package allocator

import "sync"

// Logger is the four level methods the allocator calls. Concrete logging
// lives in internal/logging; this package only depends on this shape so
// cache and policy code never imports the concrete logging library
// directly.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warning(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// noopLogger discards everything; used when Allocation is built without an
// explicit logger, e.g. in tests.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{})   {}
func (noopLogger) Info(string, ...interface{})    {}
func (noopLogger) Warning(string, ...interface{}) {}
func (noopLogger) Error(string, ...interface{})   {}

// Allocation is the mutable context a reroute runs against: the live node
// set, the routing table being mutated, the per-index metadata, the
// decider chain, the two caches, and the transport used to populate them.
// Nothing here is the allocator's to persist across reroutes except the
// two caches; Nodes, RoutingTable and the index metadata are refreshed by
// the caller before each call to AllocateUnassigned.
type Allocation struct {
	mu sync.RWMutex

	Nodes        []Node
	RoutingTable *RoutingTable
	Indices      map[string]IndexMetadata
	Deciders     *DeciderChain
	Transport    FanOutClient
	Logger       Logger

	StateCache *StateCache
	StoreCache *StoreCache

	// DiskUsage is a caller-supplied snapshot consumed by
	// DiskThresholdDecider; the allocator never measures disk usage
	// itself.
	DiskUsage map[NodeID]float64

	// ignoreSet lets a caller mark (shard, node) pairs that
	// ShouldIgnore should reject outright, independent of the decider
	// chain — e.g. a node mid-decommission. Optional.
	ignoreSet map[ShardID]map[NodeID]bool
}

// NewAllocation builds an Allocation with fresh caches and a no-op logger.
// Callers typically override Logger and Transport before first use.
func NewAllocation() *Allocation {
	return &Allocation{
		RoutingTable: NewRoutingTable(),
		Indices:      make(map[string]IndexMetadata),
		Deciders:     NewDeciderChain(),
		Logger:       noopLogger{},
		StateCache:   NewStateCache(),
		StoreCache:   NewStoreCache(),
		DiskUsage:    make(map[NodeID]float64),
		ignoreSet:    make(map[ShardID]map[NodeID]bool),
	}
}

// DataNodes returns a copy of the live, data-bearing nodes.
func (a *Allocation) DataNodes() []Node {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Node, 0, len(a.Nodes))
	for _, n := range a.Nodes {
		if n.DataNode {
			out = append(out, n)
		}
	}
	return out
}

// SetNodes replaces the live node set for the next reroute.
func (a *Allocation) SetNodes(nodes []Node) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Nodes = nodes
}

// IndexMeta returns the metadata for an index, or the zero value if unknown.
func (a *Allocation) IndexMeta(index string) IndexMetadata {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.Indices[index]
}

// SetIndexMeta records or replaces an index's metadata.
func (a *Allocation) SetIndexMeta(index string, m IndexMetadata) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Indices[index] = m
}

// ShouldIgnore reports whether (shard, node) has been explicitly excluded
// from consideration, independent of the decider chain.
func (a *Allocation) ShouldIgnore(s ShardRouting, n NodeID) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ignoreSet[s.ShardID][n]
}

// MarkIgnored excludes a (shard, node) pair from future candidate
// selection until explicitly cleared.
func (a *Allocation) MarkIgnored(shard ShardID, n NodeID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ignoreSet[shard] == nil {
		a.ignoreSet[shard] = make(map[NodeID]bool)
	}
	a.ignoreSet[shard][n] = true
}
