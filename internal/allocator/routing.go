package allocator

import "sync"

// Assignment records one shard copy's placement once the allocator has
// decided on it.
type Assignment struct {
	ShardID ShardID
	Node    NodeID
	Primary bool
	Version int64 // stamped only for primaries; zero for replicas
}

// IgnoredEntry is a shard the driver gave up on for this reroute, along
// with the reason it was parked — surfaced for observability on
// GET /cluster/routing (SPEC_FULL.md §6 Coordinator HTTP surface).
type IgnoredEntry struct {
	Routing ShardRouting
	Reason  string
}

// RoutingTable is the mutable slice of cluster routing state the allocator
// consumes and mutates. It is the caller's object, not the allocator's: the
// allocator never discards assignments it has already written, even if the
// surrounding cluster-state publication that triggered the reroute is later
// aborted.
type RoutingTable struct {
	mu          sync.RWMutex
	assignments map[ShardID][]Assignment
	ignored     []IgnoredEntry
}

// NewRoutingTable returns an empty routing table.
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{assignments: make(map[ShardID][]Assignment)}
}

// Assign records a new assignment for a shard. Multiple assignments can
// coexist per ShardID: one primary and zero or more replicas.
func (t *RoutingTable) Assign(a Assignment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.assignments[a.ShardID] = append(t.assignments[a.ShardID], a)
}

// Ignore records that a shard was parked in ignored-unassigned this
// reroute, with the reason the caller passes. The placement policies pass a
// fixed text naming the gate that parked the shard (quorum, throttled
// candidates); the decider chain's own Reason is not copied into it.
func (t *RoutingTable) Ignore(s ShardRouting, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ignored = append(t.ignored, IgnoredEntry{Routing: s, Reason: reason})
}

// AssignmentsFor returns a copy of every assignment currently recorded for
// a shard id.
func (t *RoutingTable) AssignmentsFor(id ShardID) []Assignment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Assignment, len(t.assignments[id]))
	copy(out, t.assignments[id])
	return out
}

// Primary returns the currently assigned primary for a shard id, if any.
func (t *RoutingTable) Primary(id ShardID) (Assignment, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, a := range t.assignments[id] {
		if a.Primary {
			return a, true
		}
	}
	return Assignment{}, false
}

// Ignored returns a copy of every ignored-unassigned entry recorded so far.
func (t *RoutingTable) Ignored() []IgnoredEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]IgnoredEntry, len(t.ignored))
	copy(out, t.ignored)
	return out
}

// ResetIgnored clears the ignored-unassigned set. Called at the start of
// each reroute: "don't try again this reroute" only holds for the reroute
// that produced the entry.
func (t *RoutingTable) ResetIgnored() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ignored = nil
}
