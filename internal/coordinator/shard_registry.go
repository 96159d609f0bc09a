// See doc.go for package documentation.
package coordinator

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// ShardAssignment records that a shard copy currently lives on a node,
// mirroring one entry of the allocator's own routing table.
type ShardAssignment struct {
	NodeID    string
	IsPrimary bool
	ShardID   int
}

// ShardRegistry is a read-optimized mirror of the allocator's placement
// decisions, kept separate from allocator.RoutingTable so callers observing
// the cluster (GET /cluster/routing) don't need to walk the allocator's
// internal state directly.
type ShardRegistry struct {
	assignments map[int]*ShardAssignment
	mu          sync.RWMutex
	numShards   int
}

// NewShardRegistry creates a registry bounded to numShards slots.
func NewShardRegistry(numShards int) *ShardRegistry {
	return &ShardRegistry{
		assignments: make(map[int]*ShardAssignment),
		numShards:   numShards,
	}
}

// AssignShard records that shardID is now placed on nodeID, overwriting
// whatever was previously mirrored for that shard.
func (r *ShardRegistry) AssignShard(shardID int, nodeID string, isPrimary bool) error {
	if shardID < 0 || shardID >= r.numShards {
		return errors.Newf("invalid shard ID %d, must be in range [0, %d)", shardID, r.numShards)
	}
	if nodeID == "" {
		return errors.New("node ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.assignments[shardID] = &ShardAssignment{
		ShardID:   shardID,
		NodeID:    nodeID,
		IsPrimary: isPrimary,
	}

	return nil
}

// GetAllAssignments returns a copy of every mirrored assignment, in no
// particular order.
func (r *ShardRegistry) GetAllAssignments() []*ShardAssignment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	assignments := make([]*ShardAssignment, 0, len(r.assignments))
	for _, assignment := range r.assignments {
		a := *assignment
		assignments = append(assignments, &a)
	}

	return assignments
}
