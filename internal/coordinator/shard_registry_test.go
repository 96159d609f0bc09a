package coordinator

import (
	"fmt"
	"sync"
	"testing"
)

func TestNewShardRegistryStartsEmpty(t *testing.T) {
	registry := NewShardRegistry(4)
	if registry == nil {
		t.Fatal("expected registry instance, got nil")
	}
	if len(registry.GetAllAssignments()) != 0 {
		t.Errorf("expected 0 assignments initially, got %d", len(registry.GetAllAssignments()))
	}
}

func TestAssignShard(t *testing.T) {
	t.Run("assign shard to node", func(t *testing.T) {
		registry := NewShardRegistry(4)

		if err := registry.AssignShard(0, "node1", true); err != nil {
			t.Fatalf("failed to assign shard: %v", err)
		}

		assignments := registry.GetAllAssignments()
		if len(assignments) != 1 {
			t.Fatalf("expected 1 assignment, got %d", len(assignments))
		}
		a := assignments[0]
		if a.ShardID != 0 || a.NodeID != "node1" || !a.IsPrimary {
			t.Errorf("unexpected assignment: %+v", a)
		}
	})

	t.Run("reassign shard to different node overwrites", func(t *testing.T) {
		registry := NewShardRegistry(4)
		registry.AssignShard(0, "node1", true)
		registry.AssignShard(0, "node2", true)

		assignments := registry.GetAllAssignments()
		if len(assignments) != 1 || assignments[0].NodeID != "node2" {
			t.Errorf("expected reassignment to replace the prior entry, got %+v", assignments)
		}
	})

	t.Run("rejects shard ID outside range", func(t *testing.T) {
		registry := NewShardRegistry(4)
		if err := registry.AssignShard(5, "node1", true); err == nil {
			t.Error("expected error for shard ID >= numShards")
		}
		if err := registry.AssignShard(-1, "node1", true); err == nil {
			t.Error("expected error for negative shard ID")
		}
	})

	t.Run("rejects empty node ID", func(t *testing.T) {
		registry := NewShardRegistry(4)
		if err := registry.AssignShard(0, "", true); err == nil {
			t.Error("expected error for empty node ID")
		}
	})
}

func TestGetAllAssignmentsReturnsCopies(t *testing.T) {
	registry := NewShardRegistry(4)
	registry.AssignShard(0, "node1", true)
	registry.AssignShard(1, "node2", true)
	registry.AssignShard(2, "node1", false)

	assignments := registry.GetAllAssignments()
	if len(assignments) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(assignments))
	}

	found := make(map[int]bool)
	for _, a := range assignments {
		found[a.ShardID] = true
	}
	for _, shardID := range []int{0, 1, 2} {
		if !found[shardID] {
			t.Errorf("shard %d not found in assignments", shardID)
		}
	}

	for _, a := range assignments {
		a.NodeID = "mutated"
	}
	for _, a := range registry.GetAllAssignments() {
		if a.NodeID == "mutated" {
			t.Error("GetAllAssignments must return copies, not pointers into internal state")
		}
	}
}

func TestShardRegistryConcurrentAssignAndRead(t *testing.T) {
	registry := NewShardRegistry(100)

	var wg sync.WaitGroup
	const numGoroutines = 50

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			shardID := id % 100
			nodeID := fmt.Sprintf("node%d", id%10)
			registry.AssignShard(shardID, nodeID, true)
		}(i)
	}
	wg.Wait()

	if len(registry.GetAllAssignments()) == 0 {
		t.Error("expected some assignments after concurrent writes")
	}

	var readers sync.WaitGroup
	const numReaders = 100
	readers.Add(numReaders)
	for i := 0; i < numReaders; i++ {
		go func() {
			defer readers.Done()
			registry.GetAllAssignments()
		}()
	}
	readers.Wait()
}
