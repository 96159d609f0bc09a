package allocator

import "testing"

func TestSameShardDeciderRejectsExistingHolder(t *testing.T) {
	a := NewAllocation()
	shard := ShardID{Index: "idx", Shard: 0}
	a.RoutingTable.Assign(Assignment{ShardID: shard, Node: "A", Primary: true})

	s := ShardRouting{ShardID: shard}
	dec := SameShardDecider(s, Node{ID: "A"}, a)
	if dec.Verdict != No {
		t.Errorf("expected NO for node already hosting the shard, got %v", dec.Verdict)
	}

	dec = SameShardDecider(s, Node{ID: "B"}, a)
	if dec.Verdict != Yes {
		t.Errorf("expected YES for a node with no existing copy, got %v", dec.Verdict)
	}
}

func TestDiskThresholdDecider(t *testing.T) {
	a := NewAllocation()
	a.DiskUsage["A"] = 0.97
	a.DiskUsage["B"] = 0.10

	decider := DiskThresholdDecider(0.9)
	s := ShardRouting{}

	if got := decider(s, Node{ID: "A"}, a).Verdict; got != Throttle {
		t.Errorf("expected THROTTLE above watermark, got %v", got)
	}
	if got := decider(s, Node{ID: "B"}, a).Verdict; got != Yes {
		t.Errorf("expected YES below watermark, got %v", got)
	}
	if got := decider(s, Node{ID: "C"}, a).Verdict; got != Yes {
		t.Errorf("expected YES when no usage reported, got %v", got)
	}
}

func TestReplicaAfterPrimaryDecider(t *testing.T) {
	a := NewAllocation()
	shard := ShardID{Index: "idx", Shard: 0}

	replica := ShardRouting{ShardID: shard, Primary: false}
	if got := ReplicaAfterPrimaryDecider(replica, Node{ID: "B"}, a).Verdict; got != No {
		t.Errorf("expected NO before primary starts, got %v", got)
	}

	a.RoutingTable.Assign(Assignment{ShardID: shard, Node: "A", Primary: true})
	if got := ReplicaAfterPrimaryDecider(replica, Node{ID: "B"}, a).Verdict; got != Yes {
		t.Errorf("expected YES once primary has started, got %v", got)
	}

	primary := ShardRouting{ShardID: shard, Primary: true}
	if got := ReplicaAfterPrimaryDecider(primary, Node{ID: "A"}, a).Verdict; got != Yes {
		t.Errorf("expected YES for a primary routing entry regardless of state, got %v", got)
	}
}

func TestDeciderChainStopsAtFirstNonYes(t *testing.T) {
	calls := 0
	first := func(ShardRouting, Node, *Allocation) Decision {
		calls++
		return Decision{Verdict: No, Reason: "first rejects"}
	}
	second := func(ShardRouting, Node, *Allocation) Decision {
		calls++
		return Decision{Verdict: Yes, Reason: "never reached"}
	}

	chain := NewDeciderChain(first, second)
	dec := chain.CanAllocate(ShardRouting{}, Node{}, NewAllocation())
	if dec.Verdict != No {
		t.Errorf("expected chain to stop at first NO, got %v", dec.Verdict)
	}
	if calls != 1 {
		t.Errorf("expected only the first decider to run, got %d calls", calls)
	}
}
