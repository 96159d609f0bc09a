package allocator

// Decider is the allocator's only polymorphic input: a capability from
// (shard, candidate node, allocation context) to a verdict. No inheritance
// is needed — a chain of Deciders composes into a single Decider.
type Decider func(s ShardRouting, n Node, a *Allocation) Decision

// DeciderChain evaluates its Deciders in order. It stops at the first
// non-YES verdict (the caller gets the concrete reason), and returns YES
// only if every decider voted YES. This is the composed-capability shape
// described for individual deciders, applied to the chain itself, so a
// DeciderChain can be nested inside another chain.
type DeciderChain struct {
	Deciders []Decider
}

// NewDeciderChain builds a chain from the given deciders, evaluated in
// order.
func NewDeciderChain(deciders ...Decider) *DeciderChain {
	return &DeciderChain{Deciders: deciders}
}

// CanAllocate runs the chain and returns the first non-YES decision, or a
// YES decision if every decider agreed.
func (c *DeciderChain) CanAllocate(s ShardRouting, n Node, a *Allocation) Decision {
	for _, d := range c.Deciders {
		dec := d(s, n, a)
		if dec.Verdict != Yes {
			return dec
		}
	}
	return Decision{Verdict: Yes, Reason: "all deciders agreed"}
}

// SameShardDecider votes NO when the candidate node already hosts any copy
// (primary or replica) of the shard — there is no point placing a second
// copy of the same shard on the same node.
func SameShardDecider(s ShardRouting, n Node, a *Allocation) Decision {
	for _, assigned := range a.RoutingTable.AssignmentsFor(s.ShardID) {
		if assigned.Node == n.ID {
			return Decision{Verdict: No, Reason: "node already hosts a copy of this shard"}
		}
	}
	return Decision{Verdict: Yes, Reason: "node has no existing copy"}
}

// DiskThresholdDecider throttles allocation to a node whose last-reported
// disk usage ratio is at or above watermark. Usage is supplied by the
// caller via Allocation.DiskUsage; this decider does not measure anything
// itself, matching the spec's framing of deciders as pluggable policy that
// consumes allocation context rather than performing I/O.
func DiskThresholdDecider(watermark float64) Decider {
	return func(s ShardRouting, n Node, a *Allocation) Decision {
		usage, ok := a.DiskUsage[n.ID]
		if !ok {
			return Decision{Verdict: Yes, Reason: "no disk usage reported"}
		}
		if usage >= watermark {
			return Decision{Verdict: Throttle, Reason: "disk usage above watermark"}
		}
		return Decision{Verdict: Yes, Reason: "disk usage below watermark"}
	}
}

// ReplicaAfterPrimaryDecider votes NO for a replica whose primary has not
// yet started anywhere: a replica cannot reuse a store that does not exist
// yet, and placing it before the primary only wastes a recovery attempt.
func ReplicaAfterPrimaryDecider(s ShardRouting, n Node, a *Allocation) Decision {
	if s.Primary {
		return Decision{Verdict: Yes, Reason: "not a replica"}
	}
	if _, ok := a.RoutingTable.Primary(s.ShardID); !ok {
		return Decision{Verdict: No, Reason: "primary not yet started"}
	}
	return Decision{Verdict: Yes, Reason: "primary already started"}
}
