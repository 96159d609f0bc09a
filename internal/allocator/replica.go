package allocator

import (
	"context"

	"github.com/cockroachdb/errors"
)

// PlaceReplica runs the replica placement policy (§4.3) for one unassigned
// replica shard. It mutates a.RoutingTable directly and returns whether it
// made any change.
func PlaceReplica(ctx context.Context, a *Allocation, s ShardRouting) bool {
	liveNodes := a.DataNodes()

	// Step 1 — early exit: skip the expensive fan-out if no node would be
	// accepted anyway.
	anyYes := false
	for _, n := range liveNodes {
		if a.Deciders.CanAllocate(s, n, a).Verdict == Yes {
			anyYes = true
			break
		}
	}
	if !anyYes {
		return false
	}

	meta := a.IndexMeta(s.ShardID.Index)
	stores := a.StoreCache.Fetch(ctx, a.Transport, a.Logger, s.ShardID, true, liveNodes, meta.Settings.ListTimeout())

	// Step 3 — find the active primary's store.
	primaryAssignment, ok := a.RoutingTable.Primary(s.ShardID)
	if !ok {
		return false
	}
	primaryStore, ok := stores[primaryAssignment.Node]
	if !ok || primaryStore == nil {
		return false
	}

	// Step 4 — score candidates, walking live nodes in order so that a tie
	// goes to the first such node.
	var bestNode Node
	var bestScore int64 = -1
	haveBest := false

	for _, n := range liveNodes {
		meta, ok := stores[n.ID]
		if !ok || meta == nil || meta.Allocated {
			continue
		}
		dec := a.Deciders.CanAllocate(s, n, a)
		if dec.Verdict == No {
			continue
		}

		score := reuseScore(primaryStore, meta)
		if !haveBest || score > bestScore {
			bestNode = n
			bestScore = score
			haveBest = true
		}
	}

	if !haveBest {
		a.Logger.Debug("%v", errors.Wrapf(ErrNoCandidates, "shard %s: replica placement", s.ShardID))
		return false
	}

	// Step 5 — re-ask the deciders for the chosen candidate.
	dec := a.Deciders.CanAllocate(s, bestNode, a)
	switch dec.Verdict {
	case Throttle:
		a.RoutingTable.Ignore(s, "best replica candidate throttled")
		return false
	case Yes:
		a.RoutingTable.Assign(Assignment{ShardID: s.ShardID, Node: bestNode.ID, Primary: false})
		return true
	default:
		return false
	}
}

// reuseScore computes the candidate's store-reuse score against the
// primary's store: +infinity (represented as 1<<62, which no
// real byte-sum will ever reach) on a matching sync-id, else the summed
// length of every byte-identical file (§4.3 Step 4).
const infiniteReuseScore = int64(1) << 62

func reuseScore(primary, candidate *StoreFilesMetadata) int64 {
	if primary.SyncID != "" && candidate.SyncID == primary.SyncID {
		return infiniteReuseScore
	}

	primaryFiles := make(map[string]FileMetadata, len(primary.Files))
	for _, f := range primary.Files {
		primaryFiles[f.Name] = f
	}

	var score int64
	for _, f := range candidate.Files {
		pf, ok := primaryFiles[f.Name]
		if !ok {
			continue
		}
		if pf.Length == f.Length && pf.Checksum == f.Checksum {
			score += f.Length
		}
	}
	return score
}
