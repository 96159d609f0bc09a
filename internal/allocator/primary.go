package allocator

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slices"
)

// candidateVersion pairs a node with its cached on-disk version, used while
// sorting primary placement candidates.
type candidateVersion struct {
	node    Node
	version int64
}

// PlacePrimary runs the primary placement policy (§4.2) for one unassigned
// primary shard. It mutates a.RoutingTable directly (Assign or Ignore) and
// returns whether it made any change.
func PlacePrimary(ctx context.Context, a *Allocation, s ShardRouting) bool {
	meta := a.IndexMeta(s.ShardID.Index)
	settings := meta.Settings

	liveNodes := a.DataNodes()
	states := a.StateCache.Fetch(ctx, a.Transport, a.Logger, s.ShardID, meta.UUID, liveNodes, settings.ListTimeout())

	// Step 2 — filter ignored nodes.
	filtered := make(map[NodeID]int64, len(states))
	nodeByID := make(map[NodeID]Node, len(liveNodes))
	for _, n := range liveNodes {
		nodeByID[n.ID] = n
	}
	for id, v := range states {
		if a.ShouldIgnore(s, id) {
			continue
		}
		filtered[id] = v
	}

	sharedFS := settings.SharedFilesystem() && settings.RecoverOnAnyNode()

	var candidates []candidateVersion
	var highestVersion int64 = -1
	var foundCount int

	if sharedFS {
		for id, v := range filtered {
			n, ok := nodeByID[id]
			if !ok {
				continue
			}
			candidates = append(candidates, candidateVersion{node: n, version: v})
			if v > highestVersion {
				highestVersion = v
			}
		}
		foundCount = len(candidates)
	} else {
		for _, v := range filtered {
			if v == -1 {
				continue
			}
			foundCount++
			if v > highestVersion {
				highestVersion = v
			}
		}
		if highestVersion >= 0 {
			for id, v := range filtered {
				if v == highestVersion {
					n, ok := nodeByID[id]
					if !ok {
						continue
					}
					candidates = append(candidates, candidateVersion{node: n, version: v})
				}
			}
		}
	}

	// Step 4 — quorum gate.
	if s.RestoreSource == nil {
		required, recognized := RequiredCopies(settings.InitialShardsMode(), meta.NumReplicas)
		if !recognized {
			err := errors.Wrapf(ErrUnparseableInitialShards, "shard %s: value %q, defaulting to 1", s.ShardID, settings.InitialShardsMode())
			a.Logger.Warning("%v", err)
		}
		if foundCount < required {
			a.RoutingTable.Ignore(s, "quorum not met: found fewer on-disk copies than required")
			return false
		}
	}

	if len(candidates) == 0 {
		a.Logger.Debug("%v", errors.Wrapf(ErrNoCandidates, "shard %s: primary placement", s.ShardID))
		return false
	}

	// Step 5 — sort candidates by version descending, ties broken by
	// ascending NodeID for determinism (§9).
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].version != candidates[j].version {
			return candidates[i].version > candidates[j].version
		}
		return candidates[i].node.ID < candidates[j].node.ID
	})

	// Step 6 — consult deciders; first YES wins.
	var throttled, rejected []Node
	for _, c := range candidates {
		dec := a.Deciders.CanAllocate(s, c.node, a)
		switch dec.Verdict {
		case Yes:
			a.RoutingTable.Assign(Assignment{ShardID: s.ShardID, Node: c.node.ID, Primary: true, Version: highestVersion})
			return true
		case Throttle:
			throttled = append(throttled, c.node)
		case No:
			rejected = append(rejected, c.node)
		}
	}

	// Step 7 — resolution when no YES exists.
	if len(throttled) > 0 {
		a.RoutingTable.Ignore(s, "all candidates throttled")
		return false
	}
	if len(rejected) > 0 {
		slices.SortFunc(rejected, func(a, b Node) int {
			if a.ID < b.ID {
				return -1
			}
			if a.ID > b.ID {
				return 1
			}
			return 0
		})
		forced := rejected[0]
		version := filtered[forced.ID]
		a.RoutingTable.Assign(Assignment{ShardID: s.ShardID, Node: forced.ID, Primary: true, Version: version})
		a.Logger.Info("shard %s: force-assigned primary to NO-decided node %s", s.ShardID, forced.ID)
		return true
	}

	return false
}
