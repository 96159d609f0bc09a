package allocator

import "fmt"

// NodeID is an opaque, stable identifier for a cluster node. It is stable
// across reconnects until the node is removed from the cluster.
type NodeID string

// Node is a cluster member. Only nodes with DataNode set participate in
// allocation; the allocator never places a shard on a non-data node.
type Node struct {
	ID       NodeID
	Name     string
	Addr     string
	DataNode bool
}

// ShardID identifies a single shard copy's slot: an index name plus a shard
// number. Two ShardIDs are equal iff both fields match.
type ShardID struct {
	Index string
	Shard int
}

func (s ShardID) String() string {
	return fmt.Sprintf("%s/%d", s.Index, s.Shard)
}

// RestoreSource marks a shard as being restored from a snapshot repository
// rather than recovered from an existing on-disk copy. Its presence changes
// the primary placement quorum gate (see ShardRouting.RestoreSource).
type RestoreSource struct {
	Repository string
	SnapshotID string
}

// ShardRouting describes one unassigned shard copy awaiting placement.
type ShardRouting struct {
	ShardID ShardID
	Primary bool

	// RestoreSource is non-nil if this copy will be restored from a
	// repository rather than recovered from a live node. A non-nil value
	// bypasses the primary quorum gate entirely (§4.2 Step 4).
	RestoreSource *RestoreSource

	// PrimaryAllocatedPostAPI is false only for a primary that has never
	// held data in this cluster; such a shard is ineligible for the
	// reroute driver's primary phase.
	PrimaryAllocatedPostAPI bool
}

// IndexMetadata carries the per-index settings the allocator consults.
type IndexMetadata struct {
	UUID         string
	NumReplicas  int
	Settings     Settings
}

// NodeShardState is the version a node reports for a given shard: -1 means
// no on-disk copy, >=0 is the stored allocation-id generation. A shared
// filesystem index reports 0 even for a node that never opened the shard.
type NodeShardState struct {
	Version int64
}

// FileMetadata describes one file in a Lucene-style on-disk store, enough
// to detect byte-identical copies without transferring file contents.
type FileMetadata struct {
	Name     string
	Length   int64
	Checksum string
}

// StoreFilesMetadata is what a node reports about its on-disk copy of a
// shard for replica store-reuse scoring.
type StoreFilesMetadata struct {
	Allocated bool
	SyncID    string // empty means "no sync-id reported"
	Files     []FileMetadata
}

// Verdict is the tri-state outcome of a decider's vote.
type Verdict int

const (
	Yes Verdict = iota
	No
	Throttle
)

func (v Verdict) String() string {
	switch v {
	case Yes:
		return "YES"
	case No:
		return "NO"
	case Throttle:
		return "THROTTLE"
	default:
		return "UNKNOWN"
	}
}

// Decision is a decider's verdict plus the human-readable reason behind it.
type Decision struct {
	Verdict Verdict
	Reason  string
}
