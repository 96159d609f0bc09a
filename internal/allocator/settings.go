package allocator

import (
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// Settings is the hierarchical key-value configuration the allocator reads
// settings from. Keys follow the dotted names in the settings table; index
// settings and cluster settings share the same shape so an index's Settings
// can simply fall back to the cluster's.
type Settings map[string]string

// DefaultListTimeout is used when neither gateway.list_timeout nor its
// legacy alias is set.
const DefaultListTimeout = 30 * time.Second

// DefaultInitialShards is used when neither gateway.initial_shards nor its
// legacy alias is set.
const DefaultInitialShards = "quorum"

// ListTimeout resolves the fan-out timeout, first-found-wins across the
// modern key and its legacy alias.
func (s Settings) ListTimeout() time.Duration {
	if v, ok := s.firstOf("gateway.list_timeout", "gateway.local.list_timeout"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return DefaultListTimeout
}

// InitialShardsMode resolves the quorum mode setting for an index,
// preferring the per-index override, then the cluster-level keys, then the
// spec default.
func (s Settings) InitialShardsMode() string {
	if v, ok := s.firstOf("index.recovery.initial_shards"); ok {
		return v
	}
	if v, ok := s.firstOf("gateway.initial_shards", "gateway.local.initial_shards"); ok {
		return v
	}
	return DefaultInitialShards
}

// SharedFilesystem reports whether index.shared_filesystem is set to true.
func (s Settings) SharedFilesystem() bool {
	return s.boolOf("index.shared_filesystem")
}

// RecoverOnAnyNode reports whether index.shared_filesystem.recover_on_any_node
// is set to true.
func (s Settings) RecoverOnAnyNode() bool {
	return s.boolOf("index.shared_filesystem.recover_on_any_node")
}

func (s Settings) firstOf(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := s[k]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func (s Settings) boolOf(key string) bool {
	v, ok := s[key]
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// RequiredCopies computes the `required` on-disk-copy count from an
// initial_shards mode string and a replica count, per the table in §4.2
// Step 4. The returned bool is false only when the mode string is an
// unparseable integer literal and not one of the recognized keywords; the
// caller should log a warning and treat required as 1 in that case, which
// this function already does, matching §7 category 2.
func RequiredCopies(mode string, numReplicas int) (required int, recognized bool) {
	switch mode {
	case "quorum":
		if numReplicas+1 >= 3 {
			return (1+numReplicas)/2 + 1, true
		}
		return 1, true
	case "quorum-1", "half":
		if numReplicas >= 3 {
			return (1 + numReplicas) / 2, true
		}
		return 1, true
	case "one":
		return 1, true
	case "full", "all":
		return numReplicas + 1, true
	case "full-1", "all-1":
		if numReplicas >= 2 {
			return numReplicas, true
		}
		return 1, true
	default:
		if n, err := strconv.Atoi(mode); err == nil {
			return n, true
		}
		return 1, false
	}
}

// ErrUnparseableInitialShards is surfaced (wrapped with the offending value)
// only for logging; RequiredCopies already applies the §7 fallback so
// callers are never forced to handle it as a hard error.
var ErrUnparseableInitialShards = errors.New("allocator: unparseable initial_shards setting")
