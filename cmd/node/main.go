// Package main implements the data node service: the allocator's fan-out
// RPC target and the host for the shards it places here.
//
// The node is a worker in the cluster, responsible for:
//   - Serving the two internal fan-out RPCs the allocator's coordinator
//     process calls during a reroute (list-started, list-store)
//   - Hosting client-facing key-value operations against whichever locally
//     created shard owns a given key
//   - Registering with the coordinator and answering health checks
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│                  Node                    │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                               │
//	│    /health                  - liveness   │
//	│    /internal/shards/list-started         │
//	│    /internal/shards/list-store           │
//	│    /data/{key}               - GET/PUT/DELETE │
//	│    /info                    - diagnostics │
//	├─────────────────────────────────────────┤
//	│  Components:                             │
//	│    Node          - runtime state         │
//	│    shards map    - active shards         │
//	└─────────────────────────────────────────┘
//
// Configuration:
//   - NODE_ID: Unique node identifier (required)
//   - NODE_LISTEN: Listen address (default: ":8081")
//   - NODE_ADDR: Public address for coordinator (default: "http://127.0.0.1:8081")
//   - COORDINATOR_ADDR: Coordinator URL (required)
//   - NODE_NUM_SHARDS: shard count for the client-facing default index (default: 8)
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/cleberar38/shardalloc/internal/allocator"
	"github.com/cleberar38/shardalloc/internal/cluster"
	"github.com/cleberar38/shardalloc/internal/logging"
	"github.com/cleberar38/shardalloc/internal/shard"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

// defaultIndex names the implicit single index the client-facing /data/{key}
// surface operates against; the allocator itself is index-agnostic and this
// node would host shards of any number of indices declared through the
// coordinator's fan-out RPCs, but the key-value surface in SPEC_FULL.md §6
// carries no index parameter, so one flat keyspace is all it needs.
const defaultIndex = "default"

// Node represents a storage node in the distributed cluster, managing
// shards for any number of indices. Shards reached through the fan-out RPCs
// are looked up, never created, by the exact (index, shard number) pair the
// coordinator asks about; shards reached through the client data surface
// are created on demand within defaultIndex, keyed by a consistent hash of
// the request key.
type Node struct {
	shards    map[string]*shard.Shard
	ID        string
	numShards int
	mu        sync.RWMutex
}

// NewNode creates a new node instance ready to manage shards.
func NewNode(id string, numShards int) *Node {
	return &Node{
		ID:        id,
		shards:    make(map[string]*shard.Shard),
		numShards: numShards,
	}
}

func shardKey(index string, num int) string {
	return allocator.ShardID{Index: index, Shard: num}.String()
}

// GetShard looks up a shard by (index, number) without creating it.
func (n *Node) GetShard(index string, num int) *shard.Shard {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.shards[shardKey(index, num)]
}

// GetOrCreateShard returns the shard for (index, number), creating an empty
// primary shard on first reference. Used only by the client data surface:
// the fan-out RPCs must never fabricate a shard just because they were
// asked about one, since an absent shard is itself the signal (version -1,
// allocated false) the allocator's placement policies depend on.
func (n *Node) GetOrCreateShard(index string, num int) *shard.Shard {
	key := shardKey(index, num)

	n.mu.RLock()
	s, ok := n.shards[key]
	n.mu.RUnlock()
	if ok {
		return s
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if s, ok := n.shards[key]; ok {
		return s
	}
	s = shard.NewShard(num, true)
	n.shards[key] = s
	return s
}

// AllShards returns a copy of every shard currently hosted, for /info.
func (n *Node) AllShards() []*shard.Shard {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*shard.Shard, 0, len(n.shards))
	for _, s := range n.shards {
		out = append(out, s)
	}
	return out
}

// shardForKey maps a client key to a shard number within defaultIndex using
// the same FNV-1a consistent-hash scheme shard.Shard.OwnsKey already uses,
// so independent nodes agree on ownership without consulting each other.
func shardForKey(key string, numShards int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(numShards))
}

func main() {
	nodeID := mustGetenv("NODE_ID")
	listen := getenv("NODE_LISTEN", ":8081")
	public := getenv("NODE_ADDR", "http://127.0.0.1:8081")
	coord := mustGetenv("COORDINATOR_ADDR")
	numShards, err := strconv.Atoi(getenv("NODE_NUM_SHARDS", "8"))
	if err != nil || numShards <= 0 {
		numShards = 8
	}

	logger := logging.New("node")
	node := NewNode(nodeID, numShards)
	logger.Info("node[%s] initialized with %d default-index shard slots", nodeID, numShards)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/internal/shards/list-started", node.handleListStarted)
	mux.HandleFunc("/internal/shards/list-store", node.handleListStore)
	mux.HandleFunc("/data/", node.handleData)
	mux.HandleFunc("/info", node.handleInfo)

	s := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("node[%s] listening on %s (public %s)", nodeID, listen, public)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	register(context.Background(), coord, nodeID, public)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Error("shutdown error: %v", err)
	}
	logger.Info("node stopped")
}

// register attempts to register the node with the coordinator at
// POST /cluster/nodes, retrying on failure to handle coordinator startup
// delays or temporary network issues.
func register(ctx context.Context, coord, id, addr string) {
	body := cluster.RegisterRequest{Node: cluster.NodeInfo{ID: id, Addr: addr}}
	var lastErr error

	for i := 0; i < 10; i++ {
		lastErr = cluster.PostJSON(ctx, coord+"/cluster/nodes", body, nil)
		if lastErr == nil {
			log.Printf("registered with coordinator @ %s", coord)
			return
		}
		log.Printf("register retry %d: %v", i+1, lastErr)
		time.Sleep(400 * time.Millisecond)
	}

	logFatal("failed to register with coordinator: %v", lastErr)
}

type listStartedRequest struct {
	ShardID   string `json:"shard_id"`
	IndexUUID string `json:"index_uuid"`
}

type listStartedResponse struct {
	Version int64 `json:"version"`
}

// handleListStarted answers the allocator's state-cache fan-out: the
// version of the on-disk copy this node holds for a shard, or -1 if it
// holds none. It must never create the shard being asked about.
func (n *Node) handleListStarted(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req listStartedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	index, num, err := parseShardID(req.ShardID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	version := int64(-1)
	if s := n.GetShard(index, num); s != nil {
		version = s.Version()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(listStartedResponse{Version: version})
}

type listStoreRequest struct {
	ShardID            string `json:"shard_id"`
	IncludeUnallocated bool   `json:"include_unallocated"`
}

type listStoreResponse struct {
	Allocated bool                     `json:"allocated"`
	SyncID    string                   `json:"sync_id"`
	Files     []allocator.FileMetadata `json:"files"`
}

// handleListStore answers the allocator's store-cache fan-out: a content
// signature of this node's on-disk copy, used for replica store-reuse
// scoring. The sync id is a hash over the whole sorted key/value set, so
// two nodes holding byte-identical stores always compute the same sync id
// and take the fast path in allocator.reuseScore.
func (n *Node) handleListStore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req listStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	index, num, err := parseShardID(req.ShardID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s := n.GetShard(index, num)
	if s == nil {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(listStoreResponse{Allocated: false})
		return
	}

	syncID, files := storeSignature(s)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(listStoreResponse{Allocated: true, SyncID: syncID, Files: files})
}

// storeSignature builds a deterministic sync id and per-key file listing
// from a shard's current contents. The per-key checksum and length come
// straight from the store's own metadata, computed once at write time
// rather than rehashed on every list-store call; this just sorts keys and
// folds (key, checksum) pairs into a running hash so two nodes holding
// byte-identical stores always compute the same sync id.
func storeSignature(s *shard.Shard) (syncID string, files []allocator.FileMetadata) {
	meta := s.Metadata()
	keys := make([]string, 0, len(meta))
	for key := range meta {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	sig := fnv.New64a()
	for _, key := range keys {
		md := meta[key]
		files = append(files, allocator.FileMetadata{
			Name:     key,
			Length:   int64(md.Length),
			Checksum: md.Checksum,
		})

		sig.Write([]byte(key))
		sig.Write([]byte(md.Checksum))
	}
	return strconv.FormatUint(sig.Sum64(), 16), files
}

func parseShardID(raw string) (index string, num int, err error) {
	idx := strings.LastIndex(raw, "/")
	if idx < 0 {
		return "", 0, errors.Newf("invalid shard id %q", raw)
	}
	index = raw[:idx]
	num, err = strconv.Atoi(raw[idx+1:])
	if err != nil {
		return "", 0, errors.Wrapf(err, "invalid shard number in %q", raw)
	}
	return index, num, nil
}

// handleData serves GET/PUT/DELETE /data/{key} against whichever
// locally-hosted shard of defaultIndex owns the key, creating that shard on
// first reference.
func (n *Node) handleData(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/data/")
	if key == "" {
		http.Error(w, "key required", http.StatusBadRequest)
		return
	}

	s := n.GetOrCreateShard(defaultIndex, shardForKey(key, n.numShards))

	switch r.Method {
	case http.MethodGet:
		value, err := s.Get(key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(value)
	case http.MethodPut:
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r.Body); err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		if err := s.Put(key, buf.Bytes()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := s.Delete(key); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleInfo returns diagnostic information about the node and every shard
// it currently hosts.
func (n *Node) handleInfo(w http.ResponseWriter, _ *http.Request) {
	shards := n.AllShards()
	infos := make([]shard.ShardInfo, 0, len(shards))
	for _, s := range shards {
		infos = append(infos, s.Info())
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		NodeID string            `json:"node_id"`
		Shards []shard.ShardInfo `json:"shards"`
		Count  int               `json:"shard_count"`
	}{NodeID: n.ID, Shards: infos, Count: len(infos)})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustGetenv(k string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	logFatal("missing env %s", k)
	return ""
}
