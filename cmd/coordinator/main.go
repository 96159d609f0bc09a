// Package main implements the coordinator process: the allocator's control
// plane. It tracks cluster membership, accepts index/shard declarations,
// runs the reroute driver on a timer and on membership changes, and exposes
// the routing table to operators and to data nodes reporting shard
// lifecycle events.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│               coordinator                │
//	├─────────────────────────────────────────┤
//	│  allocator.Allocation  - placement state │
//	│  transport.Client      - fan-out RPC     │
//	│  coordinator.HealthMonitor - liveness    │
//	│  coordinator.ShardRegistry - key mirror  │
//	└─────────────────────────────────────────┘
//
// Configuration:
//   - COORDINATOR_ADDR: listen address (default ":8080")
//   - ALLOCATOR_CONFIG: path to the allocator settings YAML (default "./allocator.yaml")
//   - ALLOCATOR_DISK_WATERMARK: DiskThresholdDecider watermark (default "0.85")
//   - ALLOCATOR_REROUTE_INTERVAL: periodic reroute period (default "10s")
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/cleberar38/shardalloc/internal/allocator"
	"github.com/cleberar38/shardalloc/internal/cluster"
	"github.com/cleberar38/shardalloc/internal/config"
	"github.com/cleberar38/shardalloc/internal/coordinator"
	"github.com/cleberar38/shardalloc/internal/logging"
	"github.com/cleberar38/shardalloc/internal/transport"
)

func main() {
	addr := config.Getenv("COORDINATOR_ADDR", ":8080")
	rerouteEvery := parseDurationOr(config.Getenv("ALLOCATOR_REROUTE_INTERVAL", "10s"), 10*time.Second)

	settings, err := config.Load()
	if err != nil {
		logging.New("coordinator").Error("loading settings: %v", err)
		os.Exit(1)
	}

	srv := newServer(settings)

	mux := http.NewServeMux()
	mux.HandleFunc("/cluster/nodes", srv.handleNodes)
	mux.HandleFunc("/cluster/shards", srv.handleDeclareShards)
	mux.HandleFunc("/cluster/routing", srv.handleRouting)
	mux.HandleFunc("/cluster/shards/", srv.handleShardLifecycle)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancelHealth := context.WithCancel(context.Background())
	go srv.health.Start(ctx, srv.nodeInfos)

	stopReroute := make(chan struct{})
	go srv.rerouteLoop(rerouteEvery, stopReroute)

	go func() {
		srv.logger.Info("coordinator listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srv.logger.Error("listen: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	close(stopReroute)
	cancelHealth()
	srv.health.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	srv.logger.Info("coordinator stopped")
}

// server holds the coordinator's control-plane state: the allocator context
// that the reroute driver runs against, the set of shards still awaiting
// placement, and the ambient node-health/key-routing helpers that are a
// separate concern from allocation but are part of running a coordinator
// process.
type server struct {
	// rerouteMu serializes reroutes: SPEC_FULL.md §5 requires at most one
	// reroute in flight at a time, whether triggered by the timer or by a
	// registration event.
	rerouteMu sync.Mutex

	alloc  *allocator.Allocation
	logger *logging.Logger

	health   *coordinator.HealthMonitor
	registry *coordinator.ShardRegistry

	nodesMu sync.RWMutex
	nodes   []cluster.NodeInfo

	unassignedMu sync.Mutex
	unassigned   []allocator.ShardRouting

	listTimeout time.Duration
}

func newServer(settings allocator.Settings) *server {
	logger := logging.New("coordinator")
	watermark, err := strconv.ParseFloat(config.Getenv("ALLOCATOR_DISK_WATERMARK", "0.85"), 64)
	if err != nil {
		watermark = 0.85
	}

	alloc := allocator.NewAllocation()
	alloc.Logger = logger
	alloc.Transport = transport.New()
	alloc.Deciders = allocator.NewDeciderChain(
		allocator.SameShardDecider,
		allocator.DiskThresholdDecider(watermark),
		allocator.ReplicaAfterPrimaryDecider,
	)

	health := coordinator.NewHealthMonitor(5 * time.Second)

	registrySize, err := strconv.Atoi(config.Getenv("ALLOCATOR_REGISTRY_SHARDS", "256"))
	if err != nil || registrySize <= 0 {
		registrySize = 256
	}

	s := &server{
		alloc:       alloc,
		logger:      logger,
		health:      health,
		registry:    coordinator.NewShardRegistry(registrySize),
		listTimeout: settings.ListTimeout(),
	}
	health.SetOnUnhealthy(s.handleUnhealthyNode)
	return s
}

func (s *server) nodeInfos() []cluster.NodeInfo {
	s.nodesMu.RLock()
	defer s.nodesMu.RUnlock()
	out := make([]cluster.NodeInfo, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// handleUnhealthyNode drops an unresponsive node from the live set,
// refreshes the allocator's node set, and runs an immediate reroute over the
// shards still pending. Copies already assigned to that node stay in the
// routing table; they are not re-queued for placement elsewhere.
func (s *server) handleUnhealthyNode(nodeID string) {
	s.nodesMu.Lock()
	filtered := s.nodes[:0:0]
	for _, n := range s.nodes {
		if n.ID != nodeID {
			filtered = append(filtered, n)
		}
	}
	s.nodes = filtered
	s.nodesMu.Unlock()

	s.logger.Warning("node %s unhealthy, rerouting", nodeID)
	s.syncAllocatorNodes()
	s.reroute()
}

func (s *server) syncAllocatorNodes() {
	infos := s.nodeInfos()
	nodes := make([]allocator.Node, 0, len(infos))
	for _, n := range infos {
		nodes = append(nodes, allocator.Node{
			ID:       allocator.NodeID(n.ID),
			Name:     n.ID,
			Addr:     n.Addr,
			DataNode: true,
		})
	}
	s.alloc.SetNodes(nodes)
}

// rerouteLoop triggers a reroute on a timer so shards that could not be
// placed in an earlier pass (quorum not yet met, throttled node now clear)
// are retried without requiring an external event.
func (s *server) rerouteLoop(every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.reroute()
		case <-stop:
			return
		}
	}
}

// reroute runs one pass of the allocator driver over the current unassigned
// set, serialized against every other reroute trigger, and mirrors every
// placed copy, primary or replica, into the key-routing registry.
func (s *server) reroute() {
	s.rerouteMu.Lock()
	defer s.rerouteMu.Unlock()

	s.unassignedMu.Lock()
	pending := append([]allocator.ShardRouting(nil), s.unassigned...)
	s.unassignedMu.Unlock()

	if len(pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.listTimeout+5*time.Second)
	defer cancel()

	changed := allocator.AllocateUnassigned(ctx, s.alloc, pending)

	still := pending[:0:0]
	for _, sr := range pending {
		if sr.Primary {
			if a, ok := s.alloc.RoutingTable.Primary(sr.ShardID); ok && a.Node != "" {
				s.mirrorAssignment(sr.ShardID, a)
				continue
			}
			still = append(still, sr)
			continue
		}

		assigned := false
		for _, a := range s.alloc.RoutingTable.AssignmentsFor(sr.ShardID) {
			if !a.Primary {
				s.mirrorAssignment(sr.ShardID, a)
				assigned = true
			}
		}
		if !assigned {
			still = append(still, sr)
		}
	}

	s.unassignedMu.Lock()
	s.unassigned = still
	s.unassignedMu.Unlock()

	if changed {
		s.logger.Info("reroute placed shards, %d still unassigned", len(still))
	}
}

// mirrorAssignment keeps the key-routing registry's shard->node mapping in
// step with the allocator's own routing table, so clients hitting a data
// node directly (SPEC_FULL.md §6) can still discover ownership through
// GET /cluster/routing without the coordinator walking the full table.
// The registry holds one entry per shard number, so the copy mirrored last
// for a number replaces any earlier one, whatever its index or role.
func (s *server) mirrorAssignment(id allocator.ShardID, a allocator.Assignment) {
	if err := s.registry.AssignShard(id.Shard, string(a.Node), a.Primary); err != nil {
		s.logger.Debug("registry mirror for %s: %v", id, err)
	}
}

func (s *server) handleNodes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req cluster.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		info := req.Node
		if info.ID == "" || info.Addr == "" {
			http.Error(w, "missing id/addr", http.StatusBadRequest)
			return
		}

		s.nodesMu.Lock()
		replaced := false
		for i, n := range s.nodes {
			if n.ID == info.ID {
				s.nodes[i] = info
				replaced = true
				break
			}
		}
		if !replaced {
			s.nodes = append(s.nodes, info)
		}
		s.nodesMu.Unlock()

		s.syncAllocatorNodes()
		s.logger.Info("node %s registered at %s", info.ID, info.Addr)
		go s.reroute()

		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Nodes []cluster.NodeInfo `json:"nodes"`
		}{Nodes: s.nodeInfos()})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type declareShardsRequest struct {
	Index       string             `json:"index"`
	UUID        string             `json:"uuid"`
	NumShards   int                `json:"num_shards"`
	NumReplicas int                `json:"num_replicas"`
	Settings    allocator.Settings `json:"settings"`

	// ShardRoutings, if present, is taken verbatim as the initial
	// unassigned set for this index instead of the auto-expansion below.
	// A caller re-declaring an index after a full cluster restart knows
	// which primaries already held data (PrimaryAllocatedPostAPI: true)
	// and must supply that explicitly — this gateway-style allocator
	// never originates fresh-index primary placement on its own.
	ShardRoutings []allocator.ShardRouting `json:"shard_routings,omitempty"`
}

// handleDeclareShards accepts an index's shard/replica layout and queues the
// unassigned ShardRouting set the reroute driver consumes for it. When the
// caller omits ShardRoutings it is expanded automatically: one primary,
// assumed previously allocated via the create-index API, plus NumReplicas
// replica copies per shard number.
func (s *server) handleDeclareShards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req declareShardsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Index == "" || req.NumShards <= 0 {
		http.Error(w, "index and num_shards are required", http.StatusBadRequest)
		return
	}

	s.alloc.SetIndexMeta(req.Index, allocator.IndexMetadata{
		UUID:        req.UUID,
		NumReplicas: req.NumReplicas,
		Settings:    req.Settings,
	})

	added := req.ShardRoutings
	if added == nil {
		added = make([]allocator.ShardRouting, 0, req.NumShards*(1+req.NumReplicas))
		for shardNum := 0; shardNum < req.NumShards; shardNum++ {
			id := allocator.ShardID{Index: req.Index, Shard: shardNum}
			added = append(added, allocator.ShardRouting{
				ShardID:                 id,
				Primary:                 true,
				PrimaryAllocatedPostAPI: true,
			})
			for i := 0; i < req.NumReplicas; i++ {
				added = append(added, allocator.ShardRouting{ShardID: id, Primary: false})
			}
		}
	}

	s.unassignedMu.Lock()
	s.unassigned = append(s.unassigned, added...)
	s.unassignedMu.Unlock()

	s.logger.Info("declared index %s: %d shards, %d replicas each", req.Index, req.NumShards, req.NumReplicas)
	go s.reroute()

	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleRouting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.unassignedMu.Lock()
	unassigned := append([]allocator.ShardRouting(nil), s.unassigned...)
	s.unassignedMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Ignored         []allocator.IgnoredEntry       `json:"ignored_unassigned"`
		StillUnassigned []allocator.ShardRouting       `json:"unassigned"`
		RegistryMirror  []*coordinator.ShardAssignment `json:"registry_mirror"`
	}{
		Ignored:         s.alloc.RoutingTable.Ignored(),
		StillUnassigned: unassigned,
		RegistryMirror:  s.registry.GetAllAssignments(),
	})
}

// handleShardLifecycle dispatches POST /cluster/shards/{index}/{shard}/started
// and .../failed, the two events that drive the allocator's cache
// invalidation contract (P3).
func (s *server) handleShardLifecycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/cluster/shards/")
	parts := strings.Split(path, "/")
	if len(parts) != 3 {
		http.Error(w, "path must be /cluster/shards/{index}/{shard}/{started|failed}", http.StatusBadRequest)
		return
	}
	shardNum, err := strconv.Atoi(parts[1])
	if err != nil {
		http.Error(w, "invalid shard number", http.StatusBadRequest)
		return
	}
	id := allocator.ShardID{Index: parts[0], Shard: shardNum}

	switch parts[2] {
	case "started":
		allocator.ApplyStarted(s.alloc, id)
		w.WriteHeader(http.StatusNoContent)
	case "failed":
		allocator.ApplyFailed(s.alloc, id)

		var body struct {
			Primary                 bool `json:"primary"`
			PrimaryAllocatedPostAPI bool `json:"primary_allocated_post_api"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		s.unassignedMu.Lock()
		s.unassigned = append(s.unassigned, allocator.ShardRouting{
			ShardID:                 id,
			Primary:                 body.Primary,
			PrimaryAllocatedPostAPI: body.PrimaryAllocatedPostAPI || !body.Primary,
		})
		s.unassignedMu.Unlock()

		s.logger.Warning("shard %s failed, re-queued for reroute", id)
		go s.reroute()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, errors.Newf("unknown shard lifecycle event %q", parts[2]).Error(), http.StatusBadRequest)
	}
}

func parseDurationOr(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
