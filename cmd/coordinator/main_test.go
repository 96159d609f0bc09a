package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cleberar38/shardalloc/internal/allocator"
	"github.com/cleberar38/shardalloc/internal/cluster"
	"github.com/cleberar38/shardalloc/internal/coordinator"
	"github.com/cleberar38/shardalloc/internal/logging"
)

// fakeFanOut stubs the fan-out RPCs with canned per-node state so reroute
// tests can exercise the primary/replica placement policy without a real
// network round trip to a data node.
type fakeFanOut struct {
	states map[allocator.NodeID]int64
}

func (f *fakeFanOut) ListStartedShards(_ context.Context, _ allocator.ShardID, _ string, nodes []allocator.Node, _ time.Duration) (allocator.FanOutResult[allocator.NodeShardState], error) {
	responses := make(map[allocator.NodeID]allocator.NodeShardState, len(nodes))
	for _, n := range nodes {
		v, ok := f.states[n.ID]
		if !ok {
			v = -1
		}
		responses[n.ID] = allocator.NodeShardState{Version: v}
	}
	return allocator.FanOutResult[allocator.NodeShardState]{Responses: responses}, nil
}

func (f *fakeFanOut) ListStoreMetadata(_ context.Context, _ allocator.ShardID, _ bool, nodes []allocator.Node, _ time.Duration) (allocator.FanOutResult[allocator.StoreFilesMetadata], error) {
	responses := make(map[allocator.NodeID]allocator.StoreFilesMetadata, len(nodes))
	for _, n := range nodes {
		responses[n.ID] = allocator.StoreFilesMetadata{Allocated: true}
	}
	return allocator.FanOutResult[allocator.StoreFilesMetadata]{Responses: responses}, nil
}

func testServer() *server {
	alloc := allocator.NewAllocation()
	logger := logging.New("coordinator-test")
	alloc.Logger = logger
	alloc.Transport = &fakeFanOut{states: map[allocator.NodeID]int64{"n1": 1}}
	alloc.Deciders = allocator.NewDeciderChain(
		allocator.SameShardDecider,
		allocator.ReplicaAfterPrimaryDecider,
	)
	return &server{
		alloc:       alloc,
		logger:      logger,
		health:      coordinator.NewHealthMonitor(time.Minute),
		registry:    coordinator.NewShardRegistry(16),
		listTimeout: 30 * time.Second,
	}
}

func TestHandleNodesRegisterAndList(t *testing.T) {
	s := testServer()

	body, _ := json.Marshal(cluster.RegisterRequest{Node: cluster.NodeInfo{ID: "n1", Addr: "http://127.0.0.1:9001"}})
	req := httptest.NewRequest(http.MethodPost, "/cluster/nodes", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.handleNodes(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("register: expected 204, got %d: %s", w.Code, w.Body.String())
	}
	if got := len(s.nodeInfos()); got != 1 {
		t.Fatalf("expected 1 registered node, got %d", got)
	}

	// re-registering the same id updates in place rather than duplicating.
	body, _ = json.Marshal(cluster.RegisterRequest{Node: cluster.NodeInfo{ID: "n1", Addr: "http://127.0.0.1:9002"}})
	s.handleNodes(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/cluster/nodes", bytes.NewReader(body)))
	infos := s.nodeInfos()
	if len(infos) != 1 || infos[0].Addr != "http://127.0.0.1:9002" {
		t.Fatalf("expected re-registration to update in place, got %+v", infos)
	}

	w = httptest.NewRecorder()
	s.handleNodes(w, httptest.NewRequest(http.MethodGet, "/cluster/nodes", nil))
	var resp struct {
		Nodes []cluster.NodeInfo `json:"nodes"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Nodes) != 1 {
		t.Fatalf("expected 1 node in listing, got %d", len(resp.Nodes))
	}
}

func TestHandleNodesRejectsMissingFields(t *testing.T) {
	s := testServer()
	body, _ := json.Marshal(cluster.RegisterRequest{Node: cluster.NodeInfo{ID: "n1"}})
	w := httptest.NewRecorder()
	s.handleNodes(w, httptest.NewRequest(http.MethodPost, "/cluster/nodes", bytes.NewReader(body)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing addr, got %d", w.Code)
	}
}

func TestHandleDeclareShardsQueuesRoutingEntries(t *testing.T) {
	s := testServer()
	body, _ := json.Marshal(declareShardsRequest{Index: "orders", NumShards: 2, NumReplicas: 1})
	w := httptest.NewRecorder()
	s.handleDeclareShards(w, httptest.NewRequest(http.MethodPost, "/cluster/shards", bytes.NewReader(body)))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	s.unassignedMu.Lock()
	count := len(s.unassigned)
	s.unassignedMu.Unlock()
	if count != 4 {
		t.Fatalf("expected 4 routing entries (2 shards * (1 primary + 1 replica)), got %d", count)
	}
}

func TestHandleDeclareShardsHonorsExplicitRoutings(t *testing.T) {
	s := testServer()
	explicit := []allocator.ShardRouting{
		{ShardID: allocator.ShardID{Index: "orders", Shard: 0}, Primary: true, PrimaryAllocatedPostAPI: true},
	}
	body, _ := json.Marshal(declareShardsRequest{Index: "orders", NumShards: 1, ShardRoutings: explicit})
	w := httptest.NewRecorder()
	s.handleDeclareShards(w, httptest.NewRequest(http.MethodPost, "/cluster/shards", bytes.NewReader(body)))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	s.unassignedMu.Lock()
	count := len(s.unassigned)
	s.unassignedMu.Unlock()
	if count != 1 {
		t.Fatalf("expected the caller-supplied routing set used verbatim, got %d entries", count)
	}
}

func TestHandleDeclareShardsRejectsBadInput(t *testing.T) {
	s := testServer()
	body, _ := json.Marshal(declareShardsRequest{Index: "", NumShards: 0})
	w := httptest.NewRecorder()
	s.handleDeclareShards(w, httptest.NewRequest(http.MethodPost, "/cluster/shards", bytes.NewReader(body)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty index/zero shards, got %d", w.Code)
	}
}

func TestRerouteAssignsAndMirrorsSinglePrimary(t *testing.T) {
	s := testServer()
	s.alloc.SetNodes([]allocator.Node{{ID: "n1", Name: "n1", Addr: "http://n1", DataNode: true}})
	s.unassignedMu.Lock()
	s.unassigned = []allocator.ShardRouting{
		{ShardID: allocator.ShardID{Index: "orders", Shard: 0}, Primary: true, PrimaryAllocatedPostAPI: true},
	}
	s.unassignedMu.Unlock()

	s.reroute()

	a, ok := s.alloc.RoutingTable.Primary(allocator.ShardID{Index: "orders", Shard: 0})
	if !ok || a.Node != "n1" {
		t.Fatalf("expected shard orders/0 assigned to n1, got %+v ok=%v", a, ok)
	}

	s.unassignedMu.Lock()
	remaining := len(s.unassigned)
	s.unassignedMu.Unlock()
	if remaining != 0 {
		t.Errorf("expected no remaining unassigned shards, got %d", remaining)
	}

	var mirrored *coordinator.ShardAssignment
	for _, m := range s.registry.GetAllAssignments() {
		if m.ShardID == 0 {
			mirrored = m
		}
	}
	if mirrored == nil || mirrored.NodeID != "n1" {
		t.Errorf("expected registry mirror to reflect the new assignment, got %+v", mirrored)
	}
}

func TestRerouteLeavesShardUnassignedWithoutNodes(t *testing.T) {
	s := testServer()
	s.unassignedMu.Lock()
	s.unassigned = []allocator.ShardRouting{
		{ShardID: allocator.ShardID{Index: "orders", Shard: 0}, Primary: true, PrimaryAllocatedPostAPI: true},
	}
	s.unassignedMu.Unlock()

	s.reroute()

	s.unassignedMu.Lock()
	remaining := len(s.unassigned)
	s.unassignedMu.Unlock()
	if remaining != 1 {
		t.Errorf("expected the shard to remain unassigned with no candidate nodes, got %d remaining", remaining)
	}
}

func TestHandleRoutingReportsUnassignedAndMirror(t *testing.T) {
	s := testServer()
	s.unassignedMu.Lock()
	s.unassigned = []allocator.ShardRouting{
		{ShardID: allocator.ShardID{Index: "orders", Shard: 0}, Primary: true},
	}
	s.unassignedMu.Unlock()

	w := httptest.NewRecorder()
	s.handleRouting(w, httptest.NewRequest(http.MethodGet, "/cluster/routing", nil))

	var resp struct {
		Unassigned []allocator.ShardRouting `json:"unassigned"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Unassigned) != 1 {
		t.Errorf("expected 1 unassigned entry reflected, got %d", len(resp.Unassigned))
	}
}

func TestHandleShardLifecycleStartedAndFailed(t *testing.T) {
	s := testServer()
	id := allocator.ShardID{Index: "orders", Shard: 0}
	s.alloc.RoutingTable.Assign(allocator.Assignment{ShardID: id, Node: "n1", Primary: true})

	w := httptest.NewRecorder()
	s.handleShardLifecycle(w, httptest.NewRequest(http.MethodPost, "/cluster/shards/orders/0/started", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("started: expected 204, got %d", w.Code)
	}

	body, _ := json.Marshal(map[string]bool{"primary": true, "primary_allocated_post_api": true})
	w = httptest.NewRecorder()
	s.handleShardLifecycle(w, httptest.NewRequest(http.MethodPost, "/cluster/shards/orders/0/failed", bytes.NewReader(body)))
	if w.Code != http.StatusNoContent {
		t.Fatalf("failed: expected 204, got %d", w.Code)
	}

	s.unassignedMu.Lock()
	count := len(s.unassigned)
	s.unassignedMu.Unlock()
	if count != 1 {
		t.Fatalf("expected the failed shard re-queued, got %d unassigned entries", count)
	}
}

func TestHandleShardLifecycleRejectsUnknownEvent(t *testing.T) {
	s := testServer()
	w := httptest.NewRecorder()
	s.handleShardLifecycle(w, httptest.NewRequest(http.MethodPost, "/cluster/shards/orders/0/bogus", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown lifecycle event, got %d", w.Code)
	}
}

func TestHandleShardLifecycleRejectsMalformedPath(t *testing.T) {
	s := testServer()
	w := httptest.NewRecorder()
	s.handleShardLifecycle(w, httptest.NewRequest(http.MethodPost, "/cluster/shards/orders/started", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a path missing the shard number, got %d", w.Code)
	}
}

func TestHandleUnhealthyNodeDropsNode(t *testing.T) {
	s := testServer()
	s.nodes = []cluster.NodeInfo{{ID: "n1", Addr: "http://n1"}, {ID: "n2", Addr: "http://n2"}}
	s.alloc.RoutingTable.Assign(allocator.Assignment{ShardID: allocator.ShardID{Index: "orders", Shard: 0}, Node: "n1", Primary: true})

	s.handleUnhealthyNode("n1")

	infos := s.nodeInfos()
	if len(infos) != 1 || infos[0].ID != "n2" {
		t.Fatalf("expected only n2 to remain registered, got %+v", infos)
	}
	if got := len(s.alloc.DataNodes()); got != 1 {
		t.Errorf("expected allocator node set to drop the unhealthy node too, got %d", got)
	}
}

func TestParseDurationOrFallsBackOnInvalidInput(t *testing.T) {
	if got := parseDurationOr("not-a-duration", 7*time.Second); got != 7*time.Second {
		t.Errorf("expected fallback duration, got %v", got)
	}
	if got := parseDurationOr("3s", 7*time.Second); got != 3*time.Second {
		t.Errorf("expected parsed duration, got %v", got)
	}
}
