// Package transport implements the allocator's fan-out client adapter
// (SPEC_FULL.md §4.6) over plain net/http, one request per node issued
// concurrently and joined with a sync.WaitGroup, matching the
// internal/cluster package's existing PostJSON helper rather than
// introducing a second HTTP stack.
package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/cleberar38/shardalloc/internal/allocator"
	"github.com/cleberar38/shardalloc/internal/cluster"
)

// connectError wraps a per-node failure known to be a connection-level
// failure (refused, unreachable, timed out dialing) so
// allocator.IsConnectFailure can tell it apart from a decode or protocol
// error for the §4.4 Step 5 WARN/DEBUG log split.
type connectError struct {
	cause error
}

func (e *connectError) Error() string        { return e.cause.Error() }
func (e *connectError) Unwrap() error        { return e.cause }
func (e *connectError) ConnectFailure() bool { return true }

func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &connectError{cause: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &connectError{cause: err}
	}
	return err
}

// Client implements allocator.FanOutClient over HTTP.
type Client struct{}

// New returns an HTTP-backed fan-out client.
func New() *Client {
	return &Client{}
}

type listStartedRequest struct {
	ShardID   string `json:"shard_id"`
	IndexUUID string `json:"index_uuid"`
}

type listStartedResponse struct {
	Version int64 `json:"version"`
}

// ListStartedShards fans out POST /internal/shards/list-started to every
// node, joining per-node successes and failures without ever failing the
// whole call for a single node's error.
func (c *Client) ListStartedShards(ctx context.Context, shard allocator.ShardID, indexUUID string, nodes []allocator.Node, timeout time.Duration) (allocator.FanOutResult[allocator.NodeShardState], error) {
	result := allocator.FanOutResult[allocator.NodeShardState]{
		Responses: make(map[allocator.NodeID]allocator.NodeShardState),
	}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, n := range nodes {
		wg.Add(1)
		go func(n allocator.Node) {
			defer wg.Done()

			reqCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			var resp listStartedResponse
			err := cluster.PostJSON(reqCtx, n.Addr+"/internal/shards/list-started", listStartedRequest{
				ShardID:   shard.String(),
				IndexUUID: indexUUID,
			}, &resp)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, allocator.FanOutFailure{Node: n.ID, Err: classify(err)})
				return
			}
			result.Responses[n.ID] = allocator.NodeShardState{Version: resp.Version}
		}(n)
	}

	wg.Wait()
	return result, nil
}

type listStoreRequest struct {
	ShardID            string `json:"shard_id"`
	IncludeUnallocated bool   `json:"include_unallocated"`
}

type listStoreResponse struct {
	Allocated bool                      `json:"allocated"`
	SyncID    string                    `json:"sync_id"`
	Files     []allocator.FileMetadata  `json:"files"`
}

// ListStoreMetadata fans out POST /internal/shards/list-store to every
// node, same partial-failure semantics as ListStartedShards.
func (c *Client) ListStoreMetadata(ctx context.Context, shard allocator.ShardID, includeUnallocated bool, nodes []allocator.Node, timeout time.Duration) (allocator.FanOutResult[allocator.StoreFilesMetadata], error) {
	result := allocator.FanOutResult[allocator.StoreFilesMetadata]{
		Responses: make(map[allocator.NodeID]allocator.StoreFilesMetadata),
	}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, n := range nodes {
		wg.Add(1)
		go func(n allocator.Node) {
			defer wg.Done()

			reqCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			var resp listStoreResponse
			err := cluster.PostJSON(reqCtx, n.Addr+"/internal/shards/list-store", listStoreRequest{
				ShardID:            shard.String(),
				IncludeUnallocated: includeUnallocated,
			}, &resp)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, allocator.FanOutFailure{Node: n.ID, Err: classify(err)})
				return
			}
			result.Responses[n.ID] = allocator.StoreFilesMetadata{
				Allocated: resp.Allocated,
				SyncID:    resp.SyncID,
				Files:     resp.Files,
			}
		}(n)
	}

	wg.Wait()
	return result, nil
}
