// Package shard implements the single-node storage unit a data node hosts:
// an in-memory key-value partition plus the bookkeeping the allocator's
// fan-out RPCs read from.
//
// A Shard tracks its own operation counts (Stats) and exposes Version, a
// monotonically increasing count of applied mutations used as the on-disk
// freshness signal during primary placement. OwnsKey implements the same
// FNV-1a consistent-hash scheme the node's client-facing key routing uses,
// so a shard can answer "is this key mine?" without consulting the node
// that created it.
package shard
