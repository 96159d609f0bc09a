// Package storage defines the Store interface a shard persists through and
// provides the in-memory implementation every shard currently uses.
// Get/Put/Delete/List plus Stats and Metadata make up the surface;
// StoreStats reports key count and total bytes for diagnostics, and
// Metadata the per-key checksum and length.
package storage
