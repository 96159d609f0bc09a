// Package cluster provides the wire types and small JSON-over-HTTP helpers
// shared between the coordinator and data node processes: node identity,
// the registration request body, and a POST/GET helper pair used by every
// caller that needs a JSON round trip with a sane timeout.
//
// It intentionally carries no cluster-state model of its own — membership,
// health, and routing all live in internal/coordinator and internal/allocator,
// which consume these types rather than duplicate them.
package cluster
