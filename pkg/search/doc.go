// Package search maintains the denormalized search-side copy of node
// metadata and access-control state.
//
// Documents here are a rebuildable cache. The graph store stays
// authoritative; whenever a node's permissions change, a sync event is
// queued and the Worker recomputes the document's ACL fields from the
// graph store. Processing is idempotent and tolerates duplicate or
// out-of-order delivery because the event carries only the node ID,
// never a permission snapshot.
package search
