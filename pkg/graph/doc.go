// Package graph is the authoritative store for the workspace tree and its
// access-control state. Nodes, ownership and permission grants are modeled
// as rows in a relational store (PostgreSQL in production, SQLite in tests)
// with edge tables standing in for the graph relationships: one owner edge
// per node, and zero or more permission edges per (node, principal, level).
//
// The store is the single source of truth. The search index holds a
// derived, rebuildable copy of the ACL state and is never read back into
// the graph.
package graph
