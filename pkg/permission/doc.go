// Package permission implements the permission resolution, mutation and
// projection engine for workspace nodes.
//
// # Overview
//
// Three components cooperate:
//
//  1. Resolver: reads the authoritative permission state of a node (owner
//     plus user and group grants) from the graph store and answers the
//     boolean isOwner/hasRead/hasWrite checks used by every other
//     subsystem. Ownership implies full access even without an explicit
//     grant, and WRITE satisfies READ checks.
//  2. Updater: accepts a desired target permission set, diffs it against
//     current state as a pure set difference over (principal, level)
//     pairs, and applies the minimal owner swap, remove batch and add
//     batch. The diff is idempotent: re-applying an already-applied
//     target computes empty deltas.
//  3. Projector: maps resolved permissions and resource state into the
//     per-user capability flags consumed by API responses and the search
//     index. Projection fails closed: an unresolvable node yields the
//     all-false zero value.
//
// # Consistency
//
// Concurrent updates on the same node are not serialized here; the diff
// is computed against the state visible at read time, so overlapping
// grant sets resolve last-writer-wins. This is an accepted
// weak-consistency trade-off. The search index is refreshed
// asynchronously through an at-least-once sync event emitted after each
// successful mutation, and the refresh always recomputes from the graph
// store, so reprocessing converges.
package permission
