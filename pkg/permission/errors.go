package permission

import (
	"fmt"

	"github.com/arborhq/arbor/pkg/model"
)

// Validation reason codes surfaced to API clients.
const (
	ReasonUserNodeMissing   = "user_node_missing"
	ReasonOwnerRequired     = "owner_required"
	ReasonPrincipalNotFound = "principal_not_found"
)

// Update sub-step names carried by PartialUpdateError.
const (
	StepOwnerSwap    = "owner_swap"
	StepRemoveGrants = "remove_grants"
	StepAddGrants    = "add_grants"
)

// NotFoundError reports that the target node does not exist.
type NotFoundError struct {
	NodeID model.NodeID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("node %s not found", e.NodeID)
}

// ValidationError reports a malformed permission update request. It is
// returned synchronously and is never retried.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid permission request (%s): %s", e.Reason, e.Message)
}

// StoreUnavailableError reports a transient infrastructure failure while
// reading the graph store. The whole operation is safe to retry since
// diffing is idempotent.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// PartialUpdateError reports that a multi-step update failed after some
// sub-steps already applied. No rollback is attempted; the caller must
// re-issue the update with the same target set, which recomputes only
// the missing deltas.
type PartialUpdateError struct {
	Step string
	Err  error
}

func (e *PartialUpdateError) Error() string {
	return fmt.Sprintf("permission update failed at step %s: %v", e.Step, e.Err)
}

func (e *PartialUpdateError) Unwrap() error { return e.Err }
