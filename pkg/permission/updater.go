package permission

import (
	"context"

	"github.com/arborhq/arbor/pkg/graph"
	"github.com/arborhq/arbor/pkg/model"
	"github.com/arborhq/arbor/pkg/observability"
)

// EventSink accepts permission-sync events for asynchronous processing.
// Enqueue is fire-and-forget with at-least-once delivery downstream.
type EventSink interface {
	EnqueuePermissionSync(ctx context.Context, nodeID model.NodeID) error
}

// UpdateResult describes the deltas an update actually applied. An
// idempotent re-issue of the same target set yields empty deltas.
type UpdateResult struct {
	OwnerChanged       bool               `json:"owner_changed"`
	AddedUserGrants    []model.UserGrant  `json:"added_user_grants"`
	RemovedUserGrants  []model.UserGrant  `json:"removed_user_grants"`
	AddedGroupGrants   []model.GroupGrant `json:"added_group_grants"`
	RemovedGroupGrants []model.GroupGrant `json:"removed_group_grants"`
}

// Empty reports whether the update was a no-op.
func (r UpdateResult) Empty() bool {
	return !r.OwnerChanged &&
		len(r.AddedUserGrants) == 0 && len(r.RemovedUserGrants) == 0 &&
		len(r.AddedGroupGrants) == 0 && len(r.RemovedGroupGrants) == 0
}

// Updater applies target permission sets to nodes by diffing against
// current state and issuing the minimal store mutations.
type Updater struct {
	store    *graph.Store
	resolver *Resolver
	events   EventSink
	logger   *observability.Logger
}

// NewUpdater creates a permission updater. The event sink receives one
// sync event per successful mutation; a nil sink disables emission.
func NewUpdater(store *graph.Store, resolver *Resolver, events EventSink, logger *observability.Logger) *Updater {
	return &Updater{
		store:    store,
		resolver: resolver,
		events:   events,
		logger:   logger,
	}
}

// Update applies the requested permission set to a node.
//
// The sequence is: validate, load current state, swap the owner edge if
// it changed (one atomic store operation), remove stale grants, add new
// grants. Remove happens before add, each as one batched store call,
// and empty batches are skipped. On a mid-sequence failure no rollback
// is attempted; a PartialUpdateError names the failed sub-step and the
// caller re-issues the same target, which is safe because the diff is
// idempotent.
func (u *Updater) Update(ctx context.Context, nodeID model.NodeID, requested model.NodePermissionSet) (*UpdateResult, error) {
	if err := u.validate(ctx, nodeID, requested); err != nil {
		return nil, err
	}

	current, err := u.resolver.Resolve(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	result := &UpdateResult{}

	if requested.Owner != current.Owner {
		if err := u.store.SetOwner(ctx, nodeID, requested.Owner); err != nil {
			return nil, &PartialUpdateError{Step: StepOwnerSwap, Err: err}
		}
		result.OwnerChanged = true
	}

	currentUsers := current.UserGrantSet()
	requestedUsers := requested.UserGrantSet()
	for g := range currentUsers {
		if _, ok := requestedUsers[g]; !ok {
			result.RemovedUserGrants = append(result.RemovedUserGrants, g)
		}
	}
	for g := range requestedUsers {
		if _, ok := currentUsers[g]; !ok {
			result.AddedUserGrants = append(result.AddedUserGrants, g)
		}
	}

	currentGroups := current.GroupGrantSet()
	requestedGroups := requested.GroupGrantSet()
	for g := range currentGroups {
		if _, ok := requestedGroups[g]; !ok {
			result.RemovedGroupGrants = append(result.RemovedGroupGrants, g)
		}
	}
	for g := range requestedGroups {
		if _, ok := currentGroups[g]; !ok {
			result.AddedGroupGrants = append(result.AddedGroupGrants, g)
		}
	}

	if err := u.store.RemoveGrants(ctx, nodeID, result.RemovedUserGrants, result.RemovedGroupGrants); err != nil {
		return nil, &PartialUpdateError{Step: StepRemoveGrants, Err: err}
	}
	if err := u.store.AddGrants(ctx, nodeID, result.AddedUserGrants, result.AddedGroupGrants); err != nil {
		return nil, &PartialUpdateError{Step: StepAddGrants, Err: err}
	}

	if u.events != nil {
		// Enqueue failure is not fatal: the index converges through the
		// periodic reconciliation sweep, and the graph store already
		// holds the authoritative state.
		if err := u.events.EnqueuePermissionSync(ctx, nodeID); err != nil && u.logger != nil {
			u.logger.WithError(err).WithField("node_id", string(nodeID)).
				Warn("failed to enqueue permission sync event")
		}
	}

	return result, nil
}

func (u *Updater) validate(ctx context.Context, nodeID model.NodeID, requested model.NodePermissionSet) error {
	if _, err := u.store.GetNode(ctx, nodeID); err != nil {
		if err == graph.ErrNodeNotFound {
			return &NotFoundError{NodeID: nodeID}
		}
		return &StoreUnavailableError{Op: "validate", Err: err}
	}

	if requested.Owner == "" {
		return &ValidationError{
			Reason:  ReasonOwnerRequired,
			Message: "a node must have exactly one owner",
		}
	}
	if err := u.requireUser(ctx, requested.Owner); err != nil {
		return err
	}

	for _, g := range requested.UserGrants {
		if g.UserID == "" {
			return &ValidationError{
				Reason:  ReasonUserNodeMissing,
				Message: "a user grant is missing its principal reference",
			}
		}
		if err := u.requireUser(ctx, g.UserID); err != nil {
			return err
		}
	}
	for _, g := range requested.GroupGrants {
		if g.GroupID == "" {
			return &ValidationError{
				Reason:  ReasonUserNodeMissing,
				Message: "a group grant is missing its principal reference",
			}
		}
		exists, err := u.store.GroupExists(ctx, g.GroupID)
		if err != nil {
			return &StoreUnavailableError{Op: "validate", Err: err}
		}
		if !exists {
			return &ValidationError{
				Reason:  ReasonPrincipalNotFound,
				Message: "group " + string(g.GroupID) + " does not exist",
			}
		}
	}
	return nil
}

func (u *Updater) requireUser(ctx context.Context, id model.UserID) error {
	exists, err := u.store.UserExists(ctx, id)
	if err != nil {
		return &StoreUnavailableError{Op: "validate", Err: err}
	}
	if !exists {
		return &ValidationError{
			Reason:  ReasonPrincipalNotFound,
			Message: "user " + string(id) + " does not exist",
		}
	}
	return nil
}
