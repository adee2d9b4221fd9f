package permission

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/arborhq/arbor/pkg/graph"
	"github.com/arborhq/arbor/pkg/model"
)

const (
	groupCacheSize = 4096
	groupCacheTTL  = 30 * time.Second
)

// Resolver computes the materialized permission state of workspace nodes.
// All methods are pure reads against the graph store; group membership
// lookups are served from a short-lived LRU cache.
type Resolver struct {
	store  *graph.Store
	groups *expirable.LRU[model.UserID, []model.GroupID]
}

// NewResolver creates a resolver over the given graph store.
func NewResolver(store *graph.Store) *Resolver {
	return &Resolver{
		store:  store,
		groups: expirable.NewLRU[model.UserID, []model.GroupID](groupCacheSize, nil, groupCacheTTL),
	}
}

// Resolve returns the full permission set of a node: owner plus every
// user and group grant at READ and WRITE level. Returns NotFoundError if
// the node does not exist and StoreUnavailableError on infrastructure
// failure.
func (r *Resolver) Resolve(ctx context.Context, nodeID model.NodeID) (*model.NodePermissionSet, error) {
	if _, err := r.store.GetNode(ctx, nodeID); err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return nil, &NotFoundError{NodeID: nodeID}
		}
		return nil, &StoreUnavailableError{Op: "resolve", Err: err}
	}

	owner, err := r.store.GetOwner(ctx, nodeID)
	if err != nil {
		return nil, &StoreUnavailableError{Op: "resolve", Err: err}
	}

	set := &model.NodePermissionSet{Owner: owner}

	for _, level := range []model.PermissionLevel{model.PermissionRead, model.PermissionWrite} {
		users, groups, err := r.store.GrantsAt(ctx, nodeID, level)
		if err != nil {
			return nil, &StoreUnavailableError{Op: "resolve", Err: err}
		}
		for _, u := range users {
			set.UserGrants = append(set.UserGrants, model.UserGrant{UserID: u, Level: level})
		}
		for _, g := range groups {
			set.GroupGrants = append(set.GroupGrants, model.GroupGrant{GroupID: g, Level: level})
		}
	}

	return set, nil
}

// IsOwner reports whether userID owns the node.
func (r *Resolver) IsOwner(ctx context.Context, userID model.UserID, nodeID model.NodeID) (bool, error) {
	owner, err := r.store.GetOwner(ctx, nodeID)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return false, &NotFoundError{NodeID: nodeID}
		}
		return false, &StoreUnavailableError{Op: "is_owner", Err: err}
	}
	return owner == userID, nil
}

// HasRead reports whether userID may read the node: the user is the
// owner, or the user (or any of their groups) holds a READ or WRITE
// grant. Ownership implies full access without any explicit grant.
func (r *Resolver) HasRead(ctx context.Context, userID model.UserID, nodeID model.NodeID) (bool, error) {
	return r.hasLevel(ctx, userID, nodeID, model.PermissionRead)
}

// HasWrite reports whether userID may write the node: the user is the
// owner, or the user (or any of their groups) holds a WRITE grant.
func (r *Resolver) HasWrite(ctx context.Context, userID model.UserID, nodeID model.NodeID) (bool, error) {
	return r.hasLevel(ctx, userID, nodeID, model.PermissionWrite)
}

func (r *Resolver) hasLevel(ctx context.Context, userID model.UserID, nodeID model.NodeID, level model.PermissionLevel) (bool, error) {
	set, err := r.Resolve(ctx, nodeID)
	if err != nil {
		return false, err
	}
	if set.Owner == userID {
		return true, nil
	}

	for _, g := range set.UserGrants {
		if g.UserID == userID && g.Level.Includes(level) {
			return true, nil
		}
	}

	userGroups, err := r.groupsForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	membership := make(map[model.GroupID]struct{}, len(userGroups))
	for _, g := range userGroups {
		membership[g] = struct{}{}
	}
	for _, g := range set.GroupGrants {
		if _, ok := membership[g.GroupID]; ok && g.Level.Includes(level) {
			return true, nil
		}
	}
	return false, nil
}

// MaterializedACL is the flattened per-node access view written into the
// search index: the owner plus the principals that may read or write,
// with WRITE holders folded into the read lists.
type MaterializedACL struct {
	Owner       model.UserID
	ReadUsers   []model.UserID
	WriteUsers  []model.UserID
	ReadGroups  []model.GroupID
	WriteGroups []model.GroupID
}

// Materialized flattens the resolved permission set of a node into the
// denormalized ACL view.
func (r *Resolver) Materialized(ctx context.Context, nodeID model.NodeID) (*MaterializedACL, error) {
	set, err := r.Resolve(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	acl := &MaterializedACL{Owner: set.Owner}

	readUsers := make(map[model.UserID]struct{})
	writeUsers := make(map[model.UserID]struct{})
	for _, g := range set.UserGrants {
		readUsers[g.UserID] = struct{}{}
		if g.Level == model.PermissionWrite {
			writeUsers[g.UserID] = struct{}{}
		}
	}
	for u := range readUsers {
		acl.ReadUsers = append(acl.ReadUsers, u)
	}
	for u := range writeUsers {
		acl.WriteUsers = append(acl.WriteUsers, u)
	}

	readGroups := make(map[model.GroupID]struct{})
	writeGroups := make(map[model.GroupID]struct{})
	for _, g := range set.GroupGrants {
		readGroups[g.GroupID] = struct{}{}
		if g.Level == model.PermissionWrite {
			writeGroups[g.GroupID] = struct{}{}
		}
	}
	for g := range readGroups {
		acl.ReadGroups = append(acl.ReadGroups, g)
	}
	for g := range writeGroups {
		acl.WriteGroups = append(acl.WriteGroups, g)
	}

	return acl, nil
}

// InvalidateGroupCache drops the cached group membership of a user.
// Called after membership mutations.
func (r *Resolver) InvalidateGroupCache(userID model.UserID) {
	r.groups.Remove(userID)
}

func (r *Resolver) groupsForUser(ctx context.Context, userID model.UserID) ([]model.GroupID, error) {
	if cached, ok := r.groups.Get(userID); ok {
		return cached, nil
	}
	groups, err := r.store.GroupsForUser(ctx, userID)
	if err != nil {
		return nil, &StoreUnavailableError{Op: "group_membership", Err: err}
	}
	r.groups.Add(userID, groups)
	return groups, nil
}
