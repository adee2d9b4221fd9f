package permission

import (
	"context"

	"github.com/arborhq/arbor/pkg/graph"
	"github.com/arborhq/arbor/pkg/model"
	"github.com/arborhq/arbor/pkg/version"
)

// Projector derives per-user capability flags from resolved permissions
// and resource state. The flags are consumed by API responses and cached
// in the search index by the propagation worker.
type Projector struct {
	store       *graph.Store
	resolver    *Resolver
	versions    *version.Service
	submittable map[model.NodeID]struct{}
}

// NewProjector creates a capability projector. submittableTemplateIDs is
// the configured set of templates whose instances may be submitted.
func NewProjector(store *graph.Store, resolver *Resolver, versions *version.Service, submittableTemplateIDs []model.NodeID) *Projector {
	submittable := make(map[model.NodeID]struct{}, len(submittableTemplateIDs))
	for _, id := range submittableTemplateIDs {
		submittable[id] = struct{}{}
	}
	return &Projector{
		store:       store,
		resolver:    resolver,
		versions:    versions,
		submittable: submittable,
	}
}

// Project computes the capability flags of userID on nodeID. Projection
// is fail-closed: if the node cannot be resolved, the all-false zero
// value is returned rather than an error, since the flags exist for
// display purposes only. Rules only ever add flags; none retracts a flag
// an earlier rule set.
func (p *Projector) Project(ctx context.Context, nodeID model.NodeID, userID model.UserID) model.CurrentUserPermissions {
	var perms model.CurrentUserPermissions

	node, err := p.store.GetNode(ctx, nodeID)
	if err != nil {
		return perms
	}

	hasWrite, err := p.resolver.HasWrite(ctx, userID, nodeID)
	if err != nil {
		return perms
	}
	if hasWrite {
		perms.CanWrite = true
		perms.CanDelete = true
		perms.CanRead = true
		perms.CanShare = true
	} else {
		hasRead, err := p.resolver.HasRead(ctx, userID, nodeID)
		if err != nil {
			return perms
		}
		if hasRead {
			perms.CanRead = true
		}
	}

	// Copying as a new owned artifact is universally allowed.
	perms.CanCopy = true

	if node.Type == model.NodeTypeTemplate {
		if p.ownerOrAdmin(ctx, userID, nodeID) {
			perms.CanChangeOwner = true
		}
		perms.CanPopulate = true
	}

	canVersion, err := p.versions.CanVersion(ctx, userID, node)
	if err == nil && canVersion.Allowed {
		if outcome, err := p.versions.CanPublish(ctx, node); err == nil && outcome.Allowed {
			perms.CanPublish = true
		}
		if outcome, err := p.versions.CanCreateDraft(ctx, node); err == nil && outcome.Allowed {
			perms.CanCreateDraft = true
		}
	}

	if node.Type == model.NodeTypeInstance && node.IsBasedOn != "" {
		if _, ok := p.submittable[node.IsBasedOn]; ok {
			perms.CanSubmit = true
		}
	}

	return perms
}

func (p *Projector) ownerOrAdmin(ctx context.Context, userID model.UserID, nodeID model.NodeID) bool {
	isOwner, err := p.resolver.IsOwner(ctx, userID, nodeID)
	if err != nil {
		return false
	}
	if isOwner {
		return true
	}
	user, err := p.store.GetUser(ctx, userID)
	if err != nil || user == nil {
		return false
	}
	return user.IsAdmin
}
