// Package version gate-keeps draft/publish transitions of versionable
// artifacts. The predicates here are pure; the actual status transition
// is performed by the caller once a predicate passes.
package version

import (
	"context"

	"github.com/arborhq/arbor/pkg/model"
)

// OwnershipChecker answers whether a user owns a node. Ownership is the
// sole authorization path for version operations; WRITE grants do not
// qualify.
type OwnershipChecker interface {
	IsOwner(ctx context.Context, userID model.UserID, nodeID model.NodeID) (bool, error)
}

// LinkStore answers whether a node has a newer version linked forward
// from it.
type LinkStore interface {
	HasNewerVersion(ctx context.Context, nodeID model.NodeID) (bool, error)
}

// Service evaluates version eligibility rules.
type Service struct {
	owners OwnershipChecker
	links  LinkStore
}

// NewService creates a version eligibility service.
func NewService(owners OwnershipChecker, links LinkStore) *Service {
	return &Service{owners: owners, links: links}
}

// CanVersion reports whether the user may perform version operations on
// the resource at all: they must own it and its type must be versioned.
func (s *Service) CanVersion(ctx context.Context, userID model.UserID, resource *model.Node) (model.OutcomeWithReason, error) {
	isOwner, err := s.owners.IsOwner(ctx, userID, resource.ID)
	if err != nil {
		return model.OutcomeWithReason{}, err
	}
	if !isOwner {
		return model.Negative(model.ReasonVersioningOnlyByOwner), nil
	}
	if !resource.Type.IsVersioned() {
		return model.Negative(model.ReasonNonVersionedArtifactType), nil
	}
	return model.Positive(), nil
}

// CanPublish reports whether the resource may move from DRAFT to
// PUBLISHED. Publishing is only permitted on the latest version of a
// chain.
func (s *Service) CanPublish(ctx context.Context, resource *model.Node) (model.OutcomeWithReason, error) {
	if resource.PublicationStatus != model.StatusDraft {
		return model.Negative(model.ReasonPublishOnlyDraft), nil
	}
	newer, err := s.links.HasNewerVersion(ctx, resource.ID)
	if err != nil {
		return model.OutcomeWithReason{}, err
	}
	if newer {
		return model.Negative(model.ReasonVersioningOnlyOnLatest), nil
	}
	return model.Positive(), nil
}

// CanCreateDraft reports whether a new draft may be created from the
// resource: it must be PUBLISHED and be the latest version of its chain.
func (s *Service) CanCreateDraft(ctx context.Context, resource *model.Node) (model.OutcomeWithReason, error) {
	if resource.PublicationStatus != model.StatusPublished {
		return model.Negative(model.ReasonCreateDraftOnlyFromPublished), nil
	}
	newer, err := s.links.HasNewerVersion(ctx, resource.ID)
	if err != nil {
		return model.OutcomeWithReason{}, err
	}
	if newer {
		return model.Negative(model.ReasonVersioningOnlyOnLatest), nil
	}
	return model.Positive(), nil
}
