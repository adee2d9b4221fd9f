package permission

import (
	"context"
	"testing"

	"github.com/arborhq/arbor/pkg/graph"
	"github.com/arborhq/arbor/pkg/model"
	"github.com/arborhq/arbor/pkg/version"
)

func newTestProjector(t *testing.T, submittable ...model.NodeID) (*graph.Store, *Projector) {
	t.Helper()
	db := graph.NewTestDB(t)
	store := graph.NewStore(db)
	resolver := NewResolver(store)
	versions := version.NewService(resolver, store)
	return store, NewProjector(store, resolver, versions, submittable)
}

func TestProjector_WriterGetsMutationFlags(t *testing.T) {
	store, projector := newTestProjector(t)
	ctx := context.Background()

	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	nodeID := seedNode(t, store, alice, nil)
	if err := store.AddGrants(ctx, nodeID,
		[]model.UserGrant{{UserID: bob, Level: model.PermissionWrite}}, nil); err != nil {
		t.Fatalf("failed to add grant: %v", err)
	}

	perms := projector.Project(ctx, nodeID, bob)
	if !perms.CanWrite || !perms.CanDelete || !perms.CanRead || !perms.CanShare {
		t.Fatalf("expected full mutation flags for a writer, got %+v", perms)
	}
	if !perms.CanCopy {
		t.Fatal("expected copy to be allowed")
	}
}

func TestProjector_ReaderGetsReadOnlyFlags(t *testing.T) {
	store, projector := newTestProjector(t)
	ctx := context.Background()

	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	nodeID := seedNode(t, store, alice, nil)
	if err := store.AddGrants(ctx, nodeID,
		[]model.UserGrant{{UserID: bob, Level: model.PermissionRead}}, nil); err != nil {
		t.Fatalf("failed to add grant: %v", err)
	}

	perms := projector.Project(ctx, nodeID, bob)
	if !perms.CanRead {
		t.Fatalf("expected read flag, got %+v", perms)
	}
	if perms.CanWrite || perms.CanDelete || perms.CanShare {
		t.Fatalf("reader must not get mutation flags, got %+v", perms)
	}
	if !perms.CanCopy {
		t.Fatal("expected copy to be allowed")
	}
}

func TestProjector_StrangerCanOnlyCopy(t *testing.T) {
	store, projector := newTestProjector(t)
	ctx := context.Background()

	alice := seedUser(t, store, "alice")
	mallory := seedUser(t, store, "mallory")
	nodeID := seedNode(t, store, alice, nil)

	perms := projector.Project(ctx, nodeID, mallory)
	if perms.CanRead || perms.CanWrite || perms.CanDelete || perms.CanShare {
		t.Fatalf("expected no access flags for a stranger, got %+v", perms)
	}
	if !perms.CanCopy {
		t.Fatal("expected copy to be allowed")
	}
}

func TestProjector_FailsClosedOnMissingNode(t *testing.T) {
	store, projector := newTestProjector(t)
	seedUser(t, store, "alice")

	perms := projector.Project(context.Background(), model.NewNodeID(), "alice")
	if perms != (model.CurrentUserPermissions{}) {
		t.Fatalf("expected the all-false zero value, got %+v", perms)
	}
}

func TestProjector_TemplateFlags(t *testing.T) {
	store, projector := newTestProjector(t)
	ctx := context.Background()

	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	root := seedAdmin(t, store, "root")
	nodeID := seedNode(t, store, alice, &model.Node{
		Type:              model.NodeTypeTemplate,
		Name:              "Study Intake",
		PublicationStatus: model.StatusDraft,
	})

	owner := projector.Project(ctx, nodeID, alice)
	if !owner.CanChangeOwner || !owner.CanPopulate {
		t.Fatalf("expected owner to change ownership and populate, got %+v", owner)
	}

	stranger := projector.Project(ctx, nodeID, bob)
	if stranger.CanChangeOwner {
		t.Fatalf("non-owner must not change ownership, got %+v", stranger)
	}
	if !stranger.CanPopulate {
		t.Fatalf("any user may populate a template, got %+v", stranger)
	}

	admin := projector.Project(ctx, nodeID, root)
	if !admin.CanChangeOwner {
		t.Fatalf("admin must be able to change ownership, got %+v", admin)
	}
}

func TestProjector_VersionFlags(t *testing.T) {
	store, projector := newTestProjector(t)
	ctx := context.Background()

	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")

	draft := seedNode(t, store, alice, &model.Node{
		Type:              model.NodeTypeTemplate,
		Name:              "draft template",
		PublicationStatus: model.StatusDraft,
	})
	published := seedNode(t, store, alice, &model.Node{
		Type:              model.NodeTypeTemplate,
		Name:              "published template",
		PublicationStatus: model.StatusPublished,
	})

	perms := projector.Project(ctx, draft, alice)
	if !perms.CanPublish {
		t.Fatalf("expected owner to publish a draft, got %+v", perms)
	}
	if perms.CanCreateDraft {
		t.Fatalf("a draft must not spawn another draft, got %+v", perms)
	}

	perms = projector.Project(ctx, published, alice)
	if perms.CanPublish {
		t.Fatalf("published artifacts cannot be re-published, got %+v", perms)
	}
	if !perms.CanCreateDraft {
		t.Fatalf("expected owner to draft from published, got %+v", perms)
	}

	// Versioning is owner-only, independent of WRITE grants.
	if err := store.AddGrants(ctx, draft,
		[]model.UserGrant{{UserID: bob, Level: model.PermissionWrite}}, nil); err != nil {
		t.Fatalf("failed to add grant: %v", err)
	}
	perms = projector.Project(ctx, draft, bob)
	if perms.CanPublish || perms.CanCreateDraft {
		t.Fatalf("non-owner must not get version flags, got %+v", perms)
	}
}

func TestProjector_VersionFlagsOnlyOnLatest(t *testing.T) {
	store, projector := newTestProjector(t)
	ctx := context.Background()

	alice := seedUser(t, store, "alice")
	older := seedNode(t, store, alice, &model.Node{
		Type:              model.NodeTypeTemplate,
		Name:              "v1",
		PublicationStatus: model.StatusPublished,
	})
	newer := seedNode(t, store, alice, &model.Node{
		Type:              model.NodeTypeTemplate,
		Name:              "v2",
		PublicationStatus: model.StatusDraft,
	})
	if err := store.LinkVersion(ctx, older, newer); err != nil {
		t.Fatalf("failed to link versions: %v", err)
	}

	perms := projector.Project(ctx, older, alice)
	if perms.CanCreateDraft {
		t.Fatalf("superseded version must not spawn drafts, got %+v", perms)
	}
	perms = projector.Project(ctx, newer, alice)
	if !perms.CanPublish {
		t.Fatalf("expected latest draft to be publishable, got %+v", perms)
	}
}

func TestProjector_SubmitFlagForSubmittableTemplateInstances(t *testing.T) {
	templateID := model.NewNodeID()
	store, projector := newTestProjector(t, templateID)
	ctx := context.Background()

	alice := seedUser(t, store, "alice")
	seedNode(t, store, alice, &model.Node{
		ID:                templateID,
		Type:              model.NodeTypeTemplate,
		Name:              "submittable",
		PublicationStatus: model.StatusPublished,
	})

	submittable := seedNode(t, store, alice, &model.Node{
		Type:      model.NodeTypeInstance,
		Name:      "record",
		IsBasedOn: templateID,
	})
	other := seedNode(t, store, alice, &model.Node{
		Type:      model.NodeTypeInstance,
		Name:      "other record",
		IsBasedOn: model.NewNodeID(),
	})

	if perms := projector.Project(ctx, submittable, alice); !perms.CanSubmit {
		t.Fatalf("expected submit flag, got %+v", perms)
	}
	if perms := projector.Project(ctx, other, alice); perms.CanSubmit {
		t.Fatalf("instances of other templates must not be submittable, got %+v", perms)
	}
}
