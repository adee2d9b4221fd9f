package search

import (
	"context"
	"testing"

	"github.com/arborhq/arbor/pkg/graph"
	"github.com/arborhq/arbor/pkg/model"
)

func TestIndex_UpsertAndGetDocument(t *testing.T) {
	db := graph.NewTestDB(t)
	idx := NewIndex(db)
	ctx := context.Background()

	nodeID := model.NewNodeID()
	doc := &Document{
		NodeID:      nodeID,
		NodeType:    model.NodeTypeTemplate,
		Name:        "Study Intake",
		SummaryText: "Study Intake template",
		Owner:       model.UserID("alice"),
		ReadUsers:   []model.UserID{"bob"},
		WriteUsers:  []model.UserID{"carol"},
		ReadGroups:  []model.GroupID{"curators"},
		WriteGroups: nil,
	}
	if err := idx.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := idx.GetDocument(ctx, nodeID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected document")
	}
	if got.Name != "Study Intake" || got.Owner != "alice" {
		t.Fatalf("unexpected document: %+v", got)
	}
	if len(got.ReadUsers) != 1 || got.ReadUsers[0] != "bob" {
		t.Fatalf("unexpected read users: %v", got.ReadUsers)
	}
	if len(got.WriteUsers) != 1 || got.WriteUsers[0] != "carol" {
		t.Fatalf("unexpected write users: %v", got.WriteUsers)
	}
	if len(got.ReadGroups) != 1 || got.ReadGroups[0] != "curators" {
		t.Fatalf("unexpected read groups: %v", got.ReadGroups)
	}
	if len(got.WriteGroups) != 0 {
		t.Fatalf("unexpected write groups: %v", got.WriteGroups)
	}

	// Upsert again with new content replaces the row.
	doc.Name = "Study Intake v2"
	if err := idx.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	got, err = idx.GetDocument(ctx, nodeID)
	if err != nil {
		t.Fatalf("get after upsert failed: %v", err)
	}
	if got.Name != "Study Intake v2" {
		t.Fatalf("expected updated name, got %q", got.Name)
	}
}

func TestIndex_GetDocumentMissing(t *testing.T) {
	db := graph.NewTestDB(t)
	idx := NewIndex(db)

	got, err := idx.GetDocument(context.Background(), model.NewNodeID())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing document, got %+v", got)
	}
}

func TestIndex_UpdateACLFields(t *testing.T) {
	db := graph.NewTestDB(t)
	idx := NewIndex(db)
	ctx := context.Background()

	nodeID := model.NewNodeID()

	// No document yet: update reports not found without error.
	updated, err := idx.UpdateACLFields(ctx, nodeID, "alice", nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated {
		t.Fatal("expected no update on missing document")
	}

	if err := idx.UpsertDocument(ctx, &Document{
		NodeID:   nodeID,
		NodeType: model.NodeTypeFolder,
		Name:     "Projects",
		Owner:    "alice",
	}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	updated, err = idx.UpdateACLFields(ctx, nodeID, "bob",
		[]model.UserID{"carol"}, []model.UserID{"dave"},
		[]model.GroupID{"readers"}, []model.GroupID{"writers"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !updated {
		t.Fatal("expected update to touch the document")
	}

	got, err := idx.GetDocument(ctx, nodeID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Owner != "bob" {
		t.Fatalf("expected owner bob, got %q", got.Owner)
	}
	if got.Name != "Projects" {
		t.Fatalf("ACL update must not touch content fields, got name %q", got.Name)
	}
	if len(got.WriteGroups) != 1 || got.WriteGroups[0] != "writers" {
		t.Fatalf("unexpected write groups: %v", got.WriteGroups)
	}
}

func TestIndex_DeleteDocument(t *testing.T) {
	db := graph.NewTestDB(t)
	idx := NewIndex(db)
	ctx := context.Background()

	nodeID := model.NewNodeID()
	if err := idx.UpsertDocument(ctx, &Document{
		NodeID:   nodeID,
		NodeType: model.NodeTypeInstance,
		Name:     "record-1",
		Owner:    "alice",
	}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if err := idx.DeleteDocument(ctx, nodeID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	got, err := idx.GetDocument(ctx, nodeID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Fatal("expected document to be gone")
	}

	// Deleting an absent document is a no-op.
	if err := idx.DeleteDocument(ctx, nodeID); err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
}
