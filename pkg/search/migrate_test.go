package search

import (
	"context"
	"database/sql"
	"io"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arborhq/arbor/pkg/graph"
	"github.com/arborhq/arbor/pkg/model"
	"github.com/arborhq/arbor/pkg/observability"
	"github.com/arborhq/arbor/pkg/permission"
	"github.com/arborhq/arbor/pkg/queue"
)

// Runs the production migration path rather than the test schema helper:
// the tables the worker touches must all come from RunMigrations plus
// Index.Migrate, the same sequence the binaries execute at startup.
func TestProductionMigrationsCoverWorkerTables(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := graph.RunMigrations(ctx, db); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	index := NewIndex(db)
	if err := index.Migrate(ctx); err != nil {
		t.Fatalf("index migration failed: %v", err)
	}
	// Restart-safe: the DDL must tolerate re-execution.
	if err := index.Migrate(ctx); err != nil {
		t.Fatalf("repeated index migration failed: %v", err)
	}

	store := graph.NewStore(db)
	resolver := permission.NewResolver(store)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	worker := NewWorker(nil, store, resolver, index, logger, nil, 1)

	owner := model.UserID("alice")
	if err := store.CreateUser(ctx, &model.User{ID: owner, Username: "alice"}); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	node := &model.Node{ID: model.NewNodeID(), Type: model.NodeTypeFolder, Name: "docs"}
	if err := store.CreateNode(ctx, node, owner); err != nil {
		t.Fatalf("failed to create node: %v", err)
	}

	if err := worker.ProcessEvent(ctx, &queue.Event{NodeID: node.ID}); err != nil {
		t.Fatalf("ProcessEvent failed against migrated schema: %v", err)
	}

	doc, err := index.GetDocument(ctx, node.ID)
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if doc == nil || doc.Owner != owner {
		t.Fatalf("expected document owned by %s, got %+v", owner, doc)
	}
}
