package search

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/arborhq/arbor/pkg/graph"
	"github.com/arborhq/arbor/pkg/model"
	"github.com/arborhq/arbor/pkg/observability"
	"github.com/arborhq/arbor/pkg/permission"
	"github.com/arborhq/arbor/pkg/queue"
)

type workerFixture struct {
	store  *graph.Store
	index  *Index
	queue  *queue.Queue
	worker *Worker
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()

	db := graph.NewTestDB(t)
	store := graph.NewStore(db)
	resolver := permission.NewResolver(store)
	index := NewIndex(db)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	q := queue.New(client, queue.DefaultQueueName)

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	worker := NewWorker(q, store, resolver, index, logger, nil, 1)

	return &workerFixture{store: store, index: index, queue: q, worker: worker}
}

func seedUser(t *testing.T, store *graph.Store, id string) model.UserID {
	t.Helper()
	uid := model.UserID(id)
	if err := store.CreateUser(context.Background(), &model.User{
		ID:       uid,
		Username: id,
		Email:    id + "@example.org",
	}); err != nil {
		t.Fatalf("failed to create user %s: %v", id, err)
	}
	return uid
}

func seedNode(t *testing.T, store *graph.Store, owner model.UserID, name string) model.NodeID {
	t.Helper()
	node := &model.Node{
		ID:   model.NewNodeID(),
		Type: model.NodeTypeFolder,
		Name: name,
	}
	if err := store.CreateNode(context.Background(), node, owner); err != nil {
		t.Fatalf("failed to create node %s: %v", name, err)
	}
	return node.ID
}

func dequeueOne(t *testing.T, q *queue.Queue) *queue.Event {
	t.Helper()
	event, err := q.Dequeue(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if event == nil {
		t.Fatal("expected an event on the queue")
	}
	return event
}

func TestWorker_CreatesDocumentOnFirstSync(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	alice := seedUser(t, f.store, "alice")
	bob := seedUser(t, f.store, "bob")
	nodeID := seedNode(t, f.store, alice, "Projects")
	if err := f.store.AddGrants(ctx, nodeID,
		[]model.UserGrant{{UserID: bob, Level: model.PermissionRead}}, nil); err != nil {
		t.Fatalf("failed to add grant: %v", err)
	}

	if err := f.queue.EnqueuePermissionSync(ctx, nodeID); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	event := dequeueOne(t, f.queue)
	if err := f.worker.ProcessEvent(ctx, event); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	doc, err := f.index.GetDocument(ctx, nodeID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc == nil {
		t.Fatal("expected a document after sync")
	}
	if doc.Owner != alice {
		t.Fatalf("expected owner %s, got %s", alice, doc.Owner)
	}
	if len(doc.ReadUsers) != 1 || doc.ReadUsers[0] != bob {
		t.Fatalf("expected read users [bob], got %v", doc.ReadUsers)
	}
}

func TestWorker_UpdatesACLWithoutTouchingContent(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	alice := seedUser(t, f.store, "alice")
	carol := seedUser(t, f.store, "carol")
	nodeID := seedNode(t, f.store, alice, "Studies")

	if err := f.index.UpsertDocument(ctx, &Document{
		NodeID:      nodeID,
		NodeType:    model.NodeTypeFolder,
		Name:        "Studies",
		SummaryText: "curated study folder",
		Owner:       alice,
	}); err != nil {
		t.Fatalf("seed document failed: %v", err)
	}

	if err := f.store.AddGrants(ctx, nodeID,
		[]model.UserGrant{{UserID: carol, Level: model.PermissionWrite}}, nil); err != nil {
		t.Fatalf("failed to add grant: %v", err)
	}

	if err := f.queue.EnqueuePermissionSync(ctx, nodeID); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := f.worker.ProcessEvent(ctx, dequeueOne(t, f.queue)); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	doc, err := f.index.GetDocument(ctx, nodeID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.SummaryText != "curated study folder" {
		t.Fatalf("content field changed: %q", doc.SummaryText)
	}
	if len(doc.WriteUsers) != 1 || doc.WriteUsers[0] != carol {
		t.Fatalf("expected write users [carol], got %v", doc.WriteUsers)
	}
	// Write access implies read access in the index filter lists.
	if len(doc.ReadUsers) != 1 || doc.ReadUsers[0] != carol {
		t.Fatalf("expected read users [carol], got %v", doc.ReadUsers)
	}
}

func TestWorker_DeletesDocumentForMissingNode(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	ghostID := model.NewNodeID()
	if err := f.index.UpsertDocument(ctx, &Document{
		NodeID:   ghostID,
		NodeType: model.NodeTypeInstance,
		Name:     "stale",
		Owner:    "alice",
	}); err != nil {
		t.Fatalf("seed document failed: %v", err)
	}

	if err := f.queue.EnqueuePermissionSync(ctx, ghostID); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := f.worker.ProcessEvent(ctx, dequeueOne(t, f.queue)); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	doc, err := f.index.GetDocument(ctx, ghostID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc != nil {
		t.Fatal("expected stale document to be deleted")
	}
}

func TestWorker_ProcessEventIsIdempotent(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	alice := seedUser(t, f.store, "alice")
	nodeID := seedNode(t, f.store, alice, "Inbox")

	for i := 0; i < 3; i++ {
		if err := f.queue.EnqueuePermissionSync(ctx, nodeID); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if err := f.worker.ProcessEvent(ctx, dequeueOne(t, f.queue)); err != nil {
			t.Fatalf("process %d failed: %v", i, err)
		}
	}

	doc, err := f.index.GetDocument(ctx, nodeID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc == nil || doc.Owner != alice {
		t.Fatalf("unexpected document after repeated sync: %+v", doc)
	}
}

func TestWorker_ReconcileAllEnqueuesEveryNode(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	alice := seedUser(t, f.store, "alice")
	seedNode(t, f.store, alice, "a")
	seedNode(t, f.store, alice, "b")
	seedNode(t, f.store, alice, "c")

	n, err := f.worker.ReconcileAll(ctx)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 events enqueued, got %d", n)
	}
	depth, err := f.queue.Depth(ctx)
	if err != nil {
		t.Fatalf("depth failed: %v", err)
	}
	if depth != 3 {
		t.Fatalf("expected queue depth 3, got %d", depth)
	}
}
