package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/arborhq/arbor/pkg/model"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, ""), mr
}

func listLen(t *testing.T, mr *miniredis.Miniredis, key string) int {
	t.Helper()
	if !mr.Exists(key) {
		return 0
	}
	items, err := mr.List(key)
	if err != nil {
		t.Fatalf("failed to read list %s: %v", key, err)
	}
	return len(items)
}

func TestQueue_EnqueueDequeueAck(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	nodeID := model.NewNodeID()
	if err := q.EnqueuePermissionSync(ctx, nodeID); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("depth failed: %v", err)
	}
	if depth != 1 {
		t.Fatalf("expected depth 1, got %d", depth)
	}

	event, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if event == nil {
		t.Fatal("expected an event")
	}
	if event.NodeID != nodeID {
		t.Fatalf("expected node %s, got %s", nodeID, event.NodeID)
	}
	if event.ID == "" {
		t.Fatal("expected a non-empty event ID")
	}

	// The event sits on the processing list until acknowledged.
	if n := listLen(t, mr, DefaultQueueName+":processing"); n != 1 {
		t.Fatalf("expected 1 event in processing, got %d", n)
	}
	if err := q.Ack(ctx, event); err != nil {
		t.Fatalf("ack failed: %v", err)
	}
	if n := listLen(t, mr, DefaultQueueName+":processing"); n != 0 {
		t.Fatalf("expected empty processing list after ack, got %d", n)
	}
}

func TestQueue_DequeueTimeoutReturnsNil(t *testing.T) {
	q, _ := newTestQueue(t)

	event, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if event != nil {
		t.Fatalf("expected no event, got %+v", event)
	}
}

func TestQueue_NackRedelivers(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	nodeID := model.NewNodeID()
	if err := q.EnqueuePermissionSync(ctx, nodeID); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	event, err := q.Dequeue(ctx, time.Second)
	if err != nil || event == nil {
		t.Fatalf("dequeue failed: %v %v", event, err)
	}
	if err := q.Nack(ctx, event); err != nil {
		t.Fatalf("nack failed: %v", err)
	}

	if n := listLen(t, mr, DefaultQueueName+":processing"); n != 0 {
		t.Fatalf("expected empty processing list after nack, got %d", n)
	}

	redelivered, err := q.Dequeue(ctx, time.Second)
	if err != nil || redelivered == nil {
		t.Fatalf("redelivery dequeue failed: %v %v", redelivered, err)
	}
	if redelivered.NodeID != nodeID {
		t.Fatalf("expected redelivered node %s, got %s", nodeID, redelivered.NodeID)
	}
}

func TestQueue_RequeueOrphans(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	// Dequeue without acking simulates a consumer crash.
	for i := 0; i < 3; i++ {
		if err := q.EnqueuePermissionSync(ctx, model.NewNodeID()); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		if _, err := q.Dequeue(ctx, time.Second); err != nil {
			t.Fatalf("dequeue failed: %v", err)
		}
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("depth failed: %v", err)
	}
	if depth != 0 {
		t.Fatalf("expected empty main list, got depth %d", depth)
	}

	moved, err := q.RequeueOrphans(ctx)
	if err != nil {
		t.Fatalf("requeue failed: %v", err)
	}
	if moved != 3 {
		t.Fatalf("expected 3 orphans requeued, got %d", moved)
	}
	depth, err = q.Depth(ctx)
	if err != nil {
		t.Fatalf("depth failed: %v", err)
	}
	if depth != 3 {
		t.Fatalf("expected depth 3 after requeue, got %d", depth)
	}
}

func TestQueue_MalformedPayloadIsDropped(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	if _, err := mr.Lpush(DefaultQueueName, "not json"); err != nil {
		t.Fatalf("failed to seed payload: %v", err)
	}

	if _, err := q.Dequeue(ctx, time.Second); err == nil {
		t.Fatal("expected an error for a malformed payload")
	}
	// The bad payload must not linger on the processing list.
	if n := listLen(t, mr, DefaultQueueName+":processing"); n != 0 {
		t.Fatalf("expected malformed payload to be dropped, got %d entries", n)
	}
}
