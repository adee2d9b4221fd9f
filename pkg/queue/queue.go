// Package queue transports permission-sync events between the update
// engine and the search propagation worker over a Redis list.
//
// Delivery is at-least-once: a dequeued event is moved to a processing
// list and only removed on acknowledgment, so a crashed consumer leaves
// the event recoverable. Events carry only the node identifier, never a
// permission snapshot; consumers always recompute from the graph store,
// which makes reprocessing and out-of-order delivery harmless.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/arborhq/arbor/pkg/model"
)

// DefaultQueueName is the Redis list the sync events live on.
const DefaultQueueName = "arbor:search-permission"

// Event is a queued instruction to recompute the derived ACL fields of
// one node in the search index.
type Event struct {
	ID         string       `json:"id"`
	NodeID     model.NodeID `json:"node_id"`
	EnqueuedAt time.Time    `json:"enqueued_at"`

	// raw is the exact payload as read from the list; acknowledgment
	// removes this payload from the processing list.
	raw string
}

// Queue is a Redis-backed permission-sync event queue.
type Queue struct {
	client *redis.Client
	name   string
}

// New creates a queue over an existing Redis client. An empty name
// selects DefaultQueueName.
func New(client *redis.Client, name string) *Queue {
	if name == "" {
		name = DefaultQueueName
	}
	return &Queue{client: client, name: name}
}

// NewClient builds a Redis client from a URL and verifies connectivity.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 10 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func (q *Queue) processingList() string {
	return q.name + ":processing"
}

// EnqueuePermissionSync pushes a sync event for the node. Fire-and-forget;
// duplicates are harmless because processing is idempotent.
func (q *Queue) EnqueuePermissionSync(ctx context.Context, nodeID model.NodeID) error {
	event := Event{
		ID:         uuid.NewString(),
		NodeID:     nodeID,
		EnqueuedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	if err := q.client.RPush(ctx, q.name, string(payload)).Err(); err != nil {
		return fmt.Errorf("failed to enqueue sync event: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next event and moves it to the
// processing list. Returns (nil, nil) when the timeout elapses with no
// event available.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Event, error) {
	payload, err := q.client.BRPopLPush(ctx, q.name, q.processingList(), timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue sync event: %w", err)
	}

	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		// Drop the malformed payload from the processing list so it
		// does not wedge recovery.
		q.client.LRem(ctx, q.processingList(), 1, payload)
		return nil, fmt.Errorf("failed to unmarshal sync event: %w", err)
	}
	event.raw = payload

	return &event, nil
}

// Ack removes a successfully processed event from the processing list.
func (q *Queue) Ack(ctx context.Context, event *Event) error {
	if err := q.client.LRem(ctx, q.processingList(), 1, event.raw).Err(); err != nil {
		return fmt.Errorf("failed to ack sync event: %w", err)
	}
	return nil
}

// Nack returns a failed event to the main list for redelivery.
func (q *Queue) Nack(ctx context.Context, event *Event) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processingList(), 1, event.raw)
	pipe.RPush(ctx, q.name, event.raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to nack sync event: %w", err)
	}
	return nil
}

// RequeueOrphans moves every event stranded on the processing list back
// to the main list. Called on worker startup to recover events a crashed
// consumer left behind.
func (q *Queue) RequeueOrphans(ctx context.Context) (int, error) {
	moved := 0
	for {
		_, err := q.client.RPopLPush(ctx, q.processingList(), q.name).Result()
		if err == redis.Nil {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("failed to requeue orphaned event: %w", err)
		}
		moved++
	}
}

// Depth returns the number of events waiting on the main list.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	depth, err := q.client.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return depth, nil
}
