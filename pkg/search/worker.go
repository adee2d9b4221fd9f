package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/arborhq/arbor/pkg/async"
	"github.com/arborhq/arbor/pkg/graph"
	"github.com/arborhq/arbor/pkg/observability"
	"github.com/arborhq/arbor/pkg/permission"
	"github.com/arborhq/arbor/pkg/queue"
)

var workerTracer = otel.Tracer("arbor/search/permission-worker")

const (
	dequeueTimeout = 5 * time.Second
	processTimeout = 30 * time.Second
)

// Worker consumes permission-sync events and rewrites the ACL fields of
// the affected search documents. It always recomputes from the graph
// store, never from the event payload, so duplicate and out-of-order
// deliveries converge to the same index state.
type Worker struct {
	queue       *queue.Queue
	store       *graph.Store
	resolver    *permission.Resolver
	index       *Index
	logger      *observability.Logger
	metrics     *observability.Metrics
	concurrency int
}

// NewWorker creates a propagation worker with the given consumer
// concurrency. A nil metrics handle disables instrumentation.
func NewWorker(q *queue.Queue, store *graph.Store, resolver *permission.Resolver, index *Index,
	logger *observability.Logger, metrics *observability.Metrics, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:       q,
		store:       store,
		resolver:    resolver,
		index:       index,
		logger:      logger,
		metrics:     metrics,
		concurrency: concurrency,
	}
}

// Run consumes events until the context is canceled. Failed events are
// returned to the queue for redelivery; only successfully processed
// events are acknowledged.
func (w *Worker) Run(ctx context.Context) error {
	pool := async.NewWorkerPool(ctx, w.concurrency, "permission sync", processTimeout, w.logger)
	defer pool.Shutdown(processTimeout)

	w.logger.WithField("concurrency", w.concurrency).Info("permission sync worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("permission sync worker stopping")
			return ctx.Err()
		default:
		}

		event, err := w.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.WithError(err).Warn("failed to dequeue sync event")
			continue
		}
		if event == nil {
			w.observeQueueDepth(ctx)
			continue
		}

		ev := event
		if err := pool.Submit(func(taskCtx context.Context) error {
			w.handle(taskCtx, ev)
			return nil
		}); err != nil {
			// Pool is shutting down; put the event back for the next worker.
			w.queue.Nack(ctx, ev)
			return nil
		}
	}
}

func (w *Worker) handle(ctx context.Context, event *queue.Event) {
	start := time.Now()
	err := w.ProcessEvent(ctx, event)

	if w.metrics != nil {
		w.metrics.SyncProcessDuration.Observe(time.Since(start).Seconds())
		result := "success"
		if err != nil {
			result = "failure"
		}
		w.metrics.SyncProcessedTotal.WithLabelValues(result).Inc()
	}

	if err != nil {
		w.logger.WithError(err).WithField("node_id", string(event.NodeID)).
			Warn("permission sync failed, event requeued")
		if nackErr := w.queue.Nack(ctx, event); nackErr != nil {
			w.logger.WithError(nackErr).Error("failed to requeue sync event")
		}
		return
	}

	if ackErr := w.queue.Ack(ctx, event); ackErr != nil {
		// Redelivery after a lost ack is harmless: reprocessing converges.
		w.logger.WithError(ackErr).Warn("failed to ack sync event")
	}
}

// ProcessEvent recomputes the ACL fields of one node's document from the
// authoritative graph store. Idempotent.
func (w *Worker) ProcessEvent(ctx context.Context, event *queue.Event) error {
	ctx, span := workerTracer.Start(ctx, "SyncNodePermissions",
		trace.WithAttributes(attribute.String("node_id", string(event.NodeID))),
	)
	defer span.End()

	node, err := w.store.GetNode(ctx, event.NodeID)
	if errors.Is(err, graph.ErrNodeNotFound) {
		// Node deleted since the event was queued; drop its document.
		if err := w.index.DeleteDocument(ctx, event.NodeID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to delete document")
			return err
		}
		span.SetStatus(codes.Ok, "document deleted")
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load node")
		return fmt.Errorf("failed to load node %s: %w", event.NodeID, err)
	}

	acl, err := w.resolver.Materialized(ctx, event.NodeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to materialize permissions")
		return fmt.Errorf("failed to materialize permissions for %s: %w", event.NodeID, err)
	}

	updated, err := w.index.UpdateACLFields(ctx, event.NodeID, acl.Owner,
		acl.ReadUsers, acl.WriteUsers, acl.ReadGroups, acl.WriteGroups)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update ACL fields")
		return fmt.Errorf("failed to update ACL fields for %s: %w", event.NodeID, err)
	}

	if !updated {
		// First sight of this node on the search side; write the full
		// document.
		doc := &Document{
			NodeID:      node.ID,
			NodeType:    node.Type,
			Name:        node.Name,
			Owner:       acl.Owner,
			ReadUsers:   acl.ReadUsers,
			WriteUsers:  acl.WriteUsers,
			ReadGroups:  acl.ReadGroups,
			WriteGroups: acl.WriteGroups,
		}
		if err := w.index.UpsertDocument(ctx, doc); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to upsert document")
			return fmt.Errorf("failed to upsert document for %s: %w", event.NodeID, err)
		}
	}

	span.SetStatus(codes.Ok, "synced")
	return nil
}

// ReconcileAll enqueues a sync event for every node in the graph store.
// Run periodically, this converges the index after any missed events.
func (w *Worker) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := w.store.ListNodeIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list nodes for reconciliation: %w", err)
	}

	enqueued := 0
	for _, id := range ids {
		if err := w.queue.EnqueuePermissionSync(ctx, id); err != nil {
			return enqueued, fmt.Errorf("failed to enqueue reconciliation event: %w", err)
		}
		enqueued++
	}
	return enqueued, nil
}

func (w *Worker) observeQueueDepth(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	if depth, err := w.queue.Depth(ctx); err == nil {
		w.metrics.SyncQueueDepth.Set(float64(depth))
	}
}
