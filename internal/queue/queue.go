// Package queue defines the work-queue contract the orchestrator consumes.
// Delivery is at-least-once: a work item may be redelivered after a crash or
// an unacknowledged claim, so consumers must be safe to re-run.
package queue

import (
	"context"
	"time"

	"github.com/finagent/orchestrator/internal/domain"
)

// Queue names used by the orchestration core.
const (
	QueueOrchestrator = "run.orchestrator"
	QueueToolExec     = "run.tool-exec"
	QueueDeadLetter   = "run.dead-letter"
)

// Delivery is one claimed work item. The tag identifies the claim for
// Ack/Reject.
type Delivery struct {
	Tag      string
	Queue    string
	Item     domain.RunWorkItem
	Attempts int
}

// Queue is the at-least-once work queue collaborator.
type Queue interface {
	// Publish enqueues one item.
	Publish(ctx context.Context, queueName string, item domain.RunWorkItem) error
	// PublishBatch enqueues all items or none.
	PublishBatch(ctx context.Context, queueName string, items []domain.RunWorkItem) error
	// Consume blocks until an item is available, the timeout passes, or
	// ctx is cancelled. ok is false on timeout/cancel.
	Consume(ctx context.Context, queueName string, timeout time.Duration) (Delivery, bool, error)
	// Ack completes a delivery.
	Ack(tag string) error
	// Reject abandons a delivery. With requeue the item becomes eligible
	// for redelivery until the attempt limit, after which it moves to the
	// dead-letter queue; without requeue it dead-letters immediately.
	Reject(tag string, requeue bool) error
}
