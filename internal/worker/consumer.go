package worker

import (
	"context"
	"log"
	"time"

	"github.com/finagent/orchestrator/internal/domain"
	"github.com/finagent/orchestrator/internal/queue"
)

// Consumer drives one competing-consumer loop over a named queue: claim an
// item, process it, publish follow-ups, then acknowledge or reject. Run
// several Consumers (across goroutines or processes) for parallelism; the
// queue owns delivery fairness.
type Consumer struct {
	queue     queue.Queue
	worker    *Worker
	queueName string
}

// NewConsumer creates a consumer for the named queue.
func NewConsumer(q queue.Queue, w *Worker, queueName string) *Consumer {
	return &Consumer{queue: q, worker: w, queueName: queueName}
}

// Run consumes until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		delivery, ok, err := c.queue.Consume(ctx, c.queueName, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("ERROR: consume on %s failed: %v", c.queueName, err)
			continue
		}
		if !ok {
			continue
		}
		c.handle(ctx, delivery)
	}
}

func (c *Consumer) handle(ctx context.Context, d queue.Delivery) {
	result := c.worker.Process(ctx, d.Item)

	if ctx.Err() != nil {
		// Cancelled mid-item: leave the item unacknowledged so the queue
		// redelivers it, never report it completed.
		if err := c.queue.Reject(d.Tag, true); err != nil {
			log.Printf("WARN: reject after cancellation failed: %v", err)
		}
		return
	}

	if !result.Success {
		log.Printf("WARN: work item %s failed (attempt %d): %s", d.Item.WorkItemID, d.Attempts, result.Error)
		if err := c.queue.Reject(d.Tag, result.Retryable); err != nil {
			log.Printf("WARN: reject failed for %s: %v", d.Item.WorkItemID, err)
		}
		return
	}

	if err := c.publishFollowUps(ctx, result.FollowUps); err != nil {
		// Follow-ups could not be published; redeliver the item so they
		// are regenerated. Event dedupe keys and the execution guard make
		// the re-run safe.
		log.Printf("ERROR: failed to publish follow-ups for %s: %v", d.Item.WorkItemID, err)
		if err := c.queue.Reject(d.Tag, true); err != nil {
			log.Printf("WARN: reject failed for %s: %v", d.Item.WorkItemID, err)
		}
		return
	}

	if err := c.queue.Ack(d.Tag); err != nil {
		log.Printf("WARN: ack failed for %s: %v", d.Item.WorkItemID, err)
	}
}

func (c *Consumer) publishFollowUps(ctx context.Context, items []domain.RunWorkItem) error {
	if len(items) == 0 {
		return nil
	}
	byQueue := map[string][]domain.RunWorkItem{}
	for _, item := range items {
		byQueue[QueueFor(item.Type)] = append(byQueue[QueueFor(item.Type)], item)
	}
	for name, batch := range byQueue {
		if err := c.queue.PublishBatch(ctx, name, batch); err != nil {
			return err
		}
	}
	return nil
}

// QueueFor maps a work type to the queue that serves it.
func QueueFor(t domain.WorkType) string {
	switch t {
	case domain.WorkTypeExecuteToolCall:
		return queue.QueueToolExec
	default:
		return queue.QueueOrchestrator
	}
}
