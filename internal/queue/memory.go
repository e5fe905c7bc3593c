package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/finagent/orchestrator/internal/domain"
)

// DefaultMaxAttempts is the delivery attempt limit before an item is
// dead-lettered. The contract only exposes reject(requeue); the concrete
// retry policy is this implementation's documented choice.
const DefaultMaxAttempts = 5

type pending struct {
	item     domain.RunWorkItem
	attempts int
}

type inflight struct {
	queue    string
	item     domain.RunWorkItem
	attempts int
}

// MemoryQueue is an in-process Queue for single-node deployments and tests.
// Competing consumers share the named queues; delivery fairness is FIFO per
// queue. Redelivery after Reject(requeue) is immediate; a broker-backed
// implementation supplies its own backoff.
type MemoryQueue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	queues      map[string][]pending
	inflight    map[string]inflight
	maxAttempts int
	counter     uint64
	closed      bool
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates an empty queue set with the default attempt limit.
func NewMemoryQueue() *MemoryQueue {
	q := &MemoryQueue{
		queues:      make(map[string][]pending),
		inflight:    make(map[string]inflight),
		maxAttempts: DefaultMaxAttempts,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Publish enqueues one item.
func (q *MemoryQueue) Publish(_ context.Context, queueName string, item domain.RunWorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue is closed")
	}
	q.queues[queueName] = append(q.queues[queueName], pending{item: item})
	q.cond.Broadcast()
	return nil
}

// PublishBatch enqueues all items atomically.
func (q *MemoryQueue) PublishBatch(_ context.Context, queueName string, items []domain.RunWorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue is closed")
	}
	for _, item := range items {
		q.queues[queueName] = append(q.queues[queueName], pending{item: item})
	}
	q.cond.Broadcast()
	return nil
}

// Consume claims the next item from the named queue.
func (q *MemoryQueue) Consume(ctx context.Context, queueName string, timeout time.Duration) (Delivery, bool, error) {
	deadline := time.Now().Add(timeout)

	// Wake waiters when the context is cancelled so the cond loop can
	// observe it.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	// Bound waits so deadline expiry is observed without a waker per call.
	wakeup := time.AfterFunc(timeout, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer wakeup.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return Delivery{}, false, err
		}
		if q.closed {
			return Delivery{}, false, fmt.Errorf("queue is closed")
		}
		if items := q.queues[queueName]; len(items) > 0 {
			p := items[0]
			q.queues[queueName] = items[1:]
			q.counter++
			tag := fmt.Sprintf("dlv_%d", q.counter)
			attempts := p.attempts + 1
			q.inflight[tag] = inflight{queue: queueName, item: p.item, attempts: attempts}
			return Delivery{Tag: tag, Queue: queueName, Item: p.item, Attempts: attempts}, true, nil
		}
		if time.Now().After(deadline) {
			return Delivery{}, false, nil
		}
		q.cond.Wait()
	}
}

// Ack completes a delivery.
func (q *MemoryQueue) Ack(tag string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[tag]; !ok {
		return fmt.Errorf("unknown delivery tag %s", tag)
	}
	delete(q.inflight, tag)
	return nil
}

// Reject abandons a delivery, requeueing or dead-lettering it.
func (q *MemoryQueue) Reject(tag string, requeue bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	inf, ok := q.inflight[tag]
	if !ok {
		return fmt.Errorf("unknown delivery tag %s", tag)
	}
	delete(q.inflight, tag)

	if requeue && inf.attempts < q.maxAttempts {
		q.queues[inf.queue] = append(q.queues[inf.queue], pending{item: inf.item, attempts: inf.attempts})
	} else {
		q.queues[QueueDeadLetter] = append(q.queues[QueueDeadLetter], pending{item: inf.item, attempts: inf.attempts})
	}
	q.cond.Broadcast()
	return nil
}

// Depth reports the number of waiting items on a queue.
func (q *MemoryQueue) Depth(queueName string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[queueName])
}

// Close wakes all blocked consumers and refuses further publishes.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
