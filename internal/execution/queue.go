// Package execution is the engine that turns an approved signal into one
// or two live orders: a bounded priority queue feeds a pool of worker
// goroutines gated by a counting semaphore, each running the single- or
// dual-leg order state machine and recording latency. Grounded on the
// teacher's executor.go channel-driven loop (one goroutine per
// in-flight unit of work, a completion callback releasing capacity) and
// fill_tracker.go's poll-with-backoff shape, generalized from "paper vs
// live opportunity" into the full queued/concurrent/state-machine model.
package execution

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/mselser95/mercury/pkg/types"
)

// QueuedSignal is one unit of queued work: an approved signal plus its
// queue-lifecycle bookkeeping.
type QueuedSignal struct {
	SignalID    string
	Signal      types.ApprovedSignal
	Priority    types.Priority
	Status      string // queued, running, completed, failed, expired, cancelled
	QueuedAt    time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Latency     *ExecutionLatency
	Error       error

	index int // heap.Interface bookkeeping
}

// priorityQueue is a container/heap.Interface ordering by priority
// ascending (CRITICAL=0 first) then queued_at ascending (FIFO within a
// priority) — the stdlib's container/heap is used because the pack
// carries no dedicated priority-queue library; this is the documented
// stdlib exception.
type priorityQueue []*QueuedSignal

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].Priority != pq[j].Priority {
		return pq[i].Priority < pq[j].Priority
	}
	return pq[i].QueuedAt.Before(pq[j].QueuedAt)
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*QueuedSignal)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// Queue is the bounded, concurrency-safe priority queue the processor
// drains.
type Queue struct {
	mu       sync.Mutex
	items    priorityQueue
	byID     map[string]*QueuedSignal
	capacity int
}

// NewQueue constructs an empty queue bounded at capacity (0 means
// unbounded, used only in tests).
func NewQueue(capacity int) *Queue {
	return &Queue{
		items:    make(priorityQueue, 0),
		byID:     make(map[string]*QueuedSignal),
		capacity: capacity,
	}
}

// ErrQueueFull is returned by Enqueue when the queue is at capacity.
var ErrQueueFull = fmt.Errorf("queue_full")

// ErrDuplicateSignal is returned by Enqueue for a signal_id already queued.
var ErrDuplicateSignal = fmt.Errorf("duplicate_signal_id")

// Enqueue adds qs to the queue, rejecting on capacity or duplicate
// signal_id.
func (q *Queue) Enqueue(qs *QueuedSignal) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.items) >= q.capacity {
		return ErrQueueFull
	}
	if _, exists := q.byID[qs.SignalID]; exists {
		return ErrDuplicateSignal
	}

	qs.Status = "queued"
	heap.Push(&q.items, qs)
	q.byID[qs.SignalID] = qs
	QueueDepth.Set(float64(len(q.items)))
	return nil
}

// Dequeue pops the highest-priority, earliest-queued signal, or false if
// the queue is empty.
func (q *Queue) Dequeue() (*QueuedSignal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	qs := heap.Pop(&q.items).(*QueuedSignal)
	delete(q.byID, qs.SignalID)
	QueueDepth.Set(float64(len(q.items)))
	return qs, true
}

// Len returns the current queue length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ErrSignalNotQueued is returned by Cancel when signalID isn't PENDING in
// the queue (already dequeued, or never enqueued).
var ErrSignalNotQueued = fmt.Errorf("signal_not_queued")

// Cancel removes signalID from the queue while it is still PENDING,
// marking it cancelled. It has no effect once the signal has been
// dequeued to a worker.
func (q *Queue) Cancel(signalID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	qs, exists := q.byID[signalID]
	if !exists {
		return ErrSignalNotQueued
	}
	heap.Remove(&q.items, qs.index)
	delete(q.byID, signalID)
	qs.Status = "cancelled"
	QueueDepth.Set(float64(len(q.items)))
	return nil
}
