package util

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrPriorityQueueClosed = errors.New("priority queue closed")
	ErrPriorityQueueEmpty  = errors.New("priority queue empty")
)

// PriorityItem represents an item with priority.
type PriorityItem[T any] struct {
	Value    T
	Priority int // Higher number means higher priority
	Index    int // Used by heap interface
	seq      uint64
}

// PriorityQueue implements a priority queue using heap. Items with equal
// priority are returned in insertion order.
type PriorityQueue[T any] struct {
	items   []*PriorityItem[T]
	mu      sync.Mutex
	closed  bool
	nextSeq uint64
	notify  chan struct{}
}

// NewPriorityQueue creates a new priority queue.
func NewPriorityQueue[T any]() *PriorityQueue[T] {
	pq := &PriorityQueue[T]{
		items:  make([]*PriorityItem[T], 0),
		notify: make(chan struct{}, 1),
	}
	heap.Init(pq)
	return pq
}

// Len implements heap.Interface.
func (pq *PriorityQueue[T]) Len() int { return len(pq.items) }

// Less implements heap.Interface (higher priority first, FIFO within a
// priority).
func (pq *PriorityQueue[T]) Less(i, j int) bool {
	if pq.items[i].Priority != pq.items[j].Priority {
		return pq.items[i].Priority > pq.items[j].Priority
	}
	return pq.items[i].seq < pq.items[j].seq
}

// Swap implements heap.Interface.
func (pq *PriorityQueue[T]) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
	pq.items[i].Index = i
	pq.items[j].Index = j
}

// Push implements heap.Interface.
func (pq *PriorityQueue[T]) Push(x interface{}) {
	n := len(pq.items)
	item := x.(*PriorityItem[T])
	item.Index = n
	pq.items = append(pq.items, item)
}

// Pop implements heap.Interface.
func (pq *PriorityQueue[T]) Pop() interface{} {
	old := pq.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	pq.items = old[0 : n-1]
	return item
}

// PushItem adds an item to the priority queue.
func (pq *PriorityQueue[T]) PushItem(value T, priority int) error {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	if pq.closed {
		return ErrPriorityQueueClosed
	}

	item := &PriorityItem[T]{
		Value:    value,
		Priority: priority,
		seq:      pq.nextSeq,
	}
	pq.nextSeq++
	heap.Push(pq, item)

	select {
	case pq.notify <- struct{}{}:
	default:
	}
	return nil
}

// TryPop removes and returns the highest priority item without blocking.
func (pq *PriorityQueue[T]) TryPop() (T, error) {
	var zero T

	pq.mu.Lock()
	defer pq.mu.Unlock()

	if pq.closed {
		return zero, ErrPriorityQueueClosed
	}
	if len(pq.items) == 0 {
		return zero, ErrPriorityQueueEmpty
	}

	item := heap.Pop(pq).(*PriorityItem[T])
	if len(pq.items) > 0 {
		// Chain the wakeup so concurrent waiters see the remaining items.
		select {
		case pq.notify <- struct{}{}:
		default:
		}
	}
	return item.Value, nil
}

// PopItem removes and returns the highest priority item, waiting up to
// timeout for one to arrive. A zero timeout blocks until an item is pushed,
// the queue closes, or ctx is cancelled.
func (pq *PriorityQueue[T]) PopItem(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		value, err := pq.TryPop()
		if err == nil {
			return value, nil
		}
		if errors.Is(err, ErrPriorityQueueClosed) {
			return zero, err
		}

		select {
		case <-pq.notify:
		case <-deadline:
			return zero, ErrPriorityQueueEmpty
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close closes the priority queue and wakes any blocked pops.
func (pq *PriorityQueue[T]) Close() {
	pq.mu.Lock()
	pq.closed = true
	pq.mu.Unlock()

	select {
	case pq.notify <- struct{}{}:
	default:
	}
}

// Size returns the number of queued items.
func (pq *PriorityQueue[T]) Size() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return len(pq.items)
}

// IsEmpty checks if the queue is empty.
func (pq *PriorityQueue[T]) IsEmpty() bool {
	return pq.Size() == 0
}
