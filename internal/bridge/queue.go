// Package bridge hands events from a synchronous notification callback to an
// asynchronous consumer loop.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Pop once the queue is closed and drained.
var ErrClosed = errors.New("bridge: queue closed")

// Policy is what Push does when a bounded queue is full.
type Policy int

const (
	// Block waits until the consumer makes room or the queue is closed.
	Block Policy = iota
	// DropOldest discards the head of the queue to make room.
	DropOldest
	// DropNewest discards the value being pushed.
	DropNewest
)

func (p Policy) String() string {
	switch p {
	case Block:
		return "block"
	case DropOldest:
		return "drop-oldest"
	case DropNewest:
		return "drop-newest"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy parses a policy name as produced by Policy.String.
func ParsePolicy(s string) (Policy, error) {
	for _, p := range []Policy{Block, DropOldest, DropNewest} {
		if p.String() == s {
			return p, nil
		}
	}
	return Block, fmt.Errorf("bridge: unknown overflow policy %q", s)
}

// Queue is a FIFO shared by one or more producers and a single consumer.
// The lock is never held while waiting.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int
	capacity int
	policy   Policy
	closed   bool

	ready chan struct{} // signalled when an item was added
	room  chan struct{} // signalled when an item was removed
	done  chan struct{} // closed by Close

	// OnDrop, if set, is called (without the lock) for every value the
	// overflow policy discards.
	OnDrop func(T)
}

// NewQueue creates a queue holding at most capacity items, or an unbounded
// one when capacity is zero.
func NewQueue[T any](capacity int, policy Policy) *Queue[T] {
	return &Queue[T]{
		capacity: capacity,
		policy:   policy,
		ready:    make(chan struct{}, 1),
		room:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push appends v. It reports false when v was not enqueued, either because
// the queue is closed or because DropNewest discarded it.
func (q *Queue[T]) Push(v T) bool {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return false
		}
		if q.capacity == 0 || q.lenLocked() < q.capacity {
			q.items = append(q.items, v)
			hasRoom := q.capacity > 0 && q.lenLocked() < q.capacity
			q.mu.Unlock()
			signal(q.ready)
			if hasRoom {
				// Pass the wakeup on to other blocked producers.
				signal(q.room)
			}
			return true
		}

		switch q.policy {
		case DropNewest:
			q.mu.Unlock()
			q.drop(v)
			return false
		case DropOldest:
			old := q.popLocked()
			q.items = append(q.items, v)
			q.mu.Unlock()
			signal(q.ready)
			q.drop(old)
			return true
		}

		q.mu.Unlock()
		select {
		case <-q.room:
		case <-q.done:
		}
	}
}

// TryPop removes and returns the head of the queue without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	if q.lenLocked() == 0 {
		q.mu.Unlock()
		var zero T
		return zero, false
	}
	v := q.popLocked()
	more := q.lenLocked() > 0
	q.mu.Unlock()

	signal(q.room)
	if more {
		signal(q.ready)
	}
	return v, true
}

// Pop waits for the head of the queue. It returns ErrClosed once the queue is
// closed and empty, or the context error.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, nil
		}
		q.mu.Lock()
		closed := q.closed && q.lenLocked() == 0
		q.mu.Unlock()
		if closed {
			var zero T
			return zero, ErrClosed
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Ready is signalled after items are added. Consumers select on it and then
// call TryPop until it reports false.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Close rejects further pushes and wakes blocked producers and consumers.
// Items already queued can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
	signal(q.ready)
}

func (q *Queue[T]) lenLocked() int {
	return len(q.items) - q.head
}

func (q *Queue[T]) popLocked() T {
	var zero T
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head > 32 && q.head*2 >= len(q.items):
		// Compact once the consumed prefix dominates the backing array.
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v
}

func (q *Queue[T]) drop(v T) {
	if q.OnDrop != nil {
		q.OnDrop(v)
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
