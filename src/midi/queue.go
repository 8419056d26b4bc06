package midi

import (
	"fmt"
	"sync/atomic"
)

// OverflowPolicy decides what a full Queue does with a new item.
type OverflowPolicy uint8

const (
	// DropNewest rejects the item being pushed.
	DropNewest OverflowPolicy = iota
	// DropOldest discards the head of the queue to make room.
	DropOldest
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop_newest"
	case DropOldest:
		return "drop_oldest"
	}
	return fmt.Sprintf("OverflowPolicy(%d)", p)
}

func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "drop_newest", "":
		return DropNewest, nil
	case "drop_oldest":
		return DropOldest, nil
	}
	return DropNewest, fmt.Errorf("unknown overflow policy %q", s)
}

// DefaultQueueSize is the per-handler event capacity.
const DefaultQueueSize = 128

// Queue is a bounded FIFO that never blocks either side.
type Queue[T any] struct {
	ch      chan T
	policy  OverflowPolicy
	dropped atomic.Uint64
}

func NewQueue[T any](capacity int, policy OverflowPolicy) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Queue[T]{ch: make(chan T, capacity), policy: policy}
}

// Push reports whether v was queued. Every discarded item, new or old, is
// counted in Dropped.
func (q *Queue[T]) Push(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
	}
	if q.policy == DropOldest {
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
		select {
		case q.ch <- v:
			return true
		default:
		}
	}
	q.dropped.Add(1)
	return false
}

// Pop returns false when the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

func (q *Queue[T]) Len() int { return len(q.ch) }

func (q *Queue[T]) Cap() int { return cap(q.ch) }

func (q *Queue[T]) Policy() OverflowPolicy { return q.policy }

func (q *Queue[T]) Dropped() uint64 { return q.dropped.Load() }
