package eventmodels

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// FIFOQueue is a bounded queue decoupling event handlers from slow sinks.
// Enqueue never blocks: when the queue is full the item is dropped with a
// warning, which is acceptable for audit traffic but not for commands.
type FIFOQueue[T any] struct {
	caller string
	queue  chan T
	mutex  sync.Mutex
	drops  uint
}

func NewFIFOQueue[T any](caller string, size int) *FIFOQueue[T] {
	return &FIFOQueue[T]{
		caller: caller,
		queue:  make(chan T, size),
	}
}

func (q *FIFOQueue[T]) Enqueue(item T) {
	select {
	case q.queue <- item:
	default:
		q.mutex.Lock()
		q.drops++
		drops := q.drops
		q.mutex.Unlock()

		log.Warnf("%v: queue full, item dropped (drops=%v)", q.caller, drops)
	}
}

func (q *FIFOQueue[T]) Dequeue() (T, bool) {
	select {
	case item := <-q.queue:
		return item, true
	default:
		var zero T
		return zero, false
	}
}

// C exposes the underlying channel for select-based consumers.
func (q *FIFOQueue[T]) C() <-chan T {
	return q.queue
}

func (q *FIFOQueue[T]) Len() int {
	return len(q.queue)
}
