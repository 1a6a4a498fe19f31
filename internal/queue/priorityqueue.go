// Package queue provides the priority queue and the admission
// controlled scheduler that feed tile loads.
package queue

import (
	"fmt"
	"sync"
)

// PriorityQueue is a keyed binary min-heap. Lower priority values
// dequeue first. Every element has a key; enqueueing a key that is
// already queued updates the element and its priority instead of
// inserting a duplicate.
type PriorityQueue[T any] struct {
	keyFn func(T) string

	mu         sync.Mutex
	elements   []T
	priorities []float64
	positions  map[string]int
}

// NewPriorityQueue returns an empty queue keyed by keyFn.
func NewPriorityQueue[T any](keyFn func(T) string) *PriorityQueue[T] {
	return &PriorityQueue[T]{
		keyFn:     keyFn,
		positions: make(map[string]int),
	}
}

// Enqueue inserts the element and reports true. When the element's
// key is already queued it replaces the element, moves it to the new
// priority, and reports false.
func (q *PriorityQueue[T]) Enqueue(el T, priority float64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := q.keyFn(el)
	if i, ok := q.positions[key]; ok {
		q.elements[i] = el
		q.updateLocked(i, priority)
		return false
	}

	q.elements = append(q.elements, el)
	q.priorities = append(q.priorities, priority)
	i := len(q.elements) - 1
	q.positions[key] = i
	q.siftUpLocked(i)
	return true
}

// Dequeue removes and returns the minimum-priority element. It panics
// when the queue is empty.
func (q *PriorityQueue[T]) Dequeue() T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.elements) == 0 {
		panic("queue: dequeue on empty queue")
	}
	return q.removeAtLocked(0)
}

// Remove removes and returns the element with the key. It panics when
// the key is not queued.
func (q *PriorityQueue[T]) Remove(key string) T {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, ok := q.positions[key]
	if !ok {
		panic(fmt.Sprintf("queue: remove of key %q that is not queued", key))
	}
	return q.removeAtLocked(i)
}

// Reprioritize moves the keyed element to a new priority. It panics
// when the key is not queued.
func (q *PriorityQueue[T]) Reprioritize(key string, priority float64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, ok := q.positions[key]
	if !ok {
		panic(fmt.Sprintf("queue: reprioritize of key %q that is not queued", key))
	}
	q.updateLocked(i, priority)
}

// IsKeyQueued reports whether the key is in the queue.
func (q *PriorityQueue[T]) IsKeyQueued(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.positions[key]
	return ok
}

// Count returns the number of queued elements.
func (q *PriorityQueue[T]) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.elements)
}

// IsEmpty reports whether the queue holds no elements.
func (q *PriorityQueue[T]) IsEmpty() bool { return q.Count() == 0 }

// Clear drops all queued elements.
func (q *PriorityQueue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.elements = nil
	q.priorities = nil
	q.positions = make(map[string]int)
}

func (q *PriorityQueue[T]) removeAtLocked(i int) T {
	el := q.elements[i]
	delete(q.positions, q.keyFn(el))

	last := len(q.elements) - 1
	if i != last {
		q.elements[i] = q.elements[last]
		q.priorities[i] = q.priorities[last]
		q.positions[q.keyFn(q.elements[i])] = i
	}
	var zero T
	q.elements[last] = zero
	q.elements = q.elements[:last]
	q.priorities = q.priorities[:last]

	if i != last {
		q.siftDownLocked(i)
		q.siftUpLocked(i)
	}
	return el
}

func (q *PriorityQueue[T]) updateLocked(i int, priority float64) {
	old := q.priorities[i]
	q.priorities[i] = priority
	if priority < old {
		q.siftUpLocked(i)
	} else if priority > old {
		q.siftDownLocked(i)
	}
}

func (q *PriorityQueue[T]) siftUpLocked(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if q.priorities[i] >= q.priorities[parent] {
			return
		}
		q.swapLocked(i, parent)
		i = parent
	}
}

func (q *PriorityQueue[T]) siftDownLocked(i int) {
	n := len(q.elements)
	for {
		smallest := i
		if l := 2*i + 1; l < n && q.priorities[l] < q.priorities[smallest] {
			smallest = l
		}
		if r := 2*i + 2; r < n && q.priorities[r] < q.priorities[smallest] {
			smallest = r
		}
		if smallest == i {
			return
		}
		q.swapLocked(i, smallest)
		i = smallest
	}
}

func (q *PriorityQueue[T]) swapLocked(i, j int) {
	q.elements[i], q.elements[j] = q.elements[j], q.elements[i]
	q.priorities[i], q.priorities[j] = q.priorities[j], q.priorities[i]
	q.positions[q.keyFn(q.elements[i])] = i
	q.positions[q.keyFn(q.elements[j])] = j
}
