package queue

import (
	"testing"
)

func newStringQueue() *PriorityQueue[string] {
	return NewPriorityQueue(func(s string) string { return s })
}

func TestPriorityQueueOrdersByPriority(t *testing.T) {
	q := newStringQueue()

	q.Enqueue("c", 3)
	q.Enqueue("a", 1)
	q.Enqueue("d", 4)
	q.Enqueue("b", 2)

	want := []string{"a", "b", "c", "d"}
	for _, w := range want {
		got := q.Dequeue()
		if got != w {
			t.Errorf("Dequeue() = %q, want %q", got, w)
		}
	}
	if !q.IsEmpty() {
		t.Errorf("queue not empty after draining, count = %d", q.Count())
	}
}

func TestPriorityQueueDedupByKey(t *testing.T) {
	q := newStringQueue()

	if inserted := q.Enqueue("a", 5); !inserted {
		t.Error("first Enqueue returned false, want true")
	}
	q.Enqueue("b", 3)

	// Re-enqueueing a queued key must update its priority in place.
	if inserted := q.Enqueue("a", 1); inserted {
		t.Error("duplicate Enqueue returned true, want false")
	}
	if q.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", q.Count())
	}
	if got := q.Dequeue(); got != "a" {
		t.Errorf("Dequeue() = %q, want %q after priority update", got, "a")
	}
}

func TestPriorityQueueRemove(t *testing.T) {
	q := newStringQueue()
	q.Enqueue("a", 1)
	q.Enqueue("b", 2)
	q.Enqueue("c", 3)

	if got := q.Remove("b"); got != "b" {
		t.Errorf("Remove(b) = %q, want %q", got, "b")
	}
	if q.IsKeyQueued("b") {
		t.Error("IsKeyQueued(b) = true after Remove")
	}
	if got := q.Dequeue(); got != "a" {
		t.Errorf("Dequeue() = %q, want %q", got, "a")
	}
	if got := q.Dequeue(); got != "c" {
		t.Errorf("Dequeue() = %q, want %q", got, "c")
	}
}

func TestPriorityQueueRemoveUnknownKeyPanics(t *testing.T) {
	q := newStringQueue()
	q.Enqueue("a", 1)

	defer func() {
		if recover() == nil {
			t.Error("Remove of unknown key did not panic")
		}
	}()
	q.Remove("nope")
}

func TestPriorityQueueDequeueEmptyPanics(t *testing.T) {
	q := newStringQueue()

	defer func() {
		if recover() == nil {
			t.Error("Dequeue on empty queue did not panic")
		}
	}()
	q.Dequeue()
}

func TestPriorityQueueReprioritize(t *testing.T) {
	q := newStringQueue()
	q.Enqueue("a", 1)
	q.Enqueue("b", 2)
	q.Enqueue("c", 3)

	q.Reprioritize("c", 0)
	if got := q.Dequeue(); got != "c" {
		t.Errorf("Dequeue() = %q, want %q after Reprioritize", got, "c")
	}

	q.Reprioritize("a", 10)
	if got := q.Dequeue(); got != "b" {
		t.Errorf("Dequeue() = %q, want %q after demoting a", got, "b")
	}
}

func TestPriorityQueueReprioritizeUnknownKeyPanics(t *testing.T) {
	q := newStringQueue()

	defer func() {
		if recover() == nil {
			t.Error("Reprioritize of unknown key did not panic")
		}
	}()
	q.Reprioritize("nope", 1)
}

func TestPriorityQueueClear(t *testing.T) {
	q := newStringQueue()
	q.Enqueue("a", 1)
	q.Enqueue("b", 2)

	q.Clear()
	if !q.IsEmpty() {
		t.Errorf("Count() = %d after Clear, want 0", q.Count())
	}
	if q.IsKeyQueued("a") {
		t.Error("IsKeyQueued(a) = true after Clear")
	}

	// Cleared queue must accept fresh entries for the same keys.
	if inserted := q.Enqueue("a", 1); !inserted {
		t.Error("Enqueue after Clear returned false, want true")
	}
}

func TestPriorityQueueInterleavedOps(t *testing.T) {
	q := newStringQueue()
	for i, key := range []string{"t0", "t1", "t2", "t3", "t4", "t5"} {
		q.Enqueue(key, float64(10-i))
	}
	q.Remove("t3")
	q.Reprioritize("t0", 0)
	q.Enqueue("t6", 4.5)

	want := []string{"t0", "t6", "t5", "t4", "t2", "t1"}
	for _, w := range want {
		if got := q.Dequeue(); got != w {
			t.Fatalf("Dequeue() = %q, want %q", got, w)
		}
	}
}
