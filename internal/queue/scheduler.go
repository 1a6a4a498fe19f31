package queue

import (
	"sync"

	"github.com/tilemesh/server/internal/tile"
)

// Scheduler admits queued tile loads under concurrency caps. It
// subscribes to every enqueued tile and tracks loads it started until
// they settle (Loaded, Error, Empty, or Abort), at which point the
// caller-supplied onSettled callback runs, typically to plan another
// admission tick or repaint.
type Scheduler struct {
	pq        *PriorityQueue[tile.Tile]
	onSettled func()

	mu       sync.Mutex
	inFlight map[string]struct{}
	unsubs   map[string]func()
	closed   bool
}

// NewScheduler returns a scheduler that invokes onSettled every time
// a tracked tile settles. onSettled may be nil.
func NewScheduler(onSettled func()) *Scheduler {
	return &Scheduler{
		pq:        NewPriorityQueue(func(t tile.Tile) string { return t.Key() }),
		onSettled: onSettled,
		inFlight:  make(map[string]struct{}),
		unsubs:    make(map[string]func()),
	}
}

// Enqueue adds the tile at the given priority (lower loads sooner)
// and reports whether a new queue entry was created. Re-enqueueing a
// queued tile just updates its priority.
func (s *Scheduler) Enqueue(t tile.Tile, priority float64) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	inserted := s.pq.Enqueue(t, priority)
	key := t.Key()
	if _, ok := s.unsubs[key]; !ok {
		s.unsubs[key] = t.Subscribe(func() { s.handleTileChange(t) })
	}
	s.mu.Unlock()
	return inserted
}

func (s *Scheduler) handleTileChange(t tile.Tile) {
	if !t.State().Settled() {
		return
	}

	key := t.Key()
	s.mu.Lock()
	cancel := s.unsubs[key]
	delete(s.unsubs, key)
	delete(s.inFlight, key)
	onSettled := s.onSettled
	if s.closed {
		onSettled = nil
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if onSettled != nil {
		onSettled()
	}
}

// AdmitLoads runs one admission tick: it dequeues tiles while fewer
// than maxTotalInFlight loads are in flight, fewer than
// maxNewThisTick were started by this tick, and the queue is
// non-empty. Aborted tiles are skipped without counting against
// either cap. It returns the number of loads started. A tick that
// started nothing but skipped at least one aborted tile still fires
// onSettled once, so a caller waiting on queue progress is not
// starved by a saturated-but-all-aborted queue.
func (s *Scheduler) AdmitLoads(maxTotalInFlight, maxNewThisTick int) int {
	s.mu.Lock()
	var toLoad []tile.Tile
	skippedAbort := false
	for len(s.inFlight) < maxTotalInFlight && len(toLoad) < maxNewThisTick && !s.pq.IsEmpty() {
		t := s.pq.Dequeue()
		switch t.State() {
		case tile.Abort:
			skippedAbort = true
		case tile.Idle:
			key := t.Key()
			if _, ok := s.inFlight[key]; !ok {
				s.inFlight[key] = struct{}{}
				toLoad = append(toLoad, t)
			}
		}
	}
	onSettled := s.onSettled
	if len(toLoad) > 0 || !skippedAbort || s.closed {
		onSettled = nil
	}
	s.mu.Unlock()

	for _, t := range toLoad {
		t.Load()
	}
	if onSettled != nil {
		onSettled()
	}
	return len(toLoad)
}

// InFlight returns the number of started loads that have not settled.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// Count returns the number of queued tiles.
func (s *Scheduler) Count() int { return s.pq.Count() }

// IsKeyQueued reports whether the tile key is waiting in the queue.
func (s *Scheduler) IsKeyQueued(key string) bool { return s.pq.IsKeyQueued(key) }

// Close drops the queue and all subscriptions. Tiles already loading
// run to completion but no further callbacks fire.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancels := make([]func(), 0, len(s.unsubs))
	for _, c := range s.unsubs {
		cancels = append(cancels, c)
	}
	s.unsubs = make(map[string]func())
	s.inFlight = make(map[string]struct{})
	s.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	s.pq.Clear()
}
