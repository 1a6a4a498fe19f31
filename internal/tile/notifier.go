package tile

import "sync"

// Notifier fans out change notifications to subscribers. The zero
// value is ready to use. Tile implementations embed it and call
// Notify after every state change.
type Notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]func()
}

// Subscribe registers fn to run on every change. The returned cancel
// function removes the subscription and is safe to call more than
// once and from inside fn.
func (n *Notifier) Subscribe(fn func()) (cancel func()) {
	n.mu.Lock()
	if n.subs == nil {
		n.subs = make(map[int]func())
	}
	id := n.next
	n.next++
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// Notify calls every subscriber. The subscriber set is snapshotted
// first so callbacks may subscribe, cancel, or re-enter the tile
// without holding any lock.
func (n *Notifier) Notify() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
