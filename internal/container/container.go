// Package container holds the pieces shared by the three domain state
// containers: the per-identity lifecycle state machine and the subscriber
// hub used to notify views of snapshot changes.
package container

import "sync"

// State is the container lifecycle for one identity.
type State int

const (
	// StateEmpty means no identity or no data has been loaded.
	StateEmpty State = iota
	// StateLoading means a full reload is in flight.
	StateLoading
	// StateReady means the snapshot reflects the last successful load.
	StateReady
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "empty"
	}
}

// Notifier fans snapshot-change signals out to subscribers. Signals are
// best-effort wakeups: a subscriber that is behind receives one pending
// signal, not one per change.
type Notifier struct {
	mu     sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

// Subscribe registers a change listener. The cancel func releases it.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	if n == nil {
		ch := make(chan struct{})
		close(ch)
		return ch, func() {}
	}

	n.mu.Lock()
	if n.subs == nil {
		n.subs = make(map[int]chan struct{})
	}
	id := n.nextID
	n.nextID++
	ch := make(chan struct{}, 1)
	n.subs[id] = ch
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if existing, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(existing)
		}
		n.mu.Unlock()
	}
	return ch, cancel
}

// Notify signals all subscribers that the snapshot changed.
func (n *Notifier) Notify() {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
