package connection

import (
	"sync"
	"sync/atomic"
)

// Listener is called after every status change with the old and new status.
type Listener func(from, to Status)

// Tracker is the single source of truth for a transport's status. It stores
// one tri-state value, so the contradictory "connected and connecting" pair
// cannot arise here; Flags exists for callers that still expect two booleans.
type Tracker struct {
	status atomic.Value // Status

	mu        sync.RWMutex
	listeners []Listener
}

// NewTracker starts disconnected.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.status.Store(StatusDisconnected)
	return t
}

func (t *Tracker) Status() Status {
	return t.status.Load().(Status)
}

// State is the classified status with its label.
func (t *Tracker) State() State {
	return stateOf(t.Status())
}

// Flags reports the status as the legacy (isConnected, isConnecting) pair.
func (t *Tracker) Flags() (isConnected, isConnecting bool) {
	s := t.Status()
	return s == StatusConnected, s == StatusConnecting
}

// IsConnected reports whether the transport can send right now.
func (t *Tracker) IsConnected() bool {
	return t.Status() == StatusConnected
}

func (t *Tracker) MarkConnecting()   { t.set(StatusConnecting) }
func (t *Tracker) MarkConnected()    { t.set(StatusConnected) }
func (t *Tracker) MarkDisconnected() { t.set(StatusDisconnected) }

// OnChange registers l for future transitions. Listeners run synchronously on
// the goroutine that changed the status and must not block.
func (t *Tracker) OnChange(l Listener) {
	if l == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

func (t *Tracker) set(to Status) {
	from := t.status.Swap(to).(Status)
	if from == to {
		return
	}
	t.mu.RLock()
	listeners := make([]Listener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.RUnlock()

	for _, l := range listeners {
		l(from, to)
	}
}
