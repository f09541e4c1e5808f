// Package notify holds the in-process registry of listener channels used to
// push settlement outcomes to connected clients. Delivery is best-effort: a
// listener that cannot keep up is skipped, never blocked on.
package notify

import (
	"sync"
	"time"
)

// Event is one notification pushed to a user's listeners.
type Event struct {
	UserID  string    `json:"user_id"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Event kinds emitted by the settlement engine.
const (
	KindSettlementSuccess = "settlement_success"
	KindSettlementFailed  = "settlement_failed"
	KindPlanClosed        = "plan_closed"
)

// Notifier is the port the settlement pipeline publishes through.
type Notifier interface {
	Notify(userID string, event Event)
}

// Registry tracks listener channels per user with add/remove/broadcast
// lifecycle. It implements Notifier.
type Registry struct {
	mu        sync.RWMutex
	listeners map[string][]chan Event
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{listeners: make(map[string][]chan Event)}
}

// Add registers a listener for the user and returns the channel plus a
// remove function. The remove function is idempotent and closes the channel.
func (r *Registry) Add(userID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	r.mu.Lock()
	r.listeners[userID] = append(r.listeners[userID], ch)
	r.mu.Unlock()

	var once sync.Once
	remove := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			chans := r.listeners[userID]
			for i, c := range chans {
				if c == ch {
					r.listeners[userID] = append(chans[:i], chans[i+1:]...)
					break
				}
			}
			if len(r.listeners[userID]) == 0 {
				delete(r.listeners, userID)
			}
			close(ch)
		})
	}
	return ch, remove
}

// Notify sends the event to every listener of the user, dropping it for
// listeners whose buffer is full.
func (r *Registry) Notify(userID string, event Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ch := range r.listeners[userID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// ListenerCount returns the number of channels registered for the user.
func (r *Registry) ListenerCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[userID])
}
