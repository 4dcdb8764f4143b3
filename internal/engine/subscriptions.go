package engine

import (
	"sync"

	"github.com/Simplici0/liveprice/internal/pricing"
)

// Listener receives every result published for the estimate it subscribed to.
type Listener func(pricing.Result)

type subscriber struct {
	id uint64
	fn Listener
}

// Registry holds per-estimate listeners in subscription order.
type Registry struct {
	mu   sync.RWMutex
	next uint64
	subs map[string][]subscriber
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string][]subscriber)}
}

// Subscribe adds fn for estimateID and returns its unsubscribe function.
// Unsubscribing removes exactly this listener; calling it again is a no-op.
func (r *Registry) Subscribe(estimateID string, fn Listener) func() {
	r.mu.Lock()
	r.next++
	id := r.next
	r.subs[estimateID] = append(r.subs[estimateID], subscriber{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(estimateID, id) })
	}
}

func (r *Registry) remove(estimateID string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.subs[estimateID]
	for i, s := range list {
		if s.id != id {
			continue
		}
		rest := make([]subscriber, 0, len(list)-1)
		rest = append(rest, list[:i]...)
		rest = append(rest, list[i+1:]...)
		if len(rest) == 0 {
			delete(r.subs, estimateID)
		} else {
			r.subs[estimateID] = rest
		}
		return
	}
}

// Listeners returns a snapshot of the listeners for estimateID.
func (r *Registry) Listeners(estimateID string) []Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.subs[estimateID]
	out := make([]Listener, len(list))
	for i, s := range list {
		out[i] = s.fn
	}
	return out
}

// Count returns the number of listeners for estimateID.
func (r *Registry) Count(estimateID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[estimateID])
}

// Has reports whether estimateID has any listener.
func (r *Registry) Has(estimateID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[estimateID]
	return ok
}

// Len returns the number of estimates with listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Clear drops every subscription. Outstanding unsubscribe functions become no-ops.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string][]subscriber)
}
