package engine

import (
	"sync"
	"time"
)

type pending[T any] struct {
	timer   Timer
	payload T
	gen     uint64
}

// Debouncer coalesces rapid Schedule calls per key into one fire after a
// quiet period, carrying the latest payload. Keys never interact.
type Debouncer[T any] struct {
	mu      sync.Mutex
	clock   Clock
	wait    time.Duration
	fire    func(key string, payload T)
	pending map[string]*pending[T]
	seq     uint64
	stopped bool
}

// NewDebouncer returns a debouncer calling fire on the timer goroutine.
func NewDebouncer[T any](clock Clock, wait time.Duration, fire func(key string, payload T)) *Debouncer[T] {
	if clock == nil {
		clock = SystemClock
	}
	return &Debouncer[T]{
		clock:   clock,
		wait:    wait,
		fire:    fire,
		pending: make(map[string]*pending[T]),
	}
}

// Schedule (re)arms the timer for key and replaces its payload.
func (d *Debouncer[T]) Schedule(key string, payload T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	p, ok := d.pending[key]
	if ok {
		p.timer.Stop()
	} else {
		p = &pending[T]{}
		d.pending[key] = p
	}

	d.seq++
	gen := d.seq
	p.payload = payload
	p.gen = gen
	p.timer = d.clock.AfterFunc(d.wait, func() { d.elapse(key, gen) })
}

// Replace swaps the payload of a pending key without touching its timer.
// It reports false when nothing is pending for key.
func (d *Debouncer[T]) Replace(key string, payload T) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pending[key]
	if !ok {
		return false
	}
	p.payload = payload
	return true
}

// elapse runs when a timer fires. A timer that was superseded after it
// started firing finds a newer generation and does nothing.
func (d *Debouncer[T]) elapse(key string, gen uint64) {
	d.mu.Lock()
	p, ok := d.pending[key]
	if !ok || p.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	payload := p.payload
	d.mu.Unlock()

	d.fire(key, payload)
}

// Pending reports whether a fire is scheduled for key.
func (d *Debouncer[T]) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Len returns the number of keys with a scheduled fire.
func (d *Debouncer[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Cancel drops the scheduled fire for key.
func (d *Debouncer[T]) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
		delete(d.pending, key)
	}
}

// Clear drops every scheduled fire but keeps accepting new ones.
func (d *Debouncer[T]) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
}

// Stop drops every scheduled fire and ignores later Schedule calls.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
	d.stopped = true
}

func (d *Debouncer[T]) clearLocked() {
	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
}
