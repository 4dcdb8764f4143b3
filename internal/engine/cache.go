package engine

import (
	"sync"

	"github.com/Simplici0/liveprice/internal/pricing"
)

// Cache keeps the latest result per estimate. Entries are replaced whole;
// callers always get their own copy.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]pricing.Result
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]pricing.Result)}
}

// Put stores r as the latest result for estimateID.
func (c *Cache) Put(estimateID string, r pricing.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[estimateID] = r.Clone()
}

// Get returns the latest result for estimateID.
func (c *Cache) Get(estimateID string) (pricing.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[estimateID]
	if !ok {
		return pricing.Result{}, false
	}
	return r.Clone(), true
}

// Delete drops the entry for estimateID.
func (c *Cache) Delete(estimateID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, estimateID)
}

// Len returns the number of cached estimates.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]pricing.Result)
}
