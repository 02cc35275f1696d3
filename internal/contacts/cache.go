package contacts

import "sync"

// NameCache maps raw identifiers to display names for the life of the process.
// Entries are never evicted; Reset is only called when the contacts watcher
// observes a change to the AddressBook files.
type NameCache struct {
	mu    sync.RWMutex
	names map[string]string
}

// NewNameCache returns an empty cache.
func NewNameCache() *NameCache {
	return &NameCache{names: make(map[string]string)}
}

// Get returns the cached name for identifier.
func (c *NameCache) Get(identifier string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.names[identifier]
	return name, ok
}

// Put records the name for identifier.
func (c *NameCache) Put(identifier, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[identifier] = name
}

// Len returns the number of cached identifiers.
func (c *NameCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}

// Reset drops every entry.
func (c *NameCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = make(map[string]string)
}
