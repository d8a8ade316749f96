// Package progress keeps run-scoped state for operators to poll. Entries
// are keyed at three granularities (all, host, group) and expire on TTL so
// a crashed run never leaves a stale "running" marker behind.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	cacheSize = 10
	cacheTTL  = 600 * time.Second
)

// AllKey is the cache key of the global fan-out run. It is random per
// process so a restarted controller never reads a predecessor's entry.
var AllKey = uuid.NewString()

// Status is the lifecycle of one run.
type Status string

const (
	StatusPreparing Status = "PREPARING"
	StatusChecking  Status = "CHECKING"
	StatusUpdating  Status = "UPDATING"
	StatusPruning   Status = "PRUNING"
	StatusDone      Status = "DONE"
	StatusError     Status = "ERROR"
)

// Terminal reports whether a run in this status has finished.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Counters summarize a run across its containers.
type Counters struct {
	Available  int `json:"available"`
	Updated    int `json:"updated"`
	RolledBack int `json:"rolled_back"`
	Failed     int `json:"failed"`
}

// Entry is the progress record stored per cache key. Result carries the
// layer's nested result object once the run completes.
type Entry struct {
	Status Status `json:"status"`
	Counters
	Result any `json:"result,omitempty"`
}

// HostKey builds the cache key of a host-scoped run.
func HostKey(hostID int64, hostName string) string {
	return fmt.Sprintf("%d:%s", hostID, hostName)
}

// GroupKey builds the cache key of a group-scoped run.
func GroupKey(hostKey, groupName string) string {
	return hostKey + ":" + groupName
}

// Cache is the process-wide progress map.
type Cache struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, Entry]
}

// NewCache creates a Cache with the fixed capacity and TTL.
func NewCache() *Cache {
	return &Cache{
		lru: expirable.NewLRU[string, Entry](cacheSize, nil, cacheTTL),
	}
}

// Get returns the entry for key. Missing entries mean "no active run."
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

// Set replaces the entry for key.
func (c *Cache) Set(key string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, e)
}

// Update applies fn to the current entry (zero value when absent) and
// stores the result. The read-modify-write is atomic with respect to other
// cache writers.
func (c *Cache) Update(key string, fn func(*Entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, _ := c.lru.Get(key)
	fn(&e)
	c.lru.Add(key, e)
}

// TryStart marks key as running with the given initial status. It returns
// false when a non-terminal entry already exists, which callers treat as
// "already running."
func (c *Cache) TryStart(key string, initial Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.lru.Get(key); ok && !e.Status.Terminal() {
		return false
	}
	c.lru.Add(key, Entry{Status: initial})
	return true
}
