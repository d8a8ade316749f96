// Package hostreg keeps one host client per enabled host. The engine and
// the operator API share the registry; entries follow host enable/disable
// and credential changes.
package hostreg

import (
	"sync"
	"time"

	"github.com/quenary/tugtainer/internal/clock"
	"github.com/quenary/tugtainer/internal/hostclient"
)

// Registry maps host IDs to their clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[int64]*hostclient.Client
	clk     clock.Clock
}

// New creates an empty Registry.
func New(clk clock.Clock) *Registry {
	return &Registry{
		clients: make(map[int64]*hostclient.Client),
		clk:     clk,
	}
}

// Set creates (or replaces) the client for a host. Replacing is how secret,
// URL or timeout changes take effect.
func (r *Registry) Set(hostID int64, url, secret string, timeout time.Duration) *hostclient.Client {
	c := hostclient.New(url, secret, timeout, r.clk)
	r.mu.Lock()
	r.clients[hostID] = c
	r.mu.Unlock()
	return c
}

// Get returns the client for a host, or nil when the host is not registered.
func (r *Registry) Get(hostID int64) *hostclient.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[hostID]
}

// Remove drops the client for a host.
func (r *Registry) Remove(hostID int64) {
	r.mu.Lock()
	delete(r.clients, hostID)
	r.mu.Unlock()
}

// IDs returns the registered host IDs.
func (r *Registry) IDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}
