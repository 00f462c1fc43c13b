// Package cache holds the cart read cache (in memory or Redis) and the
// exchange-rate snapshot file.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mrz1836/paycart/internal/backend"
)

// DefaultCartTTL is how long a cached cart is served before refetching.
const DefaultCartTTL = 5 * time.Minute

// ErrCacheMiss is returned when no usable entry exists.
var ErrCacheMiss = errors.New("cache miss")

// CartCache stores the last fetched cart per user.
type CartCache interface {
	Get(ctx context.Context, userID string) (*backend.Cart, error)
	Set(ctx context.Context, userID string, cart *backend.Cart) error
	Delete(ctx context.Context, userID string) error
}

// Compile-time interface checks
var (
	_ CartCache = (*MemoryCartCache)(nil)
	_ CartCache = (*RedisCartCache)(nil)
)

type cartEntry struct {
	cart      backend.Cart
	expiresAt time.Time
}

// MemoryCartCache is a process-local CartCache with a fixed TTL.
type MemoryCartCache struct {
	mu      sync.RWMutex
	entries map[string]cartEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCartCache creates an empty cache. A non-positive ttl uses
// DefaultCartTTL.
func NewMemoryCartCache(ttl time.Duration) *MemoryCartCache {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &MemoryCartCache{
		entries: make(map[string]cartEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of the cached cart or ErrCacheMiss.
func (c *MemoryCartCache) Get(_ context.Context, userID string) (*backend.Cart, error) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()

	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, ErrCacheMiss
	}
	cart := cloneCart(entry.cart)
	return &cart, nil
}

// Set stores a copy of cart.
func (c *MemoryCartCache) Set(_ context.Context, userID string, cart *backend.Cart) error {
	if cart == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = cartEntry{cart: cloneCart(*cart), expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Delete drops the user's entry.
func (c *MemoryCartCache) Delete(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	return nil
}

// Size returns the number of entries, expired ones included.
func (c *MemoryCartCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Prune removes expired entries and returns how many were removed.
func (c *MemoryCartCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func cloneCart(c backend.Cart) backend.Cart {
	out := backend.Cart{Total: c.Total}
	if c.Items != nil {
		out.Items = make([]backend.CartItem, len(c.Items))
		copy(out.Items, c.Items)
	}
	return out
}
