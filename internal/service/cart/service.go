// Package cart is the cart read model: cache-first reads, coalesced
// refetches and write-through mutations against the backend.
package cart

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/mrz1836/paycart/internal/backend"
	"github.com/mrz1836/paycart/internal/cache"
	"github.com/mrz1836/paycart/internal/metrics"
	"github.com/mrz1836/paycart/internal/pricing"
)

const invalidateTimeout = time.Second

// Config holds the dependencies of the cart service.
type Config struct {
	Backend Backend
	Cache   cache.CartCache
	Logger  LogWriter
}

// Service serves carts.
type Service struct {
	backend Backend
	cache   cache.CartCache
	logger  LogWriter
	sfg     singleflight.Group
}

// NewService creates a cart service. A nil cache uses an in-memory one.
func NewService(cfg *Config) *Service {
	s := &Service{
		backend: cfg.Backend,
		cache:   cfg.Cache,
		logger:  cfg.Logger,
	}
	if s.cache == nil {
		s.cache = cache.NewMemoryCartCache(cache.DefaultCartTTL)
	}
	if s.logger == nil {
		s.logger = nopLogger{}
	}
	return s
}

// Get returns the cached cart, fetching it on a miss.
func (s *Service) Get(ctx context.Context, userID string) (*backend.Cart, error) {
	c, err := s.cache.Get(ctx, userID)
	if err == nil {
		metrics.Global.RecordCacheHit()
		return c, nil
	}
	metrics.Global.RecordCacheMiss()
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Error("cart: cache get for %s: %v", userID, err)
	}
	return s.Refetch(ctx, userID)
}

// Refetch loads the cart from the backend, bypassing the cache, and stores
// it. Concurrent refetches for the same user share one request.
func (s *Service) Refetch(ctx context.Context, userID string) (*backend.Cart, error) {
	v, err, shared := s.sfg.Do(userID, func() (any, error) {
		c, err := s.backend.GetCart(ctx, userID)
		if err != nil {
			return nil, err
		}
		s.store(ctx, userID, c)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("cart: coalesced refetch for %s", userID)
	}
	return v.(*backend.Cart), nil
}

// Invalidate drops the cached cart so the next Get refetches.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Error("cart: cache invalidate for %s: %v", userID, err)
	}
}

// Add adds an item and caches the returned cart.
func (s *Service) Add(ctx context.Context, userID string, item backend.CartItem) (*backend.Cart, error) {
	return s.mutate(ctx, userID, func() (*backend.Cart, error) {
		return s.backend.AddToCart(ctx, userID, item)
	})
}

// Remove removes a line and caches the returned cart.
func (s *Service) Remove(ctx context.Context, userID, asin string) (*backend.Cart, error) {
	return s.mutate(ctx, userID, func() (*backend.Cart, error) {
		return s.backend.RemoveFromCart(ctx, userID, asin)
	})
}

// UpdateQuantity sets a line's quantity and caches the returned cart.
func (s *Service) UpdateQuantity(ctx context.Context, userID, asin string, quantity int) (*backend.Cart, error) {
	return s.mutate(ctx, userID, func() (*backend.Cart, error) {
		return s.backend.UpdateCartQuantity(ctx, userID, asin, quantity)
	})
}

// mutate runs fn; on failure the cached cart may no longer match the
// backend, so it is dropped.
func (s *Service) mutate(ctx context.Context, userID string, fn func() (*backend.Cart, error)) (*backend.Cart, error) {
	c, err := fn()
	if err != nil {
		s.Invalidate(ctx, userID)
		return nil, err
	}
	s.store(ctx, userID, c)
	return c, nil
}

func (s *Service) store(ctx context.Context, userID string, c *backend.Cart) {
	if err := s.cache.Set(ctx, userID, c); err != nil {
		s.logger.Error("cart: cache set for %s: %v", userID, err)
	}
}

// PricingItems converts cart lines for the currency converter.
func PricingItems(c *backend.Cart) []pricing.Item {
	if c.IsEmpty() {
		return nil
	}
	items := make([]pricing.Item, len(c.Items))
	for i, it := range c.Items {
		items[i] = pricing.Item{UnitPrice: decimal.NewFromFloat(it.Price), Quantity: it.Quantity}
	}
	return items
}

// PricingRate converts a backend exchange rate for the converter; nil
// stays nil.
func PricingRate(r *backend.ExchangeRate) *pricing.ExchangeRate {
	if r == nil {
		return nil
	}
	return &pricing.ExchangeRate{
		Value:    decimal.NewFromFloat(r.Value),
		Date:     r.Date,
		SeriesID: r.SeriesID,
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
