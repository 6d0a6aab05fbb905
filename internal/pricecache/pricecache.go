// Package pricecache is the last-trading-price memo: the most recent live
// price observed per (user, symbol), persisted so the portfolio can still be
// valued when the market is closed or a quote call comes back empty.
//
// The cache is pure memoization — every read site has a fallback chain
// ending in a valid number, so its absence only costs freshness, never
// correctness.
package pricecache

import (
	"context"
	"log"
	"math"
	"time"

	"papertrade-backend/internal/metrics"
)

// Store is the durable per-user price store (SQLite in production,
// a fake in tests).
type Store interface {
	SetLastPrice(ctx context.Context, userID, symbol string, price float64, ts time.Time) error
	LastPrice(ctx context.Context, userID, symbol string) (price float64, ok bool, err error)
	ClearLastPrices(ctx context.Context, userID string) error
}

// Mirror replicates writes to a remote warm-cache so a user's prices follow
// them across devices. Failures are logged and swallowed.
type Mirror interface {
	MirrorPrice(ctx context.Context, userID, symbol string, price float64) error
	ClearPrices(ctx context.Context, userID string) error
}

// Cache combines the durable store with the best-effort remote mirror.
type Cache struct {
	store  Store
	mirror Mirror           // may be nil
	m      *metrics.Metrics // may be nil in tests
	now    func() time.Time
}

// New creates a Cache. mirror and m may be nil.
func New(store Store, mirror Mirror, m *metrics.Metrics) *Cache {
	return &Cache{store: store, mirror: mirror, m: m, now: time.Now}
}

// Store records the last observed trading price for (user, symbol).
// No-op when the key is empty or the price is not a finite positive number.
// The remote mirror is updated fire-and-forget; callers never wait on it.
func (c *Cache) Store(ctx context.Context, userID, symbol string, price float64) {
	if userID == "" || symbol == "" {
		return
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return
	}

	if err := c.store.SetLastPrice(ctx, userID, symbol, price, c.now()); err != nil {
		log.Printf("[pricecache] store %s/%s failed: %v", userID, symbol, err)
	}

	if c.mirror != nil {
		go func(userID, symbol string, price float64) {
			mctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := c.mirror.MirrorPrice(mctx, userID, symbol, price); err != nil {
				log.Printf("[pricecache] mirror %s/%s failed: %v", userID, symbol, err)
				if c.m != nil {
					c.m.MirrorFailures.Inc()
				}
			}
		}(userID, symbol, price)
	}
}

// Get returns the cached price when it is a finite positive number.
// Storage errors behave as a miss; Get never fails.
func (c *Cache) Get(ctx context.Context, userID, symbol string) (float64, bool) {
	if userID == "" || symbol == "" {
		return 0, false
	}
	price, ok, err := c.store.LastPrice(ctx, userID, symbol)
	if err != nil {
		log.Printf("[pricecache] read %s/%s failed, treating as miss: %v", userID, symbol, err)
		c.miss()
		return 0, false
	}
	if !ok || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		c.miss()
		return 0, false
	}
	if c.m != nil {
		c.m.CacheHits.Inc()
	}
	return price, true
}

func (c *Cache) miss() {
	if c.m != nil {
		c.m.CacheMisses.Inc()
	}
}

// Clear removes all cached prices for a user, locally and on the mirror.
// Used at explicit reset points (logout data clear, account reset).
func (c *Cache) Clear(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	if err := c.store.ClearLastPrices(ctx, userID); err != nil {
		log.Printf("[pricecache] clear %s failed: %v", userID, err)
	}
	if c.mirror != nil {
		go func(userID string) {
			mctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := c.mirror.ClearPrices(mctx, userID); err != nil {
				log.Printf("[pricecache] mirror clear %s failed: %v", userID, err)
				if c.m != nil {
					c.m.MirrorFailures.Inc()
				}
			}
		}(userID)
	}
}
