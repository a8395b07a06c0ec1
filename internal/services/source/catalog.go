package source

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinwatch/internal/cache"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"github.com/vadiminshakov/skinwatch/pkg/clock"
	"go.uber.org/zap"
)

const catalogKey = "catalog"

// FailureBackoff is how long lookups keep answering absent after a failed refill
// instead of downloading the catalog again.
const FailureBackoff = time.Minute

// Catalog serves single-item lookups from a cached bulk price list.
// The list is refilled lazily once its TTL has passed.
type Catalog struct {
	src   CatalogSource
	cache *cache.TTL[string, map[string]decimal.Decimal]
	clock clock.Clock
	mu    sync.Mutex
	rec   Recorder
	l     *zap.Logger

	failedAt time.Time // guarded by mu
}

// NewCatalog wraps src with a TTL cache.
func NewCatalog(src CatalogSource, ttl time.Duration, clk clock.Clock, rec Recorder, l *zap.Logger) *Catalog {
	if rec == nil {
		rec = nopRecorder{}
	}
	if l == nil {
		l = zap.NewNop()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Catalog{
		src:   src,
		clock: clk,
		cache: cache.NewTTL[string, map[string]decimal.Decimal](ttl, clk),
		rec:   rec,
		l:     l.With(zap.String("source", src.Name())),
	}
}

func (c *Catalog) Name() string { return c.src.Name() }

func (c *Catalog) Eligibility() Eligibility { return c.src.Eligibility() }

// Fetch looks item up in the catalog, refilling it first when stale.
func (c *Catalog) Fetch(ctx context.Context, item string) decimal.NullDecimal {
	prices, ok := c.prices(ctx)
	if !ok {
		c.rec.SourceFetch(c.Name(), false)
		return decimal.NullDecimal{}
	}

	price, found := prices[domain.ItemKey(item)]
	c.rec.SourceFetch(c.Name(), found)
	if !found {
		c.l.Debug("item not in catalog", zap.String("item", item))
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(price)
}

func (c *Catalog) prices(ctx context.Context) (map[string]decimal.Decimal, bool) {
	if prices, ok := c.cache.Get(catalogKey); ok {
		c.rec.CacheLookup(c.Name(), true)
		return prices, true
	}
	c.rec.CacheLookup(c.Name(), false)

	c.mu.Lock()
	defer c.mu.Unlock()

	// another caller may have refilled while we waited
	if prices, ok := c.cache.Get(catalogKey); ok {
		return prices, true
	}
	if !c.failedAt.IsZero() && c.clock.Now().Sub(c.failedAt) < FailureBackoff {
		return nil, false
	}

	prices, err := c.refill(ctx)
	if err != nil {
		return nil, false
	}
	return prices, true
}

// Refresh downloads the catalog regardless of its age or a recent failure.
func (c *Catalog) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.refill(ctx)
	return err
}

// RefreshIfExpired downloads the catalog only when the cached one is stale or missing.
func (c *Catalog) RefreshIfExpired(ctx context.Context) error {
	if _, ok := c.cache.Get(catalogKey); ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cache.Get(catalogKey); ok {
		return nil
	}
	_, err := c.refill(ctx)
	return err
}

func (c *Catalog) refill(ctx context.Context) (map[string]decimal.Decimal, error) {
	prices, err := c.src.FetchAll(ctx)
	if err != nil {
		c.rec.CatalogRefresh(c.Name(), false)
		c.cache.Invalidate(catalogKey)
		c.failedAt = c.clock.Now()
		c.l.Warn("catalog refresh failed", zap.Error(err))
		return nil, err
	}

	c.cache.Put(catalogKey, prices)
	c.failedAt = time.Time{}
	c.rec.CatalogRefresh(c.Name(), true)
	c.l.Info("catalog refreshed", zap.Int("prices", len(prices)))
	return prices, nil
}

// Invalidate drops the cached catalog and any failure backoff.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.failedAt = time.Time{}
	c.mu.Unlock()
	c.cache.Invalidate(catalogKey)
}

// ExpireStale drops the catalog if its TTL has passed.
func (c *Catalog) ExpireStale() {
	c.cache.InvalidateIfExpired()
}
