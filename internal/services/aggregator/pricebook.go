package aggregator

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/skinwatch/internal/cache"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type aggregating interface {
	Aggregate(ctx context.Context, item string) domain.AggregatedPrice
}

type priceView interface {
	cache.Cache[string, domain.AggregatedPrice]
	Clear()
}

// Catalog is a cached bulk source whose freshness the book manages.
type Catalog interface {
	Name() string
	Refresh(ctx context.Context) error
	RefreshIfExpired(ctx context.Context) error
	Invalidate()
	ExpireStale()
}

type lookupRecorder interface {
	CacheLookup(cache string, hit bool)
}

// PriceBook is the current-price view shared by sweeps and reports.
// Only prices with a consensus are kept.
type PriceBook struct {
	agg      aggregating
	view     priceView
	catalogs []Catalog
	rec      lookupRecorder
	l        *zap.Logger
}

// NewPriceBook wires the aggregator to a view cache and the catalogs it depends on.
func NewPriceBook(agg aggregating, view priceView, catalogs []Catalog, rec lookupRecorder, l *zap.Logger) *PriceBook {
	if l == nil {
		l = zap.NewNop()
	}
	return &PriceBook{agg: agg, view: view, catalogs: catalogs, rec: rec, l: l.With(zap.String("component", "pricebook"))}
}

// Current returns a fresh aggregated price, aggregating on a miss.
func (b *PriceBook) Current(ctx context.Context, item string) domain.AggregatedPrice {
	key := domain.ItemKey(item)
	if p, ok := b.view.Get(key); ok {
		b.lookup(true)
		return p
	}
	b.lookup(false)

	p := b.agg.Aggregate(ctx, item)
	if p.Consensus.Valid {
		b.view.Put(key, p)
	}
	return p
}

func (b *PriceBook) lookup(hit bool) {
	if b.rec != nil {
		b.rec.CacheLookup("pricebook", hit)
	}
}

// Invalidate drops the view and every catalog so the next lookup goes to the sources.
func (b *PriceBook) Invalidate() {
	b.view.Clear()
	for _, c := range b.catalogs {
		c.Invalidate()
	}
	b.l.Info("price caches invalidated")
}

// RefreshCatalogs downloads every catalog concurrently. force ignores catalog age.
func (b *PriceBook) RefreshCatalogs(ctx context.Context, force bool) error {
	var g errgroup.Group
	for _, c := range b.catalogs {
		g.Go(func() error {
			var err error
			if force {
				err = c.Refresh(ctx)
			} else {
				err = c.RefreshIfExpired(ctx)
			}
			return errors.Wrapf(err, "refresh %s", c.Name())
		})
	}
	return g.Wait()
}

// ExpireStale drops expired entries from the view and the catalogs.
func (b *PriceBook) ExpireStale() {
	b.view.InvalidateIfExpired()
	for _, c := range b.catalogs {
		c.ExpireStale()
	}
}
