// Package fx converts reference-currency prices to the base currency.
package fx

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinwatch/internal/cache"
	"github.com/vadiminshakov/skinwatch/pkg/clock"
	"go.uber.org/zap"
)

const requestTimeout = 5 * time.Second

type ticker interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Provider returns the exchange rate for one pair, cached for a TTL.
// When the ticker fails the fixed fallback rate is used and not cached.
type Provider struct {
	ticker   ticker
	pair     string
	fallback decimal.Decimal
	cache    *cache.TTL[string, decimal.Decimal]
	l        *zap.Logger
}

// NewProvider creates a rate provider. A nil ticker always yields the fallback.
func NewProvider(t ticker, pair string, fallback decimal.Decimal, ttl time.Duration, clk clock.Clock, l *zap.Logger) *Provider {
	if l == nil {
		l = zap.NewNop()
	}
	return &Provider{
		ticker:   t,
		pair:     pair,
		fallback: fallback,
		cache:    cache.NewTTL[string, decimal.Decimal](ttl, clk),
		l:        l.With(zap.String("component", "fx"), zap.String("pair", pair)),
	}
}

// Rate returns the current rate, never failing.
func (p *Provider) Rate(ctx context.Context) decimal.Decimal {
	if r, ok := p.cache.Get(p.pair); ok {
		return r
	}
	if p.ticker == nil {
		return p.fallback
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	r, err := p.ticker.GetPrice(ctx, p.pair)
	if err != nil || !r.IsPositive() {
		p.l.Warn("exchange rate unavailable, using fallback", zap.Error(err), zap.String("fallback", p.fallback.String()))
		return p.fallback
	}

	p.cache.Put(p.pair, r)
	p.l.Debug("exchange rate refreshed", zap.String("rate", r.String()))
	return r
}

// Fallback returns the fixed rate used when the ticker is unavailable.
func (p *Provider) Fallback() decimal.Decimal {
	return p.fallback
}
