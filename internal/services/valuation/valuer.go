// Package valuation values the portfolio and tracks its total over time.
package valuation

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"github.com/vadiminshakov/skinwatch/pkg/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const quoteConcurrency = 8

var hundred = decimal.NewFromInt(100)

type quoter interface {
	Current(ctx context.Context, item string) domain.AggregatedPrice
}

type rater interface {
	Rate(ctx context.Context) decimal.Decimal
}

// Valuer prices positions in the base currency.
type Valuer struct {
	prices quoter
	rates  rater
	clk    clock.Clock
	l      *zap.Logger
}

// NewValuer creates a Valuer.
func NewValuer(prices quoter, rates rater, clk clock.Clock, l *zap.Logger) *Valuer {
	return &Valuer{prices: prices, rates: rates, clk: clk, l: l}
}

// Value prices every position at consensus times the FX rate. A position without
// consensus is valued at its acquisition price and flagged as a fallback.
func (v *Valuer) Value(ctx context.Context, positions []domain.Position) domain.Valuation {
	rate := v.rates.Rate(ctx)
	lines := make([]domain.ValuationLine, len(positions))

	var g errgroup.Group
	g.SetLimit(quoteConcurrency)
	for i, p := range positions {
		g.Go(func() error {
			lines[i] = v.line(ctx, p, rate)
			return nil
		})
	}
	_ = g.Wait()

	val := domain.Valuation{
		Lines: lines,
		Rate:  rate,
		At:    v.clk.Now(),
	}
	fallbacks := 0
	for _, line := range lines {
		val.Total = val.Total.Add(line.Value)
		val.Invested = val.Invested.Add(line.Position.Invested())
		val.Items += line.Position.Quantity
		if line.Fallback {
			fallbacks++
		}
	}
	val.Profit = val.Total.Sub(val.Invested)
	if val.Invested.IsPositive() {
		val.ProfitPercent = val.Profit.Div(val.Invested).Mul(hundred)
	}

	if fallbacks > 0 {
		v.l.Info("valued positions at acquisition price",
			zap.Int("fallbacks", fallbacks),
			zap.Int("positions", len(positions)))
	}

	return val
}

func (v *Valuer) line(ctx context.Context, p domain.Position, rate decimal.Decimal) domain.ValuationLine {
	qty := decimal.NewFromInt(p.Quantity)
	price := v.prices.Current(ctx, p.Name).In(rate)
	if !price.Valid {
		return domain.ValuationLine{
			Position: p,
			Price:    p.BuyPrice,
			Value:    p.BuyPrice.Mul(qty),
			Fallback: true,
		}
	}
	return domain.ValuationLine{
		Position: p,
		Price:    price.Decimal,
		Value:    price.Decimal.Mul(qty),
	}
}
