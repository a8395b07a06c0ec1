// Package aggregator reconciles prices from several sources into one consensus price.
package aggregator

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"github.com/vadiminshakov/skinwatch/internal/services/source"
	"github.com/vadiminshakov/skinwatch/pkg/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type readingsStore interface {
	Save(batch []domain.SourcePriceReading) error
}

type recorder interface {
	ConsensusAbsent()
}

type nopRecorder struct{}

func (nopRecorder) ConsensusAbsent() {}

// Aggregator queries every adapter for an item and reduces the answers to a median.
type Aggregator struct {
	adapters []source.Adapter
	store    readingsStore
	clock    clock.Clock
	rec      recorder
	l        *zap.Logger
}

// New creates an aggregator. store may be nil when readings need not be kept.
func New(adapters []source.Adapter, store readingsStore, clk clock.Clock, rec recorder, l *zap.Logger) *Aggregator {
	if clk == nil {
		clk = clock.Real{}
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Aggregator{
		adapters: adapters,
		store:    store,
		clock:    clk,
		rec:      rec,
		l:        l.With(zap.String("component", "aggregator")),
	}
}

// Aggregate fetches item from all sources concurrently and waits for every one of them.
// Reference-only sources are reported but never enter the consensus.
func (a *Aggregator) Aggregate(ctx context.Context, item string) domain.AggregatedPrice {
	results := make([]decimal.NullDecimal, len(a.adapters))

	var g errgroup.Group
	for i, ad := range a.adapters {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					a.l.Error("source panicked", zap.String("source", ad.Name()), zap.String("item", item),
						zap.String("panic", fmt.Sprint(r)))
					results[i] = decimal.NullDecimal{}
				}
			}()
			results[i] = ad.Fetch(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	now := a.clock.Now()
	out := domain.AggregatedPrice{
		Item:       item,
		Sources:    make(map[string]decimal.Decimal),
		Reference:  make(map[string]decimal.Decimal),
		ComputedAt: now,
	}

	eligible := make([]decimal.Decimal, 0, len(a.adapters))
	for i, ad := range a.adapters {
		if !results[i].Valid {
			continue
		}
		if ad.Eligibility() == source.ReferenceOnly {
			out.Reference[ad.Name()] = results[i].Decimal
			continue
		}
		out.Sources[ad.Name()] = results[i].Decimal
		eligible = append(eligible, results[i].Decimal)
	}

	out.Consensus = Median(eligible)
	if !out.Consensus.Valid {
		a.rec.ConsensusAbsent()
		a.l.Info("no consensus price", zap.String("item", item), zap.Int("reference_sources", len(out.Reference)))
	}

	a.persist(out)
	return out
}

func (a *Aggregator) persist(p domain.AggregatedPrice) {
	if a.store == nil {
		return
	}

	batch := make([]domain.SourcePriceReading, 0, len(p.Sources)+len(p.Reference))
	for _, m := range []map[string]decimal.Decimal{p.Sources, p.Reference} {
		for name, price := range m {
			batch = append(batch, domain.SourcePriceReading{
				Item:       p.Item,
				Source:     name,
				Price:      price,
				Consensus:  p.Consensus,
				ObservedAt: p.ComputedAt,
			})
		}
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Source < batch[j].Source })

	if err := a.store.Save(batch); err != nil {
		a.l.Error("failed to persist price readings", zap.String("item", p.Item), zap.Error(err))
	}
}

// Median returns the middle value of values, averaging the two middle ones for even counts.
// It is absent for an empty input.
func Median(values []decimal.Decimal) decimal.NullDecimal {
	if len(values) == 0 {
		return decimal.NullDecimal{}
	}

	sorted := append([]decimal.Decimal(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return decimal.NewNullDecimal(sorted[mid])
	}
	return decimal.NewNullDecimal(sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2)))
}
