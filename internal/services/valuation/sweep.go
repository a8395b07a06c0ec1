package valuation

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinwatch/internal/chart"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"go.uber.org/zap"
)

// HistoryWindow bounds the history drawn on portfolio notices.
const HistoryWindow = 7 * 24 * time.Hour

type portfolioStore interface {
	Positions() []domain.Position
	Subscribers() []int64
	LastKnownValue() decimal.NullDecimal
	SetLastKnownValue(v decimal.Decimal) error
}

type historyReader interface {
	ValuesSince(subject string, since time.Time) []domain.Snapshot
}

type dispatcher interface {
	Dispatch(ctx context.Context, batch domain.Batch)
}

// PortfolioSweep notifies subscribers when the portfolio total moved by at least
// the configured threshold since the previous sweep.
type PortfolioSweep struct {
	valuer    *Valuer
	store     portfolioStore
	history   historyReader
	out       dispatcher
	threshold decimal.Decimal
	l         *zap.Logger
}

// NewPortfolioSweep creates a PortfolioSweep. threshold is in percent.
func NewPortfolioSweep(valuer *Valuer, store portfolioStore, history historyReader, out dispatcher, threshold decimal.Decimal, l *zap.Logger) *PortfolioSweep {
	return &PortfolioSweep{
		valuer:    valuer,
		store:     store,
		history:   history,
		out:       out,
		threshold: threshold,
		l:         l,
	}
}

// Sweep compares the current total with the last known one and dispatches one batch per
// subscriber on a significant move. The last known value is overwritten afterwards.
func (s *PortfolioSweep) Sweep(ctx context.Context) ([]domain.Batch, error) {
	positions := s.store.Positions()
	if len(positions) == 0 {
		return nil, nil
	}

	val := s.valuer.Value(ctx, positions)
	previous := s.store.LastKnownValue()

	var batches []domain.Batch
	if delta, ok := domain.ComputeDelta(val.Total, previous); ok && delta.Significant(s.threshold) {
		image := s.renderHistory(val.At)
		for _, owner := range s.store.Subscribers() {
			batch := domain.NewBatch(owner, []domain.Event{{
				Kind:     domain.KindPortfolioMove,
				Owner:    owner,
				Current:  val.Total,
				Previous: previous.Decimal,
				Change:   delta.Signed,
				Quantity: val.Items,
			}}, 0, val.At)
			batch.Image = image
			s.out.Dispatch(ctx, batch)
			batches = append(batches, batch)
		}
	}

	if err := s.store.SetLastKnownValue(val.Total); err != nil {
		return batches, errors.Wrap(err, "save last known portfolio value")
	}

	return batches, nil
}

func (s *PortfolioSweep) renderHistory(now time.Time) []byte {
	points := s.history.ValuesSince(domain.PortfolioTotalSubject, now.Add(-HistoryWindow))
	img, err := chart.RenderHistory(points)
	if err != nil {
		if !errors.Is(err, chart.ErrNotEnoughPoints) {
			s.l.Warn("failed to render portfolio chart", zap.Error(err))
		}
		return nil
	}
	return img
}
