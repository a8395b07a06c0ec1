package valuation

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"go.uber.org/zap"
)

type positionSource interface {
	Positions() []domain.Position
}

type snapshotAppender interface {
	Append(snap domain.Snapshot) error
}

type gauge interface {
	PortfolioValue(v float64)
}

type nopGauge struct{}

func (nopGauge) PortfolioValue(float64) {}

// SnapshotRecorder appends the current portfolio total and per-item prices to the snapshot log.
type SnapshotRecorder struct {
	valuer    *Valuer
	positions positionSource
	snapshots snapshotAppender
	gauge     gauge
	l         *zap.Logger
}

// NewSnapshotRecorder creates a SnapshotRecorder. g may be nil.
func NewSnapshotRecorder(valuer *Valuer, positions positionSource, snapshots snapshotAppender, g gauge, l *zap.Logger) *SnapshotRecorder {
	if g == nil {
		g = nopGauge{}
	}
	return &SnapshotRecorder{valuer: valuer, positions: positions, snapshots: snapshots, gauge: g, l: l}
}

// Record values the portfolio and appends one portfolio-total snapshot when the total is
// positive, plus one snapshot per item that has a consensus price. Items held in several
// positions are recorded once with the summed quantity.
func (r *SnapshotRecorder) Record(ctx context.Context) (domain.Valuation, error) {
	positions := r.positions.Positions()
	if len(positions) == 0 {
		return domain.Valuation{}, nil
	}

	val := r.valuer.Value(ctx, positions)
	r.gauge.PortfolioValue(val.Total.InexactFloat64())

	var firstErr error
	appendSnap := func(s domain.Snapshot) {
		if err := r.snapshots.Append(s); err != nil {
			r.l.Error("failed to append snapshot", zap.String("subject", s.Subject), zap.Error(err))
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "append snapshot %q", s.Subject)
			}
		}
	}

	if val.Total.IsPositive() {
		appendSnap(domain.Snapshot{
			Subject:   domain.PortfolioTotalSubject,
			Value:     val.Total,
			Quantity:  val.Items,
			Timestamp: val.At,
		})
	}

	type item struct {
		name     string
		price    decimal.Decimal
		quantity int64
	}
	var order []string
	items := make(map[string]*item)
	for _, line := range val.Lines {
		if line.Fallback {
			continue
		}
		key := domain.ItemKey(line.Position.Name)
		it, ok := items[key]
		if !ok {
			it = &item{name: line.Position.Name, price: line.Price}
			items[key] = it
			order = append(order, key)
		}
		it.quantity += line.Position.Quantity
	}
	for _, key := range order {
		it := items[key]
		appendSnap(domain.Snapshot{
			Subject:   it.name,
			Value:     it.price,
			Quantity:  it.quantity,
			Timestamp: val.At,
		})
	}

	r.l.Info("portfolio snapshot recorded",
		zap.String("total", val.Total.StringFixed(2)),
		zap.Int("items", len(order)))

	return val, firstErr
}
