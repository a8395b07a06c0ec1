package detector

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"github.com/vadiminshakov/skinwatch/internal/storage/snapshots"
	"github.com/vadiminshakov/skinwatch/pkg/indicators"
)

const (
	// TrendWindow is how far back the portfolio trend looks.
	TrendWindow    = 30 * 24 * time.Hour
	trendSmoothing = 7
	momentumPeriod = 14
)

var (
	strongGrowth = decimal.NewFromInt(5)
	stagnation   = decimal.NewFromInt(-5)
	hundred      = decimal.NewFromInt(100)
)

// PortfolioTrend summarizes the portfolio total over TrendWindow ending at now.
// With at least seven points the change compares the first and last seven-point averages,
// otherwise the first and last values.
func PortfolioTrend(store SnapshotReader, now time.Time) (domain.Trend, error) {
	points := store.ValuesSince(domain.PortfolioTotalSubject, now.Add(-TrendWindow))
	if len(points) < 2 {
		return domain.Trend{}, snapshots.ErrInsufficientHistory
	}

	values := make([]decimal.Decimal, len(points))
	for i, p := range points {
		values[i] = p.Value
	}

	first, last := values[0], values[len(values)-1]
	if len(values) >= trendSmoothing {
		if sma, err := indicators.CalculateSMA(values, trendSmoothing); err == nil && len(sma) > 0 {
			first, last = sma[0], sma[len(sma)-1]
		}
	}

	tr := domain.Trend{
		Points:  len(points),
		Current: values[len(values)-1],
		Max:     decimal.Max(values[0], values[1:]...),
		Min:     decimal.Min(values[0], values[1:]...),
		From:    points[0].Timestamp,
		To:      points[len(points)-1].Timestamp,
	}
	if delta, ok := domain.ComputeDelta(last, decimal.NewNullDecimal(first)); ok {
		tr.Change = delta.Signed
	}
	if tr.Min.IsPositive() {
		tr.Volatility = tr.Max.Sub(tr.Min).Div(tr.Min).Mul(hundred)
	}
	if len(values) > momentumPeriod {
		if rsi, err := indicators.CalculateRSI(values, momentumPeriod); err == nil && len(rsi) > 0 {
			tr.Momentum = decimal.NewNullDecimal(rsi[len(rsi)-1])
		}
	}
	tr.Outlook = outlook(tr.Change)

	return tr, nil
}

func outlook(change decimal.Decimal) domain.Outlook {
	switch {
	case change.GreaterThan(strongGrowth):
		return domain.OutlookStrongGrowth
	case change.GreaterThan(decimal.Zero):
		return domain.OutlookModerateGrowth
	case change.GreaterThan(stagnation):
		return domain.OutlookStagnation
	default:
		return domain.OutlookDecline
	}
}
