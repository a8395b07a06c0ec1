// Package indicators provides moving averages and momentum over value series.
package indicators

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/shopspring/decimal"
)

// CalculateSMA calculates the Simple Moving Average for the given period.
// The result has len(values)-period+1 points.
func CalculateSMA(values []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if period < 1 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period {
		return nil, fmt.Errorf("not enough data points: need %d, got %d", period, len(values))
	}

	sma := trend.NewSmaWithPeriod[float64](period)
	out := sma.Compute(helper.SliceToChan(decimalsToFloat64(values)))

	return float64ToDecimals(helper.ChanToSlice(out)), nil
}

// CalculateEMA calculates the Exponential Moving Average for the given period.
func CalculateEMA(values []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if period < 1 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period {
		return nil, fmt.Errorf("not enough data points: need %d, got %d", period, len(values))
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	out := ema.Compute(helper.SliceToChan(decimalsToFloat64(values)))

	return float64ToDecimals(helper.ChanToSlice(out)), nil
}

// CalculateRSI calculates the Relative Strength Index for the given period.
func CalculateRSI(values []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if len(values) < period+1 {
		return nil, fmt.Errorf("not enough data points for RSI: need %d, got %d", period+1, len(values))
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)
	out := rsi.Compute(helper.SliceToChan(decimalsToFloat64(values)))

	return float64ToDecimals(helper.ChanToSlice(out)), nil
}

// decimalsToFloat64 converts a slice of decimal.Decimal to []float64.
func decimalsToFloat64(decimals []decimal.Decimal) []float64 {
	result := make([]float64, len(decimals))
	for i, d := range decimals {
		result[i], _ = d.Float64()
	}
	return result
}

// float64ToDecimals converts a slice of float64 to []decimal.Decimal. NaN and Inf map to zero.
func float64ToDecimals(floats []float64) []decimal.Decimal {
	result := make([]decimal.Decimal, len(floats))
	for i, f := range floats {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			result[i] = decimal.Zero
			continue
		}
		result[i] = decimal.NewFromFloat(f)
	}
	return result
}
