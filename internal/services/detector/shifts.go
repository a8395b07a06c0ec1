package detector

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinwatch/internal/domain"
)

var (
	crashThreshold = decimal.NewFromInt(-15)
	pumpThreshold  = decimal.NewFromInt(20)
)

const (
	shiftWindow = 24 * time.Hour
	shiftTop    = 5
)

// MarketShifts compares each item's mean consensus over the last day with the day before.
// A drop of 15% or more is a crash, a rise of 20% or more a pump. At most five of each
// are returned, strongest first.
func MarketShifts(readings []domain.SourcePriceReading, now time.Time) (crashes, pumps []domain.MarketShift) {
	type window struct {
		sum   decimal.Decimal
		count int64
	}
	type key struct {
		item string
		at   int64
	}

	recentFrom := now.Add(-shiftWindow)
	priorFrom := now.Add(-2 * shiftWindow)

	seen := make(map[key]struct{})
	names := make(map[string]string)
	recent := make(map[string]*window)
	prior := make(map[string]*window)

	for _, r := range readings {
		if !r.Consensus.Valid || r.ObservedAt.After(now) || !r.ObservedAt.After(priorFrom) {
			continue
		}
		item := domain.ItemKey(r.Item)
		k := key{item: item, at: r.ObservedAt.UnixNano()}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		names[item] = r.Item

		bucket := prior
		if r.ObservedAt.After(recentFrom) {
			bucket = recent
		}
		w, ok := bucket[item]
		if !ok {
			w = &window{}
			bucket[item] = w
		}
		w.sum = w.sum.Add(r.Consensus.Decimal)
		w.count++
	}

	for item, rw := range recent {
		pw, ok := prior[item]
		if !ok {
			continue
		}
		cur := rw.sum.Div(decimal.NewFromInt(rw.count))
		prev := pw.sum.Div(decimal.NewFromInt(pw.count))
		delta, ok := domain.ComputeDelta(cur, decimal.NewNullDecimal(prev))
		if !ok {
			continue
		}

		shift := domain.MarketShift{Item: names[item], Current: cur, Previous: prev, Change: delta.Signed}
		switch {
		case delta.Signed.LessThanOrEqual(crashThreshold):
			shift.Kind = domain.ShiftCrash
			crashes = append(crashes, shift)
		case delta.Signed.GreaterThanOrEqual(pumpThreshold):
			shift.Kind = domain.ShiftPump
			pumps = append(pumps, shift)
		}
	}

	sort.Slice(crashes, func(i, j int) bool {
		if crashes[i].Change.Equal(crashes[j].Change) {
			return crashes[i].Item < crashes[j].Item
		}
		return crashes[i].Change.LessThan(crashes[j].Change)
	})
	sort.Slice(pumps, func(i, j int) bool {
		if pumps[i].Change.Equal(pumps[j].Change) {
			return pumps[i].Item < pumps[j].Item
		}
		return pumps[i].Change.GreaterThan(pumps[j].Change)
	})

	return crashes[:min(shiftTop, len(crashes))], pumps[:min(shiftTop, len(pumps))]
}
