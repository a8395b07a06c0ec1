package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Delta is a percentage change between two observations.
type Delta struct {
	Signed   decimal.Decimal `json:"signed"`
	Absolute decimal.Decimal `json:"absolute"`
}

// ComputeDelta returns the percentage change from previous to current.
// ok is false when previous is absent or zero.
func ComputeDelta(current decimal.Decimal, previous decimal.NullDecimal) (d Delta, ok bool) {
	if !previous.Valid || previous.Decimal.IsZero() {
		return Delta{}, false
	}
	signed := current.Sub(previous.Decimal).Div(previous.Decimal).Mul(hundred)
	return Delta{Signed: signed, Absolute: signed.Abs()}, true
}

// Significant reports whether the absolute change reaches threshold percent.
func (d Delta) Significant(threshold decimal.Decimal) bool {
	return d.Absolute.GreaterThanOrEqual(threshold)
}
