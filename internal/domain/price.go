package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourcePriceReading is one source's observation persisted by an aggregate call.
// All readings of one call share ObservedAt.
type SourcePriceReading struct {
	Item       string              `json:"item"`
	Source     string              `json:"source"`
	Price      decimal.Decimal     `json:"price"`
	Consensus  decimal.NullDecimal `json:"consensus"`
	ObservedAt time.Time           `json:"observed_at"`
}

// AggregatedPrice is the reconciled price of an item in the reference currency.
// Consensus is valid iff at least one consensus-eligible source answered.
type AggregatedPrice struct {
	Item       string                     `json:"item"`
	Consensus  decimal.NullDecimal        `json:"consensus"`
	Sources    map[string]decimal.Decimal `json:"sources"`
	Reference  map[string]decimal.Decimal `json:"reference,omitempty"`
	ComputedAt time.Time                  `json:"computed_at"`
}

// In converts the consensus to another currency at rate.
func (a AggregatedPrice) In(rate decimal.Decimal) decimal.NullDecimal {
	if !a.Consensus.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(a.Consensus.Decimal.Mul(rate))
}
