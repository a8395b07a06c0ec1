// Package source fetches item prices from external marketplaces.
// Adapters never fail: every error collapses to an absent price.
package source

import (
	"context"

	"github.com/shopspring/decimal"
)

// Eligibility says whether a source takes part in the consensus median.
type Eligibility int

const (
	ConsensusEligible Eligibility = iota
	ReferenceOnly
)

func (e Eligibility) String() string {
	if e == ReferenceOnly {
		return "reference"
	}
	return "consensus"
}

// Adapter returns one source's price for an item in the reference currency.
type Adapter interface {
	Name() string
	Eligibility() Eligibility
	Fetch(ctx context.Context, item string) decimal.NullDecimal
}

// CatalogSource serves its full price list in one call, keyed by lower-cased item name.
type CatalogSource interface {
	Name() string
	Eligibility() Eligibility
	FetchAll(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Recorder receives per-source outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	SourceFetch(source string, ok bool)
	CatalogRefresh(source string, ok bool)
	CacheLookup(cache string, hit bool)
}

type nopRecorder struct{}

func (nopRecorder) SourceFetch(string, bool) {}

func (nopRecorder) CatalogRefresh(string, bool) {}

func (nopRecorder) CacheLookup(string, bool) {}
