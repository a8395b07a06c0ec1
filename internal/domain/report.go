package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValuationLine is one position valued at the current price.
// Fallback is set when no consensus was available and the acquisition price was used.
type ValuationLine struct {
	Position Position        `json:"position"`
	Price    decimal.Decimal `json:"price"`
	Value    decimal.Decimal `json:"value"`
	Fallback bool            `json:"fallback"`
}

// Valuation is the portfolio valued in the base currency.
type Valuation struct {
	Lines         []ValuationLine `json:"lines"`
	Total         decimal.Decimal `json:"total"`
	Invested      decimal.Decimal `json:"invested"`
	Profit        decimal.Decimal `json:"profit"`
	ProfitPercent decimal.Decimal `json:"profit_percent"`
	Items         int64           `json:"items"`
	Rate          decimal.Decimal `json:"rate"`
	At            time.Time       `json:"at"`
}

// Mover is an item ranked by its latest change.
type Mover struct {
	Subject  string          `json:"subject"`
	Current  decimal.Decimal `json:"current"`
	Previous decimal.Decimal `json:"previous"`
	Delta    Delta           `json:"delta"`
}

// ShiftKind is either a crash or a pump.
type ShiftKind string

const (
	ShiftCrash ShiftKind = "crash"
	ShiftPump  ShiftKind = "pump"
)

// MarketShift is a sharp day-over-day move in an item's consensus price.
type MarketShift struct {
	Item     string          `json:"item"`
	Kind     ShiftKind       `json:"kind"`
	Current  decimal.Decimal `json:"current"`
	Previous decimal.Decimal `json:"previous"`
	Change   decimal.Decimal `json:"change"`
}

// Outlook summarizes a trend percentage.
type Outlook string

const (
	OutlookStrongGrowth   Outlook = "strong_growth"
	OutlookModerateGrowth Outlook = "moderate_growth"
	OutlookStagnation     Outlook = "stagnation"
	OutlookDecline        Outlook = "decline"
)

// Trend describes the portfolio value over a window.
type Trend struct {
	Points     int                 `json:"points"`
	Current    decimal.Decimal     `json:"current"`
	Max        decimal.Decimal     `json:"max"`
	Min        decimal.Decimal     `json:"min"`
	Change     decimal.Decimal     `json:"change"`
	Volatility decimal.Decimal     `json:"volatility"`
	Momentum   decimal.NullDecimal `json:"momentum"`
	Outlook    Outlook             `json:"outlook"`
	From       time.Time           `json:"from"`
	To         time.Time           `json:"to"`
}
