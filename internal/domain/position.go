package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a holding in the shared portfolio.
// BuyPrice is per unit in the base currency, BuyPriceSecondary per unit in the reference currency.
type Position struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Quantity          int64           `json:"quantity"`
	BuyPrice          decimal.Decimal `json:"buy_price"`
	BuyPriceSecondary decimal.Decimal `json:"buy_price_secondary"`
	AddedAt           time.Time       `json:"added_at"`
}

// Invested returns BuyPrice * Quantity.
func (p Position) Invested() decimal.Decimal {
	return p.BuyPrice.Mul(decimal.NewFromInt(p.Quantity))
}
