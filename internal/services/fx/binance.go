package fx

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// BinanceTicker reads spot prices from the Binance public API. No credentials are needed.
type BinanceTicker struct {
	client *binance.Client
}

// NewBinanceTicker creates a ticker over an unauthenticated client.
func NewBinanceTicker(client *binance.Client) *BinanceTicker {
	if client == nil {
		client = binance.NewClient("", "")
	}
	return &BinanceTicker{client: client}
}

// GetPrice returns the last price of symbol, e.g. USDTUAH.
func (t *BinanceTicker) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := t.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(prices) == 0 {
		return decimal.Decimal{}, errors.Errorf("binance API returned empty prices for %s", symbol)
	}

	return decimal.NewFromString(prices[0].Price)
}
