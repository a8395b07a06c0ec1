package source

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"github.com/vadiminshakov/skinwatch/pkg/retrier"
)

// MarketCSGOURL is the bulk USD price list.
const MarketCSGOURL = "https://market.csgo.com/api/v2/prices/USD.json"

// MarketCSGO downloads the full market.csgo.com price list.
type MarketCSGO struct {
	url    string
	getter *jsonGetter
}

// NewMarketCSGO creates the source. An empty url selects MarketCSGOURL.
func NewMarketCSGO(client *http.Client, url string, timeout time.Duration, r *retrier.Retrier) *MarketCSGO {
	if url == "" {
		url = MarketCSGOURL
	}
	return &MarketCSGO{url: url, getter: newJSONGetter(client, timeout, r)}
}

func (m *MarketCSGO) Name() string { return "marketcsgo" }

func (m *MarketCSGO) Eligibility() Eligibility { return ConsensusEligible }

type marketCSGOItem struct {
	MarketHashName string              `json:"market_hash_name"`
	Price          decimal.NullDecimal `json:"price"`
}

type marketCSGOResponse struct {
	Success bool            `json:"success"`
	Items   json.RawMessage `json:"items"`
}

// FetchAll returns prices keyed by lower-cased item name. The items field may be a list
// or an object keyed by arbitrary ids.
func (m *MarketCSGO) FetchAll(ctx context.Context) (map[string]decimal.Decimal, error) {
	var resp marketCSGOResponse
	if err := m.getter.get(ctx, m.url, &resp); err != nil {
		return nil, errors.Wrap(err, "market.csgo prices")
	}
	if !resp.Success {
		return nil, errors.New("market.csgo reported failure")
	}

	var items []marketCSGOItem
	raw := bytes.TrimSpace(resp.Items)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '[':
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, errors.Wrap(err, "decode market.csgo items list")
		}
	case raw[0] == '{':
		var byID map[string]marketCSGOItem
		if err := json.Unmarshal(raw, &byID); err != nil {
			return nil, errors.Wrap(err, "decode market.csgo items object")
		}
		for _, it := range byID {
			items = append(items, it)
		}
	default:
		return nil, errors.New("unexpected market.csgo items shape")
	}

	prices := make(map[string]decimal.Decimal, len(items))
	for _, it := range items {
		if it.MarketHashName == "" || !it.Price.Valid || !it.Price.Decimal.IsPositive() {
			continue
		}
		prices[domain.ItemKey(it.MarketHashName)] = it.Price.Decimal
	}
	return prices, nil
}
