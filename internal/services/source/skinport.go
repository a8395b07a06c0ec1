package source

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"github.com/vadiminshakov/skinwatch/pkg/retrier"
)

// SkinportURL lists every item with its lowest ask in USD.
const SkinportURL = "https://api.skinport.com/v1/items?app_id=730&currency=USD&tradable=0"

// Skinport downloads the Skinport item list. Each item is priced at its min_price.
type Skinport struct {
	url    string
	getter *jsonGetter
}

// NewSkinport creates the source. An empty url selects SkinportURL.
func NewSkinport(client *http.Client, url string, timeout time.Duration, r *retrier.Retrier) *Skinport {
	if url == "" {
		url = SkinportURL
	}
	return &Skinport{url: url, getter: newJSONGetter(client, timeout, r)}
}

func (s *Skinport) Name() string { return "skinport" }

func (s *Skinport) Eligibility() Eligibility { return ConsensusEligible }

type skinportItem struct {
	MarketHashName string              `json:"market_hash_name"`
	MinPrice       decimal.NullDecimal `json:"min_price"`
}

func (s *Skinport) FetchAll(ctx context.Context) (map[string]decimal.Decimal, error) {
	var items []skinportItem
	if err := s.getter.get(ctx, s.url, &items); err != nil {
		return nil, errors.Wrap(err, "skinport items")
	}

	prices := make(map[string]decimal.Decimal, len(items))
	for _, it := range items {
		if it.MarketHashName == "" || !it.MinPrice.Valid || !it.MinPrice.Decimal.IsPositive() {
			continue
		}
		prices[domain.ItemKey(it.MarketHashName)] = it.MinPrice.Decimal
	}
	return prices, nil
}
