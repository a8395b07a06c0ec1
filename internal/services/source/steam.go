package source

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinwatch/pkg/retrier"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SteamURL is the per-item price overview endpoint.
const SteamURL = "https://steamcommunity.com/market/priceoverview/"

// Steam queries the Steam Community Market one item at a time. Its prices are shown
// for reference and never enter the consensus.
type Steam struct {
	url     string
	getter  *jsonGetter
	limiter *rate.Limiter
	rec     Recorder
	l       *zap.Logger
}

// NewSteam creates the source throttled to perMinute requests. An empty baseURL selects SteamURL.
func NewSteam(client *http.Client, baseURL string, timeout time.Duration, perMinute int, r *retrier.Retrier,
	rec Recorder, l *zap.Logger) *Steam {
	if baseURL == "" {
		baseURL = SteamURL
	}
	if perMinute <= 0 {
		perMinute = 20
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Steam{
		url:     baseURL,
		getter:  newJSONGetter(client, timeout, r),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		rec:     rec,
		l:       l.With(zap.String("source", "steam")),
	}
}

func (s *Steam) Name() string { return "steam" }

func (s *Steam) Eligibility() Eligibility { return ReferenceOnly }

type steamResponse struct {
	Success     bool   `json:"success"`
	MedianPrice string `json:"median_price"`
	LowestPrice string `json:"lowest_price"`
}

// Fetch prefers the median price and falls back to the lowest listing.
func (s *Steam) Fetch(ctx context.Context, item string) decimal.NullDecimal {
	if err := s.limiter.Wait(ctx); err != nil {
		s.l.Debug("rate limiter wait aborted", zap.String("item", item), zap.Error(err))
		s.rec.SourceFetch(s.Name(), false)
		return decimal.NullDecimal{}
	}

	q := url.Values{}
	q.Set("currency", "1")
	q.Set("appid", "730")
	q.Set("market_hash_name", item)

	var resp steamResponse
	if err := s.getter.get(ctx, s.url+"?"+q.Encode(), &resp); err != nil {
		s.l.Warn("steam price unavailable", zap.String("item", item), zap.Error(err))
		s.rec.SourceFetch(s.Name(), false)
		return decimal.NullDecimal{}
	}
	if !resp.Success {
		s.rec.SourceFetch(s.Name(), false)
		return decimal.NullDecimal{}
	}

	raw := resp.MedianPrice
	if raw == "" {
		raw = resp.LowestPrice
	}
	price, err := ParseDollarPrice(raw)
	if err != nil {
		s.l.Warn("unparseable steam price", zap.String("item", item), zap.String("raw", raw), zap.Error(err))
		s.rec.SourceFetch(s.Name(), false)
		return decimal.NullDecimal{}
	}

	s.rec.SourceFetch(s.Name(), true)
	return decimal.NewNullDecimal(price)
}

// ParseDollarPrice parses strings like "$1,234.56".
func ParseDollarPrice(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(strings.NewReplacer("$", "", ",", "", "USD", "").Replace(raw))
	if cleaned == "" {
		return decimal.Decimal{}, errors.New("empty price")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "parse price %q", raw)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, errors.Errorf("non-positive price %q", raw)
	}
	return d, nil
}
