package fx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/skinwatch/pkg/clock"
	"go.uber.org/zap"
)

type stubTicker struct {
	calls int
	price decimal.Decimal
	err   error
}

func (s *stubTicker) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	s.calls++
	return s.price, s.err
}

func TestProvider_Rate(t *testing.T) {
	fallback := decimal.RequireFromString("41.5")

	t.Run("caches ticker price", func(t *testing.T) {
		clk := clock.NewFake(time.Unix(0, 0))
		tk := &stubTicker{price: decimal.RequireFromString("41.2")}
		p := NewProvider(tk, "USDTUAH", fallback, 30*time.Minute, clk, zap.NewNop())

		assert.True(t, p.Rate(context.Background()).Equal(decimal.RequireFromString("41.2")))
		assert.True(t, p.Rate(context.Background()).Equal(decimal.RequireFromString("41.2")))
		assert.Equal(t, 1, tk.calls)

		clk.Advance(31 * time.Minute)
		p.Rate(context.Background())
		assert.Equal(t, 2, tk.calls)
	})

	t.Run("falls back on error", func(t *testing.T) {
		tk := &stubTicker{err: errors.New("down")}
		p := NewProvider(tk, "USDTUAH", fallback, time.Minute, nil, nil)

		assert.True(t, p.Rate(context.Background()).Equal(fallback))
		p.Rate(context.Background())
		assert.Equal(t, 2, tk.calls, "fallback is not cached")
	})

	t.Run("falls back on non-positive price", func(t *testing.T) {
		p := NewProvider(&stubTicker{price: decimal.Zero}, "USDTUAH", fallback, time.Minute, nil, nil)
		assert.True(t, p.Rate(context.Background()).Equal(fallback))
	})

	t.Run("nil ticker", func(t *testing.T) {
		p := NewProvider(nil, "USDTUAH", fallback, time.Minute, nil, nil)
		assert.True(t, p.Rate(context.Background()).Equal(fallback))
		assert.True(t, p.Fallback().Equal(fallback))
	})
}

func TestBinanceTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "USDTUAH", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"symbol":"USDTUAH","price":"41.73000000"}]`))
	}))
	defer srv.Close()

	client := binance.NewClient("", "")
	client.BaseURL = srv.URL

	price, err := NewBinanceTicker(client).GetPrice(context.Background(), "USDTUAH")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("41.73")))
}
