package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/skinwatch/pkg/clock"
	"github.com/vadiminshakov/skinwatch/pkg/retrier"
	"go.uber.org/zap"
)

func fastRetrier() *retrier.Retrier {
	return retrier.New(retrier.WithMaxRetries(2), retrier.WithInitialInterval(time.Millisecond))
}

func serve(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestMarketCSGO_FetchAll(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    map[string]string
		wantErr bool
	}{
		{
			name:   "list payload",
			status: http.StatusOK,
			body:   `{"success":true,"items":[{"market_hash_name":"AWP | Asiimov (Field-Tested)","price":"25.10"},{"market_hash_name":"Broken","price":null}]}`,
			want:   map[string]string{"awp | asiimov (field-tested)": "25.1"},
		},
		{
			name:   "object payload",
			status: http.StatusOK,
			body:   `{"success":true,"items":{"1":{"market_hash_name":"AK-47 | Redline","price":12.5},"2":{"market_hash_name":"","price":1}}}`,
			want:   map[string]string{"ak-47 | redline": "12.5"},
		},
		{
			name:    "success false",
			status:  http.StatusOK,
			body:    `{"success":false}`,
			wantErr: true,
		},
		{
			name:    "malformed",
			status:  http.StatusOK,
			body:    `{"success":true,"items":"nope"}`,
			wantErr: true,
		},
		{
			name:    "not found status",
			status:  http.StatusNotFound,
			body:    `{}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := serve(t, tt.status, tt.body)
			src := NewMarketCSGO(srv.Client(), srv.URL, time.Second, fastRetrier())

			got, err := src.FetchAll(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for k, v := range tt.want {
				assert.True(t, got[k].Equal(decimal.RequireFromString(v)), k)
			}
		})
	}
}

func TestJSONGetter_Retries(t *testing.T) {
	t.Run("server errors are retried", func(t *testing.T) {
		srv, hits := serve(t, http.StatusServiceUnavailable, "")
		src := NewSkinport(srv.Client(), srv.URL, time.Second, fastRetrier())

		_, err := src.FetchAll(context.Background())
		assert.Error(t, err)
		assert.Equal(t, int32(3), atomic.LoadInt32(hits))
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		srv, hits := serve(t, http.StatusForbidden, "")
		src := NewSkinport(srv.Client(), srv.URL, time.Second, fastRetrier())

		_, err := src.FetchAll(context.Background())
		assert.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	})

	t.Run("timeout bounds the call", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()
		src := NewSkinport(srv.Client(), srv.URL, 50*time.Millisecond, fastRetrier())

		start := time.Now()
		_, err := src.FetchAll(context.Background())
		assert.Error(t, err)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestSkinport_FetchAll(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, `[
		{"market_hash_name":"AWP | Asiimov (Field-Tested)","min_price":24.5},
		{"market_hash_name":"No Offers","min_price":null},
		{"market_hash_name":"Zero","min_price":0}
	]`)
	src := NewSkinport(srv.Client(), srv.URL, time.Second, fastRetrier())

	got, err := src.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got["awp | asiimov (field-tested)"].Equal(decimal.RequireFromString("24.5")))
}

func TestSteam_Fetch(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "median preferred", status: http.StatusOK, body: `{"success":true,"median_price":"$1,234.56","lowest_price":"$1,000.00"}`, want: "1234.56"},
		{name: "lowest fallback", status: http.StatusOK, body: `{"success":true,"lowest_price":"$3.10"}`, want: "3.1"},
		{name: "not successful", status: http.StatusOK, body: `{"success":false}`},
		{name: "garbage price", status: http.StatusOK, body: `{"success":true,"median_price":"n/a"}`},
		{name: "http error", status: http.StatusBadRequest, body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotQuery string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotQuery = r.URL.Query().Get("market_hash_name")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			src := NewSteam(srv.Client(), srv.URL, time.Second, 6000, fastRetrier(), nil, zap.NewNop())
			assert.Equal(t, ReferenceOnly, src.Eligibility())

			got := src.Fetch(context.Background(), "AWP | Asiimov (Field-Tested)")
			assert.Equal(t, "AWP | Asiimov (Field-Tested)", gotQuery)
			if tt.want == "" {
				assert.False(t, got.Valid)
				return
			}
			require.True(t, got.Valid)
			assert.True(t, got.Decimal.Equal(decimal.RequireFromString(tt.want)), got.Decimal.String())
		})
	}
}

func TestParseDollarPrice(t *testing.T) {
	p, err := ParseDollarPrice(" $12,345.67 ")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.RequireFromString("12345.67")))

	for _, raw := range []string{"", "$", "free", "$0.00", "-$1"} {
		_, err := ParseDollarPrice(raw)
		assert.Error(t, err, raw)
	}
}

type countingCatalog struct {
	calls  int32
	prices map[string]decimal.Decimal
	err    error
}

func (c *countingCatalog) Name() string { return "fake" }

func (c *countingCatalog) Eligibility() Eligibility { return ConsensusEligible }

func (c *countingCatalog) FetchAll(ctx context.Context) (map[string]decimal.Decimal, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.err != nil {
		return nil, c.err
	}
	return c.prices, nil
}

func TestCatalog(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	src := &countingCatalog{prices: map[string]decimal.Decimal{"awp | asiimov": decimal.NewFromInt(25)}}
	cat := NewCatalog(src, 30*time.Minute, clk, nil, zap.NewNop())
	ctx := context.Background()

	got := cat.Fetch(ctx, "AWP | Asiimov")
	require.True(t, got.Valid)
	assert.True(t, got.Decimal.Equal(decimal.NewFromInt(25)))

	assert.False(t, cat.Fetch(ctx, "Unknown Item").Valid)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls), "second lookup is served from cache")

	clk.Advance(31 * time.Minute)
	assert.True(t, cat.Fetch(ctx, "awp | asiimov").Valid)
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.calls), "stale catalog is refilled")

	require.NoError(t, cat.RefreshIfExpired(ctx))
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.calls))

	require.NoError(t, cat.Refresh(ctx))
	assert.Equal(t, int32(3), atomic.LoadInt32(&src.calls))

	cat.Invalidate()
	assert.True(t, cat.Fetch(ctx, "awp | asiimov").Valid)
	assert.Equal(t, int32(4), atomic.LoadInt32(&src.calls))
}

func TestCatalog_FailedRefill(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	src := &countingCatalog{err: errors.New("boom")}
	cat := NewCatalog(src, time.Minute, clk, nil, zap.NewNop())

	assert.False(t, cat.Fetch(context.Background(), "x").Valid)
	assert.Error(t, cat.Refresh(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.calls))

	src.err = nil
	src.prices = map[string]decimal.Decimal{"x": decimal.NewFromInt(1)}
	clk.Advance(FailureBackoff)
	assert.True(t, cat.Fetch(context.Background(), "x").Valid, "failure is not cached past the backoff")
}

func TestCatalog_FailureBackoff(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	src := &countingCatalog{err: errors.New("boom")}
	cat := NewCatalog(src, 30*time.Minute, clk, nil, zap.NewNop())
	ctx := context.Background()

	for _, item := range []string{"a", "b", "c"} {
		assert.False(t, cat.Fetch(ctx, item).Valid)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls), "lookups inside the backoff do not refetch")

	clk.Advance(FailureBackoff)
	assert.False(t, cat.Fetch(ctx, "a").Valid)
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.calls))

	src.err = nil
	src.prices = map[string]decimal.Decimal{"a": decimal.NewFromInt(3)}
	require.NoError(t, cat.Refresh(ctx), "forced refresh ignores the backoff")
	assert.True(t, cat.Fetch(ctx, "a").Valid)
	assert.Equal(t, int32(3), atomic.LoadInt32(&src.calls))

	src.err = errors.New("down again")
	cat.Invalidate()
	clk.Advance(time.Second)
	assert.False(t, cat.Fetch(ctx, "a").Valid)
	cat.Invalidate()
	assert.False(t, cat.Fetch(ctx, "a").Valid)
	assert.Equal(t, int32(5), atomic.LoadInt32(&src.calls), "invalidate clears the backoff")
}
