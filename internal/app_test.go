package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/skinwatch/config"
	"github.com/vadiminshakov/skinwatch/internal/services/source"
	"github.com/vadiminshakov/skinwatch/pkg/clock"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	conf := config.Default()
	conf.DataDir = t.TempDir()
	return conf
}

func TestNewSources(t *testing.T) {
	tests := []struct {
		name             string
		sources          []config.SourceConfig
		expectAdapters   int
		expectCatalogs   int
		expectedErrorMsg string
	}{
		{
			name:           "All Sources",
			sources:        config.DefaultSources(),
			expectAdapters: 3,
			expectCatalogs: 2,
		},
		{
			name: "Disabled Source Skipped",
			sources: []config.SourceConfig{
				{Name: config.SourceSkinport, Enabled: true},
				{Name: config.SourceMarketCSGO, Enabled: false},
			},
			expectAdapters: 1,
			expectCatalogs: 1,
		},
		{
			name:             "Reference Only",
			sources:          []config.SourceConfig{{Name: config.SourceSteam, Enabled: true}},
			expectedErrorMsg: "no consensus source enabled",
		},
		{
			name:             "Unsupported Source",
			sources:          []config.SourceConfig{{Name: "buff", Enabled: true}},
			expectedErrorMsg: "unsupported source: buff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := testConfig(t)
			conf.Sources = tt.sources

			set, err := newSources(conf, http.DefaultClient, nil, clock.Real{}, zap.NewNop())
			if tt.expectedErrorMsg != "" {
				require.Error(t, err)
				assert.Equal(t, tt.expectedErrorMsg, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Len(t, set.adapters, tt.expectAdapters)
			assert.Len(t, set.catalogs, tt.expectCatalogs)
			for _, a := range set.adapters {
				if a.Name() == config.SourceSteam {
					assert.Equal(t, source.ReferenceOnly, a.Eligibility())
				}
			}
		})
	}
}

func TestNewApp(t *testing.T) {
	conf := testConfig(t)
	conf.Subscribers = []int64{42, 42, 7}
	conf.DefaultThreshold = decimal.RequireFromString("3.5")

	app, err := NewApp(conf, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	assert.Equal(t, []int64{42, 7}, app.state.Subscribers())
	settings, err := app.state.Settings(42)
	require.NoError(t, err)
	assert.Equal(t, "3.5", settings.ThresholdPercent.String())

	var names []string
	for _, j := range app.jobs() {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{"catalog-refresh", "portfolio-sweep", "item-sweep", "alert-sweep", "liveness", "snapshot"}, names)
}

func TestNewAppInvalidSchedule(t *testing.T) {
	conf := testConfig(t)
	conf.Schedule.AlertSweep = "every now and then"

	_, err := NewApp(conf, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to schedule jobs")
}

func TestLivenessRefreshesMissingCatalogs(t *testing.T) {
	var skinportHits, marketHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/skinport":
			skinportHits.Add(1)
			_, _ = w.Write([]byte(`[{"market_hash_name":"AK-47 | Redline (Field-Tested)","min_price":12.5}]`))
		case "/market":
			marketHits.Add(1)
			_, _ = w.Write([]byte(`{"success":true,"items":[{"market_hash_name":"AK-47 | Redline (Field-Tested)","price":"13.1"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	conf := testConfig(t)
	conf.Sources = []config.SourceConfig{
		{Name: config.SourceSkinport, Enabled: true, URL: srv.URL + "/skinport", Timeout: config.DefaultSources()[1].Timeout},
		{Name: config.SourceMarketCSGO, Enabled: true, URL: srv.URL + "/market", Timeout: config.DefaultSources()[0].Timeout},
	}

	app, err := NewApp(conf, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	require.NoError(t, app.liveness(context.Background()))
	require.NoError(t, app.liveness(context.Background()))

	assert.Equal(t, int32(1), skinportHits.Load())
	assert.Equal(t, int32(1), marketHits.Load())
}
