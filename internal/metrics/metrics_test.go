package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.SourceFetch("steam", true)
	m.SourceFetch("steam", false)
	m.SourceFetch("steam", false)
	m.AlertFired("target_reached")
	m.ConsensusAbsent()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sourceFetches.WithLabelValues("steam", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sourceFetches.WithLabelValues("steam", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsFired.WithLabelValues("target_reached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.consensusAbsent))
}

func TestHandler(t *testing.T) {
	m := New()
	m.CacheLookup("catalog", true)
	m.JobDuration("item_sweep", 150*time.Millisecond)
	m.PortfolioValue(2000)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "skinwatch_cache_lookups_total")
	assert.Contains(t, rec.Body.String(), "skinwatch_portfolio_value 2000")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SourceFetch("x", true)
		m.CatalogRefresh("x", false)
		m.CacheLookup("x", false)
		m.ConsensusAbsent()
		m.AlertFired("x")
		m.Notification(true)
		m.JobDuration("x", time.Second)
		m.PortfolioValue(1)
	})
	assert.Nil(t, m.Registry())
}
