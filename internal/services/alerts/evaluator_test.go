package alerts

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"github.com/vadiminshakov/skinwatch/internal/storage/state"
	"github.com/vadiminshakov/skinwatch/pkg/clock"
	"go.uber.org/zap"
)

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	calls  map[string]int
}

func newFakePrices() *fakePrices {
	return &fakePrices{prices: map[string]decimal.Decimal{}, calls: map[string]int{}}
}

func (f *fakePrices) set(item string, v int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[domain.ItemKey(item)] = decimal.NewFromInt(v)
}

func (f *fakePrices) Current(_ context.Context, item string) domain.AggregatedPrice {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[domain.ItemKey(item)]++
	p := domain.AggregatedPrice{Item: item}
	if v, ok := f.prices[domain.ItemKey(item)]; ok {
		p.Consensus = decimal.NewNullDecimal(v)
	}
	return p
}

type fixedRate struct{ rate decimal.Decimal }

func (r fixedRate) Rate(context.Context) decimal.Decimal { return r.rate }

type collector struct {
	batches []domain.Batch
}

func (c *collector) Dispatch(_ context.Context, b domain.Batch) {
	c.batches = append(c.batches, b)
}

type fired struct {
	kinds []string
}

func (f *fired) AlertFired(kind string) {
	f.kinds = append(f.kinds, kind)
}

type failingDelete struct {
	*state.Store
}

func (failingDelete) DeleteAlert(string) error {
	return errors.New("disk full")
}

type harness struct {
	store  *state.Store
	prices *fakePrices
	out    *collector
	rec    *fired
	eval   *Evaluator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	store, err := state.NewStore(t.TempDir(), clk)
	require.NoError(t, err)

	h := &harness{store: store, prices: newFakePrices(), out: &collector{}, rec: &fired{}}
	h.eval = New(h.prices, fixedRate{rate: decimal.NewFromInt(1)}, store, h.out, h.rec, clk, DefaultEventCap, zap.NewNop())
	return h
}

func TestSweep_TargetAlertFiresOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.store.AddAlert(domain.TargetAlert{
		Owner: 7, Item: "AK-47 | Redline (Field-Tested)", Target: decimal.NewFromInt(100), Direction: domain.DirectionRisesTo,
	})
	require.NoError(t, err)

	h.prices.set("AK-47 | Redline (Field-Tested)", 99)
	assert.Empty(t, h.eval.Sweep(ctx, ScopeTargets))
	assert.Len(t, h.store.Alerts(), 1)

	h.prices.set("AK-47 | Redline (Field-Tested)", 100)
	batches := h.eval.Sweep(ctx, ScopeTargets)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Events, 1)
	ev := batches[0].Events[0]
	assert.Equal(t, domain.KindTargetReached, ev.Kind)
	assert.Equal(t, int64(7), ev.Owner)
	assert.True(t, ev.Target.Equal(decimal.NewFromInt(100)))
	assert.Empty(t, h.store.Alerts())

	assert.Empty(t, h.eval.Sweep(ctx, ScopeTargets))
	assert.Len(t, h.out.batches, 1)
	assert.Equal(t, []string{string(domain.KindTargetReached)}, h.rec.kinds)
}

func TestSweep_TargetDirections(t *testing.T) {
	tests := []struct {
		name      string
		direction domain.Direction
		price     int64
		fires     bool
	}{
		{"falls to above target", domain.DirectionFallsTo, 101, false},
		{"falls to at target", domain.DirectionFallsTo, 100, true},
		{"falls to below target", domain.DirectionFallsTo, 50, true},
		{"rises to below target", domain.DirectionRisesTo, 99, false},
		{"rises to above target", domain.DirectionRisesTo, 150, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.store.AddAlert(domain.TargetAlert{Owner: 1, Item: "Case", Target: decimal.NewFromInt(100), Direction: tt.direction})
			require.NoError(t, err)
			h.prices.set("Case", tt.price)

			batches := h.eval.Sweep(context.Background(), ScopeAll)
			assert.Equal(t, tt.fires, len(batches) == 1)
			assert.Equal(t, tt.fires, len(h.store.Alerts()) == 0)
		})
	}
}

func TestSweep_TargetUsesBaseCurrency(t *testing.T) {
	h := newHarness(t)
	h.eval.rates = fixedRate{rate: decimal.NewFromInt(40)}

	_, err := h.store.AddAlert(domain.TargetAlert{Owner: 1, Item: "Case", Target: decimal.NewFromInt(400), Direction: domain.DirectionRisesTo})
	require.NoError(t, err)
	h.prices.set("Case", 10)

	batches := h.eval.Sweep(context.Background(), ScopeTargets)
	require.Len(t, batches, 1)
	assert.True(t, batches[0].Events[0].Current.Equal(decimal.NewFromInt(400)))
}

func TestSweep_AbsentPriceSkipsAlert(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.AddAlert(domain.TargetAlert{Owner: 1, Item: "Unknown", Target: decimal.NewFromInt(1), Direction: domain.DirectionRisesTo})
	require.NoError(t, err)

	assert.Empty(t, h.eval.Sweep(context.Background(), ScopeTargets))
	assert.Len(t, h.store.Alerts(), 1)
}

func TestSweep_FailedDeleteSuppressesEvent(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.AddAlert(domain.TargetAlert{Owner: 1, Item: "Case", Target: decimal.NewFromInt(1), Direction: domain.DirectionRisesTo})
	require.NoError(t, err)
	h.prices.set("Case", 5)

	h.eval.store = failingDelete{Store: h.store}
	assert.Empty(t, h.eval.Sweep(context.Background(), ScopeTargets))
	assert.Empty(t, h.rec.kinds)
}

func TestSweep_WatchlistComparesAgainstLatestObservation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.store.AddWatch(domain.WatchlistEntry{Owner: 3, Item: "Glove Case"})
	require.NoError(t, err)

	h.prices.set("Glove Case", 100)
	assert.Empty(t, h.eval.Sweep(ctx, ScopeWatch), "first observation only initialises")
	require.True(t, h.store.Watchlist()[0].LastPrice.Decimal.Equal(decimal.NewFromInt(100)))

	h.prices.set("Glove Case", 106)
	batches := h.eval.Sweep(ctx, ScopeWatch)
	require.Len(t, batches, 1)
	ev := batches[0].Events[0]
	assert.Equal(t, domain.KindWatchlistMove, ev.Kind)
	assert.True(t, ev.Change.Equal(decimal.NewFromInt(6)))
	assert.True(t, h.store.Watchlist()[0].LastPrice.Decimal.Equal(decimal.NewFromInt(106)))

	h.prices.set("Glove Case", 107)
	assert.Empty(t, h.eval.Sweep(ctx, ScopeWatch))
	assert.True(t, h.store.Watchlist()[0].LastPrice.Decimal.Equal(decimal.NewFromInt(107)))
}

func TestSweep_WatchlistUsesOwnerThreshold(t *testing.T) {
	h := newHarness(t)
	settings, err := h.store.Settings(3)
	require.NoError(t, err)
	settings.ThresholdPercent = decimal.NewFromInt(10)
	require.NoError(t, h.store.SaveSettings(settings))

	_, err = h.store.AddWatch(domain.WatchlistEntry{Owner: 3, Item: "Case", LastPrice: decimal.NewNullDecimal(decimal.NewFromInt(100))})
	require.NoError(t, err)

	h.prices.set("Case", 109)
	assert.Empty(t, h.eval.Sweep(context.Background(), ScopeWatch))

	h.prices.set("Case", 90)
	batches := h.eval.Sweep(context.Background(), ScopeWatch)
	require.Len(t, batches, 1)
	assert.True(t, batches[0].Events[0].Change.LessThan(decimal.Zero))
}

func TestSweep_PortfolioItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.store.Settings(5)
	require.NoError(t, err)
	for _, qty := range []int64{1, 2} {
		_, err := h.store.AddPosition(domain.Position{Name: "Fracture Case", Quantity: qty, BuyPrice: decimal.NewFromInt(10)})
		require.NoError(t, err)
	}
	_, err = h.store.AddPosition(domain.Position{Name: "Mystery", Quantity: 1, BuyPrice: decimal.NewFromInt(10)})
	require.NoError(t, err)

	h.prices.set("Fracture Case", 20)
	assert.Empty(t, h.eval.Sweep(ctx, ScopeWatch))

	settings, err := h.store.Settings(5)
	require.NoError(t, err)
	assert.Len(t, settings.LastSeen, 1)

	h.prices.set("Fracture Case", 25)
	batches := h.eval.Sweep(ctx, ScopeWatch)
	require.Len(t, batches, 1)
	ev := batches[0].Events[0]
	assert.Equal(t, domain.KindItemMove, ev.Kind)
	assert.Equal(t, int64(3), ev.Quantity)
	assert.True(t, ev.Change.Equal(decimal.NewFromInt(25)))

	settings, err = h.store.Settings(5)
	require.NoError(t, err)
	assert.True(t, settings.LastSeen[domain.ItemKey("Fracture Case")].Equal(decimal.NewFromInt(25)))
}

func TestSweep_ItemChecksDisabled(t *testing.T) {
	h := newHarness(t)
	settings, err := h.store.Settings(5)
	require.NoError(t, err)
	settings.CheckItems = false
	settings.LastSeen = map[string]decimal.Decimal{domain.ItemKey("Case"): decimal.NewFromInt(1)}
	require.NoError(t, h.store.SaveSettings(settings))

	_, err = h.store.AddPosition(domain.Position{Name: "Case", Quantity: 1, BuyPrice: decimal.NewFromInt(1)})
	require.NoError(t, err)
	h.prices.set("Case", 100)

	assert.Empty(t, h.eval.Sweep(context.Background(), ScopeWatch))
}

func TestSweep_WatchlistChecksDisabled(t *testing.T) {
	h := newHarness(t)
	settings, err := h.store.Settings(5)
	require.NoError(t, err)
	settings.CheckItems = false
	settings.CheckPortfolio = false
	require.NoError(t, h.store.SaveSettings(settings))

	_, err = h.store.AddWatch(domain.WatchlistEntry{Owner: 5, Item: "Case", LastPrice: decimal.NewNullDecimal(decimal.NewFromInt(100))})
	require.NoError(t, err)
	h.prices.set("Case", 150)

	assert.Empty(t, h.eval.Sweep(context.Background(), ScopeWatch))
	assert.Empty(t, h.out.batches)
	assert.True(t, h.store.Watchlist()[0].LastPrice.Decimal.Equal(decimal.NewFromInt(100)))
	assert.Zero(t, h.prices.calls[domain.ItemKey("Case")])
}

type hookedPrices struct {
	*fakePrices
	once sync.Once
	hook func()
}

func (p *hookedPrices) Current(ctx context.Context, item string) domain.AggregatedPrice {
	p.once.Do(p.hook)
	return p.fakePrices.Current(ctx, item)
}

func TestSweep_KeepsSettingsEditedDuringSweep(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.UpdateLastSeen(5, map[string]decimal.Decimal{domain.ItemKey("Case"): decimal.NewFromInt(100)}))
	_, err := h.store.AddPosition(domain.Position{Name: "Case", Quantity: 1, BuyPrice: decimal.NewFromInt(1)})
	require.NoError(t, err)
	h.prices.set("Case", 150)

	prices := &hookedPrices{fakePrices: h.prices, hook: func() {
		_, err := h.store.UpdateSettings(5, func(st *domain.NotificationSettings) error {
			st.CheckItems = false
			st.ThresholdPercent = decimal.NewFromInt(50)
			return nil
		})
		require.NoError(t, err)
	}}
	eval := New(prices, fixedRate{rate: decimal.NewFromInt(1)}, h.store, h.out, nil,
		clock.NewFake(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)), DefaultEventCap, zap.NewNop())

	eval.Sweep(context.Background(), ScopeWatch)

	settings, err := h.store.Settings(5)
	require.NoError(t, err)
	assert.False(t, settings.CheckItems)
	assert.True(t, settings.ThresholdPercent.Equal(decimal.NewFromInt(50)))
	assert.True(t, settings.LastSeen[domain.ItemKey("Case")].Equal(decimal.NewFromInt(150)))
}

func TestSweep_CapsEventsPerOwner(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 7; i++ {
		item := fmt.Sprintf("Sticker %d", i)
		_, err := h.store.AddWatch(domain.WatchlistEntry{Owner: 9, Item: item, LastPrice: decimal.NewNullDecimal(decimal.NewFromInt(100))})
		require.NoError(t, err)
		h.prices.set(item, 200)
	}

	batches := h.eval.Sweep(context.Background(), ScopeWatch)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Events, DefaultEventCap)
	assert.Equal(t, 2, batches[0].Omitted)
	assert.Len(t, h.rec.kinds, 7)
}

func TestSweep_OwnersInAscendingOrder(t *testing.T) {
	h := newHarness(t)
	for _, owner := range []int64{30, 10, 20} {
		_, err := h.store.AddAlert(domain.TargetAlert{Owner: owner, Item: "Case", Target: decimal.NewFromInt(1), Direction: domain.DirectionRisesTo})
		require.NoError(t, err)
	}
	h.prices.set("Case", 2)

	batches := h.eval.Sweep(context.Background(), ScopeTargets)
	require.Len(t, batches, 3)
	assert.Equal(t, []int64{10, 20, 30}, []int64{batches[0].Owner, batches[1].Owner, batches[2].Owner})
	assert.Equal(t, 1, h.prices.calls[domain.ItemKey("Case")], "prices are quoted once per sweep")
}

func TestSweep_ScopeFiltersConditions(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.AddAlert(domain.TargetAlert{Owner: 1, Item: "Case", Target: decimal.NewFromInt(1), Direction: domain.DirectionRisesTo})
	require.NoError(t, err)
	h.prices.set("Case", 2)

	assert.Empty(t, h.eval.Sweep(context.Background(), ScopeWatch))
	assert.Len(t, h.store.Alerts(), 1)
}
