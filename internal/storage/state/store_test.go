package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"github.com/vadiminshakov/skinwatch/pkg/clock"
)

func newStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := NewStore(dir, clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	return s
}

func TestPositions(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)

	p, err := s.AddPosition(domain.Position{Name: "AWP | Asiimov", Quantity: 2, BuyPrice: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.AddedAt.IsZero())

	require.NoError(t, s.UpdateQuantity(p.ID, 3))
	require.NoError(t, s.UpdateBuyPrice(p.ID, decimal.NewFromInt(900), decimal.NewFromInt(22)))
	assert.ErrorIs(t, s.UpdateQuantity("missing", 1), ErrNotFound)

	reopened := newStore(t, dir)
	got := reopened.Positions()
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Quantity)
	assert.True(t, got[0].BuyPrice.Equal(decimal.NewFromInt(900)))
	assert.True(t, got[0].BuyPriceSecondary.Equal(decimal.NewFromInt(22)))

	require.NoError(t, reopened.DeletePosition(p.ID))
	assert.Empty(t, reopened.Positions())
	assert.ErrorIs(t, reopened.DeletePosition(p.ID), ErrNotFound)
}

func TestAlerts(t *testing.T) {
	s := newStore(t, t.TempDir())

	a, err := s.AddAlert(domain.TargetAlert{Owner: 1, Item: "x", Target: decimal.NewFromInt(100), Direction: domain.DirectionRisesTo})
	require.NoError(t, err)
	_, err = s.AddAlert(domain.TargetAlert{Owner: 2, Item: "y", Target: decimal.NewFromInt(5), Direction: domain.DirectionFallsTo})
	require.NoError(t, err)

	assert.Len(t, s.Alerts(), 2)
	require.Len(t, s.AlertsByOwner(1), 1)
	assert.Equal(t, a.ID, s.AlertsByOwner(1)[0].ID)

	require.NoError(t, s.DeleteAlert(a.ID))
	assert.ErrorIs(t, s.DeleteAlert(a.ID), ErrNotFound)
	assert.Len(t, s.Alerts(), 1)
}

func TestWatchlist(t *testing.T) {
	s := newStore(t, t.TempDir())

	_, err := s.AddWatch(domain.WatchlistEntry{Owner: 1, Item: "AWP | Asiimov"})
	require.NoError(t, err)
	_, err = s.AddWatch(domain.WatchlistEntry{Owner: 1, Item: "awp | asiimov"})
	assert.ErrorIs(t, err, ErrExists)

	require.NoError(t, s.UpdateWatchPrice(1, "AWP | ASIIMOV", decimal.NewFromInt(106)))
	entries := s.WatchlistByOwner(1)
	require.Len(t, entries, 1)
	require.True(t, entries[0].LastPrice.Valid)
	assert.True(t, entries[0].LastPrice.Decimal.Equal(decimal.NewFromInt(106)))

	assert.ErrorIs(t, s.UpdateWatchPrice(2, "AWP | Asiimov", decimal.NewFromInt(1)), ErrNotFound)
	require.NoError(t, s.RemoveWatch(1, "AWP | Asiimov"))
	assert.Empty(t, s.Watchlist())
}

func TestSettings(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)

	st, err := s.Settings(7)
	require.NoError(t, err)
	assert.True(t, st.ThresholdPercent.Equal(decimal.NewFromInt(5)))
	assert.True(t, st.CheckItems)
	assert.True(t, st.CheckPortfolio)
	assert.NotNil(t, st.LastSeen)

	st.ThresholdPercent = decimal.NewFromInt(10)
	st.LastSeen["x"] = decimal.NewFromInt(3)
	require.NoError(t, s.SaveSettings(st))
	require.NoError(t, s.SaveSettings(domain.NotificationSettings{Owner: 3, ThresholdPercent: decimal.NewFromInt(1)}))

	reopened := newStore(t, dir)
	got, err := reopened.Settings(7)
	require.NoError(t, err)
	assert.True(t, got.ThresholdPercent.Equal(decimal.NewFromInt(10)))
	assert.True(t, got.LastSeen["x"].Equal(decimal.NewFromInt(3)))
	assert.Equal(t, []int64{3, 7}, reopened.SettingsOwners())

	got.LastSeen["y"] = decimal.NewFromInt(1)
	again, err := reopened.Settings(7)
	require.NoError(t, err)
	assert.NotContains(t, again.LastSeen, "y")
}

func TestUpdateLastSeenKeepsPreferences(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)

	st, err := s.Settings(4)
	require.NoError(t, err)
	st.ThresholdPercent = decimal.NewFromInt(12)
	st.CheckPortfolio = false
	require.NoError(t, s.SaveSettings(st))

	require.NoError(t, s.UpdateLastSeen(4, map[string]decimal.Decimal{"case": decimal.NewFromInt(7)}))

	got, err := newStore(t, dir).Settings(4)
	require.NoError(t, err)
	assert.Equal(t, "12", got.ThresholdPercent.String())
	assert.False(t, got.CheckPortfolio)
	assert.True(t, got.CheckItems)
	assert.Equal(t, map[string]decimal.Decimal{"case": decimal.NewFromInt(7)}, got.LastSeen)
}

func TestUpdateSettings(t *testing.T) {
	s := newStore(t, t.TempDir())
	s.SetDefaultThreshold(decimal.NewFromInt(3))
	require.NoError(t, s.UpdateLastSeen(6, map[string]decimal.Decimal{"case": decimal.NewFromInt(2)}))

	got, err := s.UpdateSettings(6, func(st *domain.NotificationSettings) error {
		st.CheckItems = false
		return nil
	})
	require.NoError(t, err)
	assert.False(t, got.CheckItems)
	assert.Equal(t, "3", got.ThresholdPercent.String())
	assert.Contains(t, got.LastSeen, "case")

	_, err = s.UpdateSettings(6, func(*domain.NotificationSettings) error {
		return domain.ErrInvalidInput
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	again, err := s.Settings(6)
	require.NoError(t, err)
	assert.False(t, again.CheckItems)
}

func TestStateFileIsReplacedWhole(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)
	require.NoError(t, s.Subscribe(1))
	require.NoError(t, s.Subscribe(2))

	_, err := os.Stat(filepath.Join(dir, stateFileName+".tmp"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, []int64{1, 2}, newStore(t, dir).Subscribers())
}

func TestSettingsDefaultThreshold(t *testing.T) {
	s := newStore(t, t.TempDir())
	s.SetDefaultThreshold(decimal.RequireFromString("2.5"))

	st, err := s.Settings(1)
	require.NoError(t, err)
	assert.Equal(t, "2.5", st.ThresholdPercent.String())

	st.ThresholdPercent = decimal.NewFromInt(9)
	require.NoError(t, s.SaveSettings(st))
	s.SetDefaultThreshold(decimal.NewFromInt(4))

	got, err := s.Settings(1)
	require.NoError(t, err)
	assert.Equal(t, "9", got.ThresholdPercent.String())
}

func TestSubscribersAndLastKnownValue(t *testing.T) {
	s := newStore(t, t.TempDir())

	require.NoError(t, s.Subscribe(1))
	require.NoError(t, s.Subscribe(1))
	require.NoError(t, s.Subscribe(2))
	assert.Equal(t, []int64{1, 2}, s.Subscribers())
	require.NoError(t, s.Unsubscribe(1))
	assert.ErrorIs(t, s.Unsubscribe(1), ErrNotFound)

	assert.False(t, s.LastKnownValue().Valid)
	require.NoError(t, s.SetLastKnownValue(decimal.NewFromInt(2000)))
	v := s.LastKnownValue()
	require.True(t, v.Valid)
	assert.True(t, v.Decimal.Equal(decimal.NewFromInt(2000)))
}

func TestFailedWriteKeepsState(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)
	require.NoError(t, s.Subscribe(1))

	// a directory in place of the temp file makes the write fail
	require.NoError(t, os.Mkdir(filepath.Join(dir, stateFileName+".tmp"), 0o755))

	assert.Error(t, s.Subscribe(2))
	assert.Equal(t, []int64{1}, s.Subscribers())
}

func TestCorruptStateFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, stateFileName), []byte("{not json"), 0o644))

	_, err := NewStore(dir, nil)
	assert.Error(t, err)
}
