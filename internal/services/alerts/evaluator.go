// Package alerts evaluates owner watch conditions against current prices.
package alerts

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"github.com/vadiminshakov/skinwatch/pkg/clock"
	"go.uber.org/zap"
)

// DefaultEventCap bounds the events delivered to one owner per sweep.
const DefaultEventCap = 5

// Scope selects which conditions a sweep evaluates.
type Scope int

const (
	ScopeTargets Scope = iota + 1
	ScopeWatch
	ScopeAll
)

func (s Scope) targets() bool { return s == ScopeTargets || s == ScopeAll }
func (s Scope) watch() bool { return s == ScopeWatch || s == ScopeAll }

func (s Scope) String() string {
	switch s {
	case ScopeTargets:
		return "targets"
	case ScopeWatch:
		return "watch"
	case ScopeAll:
		return "all"
	default:
		return "unknown"
	}
}

type quoter interface {
	Current(ctx context.Context, item string) domain.AggregatedPrice
}

type rater interface {
	Rate(ctx context.Context) decimal.Decimal
}

type conditionStore interface {
	Alerts() []domain.TargetAlert
	DeleteAlert(id string) error
	Watchlist() []domain.WatchlistEntry
	UpdateWatchPrice(owner int64, item string, price decimal.Decimal) error
	Positions() []domain.Position
	Settings(owner int64) (domain.NotificationSettings, error)
	UpdateLastSeen(owner int64, seen map[string]decimal.Decimal) error
	SettingsOwners() []int64
}

type dispatcher interface {
	Dispatch(ctx context.Context, batch domain.Batch)
}

type recorder interface {
	AlertFired(kind string)
}

type nopRecorder struct{}

func (nopRecorder) AlertFired(string) {}

// Evaluator runs sweeps over target alerts, watchlist entries and portfolio items.
type Evaluator struct {
	prices   quoter
	rates    rater
	store    conditionStore
	out      dispatcher
	rec      recorder
	clk      clock.Clock
	eventCap int
	l        *zap.Logger
}

// New creates an Evaluator. rec may be nil.
func New(prices quoter, rates rater, store conditionStore, out dispatcher, rec recorder, clk clock.Clock, eventCap int, l *zap.Logger) *Evaluator {
	if rec == nil {
		rec = nopRecorder{}
	}
	if eventCap <= 0 {
		eventCap = DefaultEventCap
	}
	return &Evaluator{
		prices:   prices,
		rates:    rates,
		store:    store,
		out:      out,
		rec:      rec,
		clk:      clk,
		eventCap: eventCap,
		l:        l,
	}
}

type ownerWork struct {
	conditions []domain.WatchCondition
	items      bool
	// settings is loaded once per sweep for owners in the watch scope.
	settings *domain.NotificationSettings
}

// Sweep evaluates every owner in ascending id order and dispatches one batch per owner
// that has something to report. Failures for one owner or condition are logged and
// the sweep moves on. The dispatched batches are returned.
func (e *Evaluator) Sweep(ctx context.Context, scope Scope) []domain.Batch {
	work := e.collect(scope)
	if len(work) == 0 {
		return nil
	}

	owners := make([]int64, 0, len(work))
	for owner := range work {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })

	q := &quotes{prices: e.prices, rate: e.rates.Rate(ctx), seen: make(map[string]decimal.NullDecimal)}

	var batches []domain.Batch
	for _, owner := range owners {
		events := e.sweepOwner(ctx, owner, work[owner], q)
		for _, ev := range events {
			e.rec.AlertFired(string(ev.Kind))
		}

		batch := domain.NewBatch(owner, events, e.eventCap, e.clk.Now())
		if batch.Empty() {
			continue
		}
		e.out.Dispatch(ctx, batch)
		batches = append(batches, batch)
	}

	e.l.Debug("sweep finished",
		zap.Stringer("scope", scope),
		zap.Int("owners", len(owners)),
		zap.Int("batches", len(batches)))

	return batches
}

func (e *Evaluator) collect(scope Scope) map[int64]*ownerWork {
	work := make(map[int64]*ownerWork)
	get := func(owner int64) *ownerWork {
		w, ok := work[owner]
		if !ok {
			w = &ownerWork{}
			work[owner] = w
		}
		return w
	}

	if scope.targets() {
		for _, a := range e.store.Alerts() {
			w := get(a.Owner)
			w.conditions = append(w.conditions, a)
		}
	}
	if !scope.watch() {
		return work
	}

	watchlist := make(map[int64][]domain.WatchlistEntry)
	for _, entry := range e.store.Watchlist() {
		watchlist[entry.Owner] = append(watchlist[entry.Owner], entry)
	}
	owners := e.store.SettingsOwners()
	for owner := range watchlist {
		owners = append(owners, owner)
	}

	// Watchlist entries and portfolio items are both gated by CheckItems.
	loaded := make(map[int64]bool, len(owners))
	for _, owner := range owners {
		if loaded[owner] {
			continue
		}
		loaded[owner] = true
		settings, err := e.store.Settings(owner)
		if err != nil {
			e.l.Error("failed to load settings", zap.Int64("owner", owner), zap.Error(err))
			continue
		}
		if !settings.CheckItems {
			continue
		}
		w := get(owner)
		w.settings = &settings
		w.items = true
		for _, entry := range watchlist[owner] {
			w.conditions = append(w.conditions, entry)
		}
	}

	return work
}

func (e *Evaluator) sweepOwner(ctx context.Context, owner int64, w *ownerWork, q *quotes) []domain.Event {
	threshold := domain.DefaultThresholdPercent
	if w.settings != nil {
		threshold = w.settings.ThresholdPercent
	}

	var events []domain.Event
	for _, c := range w.conditions {
		ev, err := e.evaluate(ctx, c, threshold, q)
		if err != nil {
			e.l.Error("failed to evaluate condition",
				zap.Int64("owner", owner),
				zap.String("item", c.ConditionItem()),
				zap.Error(err))
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}

	if w.items && w.settings != nil {
		events = append(events, e.evaluateItems(ctx, *w.settings, q)...)
	}

	return events
}

func (e *Evaluator) evaluate(ctx context.Context, c domain.WatchCondition, threshold decimal.Decimal, q *quotes) (*domain.Event, error) {
	switch cond := c.(type) {
	case domain.TargetAlert:
		return e.evaluateTarget(ctx, cond, q)
	case domain.WatchlistEntry:
		return e.evaluateWatch(ctx, cond, threshold, q)
	default:
		return nil, errors.Errorf("unsupported condition %T", c)
	}
}

// evaluateTarget deletes a reached alert before reporting it, so a failed delete
// never lets the same alert fire twice.
func (e *Evaluator) evaluateTarget(ctx context.Context, a domain.TargetAlert, q *quotes) (*domain.Event, error) {
	current := q.price(ctx, a.Item)
	if !current.Valid {
		return nil, nil
	}
	if !a.Direction.Reached(current.Decimal, a.Target) {
		return nil, nil
	}

	if err := e.store.DeleteAlert(a.ID); err != nil {
		return nil, errors.Wrapf(err, "delete alert %s", a.ID)
	}

	return &domain.Event{
		Kind:      domain.KindTargetReached,
		Owner:     a.Owner,
		Item:      a.Item,
		Current:   current.Decimal,
		Target:    a.Target,
		Direction: a.Direction,
	}, nil
}

func (e *Evaluator) evaluateWatch(ctx context.Context, w domain.WatchlistEntry, threshold decimal.Decimal, q *quotes) (*domain.Event, error) {
	current := q.price(ctx, w.Item)
	if !current.Valid {
		return nil, nil
	}

	var ev *domain.Event
	if delta, ok := domain.ComputeDelta(current.Decimal, w.LastPrice); ok && delta.Significant(threshold) {
		ev = &domain.Event{
			Kind:     domain.KindWatchlistMove,
			Owner:    w.Owner,
			Item:     w.Item,
			Current:  current.Decimal,
			Previous: w.LastPrice.Decimal,
			Change:   delta.Signed,
		}
	}

	if err := e.store.UpdateWatchPrice(w.Owner, w.Item, current.Decimal); err != nil {
		return ev, errors.Wrapf(err, "update watch price for %q", w.Item)
	}

	return ev, nil
}

// evaluateItems compares every portfolio item against the price the owner saw on the
// previous sweep. The seen prices are replaced afterwards whether or not anything fired.
// Only LastSeen is written back, so settings edited during the sweep are kept.
func (e *Evaluator) evaluateItems(ctx context.Context, settings domain.NotificationSettings, q *quotes) []domain.Event {
	type holding struct {
		name     string
		quantity int64
	}

	var order []string
	holdings := make(map[string]*holding)
	for _, p := range e.store.Positions() {
		key := domain.ItemKey(p.Name)
		h, ok := holdings[key]
		if !ok {
			h = &holding{name: p.Name}
			holdings[key] = h
			order = append(order, key)
		}
		h.quantity += p.Quantity
	}

	var events []domain.Event
	seen := make(map[string]decimal.Decimal, len(order))
	for _, key := range order {
		h := holdings[key]
		current := q.price(ctx, h.name)
		if !current.Valid {
			continue
		}
		seen[key] = current.Decimal

		prev, ok := settings.LastSeen[key]
		if !ok {
			continue
		}
		delta, ok := domain.ComputeDelta(current.Decimal, decimal.NewNullDecimal(prev))
		if !ok || !delta.Significant(settings.ThresholdPercent) {
			continue
		}
		events = append(events, domain.Event{
			Kind:     domain.KindItemMove,
			Owner:    settings.Owner,
			Item:     h.name,
			Current:  current.Decimal,
			Previous: prev,
			Change:   delta.Signed,
			Quantity: h.quantity,
		})
	}

	if err := e.store.UpdateLastSeen(settings.Owner, seen); err != nil {
		e.l.Error("failed to save seen prices", zap.Int64("owner", settings.Owner), zap.Error(err))
	}

	return events
}

// quotes memoizes base-currency prices for the duration of one sweep.
type quotes struct {
	prices quoter
	rate   decimal.Decimal
	seen   map[string]decimal.NullDecimal
}

func (q *quotes) price(ctx context.Context, item string) decimal.NullDecimal {
	key := domain.ItemKey(item)
	if p, ok := q.seen[key]; ok {
		return p
	}
	p := q.prices.Current(ctx, item).In(q.rate)
	q.seen[key] = p
	return p
}
