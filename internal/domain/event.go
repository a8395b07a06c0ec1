package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind classifies a notification event.
type EventKind string

const (
	KindTargetReached EventKind = "target_reached"
	KindWatchlistMove EventKind = "watchlist_move"
	KindItemMove      EventKind = "item_move"
	KindPortfolioMove EventKind = "portfolio_move"
)

// Event is a single fired condition.
type Event struct {
	Kind      EventKind       `json:"kind"`
	Owner     int64           `json:"owner"`
	Item      string          `json:"item,omitempty"`
	Current   decimal.Decimal `json:"current"`
	Previous  decimal.Decimal `json:"previous,omitempty"`
	Change    decimal.Decimal `json:"change,omitempty"`
	Quantity  int64           `json:"quantity,omitempty"`
	Target    decimal.Decimal `json:"target,omitempty"`
	Direction Direction       `json:"direction,omitempty"`
}

// Batch is the per-owner outcome of a sweep. Events beyond the cap are counted in Omitted.
type Batch struct {
	Owner   int64     `json:"owner"`
	Events  []Event   `json:"events"`
	Omitted int       `json:"omitted"`
	At      time.Time `json:"at"`
	Image   []byte    `json:"-"`
}

// NewBatch caps events at limit. A non-positive limit keeps everything.
func NewBatch(owner int64, events []Event, limit int, at time.Time) Batch {
	b := Batch{Owner: owner, At: at}
	if limit > 0 && len(events) > limit {
		b.Events = append([]Event(nil), events[:limit]...)
		b.Omitted = len(events) - limit
		return b
	}
	b.Events = append([]Event(nil), events...)
	return b
}

// Empty reports whether the batch carries nothing to deliver.
func (b Batch) Empty() bool {
	return len(b.Events) == 0 && b.Omitted == 0
}
