package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a target alert.
type Direction string

const (
	DirectionRisesTo Direction = "rises_to"
	DirectionFallsTo Direction = "falls_to"
)

// Reached reports whether current satisfies the direction against target.
func (d Direction) Reached(current, target decimal.Decimal) bool {
	switch d {
	case DirectionRisesTo:
		return current.GreaterThanOrEqual(target)
	case DirectionFallsTo:
		return current.LessThanOrEqual(target)
	default:
		return false
	}
}

// WatchCondition is a user-defined condition evaluated by sweeps.
// Implementations are TargetAlert and WatchlistEntry.
type WatchCondition interface {
	watchCondition()
	ConditionOwner() int64
	ConditionItem() string
}

// TargetAlert fires once when the price crosses Target in Direction, then is deleted.
type TargetAlert struct {
	ID        string          `json:"id"`
	Owner     int64           `json:"owner"`
	Item      string          `json:"item"`
	Target    decimal.Decimal `json:"target"`
	Direction Direction       `json:"direction"`
	CreatedAt time.Time       `json:"created_at"`
}

func (TargetAlert) watchCondition() {}
func (a TargetAlert) ConditionOwner() int64 { return a.Owner }
func (a TargetAlert) ConditionItem() string { return a.Item }

// WatchlistEntry fires on every sweep whose change against LastPrice reaches the owner threshold.
type WatchlistEntry struct {
	Owner     int64               `json:"owner"`
	Item      string              `json:"item"`
	LastPrice decimal.NullDecimal `json:"last_price"`
	CreatedAt time.Time           `json:"created_at"`
}

func (WatchlistEntry) watchCondition() {}
func (w WatchlistEntry) ConditionOwner() int64 { return w.Owner }
func (w WatchlistEntry) ConditionItem() string { return w.Item }
