package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is a timestamped value of an item or of the whole portfolio, in the base currency.
type Snapshot struct {
	Subject   string          `json:"subject"`
	Value     decimal.Decimal `json:"value"`
	Quantity  int64           `json:"quantity,omitempty"`
	Timestamp time.Time       `json:"ts"`
}

// SnapshotRecord pairs a snapshot with its log index.
type SnapshotRecord struct {
	Index    uint64   `json:"index"`
	Snapshot Snapshot `json:"snapshot"`
}
