// Package detector ranks price changes across stored history.
package detector

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinwatch/internal/domain"
)

// SnapshotReader is the read side of the snapshot log.
type SnapshotReader interface {
	Subjects() []string
	LatestTwo(subject string) (current, previous domain.Snapshot, err error)
	ValuesSince(subject string, since time.Time) []domain.Snapshot
}

// Movers ranks item subjects by their latest change. Gainers are the k largest signed deltas,
// losers the k smallest among the rest, biggest loss first. The two never overlap.
// Subjects with fewer than two snapshots or a zero previous value are skipped.
func Movers(store SnapshotReader, k int) (gainers, losers []domain.Mover) {
	if k <= 0 {
		return nil, nil
	}

	var ranked []domain.Mover
	for _, subject := range store.Subjects() {
		cur, prev, err := store.LatestTwo(subject)
		if err != nil {
			continue
		}
		delta, ok := domain.ComputeDelta(cur.Value, decimal.NewNullDecimal(prev.Value))
		if !ok {
			continue
		}
		ranked = append(ranked, domain.Mover{
			Subject:  subject,
			Current:  cur.Value,
			Previous: prev.Value,
			Delta:    delta,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Delta.Signed.GreaterThan(ranked[j].Delta.Signed)
	})

	head := min(k, len(ranked))
	gainers = append(gainers, ranked[:head]...)

	rest := ranked[head:]
	tail := min(k, len(rest))
	for i := len(rest) - 1; i >= len(rest)-tail; i-- {
		losers = append(losers, rest[i])
	}

	return gainers, losers
}
