package readings

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"github.com/vadiminshakov/skinwatch/pkg/clock"
	"go.uber.org/zap"
)

const (
	defaultReadingsDir   = "./wal/readings"
	readingsSegmentLimit = 1000
	readingsMaxSegments  = 50
	readingsKey          = "readings_batch"

	// DefaultRetention bounds the in-memory window served by Since.
	DefaultRetention = 72 * time.Hour
)

// WALStore persists per-source price readings. Each aggregate call is written as one batch
// so its readings share a timestamp on replay.
type WALStore struct {
	wal       *gowal.Wal
	mu        sync.RWMutex
	readings  []domain.SourcePriceReading
	retention time.Duration
	clock     clock.Clock
}

// NewWALStore opens the readings log under dir and replays readings inside the retention window.
func NewWALStore(dir string, retention time.Duration, clk clock.Clock, l *zap.Logger) (*WALStore, error) {
	if dir == "" {
		dir = defaultReadingsDir
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if l == nil {
		l = zap.NewNop()
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "readings_",
		SegmentThreshold: readingsSegmentLimit,
		MaxSegments:      readingsMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init readings WAL")
	}

	s := &WALStore{wal: wal, retention: retention, clock: clk}
	cutoff := clk.Now().Add(-retention)
	for msg := range wal.Iterator() {
		if msg.Key != readingsKey {
			continue
		}
		var batch []domain.SourcePriceReading
		if err := json.Unmarshal(msg.Value, &batch); err != nil {
			l.Error("failed to unmarshal readings batch", zap.Error(err))
			continue
		}
		for _, r := range batch {
			if !r.ObservedAt.Before(cutoff) {
				s.readings = append(s.readings, r)
			}
		}
	}

	return s, nil
}

// Save appends one batch of readings.
func (s *WALStore) Save(batch []domain.SourcePriceReading) error {
	if s == nil || s.wal == nil {
		return errors.New("readings store is not initialized")
	}
	if len(batch) == 0 {
		return nil
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return errors.Wrap(err, "marshal readings")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.wal.Write(s.wal.CurrentIndex()+1, readingsKey, payload); err != nil {
		return errors.Wrap(err, "write readings")
	}
	s.readings = append(s.readings, batch...)
	s.prune()

	return nil
}

// Since returns readings observed at or after t, in insertion order.
func (s *WALStore) Since(t time.Time) []domain.SourcePriceReading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.SourcePriceReading
	for _, r := range s.readings {
		if !r.ObservedAt.Before(t) {
			out = append(out, r)
		}
	}
	return out
}

func (s *WALStore) prune() {
	cutoff := s.clock.Now().Add(-s.retention)
	i := 0
	for i < len(s.readings) && s.readings[i].ObservedAt.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.readings = append([]domain.SourcePriceReading(nil), s.readings[i:]...)
	}
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("readings store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
