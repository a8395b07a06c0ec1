package snapshots

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultSnapshotDir   = "./wal/snapshots"
	snapshotSegmentLimit = 1000
	snapshotMaxSegments  = 100
	snapshotKeyPrefix    = "snapshot_"
)

// ErrInsufficientHistory is returned when fewer than two snapshots exist for a subject.
var ErrInsufficientHistory = errors.New("insufficient history")

// WALStore is an append-only snapshot log. Records are replayed into memory on open.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex

	records   []domain.Snapshot
	bySubject map[string][]int
	subjects  []string
}

// NewWALStore opens (or creates) the snapshot log under dir.
func NewWALStore(dir string, l *zap.Logger) (*WALStore, error) {
	if dir == "" {
		dir = defaultSnapshotDir
	}
	if l == nil {
		l = zap.NewNop()
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "snapshot_",
		SegmentThreshold: snapshotSegmentLimit,
		MaxSegments:      snapshotMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init snapshot WAL")
	}

	s := &WALStore{wal: wal, bySubject: make(map[string][]int)}
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, snapshotKeyPrefix) {
			continue
		}
		var snap domain.Snapshot
		if err := json.Unmarshal(msg.Value, &snap); err != nil {
			l.Error("failed to unmarshal snapshot", zap.Error(err), zap.String("key", msg.Key))
			continue
		}
		s.index(snap)
	}

	return s, nil
}

// ErrNoSubject is returned when a snapshot carries a blank subject.
var ErrNoSubject = errors.New("snapshot subject is required")

// Append writes the snapshot to the log.
func (s *WALStore) Append(snap domain.Snapshot) error {
	if s == nil || s.wal == nil {
		return errors.New("snapshot store is not initialized")
	}
	if strings.TrimSpace(snap.Subject) == "" {
		return ErrNoSubject
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}

	key := snapshotKeyPrefix + domain.ItemKey(snap.Subject)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.wal.Write(s.wal.CurrentIndex()+1, key, payload); err != nil {
		return errors.Wrap(err, "write snapshot")
	}
	s.index(snap)

	return nil
}

func (s *WALStore) index(snap domain.Snapshot) {
	key := domain.ItemKey(snap.Subject)
	if _, ok := s.bySubject[key]; !ok {
		s.subjects = append(s.subjects, snap.Subject)
	}
	s.bySubject[key] = append(s.bySubject[key], len(s.records))
	s.records = append(s.records, snap)
}

// LatestTwo returns the newest and second-newest snapshots of subject.
// Equal timestamps rank the later-inserted snapshot first.
func (s *WALStore) LatestTwo(subject string) (current, previous domain.Snapshot, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := s.bySubject[domain.ItemKey(subject)]
	if len(positions) < 2 {
		return domain.Snapshot{}, domain.Snapshot{}, ErrInsufficientHistory
	}

	first, second := -1, -1
	for _, pos := range positions {
		ts := s.records[pos].Timestamp
		switch {
		case first == -1 || !ts.Before(s.records[first].Timestamp):
			second = first
			first = pos
		case second == -1 || !ts.Before(s.records[second].Timestamp):
			second = pos
		}
	}

	return s.records[first], s.records[second], nil
}

// ValuesSince returns snapshots of subject at or after since, oldest first.
func (s *WALStore) ValuesSince(subject string, since time.Time) []domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Snapshot
	for _, pos := range s.bySubject[domain.ItemKey(subject)] {
		if !s.records[pos].Timestamp.Before(since) {
			out = append(out, s.records[pos])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	return out
}

// Subjects lists item subjects in order of first appearance, excluding the portfolio total.
func (s *WALStore) Subjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.subjects))
	for _, subj := range s.subjects {
		if domain.SameItem(subj, domain.PortfolioTotalSubject) {
			continue
		}
		out = append(out, subj)
	}
	return out
}

// SnapshotsAfter returns records appended after index. Indexes start at 1.
func (s *WALStore) SnapshotsAfter(index uint64) []domain.SnapshotRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if uint64(len(s.records)) <= index {
		return nil
	}
	out := make([]domain.SnapshotRecord, 0, uint64(len(s.records))-index)
	for i := index; i < uint64(len(s.records)); i++ {
		out = append(out, domain.SnapshotRecord{Index: i + 1, Snapshot: s.records[i]})
	}
	return out
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("snapshot store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
