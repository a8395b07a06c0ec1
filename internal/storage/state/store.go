package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"github.com/vadiminshakov/skinwatch/pkg/clock"
)

const (
	defaultStateDir = "./wal/state"
	stateFileName   = "state.json"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when adding a record that is already present.
	ErrExists = errors.New("already exists")
)

// State is everything the engine keeps between restarts apart from logs.
type State struct {
	Positions      []domain.Position                     `json:"positions"`
	Alerts         []domain.TargetAlert                  `json:"alerts"`
	Watchlist      []domain.WatchlistEntry               `json:"watchlist"`
	Settings       map[int64]domain.NotificationSettings `json:"settings"`
	Subscribers    []int64                               `json:"subscribers"`
	LastKnownValue decimal.NullDecimal                   `json:"last_known_value"`
}

// Store keeps State in memory and rewrites it atomically on every change.
// A failed write leaves the previous state in place.
type Store struct {
	mu    sync.RWMutex
	path  string
	state State
	clock clock.Clock

	defaultThreshold decimal.Decimal
}

// NewStore loads state from dir, starting empty when nothing was saved yet.
func NewStore(dir string, clk clock.Clock) (*Store, error) {
	if dir == "" {
		dir = defaultStateDir
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create state dir")
	}

	s := &Store{path: filepath.Join(dir, stateFileName), clock: clk}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.state = emptyState()
			return nil
		}
		return errors.Wrap(err, "read state")
	}

	st := emptyState()
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &st); err != nil {
			return errors.Wrap(err, "decode state")
		}
	}
	if st.Settings == nil {
		st.Settings = map[int64]domain.NotificationSettings{}
	}
	s.state = st
	return nil
}

func emptyState() State {
	return State{Settings: map[int64]domain.NotificationSettings{}}
}

// update applies fn to a copy of the state and persists it. The copy replaces the live state
// only after the write succeeded.
func (s *Store) update(fn func(st *State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := cloneState(s.state)
	if err != nil {
		return err
	}
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *Store) persist(st State) error {
	payload, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode state")
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "create state temp file")
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return errors.Wrap(err, "write state temp file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "sync state temp file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close state temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist state")
	}
	return nil
}

func cloneState(st State) (State, error) {
	payload, err := json.Marshal(st)
	if err != nil {
		return State{}, errors.Wrap(err, "copy state")
	}
	out := emptyState()
	if err := json.Unmarshal(payload, &out); err != nil {
		return State{}, errors.Wrap(err, "copy state")
	}
	if out.Settings == nil {
		out.Settings = map[int64]domain.NotificationSettings{}
	}
	return out, nil
}

// Positions

// AddPosition stores p, assigning an ID and timestamp when missing.
func (s *Store) AddPosition(p domain.Position) (domain.Position, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.AddedAt.IsZero() {
		p.AddedAt = s.clock.Now()
	}
	err := s.update(func(st *State) error {
		for _, existing := range st.Positions {
			if existing.ID == p.ID {
				return errors.Wrapf(ErrExists, "position %s", p.ID)
			}
		}
		st.Positions = append(st.Positions, p)
		return nil
	})
	return p, err
}

// Positions returns the portfolio in insertion order.
func (s *Store) Positions() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Position(nil), s.state.Positions...)
}

// UpdateQuantity sets the quantity of position id.
func (s *Store) UpdateQuantity(id string, quantity int64) error {
	return s.updatePosition(id, func(p *domain.Position) { p.Quantity = quantity })
}

// UpdateBuyPrice sets the acquisition prices of position id.
func (s *Store) UpdateBuyPrice(id string, price, secondary decimal.Decimal) error {
	return s.updatePosition(id, func(p *domain.Position) {
		p.BuyPrice = price
		p.BuyPriceSecondary = secondary
	})
}

func (s *Store) updatePosition(id string, fn func(p *domain.Position)) error {
	return s.update(func(st *State) error {
		for i := range st.Positions {
			if st.Positions[i].ID == id {
				fn(&st.Positions[i])
				return nil
			}
		}
		return errors.Wrapf(ErrNotFound, "position %s", id)
	})
}

// DeletePosition removes position id.
func (s *Store) DeletePosition(id string) error {
	return s.update(func(st *State) error {
		for i, p := range st.Positions {
			if p.ID == id {
				st.Positions = append(st.Positions[:i], st.Positions[i+1:]...)
				return nil
			}
		}
		return errors.Wrapf(ErrNotFound, "position %s", id)
	})
}

// Target alerts

// AddAlert stores a, assigning an ID when missing.
func (s *Store) AddAlert(a domain.TargetAlert) (domain.TargetAlert, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock.Now()
	}
	err := s.update(func(st *State) error {
		st.Alerts = append(st.Alerts, a)
		return nil
	})
	return a, err
}

// Alerts returns every target alert.
func (s *Store) Alerts() []domain.TargetAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.TargetAlert(nil), s.state.Alerts...)
}

// AlertsByOwner returns the target alerts of owner.
func (s *Store) AlertsByOwner(owner int64) []domain.TargetAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.TargetAlert
	for _, a := range s.state.Alerts {
		if a.Owner == owner {
			out = append(out, a)
		}
	}
	return out
}

// DeleteAlert removes alert id.
func (s *Store) DeleteAlert(id string) error {
	return s.update(func(st *State) error {
		for i, a := range st.Alerts {
			if a.ID == id {
				st.Alerts = append(st.Alerts[:i], st.Alerts[i+1:]...)
				return nil
			}
		}
		return errors.Wrapf(ErrNotFound, "alert %s", id)
	})
}

// Watchlist

// AddWatch stores w. One entry per owner and item.
func (s *Store) AddWatch(w domain.WatchlistEntry) (domain.WatchlistEntry, error) {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.clock.Now()
	}
	err := s.update(func(st *State) error {
		for _, e := range st.Watchlist {
			if e.Owner == w.Owner && domain.SameItem(e.Item, w.Item) {
				return errors.Wrapf(ErrExists, "watch %d/%s", w.Owner, w.Item)
			}
		}
		st.Watchlist = append(st.Watchlist, w)
		return nil
	})
	return w, err
}

// Watchlist returns every watchlist entry.
func (s *Store) Watchlist() []domain.WatchlistEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.WatchlistEntry(nil), s.state.Watchlist...)
}

// WatchlistByOwner returns the entries of owner.
func (s *Store) WatchlistByOwner(owner int64) []domain.WatchlistEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.WatchlistEntry
	for _, e := range s.state.Watchlist {
		if e.Owner == owner {
			out = append(out, e)
		}
	}
	return out
}

// UpdateWatchPrice overwrites the last recorded price of owner's entry for item.
func (s *Store) UpdateWatchPrice(owner int64, item string, price decimal.Decimal) error {
	return s.update(func(st *State) error {
		for i := range st.Watchlist {
			if st.Watchlist[i].Owner == owner && domain.SameItem(st.Watchlist[i].Item, item) {
				st.Watchlist[i].LastPrice = decimal.NewNullDecimal(price)
				return nil
			}
		}
		return errors.Wrapf(ErrNotFound, "watch %d/%s", owner, item)
	})
}

// RemoveWatch deletes owner's entry for item.
func (s *Store) RemoveWatch(owner int64, item string) error {
	return s.update(func(st *State) error {
		for i, e := range st.Watchlist {
			if e.Owner == owner && domain.SameItem(e.Item, item) {
				st.Watchlist = append(st.Watchlist[:i], st.Watchlist[i+1:]...)
				return nil
			}
		}
		return errors.Wrapf(ErrNotFound, "watch %d/%s", owner, item)
	})
}

// Settings

// SetDefaultThreshold overrides the threshold new owners start with.
func (s *Store) SetDefaultThreshold(threshold decimal.Decimal) {
	s.mu.Lock()
	s.defaultThreshold = threshold
	s.mu.Unlock()
}

// Settings returns owner's settings, creating the defaults on first read.
func (s *Store) Settings(owner int64) (domain.NotificationSettings, error) {
	s.mu.RLock()
	st, ok := s.state.Settings[owner]
	threshold := s.defaultThreshold
	s.mu.RUnlock()
	if ok {
		return copySettings(st), nil
	}

	def := defaultSettings(owner, threshold)
	err := s.update(func(state *State) error {
		if existing, ok := state.Settings[owner]; ok {
			def = existing
			return nil
		}
		state.Settings[owner] = def
		return nil
	})
	return copySettings(def), err
}

func defaultSettings(owner int64, threshold decimal.Decimal) domain.NotificationSettings {
	def := domain.DefaultSettings(owner)
	if threshold.IsPositive() {
		def.ThresholdPercent = threshold
	}
	return def
}

// UpdateSettings applies fn to owner's current settings (the defaults when none are stored)
// in a single write. Fields fn leaves alone keep their stored values.
func (s *Store) UpdateSettings(owner int64, fn func(settings *domain.NotificationSettings) error) (domain.NotificationSettings, error) {
	var out domain.NotificationSettings
	err := s.update(func(st *State) error {
		current, ok := st.Settings[owner]
		if !ok {
			current = defaultSettings(owner, s.defaultThreshold)
		}
		current = copySettings(current)
		if err := fn(&current); err != nil {
			return err
		}
		current.Owner = owner
		if current.LastSeen == nil {
			current.LastSeen = map[string]decimal.Decimal{}
		}
		st.Settings[owner] = current
		out = copySettings(current)
		return nil
	})
	return out, err
}

// UpdateLastSeen replaces only the prices owner saw on the last item sweep.
func (s *Store) UpdateLastSeen(owner int64, seen map[string]decimal.Decimal) error {
	_, err := s.UpdateSettings(owner, func(settings *domain.NotificationSettings) error {
		settings.LastSeen = make(map[string]decimal.Decimal, len(seen))
		for k, v := range seen {
			settings.LastSeen[k] = v
		}
		return nil
	})
	return err
}

// SaveSettings replaces the settings of settings.Owner.
func (s *Store) SaveSettings(settings domain.NotificationSettings) error {
	if settings.LastSeen == nil {
		settings.LastSeen = map[string]decimal.Decimal{}
	}
	return s.update(func(st *State) error {
		st.Settings[settings.Owner] = copySettings(settings)
		return nil
	})
}

// SettingsOwners returns owners with stored settings in ascending order.
func (s *Store) SettingsOwners() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]int64, 0, len(s.state.Settings))
	for owner := range s.state.Settings {
		out = append(out, owner)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func copySettings(in domain.NotificationSettings) domain.NotificationSettings {
	out := in
	out.LastSeen = make(map[string]decimal.Decimal, len(in.LastSeen))
	for k, v := range in.LastSeen {
		out.LastSeen[k] = v
	}
	return out
}

// Subscribers

// Subscribe registers owner for portfolio-total notices. Subscribing twice is a no-op.
func (s *Store) Subscribe(owner int64) error {
	return s.update(func(st *State) error {
		for _, o := range st.Subscribers {
			if o == owner {
				return nil
			}
		}
		st.Subscribers = append(st.Subscribers, owner)
		return nil
	})
}

// Unsubscribe removes owner from the subscriber list.
func (s *Store) Unsubscribe(owner int64) error {
	return s.update(func(st *State) error {
		for i, o := range st.Subscribers {
			if o == owner {
				st.Subscribers = append(st.Subscribers[:i], st.Subscribers[i+1:]...)
				return nil
			}
		}
		return errors.Wrapf(ErrNotFound, "subscriber %d", owner)
	})
}

// Subscribers returns subscribed owners.
func (s *Store) Subscribers() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.state.Subscribers...)
}

// Last known portfolio value

// LastKnownValue returns the portfolio total recorded by the previous portfolio sweep.
func (s *Store) LastKnownValue() decimal.NullDecimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LastKnownValue
}

// SetLastKnownValue overwrites the recorded portfolio total.
func (s *Store) SetLastKnownValue(v decimal.Decimal) error {
	return s.update(func(st *State) error {
		st.LastKnownValue = decimal.NewNullDecimal(v)
		return nil
	})
}
