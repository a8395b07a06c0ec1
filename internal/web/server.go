package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"github.com/vadiminshakov/skinwatch/internal/notify"
	"github.com/vadiminshakov/skinwatch/internal/services/detector"
	"github.com/vadiminshakov/skinwatch/internal/storage/snapshots"
	"github.com/vadiminshakov/skinwatch/internal/storage/state"
	"github.com/vadiminshakov/skinwatch/pkg/clock"
	"go.uber.org/zap"
)

const (
	snapshotPollInterval = 2 * time.Second
	heartbeatInterval    = 30 * time.Second
	shiftLookback        = 48 * time.Hour
	maxBodyBytes         = 1 << 16
)

type portfolioStore interface {
	Positions() []domain.Position
	AddPosition(p domain.Position) (domain.Position, error)
	UpdateQuantity(id string, quantity int64) error
	UpdateBuyPrice(id string, price, secondary decimal.Decimal) error
	DeletePosition(id string) error
	AddAlert(a domain.TargetAlert) (domain.TargetAlert, error)
	AlertsByOwner(owner int64) []domain.TargetAlert
	AddWatch(w domain.WatchlistEntry) (domain.WatchlistEntry, error)
	WatchlistByOwner(owner int64) []domain.WatchlistEntry
	RemoveWatch(owner int64, item string) error
	UpdateSettings(owner int64, fn func(settings *domain.NotificationSettings) error) (domain.NotificationSettings, error)
	Subscribe(owner int64) error
	Unsubscribe(owner int64) error
}

type valuer interface {
	Value(ctx context.Context, positions []domain.Position) domain.Valuation
}

type snapshotStore interface {
	detector.SnapshotReader
	SnapshotsAfter(index uint64) []domain.SnapshotRecord
}

type readingsReader interface {
	Since(t time.Time) []domain.SourcePriceReading
}

type priceCache interface {
	Invalidate()
}

// Deps are the collaborators the server reads from.
type Deps struct {
	Portfolio   portfolioStore
	Valuer      valuer
	Snapshots   snapshotStore
	Readings    readingsReader
	Prices      priceCache
	Broadcaster *notify.Broadcaster
	Metrics     http.Handler
	Clock       clock.Clock
	MoversCount int
}

// Server exposes the portfolio API, SSE streams and metrics over HTTP.
type Server struct {
	Addr string
	deps Deps
	l    *zap.Logger
}

// NewServer creates a new web server instance.
func NewServer(addr string, deps Deps, l *zap.Logger) *Server {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.MoversCount <= 0 {
		deps.MoversCount = 3
	}
	return &Server{Addr: addr, deps: deps, l: l}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/portfolio", s.handlePortfolio)
	mux.HandleFunc("GET /api/movers", s.handleMovers)
	mux.HandleFunc("GET /api/trend", s.handleTrend)
	mux.HandleFunc("GET /api/shifts", s.handleShifts)
	mux.HandleFunc("POST /api/positions", s.handleAddPosition)
	mux.HandleFunc("PATCH /api/positions/{id}", s.handleUpdatePosition)
	mux.HandleFunc("DELETE /api/positions/{id}", s.handleDeletePosition)
	mux.HandleFunc("POST /api/alerts", s.handleAddAlert)
	mux.HandleFunc("GET /api/owners/{owner}/alerts", s.handleOwnerAlerts)
	mux.HandleFunc("POST /api/watchlist", s.handleAddWatch)
	mux.HandleFunc("GET /api/owners/{owner}/watchlist", s.handleOwnerWatchlist)
	mux.HandleFunc("DELETE /api/owners/{owner}/watchlist/{item}", s.handleRemoveWatch)
	mux.HandleFunc("PUT /api/settings/{owner}", s.handleSaveSettings)
	mux.HandleFunc("PUT /api/subscribers/{owner}", s.handleSubscribe)
	mux.HandleFunc("DELETE /api/subscribers/{owner}", s.handleUnsubscribe)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /snapshots/stream", s.handleSnapshotStream)
	mux.HandleFunc("GET /notifications/stream", s.handleNotificationStream)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics)
	}
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("http server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "skinwatch is running")
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, dashboardHTML)
}

type portfolioResponse struct {
	TotalValue    decimal.Decimal        `json:"totalValue"`
	TotalItems    int64                  `json:"totalItems"`
	TotalProfit   decimal.Decimal        `json:"totalProfit"`
	ProfitPercent decimal.Decimal        `json:"profitPercent"`
	Invested      decimal.Decimal        `json:"invested"`
	Rate          decimal.Decimal        `json:"rate"`
	Positions     []domain.ValuationLine `json:"positions"`
	At            time.Time              `json:"at"`
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	val := s.deps.Valuer.Value(r.Context(), s.deps.Portfolio.Positions())
	s.writeJSON(w, http.StatusOK, portfolioResponse{
		TotalValue:    val.Total.Round(2),
		TotalItems:    val.Items,
		TotalProfit:   val.Profit.Round(2),
		ProfitPercent: val.ProfitPercent.Round(2),
		Invested:      val.Invested.Round(2),
		Rate:          val.Rate,
		Positions:     val.Lines,
		At:            val.At,
	})
}

func (s *Server) handleMovers(w http.ResponseWriter, r *http.Request) {
	k := s.deps.MoversCount
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		k = parsed
	}

	gainers, losers := detector.Movers(s.deps.Snapshots, k)
	s.writeJSON(w, http.StatusOK, map[string][]domain.Mover{
		"gainers": nonNil(gainers),
		"losers":  nonNil(losers),
	})
}

func (s *Server) handleTrend(w http.ResponseWriter, _ *http.Request) {
	trend, err := detector.PortfolioTrend(s.deps.Snapshots, s.deps.Clock.Now())
	if err != nil {
		if errors.Is(err, snapshots.ErrInsufficientHistory) {
			s.writeError(w, http.StatusNotFound, "not enough portfolio history")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, trend)
}

func (s *Server) handleShifts(w http.ResponseWriter, _ *http.Request) {
	now := s.deps.Clock.Now()
	crashes, pumps := detector.MarketShifts(s.deps.Readings.Since(now.Add(-shiftLookback)), now)
	s.writeJSON(w, http.StatusOK, map[string][]domain.MarketShift{
		"crashes": nonNil(crashes),
		"pumps":   nonNil(pumps),
	})
}

type positionRequest struct {
	Name              string      `json:"name"`
	Quantity          json.Number `json:"quantity"`
	BuyPrice          json.Number `json:"buy_price"`
	BuyPriceSecondary json.Number `json:"buy_price_secondary"`
}

func (s *Server) handleAddPosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if !s.decode(w, r, &req) {
		return
	}

	name, err := domain.ParseItemName(req.Name)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	qty, err := domain.ParseQuantity(req.Quantity.String())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	price, err := domain.ParsePrice(req.BuyPrice.String())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	var secondary decimal.Decimal
	if req.BuyPriceSecondary != "" {
		if secondary, err = domain.ParsePrice(req.BuyPriceSecondary.String()); err != nil {
			s.writeStoreError(w, err)
			return
		}
	}

	p, err := s.deps.Portfolio.AddPosition(domain.Position{
		Name:              name,
		Quantity:          qty,
		BuyPrice:          price,
		BuyPriceSecondary: secondary,
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

type positionUpdateRequest struct {
	Quantity          json.Number `json:"quantity"`
	BuyPrice          json.Number `json:"buy_price"`
	BuyPriceSecondary json.Number `json:"buy_price_secondary"`
}

func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req positionUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Quantity == "" && req.BuyPrice == "" {
		s.writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	if req.Quantity != "" {
		qty, err := domain.ParseQuantity(req.Quantity.String())
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		if err := s.deps.Portfolio.UpdateQuantity(id, qty); err != nil {
			s.writeStoreError(w, err)
			return
		}
	}
	if req.BuyPrice != "" {
		price, err := domain.ParsePrice(req.BuyPrice.String())
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		var secondary decimal.Decimal
		if req.BuyPriceSecondary != "" {
			if secondary, err = domain.ParsePrice(req.BuyPriceSecondary.String()); err != nil {
				s.writeStoreError(w, err)
				return
			}
		}
		if err := s.deps.Portfolio.UpdateBuyPrice(id, price, secondary); err != nil {
			s.writeStoreError(w, err)
			return
		}
	}

	for _, p := range s.deps.Portfolio.Positions() {
		if p.ID == id {
			s.writeJSON(w, http.StatusOK, p)
			return
		}
	}
	s.writeError(w, http.StatusNotFound, "position "+id+" not found")
}

func (s *Server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Portfolio.DeletePosition(r.PathValue("id")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type alertRequest struct {
	Owner     int64       `json:"owner"`
	Item      string      `json:"item"`
	Target    json.Number `json:"target"`
	Direction string      `json:"direction"`
}

func (s *Server) handleAddAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if !s.decode(w, r, &req) {
		return
	}

	item, err := domain.ParseItemName(req.Item)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	target, err := domain.ParsePrice(req.Target.String())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	direction, err := domain.ParseDirection(req.Direction)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	a, err := s.deps.Portfolio.AddAlert(domain.TargetAlert{
		Owner:     req.Owner,
		Item:      item,
		Target:    target,
		Direction: direction,
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleOwnerAlerts(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(s.deps.Portfolio.AlertsByOwner(owner)))
}

type watchRequest struct {
	Owner int64  `json:"owner"`
	Item  string `json:"item"`
}

func (s *Server) handleAddWatch(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if !s.decode(w, r, &req) {
		return
	}

	item, err := domain.ParseItemName(req.Item)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	entry, err := s.deps.Portfolio.AddWatch(domain.WatchlistEntry{Owner: req.Owner, Item: item})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleOwnerWatchlist(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(s.deps.Portfolio.WatchlistByOwner(owner)))
}

func (s *Server) handleRemoveWatch(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	item, err := domain.ParseItemName(r.PathValue("item"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.deps.Portfolio.RemoveWatch(owner, item); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type settingsRequest struct {
	Threshold      json.Number `json:"threshold"`
	CheckItems     *bool       `json:"check_items"`
	CheckPortfolio *bool       `json:"check_portfolio"`
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}

	var req settingsRequest
	if !s.decode(w, r, &req) {
		return
	}

	var threshold decimal.NullDecimal
	if req.Threshold != "" {
		parsed, err := domain.ParseThreshold(req.Threshold.String())
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		threshold = decimal.NewNullDecimal(parsed)
	}

	// Only the fields present in the request are touched; LastSeen belongs to the item sweep.
	settings, err := s.deps.Portfolio.UpdateSettings(owner, func(st *domain.NotificationSettings) error {
		if threshold.Valid {
			st.ThresholdPercent = threshold.Decimal
		}
		if req.CheckItems != nil {
			st.CheckItems = *req.CheckItems
		}
		if req.CheckPortfolio != nil {
			st.CheckPortfolio = *req.CheckPortfolio
		}
		return nil
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	if err := s.deps.Portfolio.Subscribe(owner); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	if err := s.deps.Portfolio.Unsubscribe(owner); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.deps.Prices.Invalidate()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSnapshotStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Snapshots == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "snapshot store not available")
		return
	}
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(snapshotPollInterval)
	defer pollTicker.Stop()

	lastIndex := uint64(0)
	sendSnapshots := func() {
		for _, record := range s.deps.Snapshots.SnapshotsAfter(lastIndex) {
			if err := writeEvent(w, "snapshot", record.Snapshot); err != nil {
				s.l.Warn("snapshot stream write failed", zap.Error(err))
				return
			}
			lastIndex = record.Index
		}
		flusher.Flush()
	}

	sendSnapshots()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			sendSnapshots()
		}
	}
}

func (s *Server) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Broadcaster == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "notifications not available")
		return
	}
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	sub := s.deps.Broadcaster.Subscribe()
	defer s.deps.Broadcaster.Unsubscribe(sub)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case batch, ok := <-sub:
			if !ok {
				return
			}
			if err := writeEvent(w, "notification", batch); err != nil {
				s.l.Warn("notification stream write failed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	return flusher, true
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

func (s *Server) owner(w http.ResponseWriter, r *http.Request) (int64, bool) {
	owner, err := strconv.ParseInt(r.PathValue("owner"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "owner must be an integer")
		return 0, false
	}
	return owner, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, state.ErrExists):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, state.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.l.Error("request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.l.Warn("failed to write response", zap.Error(err))
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
