package internal

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/skinwatch/config"
	"github.com/vadiminshakov/skinwatch/internal/cache"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"github.com/vadiminshakov/skinwatch/internal/metrics"
	"github.com/vadiminshakov/skinwatch/internal/notify"
	"github.com/vadiminshakov/skinwatch/internal/scheduler"
	"github.com/vadiminshakov/skinwatch/internal/services/aggregator"
	"github.com/vadiminshakov/skinwatch/internal/services/alerts"
	"github.com/vadiminshakov/skinwatch/internal/services/fx"
	"github.com/vadiminshakov/skinwatch/internal/services/valuation"
	"github.com/vadiminshakov/skinwatch/internal/storage/readings"
	"github.com/vadiminshakov/skinwatch/internal/storage/snapshots"
	"github.com/vadiminshakov/skinwatch/internal/storage/state"
	"github.com/vadiminshakov/skinwatch/internal/web"
	"github.com/vadiminshakov/skinwatch/pkg/clock"
	"go.uber.org/zap"
)

const (
	readingsRetention   = 72 * time.Hour
	broadcastBuffer     = 16
	shutdownGracePeriod = 30 * time.Second
)

// App is one running skinwatch instance: stores, price pipeline, sweeps and the HTTP surface.
type App struct {
	Config config.Config

	state     *state.Store
	snapshots *snapshots.WALStore
	readings  *readings.WALStore
	view      *cache.LRU[domain.AggregatedPrice]
	book      *aggregator.PriceBook
	recorder  *valuation.SnapshotRecorder
	sweep     *valuation.PortfolioSweep
	evaluator *alerts.Evaluator
	scheduler *scheduler.Scheduler
	server    *web.Server
	l         *zap.Logger
}

// NewApp wires every component from conf. Nothing talks to the network until Run.
func NewApp(conf config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := clock.Real{}
	m := metrics.New()

	stateStore, err := state.NewStore(conf.DataDir, clk)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open state store")
	}
	stateStore.SetDefaultThreshold(conf.DefaultThreshold)
	for _, owner := range conf.Subscribers {
		if err := stateStore.Subscribe(owner); err != nil {
			return nil, errors.Wrapf(err, "failed to subscribe %d", owner)
		}
	}

	snapshotStore, err := snapshots.NewWALStore(filepath.Join(conf.DataDir, "snapshots"), logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open snapshot store")
	}
	readingsStore, err := readings.NewWALStore(filepath.Join(conf.DataDir, "readings"), readingsRetention, clk, logger)
	if err != nil {
		snapshotStore.Close()
		return nil, errors.Wrap(err, "failed to open readings store")
	}

	sources, err := newSources(conf, &http.Client{}, m, clk, logger)
	if err != nil {
		snapshotStore.Close()
		readingsStore.Close()
		return nil, errors.Wrap(err, "failed to create price sources")
	}

	agg := aggregator.New(sources.adapters, readingsStore, clk, m, logger)
	view := cache.NewLRU[domain.AggregatedPrice](conf.PriceViewSize, conf.PriceViewTTL)
	book := aggregator.NewPriceBook(agg, view, sources.catalogs, m, logger)
	rates := fx.NewProvider(fx.NewBinanceTicker(nil), conf.FXPair, conf.FXFallbackRate, conf.FXTTL, clk, logger)

	var notifier notify.Notifier = notify.NewLog(logger)
	if conf.TelegramToken != "" {
		tg, err := notify.NewTelegram(conf.TelegramToken, logger)
		if err != nil {
			view.Stop()
			snapshotStore.Close()
			readingsStore.Close()
			return nil, errors.Wrap(err, "failed to create telegram notifier")
		}
		notifier = tg
	}
	broadcaster := notify.NewBroadcaster(broadcastBuffer)
	dispatcher := notify.NewDispatcher(notifier, broadcaster, m, logger)

	valuer := valuation.NewValuer(book, rates, clk, logger)
	app := &App{
		Config:    conf,
		state:     stateStore,
		snapshots: snapshotStore,
		readings:  readingsStore,
		view:      view,
		book:      book,
		recorder:  valuation.NewSnapshotRecorder(valuer, stateStore, snapshotStore, m, logger),
		sweep:     valuation.NewPortfolioSweep(valuer, stateStore, snapshotStore, dispatcher, conf.PortfolioThreshold, logger),
		evaluator: alerts.New(book, rates, stateStore, dispatcher, m, clk, conf.NotificationCap, logger),
		scheduler: scheduler.New(m, logger),
		l:         logger,
	}
	app.server = web.NewServer(conf.ListenAddr, web.Deps{
		Portfolio:   stateStore,
		Valuer:      valuer,
		Snapshots:   snapshotStore,
		Readings:    readingsStore,
		Prices:      book,
		Broadcaster: broadcaster,
		Metrics:     m.Handler(),
		Clock:       clk,
		MoversCount: conf.MoversCount,
	}, logger)

	for _, job := range app.jobs() {
		if err := app.scheduler.Add(job); err != nil {
			app.Close()
			return nil, errors.Wrap(err, "failed to schedule jobs")
		}
	}

	return app, nil
}

func (a *App) jobs() []scheduler.Job {
	s := a.Config.Schedule
	return []scheduler.Job{
		{Name: "catalog-refresh", Spec: s.CatalogRefresh, Run: func(ctx context.Context) error {
			return a.book.RefreshCatalogs(ctx, true)
		}},
		{Name: "portfolio-sweep", Spec: s.PortfolioSweep, Run: func(ctx context.Context) error {
			_, err := a.sweep.Sweep(ctx)
			return err
		}},
		{Name: "item-sweep", Spec: s.ItemSweep, Run: func(ctx context.Context) error {
			a.evaluator.Sweep(ctx, alerts.ScopeWatch)
			return nil
		}},
		{Name: "alert-sweep", Spec: s.AlertSweep, Run: func(ctx context.Context) error {
			a.evaluator.Sweep(ctx, alerts.ScopeTargets)
			return nil
		}},
		{Name: "liveness", Spec: s.Liveness, Run: a.liveness},
		{Name: "snapshot", Spec: s.Snapshot, Run: func(ctx context.Context) error {
			_, err := a.recorder.Record(ctx)
			return err
		}},
	}
}

// liveness keeps the caches warm between sweeps.
func (a *App) liveness(ctx context.Context) error {
	a.l.Info("alive", zap.Int("positions", len(a.state.Positions())))
	err := a.book.RefreshCatalogs(ctx, false)
	a.book.ExpireStale()
	return err
}

// Run starts the scheduler and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start()
	a.l.Info("skinwatch started",
		zap.String("addr", a.Config.ListenAddr),
		zap.Int("sources", len(a.Config.Sources)),
		zap.Int("subscribers", len(a.state.Subscribers())))

	err := a.server.Start(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	a.scheduler.Stop(stopCtx)

	if err != nil {
		return errors.Wrap(err, "http server failed")
	}
	return ctx.Err()
}

// Close releases the history logs and the price view.
func (a *App) Close() {
	a.view.Stop()
	if err := a.snapshots.Close(); err != nil {
		a.l.Warn("failed to close snapshot store", zap.Error(err))
	}
	if err := a.readings.Close(); err != nil {
		a.l.Warn("failed to close readings store", zap.Error(err))
	}
}
