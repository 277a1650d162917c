// Package control wires the indexing components together and owns their
// lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
	"golang.org/x/sync/errgroup"

	"github.com/cryptomart/indexer/internal/core/config"
	"github.com/cryptomart/indexer/internal/indexing/backfill"
	"github.com/cryptomart/indexer/internal/indexing/health"
	"github.com/cryptomart/indexer/internal/indexing/processor"
	"github.com/cryptomart/indexer/internal/indexing/scan"
	"github.com/cryptomart/indexer/internal/infra/chain/evm"
	"github.com/cryptomart/indexer/internal/infra/notify"
	"github.com/cryptomart/indexer/internal/infra/rpc"
	"github.com/cryptomart/indexer/internal/infra/storage"
	"github.com/cryptomart/indexer/internal/infra/storage/memory"
	"github.com/cryptomart/indexer/internal/infra/storage/postgres"
)

// Watcher is the application: poller, backfill runner and health server over
// one shared store and chain source.
type Watcher struct {
	cfg *config.AppConfig

	store      storage.Store
	db         *postgres.DB
	notifier   *notify.RedisNotifier
	source     *evm.Source
	poller     *scan.Poller
	backfiller *backfill.Runner
	healthSrv  *health.Server
}

// OpenStore opens the configured store: PostgreSQL when database.url is set
// (running goose migrations), otherwise in-memory. closer is nil for the
// memory store.
func OpenStore(ctx context.Context, cfg *config.AppConfig) (storage.Store, *postgres.DB, error) {
	if cfg.Database.URL == "" {
		slog.Info("using in-memory storage")
		return memory.NewStore(), nil, nil
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init db: %w", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil, nil, err
	}
	if err := goose.Up(db.DB.DB, "migrations"); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate db: %w", err)
	}

	slog.Info("using PostgreSQL storage")
	return postgres.NewStore(db), db, nil
}

// NewWatcher creates a Watcher with all dependencies initialized.
func NewWatcher(ctx context.Context, cfg *config.AppConfig) (*Watcher, error) {
	store, db, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var notifier *notify.RedisNotifier
	if cfg.Redis.URL != "" {
		notifier, err = notify.NewRedisNotifier(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init notifier: %w", err)
		}
	} else {
		slog.Warn("no redis configured, seller notifications disabled")
	}

	client := rpc.NewClient("primary", cfg.Chain.RPCURL, cfg.Chain.RPCTimeout, rpc.RetryConfig{
		MaxAttempts: cfg.Chain.RetryAttempts,
		BaseDelay:   cfg.Chain.RetryBaseDelay,
	})
	source := evm.NewSource(client, cfg.Chain.ContractAddress, cfg.Chain.EventSignature)

	var notifierIface processor.Notifier
	if notifier != nil {
		notifierIface = notifier
	}
	proc := processor.New(source, store, notifierIface)

	poller := scan.NewPoller(scan.Config{
		Interval:      cfg.Chain.ScanInterval,
		Confirmations: cfg.Chain.Confirmations,
		MaxBlockRange: cfg.Chain.MaxBlockRange,
		StartWindow:   cfg.Chain.StartWindow,
	}, source, store.EventLogs(), proc)

	backfiller := backfill.NewRunner(source, store.EventLogs(), proc, cfg.Chain.MaxBlockRange)

	monitor := health.NewMonitor(store.EventLogs(), cfg.Health.StalenessThreshold)
	healthSrv := health.NewServer(monitor, cfg.Server.Port)

	return &Watcher{
		cfg:        cfg,
		store:      store,
		db:         db,
		notifier:   notifier,
		source:     source,
		poller:     poller,
		backfiller: backfiller,
		healthSrv:  healthSrv,
	}, nil
}

// Start runs the poller and the health server until ctx is cancelled or one
// of them fails.
func (w *Watcher) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("poller started",
			"interval", w.cfg.Chain.ScanInterval,
			"confirmations", w.cfg.Chain.Confirmations,
			"contract", w.cfg.Chain.ContractAddress)
		return w.poller.Start(ctx)
	})
	g.Go(func() error {
		slog.Info("health server started", "port", w.cfg.Server.Port)
		return w.healthSrv.Start()
	})

	return g.Wait()
}

// Stop shuts everything down. The in-flight poll cycle is allowed to finish.
func (w *Watcher) Stop(ctx context.Context) error {
	w.poller.Stop()

	if err := w.healthSrv.Stop(ctx); err != nil {
		slog.Error("health server shutdown failed", "error", err)
	}
	if w.notifier != nil {
		_ = w.notifier.Close()
	}
	if w.db != nil {
		return w.db.Close()
	}
	return nil
}

// Backfill runs the backfill pipeline over [fromBlock, toBlock].
func (w *Watcher) Backfill(ctx context.Context, fromBlock, toBlock uint64, dryRun bool) (*backfill.Report, error) {
	return w.backfiller.Run(ctx, fromBlock, toBlock, dryRun)
}
