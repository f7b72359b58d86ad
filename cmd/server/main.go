package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hodlwarz/arena/internal/arena"
	"github.com/hodlwarz/arena/internal/bridge"
	"github.com/hodlwarz/arena/internal/cache"
	"github.com/hodlwarz/arena/internal/config"
	"github.com/hodlwarz/arena/internal/leaderboard"
	"github.com/hodlwarz/arena/internal/ledger"
	"github.com/hodlwarz/arena/internal/server"
	"github.com/hodlwarz/arena/internal/sim"
	"github.com/hodlwarz/arena/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		db  *pgxpool.Pool
		rdb *redis.Client
		lc  ledger.Client
	)

	if cfg.LocalOnly {
		// Preview mode: no postgres, no redis, in-memory ledger. The
		// simulation runs fully but nothing survives a restart.
		logger.Info("running local-only, state is ephemeral")
		lc = ledger.NewMemLedger()
	} else {
		db, err = store.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect db", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		rdb, err = cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Error("connect redis", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()

		lc = ledger.NewPGLedger(store.NewCombatantStore(db), store.NewAttackLog(db), logger)
	}

	world := arena.New(cfg.ArenaWidth, cfg.ArenaHeight, time.Now().UnixNano())

	b := bridge.New(lc, logger, bridge.Config{
		FlushInterval:  cfg.FlushInterval,
		QueueInterval:  cfg.QueuePacing,
		QueuePacing:    cfg.QueuePacing,
		PollInterval:   cfg.ReconcileEvery,
		CatchUpEvery:   cfg.CatchUpInterval,
		CommitInterval: cfg.CommitInterval,
	})

	engine := sim.NewEngine(world, b, logger, time.Now().UnixNano())

	reconciler := bridge.NewReconciler(lc, world, b.Registry, b.SyncQueue, logger, cfg.CatchUpInterval)
	season := bridge.NewSeasonController(lc, world, b.Aggregator, b.Registry, b.SyncQueue, reconciler, logger, nil)

	metrics := server.NewMetrics()
	metrics.Attach(engine, b, reconciler)

	// Wire commands and hub (circular dependency resolved via SetHub)
	commands := server.NewCommands(engine, reconciler, metrics, logger)
	hub := server.NewHub(cfg.TicketSecret, commands, commands, metrics, logger)
	commands.SetHub(hub)

	srv := server.New(cfg, db, rdb, hub, engine, lc, season, metrics, logger)

	var (
		snaps   *cache.Snapshots
		lb      *leaderboard.Service
		seasons *store.SeasonStore
	)
	if rdb != nil {
		snaps = cache.NewSnapshots(rdb, 5*time.Second)
		lb = leaderboard.NewService(rdb)
	}
	if db != nil {
		seasons = store.NewSeasonStore(db)
	}
	broadcaster := server.NewBroadcaster(engine, hub, snaps, lb, seasons, logger)

	go engine.Run(ctx, cfg.TickRate)
	go b.Run(ctx)
	go reconciler.Run(ctx, cfg.ReconcileEvery)
	go broadcaster.Run(ctx, cfg.SnapshotEvery)

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.HTTPAddr, "tick", cfg.TickRate.String())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}

	// Drain queued ledger work and checkpoint before exit.
	b.Shutdown(shutCtx)
}
