package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baharkarakas/offline-sync/internal/api"
	"github.com/baharkarakas/offline-sync/internal/auth"
	"github.com/baharkarakas/offline-sync/internal/config"
	"github.com/baharkarakas/offline-sync/internal/db"
	"github.com/baharkarakas/offline-sync/internal/events"
	"github.com/baharkarakas/offline-sync/internal/logger"
	"github.com/baharkarakas/offline-sync/internal/metrics"
	"github.com/baharkarakas/offline-sync/internal/repository/memory"
	"github.com/baharkarakas/offline-sync/internal/repository/postgres"
	"github.com/baharkarakas/offline-sync/internal/services"
	"github.com/baharkarakas/offline-sync/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("store", "store", cfg.Store, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	var pub events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		js, err := events.NewPublisher(ctx, cfg.NATSURL, log)
		if err != nil {
			// batches still sync without the event stream
			log.Warn("nats unavailable, batch events disabled", "url", cfg.NATSURL, "err", err)
		} else {
			pub = js
		}
	}
	defer pub.Close()

	metrics.Init()
	wp := worker.NewPool(cfg.Workers, 1024, metrics.WorkerQueueDepth, log)
	defer wp.Stop()

	tokens := auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, cfg.JWTIssuer)
	syncSvc := services.NewSyncService(services.SyncDeps{
		Batches:     repos.Batches,
		Outcomes:    repos.Outcomes,
		Claims:      repos.Claims,
		Ledger:      repos.Ledger,
		AuditLogs:   repos.AuditLogs,
		Signer:      auth.NewSigner(auth.NewKeyRing([]byte(cfg.SigningSecret))),
		Publisher:   pub,
		Pool:        wp,
		Logger:      log,
		MaxBatchAge: cfg.MaxBatchAge,
		StallAfter:  cfg.StallAfter,
	})
	walletSvc := services.NewWalletService(repos.Ledger, repos.Wallets)

	r := api.NewRouter(api.RouterDeps{
		Cfg:       cfg,
		Log:       log,
		Tokens:    tokens,
		SyncSvc:   syncSvc,
		WalletSvc: walletSvc,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting",
			"port", cfg.HTTPPort,
			"env", cfg.Env,
			"store", cfg.Store,
			"max_batch_age", cfg.MaxBatchAge,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// openStore returns postgres repositories unless APP_STORE=memory.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (postgres.Repositories, func(), error) {
	if cfg.Store == config.StoreMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return postgres.Repositories(memory.NewRepositories()), func() {}, nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return postgres.Repositories{}, nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.Migrate {
		if err := db.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return postgres.Repositories{}, nil, fmt.Errorf("migrations: %w", err)
		}
	}
	return postgres.NewRepositories(pool), pool.Close, nil
}
