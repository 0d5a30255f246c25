package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ayo6706/bank-ledger/internal/api"
	"github.com/ayo6706/bank-ledger/internal/config"
	"github.com/ayo6706/bank-ledger/internal/db"
	"github.com/ayo6706/bank-ledger/internal/idempotency"
	"github.com/ayo6706/bank-ledger/internal/ledger"
	"github.com/ayo6706/bank-ledger/internal/ledger/memstore"
	"github.com/ayo6706/bank-ledger/internal/ledger/pgstore"
	"github.com/ayo6706/bank-ledger/internal/observability"
	"github.com/ayo6706/bank-ledger/internal/service"
	"github.com/ayo6706/bank-ledger/internal/worker"
)

// Run bootstraps the ledger store, HTTP server and reconciliation worker,
// blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store ledger.Store
	var saveSnapshot func()
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		store = pgstore.New(pool)
		logger.Info("ledger store ready", zap.String("driver", cfg.StoreDriver))
	case config.DriverMemory:
		mem, err := memstore.Load(cfg.SnapshotPath)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		store = mem
		saveSnapshot = func() {
			if err := mem.Save(cfg.SnapshotPath); err != nil {
				logger.Error("snapshot save failed", zap.Error(err))
				return
			}
			logger.Info("snapshot saved", zap.String("path", cfg.SnapshotPath))
		}
		logger.Info("ledger store ready", zap.String("driver", cfg.StoreDriver), zap.String("snapshot", cfg.SnapshotPath))
	default:
		return fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	// Idempotency needs redis. Without REDIS_URL the money routes still
	// work, they just lose the replay guarantee.
	var rdb redis.Cmdable
	var idemStore *idempotency.Store
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		rdb = redisClient
		idemStore = idempotency.NewStore(redisClient, cfg.IdempotencyTTL)
		logger.Info("idempotency store ready", zap.Duration("ttl", cfg.IdempotencyTTL))
	}

	audit := service.NewRecorder(store, cfg.AlertThreshold)
	accounts := service.NewAccountService(store, audit)
	transfers := service.NewTransferService(store, audit)
	lifecycle := service.NewLifecycleService(store, audit)
	query := service.NewQueryService(store)

	reconWorker := worker.NewReconciliationWorker(service.NewReconciliationService(store)).
		WithInterval(cfg.ReconciliationInterval)
	stopWorker := reconWorker.Run(ctx)
	logger.Info("reconciliation worker started", zap.Duration("interval", cfg.ReconciliationInterval))

	router := api.NewRouter(cfg, logger, store, idemStore, rdb, accounts, transfers, lifecycle, query)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping reconciliation worker")
	stopWorker()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	// Snapshot after the server drained so no unit of work is mid-flight.
	if saveSnapshot != nil {
		saveSnapshot()
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
