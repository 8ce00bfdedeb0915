package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/classifieds/internal/config"
	"github.com/JonMunkholm/classifieds/internal/logging"
	"github.com/JonMunkholm/classifieds/internal/restore"
	_ "github.com/JonMunkholm/classifieds/internal/restore/tables" // Register marketplace tables
	"github.com/JonMunkholm/classifieds/internal/schema"
	"github.com/JonMunkholm/classifieds/internal/store/postgres"
	"github.com/JonMunkholm/classifieds/internal/store/sqlite"
	"github.com/JonMunkholm/classifieds/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", "config", cfg.String())

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// backend is the restore target plus the pieces that depend on it.
type backend struct {
	store    restore.Store
	locker   restore.Locker
	recorder restore.RunRecorder
	health   web.HealthCheck
	close    func()
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	catalog := restore.DefaultCatalog()
	order, err := catalog.Order()
	if err != nil {
		return fmt.Errorf("table catalog: %w", err)
	}
	logger.Info("tables registered", "count", len(order), "order", order)

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	dangling, err := restore.ParseDanglingPolicy(cfg.Restore.DanglingRefs)
	if err != nil {
		return err
	}

	var checkpoints restore.CheckpointStore
	if cfg.Restore.CheckpointsEnabled {
		fcs, err := restore.NewFileCheckpointStore(cfg.Restore.CheckpointDir)
		if err != nil {
			return err
		}
		logger.Info("checkpoints enabled", "dir", fcs.Dir)
		checkpoints = fcs
	}

	orch := restore.NewOrchestrator(catalog, be.store, restore.Config{
		BatchSize:   cfg.Restore.BatchSize,
		Dangling:    dangling,
		LockKey:     cfg.Restore.Environment,
		Locker:      be.locker,
		Checkpoints: checkpoints,
		Logger:      logger,
	})
	service := restore.NewService(orch, be.recorder, cfg.Restore.Timeout, logger)

	server, err := web.NewServer(service, cfg, be.health)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		logger.Info("shutting down...", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Runs that outlived their request still hold the lock; let them finish.
	if active := service.ActiveRuns(); active > 0 {
		logger.Info("waiting for restores to complete", "active", active)
		if err := service.WaitForDrain(shutdownCtx); err != nil {
			logger.Warn("restores did not complete in time; re-verify row counts", "error", err)
		} else {
			logger.Info("all restores completed")
		}
	}
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	switch strings.ToLower(cfg.Database.Driver) {
	case config.DriverSQLite:
		return openSQLite(ctx, cfg, logger)
	default:
		return openPostgres(ctx, cfg, logger)
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		logger.Info("connected to database", "driver", "postgres", "name", strings.TrimPrefix(u.Path, "/"))
	}

	recorder := postgres.NewRunRecorder(pool)
	if err := recorder.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &backend{
		store:    postgres.New(pool, postgres.Options{SkipDuplicates: cfg.Restore.SkipDuplicates}),
		locker:   postgres.NewAdvisoryLocker(pool, cfg.Restore.LockWait),
		recorder: recorder,
		health:   pool.Ping,
		close:    pool.Close,
	}, nil
}

func openSQLite(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	store, closeFn, err := sqlite.New(ctx, cfg.Database.SQLiteDSN, sqlite.Options{SkipDuplicates: cfg.Restore.SkipDuplicates})
	if err != nil {
		return nil, err
	}
	if cfg.Database.SQLiteInitSchema {
		stmts, err := schema.SQLiteStatements(schema.Marketplace())
		if err != nil {
			closeFn()
			return nil, err
		}
		if err := store.CreateTables(ctx, stmts); err != nil {
			closeFn()
			return nil, err
		}
	}
	if err := store.EnsureRunsSchema(ctx); err != nil {
		closeFn()
		return nil, err
	}
	logger.Info("connected to database", "driver", "sqlite", "dsn", cfg.Database.SQLiteDSN)

	return &backend{
		store:    store,
		locker:   restore.NewLocalLocker(cfg.Restore.LockWait),
		recorder: store,
		health:   store.DB().PingContext,
		close:    closeFn,
	}, nil
}
