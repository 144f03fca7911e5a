package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/courierchat/courier/internal/config"
	"github.com/courierchat/courier/internal/database"
	"github.com/courierchat/courier/internal/directory"
	"github.com/courierchat/courier/internal/registry"
	"github.com/courierchat/courier/internal/router"
	"github.com/courierchat/courier/internal/server"
	"github.com/courierchat/courier/internal/store"
	"github.com/courierchat/courier/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/courier.local.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	instanceID := uuid.NewString()
	logger.Info("starting courier",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", instanceID,
		"config", *configPath,
	)

	// .env is optional; config values reference env vars via ${VAR}.
	godotenv.Load()

	var cfg *config.Config
	var err error
	if _, statErr := os.Stat(*configPath); os.IsNotExist(statErr) {
		logger.Info("no config file, using defaults")
		cfg = config.Default()
	} else {
		cfg, err = config.LoadAndValidate(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("configuration loaded",
		"backend", cfg.Storage.Backend,
		"pending_backend", cfg.Storage.PendingBackend,
		"chunk_size", cfg.Storage.ChunkSize,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	st, dir, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to set up storage", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	pending, err := buildPendingQueue(ctx, cfg, st, logger)
	if err != nil {
		logger.Error("failed to set up pending queue", "error", err)
		os.Exit(1)
	}

	reg := registry.New(logger)
	rt := router.New(reg, st, pending, logger)
	srv := server.New(ctx, *cfg, reg, rt, st, dir, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  0, // websocket sessions manage their own deadlines
		WriteTimeout: 0,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("courier stopped")
}

// buildStores selects the message store and directory backend from
// config.
func buildStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, directory.Directory, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}

		st := store.NewPostgresStore(pool, cfg.Storage.ChunkSize)
		if err := st.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrating message schema: %w", err)
		}

		dir := directory.NewPostgresDirectory(pool)
		if err := dir.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrating directory schema: %w", err)
		}
		return st, dir, nil

	case config.BackendSQLite:
		logger.Info("opening sqlite database", "path", cfg.Storage.SQLitePath)
		st, err := store.NewSQLiteStore(ctx, cfg.Storage.SQLitePath, cfg.Storage.ChunkSize)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite: %w", err)
		}
		dir, err := directory.NewSQLiteDirectory(ctx, st.DB())
		if err != nil {
			return nil, nil, fmt.Errorf("migrating directory schema: %w", err)
		}
		return st, dir, nil

	case config.BackendMemory:
		logger.Warn("using in-memory storage, messages are lost on restart")
		return store.NewMemoryStore(cfg.Storage.ChunkSize), directory.NewMemoryDirectory(), nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildPendingQueue returns the pending queue: the message store
// itself, or a Redis queue when configured.
func buildPendingQueue(ctx context.Context, cfg *config.Config, st store.Store, logger *slog.Logger) (store.PendingQueue, error) {
	switch cfg.Storage.PendingBackend {
	case config.PendingRedis:
		logger.Info("connecting to redis pending queue")
		return store.NewRedisPendingQueue(ctx, cfg.Redis.URL)
	case config.PendingStore:
		return st, nil
	default:
		return nil, fmt.Errorf("unknown pending backend %q", cfg.Storage.PendingBackend)
	}
}
