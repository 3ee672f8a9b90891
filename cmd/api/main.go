package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/venuepass/loyalty/internal/app"
	"github.com/venuepass/loyalty/internal/auth"
	"github.com/venuepass/loyalty/internal/catalog"
	"github.com/venuepass/loyalty/internal/infra"
	"github.com/venuepass/loyalty/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	// Record store
	var recordStore store.Store
	var pool *pgxpool.Pool
	switch cfg.StoreDriver {
	case "postgres":
		if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		pool, err = infra.NewPostgresPool(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		recordStore = store.NewPGStore(pool)
		logger.Info("connected to postgres")
	case "memory":
		recordStore = store.NewMemoryStore()
		logger.Warn("using in-memory store; state is lost on restart")
	}

	// Seed reward catalog if configured
	if cfg.RewardsSeedPath != "" {
		rewards, err := catalog.LoadSeed(cfg.RewardsSeedPath)
		if err != nil {
			return fmt.Errorf("load rewards seed: %w", err)
		}
		if err := catalog.ApplySeed(ctx, catalog.NewStoreCatalog(recordStore), rewards, logger); err != nil {
			return fmt.Errorf("apply rewards seed: %w", err)
		}
	}

	// Partner JWT
	partnerExpiry, err := time.ParseDuration(cfg.JWTPartnerExpiry)
	if err != nil {
		return fmt.Errorf("parse partner JWT expiry: %w", err)
	}
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, partnerExpiry)

	// Router
	r := app.NewRouter(app.RouterDeps{
		Store:            recordStore,
		Pool:             pool,
		JWTMgr:           jwtMgr,
		Logger:           logger,
		PartnerRateLimit: cfg.PartnerRateLimit,
		PartnerRateBurst: cfg.PartnerRateBurst,
	})

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
