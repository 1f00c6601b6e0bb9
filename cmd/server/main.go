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

	"outletpos/backend/internal/cache"
	"outletpos/backend/internal/config"
	"outletpos/backend/internal/httpapi"
	"outletpos/backend/internal/service"
	"outletpos/backend/internal/store"
	"outletpos/backend/internal/store/memory"
	pgstore "outletpos/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Error("invalid security configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn("close error", "error", err)
			}
		}
	}()

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing in-memory fallback: %w", err)
		}
		closers = append(closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		repo = pg
		logger.Info("repository ready", "backend", "postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository ready", "backend", "memory")
	}

	reports := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop report cache", "error", err)
			_ = redisCache.Close()
		} else {
			reports = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("report cache ready", "backend", "redis")
		}
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	svc := service.New(repo, auth, reports, service.Options{
		Location:              cfg.Location,
		LargeDiscrepancyCents: cfg.LargeDiscrepancyCents,
		ReportCacheTTL:        cfg.ReportCacheTTL,
		Logger:                logger,
	})
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:      cfg.AllowedOrigin,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		Logger:             logger,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("outlet backend listening", "addr", cfg.Address(), "timezone", cfg.Location.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AllowedOrigin == "*" {
		return fmt.Errorf("ALLOWED_ORIGIN must name an origin, not a wildcard")
	}
	return nil
}
