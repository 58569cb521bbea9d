// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command seatlockd runs the Seat Lock Engine: it wires the Lock Ledger,
// Shadow Store, Event Bus Adapter, Hold Coordinator, Availability Projector
// and Expiry Reaper together and serves the HTTP transport shim.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ticketing/seatlock/internal/api"
	"github.com/ticketing/seatlock/internal/availability"
	"github.com/ticketing/seatlock/internal/bus"
	"github.com/ticketing/seatlock/internal/config"
	"github.com/ticketing/seatlock/internal/hold"
	"github.com/ticketing/seatlock/internal/ledger"
	xglog "github.com/ticketing/seatlock/internal/log"
	"github.com/ticketing/seatlock/internal/reaper"
	"github.com/ticketing/seatlock/internal/shadow"
)

var (
	version = "v0.1.0"
	commit  = "none"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to YAML config overlay (optional)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("seatlockd %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "seatlockd", Version: version})
	logger := xglog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("seatlockd: config load failed")
	}
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: cfg.ServiceName, Version: version})

	if err := run(ctx, loader, cfg); err != nil {
		logger.Fatal().Err(err).Msg("seatlockd: fatal error")
	}
}

func run(ctx context.Context, loader *config.Loader, cfg config.Config) error {
	logger := xglog.WithComponent("main")

	redisClient := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.RedisAddr}})
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("seatlockd: redis ping: %w", err)
	}

	ldg, err := ledger.NewRedisLedger(ctx, redisClient, cfg.ToLedgerConfig())
	if err != nil {
		return fmt.Errorf("seatlockd: ledger init: %w", err)
	}

	store, err := openShadowStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("seatlockd: shadow store init: %w", err)
	}

	eventBus := openBus(cfg, redisClient)
	defer func() { _ = eventBus.Close() }()

	coordinator := hold.New(ldg, store, eventBus, cfg.ToHoldConfig())
	projector := availability.New(store, eventBus)

	instanceID := uuid.NewString()
	exp := reaper.New(store, ldg, eventBus, cfg.ToReaperConfig(instanceID))

	srv := &api.Server{Coordinator: coordinator, Projector: projector, ServiceName: cfg.ServiceName}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	cfgHolder := config.NewConfigHolder(cfg, loader)
	if err := cfgHolder.Watch(ctx); err != nil {
		logger.Warn().Err(err).Msg("seatlockd: config watcher failed to start")
	}
	defer cfgHolder.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				logger.Info().Msg("seatlockd: SIGHUP received, reloading config")
				reloadCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
				err := cfgHolder.Reload(reloadCtx)
				cancel()
				if err != nil {
					logger.Warn().Err(err).Msg("seatlockd: config reload failed")
				}
			}
		}
	})

	g.Go(func() error {
		if err := exp.Run(gctx); err != nil {
			logger.Error().Err(err).Msg("seatlockd: expiry reaper stopped")
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("seatlockd: listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openShadowStore(ctx context.Context, cfg config.Config) (shadow.Store, error) {
	switch cfg.ShadowBackend {
	case config.ShadowBackendPostgres:
		return shadow.OpenPostgresStore(ctx, cfg.PostgresDSN, shadow.DefaultPostgresConfig())
	case config.ShadowBackendSqlite:
		return shadow.OpenSqliteStore(cfg.SqliteDBPath, shadow.DefaultSqliteConfig())
	default:
		return nil, fmt.Errorf("seatlockd: unknown shadow backend %q", cfg.ShadowBackend)
	}
}

// openBus returns a ready Bus. The Redis backend shares the Lock Ledger's
// client/connection pool, so its Close is a no-op; the memory backend owns
// its subscriber goroutines and closes them.
func openBus(cfg config.Config, redisClient redis.UniversalClient) bus.Bus {
	switch cfg.BusBackend {
	case config.BusBackendRedis:
		return bus.NewRedisBus(redisClient)
	default:
		return bus.NewMemoryBus()
	}
}
