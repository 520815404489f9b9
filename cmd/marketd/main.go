// Command marketd runs the regional commodity market and serves it over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talgya/realm-market/internal/api"
	"github.com/talgya/realm-market/internal/config"
	"github.com/talgya/realm-market/internal/engine"
	"github.com/talgya/realm-market/internal/entropy"
	"github.com/talgya/realm-market/internal/logging"
	"github.com/talgya/realm-market/internal/persistence"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	slog.Info("Realm Market: regional commodity exchange")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Store ─────────────────────────────────────────────────────────
	store, err := persistence.Open(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("store opened", "backend", cfg.Store.Backend, "path", cfg.Store.Path)

	// ── Market ────────────────────────────────────────────────────────
	rng := entropy.New(cfg.Entropy.APIKey, cfg.Entropy.Seed)
	if c, ok := rng.(*entropy.Client); ok && c.Enabled() {
		slog.Info("random.org entropy enabled", "pooled", c.Prefetch(ctx))
	} else {
		slog.Info("using seeded entropy", "seed", cfg.Entropy.Seed)
	}

	market := engine.Open(ctx, store, rng)

	var clock *engine.Clock
	if cfg.Clock.Enabled {
		clock = engine.NewClock(market, cfg.Clock.Interval)
		go clock.Run(ctx)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.Server.AdminKey == "" {
		slog.Warn("MARKET_SERVER_ADMIN_KEY not set, POST endpoints are open to anyone")
	}
	apiServer := &api.Server{
		Market:         market,
		Clock:          clock,
		Port:           cfg.Server.Port,
		AdminKey:       cfg.Server.AdminKey,
		CORSOrigins:    cfg.Server.CORSOrigins,
		PostPerMinute:  cfg.Server.PostPerMinute,
		MaxStreamConns: cfg.Server.MaxStreamConns,
		StoreName:      cfg.Store.Backend,
	}
	apiServer.Start()

	fmt.Printf("\nMarket open: day %d (%s)\n", market.Day(), engine.SimDate(market.Day()))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Server.Port)

	<-ctx.Done()
	slog.Info("received signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}

	// Mutations persist as they happen. A market never saved this run is left
	// alone so an unreadable snapshot is not overwritten.
	if !market.LastSaved().IsZero() {
		if err := store.Save(shutdownCtx, market.Snapshot()); err != nil {
			slog.Error("final save failed", "error", err)
		}
	}

	fmt.Println("Market closed. State saved.")
}
