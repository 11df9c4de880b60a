// Command scraper runs the venue-facing ingest process (§2): leaderboard polling,
// per-trader position streaming, candle streaming, and the persistent document store,
// exposed to the Signal System over a snapshot HTTP endpoint and an event bus.
// Grounded on main.go's flag/env config loading, sequential startup, and signal-driven
// graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"hlpulse/internal/candle"
	"hlpulse/internal/composition"
	"hlpulse/internal/config"
	"hlpulse/internal/eventbus"
	"hlpulse/internal/health"
	"hlpulse/internal/httpapi"
	"hlpulse/internal/logging"
	"hlpulse/internal/metrics"
	"hlpulse/internal/position"
	"hlpulse/internal/store"
	"hlpulse/internal/trader"
	"hlpulse/internal/venue"
)

func main() {
	configPath := flag.String("config", "", "path to an optional config file")
	dbPath := flag.String("db", "scraper.db", "path to the embedded document store file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	metrics.Init("scraper")

	db, err := store.Open(*dbPath, cfg.Retention)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open document store")
	}

	bus, err := newBus(cfg.RedisURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build event bus")
	}

	reg := health.NewRegistry()
	root := composition.NewRoot(log)

	restClient := venue.NewRESTClient(log)
	trackedSet := trader.NewTrackedSet()

	posManager := position.NewManager(bus.Publish, positionPersister(db), log)
	candleManager := candle.NewManager(bus.Publish, candlePersister(db), log)

	poller := trader.NewPoller(
		restClient,
		trackedSet,
		posManager, // implements trader.DeltaSink
		db,
		cfg.Scoring,
		time.Duration(cfg.LeaderboardRefreshSeconds)*time.Second,
		log,
	)

	enricher := position.NewEnricher(trackedSet, bus.Publish, log)
	if err := bus.Subscribe(eventbus.TopicPositionsRaw, enricher.HandleRaw); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe positions.raw enricher")
	}
	if err := bus.Subscribe(eventbus.TopicSignalsOut, signalsOutHandler(db, log)); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe signals.out persister")
	}

	snapshotProvider := &registrySnapshotProvider{store: db}
	httpServer := httpapi.NewServer(cfg.HTTP, reg, snapshotProvider, log)

	root.Go("leaderboard.poller", func(ctx context.Context) { poller.Run(ctx) })
	root.Go("position.ws", func(ctx context.Context) { posManager.Run(ctx) })
	root.Go("candle.ws", func(ctx context.Context) {
		candleManager.Subscribe(cfg.HyperliquidSymbol, venue.SupportedIntervals)
		candleManager.Run(ctx)
	})
	root.Go("http.server", func(ctx context.Context) {
		if err := httpServer.Run(); err != nil {
			log.Error().Err(err).Msg("http server exited")
		}
	})
	root.Go("store.reaper", func(ctx context.Context) { runReaper(ctx, db, log) })
	root.Go("health.reporter", func(ctx context.Context) {
		runHealthReporter(ctx, reg, posManager, trackedSet, time.Duration(cfg.HealthCheckSeconds)*time.Second)
	})

	root.OnShutdown(func(ctx context.Context) error { return httpServer.Shutdown(ctx) })
	root.OnShutdown(func(ctx context.Context) error { posManager.Stop(); return nil })
	root.OnShutdown(func(ctx context.Context) error { candleManager.Stop(); return nil })
	root.OnShutdown(func(ctx context.Context) error { return bus.Close() })
	root.OnShutdown(func(ctx context.Context) error { return db.Close() })

	reg.Report("scraper", health.StatusHealthy, nil)
	log.Info().Str("symbol", cfg.HyperliquidSymbol).Msg("scraper started")

	root.Wait()
	log.Info().Msg("scraper stopped")
}
