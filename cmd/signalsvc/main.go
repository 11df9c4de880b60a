// Command signalsvc runs the Signal System process (§2): it bootstraps from the
// Scraper's snapshot endpoint, then folds positions.scored events into a live
// AggregateSignal per tracked symbol and raises whale alerts, forwarding both back to
// the Scraper over signals.out for persistence. Grounded on main.go's flag/env config
// loading and signal-driven graceful shutdown, mirrored from cmd/scraper.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"hlpulse/internal/bootstrap"
	"hlpulse/internal/composition"
	"hlpulse/internal/config"
	"hlpulse/internal/eventbus"
	"hlpulse/internal/health"
	"hlpulse/internal/httpapi"
	"hlpulse/internal/logging"
	"hlpulse/internal/metrics"
	"hlpulse/internal/notify"
	"hlpulse/internal/signal"
	"hlpulse/internal/weighting"
	"hlpulse/internal/whale"
)

func main() {
	configPath := flag.String("config", "", "path to an optional config file")
	scraperURL := flag.String("scraper-url", "http://localhost:8090", "base URL of the Scraper's internal HTTP surface")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	metrics.Init("signalsvc")

	bus, err := newBus(cfg.RedisURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build event bus")
	}

	reg := health.NewRegistry()
	root := composition.NewRoot(log)

	notifier, err := notify.NewTelegramNotifier(cfg.Telegram, log)
	if err != nil {
		log.Warn().Err(err).Msg("telegram notifier disabled")
		notifier = nil
	}

	registry := newTraderRegistry()
	regimeProvider := weighting.StaticRegimeProvider{}
	detector := whale.NewDetector(cfg.Alerts, bus.Publish, notifier.Notify)

	var coordinator *bootstrap.Coordinator
	warming := func() bool {
		if coordinator == nil {
			return true
		}
		return coordinator.IsWarming()
	}

	aggregator := signal.NewAggregator(cfg.HyperliquidSymbol, registry, regimeProvider, warming, bus.Publish)

	sink := &bootstrapSink{
		registry:   registry,
		aggregator: aggregator,
		detector:   detector,
		weightCfg:  cfg.Weighting,
		regime:     regimeProvider,
		symbol:     cfg.HyperliquidSymbol,
		log:        log,
	}
	fetcher := bootstrap.NewHTTPFetcher(*scraperURL)
	coordinator = bootstrap.NewCoordinator(fetcher, sink, log)

	if err := bus.Subscribe(eventbus.TopicPositionsScored, positionsScoredHandler(cfg, registry, aggregator, detector, regimeProvider, log)); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe positions.scored handler")
	}
	if err := bus.Subscribe(eventbus.TopicCandles, candlesHandler(aggregator, log)); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe candles handler")
	}

	httpServer := httpapi.NewServer(cfg.HTTP, reg, nil, log)

	root.Go("bootstrap.coordinator", func(ctx context.Context) {
		if err := coordinator.Run(ctx); err != nil {
			log.Error().Err(err).Msg("bootstrap coordinator exited")
		}
	})
	root.Go("http.server", func(ctx context.Context) {
		if err := httpServer.Run(); err != nil {
			log.Error().Err(err).Msg("http server exited")
		}
	})
	root.Go("health.reporter", func(ctx context.Context) {
		runHealthReporter(ctx, reg, coordinator, time.Duration(cfg.HealthCheckSeconds)*time.Second)
	})

	root.OnShutdown(func(ctx context.Context) error { return httpServer.Shutdown(ctx) })
	root.OnShutdown(func(ctx context.Context) error { return bus.Close() })

	reg.Report("signalsvc", health.StatusHealthy, nil)
	log.Info().Str("symbol", cfg.HyperliquidSymbol).Str("scraper_url", *scraperURL).Msg("signal system started")

	root.Wait()
	log.Info().Msg("signal system stopped")
}
