// Command scanner runs the moonscan pipeline: it watches DEX programs for
// new pools, snapshots each discovered pair, scores and validates it, and
// dispatches alerts for qualifying pairs.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"solana-moonscan/internal/aggregator"
	"solana-moonscan/internal/alert"
	"solana-moonscan/internal/config"
	"solana-moonscan/internal/gateway"
	"solana-moonscan/internal/monitor"
	"solana-moonscan/internal/observability"
	"solana-moonscan/internal/pipeline"
	"solana-moonscan/internal/scoring"
	"solana-moonscan/internal/storage"
	"solana-moonscan/internal/storage/memory"
	pgstore "solana-moonscan/internal/storage/postgres"
	"solana-moonscan/internal/validation"
)

const shutdownGrace = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration")
	metricsAddr := flag.String("metrics-addr", "", "Override the Prometheus metrics address")
	useMemory := flag.Bool("use-memory", false, "Keep history in memory even when postgres is configured")
	flag.Parse()

	// Best effort: secrets may come from a .env file.
	_ = godotenv.Load()

	log := newLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("configuration rejected")
	}
	log = newLogger(cfg.Logging.Level)

	if err := scoring.ValidateWeights(); err != nil {
		log.Fatal().Err(err).Msg("score weight table rejected")
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	metrics := observability.NewMetrics("moonscan", nil)
	startMetricsServer(cfg.Metrics.Addr, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chain, err := gateway.New(cfg.Providers, cfg.Gateway,
		gateway.WithLogger(log.With().Str("component", "gateway").Logger()),
		gateway.WithMetrics(metrics))
	if err != nil {
		log.Fatal().Err(err).Msg("gateway init failed")
	}

	monitorOpts := []monitor.Option{
		monitor.WithLogger(log.With().Str("component", "monitor").Logger()),
		monitor.WithMetrics(metrics),
	}
	if ws := websocketEndpoint(cfg.Providers); ws != "" {
		monitorOpts = append(monitorOpts, monitor.WithWebsocketEndpoint(ws))
	}
	mon, err := monitor.New(cfg.Monitor, chain, monitorOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("monitor init failed")
	}

	aggOpts := []aggregator.Option{
		aggregator.WithLogger(log.With().Str("component", "aggregator").Logger()),
		aggregator.WithMetrics(metrics),
	}
	if cfg.Aggregator.MarketData.Enabled {
		aggOpts = append(aggOpts, aggregator.WithMarketData(aggregator.NewHTTPMarketData(cfg.Aggregator.MarketData)))
	}
	agg := aggregator.New(cfg.Aggregator, chain, aggOpts...)

	dispatcher, err := alert.New(cfg.Alerts,
		alert.WithLogger(log.With().Str("component", "alert").Logger()),
		alert.WithMetrics(metrics))
	if err != nil {
		log.Fatal().Err(err).Msg("alert dispatcher init failed")
	}

	history, closeHistory, err := openHistory(ctx, cfg.History, *useMemory, log)
	if err != nil {
		log.Fatal().Err(err).Msg("history store init failed")
	}
	defer closeHistory()

	runner := pipeline.New(pipeline.Options{
		Workers:          cfg.Pipeline.Workers,
		SnapshotAttempts: cfg.Aggregator.SnapshotAttempts,
		Snapshotter:      agg,
		Validator:        validation.New(cfg.Validation),
		Alerts:           dispatcher,
		History:          history,
		Metrics:          metrics,
		Logger:           log.With().Str("component", "pipeline").Logger(),
	})

	go handleSignals(cancel, log)

	log.Info().
		Strs("exchanges", cfg.Monitor.Exchanges).
		Int("workers", cfg.Pipeline.Workers).
		Msg("scanner starting")

	monitorDone := make(chan error, 1)
	go func() {
		monitorDone <- mon.Run(ctx)
	}()

	// Blocks until the monitor closes the pair channel on shutdown.
	runner.Run(ctx, mon.Pairs())

	if err := <-monitorDone; err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("monitor stopped with error")
	}
	log.Info().Msg("shutdown complete")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

func startMetricsServer(addr string, log zerolog.Logger) {
	if addr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
}

// websocketEndpoint returns the first provider ws_url, in priority order.
func websocketEndpoint(providers []config.ProviderConfig) string {
	for _, p := range providers {
		if p.WSURL != "" {
			return p.WSURL
		}
	}
	return ""
}

// openHistory returns the configured history store, or nil when history is
// disabled entirely.
func openHistory(ctx context.Context, cfg config.HistoryConfig, useMemory bool, log zerolog.Logger) (storage.HistoryStore, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}
	if useMemory {
		log.Warn().Msg("history kept in memory: records are lost on restart")
		return memory.NewHistoryStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pgstore.NewHistoryStore(pool), pool.Close, nil
}

func handleSignals(cancel context.CancelFunc, log zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")
	cancel()

	select {
	case sig = <-sigCh:
		log.Warn().Str("signal", sig.String()).Msg("forcing immediate shutdown")
	case <-time.After(shutdownGrace):
		log.Warn().Dur("grace", shutdownGrace).Msg("graceful shutdown timed out")
	}
	os.Exit(1)
}
