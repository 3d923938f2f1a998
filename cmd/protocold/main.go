// Package main provides the protocold server entry point.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm/logger"

	"github.com/rescuelabs/protocold/internal/config"
	gormdb "github.com/rescuelabs/protocold/internal/db/gorm"
	"github.com/rescuelabs/protocold/internal/generation"
	"github.com/rescuelabs/protocold/internal/histsync"
	"github.com/rescuelabs/protocold/internal/ingest"
	"github.com/rescuelabs/protocold/internal/pipeline"
	"github.com/rescuelabs/protocold/internal/quota"
	"github.com/rescuelabs/protocold/internal/retrieval"
	"github.com/rescuelabs/protocold/internal/server"
	"github.com/rescuelabs/protocold/internal/telemetry"
	"github.com/rescuelabs/protocold/internal/watcher"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directory")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *debug || cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Relational store (migrations run automatically).
	store, err := gormdb.NewStore(gormdb.Config{
		Path:     config.DBPath(),
		MaxConns: cfg.MaxConns,
		LogLevel: logger.Silent,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer store.Close()

	users := gormdb.NewUserStore(store)
	history := gormdb.NewHistoryStore(store)
	protocols := gormdb.NewProtocolStore(store)

	// Quota counters: Redis for multi-instance deployments, SQLite otherwise.
	var counters quota.CounterStore
	if cfg.RedisAddr != "" {
		redisCounters := quota.NewRedisCounterStore(cfg.RedisAddr)
		defer redisCounters.Close()
		counters = redisCounters
		log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis quota counters")
	} else {
		counters = gormdb.NewQuotaStore(store)
	}
	gate := quota.NewGate(counters, quota.Config{
		FreeDailyLimit:  cfg.FreeDailyLimit,
		DefaultTimezone: cfg.DefaultTimezone,
	})

	if cfg.GatewayURL == "" {
		log.Fatal().Msg("gateway_url must be configured")
	}
	generator, err := generation.NewGatewayClient(generation.GatewayConfig{
		BaseURL: cfg.GatewayURL,
		APIKey:  cfg.GatewayAPIKey,
		Models:  cfg.Models(),
		Timeout: time.Duration(cfg.GatewayTimeoutSeconds) * time.Second,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize generation gateway")
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		log.Warn().Err(err).Msg("Metrics unavailable, continuing without")
	}

	queryPipeline := pipeline.New(users, gate, retrieval.NewFTSRetriever(protocols), generator, history, metrics, pipeline.Config{
		RetrievalLimit:      cfg.RetrievalLimit,
		SimilarityThreshold: cfg.SimilarityThreshold,
	})

	syncEngine := histsync.NewEngine(history, metrics, histsync.Config{
		DedupWindow:       time.Duration(cfg.SyncDedupWindowSeconds) * time.Second,
		NearMissThreshold: cfg.NearMissThreshold,
		MaxBatchSize:      cfg.SyncMaxBatchSize,
		HistoryLimit:      cfg.SyncHistoryLimit,
	})

	svc := server.New(server.Deps{
		Config:     cfg,
		Store:      store,
		Users:      users,
		Protocols:  protocols,
		Gate:       gate,
		Pipeline:   queryPipeline,
		SyncEngine: syncEngine,
		Chunker:    ingest.NewChunker(ingest.Options{}),
	}, Version)

	startSettingsWatcher()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gctx)
	})

	log.Info().Str("version", Version).Msg("protocold started")
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
	log.Info().Msg("protocold stopped")
}

// startSettingsWatcher exits the process when the settings file changes
// so a supervisor restarts it with fresh configuration.
func startSettingsWatcher() {
	settingsPath := config.SettingsPath()
	w, err := watcher.New(settingsPath, func() {
		log.Warn().Str("path", settingsPath).Msg("Settings changed, exiting for restart")
		time.Sleep(100 * time.Millisecond) // Give logs time to flush
		os.Exit(0)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create settings watcher")
		return
	}
	if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start settings watcher")
		return
	}
	log.Info().Str("path", settingsPath).Msg("Settings watcher started")
}
