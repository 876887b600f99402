package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fundwatch/internal/client"
	"fundwatch/internal/config"
	"fundwatch/internal/proxy"
	"fundwatch/internal/scheduler"
	"fundwatch/internal/server"
	"fundwatch/internal/storage"
	"fundwatch/internal/watchlist"
	"fundwatch/pkg/logger"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("config validation")
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	log.Info().Msg("fundwatch starting")

	// Local key-value store; fall back to memory if sqlite cannot open.
	var kv storage.KV
	if sq, err := storage.NewSQLite(cfg.Database.SQLitePath, log); err != nil {
		log.Warn().Err(err).Msg("open sqlite failed, state will not persist")
		kv = storage.NewMemory()
	} else {
		kv = sq
	}
	defer kv.Close()

	store := watchlist.NewStore(kv, log)
	log.Info().Int("tickers", store.Size()).Msg("watchlist loaded")

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Proxy strategies: config list, or the shipped defaults.
	var strategies []proxy.Strategy
	for _, p := range cfg.Fetch.Proxies {
		strategies = append(strategies, proxy.Strategy{Name: p.Name, Prefix: p.Prefix, Wrapped: p.Wrapped})
	}
	fetcher := proxy.New(strategies, cfg.FetchTimeout(), log)
	dataClient := client.New(fetcher, log)

	sched := scheduler.New(ctx, dataClient, store, cfg.FullInterval(), cfg.IndexInterval(), log)
	store.OnSizeChange = sched.Rearm
	sched.Start()
	defer sched.Stop()

	if os.Getenv("RUN_ON_START") == "true" {
		log.Info().Msg("RUN_ON_START enabled, refreshing now")
		go sched.RefreshAll(ctx)
	}

	srv := server.New(ctx, cfg.Server.Port, store, sched, log)
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, stopping")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	cancel()
	log.Info().Msg("fundwatch stopped")
}
