package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"looptrader/internal/cache"
	"looptrader/internal/config"
	"looptrader/internal/ingest"
	"looptrader/internal/supervisor"
	"looptrader/internal/util"
)

func main() {
	cfgPath := flag.String("config", defaultConfigPath(), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(util.LogOptions{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
	})
	util.SetDefault(logger)

	cacheClient := cache.NewClient(cfg.Cache.Addr)
	defer cacheClient.Close()

	symbols := make([]string, 0, len(cfg.Strategies))
	for _, s := range cfg.Strategies {
		symbols = append(symbols, s.Symbol)
	}

	prices := ingest.NewPriceIngestor(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.Feed,
		symbols,
		cacheClient,
		logger,
	)
	orders := ingest.NewOrderIngestor(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.ResolveBaseURL(),
		cacheClient,
		logger,
	)

	sup := supervisor.New(0, logger)
	sup.Add("prices", prices)
	sup.Add("orders", orders)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting stream daemon", "symbols", symbols, "feed", cfg.Alpaca.Feed, "cache", cfg.Cache.Addr)
	if err := sup.Run(ctx); err != nil {
		logger.Error("stream daemon exited with failures", "err", err)
		os.Exit(1)
	}
	logger.Info("stream daemon stopped")
}

func defaultConfigPath() string {
	if p := os.Getenv("LOOPTRADER_CONFIG"); p != "" {
		return p
	}
	return "config/looptrader.yaml"
}
