package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"looptrader/internal/alert"
	"looptrader/internal/cache"
	"looptrader/internal/config"
	"looptrader/internal/gateway"
	"looptrader/internal/journal"
	"looptrader/internal/supervisor"
	"looptrader/internal/trader"
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

	gw := gateway.NewAlpacaGateway(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.ResolveBaseURL(),
		cfg.Trading.RateLimitPerMin,
	)

	cacheClient := cache.NewClient(cfg.Cache.Addr)
	defer cacheClient.Close()

	var sink alert.Sink
	if cfg.Alerting.Enabled {
		sink = alert.NewSendGridSink(cfg.Alerting.APIKey)
	}

	var jnl *journal.Journal
	if cfg.Journal.Path != "" {
		jnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Fatalf("failed to open journal: %v", err)
		}
		defer jnl.Close()
	}

	sup := supervisor.New(cfg.Trading.StaggerStart.Std(), logger)
	for _, s := range cfg.Strategies {
		wcfg := trader.BuildConfig(s, cfg.Trading, cfg.Alerting)
		w := trader.NewWorker(wcfg, gw, cacheClient, sink, jnl, logger)
		sup.Add(s.Symbol, w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting trading daemon",
		"strategies", len(cfg.Strategies),
		"cache", cfg.Cache.Addr,
		"endpoint", cfg.Alpaca.ResolveBaseURL(),
	)
	if err := sup.Run(ctx); err != nil {
		logger.Error("trading daemon exited with failures", "err", err)
		os.Exit(1)
	}
	logger.Info("trading daemon stopped")
}

func defaultConfigPath() string {
	if p := os.Getenv("LOOPTRADER_CONFIG"); p != "" {
		return p
	}
	return "config/looptrader.yaml"
}
