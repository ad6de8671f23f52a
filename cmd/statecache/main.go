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
	"looptrader/internal/util"
)

func main() {
	cfgPath := flag.String("config", defaultConfigPath(), "path to the YAML configuration file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	listenAddr := cfg.Cache.Addr
	if *addr != "" {
		listenAddr = *addr
	}

	logger := util.NewLogger(util.LogOptions{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
	})
	util.SetDefault(logger)

	srv := cache.NewServer(listenAddr, cache.NewModel(), logger)
	if err := srv.Listen(); err != nil {
		log.Fatalf("failed to listen on %s: %v", listenAddr, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("state cache listening", "addr", srv.Addr())
	if err := srv.Serve(ctx); err != nil {
		logger.Error("state cache stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("state cache stopped")
}

func defaultConfigPath() string {
	if p := os.Getenv("LOOPTRADER_CONFIG"); p != "" {
		return p
	}
	return "config/looptrader.yaml"
}
