// One-shot tool: print an account snapshot and the derived order prices for
// every configured strategy, phase, and side. Run it after editing the
// configuration to check the levels before the trading daemon acts on them.
//
// Usage:
//
//	go run cmd/levels/main.go -append /tmp/levels.log
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"looptrader/internal/config"
	"looptrader/internal/domain"
	"looptrader/internal/gateway"
	"looptrader/internal/trader"
)

func main() {
	appendPath := flag.String("append", "", "also append the output to this file")
	skipAccount := flag.Bool("no-account", false, "skip the account snapshot (no API calls)")
	flag.Parse()

	cfgPath := "config/looptrader.yaml"
	if p := os.Getenv("LOOPTRADER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var out io.Writer = os.Stdout
	if *appendPath != "" {
		f, err := os.OpenFile(*appendPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("failed to open %s: %v", *appendPath, err)
		}
		defer f.Close()
		out = io.MultiWriter(os.Stdout, f)
	}

	if !*skipAccount {
		if err := printAccount(out, cfg); err != nil {
			log.Fatalf("failed to fetch account: %v", err)
		}
	}
	printLevels(out, cfg)
}

func printAccount(out io.Writer, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	gw := gateway.NewAlpacaGateway(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.ResolveBaseURL(),
		cfg.Trading.RateLimitPerMin,
	)

	acct, err := gw.GetAccount(ctx)
	if err != nil {
		return err
	}
	clock, err := gw.GetClock(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s  equity=%s cash=%s buying_power=%s %s  market_open=%v\n\n",
		time.Now().Format(time.RFC3339),
		acct.Equity, acct.Cash, acct.BuyingPower, acct.Currency,
		clock.IsOpen,
	)
	return nil
}

func printLevels(out io.Writer, cfg *config.Config) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tPHASE\tSIDE\tTYPE\tSIGNAL\tLIMIT\tSTOP\tTAKE-PROFIT\tSTOP-LOSS\tJUMP-LIMIT")

	for _, s := range cfg.Strategies {
		wcfg := trader.BuildConfig(s, cfg.Trading, cfg.Alerting)
		printPlan(w, wcfg.Symbol, &wcfg.Initial)
		printPlan(w, wcfg.Symbol, &wcfg.Loop)
	}
	w.Flush()
}

func printPlan(w *tabwriter.Writer, symbol string, plan *trader.PhasePlan) {
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		prices := plan.Prices[side]
		jump := "-"
		if plan.HasJump() {
			jump = str(plan.Jump[side].Limit)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			symbol, plan.Phase, side, plan.OrderType, plan.SignalPrice,
			str(prices.Limit), str(prices.Stop),
			str(prices.TakeProfit), str(prices.StopLoss), jump,
		)
	}
}

func str(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.String()
}
