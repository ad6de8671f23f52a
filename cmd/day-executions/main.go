// One-shot tool: export the account's closed orders for one trading day as
// CSV, for reconciliation against the fill journal.
//
// Usage:
//
//	go run cmd/day-executions/main.go -date 2025-06-02 -symbol AAPL -o fills.csv
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"looptrader/internal/config"
	"looptrader/internal/domain"
	"looptrader/internal/gateway"
)

func main() {
	date := flag.String("date", time.Now().Format("2006-01-02"), "trading day to export (YYYY-MM-DD)")
	symbol := flag.String("symbol", "", "restrict the export to one symbol")
	output := flag.String("o", "", "output file (default stdout)")
	flag.Parse()

	cfgPath := "config/looptrader.yaml"
	if p := os.Getenv("LOOPTRADER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	day, err := time.Parse("2006-01-02", *date)
	if err != nil {
		log.Fatalf("invalid -date %q: %v", *date, err)
	}

	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		BaseURL:   cfg.Alpaca.ResolveBaseURL(),
	})

	req := alpaca.GetOrdersRequest{
		Status: "closed",
		After:  day,
		Until:  day.AddDate(0, 0, 1),
		Limit:  500,
		Nested: true,
	}
	if *symbol != "" {
		req.Symbols = []string{*symbol}
	}

	orders, err := client.GetOrders(req)
	if err != nil {
		log.Fatalf("failed to fetch orders: %v", err)
	}

	var out io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("failed to create %s: %v", *output, err)
		}
		defer f.Close()
		out = f
	}

	records := make([]domain.OrderRecord, 0, len(orders))
	for i := range orders {
		records = append(records, *gateway.FromAlpacaOrder(&orders[i]))
	}
	if err := writeCSV(out, records); err != nil {
		log.Fatalf("failed to write csv: %v", err)
	}
	fmt.Fprintf(os.Stderr, "exported %d orders for %s\n", len(records), *date)
}

func writeCSV(out io.Writer, records []domain.OrderRecord) error {
	w := csv.NewWriter(out)
	header := []string{
		"updated_at", "symbol", "side", "type", "status",
		"qty", "limit_price", "stop_price", "filled_avg_price",
		"order_id", "client_order_id",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for i := range records {
		rec := &records[i]
		row := []string{
			rec.UpdatedAt.Format(time.RFC3339),
			rec.Symbol,
			string(rec.Side),
			string(rec.Type),
			string(rec.Status),
			rec.Qty.String(),
			decString(rec.LimitPrice),
			decString(rec.StopPrice),
			decString(rec.FilledAvgPrice),
			rec.ID,
			rec.ClientOrderID,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func decString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}
