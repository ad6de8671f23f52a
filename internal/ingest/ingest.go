// Package ingest feeds the market-state cache from Alpaca's streaming APIs:
// trade prints from the market-data websocket and order lifecycle events from
// the trade-updates stream. Workers never touch these streams directly; the
// cache is the only consumer-facing surface.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
	"github.com/shopspring/decimal"

	"looptrader/internal/domain"
	"looptrader/internal/gateway"
	"looptrader/internal/util"
)

// StateWriter is the slice of the cache client the ingestors need.
type StateWriter interface {
	WritePrice(tick domain.PriceTick) error
	WriteOrder(order domain.OrderRecord) error
}

// reconnect policy shared by both ingestors
const (
	reconnectAttempts = 10
	reconnectBaseWait = time.Second
)

// ---------------------------------------------------------------------------
// Price ingestor

// PriceIngestor subscribes to trade prints for the configured symbols and
// writes each one to the cache as a price tick.
type PriceIngestor struct {
	apiKey    string
	apiSecret string
	feed      string
	symbols   []string
	writer    StateWriter
	log       *slog.Logger
}

// NewPriceIngestor creates a price ingestor for the given symbols on the
// given feed ("iex" or "sip").
func NewPriceIngestor(apiKey, apiSecret, feed string, symbols []string, w StateWriter, log *slog.Logger) *PriceIngestor {
	return &PriceIngestor{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		feed:      feed,
		symbols:   symbols,
		writer:    w,
		log:       log.With("component", "price-ingest"),
	}
}

// Run connects to the market-data stream and pumps trades until ctx is
// cancelled, reconnecting with backoff when the stream drops.
func (p *PriceIngestor) Run(ctx context.Context) error {
	err := util.Retry(ctx, reconnectAttempts, reconnectBaseWait, func() error {
		return p.session(ctx)
	})
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("price stream: %w", err)
}

func (p *PriceIngestor) session(ctx context.Context) error {
	client := stream.NewStocksClient(p.feed,
		stream.WithCredentials(p.apiKey, p.apiSecret),
	)
	if err := client.Connect(ctx); err != nil {
		p.log.Warn("connecting to market-data stream", "err", err)
		return err
	}
	if err := client.SubscribeToTrades(p.handleTrade, p.symbols...); err != nil {
		p.log.Warn("subscribing to trades", "symbols", p.symbols, "err", err)
		return err
	}
	p.log.Info("streaming trades", "feed", p.feed, "symbols", p.symbols)

	select {
	case <-ctx.Done():
		return nil
	case err := <-client.Terminated():
		p.log.Warn("market-data stream terminated", "err", err)
		if err == nil {
			err = fmt.Errorf("stream closed")
		}
		return err
	}
}

func (p *PriceIngestor) handleTrade(t stream.Trade) {
	tick := domain.PriceTick{
		Symbol:     t.Symbol,
		Price:      decimal.NewFromFloat(t.Price),
		ObservedAt: t.Timestamp,
	}
	if err := p.writer.WritePrice(tick); err != nil {
		p.log.Warn("writing price tick", "symbol", t.Symbol, "err", err)
	}
}

// ---------------------------------------------------------------------------
// Order ingestor

// OrderIngestor subscribes to the account's trade-updates stream and mirrors
// every order event into the cache.
type OrderIngestor struct {
	client *alpaca.Client
	writer StateWriter
	log    *slog.Logger
}

// NewOrderIngestor creates an order ingestor on the given trading endpoint.
func NewOrderIngestor(apiKey, apiSecret, baseURL string, w StateWriter, log *slog.Logger) *OrderIngestor {
	return &OrderIngestor{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		writer: w,
		log:    log.With("component", "order-ingest"),
	}
}

// Run pumps trade updates until ctx is cancelled, reconnecting with backoff
// when the stream drops.
func (o *OrderIngestor) Run(ctx context.Context) error {
	err := util.Retry(ctx, reconnectAttempts, reconnectBaseWait, func() error {
		o.log.Info("streaming trade updates")
		err := o.client.StreamTradeUpdates(ctx, o.handleUpdate, alpaca.StreamTradeUpdatesRequest{})
		if err != nil {
			o.log.Warn("trade-updates stream terminated", "err", err)
		}
		return err
	})
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("trade-updates stream: %w", err)
}

func (o *OrderIngestor) handleUpdate(u alpaca.TradeUpdate) {
	rec := gateway.FromAlpacaOrder(&u.Order)
	if rec.UpdatedAt.Before(u.At) {
		rec.UpdatedAt = u.At
	}
	o.log.Debug("order update",
		"event", u.Event,
		"order_id", rec.ID,
		"symbol", rec.Symbol,
		"status", rec.Status,
	)
	if err := o.writer.WriteOrder(*rec); err != nil {
		o.log.Warn("writing order update", "order_id", rec.ID, "err", err)
	}
}
