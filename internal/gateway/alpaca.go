package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"looptrader/internal/domain"
	"looptrader/internal/util"
)

// Compile-time interface check.
var _ Gateway = (*AlpacaGateway)(nil)

// AlpacaGateway implements the Gateway interface using the Alpaca brokerage
// API. All REST calls share a pacing limiter so the combined worker
// population stays under the brokerage's request budget.
type AlpacaGateway struct {
	client  *alpaca.Client
	limiter *util.RateLimiter
}

// NewAlpacaGateway creates a gateway configured with the given credentials
// and API endpoint, pacing requests to ratePerMin calls per minute.
func NewAlpacaGateway(apiKey, apiSecret, baseURL string, ratePerMin int) *AlpacaGateway {
	return &AlpacaGateway{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		limiter: util.NewRateLimiter(ratePerMin),
	}
}

// SubmitOrder sends an order to the Alpaca API for execution. Bracket
// requests are translated to Alpaca's bracket order class with a limit entry
// leg.
func (g *AlpacaGateway) SubmitOrder(ctx context.Context, req OrderRequest) (*domain.OrderRecord, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	qty := req.Qty
	placeReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          alpaca.Side(req.Side),
		TimeInForce:   alpaca.TimeInForce(req.TimeInForce),
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
		ClientOrderID: req.ClientOrderID,
	}

	if req.Type == domain.OrderTypeBracket {
		placeReq.Type = alpaca.Limit
		placeReq.OrderClass = alpaca.Bracket
		placeReq.TakeProfit = &alpaca.TakeProfit{LimitPrice: req.TakeProfit}
		placeReq.StopLoss = &alpaca.StopLoss{StopPrice: req.StopLoss}
	} else {
		placeReq.Type = alpaca.OrderType(req.Type)
	}

	order, err := g.client.PlaceOrder(placeReq)
	if err != nil {
		return nil, classify(err)
	}
	return FromAlpacaOrder(order), nil
}

// GetOrder retrieves a single order by its ID.
func (g *AlpacaGateway) GetOrder(ctx context.Context, id string) (*domain.OrderRecord, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	order, err := g.client.GetOrder(id)
	if err != nil {
		return nil, classify(err)
	}
	return FromAlpacaOrder(order), nil
}

// ListOpenOrders returns all open orders for the given symbol, with bracket
// legs nested.
func (g *AlpacaGateway) ListOpenOrders(ctx context.Context, symbol string) ([]domain.OrderRecord, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	orders, err := g.client.GetOrders(alpaca.GetOrdersRequest{
		Status:  "open",
		Symbols: []string{symbol},
		Nested:  true,
	})
	if err != nil {
		return nil, classify(err)
	}

	records := make([]domain.OrderRecord, 0, len(orders))
	for i := range orders {
		records = append(records, *FromAlpacaOrder(&orders[i]))
	}
	return records, nil
}

// CancelOrder requests cancellation of an open order.
func (g *AlpacaGateway) CancelOrder(ctx context.Context, id string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := g.client.CancelOrder(id); err != nil {
		return classify(err)
	}
	return nil
}

// CancelAll requests cancellation of every open order on the account.
func (g *AlpacaGateway) CancelAll(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := g.client.CancelAllOrders(); err != nil {
		return classify(err)
	}
	return nil
}

// GetPosition returns the position for a symbol. A 404 from the API means
// the account is flat in that symbol and is returned as (nil, nil).
func (g *AlpacaGateway) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	pos, err := g.client.GetPosition(symbol)
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, classify(err)
	}

	p := &domain.Position{
		Symbol:   pos.Symbol,
		Qty:      pos.Qty,
		AvgEntry: pos.AvgEntryPrice,
	}
	if pos.MarketValue != nil {
		p.MarketValue = *pos.MarketValue
	}
	if pos.UnrealizedPL != nil {
		p.UnrealizedPL = *pos.UnrealizedPL
	}
	return p, nil
}

// GetAccount returns the current account information.
func (g *AlpacaGateway) GetAccount(ctx context.Context) (*domain.AccountInfo, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	acct, err := g.client.GetAccount()
	if err != nil {
		return nil, classify(err)
	}
	return &domain.AccountInfo{
		Equity:      acct.Equity,
		Cash:        acct.Cash,
		BuyingPower: acct.BuyingPower,
		Currency:    acct.Currency,
	}, nil
}

// GetClock returns the market clock.
func (g *AlpacaGateway) GetClock(ctx context.Context) (*domain.MarketClock, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	clock, err := g.client.GetClock()
	if err != nil {
		return nil, classify(err)
	}
	return &domain.MarketClock{
		Timestamp: clock.Timestamp,
		IsOpen:    clock.IsOpen,
		NextOpen:  clock.NextOpen,
		NextClose: clock.NextClose,
	}, nil
}

// classify maps SDK errors onto the gateway's taxonomy: a 4xx API error is
// an explicit rejection, anything else is a transport failure.
func classify(err error) error {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return &RejectionError{Code: apiErr.StatusCode, Message: apiErr.Message}
	}
	return fmt.Errorf("alpaca api: %w", err)
}

// FromAlpacaOrder converts an SDK order, legs included, to the domain record.
func FromAlpacaOrder(o *alpaca.Order) *domain.OrderRecord {
	rec := &domain.OrderRecord{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           domain.Side(o.Side),
		Type:           domain.OrderType(o.Type),
		Status:         MapStatus(o.Status),
		LimitPrice:     o.LimitPrice,
		StopPrice:      o.StopPrice,
		FilledAvgPrice: o.FilledAvgPrice,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if o.Qty != nil {
		rec.Qty = *o.Qty
	}
	for i := range o.Legs {
		rec.Legs = append(rec.Legs, *FromAlpacaOrder(&o.Legs[i]))
	}
	return rec
}

// MapStatus folds Alpaca's order statuses onto the statuses the state
// machine distinguishes. Anything still working maps to accepted; the
// various dead-end statuses map to canceled.
func MapStatus(s string) domain.OrderStatus {
	switch s {
	case "new", "pending_new":
		return domain.OrderStatusNew
	case "partially_filled":
		return domain.OrderStatusPartiallyFilled
	case "filled":
		return domain.OrderStatusFilled
	case "rejected":
		return domain.OrderStatusRejected
	case "canceled", "pending_cancel", "expired", "done_for_day", "stopped", "suspended", "replaced":
		return domain.OrderStatusCanceled
	default:
		return domain.OrderStatusAccepted
	}
}
