// Package gateway defines the Gateway interface for order execution against
// a brokerage and provides the Alpaca implementation.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"looptrader/internal/domain"
)

// OrderRequest carries everything needed to submit one order. For bracket
// orders TakeProfit and StopLoss hold the leg prices; they are nil otherwise.
type OrderRequest struct {
	Symbol        string
	Qty           decimal.Decimal
	Side          domain.Side
	Type          domain.OrderType
	TimeInForce   domain.TimeInForce
	ClientOrderID string
	LimitPrice    *decimal.Decimal
	StopPrice     *decimal.Decimal
	TakeProfit    *decimal.Decimal
	StopLoss      *decimal.Decimal
}

// Gateway abstracts brokerage operations. Implementations must return a
// *RejectionError when the exchange explicitly refuses an order, so callers
// can tell a void attempt from a transport failure.
type Gateway interface {
	// SubmitOrder sends an order to the brokerage for execution.
	SubmitOrder(ctx context.Context, req OrderRequest) (*domain.OrderRecord, error)

	// GetOrder retrieves a single order by its brokerage-assigned ID.
	GetOrder(ctx context.Context, id string) (*domain.OrderRecord, error)

	// ListOpenOrders returns all non-terminal orders for the given symbol.
	ListOpenOrders(ctx context.Context, symbol string) ([]domain.OrderRecord, error)

	// CancelOrder requests cancellation of an open order by its ID.
	CancelOrder(ctx context.Context, id string) error

	// CancelAll requests cancellation of every open order on the account.
	CancelAll(ctx context.Context) error

	// GetPosition returns the position for a symbol, or nil when flat.
	GetPosition(ctx context.Context, symbol string) (*domain.Position, error)

	// GetAccount returns a snapshot of the account's financial metrics.
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)

	// GetClock returns the market clock.
	GetClock(ctx context.Context) (*domain.MarketClock, error)
}

// RejectionError marks an order explicitly refused by the exchange. It is
// distinct from transport failure: a rejection is a definitive answer and
// counts against the retry budget the same way, but it means the request
// reached the exchange.
type RejectionError struct {
	Code    int
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("order rejected by exchange (code %d): %s", e.Code, e.Message)
}

// IsRejection reports whether err wraps a RejectionError.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}
