// Package domain defines the core types shared across the trading system:
// sides, order types, order statuses, price ticks, and order records.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the flipped side, used when alternating buy/sell orders.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType enumerates the supported brokerage order types.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
	OrderTypeBracket   OrderType = "bracket"
)

// OrderStatus is the lifecycle status of an order as reported by the
// brokerage.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusCanceled        OrderStatus = "canceled"
)

// Terminal reports whether the status is final: the order can no longer
// transition and nothing is in flight for it.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusRejected, OrderStatusCanceled:
		return true
	}
	return false
}

// TimeInForce enumerates the supported order durations.
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceOPG TimeInForce = "opg"
	TimeInForceCLS TimeInForce = "cls"
	TimeInForceIOC TimeInForce = "ioc"
	TimeInForceFOK TimeInForce = "fok"
)

// Phase tags a client order ID with the lifecycle stage that produced it.
// It is assigned at submission and never changes, which makes it the only
// reliable way to classify a historical order from the brokerage's records.
type Phase string

const (
	PhaseInitial Phase = "initial"
	PhaseLoop    Phase = "loop"
)

// PriceTick is the most recent observed trade price for a symbol. Ticks are
// immutable once recorded; the cache keeps only the newest one per symbol.
type PriceTick struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

// OrderRecord is the replica of a brokerage order held in the market-state
// cache. The brokerage remains the source of truth; replicas are eventually
// consistent with at most a few seconds of lag.
type OrderRecord struct {
	ID             string           `json:"id"`
	ClientOrderID  string           `json:"client_order_id"`
	Symbol         string           `json:"symbol"`
	Side           Side             `json:"side"`
	Type           OrderType        `json:"type"`
	Status         OrderStatus      `json:"status"`
	Qty            decimal.Decimal  `json:"qty"`
	LimitPrice     *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice      *decimal.Decimal `json:"stop_price,omitempty"`
	FilledAvgPrice *decimal.Decimal `json:"filled_avg_price,omitempty"`
	Legs           []OrderRecord    `json:"legs,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Leg returns the bracket child of the given order type, or nil when the
// order has no such leg. Bracket orders carry a take-profit (limit) leg and
// a stop-loss (stop) leg.
func (o *OrderRecord) Leg(t OrderType) *OrderRecord {
	for i := range o.Legs {
		if o.Legs[i].Type == t {
			return &o.Legs[i]
		}
	}
	return nil
}

// Position is a holding for a single symbol at the brokerage.
type Position struct {
	Symbol       string          `json:"symbol"`
	Qty          decimal.Decimal `json:"qty"`
	AvgEntry     decimal.Decimal `json:"avg_entry_price"`
	MarketValue  decimal.Decimal `json:"market_value"`
	UnrealizedPL decimal.Decimal `json:"unrealized_pl"`
}

// AccountInfo is a snapshot of the brokerage account's financial metrics.
type AccountInfo struct {
	Equity      decimal.Decimal `json:"equity"`
	Cash        decimal.Decimal `json:"cash"`
	BuyingPower decimal.Decimal `json:"buying_power"`
	Currency    string          `json:"currency"`
}

// MarketClock reports whether the market is open and the next transitions.
type MarketClock struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}
