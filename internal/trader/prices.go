package trader

import (
	"github.com/shopspring/decimal"

	"looptrader/internal/domain"
)

// OrderPrices holds the concrete prices derived for one side of one phase.
// Fields are nil when the order type does not use them.
type OrderPrices struct {
	Limit      *decimal.Decimal
	Stop       *decimal.Decimal
	TakeProfit *decimal.Decimal
	StopLoss   *decimal.Decimal
}

// Spreads are the configured offsets from the signal price.
type Spreads struct {
	Limit      decimal.Decimal
	Stop       decimal.Decimal
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
}

// DeriveOrderPrices computes the order prices for one side of one phase from
// the signal price and the configured spreads. Derivation is passive: a buy
// rests below the signal and a sell above it.
//
//	buy:  limit = signal − limitSpread,  stop = signal + stopSpread
//	sell: limit = signal + limitSpread,  stop = signal − stopSpread
//
// Bracket take-profit sits beyond the signal in the direction of profit and
// the stop-loss on the other side. The result is computed once at worker
// construction and treated as immutable for the rest of the run.
func DeriveOrderPrices(orderType domain.OrderType, side domain.Side, signal decimal.Decimal, sp Spreads) OrderPrices {
	var prices OrderPrices

	away := func(spread decimal.Decimal) decimal.Decimal {
		if side == domain.SideBuy {
			return signal.Sub(spread)
		}
		return signal.Add(spread)
	}
	toward := func(spread decimal.Decimal) decimal.Decimal {
		if side == domain.SideBuy {
			return signal.Add(spread)
		}
		return signal.Sub(spread)
	}

	switch orderType {
	case domain.OrderTypeMarket:
		// No derived prices.
	case domain.OrderTypeLimit:
		limit := away(sp.Limit)
		prices.Limit = &limit
	case domain.OrderTypeStop:
		stop := toward(sp.Stop)
		prices.Stop = &stop
	case domain.OrderTypeStopLimit:
		limit := away(sp.Limit)
		stop := toward(sp.Stop)
		prices.Limit = &limit
		prices.Stop = &stop
	case domain.OrderTypeBracket:
		limit := away(sp.Limit)
		tp := toward(sp.TakeProfit)
		sl := away(sp.StopLoss)
		prices.Limit = &limit
		prices.TakeProfit = &tp
		prices.StopLoss = &sl
	}
	return prices
}

// DeriveJumpPrices computes the escalated prices used for the single extra
// attempt after the nominal retry budget is spent. The jump spread is applied
// toward the market so the order crosses and fills:
//
//	buy:  limit = signal + jumpSpread
//	sell: limit = signal − jumpSpread
//
// Only the limit component jumps; order types without one (market, stop)
// resubmit with their nominal prices.
func DeriveJumpPrices(orderType domain.OrderType, side domain.Side, signal decimal.Decimal, sp Spreads, jump decimal.Decimal) OrderPrices {
	prices := DeriveOrderPrices(orderType, side, signal, sp)
	if prices.Limit == nil {
		return prices
	}

	var limit decimal.Decimal
	if side == domain.SideBuy {
		limit = signal.Add(jump)
	} else {
		limit = signal.Sub(jump)
	}
	prices.Limit = &limit
	return prices
}

// Triggered reports whether the latest price satisfies the level trigger for
// the given side: price at or below the signal arms a buy, at or above arms
// a sell. The trigger is re-evaluated every tick, never armed or disarmed.
func Triggered(side domain.Side, signal, price decimal.Decimal) bool {
	if side == domain.SideBuy {
		return price.LessThanOrEqual(signal)
	}
	return price.GreaterThanOrEqual(signal)
}
