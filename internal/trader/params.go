package trader

import (
	"time"

	"github.com/shopspring/decimal"

	"looptrader/internal/config"
	"looptrader/internal/domain"
)

// PhasePlan holds everything one lifecycle phase needs to submit orders: the
// signal price and the per-side derived prices, nominal and jump. Plans are
// built once at worker construction and never recomputed mid-flight.
type PhasePlan struct {
	Phase       domain.Phase
	OrderType   domain.OrderType
	SignalPrice decimal.Decimal
	Prices      map[domain.Side]OrderPrices
	Jump        map[domain.Side]OrderPrices // nil when no jump spread is configured
}

// HasJump reports whether this phase carries a jump escalation.
func (p *PhasePlan) HasJump() bool { return p.Jump != nil }

// AlertConfig is the worker-side alerting policy.
type AlertConfig struct {
	Enabled        bool
	From           string
	To             string
	StatusInterval time.Duration
}

// Config is the full, derived configuration of one worker.
type Config struct {
	Symbol      string
	Quantity    decimal.Decimal
	InitialSide domain.Side
	TimeInForce domain.TimeInForce
	Retries     int
	Initial     PhasePlan
	Loop        PhasePlan

	UpdateInterval  time.Duration
	SleepAfterError time.Duration
	SettleDelay     time.Duration

	Alerts AlertConfig
}

// BuildConfig converts a validated strategy definition into a worker Config,
// deriving all order prices up front.
func BuildConfig(s config.StrategyConfig, t config.Trading, a config.Alerting) Config {
	return Config{
		Symbol:      s.Symbol,
		Quantity:    decimal.NewFromFloat(s.Quantity),
		InitialSide: domain.Side(s.InitialSide),
		TimeInForce: domain.TimeInForce(s.TimeInForce),
		Retries:     s.Retries,
		Initial:     buildPlan(domain.PhaseInitial, s.Initial),
		Loop:        buildPlan(domain.PhaseLoop, s.Loop),

		UpdateInterval:  t.UpdateInterval.Std(),
		SleepAfterError: t.SleepAfterError.Std(),
		SettleDelay:     t.SettleDelay.Std(),

		Alerts: AlertConfig{
			Enabled:        a.Enabled,
			From:           a.From,
			To:             a.To,
			StatusInterval: a.StatusInterval.Std(),
		},
	}
}

func buildPlan(phase domain.Phase, p config.PhaseParams) PhasePlan {
	orderType := domain.OrderType(p.OrderType)
	signal := decimal.NewFromFloat(p.SignalPrice)
	spreads := Spreads{
		Limit:      decimal.NewFromFloat(p.LimitSpread),
		Stop:       decimal.NewFromFloat(p.StopSpread),
		TakeProfit: decimal.NewFromFloat(p.TakeProfitSpread),
		StopLoss:   decimal.NewFromFloat(p.StopLossSpread),
	}

	plan := PhasePlan{
		Phase:       phase,
		OrderType:   orderType,
		SignalPrice: signal,
		Prices: map[domain.Side]OrderPrices{
			domain.SideBuy:  DeriveOrderPrices(orderType, domain.SideBuy, signal, spreads),
			domain.SideSell: DeriveOrderPrices(orderType, domain.SideSell, signal, spreads),
		},
	}
	if p.JumpSpread > 0 {
		jump := decimal.NewFromFloat(p.JumpSpread)
		plan.Jump = map[domain.Side]OrderPrices{
			domain.SideBuy:  DeriveJumpPrices(orderType, domain.SideBuy, signal, spreads, jump),
			domain.SideSell: DeriveJumpPrices(orderType, domain.SideSell, signal, spreads, jump),
		}
	}
	return plan
}
