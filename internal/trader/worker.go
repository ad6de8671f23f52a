// Package trader implements the per-symbol trading worker: a state machine
// that waits for a price signal, submits the next buy/sell order through the
// gateway, and advances when the market-state cache reports the order
// resolved.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"looptrader/internal/alert"
	"looptrader/internal/cache"
	"looptrader/internal/domain"
	"looptrader/internal/gateway"
	"looptrader/internal/journal"
)

// State is the worker's lifecycle phase.
type State int

const (
	StateUninitialized State = iota
	StateAwaitingSignal
	StateOrderInFlight
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAwaitingSignal:
		return "awaiting_signal"
	case StateOrderInFlight:
		return "order_in_flight"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// CacheReader pulls the latest market-state snapshot. The worker polls the
// cache instead of the gateway so the polling cadence cannot exceed the
// brokerage's rate limits.
type CacheReader interface {
	Read() (*cache.Snapshot, error)
}

// terminalError marks a condition that must stop the worker. failure
// distinguishes error exits (retry budget exhausted) from successful ones
// (take-profit filled, user shutdown).
type terminalError struct {
	reason  string
	failure bool
	err     error
}

func (e *terminalError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("worker terminal: %s: %v", e.reason, e.err)
	}
	return fmt.Sprintf("worker terminal: %s", e.reason)
}

func (e *terminalError) Unwrap() error { return e.err }

// Worker owns one symbol for its lifetime and drives the order lifecycle
// state machine. All collaborators are injected; nothing is shared between
// workers.
type Worker struct {
	cfg      Config
	gateway  gateway.Gateway
	cache    CacheReader
	sink     alert.Sink
	throttle *alert.Throttle
	journal  *journal.Journal // optional
	log      *slog.Logger

	state       State
	pendingSide domain.Side
	plan        *PhasePlan
	lastOrderID string
	attempts    int // submissions made for the current signal cycle

	settling bool // delay the next tick for the gateway to settle
}

// NewWorker creates a worker for the given configuration. The journal may be
// nil to disable journaling, and the sink may be nil when alerting is off.
func NewWorker(cfg Config, gw gateway.Gateway, cr CacheReader, sink alert.Sink, jnl *journal.Journal, log *slog.Logger) *Worker {
	return &Worker{
		cfg:      cfg,
		gateway:  gw,
		cache:    cr,
		sink:     sink,
		throttle: alert.NewThrottle(cfg.Alerts.StatusInterval),
		journal:  jnl,
		log:      log.With("symbol", cfg.Symbol),
		state:    StateUninitialized,
	}
}

// State returns the current lifecycle phase.
func (w *Worker) State() State { return w.state }

// PendingSide returns the side of the next order to be placed.
func (w *Worker) PendingSide() domain.Side { return w.pendingSide }

// Run drives the tick loop until a terminal condition or ctx cancellation.
// The cancellation flag is checked once per tick, never preempting an
// in-progress submission, and the full termination sequence runs on every
// exit path. The returned error is nil for clean exits (shutdown,
// take-profit filled) and non-nil for failures.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker starting",
		"initial_side", w.cfg.InitialSide,
		"initial_signal", w.cfg.Initial.SignalPrice,
		"loop_signal", w.cfg.Loop.SignalPrice,
		"retries", w.cfg.Retries,
	)

	for {
		if ctx.Err() != nil {
			return w.terminate(&terminalError{reason: "shutdown requested"})
		}

		err := w.tick(ctx)

		var term *terminalError
		switch {
		case err == nil:
			w.sleep(ctx, w.nextDelay())
		case errors.As(err, &term):
			return w.terminate(term)
		default:
			// Transient: worker state is unchanged, the next tick re-evaluates.
			w.log.Warn("tick failed", "state", w.state.String(), "err", err)
			w.sleep(ctx, w.cfg.SleepAfterError)
		}
	}
}

// tick runs one iteration of the decision loop.
func (w *Worker) tick(ctx context.Context) error {
	snap, err := w.cache.Read()
	if err != nil {
		return fmt.Errorf("reading market state: %w", err)
	}

	switch w.state {
	case StateUninitialized:
		w.pendingSide = w.cfg.InitialSide
		w.plan = &w.cfg.Initial
		w.attempts = 0
		w.state = StateAwaitingSignal
		w.log.Info("worker initialized", "side", w.pendingSide, "signal", w.plan.SignalPrice)
		return w.evaluateSignal(ctx, snap)

	case StateAwaitingSignal:
		if err := w.evaluateSignal(ctx, snap); err != nil {
			return err
		}
		w.statusUpdate(snap)
		return nil

	case StateOrderInFlight:
		if err := w.checkOrder(ctx, snap); err != nil {
			return err
		}
		w.statusUpdate(snap)
		return nil

	case StateTerminated:
		return &terminalError{reason: "tick on terminated worker", failure: true}
	}
	return fmt.Errorf("unknown state %d", w.state)
}

// evaluateSignal checks the level trigger against the latest cached price
// and submits the next order when it fires. No tick for the symbol yet means
// the ingest path has not seen a trade; just wait.
func (w *Worker) evaluateSignal(ctx context.Context, snap *cache.Snapshot) error {
	tick := snap.Price(w.cfg.Symbol)
	if tick == nil {
		w.log.Debug("no price yet")
		return nil
	}
	if !Triggered(w.pendingSide, w.plan.SignalPrice, tick.Price) {
		return nil
	}
	return w.submit(ctx, tick.Price)
}

// submit builds and places the next order. Escalation to jump prices happens
// on the single attempt after the nominal retry budget is spent.
func (w *Worker) submit(ctx context.Context, lastPrice decimal.Decimal) error {
	prices := w.plan.Prices[w.pendingSide]
	jumped := false
	if w.plan.HasJump() && w.attempts == 1+w.cfg.Retries {
		prices = w.plan.Jump[w.pendingSide]
		jumped = true
	}

	req := gateway.OrderRequest{
		Symbol:        w.cfg.Symbol,
		Qty:           w.cfg.Quantity,
		Side:          w.pendingSide,
		Type:          w.plan.OrderType,
		TimeInForce:   w.cfg.TimeInForce,
		ClientOrderID: NewClientOrderID(w.plan.Phase, w.cfg.Symbol),
		LimitPrice:    prices.Limit,
		StopPrice:     prices.Stop,
		TakeProfit:    prices.TakeProfit,
		StopLoss:      prices.StopLoss,
	}

	w.attempts++
	w.log.Info("submitting order",
		"side", req.Side,
		"type", req.Type,
		"phase", w.plan.Phase,
		"attempt", w.attempts,
		"jump", jumped,
		"last_price", lastPrice,
		"client_order_id", req.ClientOrderID,
	)

	order, err := w.gateway.SubmitOrder(ctx, req)
	if err != nil {
		return w.failedAttempt(ctx, req.ClientOrderID, err)
	}

	w.lastOrderID = order.ID
	w.state = StateOrderInFlight
	w.settling = true
	w.journalEvent(ctx, journal.Entry{
		Symbol:        w.cfg.Symbol,
		Phase:         w.plan.Phase,
		Side:          w.pendingSide,
		Event:         journal.EventSubmitted,
		OrderID:       order.ID,
		ClientOrderID: req.ClientOrderID,
		Price:         prices.Limit,
	})
	return nil
}

// checkOrder polls the cached replica of the in-flight order and advances
// the state machine once it resolves. A missing replica means the ingest
// path lags; wait for the next tick.
func (w *Worker) checkOrder(ctx context.Context, snap *cache.Snapshot) error {
	rec := snap.Order(w.lastOrderID)
	if rec == nil {
		w.log.Debug("order not in cache yet", "order_id", w.lastOrderID)
		return nil
	}

	if w.plan.OrderType == domain.OrderTypeBracket {
		return w.checkBracket(ctx, rec)
	}

	switch rec.Status {
	case domain.OrderStatusFilled:
		return w.handleFill(ctx, rec, rec.FilledAvgPrice)
	case domain.OrderStatusRejected, domain.OrderStatusCanceled:
		return w.handleVoid(ctx, rec)
	default:
		return nil
	}
}

// checkBracket interprets a bracket order's resolution: a take-profit fill
// is the strategy's exit condition and terminal for the run, while a
// stop-loss fill continues the loop like a normal fill.
func (w *Worker) checkBracket(ctx context.Context, rec *domain.OrderRecord) error {
	if rec.Status == domain.OrderStatusRejected || rec.Status == domain.OrderStatusCanceled {
		return w.handleVoid(ctx, rec)
	}

	tp := rec.Leg(domain.OrderTypeLimit)
	if tp != nil && tp.Status == domain.OrderStatusFilled {
		price := "unknown"
		if tp.FilledAvgPrice != nil {
			price = tp.FilledAvgPrice.String()
		}
		w.log.Info("take-profit leg filled", "order_id", rec.ID, "price", price)
		return &terminalError{reason: "take-profit filled at " + price}
	}

	sl := rec.Leg(domain.OrderTypeStop)
	if sl != nil && sl.Status == domain.OrderStatusFilled {
		return w.handleFill(ctx, rec, sl.FilledAvgPrice)
	}
	return nil
}

// handleFill advances the loop: flip the side, switch to the loop-phase
// plan, and go back to waiting for a signal.
func (w *Worker) handleFill(ctx context.Context, rec *domain.OrderRecord, fillPrice *decimal.Decimal) error {
	price := "unknown"
	if fillPrice != nil {
		price = fillPrice.String()
	}
	w.log.Info("order filled",
		"order_id", rec.ID,
		"side", w.pendingSide,
		"fill_price", price,
		"phase", w.plan.Phase,
	)
	w.journalEvent(ctx, journal.Entry{
		Symbol:        w.cfg.Symbol,
		Phase:         w.plan.Phase,
		Side:          w.pendingSide,
		Event:         journal.EventFilled,
		OrderID:       rec.ID,
		ClientOrderID: rec.ClientOrderID,
		Price:         fillPrice,
	})
	w.alertNow("order filled", fmt.Sprintf("%s %s filled at %s", w.cfg.Symbol, w.pendingSide, price))

	w.pendingSide = w.pendingSide.Opposite()
	w.plan = &w.cfg.Loop
	w.lastOrderID = ""
	w.attempts = 0
	w.state = StateAwaitingSignal
	return nil
}

// handleVoid treats a rejected or canceled order as a void attempt, not
// progress: cancel any other resting orders for the symbol and return to
// waiting without flipping the side.
func (w *Worker) handleVoid(ctx context.Context, rec *domain.OrderRecord) error {
	w.log.Warn("order voided",
		"order_id", rec.ID,
		"status", rec.Status,
		"side", w.pendingSide,
		"phase", w.plan.Phase,
		"attempt", w.attempts,
	)

	event := journal.EventCanceled
	if rec.Status == domain.OrderStatusRejected {
		event = journal.EventRejected
		w.alertNow("order rejected", fmt.Sprintf("%s %s order %s rejected", w.cfg.Symbol, w.pendingSide, rec.ID))
	}
	w.journalEvent(ctx, journal.Entry{
		Symbol:        w.cfg.Symbol,
		Phase:         w.plan.Phase,
		Side:          w.pendingSide,
		Event:         event,
		OrderID:       rec.ID,
		ClientOrderID: rec.ClientOrderID,
	})

	if err := w.cancelResting(ctx); err != nil {
		w.log.Warn("canceling resting orders", "err", err)
	}

	w.lastOrderID = ""
	w.state = StateAwaitingSignal
	return w.checkBudget()
}

// failedAttempt handles a submission that never produced a working order:
// rejection and transport failure both consume one attempt from the budget.
func (w *Worker) failedAttempt(ctx context.Context, clientOrderID string, err error) error {
	if gateway.IsRejection(err) {
		w.log.Warn("submission rejected", "attempt", w.attempts, "err", err)
		w.alertNow("order rejected", fmt.Sprintf("%s %s submission rejected: %v", w.cfg.Symbol, w.pendingSide, err))
	} else {
		w.log.Warn("submission failed", "attempt", w.attempts, "err", err)
	}
	w.journalEvent(ctx, journal.Entry{
		Symbol:        w.cfg.Symbol,
		Phase:         w.plan.Phase,
		Side:          w.pendingSide,
		Event:         journal.EventRejected,
		ClientOrderID: clientOrderID,
		Detail:        err.Error(),
	})
	return w.checkBudget()
}

// checkBudget decides whether the current signal cycle may try again. The
// nominal budget is the initial attempt plus the configured retries; a
// configured jump adds exactly one more.
func (w *Worker) checkBudget() error {
	allowed := 1 + w.cfg.Retries
	if w.plan.HasJump() {
		allowed++
	}
	if w.attempts >= allowed {
		return &terminalError{
			reason:  fmt.Sprintf("retry budget exhausted after %d attempts", w.attempts),
			failure: true,
		}
	}
	return nil
}

// cancelResting cancels every open order for the worker's symbol.
func (w *Worker) cancelResting(ctx context.Context) error {
	open, err := w.gateway.ListOpenOrders(ctx, w.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("listing open orders: %w", err)
	}
	for i := range open {
		if err := w.gateway.CancelOrder(ctx, open[i].ID); err != nil {
			return fmt.Errorf("canceling order %s: %w", open[i].ID, err)
		}
	}
	return nil
}

// terminate runs the termination sequence exactly once: cancel all open
// orders, alert if enabled, stop for good. It uses a fresh context so
// cleanup still runs when the run context is already cancelled.
func (w *Worker) terminate(term *terminalError) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	w.log.Info("terminating", "reason", term.reason)
	w.state = StateTerminated

	if err := w.gateway.CancelAll(ctx); err != nil {
		w.log.Error("canceling all orders during termination", "err", err)
	}

	w.journalEvent(ctx, journal.Entry{
		Symbol: w.cfg.Symbol,
		Phase:  w.currentPhase(),
		Side:   w.pendingSide,
		Event:  journal.EventTerminated,
		Detail: term.reason,
	})
	w.alertNow("worker terminated", fmt.Sprintf("%s worker stopped: %s", w.cfg.Symbol, term.reason))

	w.log.Info("worker stopped", "reason", term.reason, "failure", term.failure)
	if term.failure {
		return term
	}
	return nil
}

// nextDelay returns how long to wait before the next tick, consuming the
// post-submission settle delay when one is pending.
func (w *Worker) nextDelay() time.Duration {
	if w.settling {
		w.settling = false
		return w.cfg.SettleDelay
	}
	return w.cfg.UpdateInterval
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (w *Worker) currentPhase() domain.Phase {
	if w.plan == nil {
		return domain.PhaseInitial
	}
	return w.plan.Phase
}

// alertNow sends an event alert immediately, bypassing the status throttle.
func (w *Worker) alertNow(subject, body string) {
	if !w.cfg.Alerts.Enabled || w.sink == nil {
		return
	}
	w.throttle.Allow(true)
	if err := w.sink.Send(w.cfg.Alerts.From, w.cfg.Alerts.To, subject, body); err != nil {
		w.log.Warn("sending alert", "subject", subject, "err", err)
	}
}

// statusUpdate sends the periodic status alert, subject to the throttle.
func (w *Worker) statusUpdate(snap *cache.Snapshot) {
	if !w.cfg.Alerts.Enabled || w.sink == nil {
		return
	}
	if !w.throttle.Allow(false) {
		return
	}

	price := "n/a"
	if tick := snap.Price(w.cfg.Symbol); tick != nil {
		price = tick.Price.String()
	}
	body := fmt.Sprintf("%s: state=%s pending_side=%s signal=%s last_price=%s",
		w.cfg.Symbol, w.state, w.pendingSide, w.plan.SignalPrice, price)
	if err := w.sink.Send(w.cfg.Alerts.From, w.cfg.Alerts.To, "trader status", body); err != nil {
		w.log.Warn("sending status alert", "err", err)
	}
}

// journalEvent records an entry, tolerating a missing or failing journal.
func (w *Worker) journalEvent(ctx context.Context, e journal.Entry) {
	if w.journal == nil {
		return
	}
	if err := w.journal.Record(ctx, e); err != nil {
		w.log.Warn("journaling event", "event", e.Event, "err", err)
	}
}
