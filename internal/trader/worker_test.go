package trader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"looptrader/internal/cache"
	"looptrader/internal/config"
	"looptrader/internal/domain"
	"looptrader/internal/gateway"
	"looptrader/internal/journal"
)

// ---
// fakes

type fakeGateway struct {
	mu             sync.Mutex
	submitted      []gateway.OrderRequest
	submitErr      error
	open           []domain.OrderRecord
	canceled       []string
	cancelAllCalls int
}

var _ gateway.Gateway = (*fakeGateway)(nil)

func (f *fakeGateway) SubmitOrder(ctx context.Context, req gateway.OrderRequest) (*domain.OrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return &domain.OrderRecord{
		ID:            fmt.Sprintf("ord-%d", len(f.submitted)),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Status:        domain.OrderStatusNew,
	}, nil
}

func (f *fakeGateway) GetOrder(ctx context.Context, id string) (*domain.OrderRecord, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) ListOpenOrders(ctx context.Context, symbol string) ([]domain.OrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OrderRecord(nil), f.open...), nil
}

func (f *fakeGateway) CancelOrder(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakeGateway) CancelAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelAllCalls++
	return nil
}

func (f *fakeGateway) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	return nil, nil
}

func (f *fakeGateway) GetAccount(ctx context.Context) (*domain.AccountInfo, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) GetClock(ctx context.Context) (*domain.MarketClock, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func (f *fakeGateway) submission(i int) gateway.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted[i]
}

func (f *fakeGateway) cancelAlls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelAllCalls
}

func (f *fakeGateway) lastOrderID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("ord-%d", len(f.submitted))
}

type fakeCache struct {
	mu     sync.Mutex
	prices map[string]domain.PriceTick
	orders map[string]domain.OrderRecord
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		prices: make(map[string]domain.PriceTick),
		orders: make(map[string]domain.OrderRecord),
	}
}

func (f *fakeCache) Read() (*cache.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := &cache.Snapshot{
		Prices: make(map[string]domain.PriceTick, len(f.prices)),
		Orders: make(map[string]domain.OrderRecord, len(f.orders)),
	}
	for k, v := range f.prices {
		snap.Prices[k] = v
	}
	for k, v := range f.orders {
		snap.Orders[k] = v
	}
	return snap, nil
}

func (f *fakeCache) setPrice(symbol, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = domain.PriceTick{
		Symbol:     symbol,
		Price:      dec(price),
		ObservedAt: time.Now(),
	}
}

func (f *fakeCache) setOrder(rec domain.OrderRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[rec.ID] = rec
}

// ---
// helpers

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func limitStrategy(retries int, jumpSpread float64) config.StrategyConfig {
	return config.StrategyConfig{
		Symbol:      "AAPL",
		Quantity:    10,
		InitialSide: "buy",
		TimeInForce: "day",
		Retries:     retries,
		Initial: config.PhaseParams{
			SignalPrice: 100,
			OrderType:   "limit",
			LimitSpread: 0.5,
		},
		Loop: config.PhaseParams{
			SignalPrice: 100,
			OrderType:   "limit",
			LimitSpread: 0.5,
			JumpSpread:  jumpSpread,
		},
	}
}

func testWorker(t *testing.T, s config.StrategyConfig, gw *fakeGateway, fc *fakeCache) *Worker {
	t.Helper()
	trading := config.Trading{
		UpdateInterval:  config.Duration(time.Millisecond),
		SleepAfterError: config.Duration(time.Millisecond),
		SettleDelay:     config.Duration(time.Millisecond),
	}
	cfg := BuildConfig(s, trading, config.Alerting{})
	return NewWorker(cfg, gw, fc, nil, nil, discardLogger())
}

func filledOrder(id, symbol, price string) domain.OrderRecord {
	p := dec(price)
	return domain.OrderRecord{
		ID:             id,
		Symbol:         symbol,
		Status:         domain.OrderStatusFilled,
		FilledAvgPrice: &p,
		UpdatedAt:      time.Now(),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ---
// tests

func TestWorkerSubmitsOnSignal(t *testing.T) {
	gw := &fakeGateway{}
	fc := newFakeCache()
	w := testWorker(t, limitStrategy(0, 0), gw, fc)
	ctx := context.Background()

	// No price yet: nothing happens.
	if err := w.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := gw.submitCount(); got != 0 {
		t.Fatalf("submissions before any price = %d, want 0", got)
	}

	// Prices above the buy level: still nothing.
	for _, price := range []string{"105", "102"} {
		fc.setPrice("AAPL", price)
		if err := w.tick(ctx); err != nil {
			t.Fatalf("tick: %v", err)
		}
		if got := gw.submitCount(); got != 0 {
			t.Fatalf("submissions at price %s = %d, want 0", price, got)
		}
	}

	// Price at or below the level triggers.
	fc.setPrice("AAPL", "99")
	if err := w.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := gw.submitCount(); got != 1 {
		t.Fatalf("submissions at price 99 = %d, want 1", got)
	}
	if w.State() != StateOrderInFlight {
		t.Fatalf("state = %s, want %s", w.State(), StateOrderInFlight)
	}

	req := gw.submission(0)
	if req.Side != domain.SideBuy {
		t.Errorf("side = %s, want buy", req.Side)
	}
	if req.LimitPrice == nil || !req.LimitPrice.Equal(dec("99.5")) {
		t.Errorf("limit price = %v, want 99.5", req.LimitPrice)
	}
	if req.ClientOrderID == "" {
		t.Error("client order ID is empty")
	}
	if phase, ok := PhaseOf(req.ClientOrderID); !ok || phase != domain.PhaseInitial {
		t.Errorf("client order ID %q does not carry the initial phase tag", req.ClientOrderID)
	}
}

func TestWorkerSingleOrderInFlight(t *testing.T) {
	gw := &fakeGateway{}
	fc := newFakeCache()
	w := testWorker(t, limitStrategy(0, 0), gw, fc)
	ctx := context.Background()

	fc.setPrice("AAPL", "99")
	if err := w.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := gw.submitCount(); got != 1 {
		t.Fatalf("submissions = %d, want 1", got)
	}

	// The signal keeps firing while the order is open; no second order.
	for i := 0; i < 5; i++ {
		if err := w.tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if got := gw.submitCount(); got != 1 {
		t.Fatalf("submissions with order in flight = %d, want 1", got)
	}
}

func TestWorkerAlternatesSides(t *testing.T) {
	gw := &fakeGateway{}
	fc := newFakeCache()
	w := testWorker(t, limitStrategy(0, 0), gw, fc)
	ctx := context.Background()

	// Price pinned to the shared level triggers both sides.
	fc.setPrice("AAPL", "100")

	wantSides := []domain.Side{
		domain.SideBuy, domain.SideSell, domain.SideBuy, domain.SideSell, domain.SideBuy,
	}
	for i, want := range wantSides {
		if err := w.tick(ctx); err != nil {
			t.Fatalf("cycle %d submit tick: %v", i, err)
		}
		if got := gw.submitCount(); got != i+1 {
			t.Fatalf("cycle %d: submissions = %d, want %d", i, got, i+1)
		}
		if got := gw.submission(i).Side; got != want {
			t.Fatalf("cycle %d: side = %s, want %s", i, got, want)
		}

		fc.setOrder(filledOrder(gw.lastOrderID(), "AAPL", "100"))
		if err := w.tick(ctx); err != nil {
			t.Fatalf("cycle %d fill tick: %v", i, err)
		}
	}

	// Loop-phase fills must switch the client order ID tag.
	if phase, _ := PhaseOf(gw.submission(1).ClientOrderID); phase != domain.PhaseLoop {
		t.Errorf("second submission phase = %s, want loop", phase)
	}
	if w.PendingSide() != domain.SideSell {
		t.Errorf("pending side after 5 fills = %s, want sell", w.PendingSide())
	}
}

func TestWorkerRetryBudgetExhausted(t *testing.T) {
	gw := &fakeGateway{submitErr: errors.New("gateway unreachable")}
	fc := newFakeCache()
	fc.setPrice("AAPL", "99")
	w := testWorker(t, limitStrategy(2, 0), gw, fc)

	ctx := context.Background()
	err := w.Run(ctx)
	if err == nil {
		t.Fatal("Run returned nil, want retry exhaustion error")
	}
	var term *terminalError
	if !errors.As(err, &term) {
		t.Fatalf("Run error %v is not terminal", err)
	}
	if !term.failure {
		t.Error("retry exhaustion should be a failure exit")
	}
	if w.State() != StateTerminated {
		t.Errorf("state = %s, want %s", w.State(), StateTerminated)
	}
	if got := gw.cancelAlls(); got != 1 {
		t.Errorf("CancelAll calls = %d, want exactly 1", got)
	}
	// retries=2 means the initial attempt plus two more, no jump configured.
	if w.attempts != 3 {
		t.Errorf("attempts = %d, want 3", w.attempts)
	}
}

func TestWorkerJumpEscalation(t *testing.T) {
	gw := &fakeGateway{}
	fc := newFakeCache()
	w := testWorker(t, limitStrategy(1, 2), gw, fc)
	ctx := context.Background()

	// Get past the initial phase so the jump-enabled loop plan applies.
	fc.setPrice("AAPL", "100")
	if err := w.tick(ctx); err != nil {
		t.Fatalf("initial submit: %v", err)
	}
	fc.setOrder(filledOrder(gw.lastOrderID(), "AAPL", "100"))
	if err := w.tick(ctx); err != nil {
		t.Fatalf("initial fill: %v", err)
	}
	if w.PendingSide() != domain.SideSell {
		t.Fatalf("pending side = %s, want sell", w.PendingSide())
	}

	void := func() {
		rec := domain.OrderRecord{
			ID:        gw.lastOrderID(),
			Symbol:    "AAPL",
			Status:    domain.OrderStatusCanceled,
			UpdatedAt: time.Now(),
		}
		fc.setOrder(rec)
	}

	// Attempts 1 and 2 use the nominal passive price: sell limit 100.5.
	for i := 0; i < 2; i++ {
		if err := w.tick(ctx); err != nil {
			t.Fatalf("loop submit %d: %v", i, err)
		}
		req := gw.submission(gw.submitCount() - 1)
		if req.LimitPrice == nil || !req.LimitPrice.Equal(dec("100.5")) {
			t.Fatalf("attempt %d limit = %v, want 100.5", i+1, req.LimitPrice)
		}
		void()
		if err := w.tick(ctx); err != nil {
			t.Fatalf("loop void %d: %v", i, err)
		}
	}

	// The extra attempt crosses the level: sell limit 100-2 = 98.
	if err := w.tick(ctx); err != nil {
		t.Fatalf("jump submit: %v", err)
	}
	req := gw.submission(gw.submitCount() - 1)
	if req.LimitPrice == nil || !req.LimitPrice.Equal(dec("98")) {
		t.Fatalf("jump limit = %v, want 98", req.LimitPrice)
	}

	// The jump attempt is the last one.
	void()
	err := w.tick(ctx)
	var term *terminalError
	if !errors.As(err, &term) {
		t.Fatalf("after failed jump attempt got %v, want terminal error", err)
	}
	if !term.failure {
		t.Error("exhaustion after jump should be a failure exit")
	}
}

func TestWorkerVoidCancelsRestingOrders(t *testing.T) {
	gw := &fakeGateway{}
	fc := newFakeCache()
	w := testWorker(t, limitStrategy(3, 0), gw, fc)
	ctx := context.Background()

	fc.setPrice("AAPL", "99")
	if err := w.tick(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	gw.open = []domain.OrderRecord{{ID: "stray-1", Symbol: "AAPL"}}
	fc.setOrder(domain.OrderRecord{
		ID:        gw.lastOrderID(),
		Symbol:    "AAPL",
		Status:    domain.OrderStatusRejected,
		UpdatedAt: time.Now(),
	})
	if err := w.tick(ctx); err != nil {
		t.Fatalf("void tick: %v", err)
	}

	if len(gw.canceled) != 1 || gw.canceled[0] != "stray-1" {
		t.Errorf("canceled = %v, want [stray-1]", gw.canceled)
	}
	if w.State() != StateAwaitingSignal {
		t.Errorf("state = %s, want %s", w.State(), StateAwaitingSignal)
	}
	if w.PendingSide() != domain.SideBuy {
		t.Errorf("side flipped on void: got %s, want buy", w.PendingSide())
	}
}

func TestWorkerBracketTakeProfitTerminates(t *testing.T) {
	gw := &fakeGateway{}
	fc := newFakeCache()
	fc.setPrice("AAPL", "99")

	s := config.StrategyConfig{
		Symbol:      "AAPL",
		Quantity:    10,
		InitialSide: "buy",
		TimeInForce: "gtc",
		Initial: config.PhaseParams{
			SignalPrice:      100,
			OrderType:        "bracket",
			LimitSpread:      0.5,
			TakeProfitSpread: 3,
			StopLossSpread:   2,
		},
		Loop: config.PhaseParams{
			SignalPrice:      100,
			OrderType:        "bracket",
			LimitSpread:      0.5,
			TakeProfitSpread: 3,
			StopLossSpread:   2,
		},
	}
	w := testWorker(t, s, gw, fc)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, "bracket submission", func() bool { return gw.submitCount() == 1 })

	req := gw.submission(0)
	if req.TakeProfit == nil || !req.TakeProfit.Equal(dec("103")) {
		t.Errorf("take-profit = %v, want 103", req.TakeProfit)
	}
	if req.StopLoss == nil || !req.StopLoss.Equal(dec("98")) {
		t.Errorf("stop-loss = %v, want 98", req.StopLoss)
	}

	tpPrice := dec("103")
	fc.setOrder(domain.OrderRecord{
		ID:        gw.lastOrderID(),
		Symbol:    "AAPL",
		Status:    domain.OrderStatusFilled,
		UpdatedAt: time.Now(),
		Legs: []domain.OrderRecord{
			{ID: "tp-leg", Type: domain.OrderTypeLimit, Status: domain.OrderStatusFilled, FilledAvgPrice: &tpPrice},
			{ID: "sl-leg", Type: domain.OrderTypeStop, Status: domain.OrderStatusNew},
		},
	})

	if err := <-done; err != nil {
		t.Fatalf("Run after take-profit fill = %v, want nil", err)
	}
	if w.State() != StateTerminated {
		t.Errorf("state = %s, want %s", w.State(), StateTerminated)
	}
	if w.PendingSide() != domain.SideBuy {
		t.Errorf("pending side flipped on take-profit: got %s, want buy", w.PendingSide())
	}
	if got := gw.submitCount(); got != 1 {
		t.Errorf("submissions = %d, want 1 (no loop after take-profit)", got)
	}
	if got := gw.cancelAlls(); got != 1 {
		t.Errorf("CancelAll calls = %d, want 1", got)
	}
}

func TestWorkerShutdownCancelsAll(t *testing.T) {
	gw := &fakeGateway{}
	fc := newFakeCache()
	w := testWorker(t, limitStrategy(0, 0), gw, fc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run after shutdown = %v, want nil", err)
	}
	if w.State() != StateTerminated {
		t.Errorf("state = %s, want %s", w.State(), StateTerminated)
	}
	if got := gw.cancelAlls(); got != 1 {
		t.Errorf("CancelAll calls = %d, want 1", got)
	}
}

func TestWorkerJournalsFailedSubmission(t *testing.T) {
	jnl, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("opening journal: %v", err)
	}
	defer jnl.Close()

	gw := &fakeGateway{submitErr: &gateway.RejectionError{Code: 403, Message: "insufficient buying power"}}
	fc := newFakeCache()
	fc.setPrice("AAPL", "99")

	trading := config.Trading{
		UpdateInterval:  config.Duration(time.Millisecond),
		SleepAfterError: config.Duration(time.Millisecond),
		SettleDelay:     config.Duration(time.Millisecond),
	}
	cfg := BuildConfig(limitStrategy(1, 0), trading, config.Alerting{})
	w := NewWorker(cfg, gw, fc, nil, jnl, discardLogger())

	ctx := context.Background()
	if err := w.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	entries, err := jnl.Entries(ctx, "AAPL", 10)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Event != journal.EventRejected {
		t.Errorf("event = %s, want rejected", e.Event)
	}
	if e.ClientOrderID == "" {
		t.Error("journal entry lost the client order id")
	}
	if e.Detail == "" {
		t.Error("journal entry lost the rejection detail")
	}
}
