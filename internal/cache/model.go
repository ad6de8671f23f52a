// Package cache implements the shared market-state cache: a small service
// holding the latest price per symbol and the latest status per order id,
// fed by a single ingesting connection and read by trading workers over a
// strict request/reply protocol.
package cache

import (
	"sync"
	"time"

	"looptrader/internal/domain"
)

// Snapshot is the full state served by a read: the two maps plus the time of
// the last accepted write.
type Snapshot struct {
	LastUpdated time.Time                     `json:"last_updated"`
	Orders      map[string]domain.OrderRecord `json:"orders"`
	Prices      map[string]domain.PriceTick   `json:"prices"`
}

// Order returns the cached record for the given order id, or nil when the
// replica has not seen it yet.
func (s *Snapshot) Order(id string) *domain.OrderRecord {
	if o, ok := s.Orders[id]; ok {
		return &o
	}
	return nil
}

// Price returns the cached tick for the given symbol, or nil when no tick
// has been ingested yet.
func (s *Snapshot) Price(symbol string) *domain.PriceTick {
	if p, ok := s.Prices[symbol]; ok {
		return &p
	}
	return nil
}

// Model holds the cache state. All mutation goes through ApplyPrice and
// ApplyOrder; both enforce per-key monotonicity so a late-arriving stale
// update never overwrites a newer one.
type Model struct {
	mu          sync.Mutex
	lastUpdated time.Time
	orders      map[string]domain.OrderRecord
	prices      map[string]domain.PriceTick
	now         func() time.Time
}

// NewModel creates an empty cache model.
func NewModel() *Model {
	return &Model{
		orders: make(map[string]domain.OrderRecord),
		prices: make(map[string]domain.PriceTick),
		now:    time.Now,
	}
}

// ApplyPrice upserts the tick for its symbol. A tick observed strictly
// earlier than the cached one is dropped. Returns whether the tick was
// accepted.
func (m *Model) ApplyPrice(tick domain.PriceTick) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.prices[tick.Symbol]; ok && tick.ObservedAt.Before(cur.ObservedAt) {
		return false
	}
	m.prices[tick.Symbol] = tick
	m.lastUpdated = m.now()
	return true
}

// ApplyOrder upserts the record for its order id. A record updated strictly
// earlier than the cached one is dropped. Returns whether the record was
// accepted.
func (m *Model) ApplyOrder(order domain.OrderRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.orders[order.ID]; ok && order.UpdatedAt.Before(cur.UpdatedAt) {
		return false
	}
	m.orders[order.ID] = order
	m.lastUpdated = m.now()
	return true
}

// Snapshot returns a deep copy of the current state. It never blocks waiting
// for fresher data; staleness is bounded by the ingest frequency.
func (m *Model) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := &Snapshot{
		LastUpdated: m.lastUpdated,
		Orders:      make(map[string]domain.OrderRecord, len(m.orders)),
		Prices:      make(map[string]domain.PriceTick, len(m.prices)),
	}
	for id, o := range m.orders {
		o.Legs = append([]domain.OrderRecord(nil), o.Legs...)
		snap.Orders[id] = o
	}
	for sym, p := range m.prices {
		snap.Prices[sym] = p
	}
	return snap
}
