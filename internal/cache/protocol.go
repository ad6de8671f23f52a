package cache

import (
	"looptrader/internal/domain"
)

// The wire protocol is newline-delimited JSON over a single stream
// connection. Every request is answered with exactly one reply before the
// next request on that connection is read, and the service applies requests
// from all connections one at a time, which totally orders all reads and
// writes in the process group.

// Write kinds.
const (
	KindPrice = "price"
	KindOrder = "order"
)

// Actions.
const (
	ActionRead  = "read"
	ActionWrite = "write"
)

// Request is a single client message: a read, or a write carrying exactly
// one payload matching Kind.
type Request struct {
	Action string              `json:"action"`
	Kind   string              `json:"kind,omitempty"`
	Price  *domain.PriceTick   `json:"price,omitempty"`
	Order  *domain.OrderRecord `json:"order,omitempty"`
}

// Response is the single reply to a request. Writes get Status only; reads
// additionally carry the snapshot.
type Response struct {
	Status   string    `json:"status"` // "ok" or "error"
	Error    string    `json:"error,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}
