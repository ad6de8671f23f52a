package trader

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"looptrader/internal/domain"
)

// MaxClientOrderIDLen is the brokerage's client order id length limit.
const MaxClientOrderIDLen = 48

// NewClientOrderID generates a unique client-assigned identifier for one
// submission attempt. The phase tag leads so truncation never loses it; the
// tag is set at creation and never mutated, making it the only reliable way
// to classify a historical order.
func NewClientOrderID(phase domain.Phase, symbol string) string {
	id := fmt.Sprintf("%s-%s-%s", phase, symbol, uuid.NewString())
	if len(id) > MaxClientOrderIDLen {
		id = id[:MaxClientOrderIDLen]
	}
	return id
}

// PhaseOf extracts the phase tag from a client order id. The second return
// value is false when the id does not carry a recognised tag.
func PhaseOf(clientOrderID string) (domain.Phase, bool) {
	tag, _, found := strings.Cut(clientOrderID, "-")
	if !found {
		return "", false
	}
	switch domain.Phase(tag) {
	case domain.PhaseInitial:
		return domain.PhaseInitial, true
	case domain.PhaseLoop:
		return domain.PhaseLoop, true
	}
	return "", false
}
