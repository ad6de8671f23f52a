package trader

import (
	"strings"
	"testing"

	"looptrader/internal/domain"
)

func TestNewClientOrderID(t *testing.T) {
	id := NewClientOrderID(domain.PhaseLoop, "AAPL")
	if !strings.HasPrefix(id, "loop-AAPL-") {
		t.Errorf("id %q does not start with loop-AAPL-", id)
	}
	if len(id) > MaxClientOrderIDLen {
		t.Errorf("id length = %d, want <= %d", len(id), MaxClientOrderIDLen)
	}
	if id == NewClientOrderID(domain.PhaseLoop, "AAPL") {
		t.Error("consecutive ids are not unique")
	}
}

func TestNewClientOrderIDTruncatesLongSymbols(t *testing.T) {
	id := NewClientOrderID(domain.PhaseInitial, "VERYLONGSYNTHETICSYMBOL")
	if len(id) != MaxClientOrderIDLen {
		t.Errorf("id length = %d, want %d", len(id), MaxClientOrderIDLen)
	}
	if phase, ok := PhaseOf(id); !ok || phase != domain.PhaseInitial {
		t.Errorf("phase tag lost after truncation: %q", id)
	}
}

func TestPhaseOf(t *testing.T) {
	tests := []struct {
		id    string
		phase domain.Phase
		ok    bool
	}{
		{"initial-AAPL-abc", domain.PhaseInitial, true},
		{"loop-MSFT-def", domain.PhaseLoop, true},
		{"unknown-AAPL-abc", "", false},
		{"noseparator", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		phase, ok := PhaseOf(tt.id)
		if phase != tt.phase || ok != tt.ok {
			t.Errorf("PhaseOf(%q) = (%q, %v), want (%q, %v)", tt.id, phase, ok, tt.phase, tt.ok)
		}
	}
}
