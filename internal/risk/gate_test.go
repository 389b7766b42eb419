package risk

import (
	"context"
	"errors"
	"strings"
	"testing"

	"whatsapp-options-agent/internal/command"

	"github.com/shopspring/decimal"
)

func testGate() *Gate {
	return NewGate(Policy{
		MaxLots:       100,
		MaxOrderValue: decimal.NewFromInt(100000),
	})
}

func order(symbol string, strike, qty int) command.OpenOrder {
	return command.OpenOrder{Side: "BUY", Symbol: symbol, Strike: strike, OptionType: "CE", Qty: qty}
}

func TestCheckAccepts(t *testing.T) {
	// 1 lot x 50 units x ₹150 = ₹7,500, well inside the bound.
	if err := testGate().Check(context.Background(), order("NIFTY", 24000, 1)); err != nil {
		t.Fatalf("Check = %v, want nil", err)
	}
}

func TestCheckRejections(t *testing.T) {
	cases := []struct {
		name   string
		ord    command.OpenOrder
		reason string
	}{
		{"zero qty", order("NIFTY", 24000, 0), "Quantity must be positive"},
		{"over max lots", order("NIFTY", 24000, 101), "exceeds max allowed 100 lots"},
		{"odd strike", order("NIFTY", 24030, 1), "valid options strike"},
		{"order value", order("BANKNIFTY", 52000, 90), "Estimated order value"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := testGate().Check(context.Background(), tc.ord)
			var rej *Rejection
			if !errors.As(err, &rej) {
				t.Fatalf("Check = %v, want *Rejection", err)
			}
			if !strings.Contains(rej.Reason, tc.reason) {
				t.Errorf("reason %q does not contain %q", rej.Reason, tc.reason)
			}
		})
	}
}

// Checks run in order: an order that is both oversized and has a bad
// strike reports the lot bound, not the strike.
func TestCheckOrder(t *testing.T) {
	err := testGate().Check(context.Background(), order("NIFTY", 24030, 101))
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("Check = %v, want *Rejection", err)
	}
	if !strings.Contains(rej.Reason, "exceeds max allowed") {
		t.Errorf("reason %q, want the lot bound to win", rej.Reason)
	}
}

// Symbols outside the reference table fall back to lot 50, premium 200:
// 11 lots x 50 x 200 = 110,000 > 100,000.
func TestCheckUnknownSymbolFallback(t *testing.T) {
	err := testGate().Check(context.Background(), order("NIFTYNXT50", 24000, 11))
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("Check = %v, want *Rejection", err)
	}
	if err := testGate().Check(context.Background(), order("NIFTYNXT50", 24000, 10)); err != nil {
		t.Fatalf("Check = %v, want nil at the fallback bound", err)
	}
}
