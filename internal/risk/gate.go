// Package risk validates open-order intents against configured bounds
// before they reach the broker. Squareoffs never pass through here:
// closing exposure is risk-reducing by construction, the gate only
// guards the opening of new exposure.
package risk

import (
	"context"
	"fmt"

	"whatsapp-options-agent/internal/command"
	"whatsapp-options-agent/internal/logger"
	"whatsapp-options-agent/internal/refdata"

	"github.com/shopspring/decimal"
)

// Policy is set once at process start and never mutated.
type Policy struct {
	MaxLots       int
	MaxOrderValue decimal.Decimal
}

// Rejection is a structural violation of the policy. Reason is shown
// to the caller verbatim.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

type Gate struct {
	policy Policy
}

func NewGate(p Policy) *Gate {
	return &Gate{policy: p}
}

// Check runs the pre-trade checks in order; the first failure wins and
// returns a *Rejection. Any other error kind never originates here.
func (g *Gate) Check(ctx context.Context, ord command.OpenOrder) error {
	if ord.Qty <= 0 {
		return g.reject(ctx, ord, "Quantity must be positive")
	}

	if ord.Qty > g.policy.MaxLots {
		return g.reject(ctx, ord, fmt.Sprintf(
			"Quantity %d exceeds max allowed %d lots", ord.Qty, g.policy.MaxLots))
	}

	// Index option strikes are issued in round increments.
	if ord.Strike%50 != 0 {
		return g.reject(ctx, ord, fmt.Sprintf(
			"Strike %d doesn't look like a valid options strike (should be multiple of 50)", ord.Strike))
	}

	units := int64(ord.Qty) * int64(refdata.LotSize(ord.Symbol))
	estValue := decimal.NewFromInt(units).Mul(refdata.ApproxPremium(ord.Symbol))
	if estValue.GreaterThan(g.policy.MaxOrderValue) {
		return g.reject(ctx, ord, fmt.Sprintf(
			"Estimated order value ₹%s exceeds limit ₹%s. Reduce qty or raise risk.max_order_value",
			estValue.StringFixed(0), g.policy.MaxOrderValue.StringFixed(0)))
	}

	return nil
}

func (g *Gate) reject(ctx context.Context, ord command.OpenOrder, reason string) error {
	logger.Risk(ctx, ord.Symbol, "ORDER_REJECTED",
		"side", ord.Side,
		"strike", ord.Strike,
		"option_type", ord.OptionType,
		"qty", ord.Qty,
		"reason", reason,
	)
	return &Rejection{Reason: reason}
}
