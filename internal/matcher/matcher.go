// Package matcher maps close intents onto the broker's open positions
// and derives the closing order for each. Both operations are pure over
// a snapshot: callers re-fetch positions per command because the book
// mutates outside this process.
package matcher

import (
	"fmt"
	"strconv"
	"strings"

	"whatsapp-options-agent/internal/types"
)

// NotFoundError means the caller asked to close a specific leg and no
// open position matches it. Distinct from "already flat": a flat leg is
// skipped silently, a missing leg is a user error.
type NotFoundError struct {
	Symbol     string
	Strike     int
	OptionType string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("No open position found for %s %d %s", e.Symbol, e.Strike, e.OptionType)
}

// MatchAll emits one closing order per position with open quantity.
// Flat positions are skipped. Deterministic: same snapshot, same orders.
func MatchAll(positions []types.Position) []types.ClosingOrder {
	orders := make([]types.ClosingOrder, 0, len(positions))
	for _, p := range positions {
		if p.Flat() {
			continue
		}
		orders = append(orders, closeOrder(p))
	}
	return orders
}

// MatchLeg finds the open position for symbol/strike/optionType and
// derives its closing order.
//
// The broker's trading symbol embeds an expiry segment between the
// index name and the strike+type suffix (NIFTY24DEC24000CE) that this
// system does not track, so matching is prefix+suffix and ignores the
// middle. When several expiries of the same strike and type are open
// the first match in snapshot order is taken.
func MatchLeg(positions []types.Position, symbol string, strike int, optionType string) (types.ClosingOrder, error) {
	suffix := strconv.Itoa(strike) + optionType
	for _, p := range positions {
		if p.Flat() {
			continue
		}
		if strings.HasPrefix(p.TradingSymbol, symbol) && strings.HasSuffix(p.TradingSymbol, suffix) {
			return closeOrder(p), nil
		}
	}
	return types.ClosingOrder{}, &NotFoundError{Symbol: symbol, Strike: strike, OptionType: optionType}
}

// Closing a long means selling it; closing a short means buying it back.
func closeOrder(p types.Position) types.ClosingOrder {
	side := types.SideSell
	qty := p.NetQty
	if p.NetQty < 0 {
		side = types.SideBuy
		qty = -p.NetQty
	}
	return types.ClosingOrder{
		TradingSymbol: p.TradingSymbol,
		SymbolToken:   p.SymbolToken,
		Side:          side,
		Qty:           qty,
		Exchange:      p.Exchange,
		ProductType:   p.ProductType,
	}
}
