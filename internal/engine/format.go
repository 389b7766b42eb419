package engine

import (
	"fmt"
	"strings"

	"whatsapp-options-agent/internal/command"
	"whatsapp-options-agent/internal/types"
)

const replyUnauthorized = "❌ Unauthorised number."

const replyUsage = "⚠️ Unrecognised command.\n\n" +
	"*Place order:*\nBUY NIFTY 24000 CE 50\nSELL BANKNIFTY 52000 PE 25\n\n" +
	"*Square off:*\nSQUAREOFF                   ← close all positions\n" +
	"SQUAREOFF NIFTY 24000 CE    ← close specific leg\n\n" +
	"*Status:*\nSTATUS"

type legResult struct {
	order   types.ClosingOrder
	orderID string
	err     error
}

func formatPositions(positions []types.Position) string {
	if len(positions) == 0 {
		return "📊 No open positions."
	}
	lines := []string{"📊 *Open Positions*"}
	for _, p := range positions {
		lines = append(lines, fmt.Sprintf("• %s: %d qty @ avg ₹%s", p.TradingSymbol, p.NetQty, p.AveragePrice.StringFixed(2)))
	}
	return strings.Join(lines, "\n")
}

func formatSquareoffReport(results []legResult) string {
	lines := []string{"🔴 *Squareoff All — Results:*"}
	for _, r := range results {
		if r.err != nil {
			lines = append(lines, fmt.Sprintf("❌ %s %s %d → FAILED: %s", r.order.TradingSymbol, r.order.Side, r.order.Qty, r.err))
			continue
		}
		lines = append(lines, fmt.Sprintf("✅ %s %s %d → OK (order %s)", r.order.TradingSymbol, r.order.Side, r.order.Qty, r.orderID))
	}
	return strings.Join(lines, "\n")
}

func formatLegClosed(co types.ClosingOrder, orderID string) string {
	return fmt.Sprintf("✅ Position closed!\nOrder ID: %s\n%s %d × %s @ MARKET",
		orderID, co.Side, co.Qty, co.TradingSymbol)
}

func formatOrderPlaced(ord command.OpenOrder, resp types.OrderResponse) string {
	return fmt.Sprintf("✅ Order placed!\nOrder ID: %s\n%s %s %d %s × %d\nStatus: %s",
		resp.OrderID, ord.Side, ord.Symbol, ord.Strike, ord.OptionType, ord.Qty, resp.Status)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
