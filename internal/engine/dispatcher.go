// Package engine sequences the trade-intent pipeline: allow-list,
// parse, risk gate or position matcher, broker call, reply. Every
// branch produces exactly one reply string and no error ever escapes
// to the transport.
package engine

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"whatsapp-options-agent/internal/command"
	"whatsapp-options-agent/internal/interfaces"
	"whatsapp-options-agent/internal/logger"
	"whatsapp-options-agent/internal/matcher"
	"whatsapp-options-agent/internal/refdata"
	"whatsapp-options-agent/internal/risk"
	"whatsapp-options-agent/internal/store"
	"whatsapp-options-agent/internal/tradelog"
	"whatsapp-options-agent/internal/types"

	"whatsapp-options-agent/internal/broker/angel"
)

type Dispatcher struct {
	cfg     *store.Config
	brk     interfaces.Broker
	gate    *risk.Gate
	allowed map[string]bool

	// One command per sender at a time; commands from different
	// senders may run concurrently. Entries exist only for
	// allow-listed senders, so the map is bounded by the config.
	sendersMu sync.Mutex
	senders   map[string]*sync.Mutex

	now func() time.Time // injectable for tests
}

var _ interfaces.CommandHandler = (*Dispatcher)(nil)

func New(cfg *store.Config, brk interfaces.Broker, gate *risk.Gate) *Dispatcher {
	allowed := make(map[string]bool, len(cfg.AllowedNumbers))
	for _, n := range cfg.AllowedNumbers {
		allowed[n] = true
	}
	return &Dispatcher{
		cfg:     cfg,
		brk:     brk,
		gate:    gate,
		allowed: allowed,
		senders: map[string]*sync.Mutex{},
		now:     time.Now,
	}
}

// Handle processes one inbound command to completion and returns the
// reply to deliver. It never returns an error: broker failures, risk
// rejections and parse misses all become reply text.
func (d *Dispatcher) Handle(ctx context.Context, from, text string) string {
	ctx, span := logger.StartSpan(ctx, "engine.handle_command")
	defer span.End()

	// Allow-list first: nothing about trading leaks to an unknown
	// sender, and no per-sender state is allocated for one.
	if !d.allowed[from] {
		logger.Warn(ctx, "Rejected command from unauthorized number", "from", from)
		return replyUnauthorized
	}

	unlock := d.lockSender(from)
	defer unlock()

	intent := command.Parse(text)
	logger.Command(ctx, from, text)

	var reply string
	switch it := intent.(type) {
	case nil:
		reply = replyUsage
	case command.StatusQuery:
		reply = d.handleStatus(ctx)
	case command.SquareoffAll:
		reply = d.handleSquareoffAll(ctx, from)
	case command.SquareoffLeg:
		reply = d.handleSquareoffLeg(ctx, from, it)
	case command.OpenOrder:
		reply = d.handleOpenOrder(ctx, from, it)
	}

	_ = tradelog.AppendCommand(tradelog.CommandEntry{From: from, Text: text, Outcome: firstLine(reply)})
	return reply
}

func (d *Dispatcher) lockSender(from string) func() {
	d.sendersMu.Lock()
	m, ok := d.senders[from]
	if !ok {
		m = &sync.Mutex{}
		d.senders[from] = m
	}
	d.sendersMu.Unlock()
	m.Lock()
	return m.Unlock
}

func (d *Dispatcher) handleStatus(ctx context.Context) string {
	positions, err := d.brk.Positions(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch positions", err)
		return "❌ Could not fetch positions: " + err.Error()
	}
	return formatPositions(positions)
}

func (d *Dispatcher) handleSquareoffAll(ctx context.Context, from string) string {
	positions, err := d.brk.Positions(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch positions", err)
		return "❌ Squareoff failed: " + err.Error()
	}

	orders := matcher.MatchAll(positions)
	if len(orders) == 0 {
		return "📊 No open positions to square off."
	}

	// One leg failing must not abort the rest; each outcome is
	// collected and reported together.
	results := make([]legResult, 0, len(orders))
	for _, co := range orders {
		resp, err := d.placeClosing(ctx, from, co)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to square off leg", err, "tradingsymbol", co.TradingSymbol)
			results = append(results, legResult{order: co, err: err})
			continue
		}
		results = append(results, legResult{order: co, orderID: resp.OrderID})
	}
	return formatSquareoffReport(results)
}

func (d *Dispatcher) handleSquareoffLeg(ctx context.Context, from string, it command.SquareoffLeg) string {
	positions, err := d.brk.Positions(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch positions", err)
		return "❌ Squareoff failed: " + err.Error()
	}

	co, err := matcher.MatchLeg(positions, it.Symbol, it.Strike, it.OptionType)
	var notFound *matcher.NotFoundError
	if errors.As(err, &notFound) {
		return "⚠️ " + notFound.Error()
	}
	if err != nil {
		return "❌ Squareoff failed: " + err.Error()
	}

	resp, err := d.placeClosing(ctx, from, co)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to square off leg", err, "tradingsymbol", co.TradingSymbol)
		return "❌ Squareoff failed: " + err.Error()
	}
	return formatLegClosed(co, resp.OrderID)
}

func (d *Dispatcher) handleOpenOrder(ctx context.Context, from string, ord command.OpenOrder) string {
	if err := d.gate.Check(ctx, ord); err != nil {
		var rej *risk.Rejection
		if errors.As(err, &rej) {
			return "🚫 Risk check failed: " + rej.Reason
		}
		return "🚫 Risk check failed: " + err.Error()
	}

	tradingSymbol := angel.TradingSymbol(ord.Symbol, ord.Strike, ord.OptionType, d.now())
	token, err := d.brk.ResolveToken(ctx, tradingSymbol)
	if err != nil {
		logger.ErrorWithErr(ctx, "Instrument token resolution failed", err, "tradingsymbol", tradingSymbol)
		if errors.Is(err, angel.ErrUnresolved) {
			return "❌ Order failed: instrument not resolvable for " + tradingSymbol
		}
		return "❌ Order failed: " + err.Error()
	}

	totalQty := ord.Qty * refdata.LotSize(ord.Symbol)
	params := types.OrderParams{
		Variety:         "NORMAL",
		TradingSymbol:   tradingSymbol,
		SymbolToken:     token,
		TransactionType: ord.Side,
		Exchange:        d.cfg.Broker.Exchange,
		OrderType:       "MARKET",
		ProductType:     d.cfg.Broker.ProductType,
		Duration:        "DAY",
		Quantity:        strconv.Itoa(totalQty),
		Price:           "0",
		SquareOff:       "0",
		StopLoss:        "0",
	}

	resp, err := d.brk.PlaceOrder(ctx, params)
	if err != nil {
		logger.ErrorWithErr(ctx, "Order placement failed", err, "tradingsymbol", tradingSymbol)
		_ = tradelog.AppendOrder(tradelog.OrderEntry{
			From: from, TradingSymbol: tradingSymbol, Side: ord.Side, Qty: totalQty, Status: "FAILED: " + err.Error(),
		})
		return "❌ Order failed: " + err.Error()
	}

	_ = tradelog.AppendOrder(tradelog.OrderEntry{
		From: from, TradingSymbol: tradingSymbol, Side: ord.Side, Qty: totalQty, OrderID: resp.OrderID, Status: resp.Status,
	})
	return formatOrderPlaced(ord, resp)
}

func (d *Dispatcher) placeClosing(ctx context.Context, from string, co types.ClosingOrder) (types.OrderResponse, error) {
	exchange := co.Exchange
	if exchange == "" {
		exchange = d.cfg.Broker.Exchange
	}
	productType := co.ProductType
	if productType == "" {
		productType = d.cfg.Broker.ProductType
	}
	params := types.OrderParams{
		Variety:         "NORMAL",
		TradingSymbol:   co.TradingSymbol,
		SymbolToken:     co.SymbolToken,
		TransactionType: co.Side,
		Exchange:        exchange,
		OrderType:       "MARKET",
		ProductType:     productType,
		Duration:        "DAY",
		Quantity:        strconv.Itoa(co.Qty),
		Price:           "0",
		SquareOff:       "0",
		StopLoss:        "0",
	}
	resp, err := d.brk.PlaceOrder(ctx, params)
	status := "OK"
	orderID := resp.OrderID
	if err != nil {
		status = "FAILED: " + err.Error()
	}
	_ = tradelog.AppendOrder(tradelog.OrderEntry{
		From: from, TradingSymbol: co.TradingSymbol, Side: co.Side, Qty: co.Qty, OrderID: orderID, Status: status,
	})
	return resp, err
}
