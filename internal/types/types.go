package types

import "github.com/shopspring/decimal"

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Position is a read-only snapshot row from the broker's position book.
// NetQty is signed: positive = net long, negative = net short, zero = flat.
type Position struct {
	TradingSymbol string
	SymbolToken   string
	Exchange      string
	ProductType   string
	NetQty        int
	AveragePrice  decimal.Decimal
}

// Flat reports whether the position has no open quantity.
func (p Position) Flat() bool { return p.NetQty == 0 }

// ClosingOrder carries everything the broker needs to close one leg
// without further lookups.
type ClosingOrder struct {
	TradingSymbol string
	SymbolToken   string
	Side          string // SELL closes a long, BUY closes a short
	Qty           int
	Exchange      string
	ProductType   string
}

// OrderParams is the SmartAPI order wire shape. Quantity, Price,
// SquareOff and StopLoss travel as strings.
type OrderParams struct {
	Variety         string `json:"variety"`
	TradingSymbol   string `json:"tradingsymbol"`
	SymbolToken     string `json:"symboltoken"`
	TransactionType string `json:"transactiontype"`
	Exchange        string `json:"exchange"`
	OrderType       string `json:"ordertype"`
	ProductType     string `json:"producttype"`
	Duration        string `json:"duration"`
	Quantity        string `json:"quantity"`
	Price           string `json:"price"`
	SquareOff       string `json:"squareoff"`
	StopLoss        string `json:"stoploss"`
}

type OrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}
