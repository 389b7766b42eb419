// Package refdata holds static per-symbol reference data used for
// pre-trade sanity bounds. Premiums here are rough estimates, not live
// quotes; a production quote source would replace ApproxPremium.
package refdata

import "github.com/shopspring/decimal"

// NSE/BSE standard lot sizes for index options. The broker expects
// quantity in lots x lot size.
var lotSizes = map[string]int{
	"NIFTY":      50,
	"BANKNIFTY":  15,
	"FINNIFTY":   40,
	"MIDCPNIFTY": 75,
	"SENSEX":     10,
}

// Rupees per unit, rough.
var approxPremiums = map[string]decimal.Decimal{
	"NIFTY":      decimal.NewFromInt(150),
	"BANKNIFTY":  decimal.NewFromInt(300),
	"FINNIFTY":   decimal.NewFromInt(100),
	"MIDCPNIFTY": decimal.NewFromInt(80),
	"SENSEX":     decimal.NewFromInt(200),
}

// Fallbacks for symbols absent from the tables. The gate is a cheap
// sanity bound, so an approximation beats a hard failure.
const (
	DefaultLotSize       = 50
	defaultPremiumRupees = 200
)

// LotSize returns the lot size for symbol, or DefaultLotSize when the
// symbol is not in the table.
func LotSize(symbol string) int {
	if n, ok := lotSizes[symbol]; ok {
		return n
	}
	return DefaultLotSize
}

// ApproxPremium returns the estimated per-unit premium for symbol, or
// the fallback constant when the symbol is not in the table.
func ApproxPremium(symbol string) decimal.Decimal {
	if p, ok := approxPremiums[symbol]; ok {
		return p
	}
	return decimal.NewFromInt(defaultPremiumRupees)
}
