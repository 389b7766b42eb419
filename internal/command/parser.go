// Package command parses free-form text commands into trade intents.
//
// Matching is purely structural: a fixed grammar checked with regular
// expressions, no fuzzy interpretation. A misread instruction places a
// real order, so anything ambiguous fails closed and yields no intent.
package command

import (
	"regexp"
	"strconv"
	"strings"
)

// ValidSymbols is the set of F&O-eligible index underlyings accepted in
// commands. Anything else is rejected at parse time.
var ValidSymbols = map[string]bool{
	"NIFTY":      true,
	"BANKNIFTY":  true,
	"FINNIFTY":   true,
	"MIDCPNIFTY": true,
	"SENSEX":     true,
}

var (
	openOrderRe = regexp.MustCompile(
		`^(BUY|SELL)\s+([A-Z]+)\s+(\d{4,6})\s+(CE|PE)\s+(\d+)$`)
	squareoffLegRe = regexp.MustCompile(
		`^SQUAREOFF\s+([A-Z]+)\s+(\d{4,6})\s+(CE|PE)$`)
)

// Intent is the closed set of things a command can mean. Only types in
// this package implement it.
type Intent interface {
	isIntent()
}

// OpenOrder opens new exposure: BUY|SELL SYMBOL STRIKE CE|PE QTY.
// Qty is in lots; the broker quantity is Qty x the symbol's lot size.
type OpenOrder struct {
	Side       string
	Symbol     string
	Strike     int
	OptionType string
	Qty        int
}

// SquareoffAll closes every open position at market.
type SquareoffAll struct{}

// SquareoffLeg closes one specific option leg at market.
type SquareoffLeg struct {
	Symbol     string
	Strike     int
	OptionType string
}

// StatusQuery asks for the current open positions.
type StatusQuery struct{}

func (OpenOrder) isIntent()    {}
func (SquareoffAll) isIntent() {}
func (SquareoffLeg) isIntent() {}
func (StatusQuery) isIntent()  {}

// Parse converts a command line into an Intent, or nil when the text
// matches no grammar rule. Input is re-normalized here even though the
// transport edge already uppercases and trims.
func Parse(text string) Intent {
	text = strings.ToUpper(strings.TrimSpace(text))

	if text == "SQUAREOFF" {
		return SquareoffAll{}
	}

	if m := squareoffLegRe.FindStringSubmatch(text); m != nil {
		if !ValidSymbols[m[1]] {
			return nil
		}
		strike, err := strconv.Atoi(m[2])
		if err != nil {
			return nil
		}
		return SquareoffLeg{Symbol: m[1], Strike: strike, OptionType: m[3]}
	}

	if m := openOrderRe.FindStringSubmatch(text); m != nil {
		if !ValidSymbols[m[2]] {
			return nil
		}
		strike, err := strconv.Atoi(m[3])
		if err != nil {
			return nil
		}
		qty, err := strconv.Atoi(m[5])
		if err != nil {
			return nil
		}
		return OpenOrder{Side: m[1], Symbol: m[2], Strike: strike, OptionType: m[4], Qty: qty}
	}

	if text == "STATUS" {
		return StatusQuery{}
	}

	return nil
}
