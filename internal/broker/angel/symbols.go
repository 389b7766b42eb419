package angel

import (
	"fmt"
	"strings"
	"time"
)

var ist = time.FixedZone("IST", 19800)

// TradingSymbol builds the broker-encoded option symbol for the current
// month's expiry, e.g. NIFTY24DEC24000CE. The expiry segment is a
// convention for the nearest expiry, not an exact date; the instrument
// master is the authority at token-resolution time, so a symbol the
// master doesn't know fails the order instead of guessing.
func TradingSymbol(symbol string, strike int, optionType string, now time.Time) string {
	expiry := strings.ToUpper(now.In(ist).Format("06Jan"))
	return fmt.Sprintf("%s%s%d%s", symbol, expiry, strike, optionType)
}
