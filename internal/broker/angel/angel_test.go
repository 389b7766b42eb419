package angel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"whatsapp-options-agent/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Any valid base32 string works as a test TOTP secret.
const testTOTPSecret = "JBSWY3DPEHPK3PXP"

type fakeSmartAPI struct {
	*httptest.Server
	logins       atomic.Int32
	failLogin    bool
	expireTokens int32 // tokens with ordinal <= expireTokens are treated as expired
}

func newFakeSmartAPI() *fakeSmartAPI {
	f := &fakeSmartAPI{}
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/auth/angelbroking/user/v1/loginByPassword", f.handleLogin)
	mux.HandleFunc("/rest/secure/angelbroking/order/v1/placeOrder", f.handleOrder)
	mux.HandleFunc("/rest/secure/angelbroking/order/v1/getPosition", f.handlePositions)
	f.Server = httptest.NewServer(mux)
	return f
}

func (f *fakeSmartAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	if f.failLogin {
		writeJSON(w, map[string]any{"status": false, "message": "Invalid credentials", "errorcode": "AB1007"})
		return
	}
	n := f.logins.Add(1)
	writeJSON(w, map[string]any{
		"status": true, "message": "SUCCESS", "errorcode": "",
		"data": map[string]string{
			"jwtToken":     fmt.Sprintf("tok-%d", n),
			"refreshToken": "refresh",
			"feedToken":    "feed",
		},
	})
}

func (f *fakeSmartAPI) tokenOrdinal(r *http.Request) int32 {
	auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer tok-")
	var n int32
	fmt.Sscanf(auth, "%d", &n)
	return n
}

func (f *fakeSmartAPI) handleOrder(w http.ResponseWriter, r *http.Request) {
	if f.tokenOrdinal(r) <= f.expireTokens {
		writeJSON(w, map[string]any{"status": false, "message": "Token Expired", "errorcode": "AG8002"})
		return
	}
	writeJSON(w, map[string]any{
		"status": true, "message": "SUCCESS", "errorcode": "",
		"data": map[string]string{"script": "NIFTY24DEC24000CE", "orderid": "2412190001"},
	})
}

func (f *fakeSmartAPI) handlePositions(w http.ResponseWriter, r *http.Request) {
	if f.tokenOrdinal(r) <= f.expireTokens {
		writeJSON(w, map[string]any{"status": false, "message": "Token Expired", "errorcode": "AG8002"})
		return
	}
	writeJSON(w, map[string]any{"status": true, "message": "SUCCESS", "errorcode": "", "data": nil})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(f *fakeSmartAPI) *Client {
	return New(Params{
		Mode:       "LIVE",
		APIKey:     "key",
		ClientCode: "C123",
		Password:   "pin",
		TOTPSecret: testTOTPSecret,
		BaseURL:    f.URL,
		Timeout:    2 * time.Second,
	})
}

func orderParams() types.OrderParams {
	return types.OrderParams{
		Variety:         "NORMAL",
		TradingSymbol:   "NIFTY24DEC24000CE",
		SymbolToken:     "43125",
		TransactionType: "BUY",
		Exchange:        "NFO",
		OrderType:       "MARKET",
		ProductType:     "INTRADAY",
		Duration:        "DAY",
		Quantity:        "50",
		Price:           "0",
		SquareOff:       "0",
		StopLoss:        "0",
	}
}

func TestLoginStoresSession(t *testing.T) {
	f := newFakeSmartAPI()
	defer f.Close()
	c := newTestClient(f)

	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, "tok-1", c.session.token())
}

func TestLoginHardRejection(t *testing.T) {
	f := newFakeSmartAPI()
	defer f.Close()
	f.failLogin = true
	c := newTestClient(f)

	err := c.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AB1007")
}

func TestPlaceOrderReauthenticatesOnce(t *testing.T) {
	f := newFakeSmartAPI()
	defer f.Close()
	c := newTestClient(f)
	require.NoError(t, c.Login(context.Background()))

	// The broker now considers tok-1 expired; the first placeOrder must
	// fail with AG8002, the client re-logins to tok-2 and retries once.
	f.expireTokens = 1
	resp, err := c.PlaceOrder(context.Background(), orderParams())
	require.NoError(t, err)
	assert.Equal(t, "2412190001", resp.OrderID)
	assert.Equal(t, int32(2), f.logins.Load())
}

func TestPlaceOrderSecondAuthFailureSurfaces(t *testing.T) {
	f := newFakeSmartAPI()
	defer f.Close()
	c := newTestClient(f)
	require.NoError(t, c.Login(context.Background()))

	// Every token is expired: one re-login happens, the retried call
	// fails again and the auth error surfaces without further retries.
	f.expireTokens = 1 << 30
	_, err := c.PlaceOrder(context.Background(), orderParams())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, int32(2), f.logins.Load())
}

func TestConcurrentCallsShareOneRelogin(t *testing.T) {
	f := newFakeSmartAPI()
	defer f.Close()
	c := newTestClient(f)
	require.NoError(t, c.Login(context.Background()))

	// tok-1 is now expired. All eight calls fail with AG8002 and must
	// collapse onto a single shared re-login, not eight.
	f.expireTokens = 1
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Positions(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(2), f.logins.Load())
}

func TestInstrumentRefreshRunsInIST(t *testing.T) {
	c := New(Params{Mode: "DRY_RUN"})
	sched, err := c.StartInstrumentRefresh(context.Background(), "0 9 * * *")
	require.NoError(t, err)
	defer sched.Stop()

	assert.Equal(t, ist, sched.Location())
}

func TestPositionsEmptyBook(t *testing.T) {
	f := newFakeSmartAPI()
	defer f.Close()
	c := newTestClient(f)
	require.NoError(t, c.Login(context.Background()))

	positions, err := c.Positions(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, positions)
	assert.Empty(t, positions)
}

func TestDryRunSimulatesOrders(t *testing.T) {
	c := New(Params{Mode: "DRY_RUN"})
	resp, err := c.PlaceOrder(context.Background(), orderParams())
	require.NoError(t, err)
	assert.Equal(t, "SIMULATED", resp.Status)
	assert.True(t, strings.HasPrefix(resp.OrderID, "SIM-"))
}

func TestResolveToken(t *testing.T) {
	c := New(Params{Mode: "DRY_RUN"})
	c.SetInstrumentTokens(map[string]string{"NIFTY24DEC24000CE": "43125"})

	token, err := c.ResolveToken(context.Background(), "NIFTY24DEC24000CE")
	require.NoError(t, err)
	assert.Equal(t, "43125", token)

	_, err = c.ResolveToken(context.Background(), "NIFTY24DEC99999CE")
	assert.True(t, errors.Is(err, ErrUnresolved))
}

func TestTradingSymbol(t *testing.T) {
	now := time.Date(2024, time.December, 19, 10, 0, 0, 0, ist)
	assert.Equal(t, "NIFTY24DEC24000CE", TradingSymbol("NIFTY", 24000, "CE", now))
	assert.Equal(t, "BANKNIFTY24DEC52000PE", TradingSymbol("BANKNIFTY", 52000, "PE", now))
}
