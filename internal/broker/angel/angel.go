// Package angel is the AngelOne SmartAPI client. It owns the session
// lifecycle: TOTP login at startup, reactive re-login when a call
// observes an expired token, and exactly one retry of the failed call
// after re-authentication.
package angel

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"whatsapp-options-agent/internal/api"
	"whatsapp-options-agent/internal/interfaces"
	"whatsapp-options-agent/internal/logger"
	"whatsapp-options-agent/internal/types"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	defaultBaseURL = "https://apiconnect.angelbroking.com"

	loginPath      = "/rest/auth/angelbroking/user/v1/loginByPassword"
	placeOrderPath = "/rest/secure/angelbroking/order/v1/placeOrder"
	positionsPath  = "/rest/secure/angelbroking/order/v1/getPosition"
)

type Params struct {
	Mode       string // DRY_RUN or LIVE
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string

	BaseURL             string
	InstrumentMasterURL string
	InstrumentCachePath string
	Timeout             time.Duration
}

type Client struct {
	p           Params
	http        *api.Client
	instruments *instrumentStore

	session sessionState

	// Collapses concurrent re-logins into one: two calls hitting an
	// expired token at the same time must trigger a single login.
	relogin singleflight.Group
}

var _ interfaces.Broker = (*Client)(nil)

func New(p Params) *Client {
	if p.BaseURL == "" {
		p.BaseURL = defaultBaseURL
	}
	if p.Timeout == 0 {
		p.Timeout = 15 * time.Second
	}
	c := &Client{
		p: p,
		http: api.NewClient(
			api.WithBaseURL(p.BaseURL),
			api.WithTimeout(p.Timeout),
			api.WithHeader("Content-Type", "application/json"),
			api.WithHeader("Accept", "application/json"),
			api.WithHeader("X-UserType", "USER"),
			api.WithHeader("X-SourceID", "WEB"),
			api.WithHeader("X-ClientLocalIP", "127.0.0.1"),
			api.WithHeader("X-ClientPublicIP", "127.0.0.1"),
			api.WithHeader("X-MACAddress", "00:00:00:00:00:00"),
			api.WithHeader("X-PrivateKey", p.APIKey),
		),
		instruments: newInstrumentStore(p.InstrumentCachePath),
	}
	return c
}

// Every SmartAPI response arrives in this envelope.
type apiEnvelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

// PlaceOrder submits one market order. No automatic retry on failure:
// a duplicate MARKET order is a correctness hazard, so a timed-out or
// rejected call surfaces to the caller as-is. The single re-login
// retry applies only when the session itself was invalid.
func (c *Client) PlaceOrder(ctx context.Context, params types.OrderParams) (types.OrderResponse, error) {
	if c.p.Mode == "DRY_RUN" {
		logger.Info(ctx, "DRY_RUN order simulated", "tradingsymbol", params.TradingSymbol, "side", params.TransactionType, "quantity", params.Quantity)
		return types.OrderResponse{
			OrderID: fmt.Sprintf("SIM-%d", time.Now().UnixNano()),
			Status:  "SIMULATED",
			Message: "dry-run",
		}, nil
	}

	op := logger.StartOperation(ctx, "angel.place_order",
		"tradingsymbol", params.TradingSymbol,
		"side", params.TransactionType,
	)
	ctx = op.GetContext()

	var out types.OrderResponse
	err := c.withSession(ctx, func(token string) error {
		resp, err := c.http.POST(ctx, placeOrderPath, params, c.authHeaders(token))
		if err != nil {
			return err
		}
		env, err := c.decodeEnvelope(resp)
		if err != nil {
			return err
		}
		var data struct {
			Script  string `json:"script"`
			OrderID string `json:"orderid"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return fmt.Errorf("malformed order response: %w", err)
		}
		out = types.OrderResponse{OrderID: data.OrderID, Status: "PLACED", Message: env.Message}
		return nil
	})
	if err != nil {
		op.EndWithError(err)
		return types.OrderResponse{}, err
	}
	op.End()

	logger.Order(ctx, params.TradingSymbol, params.TransactionType, atoiOrZero(params.Quantity), out.OrderID)
	return out, nil
}

// The wire shape of one position row; numeric fields travel as strings.
type wirePosition struct {
	TradingSymbol string `json:"tradingsymbol"`
	SymbolToken   string `json:"symboltoken"`
	Exchange      string `json:"exchange"`
	ProductType   string `json:"producttype"`
	NetQty        string `json:"netqty"`
	AveragePrice  string `json:"averageprice"`
}

// Positions fetches the current snapshot. An empty book is an empty
// slice, never an error. In DRY_RUN mode the book is always empty.
func (c *Client) Positions(ctx context.Context) ([]types.Position, error) {
	if c.p.Mode == "DRY_RUN" {
		return []types.Position{}, nil
	}

	var positions []types.Position
	err := c.withSession(ctx, func(token string) error {
		resp, err := c.http.GET(ctx, positionsPath, c.authHeaders(token))
		if err != nil {
			return err
		}
		env, err := c.decodeEnvelope(resp)
		if err != nil {
			return err
		}
		positions = nil
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return nil
		}
		var rows []wirePosition
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			return fmt.Errorf("malformed positions response: %w", err)
		}
		for _, row := range rows {
			positions = append(positions, types.Position{
				TradingSymbol: row.TradingSymbol,
				SymbolToken:   row.SymbolToken,
				Exchange:      row.Exchange,
				ProductType:   row.ProductType,
				NetQty:        atoiOrZero(row.NetQty),
				AveragePrice:  decimalOrZero(row.AveragePrice),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if positions == nil {
		positions = []types.Position{}
	}
	return positions, nil
}

// decodeEnvelope maps a SmartAPI response to its envelope, converting
// session-expiry signals into *AuthError so withSession can recover.
func (c *Client) decodeEnvelope(resp *api.Response) (*apiEnvelope, error) {
	var env apiEnvelope
	if err := resp.ParseJSON(&env); err != nil {
		if resp.StatusCode == 401 {
			return nil, &AuthError{Code: "401", Message: "unauthorized"}
		}
		return nil, err
	}
	if isAuthFailure(resp.StatusCode, &env) {
		return nil, &AuthError{Code: env.ErrorCode, Message: env.Message}
	}
	if !env.Status {
		return nil, &APIError{Code: env.ErrorCode, Message: env.Message}
	}
	return &env, nil
}

func (c *Client) authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
