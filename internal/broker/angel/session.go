package angel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"whatsapp-options-agent/internal/logger"

	"github.com/pquerna/otp/totp"
)

// AuthError marks a call that failed because the session token was
// invalid or expired. withSession recovers from it once per call.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%s): %s", e.Code, e.Message)
}

// APIError is any other broker-side rejection (margin, instrument,
// validation). Surfaced to the caller verbatim.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// SmartAPI signals an invalid or expired token with these error codes.
func isAuthFailure(statusCode int, env *apiEnvelope) bool {
	if statusCode == 401 {
		return true
	}
	return !env.Status && (env.ErrorCode == "AG8001" || env.ErrorCode == "AG8002")
}

// sessionState holds the live tokens. Token reads are the hot path and
// take the shared lock; only a (re-)login takes the exclusive one.
type sessionState struct {
	mu           sync.RWMutex
	authToken    string
	refreshToken string
	feedToken    string
}

func (s *sessionState) token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authToken
}

func (s *sessionState) replace(auth, refresh, feed string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authToken = auth
	s.refreshToken = refresh
	s.feedToken = feed
}

// Login authenticates with credentials plus a freshly generated TOTP
// code and replaces the session wholesale. A rejection here signals
// misconfiguration, not a transient failure; the caller should abort,
// not retry.
func (c *Client) Login(ctx context.Context) error {
	code, err := totp.GenerateCode(c.p.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("totp generation failed: %w", err)
	}

	body := map[string]string{
		"clientcode": c.p.ClientCode,
		"password":   c.p.Password,
		"totp":       code,
	}
	resp, err := c.http.POST(ctx, loginPath, body, nil)
	if err != nil {
		return fmt.Errorf("angel login request failed: %w", err)
	}

	var env apiEnvelope
	if err := resp.ParseJSON(&env); err != nil {
		return fmt.Errorf("malformed login response: %w", err)
	}
	if !env.Status {
		return fmt.Errorf("angel login failed: %s (%s)", env.Message, env.ErrorCode)
	}

	var data struct {
		JWTToken     string `json:"jwtToken"`
		RefreshToken string `json:"refreshToken"`
		FeedToken    string `json:"feedToken"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("malformed login response: %w", err)
	}

	c.session.replace(data.JWTToken, data.RefreshToken, data.FeedToken)
	logger.Info(ctx, "AngelOne login successful", "client_code", c.p.ClientCode)
	return nil
}

// withSession runs op with the current token, re-authenticating and
// retrying exactly once when op reports an AuthError. A second
// consecutive auth failure is returned as-is.
func (c *Client) withSession(ctx context.Context, op func(token string) error) error {
	token := c.session.token()
	if token == "" {
		if err := c.reauthenticate(ctx, ""); err != nil {
			return err
		}
		token = c.session.token()
	}

	err := op(token)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		return err
	}

	logger.Warn(ctx, "Session expired, re-authenticating", "code", authErr.Code)
	if err := c.reauthenticate(ctx, token); err != nil {
		return err
	}
	return op(c.session.token())
}

// reauthenticate serializes the Unauthenticated -> Authenticated
// transition. Callers holding the same stale token share one login:
// concurrent callers join the in-flight one, and a caller arriving
// after the token was already replaced skips the login entirely.
func (c *Client) reauthenticate(ctx context.Context, stale string) error {
	_, err, _ := c.relogin.Do("login", func() (any, error) {
		if cur := c.session.token(); cur != "" && cur != stale {
			return nil, nil
		}
		return nil, c.Login(ctx)
	})
	return err
}
