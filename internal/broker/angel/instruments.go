package angel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"whatsapp-options-agent/internal/api"
	"whatsapp-options-agent/internal/logger"

	"github.com/robfig/cron/v3"
)

// ErrUnresolved means the trading symbol has no entry in the loaded
// instrument master. Order placement must fail on it; tokens are never
// fabricated.
var ErrUnresolved = errors.New("instrument not resolvable")

// One row of AngelOne's published scrip master. The file carries every
// tradeable instrument; only the fields needed for token lookup are
// decoded.
type scripRow struct {
	Token   string `json:"token"`
	Symbol  string `json:"symbol"`
	ExchSeg string `json:"exch_seg"`
}

// instrumentStore maps trading symbols to instrument tokens. Reloads
// swap the whole map under the write lock; lookups take the read lock.
type instrumentStore struct {
	mu        sync.RWMutex
	tokens    map[string]string
	loadedAt  time.Time
	cachePath string
}

func newInstrumentStore(cachePath string) *instrumentStore {
	return &instrumentStore{tokens: map[string]string{}, cachePath: cachePath}
}

func (s *instrumentStore) lookup(tradingSymbol string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[tradingSymbol]
	return token, ok
}

func (s *instrumentStore) swap(tokens map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens
	s.loadedAt = time.Now()
}

func (s *instrumentStore) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// ResolveToken maps tradingSymbol to its numeric instrument token.
func (c *Client) ResolveToken(ctx context.Context, tradingSymbol string) (string, error) {
	if token, ok := c.instruments.lookup(tradingSymbol); ok {
		return token, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnresolved, tradingSymbol)
}

// RefreshInstruments downloads the scrip master and rebuilds the token
// map, keeping only derivative segments. The download is large, so it
// uses its own client with a generous timeout and retries. Unlike
// orders, a repeated download is harmless.
func (c *Client) RefreshInstruments(ctx context.Context) error {
	if c.p.InstrumentMasterURL == "" {
		return errors.New("instrument master URL not configured")
	}

	dl := api.NewClient(api.WithTimeout(2 * time.Minute))
	resp, err := dl.GETWithRetry(ctx, c.p.InstrumentMasterURL, nil, 3)
	if err != nil {
		return fmt.Errorf("instrument master download failed: %w", err)
	}

	var rows []scripRow
	if err := json.Unmarshal(resp.Body, &rows); err != nil {
		return fmt.Errorf("malformed instrument master: %w", err)
	}

	tokens := make(map[string]string, len(rows)/4)
	for _, row := range rows {
		if row.ExchSeg != "NFO" && row.ExchSeg != "BFO" {
			continue
		}
		tokens[row.Symbol] = row.Token
	}
	if len(tokens) == 0 {
		return errors.New("instrument master contained no derivative instruments")
	}

	c.instruments.swap(tokens)
	logger.Info(ctx, "Instrument master refreshed", "instruments", len(tokens))

	if c.p.InstrumentCachePath != "" {
		if err := c.writeInstrumentCache(tokens); err != nil {
			logger.Warn(ctx, "Failed to write instrument cache", "error", err)
		}
	}
	return nil
}

// LoadInstrumentCache restores the token map from the on-disk cache so
// a restart can resolve tokens before the first refresh completes.
func (c *Client) LoadInstrumentCache(ctx context.Context) error {
	if c.p.InstrumentCachePath == "" {
		return nil
	}
	b, err := os.ReadFile(c.p.InstrumentCachePath)
	if err != nil {
		return err
	}
	var tokens map[string]string
	if err := json.Unmarshal(b, &tokens); err != nil {
		return fmt.Errorf("malformed instrument cache: %w", err)
	}
	c.instruments.swap(tokens)
	logger.Info(ctx, "Instrument cache loaded", "instruments", len(tokens), "path", c.p.InstrumentCachePath)
	return nil
}

func (c *Client) writeInstrumentCache(tokens map[string]string) error {
	b, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(c.p.InstrumentCachePath, b, 0o644)
}

// StartInstrumentRefresh schedules a daily refresh. The schedule runs
// in IST regardless of host timezone; the scrip master republishes on
// an IST morning cadence. The returned cron must be stopped on
// shutdown.
func (c *Client) StartInstrumentRefresh(ctx context.Context, cronSpec string) (*cron.Cron, error) {
	sched := cron.New(cron.WithLocation(ist))
	_, err := sched.AddFunc(cronSpec, func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := c.RefreshInstruments(refreshCtx); err != nil {
			logger.ErrorWithErr(refreshCtx, "Scheduled instrument refresh failed", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid instrument refresh schedule %q: %w", cronSpec, err)
	}
	sched.Start()
	logger.Info(ctx, "Instrument refresh scheduled", "cron", cronSpec)
	return sched, nil
}

// SetInstrumentTokens seeds the store directly. Test hook.
func (c *Client) SetInstrumentTokens(tokens map[string]string) {
	c.instruments.swap(tokens)
}
