package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"whatsapp-options-agent/internal/broker/angel"
	"whatsapp-options-agent/internal/engine"
	"whatsapp-options-agent/internal/logger"
	"whatsapp-options-agent/internal/risk"
	"whatsapp-options-agent/internal/store"
	"whatsapp-options-agent/internal/tradelog"
	"whatsapp-options-agent/internal/transport/whatsapp"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// initializeSystem loads environment variables and brings up logging.
func initializeSystem() error {
	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func loadConfig(ctx context.Context) (*store.Config, error) {
	cfg, err := store.LoadConfig("config.yaml")
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("AGENT_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// initializeBroker builds the AngelOne client, performs the startup
// login, primes the instrument master and schedules its daily refresh.
// A login rejection in LIVE mode is fatal; an instrument refresh
// failure is not, as long as the disk cache provided tokens.
func initializeBroker(ctx context.Context, cfg *store.Config) (*angel.Client, *cron.Cron, error) {
	brk := angel.New(angel.Params{
		Mode:                cfg.Mode,
		APIKey:              os.Getenv("ANGEL_API_KEY"),
		ClientCode:          os.Getenv("ANGEL_CLIENT_ID"),
		Password:            os.Getenv("ANGEL_PASSWORD"),
		TOTPSecret:          os.Getenv("ANGEL_TOTP_SECRET"),
		BaseURL:             cfg.Broker.BaseURL,
		InstrumentMasterURL: cfg.Broker.InstrumentMasterURL,
		InstrumentCachePath: cfg.Broker.InstrumentCachePath,
		Timeout:             time.Duration(cfg.Broker.TimeoutSeconds) * time.Second,
	})

	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
	} else {
		loginCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := brk.Login(loginCtx); err != nil {
			return nil, nil, fmt.Errorf("broker login failed: %w", err)
		}
	}

	if err := brk.LoadInstrumentCache(ctx); err != nil {
		logger.Warn(ctx, "No usable instrument cache", "error", err)
	}
	go func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := brk.RefreshInstruments(refreshCtx); err != nil {
			logger.Warn(refreshCtx, "Initial instrument refresh failed", "error", err)
		}
	}()

	sched, err := brk.StartInstrumentRefresh(ctx, cfg.Broker.InstrumentRefreshCron)
	if err != nil {
		return nil, nil, err
	}
	return brk, sched, nil
}

func initializeWebhook(cfg *store.Config, brk *angel.Client) *whatsapp.Webhook {
	gate := risk.NewGate(risk.Policy{
		MaxLots:       cfg.Risk.MaxLots,
		MaxOrderValue: decimal.NewFromFloat(cfg.Risk.MaxOrderValue),
	})
	dispatcher := engine.New(cfg, brk, gate)
	sender := whatsapp.NewSender(
		cfg.WhatsApp.GraphBaseURL,
		os.Getenv("WHATSAPP_TOKEN"),
		os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
	)
	return whatsapp.NewWebhook(os.Getenv("WHATSAPP_VERIFY_TOKEN"), dispatcher, sender)
}
