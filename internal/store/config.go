package store

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the behavioural configuration, loaded once at startup.
// Credentials never live here; they come from the environment.
type Config struct {
	Mode       string `yaml:"mode"` // DRY_RUN or LIVE
	ListenAddr string `yaml:"listen_addr"`

	// Senders authorized to issue commands. Anyone else is rejected
	// before parsing.
	AllowedNumbers []string `yaml:"allowed_numbers"`

	Risk struct {
		MaxLots       int     `yaml:"max_lots"`
		MaxOrderValue float64 `yaml:"max_order_value"` // rupees
	} `yaml:"risk"`

	Broker struct {
		BaseURL               string `yaml:"base_url"`
		Exchange              string `yaml:"exchange"`
		ProductType           string `yaml:"product_type"`
		TimeoutSeconds        int    `yaml:"timeout_seconds"`
		InstrumentMasterURL   string `yaml:"instrument_master_url"`
		InstrumentCachePath   string `yaml:"instrument_cache_path"`
		InstrumentRefreshCron string `yaml:"instrument_refresh_cron"`
	} `yaml:"broker"`

	WhatsApp struct {
		GraphBaseURL string `yaml:"graph_base_url"`
	} `yaml:"whatsapp"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if len(c.AllowedNumbers) == 0 {
		return errors.New("allowed_numbers cannot be empty")
	}
	if c.Risk.MaxLots <= 0 {
		return fmt.Errorf("risk.max_lots must be positive, got %d", c.Risk.MaxLots)
	}
	if c.Risk.MaxOrderValue <= 0 {
		return fmt.Errorf("risk.max_order_value must be positive, got %.2f", c.Risk.MaxOrderValue)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.Broker.Exchange == "" {
		c.Broker.Exchange = "NFO"
	}
	if c.Broker.ProductType == "" {
		// INTRADAY auto-squares at session close; set product_type to
		// CARRYFORWARD to hold positions overnight.
		c.Broker.ProductType = "INTRADAY"
	}
	if c.Broker.TimeoutSeconds == 0 {
		c.Broker.TimeoutSeconds = 15
	}
	if c.Broker.InstrumentMasterURL == "" {
		c.Broker.InstrumentMasterURL = "https://margincalculator.angelbroking.com/OpenAPI_File/files/OpenAPIScripMaster.json"
	}
	if c.Broker.InstrumentCachePath == "" {
		c.Broker.InstrumentCachePath = "instruments.json"
	}
	if c.Broker.InstrumentRefreshCron == "" {
		// The master is republished each morning before market open.
		c.Broker.InstrumentRefreshCron = "0 9 * * *"
	}
	if c.WhatsApp.GraphBaseURL == "" {
		c.WhatsApp.GraphBaseURL = "https://graph.facebook.com/v19.0"
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
