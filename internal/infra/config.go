package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"scalp_go/pkg/quant"
)

// Config holds the full application configuration. Secrets may be overridden
// by environment variables after the file is loaded.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode   string `yaml:"mode"`   // "PAPER" or "REAL"
		RunID  string `yaml:"run_id"` // journal partition key
		Symbol string `yaml:"symbol"`
	} `yaml:"trading"`

	Venue struct {
		WSURL     string `yaml:"ws_url"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
	} `yaml:"venue"`

	Strategy struct {
		MaxPosition    int64   `yaml:"max_position"`     // total committed lots cap
		VolumePerOrder int64   `yaml:"volume_per_order"` // lots per opening order
		VolumePerPrice int64   `yaml:"volume_per_price"` // resting lots cap per price level
		CloseSpread    float64 `yaml:"close_spread"`     // exit offset in price units
		CloseToday     bool    `yaml:"close_today"`      // generate CLOSETODAY exits
		Sessions       []struct {
			Open  string `yaml:"open"`  // "15:04"
			Close string `yaml:"close"` // "15:04"
		} `yaml:"sessions"`
		FlattenBeforeClose bool `yaml:"flatten_before_close"`
	} `yaml:"strategy"`

	Loop struct {
		InboxSize       int `yaml:"inbox_size"`
		StallTimeoutSec int `yaml:"stall_timeout_sec"`
	} `yaml:"loop"`

	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// CloseSpread4 returns the configured spread in fixed point.
func (c *Config) CloseSpread4() quant.Price4 {
	return quant.ToPrice4(c.Strategy.CloseSpread)
}

// LoadConfig reads and validates a yaml configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	mode := strings.ToUpper(c.Trading.Mode)
	if mode != "PAPER" && mode != "REAL" {
		return fmt.Errorf("unknown trading mode: %s", c.Trading.Mode)
	}
	if c.Trading.Symbol == "" {
		return fmt.Errorf("trading symbol is required")
	}
	if mode == "REAL" {
		if !strings.HasPrefix(c.Venue.WSURL, "ws://") && !strings.HasPrefix(c.Venue.WSURL, "wss://") {
			return fmt.Errorf("invalid venue WS URL: %s", c.Venue.WSURL)
		}
	}
	if c.Strategy.MaxPosition <= 0 {
		return fmt.Errorf("max_position must be positive")
	}
	if c.Strategy.VolumePerOrder <= 0 || c.Strategy.VolumePerOrder > c.Strategy.MaxPosition {
		return fmt.Errorf("volume_per_order must be in (0, max_position]")
	}
	if c.Strategy.VolumePerPrice <= 0 {
		return fmt.Errorf("volume_per_price must be positive")
	}
	if c.Strategy.CloseSpread <= 0 {
		return fmt.Errorf("close_spread must be positive")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Trading.RunID == "" {
		cfg.Trading.RunID = "default"
	}
	if cfg.Loop.InboxSize <= 0 {
		cfg.Loop.InboxSize = 1024
	}
	if cfg.Loop.StallTimeoutSec <= 0 {
		cfg.Loop.StallTimeoutSec = 30
	}
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = "journal.db"
	}
}

// overrideWithEnv lets environment variables trump file values for secrets.
func overrideWithEnv(cfg *Config) {
	if cfg.Venue.SecretKey != "" {
		fmt.Println("WARNING: venue secret found in config file; prefer SCALP_VENUE_KEY / SCALP_VENUE_SECRET env vars")
	}
	if key := os.Getenv("SCALP_VENUE_KEY"); key != "" {
		cfg.Venue.AccessKey = key
	}
	if secret := os.Getenv("SCALP_VENUE_SECRET"); secret != "" {
		cfg.Venue.SecretKey = secret
	}
}
