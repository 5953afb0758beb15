package infra

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scalp_go/pkg/quant"
)

const validYAML = `
app:
  name: scalpd
  version: "1.0"
trading:
  mode: PAPER
  symbol: SHFE.cu2609
strategy:
  max_position: 6
  volume_per_order: 2
  volume_per_price: 4
  close_spread: 1.0
  sessions:
    - open: "09:00"
      close: "15:00"
  flatten_before_close: true
storage:
  db_path: /tmp/test-journal.db
logging:
  level: debug
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Trading.Symbol != "SHFE.cu2609" || cfg.Strategy.MaxPosition != 6 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.CloseSpread4() != quant.ToPrice4(1.0) {
		t.Fatalf("spread = %v", cfg.CloseSpread4())
	}
	if len(cfg.Strategy.Sessions) != 1 || cfg.Strategy.Sessions[0].Open != "09:00" {
		t.Fatalf("sessions = %+v", cfg.Strategy.Sessions)
	}
	// Defaults fill in what the file left out.
	if cfg.Trading.RunID != "default" || cfg.Loop.InboxSize != 1024 || cfg.Loop.StallTimeoutSec != 30 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("SCALP_VENUE_KEY", "env-key")
	t.Setenv("SCALP_VENUE_SECRET", "env-secret")

	cfg, err := LoadConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Venue.AccessKey != "env-key" || cfg.Venue.SecretKey != "env-secret" {
		t.Fatalf("env override missing: %+v", cfg.Venue)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad mode", func(c *Config) { c.Trading.Mode = "DRY" }, "unknown trading mode"},
		{"missing symbol", func(c *Config) { c.Trading.Symbol = "" }, "symbol is required"},
		{"real mode needs ws url", func(c *Config) { c.Trading.Mode = "REAL"; c.Venue.WSURL = "http://x" }, "invalid venue WS URL"},
		{"zero position", func(c *Config) { c.Strategy.MaxPosition = 0 }, "max_position"},
		{"order above cap", func(c *Config) { c.Strategy.VolumePerOrder = 99 }, "volume_per_order"},
		{"zero per price", func(c *Config) { c.Strategy.VolumePerPrice = 0 }, "volume_per_price"},
		{"zero spread", func(c *Config) { c.Strategy.CloseSpread = 0 }, "close_spread"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, validYAML))
			if err != nil {
				t.Fatalf("load baseline: %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	t.Run("real mode with wss url", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, validYAML))
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		cfg.Trading.Mode = "REAL"
		cfg.Venue.WSURL = "wss://venue.example.com/stream"
		if err := cfg.Validate(); err != nil {
			t.Fatalf("valid REAL config rejected: %v", err)
		}
	})
}
