package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Server.Port != 4280 {
		t.Errorf("Server.Port default = %d, want %d", cfg.Server.Port, 4280)
	}
	if got := cfg.Clients.Eastmoney.GetTimeout(); got != 8*time.Second {
		t.Errorf("GetTimeout() = %v, want 8s", got)
	}
	if got := cfg.Refresh.GetInterval(); got != 60*time.Second {
		t.Errorf("GetInterval() = %v, want 60s", got)
	}
	if got := cfg.Refresh.GetRetryDelay(); got != time.Second {
		t.Errorf("GetRetryDelay() = %v, want 1s", got)
	}
	if got := cfg.Refresh.GetRecalcDebounce(); got != 60*time.Millisecond {
		t.Errorf("GetRecalcDebounce() = %v, want 60ms", got)
	}
	if cfg.Refresh.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Refresh.MaxRetries)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_PortEnvOverride(t *testing.T) {
	t.Setenv("FUNDWATCH_PORT", "9090")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d after env override, want %d", cfg.Server.Port, 9090)
	}
}

func TestConfig_TransportEnvOverride(t *testing.T) {
	t.Setenv("FUNDWATCH_TRANSPORT", "RELAY")
	t.Setenv("FUNDWATCH_RELAY_URL", "http://localhost:4280")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Clients.Eastmoney.Transport != "relay" {
		t.Errorf("Transport = %q, want relay", cfg.Clients.Eastmoney.Transport)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("relay config with URL should validate: %v", err)
	}
}

func TestConfig_InvalidDurationsFallBack(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Clients.Eastmoney.Timeout = "soon"
	cfg.Refresh.Interval = "-5s"

	if got := cfg.Clients.Eastmoney.GetTimeout(); got != 8*time.Second {
		t.Errorf("GetTimeout() = %v, want fallback 8s", got)
	}
	if got := cfg.Refresh.GetInterval(); got != 60*time.Second {
		t.Errorf("GetInterval() = %v, want fallback 60s", got)
	}
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad clock", func(c *Config) { c.Session.MorningStart = "9h20" }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "postgres" }},
		{"relay without url", func(c *Config) { c.Clients.Eastmoney.Transport = "relay" }},
		{"unknown transport", func(c *Config) { c.Clients.Eastmoney.Transport = "carrier-pigeon" }},
		{"negative retries", func(c *Config) { c.Refresh.MaxRetries = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fundwatch.toml")
	content := `
[server]
port = 5000

[session]
morning_start = "09:15"

[refresh]
max_retries = 1
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(filepath.Join(dir, "missing.toml"), path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Session.MorningStart != "09:15" {
		t.Errorf("MorningStart = %q, want 09:15", cfg.Session.MorningStart)
	}
	if cfg.Session.AfternoonEnd != "15:10" {
		t.Errorf("AfternoonEnd = %q, want default 15:10", cfg.Session.AfternoonEnd)
	}
	if cfg.Refresh.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d, want 1", cfg.Refresh.MaxRetries)
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"09:20", 560, false},
		{"15:10", 910, false},
		{"00:00", 0, false},
		{" 22:00 ", 1320, false},
		{"24:00", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClock(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
