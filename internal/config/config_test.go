package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		ListenAddr:       ":8080",
		SigningSecret:    "k9x!Qz7#mWp2@Lr5&Tv8^Yb3*Nd6(Hf41",
		TokenIssuer:      "tempora-auth",
		AccessTTL:        time.Hour,
		RefreshTTL:       14 * 24 * time.Hour,
		LockoutThreshold: 5,
		WarningWindow:    7,
	}
}

func TestValidateOK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := map[string]func(*Config){
		"missing secret":   func(c *Config) { c.SigningSecret = "" },
		"short secret":     func(c *Config) { c.SigningSecret = "tooshort" },
		"default secret":   func(c *Config) { c.SigningSecret = "changeme" },
		"low entropy":      func(c *Config) { c.SigningSecret = strings.Repeat("ab", 20) },
		"zero access ttl":  func(c *Config) { c.AccessTTL = 0 },
		"refresh <= access": func(c *Config) { c.RefreshTTL = c.AccessTTL },
		"bad threshold":    func(c *Config) { c.LockoutThreshold = 0 },
		"bad window":       func(c *Config) { c.WarningWindow = 0 },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: error does not wrap ErrInvalid: %v", name, err)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TEMPORA_AUTH_SECRET", "k9x!Qz7#mWp2@Lr5&Tv8^Yb3*Nd6(Hf41")
	t.Setenv("TEMPORA_ACCESS_TTL", "")
	cfg := Load()
	if cfg.AccessTTL != defaultAccessTTL {
		t.Fatalf("unexpected access ttl: %v", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != defaultRefreshTTL {
		t.Fatalf("unexpected refresh ttl: %v", cfg.RefreshTTL)
	}
	if cfg.LockoutThreshold != 5 || cfg.WarningWindow != 7 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TEMPORA_ACCESS_TTL", "30m")
	t.Setenv("TEMPORA_LOCKOUT_THRESHOLD", "3")
	cfg := Load()
	if cfg.AccessTTL != 30*time.Minute {
		t.Fatalf("unexpected access ttl: %v", cfg.AccessTTL)
	}
	if cfg.LockoutThreshold != 3 {
		t.Fatalf("unexpected threshold: %d", cfg.LockoutThreshold)
	}
}
