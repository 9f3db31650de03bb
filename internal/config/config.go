package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid marks configuration the service must refuse to start with.
var ErrInvalid = errors.New("config: invalid configuration")

const (
	minSecretLength  = 32
	minSecretEntropy = 10 // distinct byte values

	defaultListenAddr       = ":8080"
	defaultAccessTTL        = 1 * time.Hour
	defaultRefreshTTL       = 14 * 24 * time.Hour
	defaultLockoutThreshold = 5
	defaultWarningWindow    = 7
)

// insecureSecrets are well-known placeholder values that must never be used
// as a signing secret.
var insecureSecrets = map[string]struct{}{
	"secret":                           {},
	"changeme":                         {},
	"change-me":                        {},
	"password":                         {},
	"tempora":                          {},
	"00000000000000000000000000000000": {},
}

// Config holds process-wide settings for the auth service.
type Config struct {
	ListenAddr       string
	DatabaseDSN      string
	SigningSecret    string
	TokenIssuer      string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	LockoutThreshold int
	WarningWindow    int // days before expiry that warnings start
}

// Load reads configuration from TEMPORA_* environment variables, applying
// defaults for everything except the signing secret.
func Load() Config {
	cfg := Config{
		ListenAddr:       envOrDefault("TEMPORA_LISTEN_ADDR", defaultListenAddr),
		DatabaseDSN:      strings.TrimSpace(os.Getenv("TEMPORA_PG_DSN")),
		SigningSecret:    strings.TrimSpace(os.Getenv("TEMPORA_AUTH_SECRET")),
		TokenIssuer:      envOrDefault("TEMPORA_TOKEN_ISSUER", "tempora-auth"),
		AccessTTL:        envDurationOrDefault("TEMPORA_ACCESS_TTL", defaultAccessTTL),
		RefreshTTL:       envDurationOrDefault("TEMPORA_REFRESH_TTL", defaultRefreshTTL),
		LockoutThreshold: envIntOrDefault("TEMPORA_LOCKOUT_THRESHOLD", defaultLockoutThreshold),
		WarningWindow:    envIntOrDefault("TEMPORA_WARNING_WINDOW_DAYS", defaultWarningWindow),
	}
	return cfg
}

// Validate rejects configurations the service must not run with. All
// violations wrap ErrInvalid so the caller can treat them as startup-fatal.
func (c Config) Validate() error {
	if c.SigningSecret == "" {
		return fmt.Errorf("%w: signing secret is not set", ErrInvalid)
	}
	if len(c.SigningSecret) < minSecretLength {
		return fmt.Errorf("%w: signing secret shorter than %d bytes", ErrInvalid, minSecretLength)
	}
	if _, known := insecureSecrets[strings.ToLower(c.SigningSecret)]; known {
		return fmt.Errorf("%w: signing secret matches a known insecure default", ErrInvalid)
	}
	if distinctBytes(c.SigningSecret) < minSecretEntropy {
		return fmt.Errorf("%w: signing secret entropy too low", ErrInvalid)
	}
	if c.AccessTTL <= 0 {
		return fmt.Errorf("%w: access ttl must be positive", ErrInvalid)
	}
	if c.RefreshTTL <= c.AccessTTL {
		return fmt.Errorf("%w: refresh ttl must exceed access ttl", ErrInvalid)
	}
	if c.LockoutThreshold < 1 {
		return fmt.Errorf("%w: lockout threshold must be at least 1", ErrInvalid)
	}
	if c.WarningWindow < 1 {
		return fmt.Errorf("%w: warning window must be at least 1 day", ErrInvalid)
	}
	return nil
}

func distinctBytes(s string) int {
	seen := make(map[byte]struct{}, len(s))
	for i := 0; i < len(s); i++ {
		seen[s[i]] = struct{}{}
	}
	return len(seen)
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func envDurationOrDefault(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return v
}
