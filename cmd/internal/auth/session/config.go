package session

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"vidtube/cmd/security/token"
)

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// Issuer is written to the "iss" claim.
	Issuer string

	AccessTokenSecret  string
	RefreshTokenSecret string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// RevokeOnPasswordChange clears the stored refresh token after a password change.
	RevokeOnPasswordChange bool

	// TokenHMACKey keys the refresh-token digest. Empty selects SHA-256.
	TokenHMACKey string
}

// DefaultConfig returns defaults without secrets.
func DefaultConfig() Config {
	return Config{
		Issuer:          "vidtube",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 10 * 24 * time.Hour,
	}
}

// IssuerConfig converts c into a token.IssuerConfig.
func (c Config) IssuerConfig() token.IssuerConfig {
	return token.IssuerConfig{
		AccessSecret:  []byte(c.AccessTokenSecret),
		RefreshSecret: []byte(c.RefreshTokenSecret),
		AccessTTL:     c.AccessTokenTTL,
		RefreshTTL:    c.RefreshTokenTTL,
		Issuer:        c.Issuer,
	}
}

// Digester returns the refresh-token digester for c.
func (c Config) Digester() token.Digester {
	return token.NewDigester([]byte(c.TokenHMACKey))
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - VIDTUBE_ACCESS_TOKEN_SECRET, VIDTUBE_REFRESH_TOKEN_SECRET (>= 32 bytes, distinct)
//
// Optional:
//   - VIDTUBE_AUTH_ISSUER
//   - VIDTUBE_ACCESS_TOKEN_EXPIRY, VIDTUBE_REFRESH_TOKEN_EXPIRY (Go durations; "10d" style day suffix accepted)
//   - VIDTUBE_AUTH_REVOKE_ON_PASSWORD_CHANGE
//   - VIDTUBE_TOKEN_HMAC_KEY (>= 32 bytes when set)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("VIDTUBE_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("VIDTUBE_ACCESS_TOKEN_EXPIRY"); v != "" {
		d, err := parseExpiry(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}
	if v := os.Getenv("VIDTUBE_REFRESH_TOKEN_EXPIRY"); v != "" {
		d, err := parseExpiry(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenTTL = d
	}

	if v := os.Getenv("VIDTUBE_AUTH_REVOKE_ON_PASSWORD_CHANGE"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.RevokeOnPasswordChange = b
	}

	cfg.AccessTokenSecret = os.Getenv("VIDTUBE_ACCESS_TOKEN_SECRET")
	cfg.RefreshTokenSecret = os.Getenv("VIDTUBE_REFRESH_TOKEN_SECRET")
	if err := cfg.IssuerConfig().Validate(); err != nil {
		return Config{}, ErrConfig
	}

	key, err := token.HMACKeyFromEnv(token.MinSecretBytes)
	switch {
	case err == nil:
		cfg.TokenHMACKey = string(key)
	case errors.Is(err, token.ErrHMACKeyMissing):
	default:
		return Config{}, ErrConfig
	}

	return cfg, nil
}

// parseExpiry accepts Go durations plus a whole-day form ("10d").
func parseExpiry(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(v)
}
