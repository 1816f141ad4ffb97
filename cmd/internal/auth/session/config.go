package session

import (
	"os"
	"strings"
	"time"
)

// Config controls access-token issuance and verification.
type Config struct {
	// Issuer is the "iss" claim written and required on access tokens.
	Issuer string

	AccessTokenTTL time.Duration

	// ClockSkew is tolerated on "nbf" and "exp" during verification.
	ClockSkew time.Duration

	// SecretKeyHex is the Ed25519 secret key (hex). Required to issue tokens.
	SecretKeyHex string

	// PublicKeyHex allows a verify-only deployment when SecretKeyHex is empty.
	PublicKeyHex string
}

// DefaultConfig returns defaults suitable for development. Keys are not set.
func DefaultConfig() Config {
	return Config{
		Issuer:         "clubhouse",
		AccessTokenTTL: 15 * time.Minute,
		ClockSkew:      30 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// One of these is required:
//   - CLUBHOUSE_PASETO_V4_SECRET_KEY_HEX
//   - CLUBHOUSE_PASETO_V4_PUBLIC_KEY_HEX (verify only)
//
// Optional: CLUBHOUSE_AUTH_ISSUER, CLUBHOUSE_AUTH_ACCESS_TTL, CLUBHOUSE_AUTH_CLOCK_SKEW.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("CLUBHOUSE_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}
	if v := strings.TrimSpace(os.Getenv("CLUBHOUSE_AUTH_ACCESS_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}
	if v := strings.TrimSpace(os.Getenv("CLUBHOUSE_AUTH_CLOCK_SKEW")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 || d > 5*time.Minute {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	cfg.SecretKeyHex = strings.TrimSpace(os.Getenv("CLUBHOUSE_PASETO_V4_SECRET_KEY_HEX"))
	cfg.PublicKeyHex = strings.TrimSpace(os.Getenv("CLUBHOUSE_PASETO_V4_PUBLIC_KEY_HEX"))
	if cfg.SecretKeyHex == "" && cfg.PublicKeyHex == "" {
		return Config{}, ErrConfig
	}
	return cfg, nil
}
