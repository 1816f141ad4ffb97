package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls the HTTP surface of the register.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite
	CSRFTTL        time.Duration
	FlashTTL       time.Duration

	DefaultRedirect string

	KioskUserMax int
	KioskIPMax   int
	KioskWindow  time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:    64 << 10,
		CookiePath:      "/",
		CookieSameSite:  http.SameSiteLaxMode,
		CSRFTTL:         12 * time.Hour,
		FlashTTL:        time.Minute,
		DefaultRedirect: "/attendance",
		KioskUserMax:    5,
		KioskIPMax:      5,
		KioskWindow:     30 * time.Minute,
	}
}

// LoadConfigFromEnv loads API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	d := DefaultConfig()
	cfg := Config{
		TrustProxy:      envBool("CLUBHOUSE_TRUST_PROXY", false),
		MaxBodyBytes:    envInt64("CLUBHOUSE_API_MAX_BODY_BYTES", d.MaxBodyBytes),
		CookiePath:      d.CookiePath,
		CookieDomain:    strings.TrimSpace(os.Getenv("CLUBHOUSE_COOKIE_DOMAIN")),
		CookieSecure:    envBool("CLUBHOUSE_COOKIE_SECURE", false),
		CookieSameSite:  d.CookieSameSite,
		CSRFTTL:         envDuration("CLUBHOUSE_CSRF_TTL", d.CSRFTTL),
		FlashTTL:        d.FlashTTL,
		DefaultRedirect: d.DefaultRedirect,
		KioskUserMax:    envInt("CLUBHOUSE_KIOSK_USER_MAX", d.KioskUserMax),
		KioskIPMax:      envInt("CLUBHOUSE_KIOSK_IP_MAX", d.KioskIPMax),
		KioskWindow:     envDuration("CLUBHOUSE_KIOSK_WINDOW", d.KioskWindow),
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("CLUBHOUSE_COOKIE_SAMESITE")), "strict") {
		cfg.CookieSameSite = http.SameSiteStrictMode
	}
	return cfg
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.CookiePath == "" {
		c.CookiePath = d.CookiePath
	}
	if c.CookieSameSite == 0 {
		c.CookieSameSite = d.CookieSameSite
	}
	if c.CSRFTTL <= 0 {
		c.CSRFTTL = d.CSRFTTL
	}
	if c.FlashTTL <= 0 {
		c.FlashTTL = d.FlashTTL
	}
	if c.DefaultRedirect == "" {
		c.DefaultRedirect = d.DefaultRedirect
	}
	if c.KioskUserMax <= 0 {
		c.KioskUserMax = d.KioskUserMax
	}
	if c.KioskIPMax <= 0 {
		c.KioskIPMax = d.KioskIPMax
	}
	if c.KioskWindow <= 0 {
		c.KioskWindow = d.KioskWindow
	}
	return c
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
