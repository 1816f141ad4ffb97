package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// envValue returns the trimmed value of key and whether it was non-empty.
func envValue(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// envParse returns def when key is unset, fails to parse, or is rejected by ok.
func envParse[T any](key string, def T, parse func(string) (T, error), ok func(T) bool) T {
	raw, set := envValue(key)
	if !set {
		return def
	}
	v, err := parse(raw)
	if err != nil || (ok != nil && !ok(v)) {
		return def
	}
	return v
}

// EnvString reads a string env var with a default.
func EnvString(key, def string) string {
	if v, ok := envValue(key); ok {
		return v
	}
	return def
}

// EnvBool reads a bool env var with a default.
func EnvBool(key string, def bool) bool {
	return envParse(key, def, strconv.ParseBool, nil)
}

// EnvInt reads a positive int env var with a default.
func EnvInt(key string, def int) int {
	return envParse(key, def, strconv.Atoi, func(n int) bool { return n > 0 })
}

// EnvInt32 reads a non-negative int32 env var with a default.
func EnvInt32(key string, def int32) int32 {
	parse := func(s string) (int32, error) {
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err
	}
	return envParse(key, def, parse, func(n int32) bool { return n >= 0 })
}

// EnvDuration reads a positive duration env var with a default.
func EnvDuration(key string, def time.Duration) time.Duration {
	return envParse(key, def, time.ParseDuration, func(d time.Duration) bool { return d > 0 })
}

// EnvCSV reads a comma-separated list env var with a default. Blank items are dropped.
func EnvCSV(key string, def []string) []string {
	raw, ok := envValue(key)
	if !ok {
		return def
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
