package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
)

// failureLimiter counts failed attempts per key in a sliding window.
// It is process local; a restart forgets all failures.
type failureLimiter struct {
	mu       sync.Mutex
	clock    clock.Clock
	max      int
	window   time.Duration
	failures map[string][]time.Time
	sweeps   int
}

func newFailureLimiter(clk clock.Clock, limit int, window time.Duration) *failureLimiter {
	return &failureLimiter{
		clock:    clk,
		max:      limit,
		window:   window,
		failures: make(map[string][]time.Time),
	}
}

// Blocked reports whether key has reached the limit and how long until the oldest failure expires.
func (l *failureLimiter) Blocked(key string) (bool, time.Duration) {
	if l == nil || key == "" || l.max <= 0 {
		return false, 0
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.pruneLocked(key, now)
	if len(recent) < l.max {
		return false, 0
	}
	retry := recent[len(recent)-l.max].Add(l.window).Sub(now)
	if retry < time.Second {
		retry = time.Second
	}
	return true, retry
}

func (l *failureLimiter) Fail(key string) {
	if l == nil || key == "" {
		return
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.failures[key] = append(l.pruneLocked(key, now), now)

	l.sweeps++
	if l.sweeps%256 == 0 {
		for k := range l.failures {
			l.pruneLocked(k, now)
		}
	}
}

func (l *failureLimiter) Reset(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.failures, key)
	l.mu.Unlock()
}

func (l *failureLimiter) pruneLocked(key string, now time.Time) []time.Time {
	cut := now.Add(-l.window)
	ts := l.failures[key]
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.failures, key)
		return nil
	}
	l.failures[key] = kept
	return kept
}

func writeRateLimitedHeader(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
