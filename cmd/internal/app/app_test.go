package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "port only", in: ":8080", want: "http://127.0.0.1:8080"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWSBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
		{in: "https://clubhouse.example.com", want: "wss://clubhouse.example.com"},
		{in: "127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
	}

	for _, tc := range cases {
		got := wsBaseURL(tc.in)
		if got != tc.want {
			t.Fatalf("wsBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func newInMemoryApp(t *testing.T, cfg Config) *App {
	t.Helper()

	t.Setenv("CLUBHOUSE_PASETO_V4_SECRET_KEY_HEX", "")
	t.Setenv("CLUBHOUSE_PASETO_V4_PUBLIC_KEY_HEX", "")
	t.Setenv("CLUBHOUSE_FLASH_KEY", "")

	a, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestApp_InMemoryRoutes(t *testing.T) {
	a := newInMemoryApp(t, Config{
		Timezone:       "Africa/Johannesburg",
		BulkLimit:      500,
		MetricsEnabled: true,
	})
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	cases := []struct {
		path     string
		want     int
		contains string
	}{
		{path: "/healthz", want: http.StatusOK, contains: "ok"},
		{path: "/readyz", want: http.StatusOK, contains: "ready"},
		{path: "/metrics", want: http.StatusOK, contains: "clubhouse_attendance_visit_duration_minutes"},
		{path: "/attendance/current", want: http.StatusUnauthorized},
		{path: "/attendance/register", want: http.StatusUnauthorized},
		{path: "/attendance/dates", want: http.StatusUnauthorized},
		{path: "/attendance/search?query=ab", want: http.StatusUnauthorized},
		{path: "/attendance/csrf", want: http.StatusOK, contains: "csrf_token"},
	}

	for _, tc := range cases {
		res, err := http.Get(srv.URL + tc.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tc.path, err)
		}
		body, _ := io.ReadAll(res.Body)
		_ = res.Body.Close()

		if res.StatusCode != tc.want {
			t.Fatalf("GET %s: status=%d want=%d body=%q", tc.path, res.StatusCode, tc.want, body)
		}
		if tc.contains != "" && !strings.Contains(string(body), tc.contains) {
			t.Fatalf("GET %s: body %q missing %q", tc.path, body, tc.contains)
		}
		if res.Header.Get(RequestIDHeader) == "" {
			t.Fatalf("GET %s: missing request id header", tc.path)
		}
		if res.Header.Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("GET %s: missing security headers", tc.path)
		}
	}
}

func TestApp_ReadinessRequiresDB(t *testing.T) {
	a := newInMemoryApp(t, Config{
		Timezone:           "UTC",
		ReadinessRequireDB: true,
	})

	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d want 503", rr.Code)
	}

	rr = httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("metrics disabled but status=%d", rr.Code)
	}
}

func TestNew_RejectsUnknownTimezone(t *testing.T) {
	t.Setenv("CLUBHOUSE_PASETO_V4_SECRET_KEY_HEX", "")
	_, err := New(Config{Timezone: "Mars/Olympus_Mons"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatalf("expected timezone error")
	}
}
