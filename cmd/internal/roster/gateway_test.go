package roster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clubhouse/cmd/internal/attendance"
	"clubhouse/cmd/internal/auth/authz"
	"clubhouse/cmd/internal/auth/session"

	"github.com/coder/websocket"
	"github.com/juju/clock/testclock"
)

type fakeVerifier map[string]session.Principal

func (f fakeVerifier) Verify(token string, _ time.Time) (session.Principal, error) {
	p, ok := f[token]
	if !ok {
		return session.Principal{}, session.ErrInvalidToken
	}
	return p, nil
}

var testVerifier = fakeVerifier{
	"staff":  {UserID: 100, Role: authz.RoleMentor},
	"member": {UserID: 7, Role: authz.RoleMember},
}

func newTestGateway(t *testing.T, tune ...func(*GatewayConfig)) (*httptest.Server, *attendance.Service) {
	t.Helper()

	clk := testclock.NewClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	hub := NewHub(nil, clk)
	svc, err := attendance.NewService(attendance.NewInMemoryStore(),
		attendance.WithClock(clk),
		attendance.WithNotifier(hub),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	cfg := DefaultGatewayConfig()
	cfg.OriginRequired = false
	for _, f := range tune {
		f(&cfg)
	}
	gw := NewGateway(nil, hub, svc, testVerifier, clk, cfg)

	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return srv, svc
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
		HTTPHeader:   h,
	})
}

func readEnv(t *testing.T, ctx context.Context, c *websocket.Conn) Envelope {
	t.Helper()
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func writeEnv(t *testing.T, ctx context.Context, c *websocket.Conn, env Envelope) {
	t.Helper()
	b, _ := json.Marshal(env)
	if err := c.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestGateway_SnapshotThenLiveEvents(t *testing.T) {
	t.Parallel()

	srv, svc := newTestGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := svc.SignIn(ctx, attendance.SignInInput{UserID: 1}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	conn, _, err := dial(t, ctx, srv, "staff")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	snap := readEnv(t, ctx, conn)
	if snap.Type != TypeSnapshot {
		t.Fatalf("first frame=%q want snapshot", snap.Type)
	}
	var sp SnapshotPayload
	if err := json.Unmarshal(snap.Payload, &sp); err != nil {
		t.Fatalf("snapshot payload: %v", err)
	}
	if sp.Counts.SignedIn != 1 || len(sp.SignedIn) != 1 || sp.SignedIn[0].UserID != 1 {
		t.Fatalf("snapshot=%+v", sp)
	}

	if _, err := svc.SignIn(ctx, attendance.SignInInput{UserID: 2}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	ev := readEnv(t, ctx, conn)
	if ev.Type != TypeSignedIn {
		t.Fatalf("event type=%q want %q", ev.Type, TypeSignedIn)
	}
	var ep EventPayload
	if err := json.Unmarshal(ev.Payload, &ep); err != nil {
		t.Fatalf("event payload: %v", err)
	}
	if ep.UserID != 2 {
		t.Fatalf("event user=%d want=2", ep.UserID)
	}

	writeEnv(t, ctx, conn, Envelope{V: Version, Type: TypeSnapshotRequest})
	again := readEnv(t, ctx, conn)
	if again.Type != TypeSnapshot {
		t.Fatalf("frame=%q want snapshot", again.Type)
	}
	if err := json.Unmarshal(again.Payload, &sp); err != nil {
		t.Fatalf("snapshot payload: %v", err)
	}
	if sp.Counts.SignedIn != 2 {
		t.Fatalf("signed_in=%d want=2", sp.Counts.SignedIn)
	}

	writeEnv(t, ctx, conn, Envelope{V: 9, Type: TypeSnapshotRequest})
	bad := readEnv(t, ctx, conn)
	if bad.Type != TypeError {
		t.Fatalf("frame=%q want error", bad.Type)
	}
	var errp ErrorPayload
	_ = json.Unmarshal(bad.Payload, &errp)
	if errp.Code != "bad_envelope" {
		t.Fatalf("code=%q want bad_envelope", errp.Code)
	}
}

func TestGateway_MalformedFramesCountTowardsRateLimit(t *testing.T) {
	t.Parallel()

	srv, _ := newTestGateway(t, func(c *GatewayConfig) {
		c.RateEvents = 3
		c.RateWindow = time.Minute
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := dial(t, ctx, srv, "staff")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if snap := readEnv(t, ctx, conn); snap.Type != TypeSnapshot {
		t.Fatalf("first frame=%q want snapshot", snap.Type)
	}

	frames := []struct {
		typ  websocket.MessageType
		data string
	}{
		{websocket.MessageText, "not json"},
		{websocket.MessageBinary, "\x00\x01"},
		{websocket.MessageText, "{"},
		{websocket.MessageBinary, "\x02"},
	}
	for _, f := range frames {
		// The last write may race the server closing the connection.
		_ = conn.Write(ctx, f.typ, []byte(f.data))
	}

	badJSON := 0
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
				t.Fatalf("close status=%v err=%v want policy violation", got, err)
			}
			break
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		var ep ErrorPayload
		_ = json.Unmarshal(env.Payload, &ep)
		if ep.Code == "bad_json" {
			badJSON++
		}
	}
	if badJSON > 3 {
		t.Fatalf("bad_json replies=%d, limiter let more than 3 frames through", badJSON)
	}
}

func TestGateway_RejectsUnauthenticatedAndUnprivileged(t *testing.T) {
	t.Parallel()

	srv, _ := newTestGateway(t)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"bad token", "forged", http.StatusUnauthorized},
		{"member", "member", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn, resp, err := dial(t, ctx, srv, tt.token)
			if err == nil {
				conn.Close(websocket.StatusNormalClosure, "")
				t.Fatal("dial succeeded, want rejection")
			}
			if resp == nil || resp.StatusCode != tt.status {
				t.Fatalf("resp=%v want status %d", resp, tt.status)
			}
		})
	}
}

func TestGateway_EnforceOrigin(t *testing.T) {
	t.Parallel()

	g := NewGateway(nil, nil, nil, nil, nil, GatewayConfig{
		OriginRequired: true,
		AllowedOrigins: []string{"https://club.example.org", "http://localhost:3000"},
	})

	tests := []struct {
		origin  string
		wantErr bool
	}{
		{"", true},
		{"https://club.example.org", false},
		{"http://localhost:5173", false},
		{"https://evil.example.com", true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/attendance/live", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		err := g.enforceOrigin(r)
		if (err != nil) != tt.wantErr {
			t.Fatalf("origin %q: err=%v wantErr=%v", tt.origin, err, tt.wantErr)
		}
	}
}

func TestOriginPatterns(t *testing.T) {
	t.Parallel()

	got := originPatterns([]string{"http://LocalHost:3000", "http://localhost", "https://club.example.org", " "})
	want := []string{"club.example.org", "localhost"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("patterns=%v want=%v", got, want)
	}
}
