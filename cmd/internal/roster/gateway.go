package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"clubhouse/cmd/internal/attendance"
	"clubhouse/cmd/internal/auth/authz"
	"clubhouse/cmd/internal/auth/session"

	"github.com/coder/websocket"
	"github.com/juju/clock"
)

const (
	// AccessCookieName matches the cookie set by the attendance HTTP surface.
	AccessCookieName = "clubhouse_access"

	maxFrameBytes = 16 << 10

	minSendQueue      = 16
	maxPingFailures   = 3
	closeGrace        = time.Second
	snapshotTimeout   = 5 * time.Second
	defaultRateEvents = 10
	defaultRateWindow = 10 * time.Second
)

// Snapshotter produces the current roster. *attendance.Service satisfies it.
type Snapshotter interface {
	CurrentAttendance(ctx context.Context, day time.Time) (attendance.Roster, error)
}

// GatewayConfig carries the connection policy. Zero fields take defaults.
type GatewayConfig struct {
	OriginRequired bool
	AllowedOrigins []string

	WriteTimeout     time.Duration
	ReadIdleTimeout  time.Duration
	SendQueue        int
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration
}

// DefaultGatewayConfig only accepts localhost origins.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		OriginRequired:   true,
		AllowedOrigins:   []string{"http://localhost", "http://127.0.0.1"},
		WriteTimeout:     5 * time.Second,
		ReadIdleTimeout:  2 * time.Minute,
		SendQueue:        64,
		HeartbeatEvery:   25 * time.Second,
		HeartbeatTimeout: 5 * time.Second,
		RateEvents:       defaultRateEvents,
		RateWindow:       defaultRateWindow,
	}
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	d := DefaultGatewayConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = d.ReadIdleTimeout
	}
	if c.SendQueue < minSendQueue {
		c.SendQueue = max(c.SendQueue, d.SendQueue)
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = d.HeartbeatEvery
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = d.RateEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = d.RateWindow
	}
	return c
}

// Gateway is the WebSocket entrypoint for the live roster.
//
// Only principals allowed to view the roster may connect. The bearer token is
// taken from the Authorization header or the access cookie.
type Gateway struct {
	log      *slog.Logger
	hub      *Hub
	roster   Snapshotter
	verifier session.Verifier
	clock    clock.Clock
	cfg      GatewayConfig

	// websocket.Accept performs its own cross-origin check and needs host patterns.
	originPatterns []string
}

func NewGateway(log *slog.Logger, hub *Hub, roster Snapshotter, verifier session.Verifier, clk clock.Clock, cfg GatewayConfig) *Gateway {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if clk == nil {
		clk = clock.WallClock
	}
	if hub == nil {
		hub = NewHub(log, clk)
	}
	cfg = cfg.withDefaults()
	return &Gateway{
		log:            log,
		hub:            hub,
		roster:         roster,
		verifier:       verifier,
		clock:          clk,
		cfg:            cfg,
		originPatterns: originPatterns(cfg.AllowedOrigins),
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS authenticates, upgrades and then runs the connection until either side closes.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("roster.ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	p, err := g.authenticate(r)
	if err != nil {
		g.log.Info("roster.ws.reject.auth", "err", err, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !authz.Allow(p.Role, authz.ViewRoster) {
		g.log.Info("roster.ws.reject.forbidden", "user_id", p.UserID, "role", string(p.Role))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Error("roster.ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != Subprotocol {
		g.log.Info("roster.ws.reject.subprotocol", "got", sp, "want", Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(newID(), p.UserID, g.cfg.SendQueue)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Leave(client.ID)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	// Join before the snapshot so no transition committed after it is missed.
	g.hub.Join(client)
	if err := g.sendSnapshot(ctx, client); err != nil {
		g.log.Error("roster.ws.snapshot.fail", "client_id", client.ID, "err", err)
		shutdown(websocket.StatusInternalError, "snapshot failed")
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("roster.ws.write.fail", "client_id", client.ID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		t := g.clock.NewTimer(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.Chan():
				t.Reset(g.cfg.HeartbeatEvery)
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()
				if err != nil {
					failures++
					g.log.Info("roster.ws.ping.fail", "client_id", client.ID, "failures", failures, "err", err)
					if failures >= maxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	rl := newRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		kind := readErrUnknown
		if err != nil {
			kind = classifyReadErr(err)
			switch kind {
			case readErrBadJSON:
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			default:
				g.log.Info("roster.ws.read.fail", "client_id", client.ID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		// Every frame that reached us counts, malformed ones included.
		if !rl.Allow(g.clock.Now()) {
			g.trySendError(ctx, client, "rate_limited", "too many requests")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if kind == readErrBadJSON {
			g.trySendError(ctx, client, "bad_json", "invalid JSON")
			continue readLoop
		}

		if err := env.ValidateInbound(); err != nil {
			g.trySendError(ctx, client, "bad_envelope", err.Error())
			continue readLoop
		}

		if err := g.sendSnapshot(ctx, client); err != nil {
			g.trySendError(ctx, client, "snapshot_failed", "roster unavailable")
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
}

func (g *Gateway) authenticate(r *http.Request) (session.Principal, error) {
	if g.verifier == nil {
		return session.Principal{}, errors.New("no verifier configured")
	}
	tok := bearerToken(r)
	if tok == "" {
		if c, err := r.Cookie(AccessCookieName); err == nil {
			tok = strings.TrimSpace(c.Value)
		}
	}
	if tok == "" {
		return session.Principal{}, errors.New("missing token")
	}
	return g.verifier.Verify(tok, g.clock.Now())
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

func (g *Gateway) sendSnapshot(ctx context.Context, client *Client) error {
	if g.roster == nil {
		return errors.New("no roster source")
	}
	sctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	now := g.clock.Now()
	r, err := g.roster.CurrentAttendance(sctx, now)
	if err != nil {
		return err
	}
	env, err := newEnvelope(TypeSnapshot, snapshotFromRoster(r), now)
	if err != nil {
		return err
	}
	if !g.enqueue(ctx, client, env) {
		return errors.New("backpressure: snapshot")
	}
	return nil
}

func (g *Gateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	env, err := newEnvelope(TypeError, ErrorPayload{Code: code, Message: msg}, g.clock.Now())
	if err != nil {
		return
	}
	_ = g.enqueue(ctx, client, env)
}

func (g *Gateway) enqueue(ctx context.Context, client *Client, env Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		return false
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return Envelope{}, err
	}
	if mt != websocket.MessageText {
		return Envelope{}, errBadJSON
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

var errBadJSON = errors.New("bad json frame")

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	switch {
	case errors.Is(err, errBadJSON):
		return readErrBadJSON
	case websocket.CloseStatus(err) != -1:
		return readErrClose
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return readErrCtxDone
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return readErrConnClosed
	}
	return readErrUnknown
}

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}
	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	host := originHost(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
			continue
		case a == "*", a == origin:
			return nil
		case host != "" && host == originHost(a):
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

// originHost reduces an origin or host[:port] to a lower-case host.
func originHost(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func originPatterns(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, a := range allowed {
		h := originHost(a)
		if h == "" || slices.Contains(out, h) {
			continue
		}
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}
