// Package main is a CI-friendly smoke test for the live attendance roster.
//
// It validates:
//   - handshake + subprotocol selection with a bearer token
//   - initial roster.snapshot
//   - sign-in over HTTP -> attendance.signed_in on the socket
//   - sign-out over HTTP -> attendance.signed_out on the socket
//   - roster.snapshot_request -> roster.snapshot
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	subprotocol  = "clubhouse.roster.v1"
	maxReadBytes = 1 << 20 // 1MiB

	typeSnapshot        = "roster.snapshot"
	typeSnapshotRequest = "roster.snapshot_request"
	typeSignedIn        = "attendance.signed_in"
	typeSignedOut       = "attendance.signed_out"
)

type envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type eventPayload struct {
	RecordID string `json:"record_id"`
	UserID   int64  `json:"user_id"`
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		tok     = flag.String("token", os.Getenv("CLUBHOUSE_SMOKE_TOKEN"), "Bearer access token of a mentor or admin")
		userID  = flag.Int64("user", 0, "User to sign in and out (0 = token owner)")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := validateBaseURL(*baseURL)
	if err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}
	if strings.TrimSpace(*tok) == "" {
		fatalf("missing -token (or CLUBHOUSE_SMOKE_TOKEN)")
	}

	root := context.Background()

	conn := mustConnect(root, liveURL(base), *origin, *tok, *timeout)
	defer closeWS(conn)

	snap := mustReadUntilType(root, conn, typeSnapshot, *timeout)
	if *verbose {
		fmt.Printf("snapshot: %s\n", snap.Payload)
	}

	api := newAPIClient(base, *tok, *timeout)
	api.mustFetchCSRF(root)

	api.mustPost(root, "/attendance/signin", map[string]any{"user_id": *userID})
	in := mustReadUntilType(root, conn, typeSignedIn, *timeout)
	recordID := mustEventRecord(in, *userID)

	api.mustPost(root, "/attendance/signout", map[string]any{"user_id": *userID})
	out := mustReadUntilType(root, conn, typeSignedOut, *timeout)
	if got := mustEventRecord(out, *userID); got != recordID {
		fatalf("signed_out record=%q want %q", got, recordID)
	}

	mustWrite(root, conn, envelope{V: 1, Type: typeSnapshotRequest, ID: "smoke-snap", TS: time.Now().UTC()}, *timeout)
	mustReadUntilType(root, conn, typeSnapshot, *timeout)

	fmt.Printf("OK: roster smoke passed (record=%s)\n", recordID)
}

func validateBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func liveURL(base *url.URL) string {
	u := *base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/attendance/live"
	return u.String()
}

func mustConnect(parent context.Context, wsURL, origin, tok string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok)
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	if got := conn.Subprotocol(); got != subprotocol {
		fatalf("subprotocol=%q want %q", got, subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)
	return conn
}

func mustReadUntilType(parent context.Context, conn *websocket.Conn, want string, stepTimeout time.Duration) envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			fatalf("waiting for %s: %v", want, err)
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			fatalf("decode frame: %v", err)
		}
		if env.Type == "error" {
			fatalf("server error frame while waiting for %s: %s", want, env.Payload)
		}
		if env.Type == want {
			return env
		}
	}
}

func mustWrite(parent context.Context, conn *websocket.Conn, env envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal %s: %v", env.Type, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write %s: %v", env.Type, err)
	}
}

func mustEventRecord(env envelope, userID int64) string {
	var p eventPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("decode %s payload: %v", env.Type, err)
	}
	if userID > 0 && p.UserID != userID {
		fatalf("%s for user %d, want %d", env.Type, p.UserID, userID)
	}
	if p.RecordID == "" {
		fatalf("%s missing record_id", env.Type)
	}
	return p.RecordID
}

type apiClient struct {
	base  *url.URL
	token string
	csrf  string
	http  *http.Client
}

func newAPIClient(base *url.URL, tok string, timeout time.Duration) *apiClient {
	jar, _ := cookiejar.New(nil)
	return &apiClient{
		base:  base,
		token: tok,
		http:  &http.Client{Jar: jar, Timeout: timeout},
	}
}

func (c *apiClient) mustFetchCSRF(ctx context.Context) {
	var out struct {
		Data struct {
			CSRFToken string `json:"csrf_token"`
		} `json:"data"`
	}
	c.mustDo(ctx, http.MethodGet, "/attendance/csrf", nil, &out)
	if out.Data.CSRFToken == "" {
		fatalf("csrf endpoint returned no token")
	}
	c.csrf = out.Data.CSRFToken
}

func (c *apiClient) mustPost(ctx context.Context, path string, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		fatalf("marshal %s: %v", path, err)
	}
	c.mustDo(ctx, http.MethodPost, path, b, nil)
}

func (c *apiClient) mustDo(ctx context.Context, method, path string, body []byte, out any) {
	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}

	res, err := c.http.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(res.Body, maxReadBytes))
	if res.StatusCode/100 != 2 {
		fatalf("%s %s: status=%d body=%s", method, path, res.StatusCode, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
