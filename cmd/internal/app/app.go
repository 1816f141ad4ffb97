// Package app wires the clubhouse server runtime: config, logging, HTTP routes,
// the attendance register and the live roster gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clubhouse/cmd/internal/attendance"
	"clubhouse/cmd/internal/attendance/api"
	"clubhouse/cmd/internal/auth/authz"
	"clubhouse/cmd/internal/auth/session"
	"clubhouse/cmd/internal/members"
	"clubhouse/cmd/internal/roster"
	"clubhouse/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// App is the clubhouse server runtime.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	metrics *prometheus.Registry

	register *attendance.Service
	hub      *roster.Hub
	live     *roster.Gateway
	api      *api.Handler
}

// stores groups the backends chosen by newStores.
type stores struct {
	lifecycle  Store
	pool       *pgxpool.Pool
	attendance attendance.Store
	members    members.Store
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}

	params, err := password.ParamsFromEnv()
	if err != nil {
		return nil, err
	}
	hasher := password.NewHasher(params)

	st, err := newStores(context.Background(), cfg, log, hasher)
	if err != nil {
		return nil, err
	}
	dbEnabled := st.pool != nil
	fail := func(err error) (*App, error) {
		_ = st.lifecycle.Close(context.Background())
		return nil, err
	}

	dir, err := members.NewDirectory(st.members, hasher, log)
	if err != nil {
		return fail(err)
	}

	var (
		attMetrics *attendance.Metrics
		registry   *prometheus.Registry
	)
	if cfg.MetricsEnabled {
		attMetrics = attendance.NewMetrics()
		registry, err = newMetricsRegistry(attMetrics)
		if err != nil {
			return fail(err)
		}
	}

	hub := roster.NewHub(log, clock.WallClock)

	opts := []attendance.Option{
		attendance.WithDirectory(dir),
		attendance.WithPeople(dir),
		attendance.WithLocation(loc),
		attendance.WithNotifier(hub),
		attendance.WithMetrics(attMetrics),
		attendance.WithLogger(log),
		attendance.WithClock(clock.WallClock),
	}
	if cfg.BulkLimit > 0 {
		opts = append(opts, attendance.WithBulkLimit(cfg.BulkLimit))
	}
	svc, err := attendance.NewService(st.attendance, opts...)
	if err != nil {
		return fail(err)
	}

	tokens, err := newTokenManager(dbEnabled, log)
	if err != nil {
		return fail(err)
	}
	if cfg.DevSeed && !dbEnabled {
		logDevTokens(log, tokens)
	}

	signer, err := newFlashSigner(cfg, log)
	if err != nil {
		return fail(err)
	}

	handlerOpts := []api.HandlerOption{
		api.WithConfig(api.LoadConfigFromEnv()),
		api.WithAuthenticator(dir),
		api.WithFlashSigner(signer),
		api.WithClock(clock.WallClock),
	}
	if dbEnabled {
		audit, err := api.NewPostgresAudit(st.pool, cfg.DatabaseSchema)
		if err != nil {
			return fail(err)
		}
		handlerOpts = append(handlerOpts, api.WithAudit(audit))
	}
	h, err := api.NewHandler(log, svc, tokens, handlerOpts...)
	if err != nil {
		return fail(err)
	}

	live := roster.NewGateway(log, hub, svc, tokens, clock.WallClock, roster.GatewayConfig{
		OriginRequired: cfg.WSOriginRequired,
		AllowedOrigins: cfg.WSAllowedOrigins,
		SendQueue:      cfg.WSSendQueue,
		HeartbeatEvery: cfg.WSHeartbeatEvery,
		RateEvents:     cfg.WSRateEvents,
		RateWindow:     cfg.WSRateWindow,
	})

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st.lifecycle,
		dbPool:    st.pool,
		dbEnabled: dbEnabled,
		metrics:   registry,
		register:  svc,
		hub:       hub,
		live:      live,
		api:       h,
	}, nil
}

// Handler returns the full middleware-wrapped route tree.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.metrics, a.api, a.live)

	var h http.Handler = mux
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, a.log)
	h = WithRequestID(h)
	return h
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"url", base,
		"live_url", wsBaseURL(base)+LivePath,
		"db_enabled", a.dbEnabled,
		"metrics_enabled", a.metrics != nil,
		"timezone", a.register.Location().String(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done", "live_clients", a.hub.Len())
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		_ = a.store.Close(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	// Close store resources (pool etc).
	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped", "roster_dropped", a.hub.Dropped())
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStores decides between Postgres-backed persistence and the in-memory dev stores.
func newStores(ctx context.Context, cfg Config, log Logger, hasher *password.Hasher) (stores, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		mem := members.NewInMemoryStore()
		if cfg.DevSeed {
			if err := seedMembers(mem, hasher); err != nil {
				return stores{}, err
			}
			log.Warn("db.dev_seed", "members", len(devMembers), "password", devPassword)
		}
		return stores{
			lifecycle:  nopStore{},
			attendance: attendance.NewInMemoryStore(),
			members:    mem,
		}, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return stores{}, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DatabaseSchema)

	// The app owns the pool; the stores only borrow it.
	att, err := attendance.NewPostgresStore(pool, attendance.WithSchema(cfg.DatabaseSchema))
	if err != nil {
		pool.Close()
		return stores{}, err
	}
	mem, err := members.NewPostgresStore(pool, members.WithSchema(cfg.DatabaseSchema))
	if err != nil {
		pool.Close()
		return stores{}, err
	}

	return stores{
		lifecycle:  dbStore{pool: pool},
		pool:       pool,
		attendance: att,
		members:    mem,
	}, nil
}

// newTokenManager loads PASETO keys from the environment. Without a database
// a missing key falls back to an ephemeral pair so local runs work out of the box.
func newTokenManager(dbEnabled bool, log Logger) (*session.TokenManager, error) {
	cfg, err := session.LoadConfigFromEnv()
	if err == nil {
		return session.NewTokenManager(cfg)
	}
	if dbEnabled || !errors.Is(err, session.ErrConfig) {
		return nil, fmt.Errorf("session config: %w", err)
	}

	tm, err := session.NewEphemeralTokenManager(session.DefaultConfig())
	if err != nil {
		return nil, err
	}
	log.Warn("auth.keys.ephemeral", "public_key_hex", tm.PublicKeyHex())
	return tm, nil
}

const devPassword = "clubhouse-dev"

var devMembers = []members.Member{
	{ID: 1, Username: "admin", Name: "Ada", Surname: "Admin", Role: authz.RoleAdmin, Active: true},
	{ID: 2, Username: "mentor", Name: "Mo", Surname: "Mentor", Role: authz.RoleMentor, Active: true},
	{ID: 3, Username: "member", Name: "Mia", Surname: "Member", Role: authz.RoleMember, Active: true},
	{ID: 4, Username: "guest", Name: "Cee", Surname: "Community", Role: authz.RoleCommunity, Active: true},
}

func seedMembers(store *members.InMemoryStore, hasher *password.Hasher) error {
	hash, err := hasher.Hash(devPassword)
	if err != nil {
		return err
	}
	for _, m := range devMembers {
		m.PasswordHash = hash
		if err := store.Put(m); err != nil {
			return err
		}
	}
	return nil
}

func logDevTokens(log Logger, tokens *session.TokenManager) {
	now := time.Now()
	for _, m := range devMembers {
		tok, exp, err := tokens.Issue(session.Principal{UserID: m.ID, Role: m.Role}, now)
		if err != nil {
			log.Warn("auth.dev_token.fail", "user_id", m.ID, "err", err)
			continue
		}
		log.Info("auth.dev_token", "user_id", m.ID, "role", string(m.Role), "expires_at", exp, "token", tok)
	}
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + strings.TrimSpace(addr)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// wsBaseURL maps an http(s) base URL to its ws(s) form.
func wsBaseURL(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "ws://" + strings.TrimPrefix(strings.TrimPrefix(base, "http://"), "https://")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}
