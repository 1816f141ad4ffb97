package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"clubhouse/cmd/internal/attendance"
	"clubhouse/cmd/internal/auth/authz"
	"clubhouse/cmd/internal/auth/session"
	"clubhouse/cmd/internal/members"
	"clubhouse/cmd/security/token"

	"github.com/go-playground/validator/v10"
	"github.com/juju/clock"
)

// Register is the attendance service as seen by the HTTP layer.
// *attendance.Service satisfies it.
type Register interface {
	SignIn(ctx context.Context, in attendance.SignInInput) (attendance.SignInResult, error)
	SignOut(ctx context.Context, userID int64, at time.Time) (attendance.SignOutResult, error)
	BulkSignOut(ctx context.Context, userIDs []int64, at time.Time) (attendance.BulkResult, error)
	SignOutAll(ctx context.Context, at time.Time) (attendance.BulkResult, error)
	CurrentAttendance(ctx context.Context, day time.Time) (attendance.Roster, error)
	Stats(ctx context.Context, in attendance.StatsInput) (attendance.Stats, error)
	UserHistory(ctx context.Context, userID int64, in attendance.HistoryInput) (attendance.History, error)
	RegisterByDate(ctx context.Context, day time.Time, filter string) (attendance.Register, error)
	ActiveDates(ctx context.Context, limit int) ([]string, error)
	Search(ctx context.Context, in attendance.SearchInput) (attendance.SearchResult, error)
	Location() *time.Location
}

// Authenticator checks kiosk credentials. *members.Directory satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, userID int64, password string) (members.Member, error)
}

// Handler wires HTTP endpoints to the attendance service.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	register Register
	verifier session.Verifier
	kiosk    Authenticator
	signer   *token.Signer
	clock    clock.Clock
	validate *validator.Validate

	audit      AuditSink
	kioskUsers *failureLimiter
	kioskIPs   *failureLimiter
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

func WithConfig(cfg Config) HandlerOption {
	return func(h *Handler) { h.cfg = cfg }
}

// WithAuthenticator enables the kiosk endpoint.
func WithAuthenticator(a Authenticator) HandlerOption {
	return func(h *Handler) {
		if a != nil {
			h.kiosk = a
		}
	}
}

// WithFlashSigner sets the key used for flash cookies. Without it a random
// per-process key is used and flashes do not survive a restart.
func WithFlashSigner(s *token.Signer) HandlerOption {
	return func(h *Handler) {
		if s != nil {
			h.signer = s
		}
	}
}

// WithAudit records kiosk attempts and staff actions on other members.
func WithAudit(a AuditSink) HandlerOption {
	return func(h *Handler) { h.audit = a }
}

func WithClock(c clock.Clock) HandlerOption {
	return func(h *Handler) {
		if c != nil {
			h.clock = c
		}
	}
}

func NewHandler(log *slog.Logger, register Register, verifier session.Verifier, opts ...HandlerOption) (*Handler, error) {
	if register == nil || verifier == nil {
		return nil, errors.New("attendance api: nil register or verifier")
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:      log,
		cfg:      DefaultConfig(),
		register: register,
		verifier: verifier,
		clock:    clock.WallClock,
		validate: newValidator(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.cfg = h.cfg.withDefaults()

	if h.signer == nil {
		s, err := token.NewRandomSigner()
		if err != nil {
			return nil, err
		}
		h.signer = s
	}
	h.kioskUsers = newFailureLimiter(h.clock, h.cfg.KioskUserMax, h.cfg.KioskWindow)
	h.kioskIPs = newFailureLimiter(h.clock, h.cfg.KioskIPMax, h.cfg.KioskWindow)
	return h, nil
}

// Register wires attendance routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/attendance/csrf", h.handleCSRF)
	mux.HandleFunc("/attendance/flash", h.handleFlash)
	mux.HandleFunc("/attendance/kiosk/signin", h.handleKioskSignIn)
	mux.HandleFunc("/attendance/signin", h.authed(http.MethodPost, h.handleSignIn))
	mux.HandleFunc("/attendance/signout", h.authed(http.MethodPost, h.handleSignOut))
	mux.HandleFunc("/attendance/bulk-signout", h.authed(http.MethodPost, h.handleBulkSignOut))
	mux.HandleFunc("/attendance/signout-all", h.authed(http.MethodPost, h.handleSignOutAll))
	mux.HandleFunc("/attendance/current", h.authed(http.MethodGet, h.handleCurrent))
	mux.HandleFunc("/attendance/stats", h.authed(http.MethodGet, h.handleStats))
	mux.HandleFunc("/attendance/users/{id}/history", h.authed(http.MethodGet, h.handleHistory))
	mux.HandleFunc("/attendance/register", h.authed(http.MethodGet, h.handleRegister))
	mux.HandleFunc("/attendance/dates", h.authed(http.MethodGet, h.handleActiveDates))
	mux.HandleFunc("/attendance/search", h.authed(http.MethodGet, h.handleSearch))
}

// ---- handlers ----

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	tok, exp, err := h.issueCSRF(w, h.clock.Now())
	if err != nil {
		h.log.Error("attendance.csrf.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, apiError{Code: "internal_error", Message: msgInternal})
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: csrfResponse{CSRFToken: tok, ExpiresAt: exp.UTC()}})
}

func (h *Handler) handleFlash(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	f, ok := h.ReadFlash(w, r)
	if !ok {
		writeJSON(w, http.StatusOK, successResponse{Success: true})
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: f})
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	p, _ := session.PrincipalFrom(r.Context())
	var req signInRequest
	if !h.prepare(w, r, &req) {
		return
	}
	redirect := h.redirectFor(req.RedirectTo)

	target, action := selfOrOther(p, int64(req.UserID), authz.SignInSelf, authz.SignInOther)
	if !h.authorize(w, r, redirect, p, action) {
		return
	}

	res, err := h.register.SignIn(r.Context(), attendance.SignInInput{
		UserID:   target,
		Method:   attendance.Method(req.Method),
		Location: req.Location,
		Notes:    req.Notes,
	})
	if err != nil {
		h.serviceError(w, r, redirect, "attendance.sign_in", err)
		return
	}

	h.log.Info("attendance.sign_in", "user_id", res.UserID, "by", p.UserID, "record_id", res.RecordID)
	h.auditOnBehalf(r, "attendance.sign_in.on_behalf", p.UserID, res.UserID, res.RecordID)
	h.ok(w, r, redirect, FlashSuccess, msgSignedIn, signInResponse{
		RecordID:    res.RecordID,
		UserID:      res.UserID,
		CheckedInAt: res.CheckedInAt,
	})
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	p, _ := session.PrincipalFrom(r.Context())
	var req signOutRequest
	if !h.prepare(w, r, &req) {
		return
	}
	redirect := h.redirectFor(req.RedirectTo)

	target, action := selfOrOther(p, int64(req.UserID), authz.SignOutSelf, authz.SignOutOther)
	if !h.authorize(w, r, redirect, p, action) {
		return
	}

	res, err := h.register.SignOut(r.Context(), target, time.Time{})
	if err != nil {
		h.serviceError(w, r, redirect, "attendance.sign_out", err)
		return
	}

	h.log.Info("attendance.sign_out", "user_id", res.UserID, "by", p.UserID, "record_id", res.RecordID, "duration_minutes", res.DurationMinutes)
	h.auditOnBehalf(r, "attendance.sign_out.on_behalf", p.UserID, res.UserID, res.RecordID)
	h.ok(w, r, redirect, FlashSuccess, msgSignedOut, signOutResponse{
		RecordID:        res.RecordID,
		UserID:          res.UserID,
		CheckedInAt:     res.CheckedInAt,
		CheckedOutAt:    res.CheckedOutAt,
		DurationMinutes: res.DurationMinutes,
		Duration:        attendance.FormatDuration(res.DurationMinutes),
	})
}

func (h *Handler) handleBulkSignOut(w http.ResponseWriter, r *http.Request) {
	p, _ := session.PrincipalFrom(r.Context())
	var req bulkSignOutRequest
	if !h.prepare(w, r, &req) {
		return
	}
	redirect := h.redirectFor(req.RedirectTo)
	if !h.authorize(w, r, redirect, p, authz.BulkSignOut) {
		return
	}

	ids, err := req.ids()
	if err != nil {
		msg := err.Error()
		if errors.Is(err, errMissingIDs) {
			msg = msgMissingIDs
		}
		h.fail(w, r, redirect, http.StatusBadRequest, apiError{Code: "validation_error", Message: msg})
		return
	}

	res, err := h.register.BulkSignOut(r.Context(), ids, time.Time{})
	if err != nil {
		h.serviceError(w, r, redirect, "attendance.bulk_sign_out", err)
		return
	}
	h.log.Info("attendance.bulk_sign_out", "by", p.UserID, "total", res.Summary.Total, "succeeded", res.Summary.Succeeded)
	h.auditBulk(r, "attendance.bulk_sign_out", p.UserID, res.Summary.Total, res.Summary.Succeeded)
	h.bulkResult(w, r, redirect, res)
}

func (h *Handler) handleSignOutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := session.PrincipalFrom(r.Context())
	var req signOutAllRequest
	if !h.prepare(w, r, &req) {
		return
	}
	redirect := h.redirectFor(req.RedirectTo)
	if !h.authorize(w, r, redirect, p, authz.BulkSignOut) {
		return
	}

	res, err := h.register.SignOutAll(r.Context(), time.Time{})
	if err != nil {
		h.serviceError(w, r, redirect, "attendance.sign_out_all", err)
		return
	}
	h.log.Info("attendance.sign_out_all", "by", p.UserID, "total", res.Summary.Total, "succeeded", res.Summary.Succeeded)
	h.auditBulk(r, "attendance.sign_out_all", p.UserID, res.Summary.Total, res.Summary.Succeeded)
	if res.Summary.Total == 0 {
		h.ok(w, r, redirect, FlashSuccess, msgNobodySignedIn, toBulkResponse(res))
		return
	}
	h.bulkResult(w, r, redirect, res)
}

func (h *Handler) handleKioskSignIn(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req kioskSignInRequest
	if !h.prepare(w, r, &req) {
		return
	}
	redirect := h.redirectFor(req.RedirectTo)
	if h.kiosk == nil {
		h.fail(w, r, redirect, http.StatusServiceUnavailable, apiError{Code: "kiosk_unavailable", Message: "Kiosk sign-in is not available"})
		return
	}

	userKey := "user:" + formatID(int64(req.UserID))
	ipKey := ""
	if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
		ipKey = "ip:" + ip.String()
	}

	for _, key := range []string{ipKey, userKey} {
		if blocked, retry := h.limiterFor(key).Blocked(key); blocked {
			h.log.Info("attendance.kiosk.rate_limited", "key", key, "retry_after_s", int64(retry.Seconds()))
			h.auditKioskRateLimited(r, int64(req.UserID), key, retry)
			writeRateLimitedHeader(w, retry)
			h.fail(w, r, redirect, http.StatusTooManyRequests, apiError{Code: "too_many_attempts", Message: msgTooManyAttempts})
			return
		}
	}

	m, err := h.kiosk.Authenticate(r.Context(), int64(req.UserID), req.Password)
	if err != nil {
		if !errors.Is(err, members.ErrInvalidCredentials) {
			h.serviceError(w, r, redirect, "attendance.kiosk.authenticate", err)
			return
		}
		h.kioskUsers.Fail(userKey)
		h.kioskIPs.Fail(ipKey)
		h.log.Info("attendance.kiosk.denied", "user_id", int64(req.UserID), "ip", ipKey)
		h.auditKioskDenied(r, int64(req.UserID))
		h.fail(w, r, redirect, http.StatusUnauthorized, apiError{Code: "invalid_credentials", Message: msgInvalidCredentials})
		return
	}
	h.kioskUsers.Reset(userKey)

	res, err := h.register.SignIn(r.Context(), attendance.SignInInput{
		UserID:   m.ID,
		Method:   attendance.MethodKiosk,
		Location: req.Location,
	})
	if err != nil {
		h.serviceError(w, r, redirect, "attendance.kiosk.sign_in", err)
		return
	}

	h.log.Info("attendance.kiosk.sign_in", "user_id", res.UserID, "record_id", res.RecordID)
	h.auditKioskSignIn(r, res.UserID, res.RecordID)
	h.ok(w, r, redirect, FlashSuccess, msgSignedIn, signInResponse{
		RecordID:    res.RecordID,
		UserID:      res.UserID,
		CheckedInAt: res.CheckedInAt,
	})
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	p, _ := session.PrincipalFrom(r.Context())
	if !h.authorize(w, r, "", p, authz.ViewRoster) {
		return
	}

	day, err := h.queryDay(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, apiError{Code: "validation_error", Message: err.Error()})
		return
	}
	roster, err := h.register.CurrentAttendance(r.Context(), day)
	if err != nil {
		h.serviceError(w, r, "", "attendance.current", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: toRosterResponse(roster)})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	p, _ := session.PrincipalFrom(r.Context())
	if !h.authorize(w, r, "", p, authz.ViewStats) {
		return
	}

	start, err := h.queryDay(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, apiError{Code: "validation_error", Message: err.Error()})
		return
	}
	end, err := h.queryDay(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, apiError{Code: "validation_error", Message: err.Error()})
		return
	}

	stats, err := h.register.Stats(r.Context(), attendance.StatsInput{Start: start, End: end})
	if err != nil {
		h.serviceError(w, r, "", "attendance.stats", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: toStatsResponse(stats)})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	p, _ := session.PrincipalFrom(r.Context())

	userID, err := parseID(r.PathValue("id"))
	if err != nil || userID == 0 {
		writeError(w, http.StatusBadRequest, apiError{Code: "validation_error", Message: "Invalid user ID"})
		return
	}
	action := authz.ViewHistory
	if userID == p.UserID {
		action = authz.ViewOwnHistory
	}
	if !h.authorize(w, r, "", p, action) {
		return
	}

	in := attendance.HistoryInput{}
	if in.Start, err = h.queryDay(r, "start"); err != nil {
		writeError(w, http.StatusBadRequest, apiError{Code: "validation_error", Message: err.Error()})
		return
	}
	if in.End, err = h.queryDay(r, "end"); err != nil {
		writeError(w, http.StatusBadRequest, apiError{Code: "validation_error", Message: err.Error()})
		return
	}
	var ok bool
	if in.Limit, ok = queryLimit(w, r); !ok {
		return
	}

	hist, err := h.register.UserHistory(r.Context(), userID, in)
	if err != nil {
		h.serviceError(w, r, "", "attendance.history", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: toHistoryResponse(hist)})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	p, _ := session.PrincipalFrom(r.Context())
	if !h.authorize(w, r, "", p, authz.ViewRoster) {
		return
	}

	day, err := h.queryDay(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, apiError{Code: "validation_error", Message: err.Error()})
		return
	}
	reg, err := h.register.RegisterByDate(r.Context(), day, r.URL.Query().Get("filter"))
	if err != nil {
		h.serviceError(w, r, "", "attendance.register", err)
		return
	}
	h.log.Debug("attendance.register.view", "by", p.UserID, "date", reg.Date, "filter", reg.Filter, "count", reg.Counts.Total)
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: toRegisterResponse(reg)})
}

func (h *Handler) handleActiveDates(w http.ResponseWriter, r *http.Request) {
	p, _ := session.PrincipalFrom(r.Context())
	if !h.authorize(w, r, "", p, authz.ViewRoster) {
		return
	}

	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	dates, err := h.register.ActiveDates(r.Context(), limit)
	if err != nil {
		h.serviceError(w, r, "", "attendance.dates", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: activeDatesResponse{Dates: dates}})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	p, _ := session.PrincipalFrom(r.Context())
	if !h.authorize(w, r, "", p, authz.ViewRoster) {
		return
	}

	in := attendance.SearchInput{Query: r.URL.Query().Get("query")}
	var err error
	if in.Start, err = h.queryDay(r, "start"); err != nil {
		writeError(w, http.StatusBadRequest, apiError{Code: "validation_error", Message: err.Error()})
		return
	}
	if in.End, err = h.queryDay(r, "end"); err != nil {
		writeError(w, http.StatusBadRequest, apiError{Code: "validation_error", Message: err.Error()})
		return
	}
	var ok bool
	if in.Limit, ok = queryLimit(w, r); !ok {
		return
	}

	res, err := h.register.Search(r.Context(), in)
	if err != nil {
		h.serviceError(w, r, "", "attendance.search", err)
		return
	}
	h.log.Info("attendance.search", "by", p.UserID, "query", res.Query, "result_count", len(res.Records))
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: msgSearchDone, Data: searchResponse{
		Results: toRecordResponses(res.Records),
		Count:   len(res.Records),
		Query:   res.Query,
	}})
}

func (h *Handler) limiterFor(key string) *failureLimiter {
	if len(key) > 3 && key[:3] == "ip:" {
		return h.kioskIPs
	}
	return h.kioskUsers
}
