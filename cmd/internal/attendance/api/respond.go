package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"clubhouse/cmd/internal/attendance"
	"clubhouse/cmd/internal/auth/authz"
	"clubhouse/cmd/internal/auth/session"

	"github.com/go-playground/validator/v10"
)

const (
	msgSignedIn           = "Successfully signed in"
	msgSignedOut          = "Successfully signed out"
	msgAllSignedOut       = "All users signed out successfully"
	msgNoneSignedOut      = "No users were signed out"
	msgNobodySignedIn     = "Nobody is signed in"
	msgAlreadySignedIn    = "User is already signed in"
	msgNotSignedIn        = "User is not signed in"
	msgUserNotFound       = "User not found"
	msgInvalidCredentials = "Invalid credentials"
	msgTooManyAttempts    = "Too many failed attempts. Please try again later."
	msgUnauthorized       = "Authentication required"
	msgForbidden          = "You do not have permission to perform this action"
	msgCSRF               = "Invalid or missing CSRF token"
	msgInvalidRequest     = "Invalid request body"
	msgInternal           = "An error occurred. Please try again."
	msgSearchDone         = "Search completed successfully"
)

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, apiError{Code: "method_not_allowed", Message: "Invalid request method"})
	return false
}

// requireAuth verifies the bearer token or access cookie.
func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.Principal, bool) {
	tok := bearerToken(r)
	if tok == "" {
		if c, err := r.Cookie(AccessCookieName); err == nil {
			tok = strings.TrimSpace(c.Value)
		}
	}
	if tok == "" {
		h.fail(w, r, h.cfg.DefaultRedirect, http.StatusUnauthorized, apiError{Code: "unauthorized", Message: msgUnauthorized})
		return session.Principal{}, false
	}
	p, err := h.verifier.Verify(tok, h.clock.Now())
	if err != nil {
		h.fail(w, r, h.cfg.DefaultRedirect, http.StatusUnauthorized, apiError{Code: "unauthorized", Message: msgUnauthorized})
		return session.Principal{}, false
	}
	return p, true
}

// authed checks the method and the caller, then runs fn with the principal on the context.
func (h *Handler) authed(method string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, method) {
			return
		}
		p, ok := h.requireAuth(w, r)
		if !ok {
			return
		}
		fn(w, r.WithContext(session.WithPrincipal(r.Context(), p)))
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, tok, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, redirect string, p session.Principal, action authz.Action) bool {
	if authz.Allow(p.Role, action) {
		return true
	}
	h.log.Info("attendance.forbidden", "user_id", p.UserID, "role", string(p.Role), "action", string(action))
	h.fail(w, r, redirect, http.StatusForbidden, apiError{Code: "forbidden", Message: msgForbidden})
	return false
}

// selfOrOther resolves the target user: the caller unless another id was given.
func selfOrOther(p session.Principal, requested int64, self, other authz.Action) (int64, authz.Action) {
	if requested <= 0 || requested == p.UserID {
		return p.UserID, self
	}
	return requested, other
}

// prepare binds the body (JSON or form), checks the anti-forgery token and
// validates the bound request. Form fields are only parsed into req once the
// token has been accepted.
func (h *Handler) prepare(w http.ResponseWriter, r *http.Request, req boundRequest) bool {
	if isJSONContent(r) {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, req); err != nil && !errors.Is(err, errEmptyBody) {
			h.fail(w, r, h.cfg.DefaultRedirect, http.StatusBadRequest, apiError{Code: "invalid_request", Message: msgInvalidRequest})
			return false
		}
		if !h.checkCSRF(w, r, req.meta().CSRFToken, req.meta().RedirectTo) {
			return false
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
		if err := r.ParseForm(); err != nil {
			h.fail(w, r, h.cfg.DefaultRedirect, http.StatusBadRequest, apiError{Code: "invalid_request", Message: msgInvalidRequest})
			return false
		}
		if !h.checkCSRF(w, r, r.PostForm.Get("_csrf_token"), r.PostForm.Get("redirect_to")) {
			return false
		}
		if err := req.bindForm(r.PostForm); err != nil {
			h.fail(w, r, h.redirectFor(r.PostForm.Get("redirect_to")), http.StatusBadRequest, apiError{Code: "validation_error", Message: err.Error()})
			return false
		}
	}

	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, h.redirectFor(req.meta().RedirectTo), http.StatusBadRequest, validationError(err))
		return false
	}
	return true
}

func (h *Handler) checkCSRF(w http.ResponseWriter, r *http.Request, submitted, redirect string) bool {
	if h.csrfValid(r, submitted) {
		return true
	}
	h.fail(w, r, h.redirectFor(redirect), http.StatusForbidden, apiError{Code: "csrf_error", Message: msgCSRF})
	return false
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationError(err error) apiError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return apiError{Code: "validation_error", Message: msgInvalidRequest}
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	return apiError{Code: "validation_error", Message: "Invalid " + ve[0].Field(), Fields: fields}
}

func (h *Handler) redirectFor(raw string) string {
	return safeRedirect(raw, h.cfg.DefaultRedirect)
}

// ok answers a successful call: JSON for API callers, a 303 with a flash otherwise.
func (h *Handler) ok(w http.ResponseWriter, r *http.Request, redirect, kind, msg string, data any) {
	if wantsJSON(r) || r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, successResponse{Success: true, Message: msg, Data: data})
		return
	}
	h.setFlash(w, Flash{Kind: kind, Message: msg})
	http.Redirect(w, r, h.redirectFor(redirect), http.StatusSeeOther)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, redirect string, status int, e apiError) {
	if wantsJSON(r) || r.Method != http.MethodPost {
		writeError(w, status, e)
		return
	}
	h.setFlash(w, Flash{Kind: FlashError, Message: e.Message})
	http.Redirect(w, r, h.redirectFor(redirect), http.StatusSeeOther)
}

func (h *Handler) serviceError(w http.ResponseWriter, r *http.Request, redirect, op string, err error) {
	status, e := mapError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(op+".fail", "err", err)
	} else {
		h.log.Info(op+".rejected", "code", e.Code, "err", err)
	}
	h.fail(w, r, redirect, status, e)
}

func mapError(err error) (int, apiError) {
	switch {
	case attendance.IsValidation(err):
		return http.StatusBadRequest, apiError{Code: "validation_error", Message: validationMessage(err)}
	case errors.Is(err, attendance.ErrNotFound):
		return http.StatusNotFound, apiError{Code: "not_found", Message: msgUserNotFound}
	case errors.Is(err, attendance.ErrAlreadySignedIn):
		return http.StatusConflict, apiError{Code: "already_signed_in", Message: msgAlreadySignedIn}
	case errors.Is(err, attendance.ErrNotSignedIn):
		return http.StatusConflict, apiError{Code: "not_signed_in", Message: msgNotSignedIn}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, apiError{Code: "timeout", Message: msgInternal}
	default:
		return http.StatusInternalServerError, apiError{Code: "internal_error", Message: msgInternal}
	}
}

func validationMessage(err error) string {
	var oe *attendance.OpError
	if errors.As(err, &oe) && oe.Msg != "" {
		return oe.Msg
	}
	return "Invalid input"
}

func (h *Handler) bulkResult(w http.ResponseWriter, r *http.Request, redirect string, res attendance.BulkResult) {
	s := res.Summary
	kind, msg := FlashSuccess, msgAllSignedOut
	switch {
	case s.Succeeded == 0:
		kind, msg = FlashError, msgNoneSignedOut
	case s.Failed > 0:
		kind, msg = FlashWarning, fmt.Sprintf("Partial success: %d of %d users signed out", s.Succeeded, s.Total)
	}

	body := toBulkResponse(res)
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, successResponse{Success: s.Succeeded > 0, Message: msg, Data: body})
		return
	}
	h.setFlash(w, Flash{Kind: kind, Message: msg})
	http.Redirect(w, r, h.redirectFor(redirect), http.StatusSeeOther)
}

func toBulkResponse(res attendance.BulkResult) bulkResponse {
	out := bulkResponse{
		Results: make([]bulkItemResponse, 0, len(res.Items)),
		Summary: bulkSummaryResponse{
			Total:     res.Summary.Total,
			Succeeded: res.Summary.Succeeded,
			Failed:    res.Summary.Failed,
		},
	}
	for _, it := range res.Items {
		item := bulkItemResponse{UserID: it.UserID, Success: it.Success, RecordID: it.RecordID}
		if it.Success {
			d := it.DurationMinutes
			item.DurationMinutes = &d
		} else if it.Err != nil {
			_, e := mapError(it.Err)
			item.Error = e.Message
		}
		out.Results = append(out.Results, item)
	}
	return out
}

// queryDay parses an optional YYYY-MM-DD query parameter in the register's zone.
func (h *Handler) queryDay(r *http.Request, key string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, nil
	}
	loc := h.register.Location()
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a date in YYYY-MM-DD format", key)
	}
	return t, nil
}

// queryLimit parses an optional positive "limit" query parameter; zero means unset.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := parseID(raw)
	if err != nil || n > math.MaxInt32 {
		writeError(w, http.StatusBadRequest, apiError{Code: "validation_error", Message: "limit must be a positive integer"})
		return 0, false
	}
	return int(n), true
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
