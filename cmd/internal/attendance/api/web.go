package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clubhouse/cmd/security/token"
)

const (
	CSRFCookieName   = "clubhouse_csrf"
	CSRFHeaderName   = "X-CSRF-Token"
	FlashCookieName  = "clubhouse_flash"
	AccessCookieName = "clubhouse_access"
)

// Flash is the one-shot message shown after a form post redirect.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const (
	FlashSuccess = "success"
	FlashWarning = "warning"
	FlashError   = "error"
)

func (h *Handler) issueCSRF(w http.ResponseWriter, now time.Time) (string, time.Time, error) {
	tok, err := token.NewOpaqueHex(32)
	if err != nil {
		return "", time.Time{}, err
	}
	exp := now.Add(h.cfg.CSRFTTL)
	h.setCookie(w, CSRFCookieName, tok, exp, false)
	return tok, exp, nil
}

// csrfValid compares the cookie with the header, falling back to the submitted field.
func (h *Handler) csrfValid(r *http.Request, submitted string) bool {
	c, err := r.Cookie(CSRFCookieName)
	if err != nil {
		return false
	}
	sent := strings.TrimSpace(r.Header.Get(CSRFHeaderName))
	if sent == "" {
		sent = strings.TrimSpace(submitted)
	}
	return token.Equal(strings.TrimSpace(c.Value), sent)
}

func (h *Handler) setFlash(w http.ResponseWriter, f Flash) {
	b, err := json.Marshal(f)
	if err != nil {
		return
	}
	h.setCookie(w, FlashCookieName, h.signer.Sign(b), h.clock.Now().Add(h.cfg.FlashTTL), true)
}

// ReadFlash returns the pending flash message, if any, and clears it.
// Tampered or malformed cookies are dropped silently.
func (h *Handler) ReadFlash(w http.ResponseWriter, r *http.Request) (Flash, bool) {
	c, err := r.Cookie(FlashCookieName)
	if err != nil || c.Value == "" {
		return Flash{}, false
	}
	h.expireCookie(w, FlashCookieName, true)

	payload, err := h.signer.Open(c.Value)
	if err != nil {
		h.log.Info("attendance.flash.reject", "err", err)
		return Flash{}, false
	}
	var f Flash
	if err := json.Unmarshal(payload, &f); err != nil || f.Message == "" {
		return Flash{}, false
	}
	return f, true
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, exp time.Time, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  exp,
		HttpOnly: httpOnly,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

func (h *Handler) expireCookie(w http.ResponseWriter, name string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

// wantsJSON reports whether the caller expects a JSON body instead of a redirect.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(strings.ToLower(r.Header.Get("Accept")), "application/json") {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	return isJSONContent(r)
}

func isJSONContent(r *http.Request) bool {
	ct := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type")))
	return strings.HasPrefix(ct, "application/json")
}

// safeRedirect keeps redirects on this site: only absolute paths, no scheme,
// no host and no protocol-relative or backslash tricks.
func safeRedirect(raw, def string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "\\\r\n") {
		return def
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return def
	}
	return u.RequestURI()
}
