package api

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"clubhouse/cmd/internal/attendance"
)

// formMeta carries the fields every state-changing request may send.
type formMeta struct {
	CSRFToken  string `json:"_csrf_token,omitempty"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

func (m *formMeta) meta() *formMeta { return m }

func (m *formMeta) bindMeta(v url.Values) {
	m.CSRFToken = strings.TrimSpace(v.Get("_csrf_token"))
	m.RedirectTo = strings.TrimSpace(v.Get("redirect_to"))
}

type boundRequest interface {
	meta() *formMeta
	bindForm(v url.Values) error
}

type signInRequest struct {
	formMeta
	UserID   flexID  `json:"user_id" validate:"gte=0"`
	Method   string  `json:"method" validate:"omitempty,oneof=manual kiosk qr_code nfc biometric"`
	Location *string `json:"location" validate:"omitempty,max=255"`
	Notes    *string `json:"notes" validate:"omitempty,max=1000"`
}

func (r *signInRequest) bindForm(v url.Values) error {
	r.bindMeta(v)
	id, err := parseID(v.Get("user_id"))
	if err != nil {
		return err
	}
	r.UserID = flexID(id)
	r.Method = strings.TrimSpace(v.Get("method"))
	r.Location = formPtr(v, "location")
	r.Notes = formPtr(v, "notes")
	return nil
}

type signOutRequest struct {
	formMeta
	UserID flexID `json:"user_id" validate:"gte=0"`
}

func (r *signOutRequest) bindForm(v url.Values) error {
	r.bindMeta(v)
	id, err := parseID(v.Get("user_id"))
	if err != nil {
		return err
	}
	r.UserID = flexID(id)
	return nil
}

type bulkSignOutRequest struct {
	formMeta
	UserIDs json.RawMessage `json:"user_ids"`

	formIDs []string
}

func (r *bulkSignOutRequest) bindForm(v url.Values) error {
	r.bindMeta(v)
	r.formIDs = append(append([]string{}, v["user_ids"]...), v["user_ids[]"]...)
	return nil
}

func (r *bulkSignOutRequest) ids() ([]int64, error) {
	if r.formIDs != nil {
		return userIDsFromStrings(r.formIDs)
	}
	return userIDsFromJSON(r.UserIDs)
}

type signOutAllRequest struct {
	formMeta
}

func (r *signOutAllRequest) bindForm(v url.Values) error {
	r.bindMeta(v)
	return nil
}

type kioskSignInRequest struct {
	formMeta
	UserID   flexID  `json:"user_id" validate:"gt=0"`
	Password string  `json:"password" validate:"required,max=256"`
	Location *string `json:"location" validate:"omitempty,max=255"`
}

func (r *kioskSignInRequest) bindForm(v url.Values) error {
	r.bindMeta(v)
	id, err := parseID(v.Get("user_id"))
	if err != nil {
		return err
	}
	r.UserID = flexID(id)
	r.Password = v.Get("password")
	r.Location = formPtr(v, "location")
	return nil
}

func formPtr(v url.Values, key string) *string {
	if !v.Has(key) {
		return nil
	}
	s := v.Get(key)
	return &s
}

// ---- responses ----

type csrfResponse struct {
	CSRFToken string    `json:"csrf_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type signInResponse struct {
	RecordID    string    `json:"record_id"`
	UserID      int64     `json:"user_id"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

type signOutResponse struct {
	RecordID        string    `json:"record_id"`
	UserID          int64     `json:"user_id"`
	CheckedInAt     time.Time `json:"checked_in_at"`
	CheckedOutAt    time.Time `json:"checked_out_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Duration        string    `json:"duration"`
}

type bulkItemResponse struct {
	UserID          int64  `json:"user_id"`
	Success         bool   `json:"success"`
	RecordID        string `json:"record_id,omitempty"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"`
	Error           string `json:"error,omitempty"`
}

type bulkSummaryResponse struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type bulkResponse struct {
	Results []bulkItemResponse  `json:"results"`
	Summary bulkSummaryResponse `json:"summary"`
}

type recordResponse struct {
	ID              string          `json:"id"`
	UserID          int64           `json:"user_id"`
	CheckedInAt     time.Time       `json:"checked_in_at"`
	CheckedOutAt    *time.Time      `json:"checked_out_at"`
	DurationMinutes *int            `json:"duration_minutes"`
	Duration        string          `json:"duration,omitempty"`
	Method          string          `json:"method"`
	Location        *string         `json:"location"`
	Notes           *string         `json:"notes"`
	Member          *memberResponse `json:"member,omitempty"`
}

type memberResponse struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Role     string `json:"role"`
}

type rosterCountsResponse struct {
	SignedIn  int `json:"signed_in"`
	SignedOut int `json:"signed_out"`
	Total     int `json:"total"`
}

type rosterResponse struct {
	Date      string               `json:"date"`
	SignedIn  []recordResponse     `json:"signed_in"`
	SignedOut []recordResponse     `json:"signed_out"`
	Counts    rosterCountsResponse `json:"counts"`
}

type statsResponse struct {
	Period struct {
		Start string `json:"start"`
		End   string `json:"end"`
		Days  int    `json:"days"`
	} `json:"period"`
	Totals struct {
		TotalAttendance int     `json:"total_attendance"`
		UniqueUsers     int     `json:"unique_users"`
		AverageDaily    float64 `json:"average_daily"`
	} `json:"totals"`
	Today struct {
		Total             int `json:"total"`
		SignedIn          int `json:"signed_in"`
		SignedOut         int `json:"signed_out"`
		UniqueVisitors    int `json:"unique_visitors"`
		CurrentlySignedIn int `json:"currently_signed_in"`
	} `json:"today"`
	Daily []dayCountResponse `json:"daily"`
}

type dayCountResponse struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type historyResponse struct {
	UserID  int64            `json:"user_id"`
	Records []recordResponse `json:"records"`
	Summary struct {
		TotalSessions          int     `json:"total_sessions"`
		CompletedSessions      int     `json:"completed_sessions"`
		IncompleteSessions     int     `json:"incomplete_sessions"`
		TotalDurationMinutes   int     `json:"total_duration_minutes"`
		TotalDuration          string  `json:"total_duration"`
		AverageDurationMinutes float64 `json:"average_duration_minutes"`
	} `json:"summary"`
}

type registerGroupResponse struct {
	Role    string           `json:"role"`
	Records []recordResponse `json:"records"`
}

type registerResponse struct {
	Date   string                  `json:"date"`
	Filter string                  `json:"filter"`
	Groups []registerGroupResponse `json:"groups"`
	// Counts has one key per role plus "total".
	Counts map[string]int `json:"counts"`
}

type activeDatesResponse struct {
	Dates []string `json:"dates"`
}

type searchResponse struct {
	Results []recordResponse `json:"results"`
	Count   int              `json:"count"`
	Query   string           `json:"query"`
}

func toRegisterResponse(reg attendance.Register) registerResponse {
	out := registerResponse{
		Date:   reg.Date,
		Filter: reg.Filter,
		Groups: make([]registerGroupResponse, 0, len(reg.Groups)),
		Counts: make(map[string]int, len(reg.Counts.ByRole)+1),
	}
	for _, g := range reg.Groups {
		out.Groups = append(out.Groups, registerGroupResponse{Role: string(g.Role), Records: toRecordResponses(g.Records)})
	}
	for role, n := range reg.Counts.ByRole {
		out.Counts[string(role)] = n
	}
	out.Counts["total"] = reg.Counts.Total
	return out
}

func toRecordResponse(r attendance.Record) recordResponse {
	out := recordResponse{
		ID:              r.ID,
		UserID:          r.UserID,
		CheckedInAt:     r.CheckedInAt,
		CheckedOutAt:    r.CheckedOutAt,
		DurationMinutes: r.DurationMinutes,
		Method:          string(r.Method),
		Location:        r.Location,
		Notes:           r.Notes,
	}
	if r.DurationMinutes != nil {
		out.Duration = attendance.FormatDuration(*r.DurationMinutes)
	}
	if p := r.Person; p != nil {
		out.Member = &memberResponse{Username: p.Username, Name: p.Name, Surname: p.Surname, Role: string(p.Role)}
	}
	return out
}

func toRecordResponses(rs []attendance.Record) []recordResponse {
	out := make([]recordResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRecordResponse(r))
	}
	return out
}

func toRosterResponse(r attendance.Roster) rosterResponse {
	return rosterResponse{
		Date:      r.Date,
		SignedIn:  toRecordResponses(r.SignedIn),
		SignedOut: toRecordResponses(r.SignedOut),
		Counts: rosterCountsResponse{
			SignedIn:  r.Counts.SignedIn,
			SignedOut: r.Counts.SignedOut,
			Total:     r.Counts.Total,
		},
	}
}

func toStatsResponse(s attendance.Stats) statsResponse {
	var out statsResponse
	out.Period.Start = s.Period.Start
	out.Period.End = s.Period.End
	out.Period.Days = s.Period.Days
	out.Totals.TotalAttendance = s.Totals.TotalAttendance
	out.Totals.UniqueUsers = s.Totals.UniqueUsers
	out.Totals.AverageDaily = s.Totals.AverageDaily
	out.Today.Total = s.Today.Total
	out.Today.SignedIn = s.Today.SignedIn
	out.Today.SignedOut = s.Today.SignedOut
	out.Today.UniqueVisitors = s.Today.UniqueVisitors
	out.Today.CurrentlySignedIn = s.Today.CurrentlySignedIn
	out.Daily = make([]dayCountResponse, 0, len(s.Daily))
	for _, d := range s.Daily {
		out.Daily = append(out.Daily, dayCountResponse{Date: d.Date, Count: d.Count})
	}
	return out
}

func toHistoryResponse(h attendance.History) historyResponse {
	var out historyResponse
	out.UserID = h.UserID
	out.Records = toRecordResponses(h.Records)
	out.Summary.TotalSessions = h.Summary.TotalSessions
	out.Summary.CompletedSessions = h.Summary.CompletedSessions
	out.Summary.IncompleteSessions = h.Summary.IncompleteSessions
	out.Summary.TotalDurationMinutes = h.Summary.TotalDurationMinutes
	out.Summary.TotalDuration = attendance.FormatDuration(h.Summary.TotalDurationMinutes)
	out.Summary.AverageDurationMinutes = h.Summary.AverageDurationMinutes
	return out
}
