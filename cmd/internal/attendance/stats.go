package attendance

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Bounds used for an open side of a range. Both fit a Postgres timestamptz.
var (
	openRangeStart = time.Unix(0, 0).UTC()
	openRangeEnd   = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
)

const (
	maxStatsDays        = 366
	defaultHistoryLimit = 10
	maxHistoryLimit     = 500
)

// StatsInput selects an inclusive range of calendar days. A zero Start means
// the first day of the current month; a zero End means today. A zero Now means
// the service clock.
type StatsInput struct {
	Start time.Time
	End   time.Time
	Now   time.Time
}

type Period struct {
	Start string
	End   string
	Days  int
}

type Totals struct {
	TotalAttendance int
	UniqueUsers     int
	AverageDaily    float64
}

type TodayStats struct {
	Total             int
	SignedIn          int
	SignedOut         int
	UniqueVisitors    int
	CurrentlySignedIn int
}

type Stats struct {
	Period Period
	Totals Totals
	Today  TodayStats
	// Daily has one entry per day of the period, zero-filled.
	Daily []DayCount
}

// Stats aggregates visits over a period together with today's figures.
func (s *Service) Stats(ctx context.Context, in StatsInput) (Stats, error) {
	const op = "attendance.Stats"

	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	now := s.at(in.Now)
	today := s.startOfDay(now)

	start := in.Start
	if start.IsZero() {
		start = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, s.loc)
	}
	end := in.End
	if end.IsZero() {
		end = today
	}
	start, end = s.startOfDay(start), s.startOfDay(end)
	if end.Before(start) {
		return Stats{}, invalid(op, "end before start")
	}
	rangeEnd := end.AddDate(0, 0, 1)

	days := make([]string, 0, 31)
	for d := start; d.Before(rangeEnd); d = d.AddDate(0, 0, 1) {
		if len(days) == maxStatsDays {
			return Stats{}, invalid(op, fmt.Sprintf("period longer than %d days", maxStatsDays))
		}
		days = append(days, d.Format(dateLayout))
	}

	period, err := s.store.CountByStatusAndDateRange(ctx, start, rangeEnd)
	if err != nil {
		return Stats{}, err
	}
	perDay, err := s.store.DailyCounts(ctx, start, rangeEnd, s.loc)
	if err != nil {
		return Stats{}, err
	}
	todayCounts, err := s.store.CountByStatusAndDateRange(ctx, today, today.AddDate(0, 0, 1))
	if err != nil {
		return Stats{}, err
	}
	open, err := s.store.ListOpen(ctx)
	if err != nil {
		return Stats{}, err
	}

	byDay := make(map[string]int, len(perDay))
	for _, dc := range perDay {
		byDay[dc.Date] = dc.Count
	}
	daily := make([]DayCount, 0, len(days))
	for _, d := range days {
		daily = append(daily, DayCount{Date: d, Count: byDay[d]})
	}

	return Stats{
		Period: Period{Start: days[0], End: days[len(days)-1], Days: len(days)},
		Totals: Totals{
			TotalAttendance: period.Total,
			UniqueUsers:     period.UniqueUsers,
			AverageDaily:    round2(float64(period.Total) / float64(len(days))),
		},
		Today: TodayStats{
			Total:             todayCounts.Total,
			SignedIn:          todayCounts.Open,
			SignedOut:         todayCounts.Closed,
			UniqueVisitors:    todayCounts.UniqueUsers,
			CurrentlySignedIn: len(open),
		},
		Daily: daily,
	}, nil
}

// HistoryInput bounds a user history query. Zero Start and End leave that side
// open; End is an inclusive calendar day. Limit defaults to 10 and is capped at 500.
type HistoryInput struct {
	Start time.Time
	End   time.Time
	Limit int
}

type HistorySummary struct {
	TotalSessions          int
	CompletedSessions      int
	IncompleteSessions     int
	TotalDurationMinutes   int
	AverageDurationMinutes float64
}

// History is a user's visits, newest first, with a summary over the returned visits.
type History struct {
	UserID  int64
	Records []Record
	Summary HistorySummary
}

func (s *Service) UserHistory(ctx context.Context, userID int64, in HistoryInput) (History, error) {
	const op = "attendance.UserHistory"

	if err := ctx.Err(); err != nil {
		return History{}, err
	}
	if userID <= 0 {
		return History{}, invalid(op, "user_id must be positive")
	}
	if err := s.requireKnownUser(ctx, op, userID); err != nil {
		return History{}, err
	}

	limit := in.Limit
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	start := openRangeStart
	if !in.Start.IsZero() {
		start = s.startOfDay(in.Start)
	}
	end := openRangeEnd
	if !in.End.IsZero() {
		end = s.startOfDay(in.End).AddDate(0, 0, 1)
	}
	if !end.After(start) {
		return History{}, invalid(op, "end before start")
	}

	recs, err := s.store.ListByUser(ctx, userID, start, end, limit)
	if err != nil {
		return History{}, err
	}

	h := History{UserID: userID, Records: recs}
	h.Summary.TotalSessions = len(recs)
	for _, r := range recs {
		if r.DurationMinutes == nil {
			h.Summary.IncompleteSessions++
			continue
		}
		h.Summary.CompletedSessions++
		h.Summary.TotalDurationMinutes += *r.DurationMinutes
	}
	if h.Summary.CompletedSessions > 0 {
		h.Summary.AverageDurationMinutes = round2(float64(h.Summary.TotalDurationMinutes) / float64(h.Summary.CompletedSessions))
	}
	return h, nil
}

// FormatDuration renders minutes as "45m", "3h" or "2h 5m".
func FormatDuration(minutes int) string {
	if minutes <= 0 {
		return "0m"
	}
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
