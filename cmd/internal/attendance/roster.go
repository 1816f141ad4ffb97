package attendance

import (
	"context"
	"sort"
	"time"
)

type RosterCounts struct {
	SignedIn  int
	SignedOut int
	Total     int
}

// Roster is the daily presence view.
type Roster struct {
	Date      string
	SignedIn  []Record
	SignedOut []Record
	Counts    RosterCounts
}

// CurrentAttendance partitions the visits of day (zero means today) into
// SignedIn (open) and SignedOut (closed, checked in on day).
//
// For today SignedIn holds every open record, so a visit begun before midnight
// still shows as present. For other days it holds the records of that day that
// are still open. Both lists are ordered newest check-in first, and carry the
// member's identity when the Service has a People source.
func (s *Service) CurrentAttendance(ctx context.Context, day time.Time) (Roster, error) {
	if err := ctx.Err(); err != nil {
		return Roster{}, err
	}

	now := s.at(time.Time{})
	if day.IsZero() {
		day = now
	}
	start := s.startOfDay(day)
	end := start.AddDate(0, 0, 1)
	isToday := start.Equal(s.startOfDay(now))

	dayRecords, err := s.store.ListByDateRange(ctx, start, end)
	if err != nil {
		return Roster{}, err
	}

	roster := Roster{
		Date:      start.Format(dateLayout),
		SignedIn:  make([]Record, 0),
		SignedOut: make([]Record, 0),
	}
	for _, r := range dayRecords {
		switch {
		case !r.Open():
			roster.SignedOut = append(roster.SignedOut, r)
		case !isToday:
			roster.SignedIn = append(roster.SignedIn, r)
		}
	}

	if isToday {
		open, err := s.store.ListOpen(ctx)
		if err != nil {
			return Roster{}, err
		}
		roster.SignedIn = append(roster.SignedIn, open...)
	}

	sortNewestFirst(roster.SignedIn)
	sortNewestFirst(roster.SignedOut)
	if err := s.attachPeople(ctx, roster.SignedIn, roster.SignedOut); err != nil {
		return Roster{}, err
	}

	roster.Counts = RosterCounts{
		SignedIn:  len(roster.SignedIn),
		SignedOut: len(roster.SignedOut),
		Total:     len(roster.SignedIn) + len(roster.SignedOut),
	}
	return roster, nil
}

func sortNewestFirst(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].CheckedInAt.After(rs[j].CheckedInAt) })
}
