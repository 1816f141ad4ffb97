package attendance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"clubhouse/cmd/internal/auth/authz"
)

const (
	// FilterAll selects every role in RegisterByDate.
	FilterAll = "all"

	defaultActiveDates = 30
	maxActiveDates     = 366

	minSearchRunes     = 2
	maxSearchRunes     = 100
	defaultSearchLimit = 50
	maxSearchLimit     = 200
	maxSearchPeople    = 200
)

// RegisterGroup holds one role's visits, ordered by surname, name and check-in.
type RegisterGroup struct {
	Role    authz.Role
	Records []Record
}

// RoleCounts counts distinct members per role. Every known role is present.
type RoleCounts struct {
	ByRole map[authz.Role]int
	Total  int
}

// Register is the daily register: the visits that began on Date, grouped by
// the member's role.
type Register struct {
	Date   string
	Filter string
	Groups []RegisterGroup
	// Counts covers the whole day regardless of Filter.
	Counts RoleCounts
}

// RegisterByDate builds the register of day (zero means today).
//
// filter is FilterAll (or empty) for every role, in which case only roles with
// visits get a group, or a single role, which always yields exactly one group.
// Visits of users the People source does not know are left out.
func (s *Service) RegisterByDate(ctx context.Context, day time.Time, filter string) (Register, error) {
	const op = "attendance.RegisterByDate"

	if err := ctx.Err(); err != nil {
		return Register{}, err
	}
	if s.people == nil {
		return Register{}, opErr(op, ErrNoPeople, "")
	}

	var only authz.Role
	filter = strings.ToLower(strings.TrimSpace(filter))
	switch filter {
	case "", FilterAll:
		filter = FilterAll
	default:
		r, ok := authz.ParseRole(filter)
		if !ok {
			return Register{}, invalid(op, "unknown role filter "+filter)
		}
		only = r
	}

	if day.IsZero() {
		day = s.at(time.Time{})
	}
	start := s.startOfDay(day)
	recs, err := s.store.ListByDateRange(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return Register{}, err
	}
	if err := s.attachPeople(ctx, recs); err != nil {
		return Register{}, err
	}

	reg := Register{
		Date:   start.Format(dateLayout),
		Filter: filter,
		Counts: RoleCounts{ByRole: make(map[authz.Role]int, 4)},
	}
	for _, r := range authz.Roles() {
		reg.Counts.ByRole[r] = 0
	}

	byRole := make(map[authz.Role][]Record)
	users := make(map[int64]struct{})
	for _, r := range recs {
		if r.Person == nil {
			continue
		}
		role := r.Person.Role
		if _, ok := users[r.UserID]; !ok {
			users[r.UserID] = struct{}{}
			reg.Counts.ByRole[role]++
			reg.Counts.Total++
		}
		if only == "" || role == only {
			byRole[role] = append(byRole[role], r)
		}
	}

	if only != "" {
		list := byRole[only]
		if list == nil {
			list = make([]Record, 0)
		}
		sortRegister(list)
		reg.Groups = []RegisterGroup{{Role: only, Records: list}}
		return reg, nil
	}

	reg.Groups = make([]RegisterGroup, 0, len(byRole))
	for _, role := range authz.Roles() {
		if list, ok := byRole[role]; ok {
			sortRegister(list)
			reg.Groups = append(reg.Groups, RegisterGroup{Role: role, Records: list})
		}
	}
	return reg, nil
}

func sortRegister(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i].Person, rs[j].Person
		if a.Surname != b.Surname {
			return a.Surname < b.Surname
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return rs[i].CheckedInAt.Before(rs[j].CheckedInAt)
	})
}

// ActiveDates lists days with at least one visit, newest first. limit defaults
// to 30 and is capped at 366.
func (s *Service) ActiveDates(ctx context.Context, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultActiveDates
	case limit > maxActiveDates:
		limit = maxActiveDates
	}
	return s.store.ActiveDates(ctx, s.loc, limit)
}

// SearchInput filters visits by member. Zero Start means the first day of the
// current month and zero End means today; both are inclusive calendar days.
// Limit defaults to 50 and is capped at 200.
type SearchInput struct {
	Query string
	Start time.Time
	End   time.Time
	Limit int
}

type SearchResult struct {
	Query   string
	Records []Record
}

// Search returns visits of members whose username, name or surname contains
// the query, newest first. The query needs at least two characters.
func (s *Service) Search(ctx context.Context, in SearchInput) (SearchResult, error) {
	const op = "attendance.Search"

	if err := ctx.Err(); err != nil {
		return SearchResult{}, err
	}
	q := strings.TrimSpace(in.Query)
	switch n := utf8.RuneCountInString(q); {
	case n < minSearchRunes:
		return SearchResult{}, invalid(op, fmt.Sprintf("query must be at least %d characters", minSearchRunes))
	case n > maxSearchRunes:
		return SearchResult{}, invalid(op, fmt.Sprintf("query must be at most %d characters", maxSearchRunes))
	}
	if s.people == nil {
		return SearchResult{}, opErr(op, ErrNoPeople, "")
	}

	limit := in.Limit
	switch {
	case limit <= 0:
		limit = defaultSearchLimit
	case limit > maxSearchLimit:
		limit = maxSearchLimit
	}

	today := s.startOfDay(s.at(time.Time{}))
	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, s.loc)
	if !in.Start.IsZero() {
		start = s.startOfDay(in.Start)
	}
	end := today.AddDate(0, 0, 1)
	if !in.End.IsZero() {
		end = s.startOfDay(in.End).AddDate(0, 0, 1)
	}
	if !end.After(start) {
		return SearchResult{}, invalid(op, "end before start")
	}

	found, err := s.people.SearchPeople(ctx, q, maxSearchPeople)
	if err != nil {
		return SearchResult{}, err
	}
	res := SearchResult{Query: q, Records: make([]Record, 0)}
	if len(found) == 0 {
		return res, nil
	}

	byID := make(map[int64]Person, len(found))
	ids := make([]int64, 0, len(found))
	for _, p := range found {
		byID[p.UserID] = p
		ids = append(ids, p.UserID)
	}
	recs, err := s.store.ListByUsers(ctx, ids, start, end, limit)
	if err != nil {
		return SearchResult{}, err
	}
	for i := range recs {
		p := byID[recs[i].UserID]
		recs[i].Person = &p
	}
	res.Records = recs
	return res, nil
}
