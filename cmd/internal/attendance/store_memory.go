package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps records in process memory.
// It is used when no database is configured and by unit tests.
type InMemoryStore struct {
	mu         sync.Mutex
	records    map[string]*Record
	order      []string         // insertion order
	openByUser map[int64]string // user id -> open record id
}

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:    make(map[string]*Record),
		openByUser: make(map[int64]string),
	}
}

func (s *InMemoryStore) CreateOpen(ctx context.Context, in OpenRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if in.UserID <= 0 || in.CheckedInAt.IsZero() {
		return "", invalid("attendance.CreateOpen", "user id and check-in time required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.openByUser[in.UserID]; ok {
		return "", ErrDuplicateSignIn
	}

	id, err := newRecordID(in.CheckedInAt)
	if err != nil {
		return "", err
	}

	method := in.Method
	if method == "" {
		method = MethodManual
	}
	s.records[id] = &Record{
		ID:          id,
		UserID:      in.UserID,
		CheckedInAt: in.CheckedInAt.UTC(),
		Method:      method,
		Location:    copyStr(in.Location),
		Notes:       copyStr(in.Notes),
	}
	s.order = append(s.order, id)
	s.openByUser[in.UserID] = id
	return id, nil
}

func (s *InMemoryStore) Close(ctx context.Context, in CloseRecord) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if in.ID == "" || in.CheckedOutAt.IsZero() || in.DurationMinutes < 0 {
		return Record{}, invalid("attendance.Close", "id, check-out time and duration required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[in.ID]
	if !ok || r.CheckedOutAt != nil {
		return Record{}, ErrNotFound
	}

	out := in.CheckedOutAt.UTC()
	mins := in.DurationMinutes
	r.CheckedOutAt = &out
	r.DurationMinutes = &mins
	delete(s.openByUser, r.UserID)
	return cloneRecord(r), nil
}

func (s *InMemoryStore) FindOpenByUser(ctx context.Context, userID int64) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.openByUser[userID]
	if !ok {
		return Record{}, false, nil
	}
	return cloneRecord(s.records[id]), true, nil
}

func (s *InMemoryStore) ListByDateRange(ctx context.Context, start, end time.Time) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.filterLocked(func(r *Record) bool { return inRange(r.CheckedInAt, start, end) })
	sortByCheckIn(out)
	return out, nil
}

func (s *InMemoryStore) ListOpen(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.openByUser))
	for _, id := range s.openByUser {
		out = append(out, cloneRecord(s.records[id]))
	}
	sortByCheckIn(out)
	return out, nil
}

func (s *InMemoryStore) CountByStatusAndDateRange(ctx context.Context, start, end time.Time) (Counts, error) {
	if err := ctx.Err(); err != nil {
		return Counts{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var c Counts
	users := make(map[int64]struct{})
	for _, id := range s.order {
		r := s.records[id]
		if !inRange(r.CheckedInAt, start, end) {
			continue
		}
		c.Total++
		if r.CheckedOutAt == nil {
			c.Open++
		} else {
			c.Closed++
		}
		users[r.UserID] = struct{}{}
	}
	c.UniqueUsers = len(users)
	return c, nil
}

func (s *InMemoryStore) ListByUser(ctx context.Context, userID int64, start, end time.Time, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, invalid("attendance.ListByUser", "limit must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.filterLocked(func(r *Record) bool {
		return r.UserID == userID && inRange(r.CheckedInAt, start, end)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckedInAt.After(out[j].CheckedInAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) DailyCounts(ctx context.Context, start, end time.Time, loc *time.Location) ([]DayCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byDay := make(map[string]int)
	for _, id := range s.order {
		r := s.records[id]
		if inRange(r.CheckedInAt, start, end) {
			byDay[r.CheckedInAt.In(loc).Format(dateLayout)]++
		}
	}

	out := make([]DayCount, 0, len(byDay))
	for d, n := range byDay {
		out = append(out, DayCount{Date: d, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *InMemoryStore) ListByUsers(ctx context.Context, userIDs []int64, start, end time.Time, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, invalid("attendance.ListByUsers", "limit must be positive")
	}
	want := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		want[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.filterLocked(func(r *Record) bool {
		_, ok := want[r.UserID]
		return ok && inRange(r.CheckedInAt, start, end)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckedInAt.After(out[j].CheckedInAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ActiveDates(ctx context.Context, loc *time.Location, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, invalid("attendance.ActiveDates", "limit must be positive")
	}
	if loc == nil {
		loc = time.UTC
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	for _, r := range s.records {
		seen[r.CheckedInAt.In(loc).Format(dateLayout)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) filterLocked(keep func(*Record) bool) []Record {
	out := make([]Record, 0)
	for _, id := range s.order {
		if r := s.records[id]; keep(r) {
			out = append(out, cloneRecord(r))
		}
	}
	return out
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func sortByCheckIn(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].CheckedInAt.Before(rs[j].CheckedInAt) })
}

func cloneRecord(r *Record) Record {
	out := *r
	if r.CheckedOutAt != nil {
		t := *r.CheckedOutAt
		out.CheckedOutAt = &t
	}
	if r.DurationMinutes != nil {
		d := *r.DurationMinutes
		out.DurationMinutes = &d
	}
	out.Location = copyStr(r.Location)
	out.Notes = copyStr(r.Notes)
	return out
}

func copyStr(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}
