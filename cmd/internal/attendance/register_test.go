package attendance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"clubhouse/cmd/internal/auth/authz"
)

type fakePeople map[int64]Person

func (f fakePeople) People(_ context.Context, ids []int64) (map[int64]Person, error) {
	out := make(map[int64]Person)
	for _, id := range ids {
		if p, ok := f[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f fakePeople) SearchPeople(_ context.Context, query string, limit int) ([]Person, error) {
	q := strings.ToLower(query)
	out := make([]Person, 0)
	for _, p := range f {
		if strings.Contains(strings.ToLower(p.Username+" "+p.Name+" "+p.Surname), q) {
			out = append(out, p)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var testPeople = fakePeople{
	1: {UserID: 1, Username: "thandi", Name: "Thandi", Surname: "Mokoena", Role: authz.RoleMember},
	2: {UserID: 2, Username: "sipho", Name: "Sipho", Surname: "Dlamini", Role: authz.RoleMember},
	3: {UserID: 3, Username: "lerato", Name: "Lerato", Surname: "Nkosi", Role: authz.RoleCommunity},
	4: {UserID: 4, Username: "mentor", Name: "Bongani", Surname: "Zulu", Role: authz.RoleMentor},
}

// seedRegister records: yesterday user 1; today users 1 (twice), 2, 3, 4 and
// unknown user 99.
func seedRegister(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	visits := []struct {
		user int64
		in   time.Time
	}{
		{1, at(-20, 0)},
		{1, at(8, 0)},
		{1, at(10, 0)},
		{2, at(9, 0)},
		{3, at(9, 30)},
		{4, at(7, 0)},
		{99, at(9, 0)},
	}
	for _, v := range visits {
		if _, err := svc.SignIn(ctx, SignInInput{UserID: v.user, At: v.in}); err != nil {
			t.Fatalf("SignIn(%d): %v", v.user, err)
		}
		if _, err := svc.SignOut(ctx, v.user, v.in.Add(30*time.Minute)); err != nil {
			t.Fatalf("SignOut(%d): %v", v.user, err)
		}
	}
}

func TestRegisterByDate(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, WithPeople(testPeople))
	seedRegister(t, svc)
	ctx := context.Background()

	wantCounts := map[authz.Role]int{
		authz.RoleAdmin:     0,
		authz.RoleMentor:    1,
		authz.RoleMember:    2,
		authz.RoleCommunity: 1,
	}

	tests := []struct {
		name       string
		filter     string
		wantRoles  []authz.Role
		wantFirst  []int64 // user ids of the first group, in order
		wantFilter string
	}{
		{
			name:       "all roles",
			filter:     "",
			wantRoles:  []authz.Role{authz.RoleMentor, authz.RoleMember, authz.RoleCommunity},
			wantFirst:  []int64{4},
			wantFilter: FilterAll,
		},
		{
			name:       "members sorted by surname",
			filter:     "Member",
			wantRoles:  []authz.Role{authz.RoleMember},
			wantFirst:  []int64{2, 1, 1},
			wantFilter: "member",
		},
		{
			name:       "role without visits",
			filter:     "admin",
			wantRoles:  []authz.Role{authz.RoleAdmin},
			wantFirst:  []int64{},
			wantFilter: "admin",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := svc.RegisterByDate(ctx, time.Time{}, tt.filter)
			if err != nil {
				t.Fatalf("RegisterByDate: %v", err)
			}
			if reg.Date != "2025-03-10" || reg.Filter != tt.wantFilter {
				t.Fatalf("date=%q filter=%q", reg.Date, reg.Filter)
			}
			if reg.Counts.Total != 4 {
				t.Fatalf("total=%d want=4 (unknown user and repeat visits excluded)", reg.Counts.Total)
			}
			for role, n := range wantCounts {
				if reg.Counts.ByRole[role] != n {
					t.Fatalf("count[%s]=%d want=%d", role, reg.Counts.ByRole[role], n)
				}
			}
			if len(reg.Groups) != len(tt.wantRoles) {
				t.Fatalf("groups=%d want=%d", len(reg.Groups), len(tt.wantRoles))
			}
			for i, g := range reg.Groups {
				if g.Role != tt.wantRoles[i] {
					t.Fatalf("group %d role=%s want=%s", i, g.Role, tt.wantRoles[i])
				}
			}
			if got := userIDs(reg.Groups[0].Records); !equalIDs(got, tt.wantFirst) {
				t.Fatalf("first group users=%v want=%v", got, tt.wantFirst)
			}
			for _, g := range reg.Groups {
				for _, r := range g.Records {
					if r.Person == nil || r.Person.Role != g.Role {
						t.Fatalf("record %s person=%+v in group %s", r.ID, r.Person, g.Role)
					}
				}
			}
		})
	}

	if _, err := svc.RegisterByDate(ctx, time.Time{}, "alien"); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown filter err=%v want ErrValidation", err)
	}

	past, err := svc.RegisterByDate(ctx, testDay.AddDate(0, 0, -1), FilterAll)
	if err != nil {
		t.Fatalf("RegisterByDate yesterday: %v", err)
	}
	if past.Date != "2025-03-09" || past.Counts.Total != 1 || past.Counts.ByRole[authz.RoleMember] != 1 {
		t.Fatalf("yesterday=%+v", past)
	}

	bare, _ := newTestService(t)
	if _, err := bare.RegisterByDate(ctx, time.Time{}, ""); !errors.Is(err, ErrNoPeople) {
		t.Fatalf("without people err=%v want ErrNoPeople", err)
	}
}

func TestActiveDates(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	seedRegister(t, svc)
	ctx := context.Background()

	tests := []struct {
		limit int
		want  []string
	}{
		{limit: 0, want: []string{"2025-03-10", "2025-03-09"}},
		{limit: 1, want: []string{"2025-03-10"}},
		{limit: 10000, want: []string{"2025-03-10", "2025-03-09"}},
	}
	for _, tt := range tests {
		got, err := svc.ActiveDates(ctx, tt.limit)
		if err != nil {
			t.Fatalf("ActiveDates(%d): %v", tt.limit, err)
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Fatalf("ActiveDates(%d)=%v want %v", tt.limit, got, tt.want)
		}
	}
}

func TestActiveDates_UsesRegisterZone(t *testing.T) {
	t.Parallel()

	joburg, err := time.LoadLocation("Africa/Johannesburg")
	if err != nil {
		t.Skipf("zone data unavailable: %v", err)
	}
	svc, _ := newTestService(t, WithLocation(joburg))
	// 23:00 UTC on the 9th is 01:00 on the 10th in Johannesburg.
	if _, err := svc.SignIn(context.Background(), SignInInput{UserID: 1, At: at(-1, 0)}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	got, err := svc.ActiveDates(context.Background(), 5)
	if err != nil {
		t.Fatalf("ActiveDates: %v", err)
	}
	if len(got) != 1 || got[0] != "2025-03-10" {
		t.Fatalf("dates=%v want [2025-03-10]", got)
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, WithPeople(testPeople))
	seedRegister(t, svc)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    SearchInput
		want  []int64
		error error
	}{
		{name: "surname", in: SearchInput{Query: "mokoena"}, want: []int64{1, 1, 1}},
		{name: "username trimmed", in: SearchInput{Query: "  sipho "}, want: []int64{2}},
		{name: "limit", in: SearchInput{Query: "mokoena", Limit: 1}, want: []int64{1}},
		{name: "today only", in: SearchInput{Query: "mokoena", Start: testDay}, want: []int64{1, 1}},
		{name: "no match", in: SearchInput{Query: "xyz"}, want: []int64{}},
		{name: "too short", in: SearchInput{Query: " a "}, error: ErrValidation},
		{name: "inverted range", in: SearchInput{Query: "mokoena", Start: testDay, End: testDay.AddDate(0, 0, -2)}, error: ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Search(ctx, tt.in)
			if tt.error != nil {
				if !errors.Is(err, tt.error) {
					t.Fatalf("err=%v want %v", err, tt.error)
				}
				return
			}
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if got := userIDs(res.Records); !equalIDs(got, tt.want) {
				t.Fatalf("users=%v want=%v", got, tt.want)
			}
			for i, r := range res.Records {
				if r.Person == nil {
					t.Fatalf("record %d has no person", i)
				}
				if i > 0 && r.CheckedInAt.After(res.Records[i-1].CheckedInAt) {
					t.Fatalf("records not newest first: %v", res.Records)
				}
			}
		})
	}
}

func TestCurrentAttendance_AttachesPeople(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, WithPeople(testPeople))
	ctx := context.Background()
	for _, id := range []int64{1, 99} {
		if _, err := svc.SignIn(ctx, SignInInput{UserID: id, At: at(9, 0)}); err != nil {
			t.Fatalf("SignIn(%d): %v", id, err)
		}
	}

	r, err := svc.CurrentAttendance(ctx, time.Time{})
	if err != nil {
		t.Fatalf("CurrentAttendance: %v", err)
	}
	if len(r.SignedIn) != 2 {
		t.Fatalf("signed in=%d want=2", len(r.SignedIn))
	}
	for _, rec := range r.SignedIn {
		switch rec.UserID {
		case 1:
			if rec.Person == nil || rec.Person.Surname != "Mokoena" {
				t.Fatalf("person=%+v", rec.Person)
			}
		case 99:
			if rec.Person != nil {
				t.Fatalf("unknown user got person %+v", rec.Person)
			}
		}
	}
}
