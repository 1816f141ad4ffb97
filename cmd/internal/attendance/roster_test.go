package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
)

func TestCurrentAttendance_Partition(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	// Yesterday's visit still open, carried into today's roster.
	if _, err := svc.SignIn(ctx, SignInInput{UserID: 1, At: at(-2, 0)}); err != nil {
		t.Fatalf("SignIn(1): %v", err)
	}
	// Yesterday's closed visit is not part of today.
	if _, err := svc.SignIn(ctx, SignInInput{UserID: 2, At: at(-5, 0)}); err != nil {
		t.Fatalf("SignIn(2): %v", err)
	}
	if _, err := svc.SignOut(ctx, 2, at(-4, 0)); err != nil {
		t.Fatalf("SignOut(2): %v", err)
	}
	// Today: 3 closed, 4 open, 5 closed then open again.
	steps := []struct {
		user int64
		in   time.Time
		out  time.Time
	}{
		{user: 3, in: at(8, 0), out: at(9, 0)},
		{user: 4, in: at(9, 30)},
		{user: 5, in: at(10, 0), out: at(10, 30)},
		{user: 5, in: at(11, 0)},
	}
	for _, s := range steps {
		if _, err := svc.SignIn(ctx, SignInInput{UserID: s.user, At: s.in}); err != nil {
			t.Fatalf("SignIn(%d): %v", s.user, err)
		}
		if !s.out.IsZero() {
			if _, err := svc.SignOut(ctx, s.user, s.out); err != nil {
				t.Fatalf("SignOut(%d): %v", s.user, err)
			}
		}
	}

	r, err := svc.CurrentAttendance(ctx, time.Time{})
	if err != nil {
		t.Fatalf("CurrentAttendance: %v", err)
	}
	if r.Date != "2025-03-10" {
		t.Fatalf("date=%q", r.Date)
	}

	gotIn := userIDs(r.SignedIn)
	if !equalIDs(gotIn, []int64{5, 4, 1}) {
		t.Fatalf("signed in=%v want [5 4 1]", gotIn)
	}
	gotOut := userIDs(r.SignedOut)
	if !equalIDs(gotOut, []int64{5, 3}) {
		t.Fatalf("signed out=%v want [5 3]", gotOut)
	}
	for _, rec := range r.SignedIn {
		if !rec.Open() {
			t.Fatalf("closed record %s in signed-in list", rec.ID)
		}
	}
	if r.Counts.Total != len(r.SignedIn)+len(r.SignedOut) || r.Counts.SignedIn != 3 || r.Counts.SignedOut != 2 {
		t.Fatalf("counts=%+v", r.Counts)
	}
}

func TestCurrentAttendance_PastDay(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SignIn(ctx, SignInInput{UserID: 1, At: at(-2, 0)}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInInput{UserID: 2, At: at(9, 0)}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	r, err := svc.CurrentAttendance(ctx, testDay.AddDate(0, 0, -1))
	if err != nil {
		t.Fatalf("CurrentAttendance: %v", err)
	}
	if r.Date != "2025-03-09" {
		t.Fatalf("date=%q", r.Date)
	}
	if got := userIDs(r.SignedIn); !equalIDs(got, []int64{1}) {
		t.Fatalf("signed in=%v want [1]", got)
	}
	if r.Counts.Total != 1 {
		t.Fatalf("counts=%+v", r.Counts)
	}
}

func TestCurrentAttendance_DayBoundaryUsesLocation(t *testing.T) {
	t.Parallel()

	sast := time.FixedZone("SAST", 2*60*60)
	st := NewInMemoryStore()
	// 23:30 UTC on the 9th is 01:30 on the 10th in SAST.
	clk := testclock.NewClock(time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC))
	svc, err := NewService(st, WithLocation(sast), WithClock(clk))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	if _, err := svc.SignIn(ctx, SignInInput{UserID: 1, At: time.Date(2025, 3, 9, 23, 30, 0, 0, time.UTC)}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if _, err := svc.SignOut(ctx, 1, time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("SignOut: %v", err)
	}

	r, err := svc.CurrentAttendance(ctx, time.Time{})
	if err != nil {
		t.Fatalf("CurrentAttendance: %v", err)
	}
	if r.Counts.SignedOut != 1 {
		t.Fatalf("visit starting after local midnight should count today: %+v", r.Counts)
	}
}

func userIDs(rs []Record) []int64 {
	out := make([]int64, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.UserID)
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
