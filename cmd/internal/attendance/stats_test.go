package attendance

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStats_PeriodTotalsAndDaily(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	visits := []struct {
		user int64
		in   time.Time
		out  time.Time
	}{
		{user: 1, in: at(-48+9, 0), out: at(-48+10, 0)}, // Mar 8
		{user: 2, in: at(-48+11, 0), out: at(-48+12, 0)},
		{user: 1, in: at(-24+9, 0), out: at(-24+9, 30)}, // Mar 9
		{user: 1, in: at(9, 0), out: at(9, 15)},         // Mar 10
		{user: 3, in: at(10, 0)},
	}
	for _, v := range visits {
		if _, err := svc.SignIn(ctx, SignInInput{UserID: v.user, At: v.in}); err != nil {
			t.Fatalf("SignIn(%d): %v", v.user, err)
		}
		if !v.out.IsZero() {
			if _, err := svc.SignOut(ctx, v.user, v.out); err != nil {
				t.Fatalf("SignOut(%d): %v", v.user, err)
			}
		}
	}

	st, err := svc.Stats(ctx, StatsInput{
		Start: time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	if st.Period != (Period{Start: "2025-03-08", End: "2025-03-10", Days: 3}) {
		t.Fatalf("period=%+v", st.Period)
	}
	if st.Totals.TotalAttendance != 5 || st.Totals.UniqueUsers != 3 {
		t.Fatalf("totals=%+v", st.Totals)
	}
	if st.Totals.AverageDaily != 1.67 {
		t.Fatalf("average daily=%v want 1.67", st.Totals.AverageDaily)
	}
	wantToday := TodayStats{Total: 2, SignedIn: 1, SignedOut: 1, UniqueVisitors: 2, CurrentlySignedIn: 1}
	if st.Today != wantToday {
		t.Fatalf("today=%+v want=%+v", st.Today, wantToday)
	}
	wantDaily := []DayCount{{"2025-03-08", 2}, {"2025-03-09", 1}, {"2025-03-10", 2}}
	if len(st.Daily) != len(wantDaily) {
		t.Fatalf("daily=%+v", st.Daily)
	}
	for i := range wantDaily {
		if st.Daily[i] != wantDaily[i] {
			t.Fatalf("daily[%d]=%+v want=%+v", i, st.Daily[i], wantDaily[i])
		}
	}
}

func TestStats_DefaultPeriodAndZeroFill(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	st, err := svc.Stats(context.Background(), StatsInput{})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Period.Start != "2025-03-01" || st.Period.End != "2025-03-10" || st.Period.Days != 10 {
		t.Fatalf("period=%+v", st.Period)
	}
	if len(st.Daily) != 10 || st.Daily[0].Count != 0 {
		t.Fatalf("daily=%+v", st.Daily)
	}
	if st.Totals.AverageDaily != 0 {
		t.Fatalf("average daily=%v", st.Totals.AverageDaily)
	}
}

func TestStats_InvalidRange(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []StatsInput{
		{Start: testDay, End: testDay.AddDate(0, 0, -1)},
		{Start: testDay.AddDate(-2, 0, 0), End: testDay},
	}
	for i, in := range cases {
		if _, err := svc.Stats(ctx, in); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: err=%v want ErrValidation", i, err)
		}
	}
}

func TestUserHistory(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	for i, d := range []int{30, 45, 0} {
		in := at(-24*(3-i)+9, 0)
		if _, err := svc.SignIn(ctx, SignInInput{UserID: 6, At: in}); err != nil {
			t.Fatalf("SignIn: %v", err)
		}
		if d > 0 {
			if _, err := svc.SignOut(ctx, 6, in.Add(time.Duration(d)*time.Minute)); err != nil {
				t.Fatalf("SignOut: %v", err)
			}
		}
	}
	if _, err := svc.SignIn(ctx, SignInInput{UserID: 99, At: at(9, 0)}); err != nil {
		t.Fatalf("SignIn other user: %v", err)
	}

	h, err := svc.UserHistory(ctx, 6, HistoryInput{})
	if err != nil {
		t.Fatalf("UserHistory: %v", err)
	}
	want := HistorySummary{
		TotalSessions:          3,
		CompletedSessions:      2,
		IncompleteSessions:     1,
		TotalDurationMinutes:   75,
		AverageDurationMinutes: 37.5,
	}
	if h.Summary != want {
		t.Fatalf("summary=%+v want=%+v", h.Summary, want)
	}
	if len(h.Records) != 3 || !h.Records[0].Open() {
		t.Fatalf("expected newest (open) record first: %+v", h.Records)
	}

	limited, err := svc.UserHistory(ctx, 6, HistoryInput{Limit: 1})
	if err != nil {
		t.Fatalf("UserHistory limit: %v", err)
	}
	if len(limited.Records) != 1 {
		t.Fatalf("records=%d want=1", len(limited.Records))
	}

	if _, err := svc.UserHistory(ctx, 0, HistoryInput{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero user err=%v want ErrValidation", err)
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   int
		want string
	}{
		{in: -3, want: "0m"},
		{in: 0, want: "0m"},
		{in: 45, want: "45m"},
		{in: 60, want: "1h"},
		{in: 125, want: "2h 5m"},
		{in: 180, want: "3h"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Fatalf("FormatDuration(%d)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestUserHistory_OpenEndIncludesFutureVisits(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	// Back-dated and forward-dated sign-ins both belong to an unbounded history.
	for _, in := range []time.Time{at(-24*400, 0), at(24*5, 0)} {
		if _, err := svc.SignIn(ctx, SignInInput{UserID: 8, At: in}); err != nil {
			t.Fatalf("SignIn: %v", err)
		}
		if _, err := svc.SignOut(ctx, 8, in.Add(time.Hour)); err != nil {
			t.Fatalf("SignOut: %v", err)
		}
	}

	tests := []struct {
		name string
		in   HistoryInput
		want int
	}{
		{name: "both sides open", in: HistoryInput{}, want: 2},
		{name: "end today", in: HistoryInput{End: testDay}, want: 1},
		{name: "start today", in: HistoryInput{Start: testDay}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := svc.UserHistory(ctx, 8, tt.in)
			if err != nil {
				t.Fatalf("UserHistory: %v", err)
			}
			if len(h.Records) != tt.want {
				t.Fatalf("records=%d want=%d", len(h.Records), tt.want)
			}
		})
	}
}
