package attendance

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryStore_OpenRecordLifecycle(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	ctx := context.Background()

	id, err := st.CreateOpen(ctx, OpenRecord{UserID: 1, CheckedInAt: at(9, 0)})
	if err != nil {
		t.Fatalf("CreateOpen: %v", err)
	}
	if len(id) != 26 {
		t.Fatalf("expected ULID id, got %q", id)
	}
	if _, err := st.CreateOpen(ctx, OpenRecord{UserID: 1, CheckedInAt: at(9, 5)}); !errors.Is(err, ErrDuplicateSignIn) {
		t.Fatalf("second CreateOpen err=%v want ErrDuplicateSignIn", err)
	}

	rec, err := st.Close(ctx, CloseRecord{ID: id, CheckedOutAt: at(9, 30), DurationMinutes: 30})
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rec.Open() || rec.DurationMinutes == nil || *rec.DurationMinutes != 30 {
		t.Fatalf("closed record=%+v", rec)
	}

	if _, err := st.Close(ctx, CloseRecord{ID: id, CheckedOutAt: at(10, 0), DurationMinutes: 60}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("re-close err=%v want ErrNotFound", err)
	}
	again, _, _ := st.FindOpenByUser(ctx, 1)
	if again.ID != "" {
		t.Fatalf("no open record expected, got %+v", again)
	}

	recs, err := st.ListByDateRange(ctx, testDay, testDay.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("ListByDateRange: %v", err)
	}
	if got := recs[0].CheckedOutAt; got == nil || !got.Equal(at(9, 30)) {
		t.Fatalf("checked_out_at changed after re-close attempt: %v", got)
	}

	if _, err := st.Close(ctx, CloseRecord{ID: "missing", CheckedOutAt: at(10, 0)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id err=%v want ErrNotFound", err)
	}
}

func TestInMemoryStore_RangesAreHalfOpen(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	ctx := context.Background()
	start, end := testDay, testDay.AddDate(0, 0, 1)

	for i, ts := range []time.Time{start.Add(-time.Nanosecond), start, end.Add(-time.Second), end} {
		if _, err := st.CreateOpen(ctx, OpenRecord{UserID: int64(i + 1), CheckedInAt: ts}); err != nil {
			t.Fatalf("CreateOpen: %v", err)
		}
	}

	c, err := st.CountByStatusAndDateRange(ctx, start, end)
	if err != nil {
		t.Fatalf("CountByStatusAndDateRange: %v", err)
	}
	if c != (Counts{Total: 2, Open: 2, UniqueUsers: 2}) {
		t.Fatalf("counts=%+v", c)
	}

	days, err := st.DailyCounts(ctx, start.AddDate(0, 0, -1), end.AddDate(0, 0, 1), time.UTC)
	if err != nil {
		t.Fatalf("DailyCounts: %v", err)
	}
	want := []DayCount{{"2025-03-09", 1}, {"2025-03-10", 2}, {"2025-03-11", 1}}
	if len(days) != len(want) {
		t.Fatalf("days=%+v", days)
	}
	for i := range want {
		if days[i] != want[i] {
			t.Fatalf("days[%d]=%+v want=%+v", i, days[i], want[i])
		}
	}
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	ctx := context.Background()
	loc := "Lab"
	if _, err := st.CreateOpen(ctx, OpenRecord{UserID: 1, CheckedInAt: at(9, 0), Location: &loc}); err != nil {
		t.Fatalf("CreateOpen: %v", err)
	}
	loc = "changed"

	rec, _, _ := st.FindOpenByUser(ctx, 1)
	*rec.Location = "mutated"

	again, _, _ := st.FindOpenByUser(ctx, 1)
	if *again.Location != "Lab" {
		t.Fatalf("store state leaked through pointer: %q", *again.Location)
	}
}

func TestInMemoryStore_RejectsIncompleteInput(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		op   string
	}{
		{name: "open without user", op: "attendance.CreateOpen", call: func() error {
			_, err := st.CreateOpen(ctx, OpenRecord{CheckedInAt: at(9, 0)})
			return err
		}},
		{name: "close without time", op: "attendance.Close", call: func() error {
			_, err := st.Close(ctx, CloseRecord{ID: "x"})
			return err
		}},
		{name: "list with zero limit", op: "attendance.ListByUser", call: func() error {
			_, err := st.ListByUser(ctx, 1, testDay, testDay.AddDate(0, 0, 1), 0)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var oe *OpError
			if !errors.As(err, &oe) || oe.Op != tt.op {
				t.Fatalf("err=%v want *OpError from %s", err, tt.op)
			}
			if !IsValidation(err) || oe.Msg == "" {
				t.Fatalf("err=%v want validation kind with a message", err)
			}
		})
	}
}
