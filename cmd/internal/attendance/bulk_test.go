package attendance

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBulkSignOut_PartialFailure(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	const a, b, c = 101, 102, 103
	for _, id := range []int64{a, c} {
		if _, err := svc.SignIn(ctx, SignInInput{UserID: id, At: at(9, 0)}); err != nil {
			t.Fatalf("SignIn(%d): %v", id, err)
		}
	}

	res, err := svc.BulkSignOut(ctx, []int64{a, b, c}, at(10, 0))
	if err != nil {
		t.Fatalf("BulkSignOut: %v", err)
	}
	if res.Summary != (BulkSummary{Total: 3, Succeeded: 2, Failed: 1}) {
		t.Fatalf("summary=%+v", res.Summary)
	}
	if len(res.Items) != 3 {
		t.Fatalf("items=%d want=3", len(res.Items))
	}

	want := []struct {
		id      int64
		success bool
	}{{a, true}, {b, false}, {c, true}}
	for i, w := range want {
		got := res.Items[i]
		if got.UserID != w.id || got.Success != w.success {
			t.Fatalf("item[%d]=%+v want id=%d success=%v", i, got, w.id, w.success)
		}
	}
	if !errors.Is(res.Items[1].Err, ErrNotSignedIn) {
		t.Fatalf("item[1].Err=%v want ErrNotSignedIn", res.Items[1].Err)
	}
	if res.Items[2].DurationMinutes != 60 || res.Items[2].RecordID == "" {
		t.Fatalf("item[2]=%+v", res.Items[2])
	}
}

func TestBulkSignOut_EmptyAndDuplicates(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, WithBulkLimit(2))
	ctx := context.Background()

	if _, err := svc.BulkSignOut(ctx, nil, time.Time{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty list err=%v want ErrValidation", err)
	}
	if _, err := svc.BulkSignOut(ctx, []int64{1, 2, 3}, time.Time{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("over limit err=%v want ErrValidation", err)
	}

	if _, err := svc.SignIn(ctx, SignInInput{UserID: 1, At: at(9, 0)}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	res, err := svc.BulkSignOut(ctx, []int64{1, 1, 1}, at(9, 30))
	if err != nil {
		t.Fatalf("BulkSignOut: %v", err)
	}
	if res.Summary.Total != 1 || res.Summary.Succeeded != 1 {
		t.Fatalf("duplicates should collapse: %+v", res.Summary)
	}
}

func TestBulkSignOut_InvalidIDIsPerItem(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.SignIn(ctx, SignInInput{UserID: 4, At: at(9, 0)}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	res, err := svc.BulkSignOut(ctx, []int64{0, 4}, at(9, 5))
	if err != nil {
		t.Fatalf("BulkSignOut: %v", err)
	}
	if res.Items[0].Success || !errors.Is(res.Items[0].Err, ErrValidation) {
		t.Fatalf("item[0]=%+v", res.Items[0])
	}
	if !res.Items[1].Success {
		t.Fatalf("item[1] should succeed: %+v", res.Items[1])
	}
}

func TestBulkSignOut_CanceledRecordsRemaining(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.BulkSignOut(ctx, []int64{1, 2}, at(9, 0))
	if err != nil {
		t.Fatalf("BulkSignOut: %v", err)
	}
	if res.Summary.Failed != 2 {
		t.Fatalf("summary=%+v", res.Summary)
	}
	for _, it := range res.Items {
		if !errors.Is(it.Err, context.Canceled) {
			t.Fatalf("item %d err=%v want context.Canceled", it.UserID, it.Err)
		}
	}
}

func TestSignOutAll(t *testing.T) {
	t.Parallel()

	svc, st := newTestService(t)
	ctx := context.Background()

	res, err := svc.SignOutAll(ctx, at(17, 0))
	if err != nil {
		t.Fatalf("SignOutAll on empty register: %v", err)
	}
	if res.Summary.Total != 0 {
		t.Fatalf("summary=%+v want empty", res.Summary)
	}

	for _, id := range []int64{1, 2, 3} {
		if _, err := svc.SignIn(ctx, SignInInput{UserID: id, At: at(9, int(id))}); err != nil {
			t.Fatalf("SignIn(%d): %v", id, err)
		}
	}
	res, err = svc.SignOutAll(ctx, at(17, 0))
	if err != nil {
		t.Fatalf("SignOutAll: %v", err)
	}
	if res.Summary != (BulkSummary{Total: 3, Succeeded: 3}) {
		t.Fatalf("summary=%+v", res.Summary)
	}
	open, _ := st.ListOpen(ctx)
	if len(open) != 0 {
		t.Fatalf("open=%d want=0", len(open))
	}
}
