package attendance

import (
	"context"
	"time"
)

// BulkItem is the outcome for one user. Err is nil when Success is true.
type BulkItem struct {
	UserID          int64
	Success         bool
	RecordID        string
	DurationMinutes int
	Err             error
}

type BulkSummary struct {
	Total     int
	Succeeded int
	Failed    int
}

type BulkResult struct {
	Items   []BulkItem
	Summary BulkSummary
}

// BulkSignOut signs out each user independently. A failure for one id is
// recorded on its item and never stops the others. Repeated ids are processed
// once, in first-seen order. All items share one sign-out time.
//
// The returned error is non-nil only for an unusable request (no ids, too many ids).
func (s *Service) BulkSignOut(ctx context.Context, userIDs []int64, at time.Time) (BulkResult, error) {
	const op = "attendance.BulkSignOut"

	ids := dedupeIDs(userIDs)
	if len(ids) == 0 {
		return BulkResult{}, invalid(op, "no user ids")
	}
	if len(ids) > s.bulkLimit {
		return BulkResult{}, invalid(op, "too many user ids")
	}
	return s.signOutEach(ctx, ids, s.at(at)), nil
}

// SignOutAll closes every open record, e.g. at closing time.
// With nobody signed in it returns an empty result.
func (s *Service) SignOutAll(ctx context.Context, at time.Time) (BulkResult, error) {
	if err := ctx.Err(); err != nil {
		return BulkResult{}, err
	}
	open, err := s.store.ListOpen(ctx)
	if err != nil {
		return BulkResult{}, err
	}
	ids := make([]int64, 0, len(open))
	for _, r := range open {
		ids = append(ids, r.UserID)
	}
	return s.signOutEach(ctx, dedupeIDs(ids), s.at(at)), nil
}

func (s *Service) signOutEach(ctx context.Context, ids []int64, at time.Time) BulkResult {
	out := BulkResult{Items: make([]BulkItem, 0, len(ids))}

	for _, id := range ids {
		item := BulkItem{UserID: id}

		if err := ctx.Err(); err != nil {
			item.Err = err
		} else if res, err := s.SignOut(ctx, id, at); err != nil {
			item.Err = err
		} else {
			item.Success = true
			item.RecordID = res.RecordID
			item.DurationMinutes = res.DurationMinutes
		}

		s.metrics.observeBulkItem(item.Err)
		if item.Success {
			out.Summary.Succeeded++
		} else {
			out.Summary.Failed++
			s.log.Info("attendance.bulk_sign_out.item_fail", "user_id", id, "err", item.Err)
		}
		out.Items = append(out.Items, item)
	}

	out.Summary.Total = len(out.Items)
	return out
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
