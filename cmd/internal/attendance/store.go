package attendance

import (
	"context"
	"time"
)

// Store persists attendance records.
//
// Ranges are half-open: a record matches [start, end) when start <= checked_in_at < end.
type Store interface {
	// CreateOpen inserts an open record and returns its id.
	// It fails with ErrDuplicateSignIn when the user already has an open record.
	CreateOpen(ctx context.Context, in OpenRecord) (string, error)

	// Close sets checked_out_at and duration on an open record.
	// It fails with ErrNotFound when no open record with that id exists.
	Close(ctx context.Context, in CloseRecord) (Record, error)

	FindOpenByUser(ctx context.Context, userID int64) (Record, bool, error)
	ListByDateRange(ctx context.Context, start, end time.Time) ([]Record, error)
	ListOpen(ctx context.Context) ([]Record, error)
	CountByStatusAndDateRange(ctx context.Context, start, end time.Time) (Counts, error)

	// ListByUser returns the user's records in range, newest first, at most limit rows.
	ListByUser(ctx context.Context, userID int64, start, end time.Time, limit int) ([]Record, error)

	// DailyCounts groups visits in range by calendar day in loc, which should be an
	// IANA zone. Days without visits are omitted.
	DailyCounts(ctx context.Context, start, end time.Time, loc *time.Location) ([]DayCount, error)

	// ListByUsers is ListByUser over several users at once.
	ListByUsers(ctx context.Context, userIDs []int64, start, end time.Time, limit int) ([]Record, error)

	// ActiveDates returns up to limit distinct check-in days (YYYY-MM-DD in loc), newest first.
	ActiveDates(ctx context.Context, loc *time.Location, limit int) ([]string, error)
}
