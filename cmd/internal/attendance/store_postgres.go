package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const openPerUserIndex = "uq_attendance_open_per_user"

var errNoPool = invalid("attendance.PostgresStore", "store has no pool")

// PostgresStore persists attendance records in PostgreSQL (see db/schema.sql).
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "clubhouse").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return invalid("attendance.WithSchema", "empty schema")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore. The caller owns the pool.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "clubhouse"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, invalid("attendance.NewPostgresStore", "nil pool")
	}
	return st, nil
}

const recordColumns = `id, user_id, checked_in_at, checked_out_at, duration_minutes, method, location, notes`

// CreateOpen checks for an open record before inserting so the common case gets a
// clean error; the partial unique index settles concurrent inserts.
func (s *PostgresStore) CreateOpen(ctx context.Context, in OpenRecord) (string, error) {
	if s == nil || s.pool == nil {
		return "", errNoPool
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if in.UserID <= 0 || in.CheckedInAt.IsZero() {
		return "", invalid("attendance.CreateOpen", "user id and check-in time required")
	}

	_, open, err := s.FindOpenByUser(ctx, in.UserID)
	if err != nil {
		return "", err
	}
	if open {
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

	records := pgIdent(s.schema, "attendance_records")
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+records+` (id, user_id, checked_in_at, method, location, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, in.UserID, in.CheckedInAt.UTC(), string(method), in.Location, in.Notes,
	)
	if err != nil {
		if pgIsUniqueViolation(err, openPerUserIndex) {
			return "", ErrDuplicateSignIn
		}
		if pgIsForeignKeyViolation(err) {
			return "", opErr("attendance.CreateOpen", ErrNotFound, "user")
		}
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) Close(ctx context.Context, in CloseRecord) (Record, error) {
	if s == nil || s.pool == nil {
		return Record{}, errNoPool
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if strings.TrimSpace(in.ID) == "" || in.CheckedOutAt.IsZero() || in.DurationMinutes < 0 {
		return Record{}, invalid("attendance.Close", "id, check-out time and duration required")
	}

	records := pgIdent(s.schema, "attendance_records")
	row := s.pool.QueryRow(ctx,
		`UPDATE `+records+`
		    SET checked_out_at = $2, duration_minutes = $3
		  WHERE id = $1 AND checked_out_at IS NULL
		  RETURNING `+recordColumns,
		in.ID, in.CheckedOutAt.UTC(), in.DurationMinutes,
	)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return r, nil
}

func (s *PostgresStore) FindOpenByUser(ctx context.Context, userID int64) (Record, bool, error) {
	if s == nil || s.pool == nil {
		return Record{}, false, errNoPool
	}
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}

	records := pgIdent(s.schema, "attendance_records")
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM `+records+`
		  WHERE user_id = $1 AND checked_out_at IS NULL`,
		userID,
	)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return r, true, nil
}

func (s *PostgresStore) ListByDateRange(ctx context.Context, start, end time.Time) ([]Record, error) {
	if s == nil || s.pool == nil {
		return nil, errNoPool
	}
	records := pgIdent(s.schema, "attendance_records")
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM `+records+`
		  WHERE checked_in_at >= $1 AND checked_in_at < $2
		  ORDER BY checked_in_at ASC, id ASC`,
		start.UTC(), end.UTC(),
	)
}

func (s *PostgresStore) ListOpen(ctx context.Context) ([]Record, error) {
	if s == nil || s.pool == nil {
		return nil, errNoPool
	}
	records := pgIdent(s.schema, "attendance_records")
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM `+records+`
		  WHERE checked_out_at IS NULL
		  ORDER BY checked_in_at ASC, id ASC`,
	)
}

func (s *PostgresStore) CountByStatusAndDateRange(ctx context.Context, start, end time.Time) (Counts, error) {
	if s == nil || s.pool == nil {
		return Counts{}, errNoPool
	}
	if err := ctx.Err(); err != nil {
		return Counts{}, err
	}

	records := pgIdent(s.schema, "attendance_records")
	var c Counts
	err := s.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE checked_out_at IS NULL),
		        count(*) FILTER (WHERE checked_out_at IS NOT NULL),
		        count(DISTINCT user_id)
		   FROM `+records+`
		  WHERE checked_in_at >= $1 AND checked_in_at < $2`,
		start.UTC(), end.UTC(),
	).Scan(&c.Total, &c.Open, &c.Closed, &c.UniqueUsers)
	if err != nil {
		return Counts{}, err
	}
	return c, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID int64, start, end time.Time, limit int) ([]Record, error) {
	if s == nil || s.pool == nil {
		return nil, errNoPool
	}
	if limit <= 0 {
		return nil, invalid("attendance.ListByUser", "limit must be positive")
	}
	records := pgIdent(s.schema, "attendance_records")
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM `+records+`
		  WHERE user_id = $1 AND checked_in_at >= $2 AND checked_in_at < $3
		  ORDER BY checked_in_at DESC, id DESC
		  LIMIT $4`,
		userID, start.UTC(), end.UTC(), limit,
	)
}

func (s *PostgresStore) DailyCounts(ctx context.Context, start, end time.Time, loc *time.Location) ([]DayCount, error) {
	if s == nil || s.pool == nil {
		return nil, errNoPool
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	zone := zoneName(loc)

	records := pgIdent(s.schema, "attendance_records")
	rows, err := s.pool.Query(ctx,
		`SELECT to_char(checked_in_at AT TIME ZONE $3, 'YYYY-MM-DD') AS day, count(*)
		   FROM `+records+`
		  WHERE checked_in_at >= $1 AND checked_in_at < $2
		  GROUP BY day
		  ORDER BY day`,
		start.UTC(), end.UTC(), zone,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]DayCount, 0, 8)
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListByUsers(ctx context.Context, userIDs []int64, start, end time.Time, limit int) ([]Record, error) {
	if s == nil || s.pool == nil {
		return nil, errNoPool
	}
	if limit <= 0 {
		return nil, invalid("attendance.ListByUsers", "limit must be positive")
	}
	if len(userIDs) == 0 {
		return []Record{}, nil
	}
	records := pgIdent(s.schema, "attendance_records")
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM `+records+`
		  WHERE user_id = ANY($1) AND checked_in_at >= $2 AND checked_in_at < $3
		  ORDER BY checked_in_at DESC, id DESC
		  LIMIT $4`,
		userIDs, start.UTC(), end.UTC(), limit,
	)
}

func (s *PostgresStore) ActiveDates(ctx context.Context, loc *time.Location, limit int) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, errNoPool
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, invalid("attendance.ActiveDates", "limit must be positive")
	}

	records := pgIdent(s.schema, "attendance_records")
	rows, err := s.pool.Query(ctx,
		`SELECT to_char(checked_in_at AT TIME ZONE $1, 'YYYY-MM-DD') AS day
		   FROM `+records+`
		  GROUP BY day
		  ORDER BY day DESC
		  LIMIT $2`,
		zoneName(loc), limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PostgresStore) queryRecords(ctx context.Context, sql string, args ...any) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0, 16)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		r        Record
		out      *time.Time
		duration *int32
		method   string
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.CheckedInAt, &out, &duration, &method, &r.Location, &r.Notes); err != nil {
		return Record{}, err
	}
	r.CheckedInAt = r.CheckedInAt.UTC()
	if out != nil {
		t := out.UTC()
		r.CheckedOutAt = &t
	}
	if duration != nil {
		d := int(*duration)
		r.DurationMinutes = &d
	}
	r.Method = Method(method)
	return r, nil
}

// zoneName is the IANA name Postgres needs for AT TIME ZONE.
func zoneName(loc *time.Location) string {
	if loc == nil || loc == time.Local {
		return "UTC"
	}
	return loc.String()
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

func pgIsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503"
}
