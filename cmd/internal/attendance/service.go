package attendance

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/juju/clock"
)

const defaultBulkLimit = 500

// Directory answers whether a user id refers to a known person.
type Directory interface {
	Exists(ctx context.Context, userID int64) (bool, error)
}

// Service enforces the register rules on top of a Store.
type Service struct {
	store     Store
	dir       Directory
	people    People
	notifier  Notifier
	metrics   *Metrics
	log       *slog.Logger
	clock     clock.Clock
	loc       *time.Location
	bulkLimit int
}

// Option configures the Service.
type Option func(*Service) error

// WithDirectory makes SignIn and UserHistory reject unknown users with ErrNotFound.
func WithDirectory(d Directory) Option {
	return func(s *Service) error {
		s.dir = d
		return nil
	}
}

// WithPeople attaches member identity to roster, register and search results.
func WithPeople(p People) Option {
	return func(s *Service) error {
		s.people = p
		return nil
	}
}

// WithLocation sets the zone that defines calendar days (default UTC).
func WithLocation(loc *time.Location) Option {
	return func(s *Service) error {
		if loc == nil {
			return invalid("attendance.WithLocation", "nil location")
		}
		s.loc = loc
		return nil
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) error {
		s.notifier = n
		return nil
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) error {
		s.metrics = m
		return nil
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) error {
		if log == nil {
			return invalid("attendance.WithLogger", "nil logger")
		}
		s.log = log
		return nil
	}
}

// WithClock sets the time source used when callers pass a zero timestamp.
func WithClock(c clock.Clock) Option {
	return func(s *Service) error {
		if c == nil {
			return invalid("attendance.WithClock", "nil clock")
		}
		s.clock = c
		return nil
	}
}

// WithBulkLimit caps the number of distinct ids accepted by BulkSignOut.
func WithBulkLimit(n int) Option {
	return func(s *Service) error {
		if n <= 0 {
			return invalid("attendance.WithBulkLimit", "limit must be positive")
		}
		s.bulkLimit = n
		return nil
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, invalid("attendance.NewService", "nil store")
	}
	s := &Service{
		store:     store,
		log:       slog.New(slog.DiscardHandler),
		clock:     clock.WallClock,
		loc:       time.UTC,
		bulkLimit: defaultBulkLimit,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Location returns the zone used for day boundaries.
func (s *Service) Location() *time.Location { return s.loc }

// SignInInput describes a sign-in. A zero At means now.
type SignInInput struct {
	UserID   int64
	At       time.Time
	Method   Method
	Location *string
	Notes    *string
}

type SignInResult struct {
	RecordID    string
	UserID      int64
	CheckedInAt time.Time
}

// SignIn opens a record for the user.
//
// A user with an open record gets ErrAlreadySignedIn, whether the open record was
// seen up front or a concurrent insert won the race in the store. A user whose
// earlier visits are all closed gets a new record.
func (s *Service) SignIn(ctx context.Context, in SignInInput) (res SignInResult, err error) {
	const op = "attendance.SignIn"
	defer func() { s.metrics.observeSignIn(err) }()

	if err = ctx.Err(); err != nil {
		return SignInResult{}, err
	}

	in, err = normalizeSignIn(in)
	if err != nil {
		return SignInResult{}, err
	}
	if err = s.requireKnownUser(ctx, op, in.UserID); err != nil {
		return SignInResult{}, err
	}

	at := s.at(in.At)

	_, open, err := s.store.FindOpenByUser(ctx, in.UserID)
	if err != nil {
		return SignInResult{}, err
	}
	if open {
		return SignInResult{}, opErr(op, ErrAlreadySignedIn, "")
	}

	id, err := s.store.CreateOpen(ctx, OpenRecord{
		UserID:      in.UserID,
		CheckedInAt: at,
		Method:      in.Method,
		Location:    in.Location,
		Notes:       in.Notes,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateSignIn) {
			return SignInResult{}, opErr(op, ErrAlreadySignedIn, "")
		}
		return SignInResult{}, err
	}

	s.log.Debug("attendance.sign_in", "user_id", in.UserID, "record_id", id, "method", string(in.Method))
	s.publish(Event{Type: EventSignedIn, RecordID: id, UserID: in.UserID, At: at})

	return SignInResult{RecordID: id, UserID: in.UserID, CheckedInAt: at}, nil
}

type SignOutResult struct {
	RecordID        string
	UserID          int64
	CheckedInAt     time.Time
	CheckedOutAt    time.Time
	DurationMinutes int
}

// SignOut closes the user's open record. A zero at means now.
//
// The sign-out time never precedes the check-in time; an earlier at is clamped,
// which yields a zero duration.
func (s *Service) SignOut(ctx context.Context, userID int64, at time.Time) (res SignOutResult, err error) {
	const op = "attendance.SignOut"
	defer func() { s.metrics.observeSignOut(err, res.DurationMinutes) }()

	if err = ctx.Err(); err != nil {
		return SignOutResult{}, err
	}
	if userID <= 0 {
		return SignOutResult{}, invalid(op, "user_id must be positive")
	}

	rec, open, err := s.store.FindOpenByUser(ctx, userID)
	if err != nil {
		return SignOutResult{}, err
	}
	if !open {
		return SignOutResult{}, opErr(op, ErrNotSignedIn, "")
	}

	out := s.at(at)
	if out.Before(rec.CheckedInAt) {
		out = rec.CheckedInAt
	}
	mins := durationMinutes(rec.CheckedInAt, out)

	closed, err := s.store.Close(ctx, CloseRecord{ID: rec.ID, CheckedOutAt: out, DurationMinutes: mins})
	if err != nil {
		// Another caller closed it between the lookup and the update.
		if errors.Is(err, ErrNotFound) {
			return SignOutResult{}, opErr(op, ErrNotSignedIn, "")
		}
		return SignOutResult{}, err
	}

	s.log.Debug("attendance.sign_out", "user_id", userID, "record_id", closed.ID, "duration_minutes", mins)
	s.publish(Event{Type: EventSignedOut, RecordID: closed.ID, UserID: userID, At: out, DurationMinutes: &mins})

	return SignOutResult{
		RecordID:        closed.ID,
		UserID:          userID,
		CheckedInAt:     closed.CheckedInAt,
		CheckedOutAt:    out,
		DurationMinutes: mins,
	}, nil
}

func (s *Service) requireKnownUser(ctx context.Context, op string, userID int64) error {
	if s.dir == nil {
		return nil
	}
	ok, err := s.dir.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return opErr(op, ErrNotFound, "user")
	}
	return nil
}

func (s *Service) publish(ev Event) {
	if s.notifier != nil {
		s.notifier.Publish(ev)
	}
}

func (s *Service) at(t time.Time) time.Time {
	if t.IsZero() {
		return s.clock.Now().UTC()
	}
	return t.UTC()
}

func (s *Service) startOfDay(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

// durationMinutes returns whole elapsed minutes, never negative.
func durationMinutes(in, out time.Time) int {
	d := out.Sub(in)
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}

func normalizeSignIn(in SignInInput) (SignInInput, error) {
	const op = "attendance.SignIn"

	if in.UserID <= 0 {
		return in, invalid(op, "user_id must be positive")
	}
	if in.Method == "" {
		in.Method = MethodManual
	}
	if !in.Method.Valid() {
		return in, invalid(op, "unknown method")
	}
	in.Location = trimOptional(in.Location)
	in.Notes = trimOptional(in.Notes)
	if in.Location != nil && utf8.RuneCountInString(*in.Location) > maxLocationLen {
		return in, invalid(op, "location too long")
	}
	if in.Notes != nil && utf8.RuneCountInString(*in.Notes) > maxNotesLen {
		return in, invalid(op, "notes too long")
	}
	return in, nil
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
