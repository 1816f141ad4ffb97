package members

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"clubhouse/cmd/internal/attendance"
	"clubhouse/cmd/internal/auth/authz"
	"clubhouse/cmd/security/password"
)

// Member is the subset of a user row the register needs.
type Member struct {
	ID           int64
	Username     string
	Name         string
	Surname      string
	Role         authz.Role
	Active       bool
	PasswordHash string
}

// Store loads members.
type Store interface {
	Get(ctx context.Context, id int64) (Member, error)

	// GetMany returns the members among ids, in no particular order. Unknown ids are skipped.
	GetMany(ctx context.Context, ids []int64) ([]Member, error)

	// Search matches query as a case-insensitive substring of username, name or
	// surname, ordered by surname, name and id.
	Search(ctx context.Context, query string, limit int) ([]Member, error)
}

// Directory checks existence and kiosk credentials against a Store.
type Directory struct {
	store  Store
	hasher *password.Hasher
	log    *slog.Logger

	// dummyHash is verified when no real hash exists so failures take similar time.
	dummyHash string
}

func NewDirectory(store Store, hasher *password.Hasher, log *slog.Logger) (*Directory, error) {
	if store == nil || hasher == nil {
		return nil, ErrInvalidInput
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	dummy, err := hasher.Hash("clubhouse-dummy-password")
	if err != nil {
		return nil, err
	}
	return &Directory{store: store, hasher: hasher, log: log, dummyHash: dummy}, nil
}

// Exists reports whether id is an active member.
func (d *Directory) Exists(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	m, err := d.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return m.Active, nil
}

// Authenticate verifies a kiosk sign-in.
func (d *Directory) Authenticate(ctx context.Context, id int64, pw string) (Member, error) {
	if err := ctx.Err(); err != nil {
		return Member{}, err
	}

	m, err := d.store.Get(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		_, _ = d.hasher.Verify(d.dummyHash, pw)
		return Member{}, ErrInvalidCredentials
	case err != nil:
		return Member{}, err
	}

	if !m.Active || m.PasswordHash == "" {
		_, _ = d.hasher.Verify(d.dummyHash, pw)
		return Member{}, ErrInvalidCredentials
	}

	ok, err := d.hasher.Verify(m.PasswordHash, pw)
	if err != nil {
		if errors.Is(err, password.ErrInvalidHash) {
			d.log.Warn("members.authenticate.bad_hash", "user_id", id)
		}
		return Member{}, ErrInvalidCredentials
	}
	if !ok {
		return Member{}, ErrInvalidCredentials
	}
	if d.hasher.NeedsRehash(m.PasswordHash) {
		d.log.Info("members.authenticate.needs_rehash", "user_id", id)
	}
	return m, nil
}

// Person is the identity the register shows for m.
func (m Member) Person() attendance.Person {
	return attendance.Person{
		UserID:   m.ID,
		Username: m.Username,
		Name:     m.Name,
		Surname:  m.Surname,
		Role:     m.Role,
	}
}

// People resolves identities for the attendance register. Inactive members are
// included; their past visits still belong to them.
func (d *Directory) People(ctx context.Context, ids []int64) (map[int64]attendance.Person, error) {
	ms, err := d.store.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]attendance.Person, len(ms))
	for _, m := range ms {
		out[m.ID] = m.Person()
	}
	return out, nil
}

// SearchPeople finds members for the attendance search.
func (d *Directory) SearchPeople(ctx context.Context, query string, limit int) ([]attendance.Person, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, ErrInvalidInput
	}
	ms, err := d.store.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]attendance.Person, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Person())
	}
	return out, nil
}
