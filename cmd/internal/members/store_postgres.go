package members

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clubhouse/cmd/internal/auth/authz"
)

// PostgresStore reads members from the users table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "clubhouse").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

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
		return nil, ErrInvalidInput
	}
	return st, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (Member, error) {
	if err := ctx.Err(); err != nil {
		return Member{}, err
	}
	if id <= 0 {
		return Member{}, ErrNotFound
	}

	var (
		m    Member
		role string
		hash *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT `+memberColumns+`
		   FROM `+s.users()+`
		  WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.Username, &m.Name, &m.Surname, &role, &m.Active, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, ErrNotFound
		}
		return Member{}, err
	}
	return finishMember(m, role, hash), nil
}

func (s *PostgresStore) GetMany(ctx context.Context, ids []int64) ([]Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Member{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+memberColumns+`
		   FROM `+s.users()+`
		  WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	return collectMembers(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *PostgresStore) Search(ctx context.Context, query string, limit int) ([]Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, ErrInvalidInput
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+memberColumns+`
		   FROM `+s.users()+`
		  WHERE username ILIKE $1 ESCAPE '\'
		     OR name ILIKE $1 ESCAPE '\'
		     OR surname ILIKE $1 ESCAPE '\'
		  ORDER BY surname, name, id
		  LIMIT $2`,
		"%"+likeEscaper.Replace(query)+"%", limit,
	)
	if err != nil {
		return nil, err
	}
	return collectMembers(rows)
}

const memberColumns = `id, username, name, surname, role, active, password_hash`

func (s *PostgresStore) users() string {
	return pgx.Identifier{s.schema, "users"}.Sanitize()
}

func collectMembers(rows pgx.Rows) ([]Member, error) {
	defer rows.Close()
	out := make([]Member, 0, 8)
	for rows.Next() {
		var (
			m    Member
			role string
			hash *string
		)
		if err := rows.Scan(&m.ID, &m.Username, &m.Name, &m.Surname, &role, &m.Active, &hash); err != nil {
			return nil, err
		}
		out = append(out, finishMember(m, role, hash))
	}
	return out, rows.Err()
}

// finishMember maps the stored role (unknown roles read as community) and hash.
func finishMember(m Member, role string, hash *string) Member {
	r, ok := authz.ParseRole(role)
	if !ok {
		r = authz.RoleCommunity
	}
	m.Role = r
	if hash != nil {
		m.PasswordHash = *hash
	}
	return m
}
