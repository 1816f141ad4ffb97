package members

import (
	"context"
	"errors"
	"testing"

	"clubhouse/cmd/internal/auth/authz"
	"clubhouse/cmd/internal/pgtest"
)

func TestPostgresStore_GetAndAuthenticate(t *testing.T) {
	t.Parallel()

	pool := pgtest.Open(t)
	schema := pgtest.Schema(t, pool, "mem_it")

	h := testHasher()
	hash, err := h.Hash("mentor-secret-9")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	id := pgtest.InsertUser(t, pool, schema, "sipho", "mentor", hash)

	st, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	ctx := context.Background()

	m, err := st.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.Username != "sipho" || m.Role != authz.RoleMentor || !m.Active || m.PasswordHash == "" {
		t.Fatalf("member=%+v", m)
	}
	if _, err := st.Get(ctx, id+1000); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err=%v want ErrNotFound", err)
	}

	d, err := NewDirectory(st, h, nil)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	if _, err := d.Authenticate(ctx, id, "mentor-secret-9"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
}

func TestPostgresStore_GetManyAndSearch(t *testing.T) {
	t.Parallel()

	pool := pgtest.Open(t)
	schema := pgtest.Schema(t, pool, "mem_search")

	a := pgtest.InsertUser(t, pool, schema, "naledi_k", "member", "")
	b := pgtest.InsertUser(t, pool, schema, "naledi%", "community", "")
	pgtest.InsertUser(t, pool, schema, "bongani", "mentor", "")

	st, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	ctx := context.Background()

	ms, err := st.GetMany(ctx, []int64{a, b, b + 1000})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(ms) != 2 {
		t.Fatalf("GetMany returned %d members, want 2", len(ms))
	}

	tests := []struct {
		query string
		want  int
	}{
		{query: "NALEDI", want: 2},
		{query: "%", want: 1},
		{query: "_k", want: 1},
		{query: "nobody", want: 0},
	}
	for _, tt := range tests {
		got, err := st.Search(ctx, tt.query, 10)
		if err != nil {
			t.Fatalf("Search(%q): %v", tt.query, err)
		}
		if len(got) != tt.want {
			t.Fatalf("Search(%q) returned %d members, want %d", tt.query, len(got), tt.want)
		}
	}
}
