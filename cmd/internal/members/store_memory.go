package members

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// InMemoryStore is the dev-mode member store.
type InMemoryStore struct {
	mu      sync.RWMutex
	members map[int64]Member
}

func NewInMemoryStore(seed ...Member) *InMemoryStore {
	s := &InMemoryStore{members: make(map[int64]Member, len(seed))}
	for _, m := range seed {
		s.members[m.ID] = m
	}
	return s
}

// Put inserts or replaces m.
func (s *InMemoryStore) Put(m Member) error {
	if m.ID <= 0 {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = m
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id int64) (Member, error) {
	if err := ctx.Err(); err != nil {
		return Member{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	if !ok {
		return Member{}, ErrNotFound
	}
	return m, nil
}

func (s *InMemoryStore) GetMany(ctx context.Context, ids []int64) ([]Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Member, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.members[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Search(ctx context.Context, query string, limit int) ([]Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, ErrInvalidInput
	}
	q := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	out := make([]Member, 0)
	for _, m := range s.members {
		for _, f := range []string{m.Username, m.Name, m.Surname} {
			if strings.Contains(strings.ToLower(f), q) {
				out = append(out, m)
				break
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Surname != b.Surname {
			return a.Surname < b.Surname
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
