package attendance

import (
	"context"
	"errors"

	"clubhouse/cmd/internal/auth/authz"
)

// ErrNoPeople is returned by operations that need member identity when the
// Service was built without WithPeople.
var ErrNoPeople = errors.New("member directory not configured")

// Person is the member identity shown beside a visit.
type Person struct {
	UserID   int64
	Username string
	Name     string
	Surname  string
	Role     authz.Role
}

// People resolves member identity. *members.Directory satisfies it.
type People interface {
	// People returns the known members among ids. Unknown ids are absent from the map.
	People(ctx context.Context, ids []int64) (map[int64]Person, error)

	// SearchPeople matches query against username, name and surname, case-insensitively.
	SearchPeople(ctx context.Context, query string, limit int) ([]Person, error)
}

// attachPeople fills Record.Person in place. Records of unknown users keep a nil Person.
func (s *Service) attachPeople(ctx context.Context, lists ...[]Record) error {
	if s.people == nil {
		return nil
	}
	seen := make(map[int64]struct{})
	ids := make([]int64, 0, 16)
	for _, l := range lists {
		for _, r := range l {
			if _, ok := seen[r.UserID]; !ok {
				seen[r.UserID] = struct{}{}
				ids = append(ids, r.UserID)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	byID, err := s.people.People(ctx, ids)
	if err != nil {
		return err
	}
	for _, l := range lists {
		for i := range l {
			if p, ok := byID[l[i].UserID]; ok {
				l[i].Person = &p
			}
		}
	}
	return nil
}
