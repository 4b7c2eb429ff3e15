package memory

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/chirino/case-recorder/internal/model"
	registrystore "github.com/chirino/case-recorder/internal/registry/store"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrystore.Backend, error) {
			return New(), nil
		},
	})
}

// Store keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	users     map[string]model.User
	cases     map[int64]model.Case
	documents map[model.Collection][]model.Document
}

func New() *Store {
	return &Store{
		users:     make(map[string]model.User),
		cases:     make(map[int64]model.Case),
		documents: make(map[model.Collection][]model.Document),
	}
}

func (s *Store) InsertUser(_ context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Token]; ok {
		return &registrystore.ConflictError{Message: "token already registered"}
	}
	for _, u := range s.users {
		if u.Email == user.Email {
			return &registrystore.ConflictError{Message: fmt.Sprintf("email %q already registered", user.Email)}
		}
	}
	s.users[user.Token] = user
	return nil
}

func (s *Store) FindUserByToken(_ context.Context, token string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[token]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "user", ID: "token"}
	}
	return &u, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, &registrystore.NotFoundError{Resource: "user", ID: email}
}

func (s *Store) SetUserActive(_ context.Context, token string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[token]
	if !ok {
		return &registrystore.NotFoundError{Resource: "user", ID: "token"}
	}
	u.Active = active
	s.users[token] = u
	return nil
}

func (s *Store) DeleteUser(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[token]; !ok {
		return false, nil
	}
	delete(s.users, token)
	return true, nil
}

func (s *Store) InsertCase(_ context.Context, c model.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[c.ID]; ok {
		return &registrystore.ConflictError{Message: fmt.Sprintf("case %d already exists", c.ID)}
	}
	s.cases[c.ID] = cloneCase(c)
	return nil
}

func (s *Store) FindCase(_ context.Context, caseID int64) (*model.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[caseID]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "case", ID: strconv.FormatInt(caseID, 10)}
	}
	out := cloneCase(c)
	return &out, nil
}

func (s *Store) ListCasesByOwner(_ context.Context, token string) ([]model.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Case
	for _, c := range s.cases {
		if c.HasOwner(token) {
			out = append(out, cloneCase(c))
		}
	}
	slices.SortFunc(out, func(a, b model.Case) int { return a.Date.Compare(b.Date) })
	return out, nil
}

func (s *Store) UpdateCaseName(_ context.Context, caseID int64, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok {
		return false, nil
	}
	c.Name = name
	s.cases[caseID] = c
	return true, nil
}

func (s *Store) DeleteCase(_ context.Context, caseID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[caseID]; !ok {
		return false, nil
	}
	delete(s.cases, caseID)
	return true, nil
}

func (s *Store) FindDocuments(_ context.Context, coll model.Collection, q registrystore.DocumentQuery) ([]model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Document
	for _, d := range s.documents[coll] {
		if !matches(d, q) {
			continue
		}
		out = append(out, cloneDocument(d))
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) InsertDocument(_ context.Context, coll model.Collection, doc model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[coll] = append(s.documents[coll], cloneDocument(doc))
	return nil
}

func (s *Store) DeleteDocuments(_ context.Context, coll model.Collection, q registrystore.DocumentQuery) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.documents[coll]
	kept := docs[:0]
	var removed int64
	for _, d := range docs {
		if matches(d, q) {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	s.documents[coll] = kept
	return removed, nil
}

func (s *Store) MaxCounter(_ context.Context, coll model.Collection, caseID int64) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best  int64
		found bool
	)
	for _, d := range s.documents[coll] {
		if d.CaseID != caseID {
			continue
		}
		v, ok := d.Payload.Get(model.FieldCounter)
		if !ok {
			continue
		}
		n, ok := v.Int64()
		if !ok {
			continue
		}
		if !found || n > best {
			best, found = n, true
		}
	}
	return best, found, nil
}

func (s *Store) Close(context.Context) error { return nil }

func matches(d model.Document, q registrystore.DocumentQuery) bool {
	if d.CaseID != q.CaseID {
		return false
	}
	if q.Owner != "" && !d.HasOwner(q.Owner) {
		return false
	}
	if q.Field != "" {
		v, ok := d.Payload.Get(q.Field)
		if !ok || !v.Equal(q.Value) {
			return false
		}
	}
	return true
}

func cloneCase(c model.Case) model.Case {
	c.Owners = slices.Clone(c.Owners)
	c.Payload = c.Payload.Clone()
	return c
}

func cloneDocument(d model.Document) model.Document {
	d.Owners = slices.Clone(d.Owners)
	d.Payload = d.Payload.Clone()
	return d
}

var _ registrystore.Backend = (*Store)(nil)
