package testing

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/desertthunder/spotsync/internal/models"
	"github.com/desertthunder/spotsync/internal/shared"
)

// MemoryStore is an in-memory credential store.
type MemoryStore struct {
	mu     sync.Mutex
	creds  map[string]models.Credential
	puts   int
	PutErr error // returned by every Put when set
}

func NewMemoryStore(creds ...*models.Credential) *MemoryStore {
	s := &MemoryStore{creds: make(map[string]models.Credential)}
	for _, c := range creds {
		s.creds[c.Name] = *c
	}
	return s
}

func (s *MemoryStore) Put(ctx context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return s.PutErr
	}
	s.creds[cred.Name] = *cred
	s.puts++
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, name string) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[name]
	if !ok {
		return nil, fmt.Errorf("%w: no credential for account %q", shared.ErrNotFound, name)
	}
	return &c, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Credential, 0, len(s.creds))
	for _, c := range s.creds {
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[name]; !ok {
		return fmt.Errorf("%w: no credential for account %q", shared.ErrNotFound, name)
	}
	delete(s.creds, name)
	return nil
}

// Puts returns how many writes succeeded.
func (s *MemoryStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}
