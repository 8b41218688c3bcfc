package credit

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used in tests and single-node dev runs.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]Account)}
}

func (s *MemoryStore) Load(ctx context.Context, userID string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

func (s *MemoryStore) Save(ctx context.Context, userID string, acct Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.accounts[userID]
	if exists {
		if acct.Version != current.Version {
			return ErrConflict
		}
	} else if acct.Version != 0 {
		return ErrConflict
	}
	acct.Version++
	s.accounts[userID] = acct
	return nil
}

func (s *MemoryStore) Users(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
