package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	id        string
	expiresAt time.Time
}

// MemoryStore is a process-local [Store]. It is suitable for tests and
// single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a [MemoryStore]. A zero ttl keeps entries until they
// are invalidated.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) lookup(accountID string) (string, bool) {
	e, ok := s.entries[accountID]
	if !ok {
		return "", false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, accountID)
		return "", false
	}
	return e.id, true
}

func (s *MemoryStore) set(accountID, id string) {
	e := memoryEntry{id: id}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.entries[accountID] = e
}

// Insert sets the current refresh id for accountID.
func (s *MemoryStore) Insert(ctx context.Context, accountID, refreshTokenID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(accountID, refreshTokenID)
	return nil
}

// Validate compares refreshTokenID with the stored id.
func (s *MemoryStore) Validate(ctx context.Context, accountID, refreshTokenID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.lookup(accountID)
	return ok && current == refreshTokenID, nil
}

// Invalidate removes the stored id.
func (s *MemoryStore) Invalidate(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, accountID)
	return nil
}

// Rotate swaps presentedID for nextID under the store lock.
func (s *MemoryStore) Rotate(ctx context.Context, accountID, presentedID, nextID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.lookup(accountID)
	if !ok {
		return ErrSessionNotFound
	}
	if current != presentedID {
		delete(s.entries, accountID)
		return ErrReuseDetected
	}
	s.set(accountID, nextID)
	return nil
}
