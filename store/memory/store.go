// Package memory is an in-process account.Store for tests and local runs.
package memory

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goIAM/account"
)

// Store keeps accounts in maps guarded by one mutex. Email and username are
// unique case-insensitively.
type Store struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[string]*account.Account
	now    func() time.Time
}

var _ account.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID: make(map[string]*account.Account),
		now:  time.Now,
	}
}

func clone(a *account.Account) *account.Account {
	c := *a
	if a.ConfirmEmailTokenHash != nil {
		v := *a.ConfirmEmailTokenHash
		c.ConfirmEmailTokenHash = &v
	}
	if a.ResetPasswordTokenHash != nil {
		v := *a.ResetPasswordTokenHash
		c.ResetPasswordTokenHash = &v
	}
	if a.ResetPasswordExpiresAt != nil {
		v := *a.ResetPasswordExpiresAt
		c.ResetPasswordExpiresAt = &v
	}
	if a.TfaSecret != nil {
		v := *a.TfaSecret
		c.TfaSecret = &v
	}
	return &c
}

func (s *Store) find(match func(*account.Account) bool) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.byID {
		if match(a) {
			return clone(a), nil
		}
	}
	return nil, account.ErrNotFound
}

func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return clone(a), nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email = account.NormalizeEmail(email)
	return s.find(func(a *account.Account) bool { return a.Email == email })
}

func (s *Store) FindByConfirmTokenHash(ctx context.Context, hash string) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.find(func(a *account.Account) bool {
		return a.ConfirmEmailTokenHash != nil && *a.ConfirmEmailTokenHash == hash
	})
}

func (s *Store) FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.find(func(a *account.Account) bool {
		return a.ResetPasswordTokenHash != nil &&
			*a.ResetPasswordTokenHash == hash &&
			a.ResetPasswordExpiresAt != nil &&
			a.ResetPasswordExpiresAt.After(now)
	})
}

func (s *Store) Create(ctx context.Context, a *account.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUnique("", a.Email, a.Username); err != nil {
		return err
	}

	s.nextID++
	now := s.now()
	a.ID = strconv.FormatInt(s.nextID, 10)
	a.Email = account.NormalizeEmail(a.Email)
	a.CreatedAt = now
	a.UpdatedAt = now
	s.byID[a.ID] = clone(a)
	return nil
}

func (s *Store) Update(ctx context.Context, id string, patch account.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return account.ErrNotFound
	}
	if err := patch.Check(a); err != nil {
		return err
	}
	if patch.Username != nil {
		if err := s.checkUnique(id, "", *patch.Username); err != nil {
			return err
		}
	}
	if patch.Empty() {
		return nil
	}
	patch.Apply(a)
	a.UpdatedAt = s.now()
	return nil
}

// Len returns the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Store) checkUnique(selfID, email, username string) error {
	email = account.NormalizeEmail(email)
	for id, other := range s.byID {
		if id == selfID {
			continue
		}
		if email != "" && other.Email == email {
			return &account.UniqueViolationError{Field: "email"}
		}
		if username != "" && strings.EqualFold(other.Username, username) {
			return &account.UniqueViolationError{Field: "username"}
		}
	}
	return nil
}
