package account

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role is the authorization role carried in access tokens.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrPreconditionFailed is returned when an update precondition did not hold
	// for the target row at write time.
	ErrPreconditionFailed = errors.New("account precondition failed")
)

// UniqueViolationError reports a unique-constraint collision on Field.
type UniqueViolationError struct {
	Field string
}

func (e *UniqueViolationError) Error() string {
	if e == nil || e.Field == "" {
		return "account unique violation"
	}
	return "account unique violation on " + e.Field
}

// UniqueFieldFromMessage picks the account column named in a driver's
// constraint name or error message. It returns "" when neither email nor
// username appears.
func UniqueFieldFromMessage(msg string) string {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "email"):
		return "email"
	case strings.Contains(msg, "username"):
		return "username"
	default:
		return ""
	}
}

// IsUniqueViolation reports whether err carries a [UniqueViolationError].
func IsUniqueViolation(err error) bool {
	var uv *UniqueViolationError
	return errors.As(err, &uv)
}

// Account is the subset of the user row the auth engine reads and writes.
type Account struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         Role

	IsEmailConfirmed      bool
	ConfirmEmailTokenHash *string

	ResetPasswordTokenHash *string
	ResetPasswordExpiresAt *time.Time

	IsTfaEnabled bool
	TfaSecret    *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Patch describes a single-row update. Nil fields are left untouched; the
// Clear* flags null the matching optional column. Expect* fields are
// preconditions checked atomically with the write; a failed precondition
// yields ErrPreconditionFailed.
type Patch struct {
	Username     *string
	PasswordHash *string

	IsEmailConfirmed      *bool
	ConfirmEmailTokenHash *string
	ClearConfirmEmailHash bool

	ResetPasswordTokenHash *string
	ResetPasswordExpiresAt *time.Time
	ClearResetPassword     bool

	IsTfaEnabled *bool
	TfaSecret    *string

	ExpectUnconfirmed bool
	ExpectResetHash   *string
}

// Empty reports whether the patch would change nothing.
func (p Patch) Empty() bool {
	return p.Username == nil &&
		p.PasswordHash == nil &&
		p.IsEmailConfirmed == nil &&
		p.ConfirmEmailTokenHash == nil &&
		!p.ClearConfirmEmailHash &&
		p.ResetPasswordTokenHash == nil &&
		p.ResetPasswordExpiresAt == nil &&
		!p.ClearResetPassword &&
		p.IsTfaEnabled == nil &&
		p.TfaSecret == nil
}

// Apply mutates a in place with the patch values. Stores that keep rows in
// memory use it; SQL stores translate the patch into a statement instead.
func (p Patch) Apply(a *Account) {
	if p.Username != nil {
		a.Username = *p.Username
	}
	if p.PasswordHash != nil {
		a.PasswordHash = *p.PasswordHash
	}
	if p.IsEmailConfirmed != nil {
		a.IsEmailConfirmed = *p.IsEmailConfirmed
	}
	if p.ClearConfirmEmailHash {
		a.ConfirmEmailTokenHash = nil
	} else if p.ConfirmEmailTokenHash != nil {
		v := *p.ConfirmEmailTokenHash
		a.ConfirmEmailTokenHash = &v
	}
	if p.ClearResetPassword {
		a.ResetPasswordTokenHash = nil
		a.ResetPasswordExpiresAt = nil
	} else {
		if p.ResetPasswordTokenHash != nil {
			v := *p.ResetPasswordTokenHash
			a.ResetPasswordTokenHash = &v
		}
		if p.ResetPasswordExpiresAt != nil {
			v := *p.ResetPasswordExpiresAt
			a.ResetPasswordExpiresAt = &v
		}
	}
	if p.IsTfaEnabled != nil {
		a.IsTfaEnabled = *p.IsTfaEnabled
	}
	if p.TfaSecret != nil {
		v := *p.TfaSecret
		a.TfaSecret = &v
	}
}

// Check evaluates the patch preconditions against the current row.
func (p Patch) Check(a *Account) error {
	if p.ExpectUnconfirmed && a.IsEmailConfirmed {
		return ErrPreconditionFailed
	}
	if p.ExpectResetHash != nil {
		if a.ResetPasswordTokenHash == nil || *a.ResetPasswordTokenHash != *p.ExpectResetHash {
			return ErrPreconditionFailed
		}
	}
	return nil
}

// Store is the persistence collaborator for accounts.
//
// FindBy* return ErrNotFound when nothing matches. Create returns a
// *UniqueViolationError on duplicate email or username and fills in ID and
// timestamps. Update is an atomic single-row update.
type Store interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByConfirmTokenHash(ctx context.Context, hash string) (*Account, error)
	FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*Account, error)
	Create(ctx context.Context, a *Account) error
	Update(ctx context.Context, id string, patch Patch) error
}

// NormalizeID converts an integer or string identifier into the canonical
// string form used everywhere in the engine.
func NormalizeID(id any) (string, error) {
	switch v := id.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", errors.New("empty account id")
		}
		return s, nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float64:
		if v != float64(int64(v)) {
			return "", fmt.Errorf("non-integral account id %v", v)
		}
		return strconv.FormatInt(int64(v), 10), nil
	case fmt.Stringer:
		return NormalizeID(v.String())
	default:
		return "", fmt.Errorf("unsupported account id type %T", id)
	}
}

// NormalizeEmail lowercases and trims an email for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
