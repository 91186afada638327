// Package sqlstore is an account.Store over database/sql. Driver specifics
// (placeholders and unique-violation decoding) come from a [Dialect]; the
// postgres and sqlite packages supply one each.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goIAM/account"
)

// Dialect describes the driver-specific parts of the SQL.
type Dialect struct {
	// Bind returns the placeholder for the n-th argument, starting at 1.
	Bind func(n int) string
	// UniqueField reports the column behind a unique-constraint error.
	UniqueField func(err error) (field string, ok bool)
}

// DollarBind renders $1, $2, ...
func DollarBind(n int) string { return "$" + strconv.Itoa(n) }

// QuestionBind renders ? for every argument.
func QuestionBind(int) string { return "?" }

const columns = `id, email, username, password, role, is_email_confirmed,
	confirm_email_token, reset_password_token, reset_password_expire,
	is_tfa_enabled, tfa_secret, created_at, updated_at`

// Store implements account.Store on a users table.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ account.Store = (*Store)(nil)

// New returns a Store using db.
func New(db *sql.DB, dialect Dialect) *Store {
	if dialect.Bind == nil {
		dialect.Bind = QuestionBind
	}
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var (
		a           account.Account
		id          int64
		role        string
		confirmHash sql.NullString
		resetHash   sql.NullString
		resetExpire sql.NullTime
		tfaSecret   sql.NullString
	)
	err := row.Scan(&id, &a.Email, &a.Username, &a.PasswordHash, &role, &a.IsEmailConfirmed,
		&confirmHash, &resetHash, &resetExpire, &a.IsTfaEnabled, &tfaSecret, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.ID = strconv.FormatInt(id, 10)
	a.Role = account.Role(role)
	if confirmHash.Valid {
		a.ConfirmEmailTokenHash = &confirmHash.String
	}
	if resetHash.Valid {
		a.ResetPasswordTokenHash = &resetHash.String
	}
	if resetExpire.Valid {
		t := resetExpire.Time
		a.ResetPasswordExpiresAt = &t
	}
	if tfaSecret.Valid {
		a.TfaSecret = &tfaSecret.String
	}
	return &a, nil
}

func (s *Store) findOne(ctx context.Context, op, column string, arg any) (*account.Account, error) {
	query := "SELECT " + columns + " FROM users WHERE " + column + " = " + s.dialect.Bind(1)
	a, err := scanAccount(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, account.ErrNotFound
	}
	return s.findOne(ctx, "sqlstore.FindByID", "id", n)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	return s.findOne(ctx, "sqlstore.FindByEmail", "email", account.NormalizeEmail(email))
}

func (s *Store) FindByConfirmTokenHash(ctx context.Context, hash string) (*account.Account, error) {
	return s.findOne(ctx, "sqlstore.FindByConfirmTokenHash", "confirm_email_token", hash)
}

// FindByResetTokenHash matches the hash and checks expiry in Go so the
// comparison does not depend on how the driver stores timestamps.
func (s *Store) FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*account.Account, error) {
	a, err := s.findOne(ctx, "sqlstore.FindByResetTokenHash", "reset_password_token", hash)
	if err != nil {
		return nil, err
	}
	if a.ResetPasswordExpiresAt == nil || !a.ResetPasswordExpiresAt.After(now) {
		return nil, account.ErrNotFound
	}
	return a, nil
}

func (s *Store) Create(ctx context.Context, a *account.Account) error {
	const op = "sqlstore.Create"

	now := s.now().UTC()
	email := account.NormalizeEmail(a.Email)
	b := s.dialect.Bind
	query := `INSERT INTO users (email, username, password, role, is_email_confirmed,
		confirm_email_token, is_tfa_enabled, tfa_secret, created_at, updated_at)
		VALUES (` + strings.Join([]string{b(1), b(2), b(3), b(4), b(5), b(6), b(7), b(8), b(9), b(10)}, ", ") + `)
		RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		email, a.Username, a.PasswordHash, string(a.Role), a.IsEmailConfirmed,
		nullString(a.ConfirmEmailTokenHash), a.IsTfaEnabled, nullString(a.TfaSecret), now, now,
	).Scan(&id)
	if err != nil {
		return s.classify(op, err)
	}

	a.ID = strconv.FormatInt(id, 10)
	a.Email = email
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

func (s *Store) Update(ctx context.Context, id string, patch account.Patch) error {
	const op = "sqlstore.Update"

	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return account.ErrNotFound
	}
	if patch.Empty() {
		current, err := s.FindByID(ctx, id)
		if err != nil {
			return err
		}
		return patch.Check(current)
	}

	query, args := s.buildUpdate(n, patch)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return s.classify(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected > 0 {
		return nil
	}

	// Nothing matched: either the row is gone or a precondition failed.
	if _, err := s.FindByID(ctx, id); err != nil {
		return err
	}
	return account.ErrPreconditionFailed
}

func (s *Store) buildUpdate(id int64, p account.Patch) (string, []any) {
	var (
		sets []string
		args []any
	)
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, column+" = "+s.dialect.Bind(len(args)))
	}

	if p.Username != nil {
		set("username", *p.Username)
	}
	if p.PasswordHash != nil {
		set("password", *p.PasswordHash)
	}
	if p.IsEmailConfirmed != nil {
		set("is_email_confirmed", *p.IsEmailConfirmed)
	}
	if p.ClearConfirmEmailHash {
		set("confirm_email_token", nil)
	} else if p.ConfirmEmailTokenHash != nil {
		set("confirm_email_token", *p.ConfirmEmailTokenHash)
	}
	if p.ClearResetPassword {
		set("reset_password_token", nil)
		set("reset_password_expire", nil)
	} else {
		if p.ResetPasswordTokenHash != nil {
			set("reset_password_token", *p.ResetPasswordTokenHash)
		}
		if p.ResetPasswordExpiresAt != nil {
			set("reset_password_expire", p.ResetPasswordExpiresAt.UTC())
		}
	}
	if p.IsTfaEnabled != nil {
		set("is_tfa_enabled", *p.IsTfaEnabled)
	}
	if p.TfaSecret != nil {
		set("tfa_secret", *p.TfaSecret)
	}
	set("updated_at", s.now().UTC())

	args = append(args, id)
	where := "id = " + s.dialect.Bind(len(args))
	if p.ExpectUnconfirmed {
		args = append(args, false)
		where += " AND is_email_confirmed = " + s.dialect.Bind(len(args))
	}
	if p.ExpectResetHash != nil {
		args = append(args, *p.ExpectResetHash)
		where += " AND reset_password_token = " + s.dialect.Bind(len(args))
	}

	return "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE " + where, args
}

func (s *Store) classify(op string, err error) error {
	if s.dialect.UniqueField != nil {
		if field, ok := s.dialect.UniqueField(err); ok {
			return fmt.Errorf("%s: %w", op, &account.UniqueViolationError{Field: field})
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
