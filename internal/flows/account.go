package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goIAM/account"
	"github.com/MrEthical07/goIAM/password"
)

func loadActive(ctx context.Context, accountID string, deps Deps) (*account.Account, Result, bool) {
	if accountID == "" {
		return nil, fail(FailureInvalidToken, errors.New("missing subject")), false
	}
	acc, err := deps.Accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, failFor(FailureNotFound, accountID, err), false
		}
		return nil, failFor(FailureBackend, accountID, err), false
	}
	return acc, Result{}, true
}

// RunGetMe loads the authenticated account.
func RunGetMe(ctx context.Context, accountID string, deps Deps) Result {
	acc, res, ok := loadActive(ctx, accountID, deps)
	if !ok {
		return res
	}
	return Result{AccountID: acc.ID, Account: acc}
}

// RunUpdatePassword replaces the password after checking the current one and
// kills the refresh session.
func RunUpdatePassword(ctx context.Context, accountID, current, next string, deps Deps) Result {
	if current == "" || next == "" {
		return failFor(FailureInvalidInput, accountID, password.ErrEmptyPassword)
	}
	acc, res, ok := loadActive(ctx, accountID, deps)
	if !ok {
		return res
	}
	if !deps.Hasher.Compare(current, acc.PasswordHash) {
		return failFor(FailureInvalidCredentials, acc.ID, errors.New("current password mismatch"))
	}

	digest, err := deps.Hasher.Hash(next)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return failFor(FailureInvalidInput, acc.ID, err)
		}
		return failFor(FailureInternal, acc.ID, err)
	}
	if err := deps.Accounts.Update(ctx, acc.ID, account.Patch{PasswordHash: &digest}); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return failFor(FailureNotFound, acc.ID, err)
		}
		return failFor(FailureBackend, acc.ID, err)
	}

	if err := deps.Sessions.Invalidate(ctx, acc.ID); err != nil {
		deps.warn("goIAM: session invalidation after password change failed", "account_id", acc.ID, "error", err.Error())
	}
	return Result{AccountID: acc.ID}
}

// UpdateDetailsInput holds the editable profile fields.
type UpdateDetailsInput struct {
	Username string
}

// RunUpdateDetails changes the username.
func RunUpdateDetails(ctx context.Context, accountID string, in UpdateDetailsInput, deps Deps) Result {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return failFor(FailureInvalidInput, accountID, errors.New("username is required"))
	}
	if accountID == "" {
		return fail(FailureInvalidToken, errors.New("missing subject"))
	}

	if err := deps.Accounts.Update(ctx, accountID, account.Patch{Username: &username}); err != nil {
		switch {
		case errors.Is(err, account.ErrNotFound):
			return failFor(FailureNotFound, accountID, err)
		case account.IsUniqueViolation(err):
			return failFor(FailureConflict, accountID, err)
		default:
			return failFor(FailureBackend, accountID, err)
		}
	}
	return Result{AccountID: accountID}
}
