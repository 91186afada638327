package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goIAM/account"
	"github.com/MrEthical07/goIAM/internal/onetime"
	"github.com/MrEthical07/goIAM/internal/rate"
	"github.com/MrEthical07/goIAM/password"
)

// RunForgotPassword stores a reset token hash with its expiry and mails the
// raw token in a link built on baseURL. An unknown email succeeds with
// Sent=false so callers cannot probe for accounts.
func RunForgotPassword(ctx context.Context, email, baseURL string, deps Deps) Result {
	email = account.NormalizeEmail(email)
	if email == "" {
		return fail(FailureInvalidInput, errors.New("email is required"))
	}

	if deps.Limiter != nil {
		if err := deps.Limiter.AllowForgot(ctx, email); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return fail(FailureRateLimited, err)
			}
			return fail(FailureBackend, err)
		}
	}

	acc, err := deps.Accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return Result{}
		}
		return fail(FailureBackend, err)
	}

	raw, tokenHash, err := onetime.NewToken()
	if err != nil {
		return failFor(FailureInternal, acc.ID, err)
	}
	expiresAt := deps.now().Add(deps.ResetTTL)

	err = deps.Accounts.Update(ctx, acc.ID, account.Patch{
		ResetPasswordTokenHash: &tokenHash,
		ResetPasswordExpiresAt: &expiresAt,
	})
	if err != nil {
		return failFor(FailureBackend, acc.ID, err)
	}

	if deps.SendReset == nil {
		res := failFor(FailureDelivery, acc.ID, errors.New("no mailer configured"))
		res.RollbackErr = rollbackReset(ctx, acc.ID, deps)
		return res
	}
	if err := deps.SendReset(ctx, acc.Email, baseURL, raw); err != nil {
		res := failFor(FailureDelivery, acc.ID, err)
		res.RollbackErr = rollbackReset(ctx, acc.ID, deps)
		return res
	}

	return Result{AccountID: acc.ID, Sent: true}
}

func rollbackReset(ctx context.Context, accountID string, deps Deps) error {
	rctx, cancel := deps.rollbackContext(ctx)
	defer cancel()

	err := deps.Accounts.Update(rctx, accountID, account.Patch{ClearResetPassword: true})
	if err != nil {
		deps.warn("goIAM: reset rollback failed", "account_id", accountID, "error", err.Error())
	}
	return err
}

// RunResetPassword redeems a reset token, stores the new password and clears
// the token in one update, then kills the account's refresh session.
func RunResetPassword(ctx context.Context, token, newPassword string, deps Deps) Result {
	raw := strings.TrimSpace(token)
	if raw == "" {
		return fail(FailureInvalidToken, errors.New("empty reset token"))
	}
	if newPassword == "" {
		return fail(FailureInvalidInput, password.ErrEmptyPassword)
	}

	tokenHash := onetime.Hash(raw)
	acc, err := deps.Accounts.FindByResetTokenHash(ctx, tokenHash, deps.now())
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return fail(FailureInvalidToken, err)
		}
		return fail(FailureBackend, err)
	}

	digest, err := deps.Hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) || errors.Is(err, password.ErrEmptyPassword) {
			return failFor(FailureInvalidInput, acc.ID, err)
		}
		return failFor(FailureInternal, acc.ID, err)
	}

	err = deps.Accounts.Update(ctx, acc.ID, account.Patch{
		PasswordHash:       &digest,
		ClearResetPassword: true,
		ExpectResetHash:    &tokenHash,
	})
	if err != nil {
		if errors.Is(err, account.ErrPreconditionFailed) || errors.Is(err, account.ErrNotFound) {
			return failFor(FailureInvalidToken, acc.ID, err)
		}
		return failFor(FailureBackend, acc.ID, err)
	}

	if err := deps.Sessions.Invalidate(ctx, acc.ID); err != nil {
		deps.warn("goIAM: session invalidation after reset failed", "account_id", acc.ID, "error", err.Error())
	}
	return Result{AccountID: acc.ID}
}
