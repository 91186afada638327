package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goIAM/account"
	"github.com/MrEthical07/goIAM/internal/rate"
)

// LoginInput is the sign-in payload. TfaCode is required only for accounts
// with TOTP enabled.
type LoginInput struct {
	Email    string
	Password string
	TfaCode  string
}

// RunLogin checks credentials and the optional TOTP code, then issues a token
// pair and stores its refresh id as the account's only live session.
//
// Unknown email and wrong password both yield FailureInvalidCredentials and
// both spend one hash comparison.
func RunLogin(ctx context.Context, in LoginInput, clientIP string, deps Deps) Result {
	email := account.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return fail(FailureInvalidInput, errors.New("email and password are required"))
	}

	if deps.Limiter != nil {
		if err := deps.Limiter.CheckLogin(ctx, email, clientIP); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return fail(FailureRateLimited, err)
			}
			return fail(FailureBackend, err)
		}
	}

	acc, err := deps.Accounts.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, account.ErrNotFound) {
			return fail(FailureBackend, err)
		}
		_ = deps.Hasher.Compare(in.Password, deps.DummyHash)
		recordLoginFailure(ctx, email, clientIP, deps)
		return fail(FailureInvalidCredentials, err)
	}

	if !deps.Hasher.Compare(in.Password, acc.PasswordHash) {
		recordLoginFailure(ctx, email, clientIP, deps)
		return failFor(FailureInvalidCredentials, acc.ID, errors.New("password mismatch"))
	}

	if deps.RequireConfirmedToLogin && !acc.IsEmailConfirmed {
		return failFor(FailureInvalidCredentials, acc.ID, errors.New("email not confirmed"))
	}

	if acc.IsTfaEnabled {
		if strings.TrimSpace(in.TfaCode) == "" {
			return failFor(FailureTOTPRequired, acc.ID, errors.New("tfa code required"))
		}
		if !verifyTOTP(in.TfaCode, acc, deps) {
			recordLoginFailure(ctx, email, clientIP, deps)
			return failFor(FailureTOTPInvalid, acc.ID, errors.New("tfa code invalid"))
		}
	}

	pair, refreshID, err := issuePair(acc, deps)
	if err != nil {
		return failFor(FailureInternal, acc.ID, err)
	}
	if err := deps.Sessions.Insert(ctx, acc.ID, refreshID); err != nil {
		return failFor(FailureBackend, acc.ID, err)
	}

	if deps.Limiter != nil {
		if err := deps.Limiter.ResetLogin(ctx, email); err != nil {
			deps.warn("goIAM: login limiter reset failed", "error", err.Error())
		}
	}

	res := Result{AccountID: acc.ID, Account: acc, Pair: pair}
	if deps.RehashOnLogin && deps.Hasher.NeedsRehash(acc.PasswordHash) {
		res.Rehashed = rehash(ctx, acc.ID, in.Password, deps)
	}
	return res
}

func verifyTOTP(code string, acc *account.Account, deps Deps) bool {
	if deps.TOTP == nil || acc.TfaSecret == nil || *acc.TfaSecret == "" {
		return false
	}
	secret := *acc.TfaSecret
	if deps.Sealer != nil {
		opened, err := deps.Sealer.Open(secret)
		if err != nil {
			deps.warn("goIAM: tfa secret unseal failed", "account_id", acc.ID)
			return false
		}
		secret = opened
	}
	return deps.TOTP.Verify(code, secret)
}

func recordLoginFailure(ctx context.Context, email, clientIP string, deps Deps) {
	if deps.Limiter == nil {
		return
	}
	if err := deps.Limiter.IncrementLogin(ctx, email, clientIP); err != nil {
		deps.warn("goIAM: login limiter increment failed", "error", err.Error())
	}
}

// rehash upgrades a digest made with weaker parameters. Failure is not fatal
// to the login.
func rehash(ctx context.Context, accountID, plain string, deps Deps) bool {
	digest, err := deps.Hasher.Hash(plain)
	if err != nil {
		deps.warn("goIAM: password rehash failed", "account_id", accountID, "error", err.Error())
		return false
	}
	if err := deps.Accounts.Update(ctx, accountID, account.Patch{PasswordHash: &digest}); err != nil {
		deps.warn("goIAM: password rehash store failed", "account_id", accountID, "error", err.Error())
		return false
	}
	return true
}
