package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goIAM/account"
	"github.com/MrEthical07/goIAM/session"
)

// RunRefresh trades a refresh token for a new pair. The presented refresh id
// is swapped for a fresh one atomically. A presented id that is not the
// stored one is FailureReuse, including when the account has no stored id
// at all (after logout, reset or a password change), and leaves the account
// with no live session.
func RunRefresh(ctx context.Context, refreshToken string, deps Deps) Result {
	claims, err := verify(refreshToken, deps)
	if err != nil {
		return fail(FailureInvalidToken, err)
	}
	if claims.RefreshTokenID == "" {
		return failFor(FailureInvalidToken, claims.Subject, errors.New("token carries no refresh id"))
	}

	acc, err := deps.Accounts.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return failFor(FailureNotFound, claims.Subject, err)
		}
		return failFor(FailureBackend, claims.Subject, err)
	}

	pair, nextID, err := issuePair(acc, deps)
	if err != nil {
		return failFor(FailureInternal, acc.ID, err)
	}

	if err := deps.Sessions.Rotate(ctx, acc.ID, claims.RefreshTokenID, nextID); err != nil {
		if errors.Is(err, session.ErrReuseDetected) || errors.Is(err, session.ErrSessionNotFound) {
			return Result{Failure: FailureReuse, Err: err, AccountID: acc.ID, Account: acc}
		}
		return failFor(FailureBackend, acc.ID, err)
	}

	return Result{AccountID: acc.ID, Account: acc, Pair: pair}
}
