package flows

import (
	"context"
	"errors"
)

// RunLogout clears the account's refresh session. It is idempotent.
func RunLogout(ctx context.Context, accountID string, deps Deps) Result {
	if accountID == "" {
		return fail(FailureInvalidToken, errors.New("missing subject"))
	}
	if err := deps.Sessions.Invalidate(ctx, accountID); err != nil {
		return failFor(FailureBackend, accountID, err)
	}
	return Result{AccountID: accountID}
}

// AccessClaims is the identity carried by a verified access token.
type AccessClaims struct {
	Subject string
	Email   string
	Role    string
}

// RunVerifyAccess checks an access token. Refresh tokens are rejected: they
// carry a refresh id and no role.
func RunVerifyAccess(token string, deps Deps) (AccessClaims, Result) {
	claims, err := verify(token, deps)
	if err != nil {
		return AccessClaims{}, fail(FailureInvalidToken, err)
	}
	if claims.RefreshTokenID != "" || claims.Role == "" {
		return AccessClaims{}, failFor(FailureInvalidToken, claims.Subject, errors.New("not an access token"))
	}
	return AccessClaims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Role:    claims.Role,
	}, Result{AccountID: claims.Subject}
}
