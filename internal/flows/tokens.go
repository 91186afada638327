package flows

import (
	"errors"

	"github.com/MrEthical07/goIAM/account"
	"github.com/MrEthical07/goIAM/jwt"
)

var errSignerMissing = errors.New("token signer not configured")

// issuePair signs an access token {sub,email,role} and a refresh token
// {sub,refreshTokenId} for a. It returns the refresh id for the session store.
func issuePair(a *account.Account, deps Deps) (TokenPair, string, error) {
	if deps.Signer == nil || deps.NewRefreshID == nil {
		return TokenPair{}, "", errSignerMissing
	}
	refreshID := deps.NewRefreshID()

	access, err := deps.Signer.Sign(a.ID, map[string]any{
		jwt.ClaimEmail: a.Email,
		jwt.ClaimRole:  string(a.Role),
	}, deps.AccessTTL)
	if err != nil {
		return TokenPair{}, "", err
	}

	refresh, err := deps.Signer.Sign(a.ID, map[string]any{
		jwt.ClaimRefreshTokenID: refreshID,
	}, deps.RefreshTTL)
	if err != nil {
		return TokenPair{}, "", err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, refreshID, nil
}

func verify(token string, deps Deps) (*jwt.Claims, error) {
	if deps.Signer == nil {
		return nil, errSignerMissing
	}
	return deps.Signer.Verify(token, deps.Signer.Audience(), deps.Signer.Issuer())
}
