package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goIAM/account"
)

// RunGenerateTOTP creates a secret for the account, enables TOTP with it and
// returns the secret and provisioning URI for rendering (e.g. as a QR code).
// Enabling replaces any previous secret.
func RunGenerateTOTP(ctx context.Context, accountID string, deps Deps) Result {
	if deps.TOTP == nil {
		return failFor(FailureInternal, accountID, errors.New("totp not configured"))
	}
	acc, res, ok := loadActive(ctx, accountID, deps)
	if !ok {
		return res
	}

	secret, uri, err := deps.TOTP.GenerateSecret(acc.Email)
	if err != nil {
		return failFor(FailureInternal, acc.ID, err)
	}

	if err := enableTOTP(ctx, acc.ID, secret, deps); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return failFor(FailureNotFound, acc.ID, err)
		}
		return failFor(FailureBackend, acc.ID, err)
	}

	return Result{AccountID: acc.ID, Provision: Provision{Secret: secret, URI: uri}}
}

// enableTOTP persists the (sealed) secret and switches the flag on in one
// update.
func enableTOTP(ctx context.Context, accountID, secret string, deps Deps) error {
	stored := secret
	if deps.Sealer != nil {
		sealed, err := deps.Sealer.Seal(secret)
		if err != nil {
			return err
		}
		stored = sealed
	}
	enabled := true
	return deps.Accounts.Update(ctx, accountID, account.Patch{
		TfaSecret:    &stored,
		IsTfaEnabled: &enabled,
	})
}
