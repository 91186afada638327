package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goIAM/account"
	"github.com/MrEthical07/goIAM/internal/onetime"
	"github.com/MrEthical07/goIAM/password"
)

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
	// BaseURL is the origin the confirmation link is built on.
	BaseURL string
}

// RunRegister creates an unconfirmed account and mails its confirmation
// token. A failed delivery clears the stored token hash and reports
// FailureDelivery; the account row itself is kept.
func RunRegister(ctx context.Context, in RegisterInput, deps Deps) Result {
	email := account.NormalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)
	if email == "" || username == "" || in.Password == "" {
		return fail(FailureInvalidInput, errors.New("username, email and password are required"))
	}

	role := account.Role(strings.ToUpper(strings.TrimSpace(in.Role)))
	switch {
	case role == "":
		role = account.RoleUser
	case role == account.RoleAdmin:
		return fail(FailureForbidden, errors.New("admin role cannot be self-assigned"))
	case !role.Valid():
		return fail(FailureInvalidInput, errors.New("unknown role"))
	}

	digest, err := deps.Hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrEmptyPassword) || errors.Is(err, password.ErrPasswordTooLong) {
			return fail(FailureInvalidInput, err)
		}
		return fail(FailureInternal, err)
	}

	raw, tokenHash, err := onetime.NewToken()
	if err != nil {
		return fail(FailureInternal, err)
	}
	token, err := onetime.Padded(raw)
	if err != nil {
		return fail(FailureInternal, err)
	}

	acc := &account.Account{
		Email:                 email,
		Username:              username,
		PasswordHash:          digest,
		Role:                  role,
		IsEmailConfirmed:      false,
		ConfirmEmailTokenHash: &tokenHash,
	}
	if err := deps.Accounts.Create(ctx, acc); err != nil {
		if account.IsUniqueViolation(err) {
			return fail(FailureConflict, err)
		}
		return fail(FailureBackend, err)
	}

	if deps.SendConfirmation == nil {
		return failFor(FailureDelivery, acc.ID, errors.New("no mailer configured"))
	}
	if err := deps.SendConfirmation(ctx, acc.Email, in.BaseURL, token); err != nil {
		res := failFor(FailureDelivery, acc.ID, err)
		res.RollbackErr = rollbackConfirmation(ctx, acc.ID, deps)
		return res
	}

	return Result{AccountID: acc.ID, Account: acc}
}

func rollbackConfirmation(ctx context.Context, accountID string, deps Deps) error {
	rctx, cancel := deps.rollbackContext(ctx)
	defer cancel()

	unconfirmed := false
	err := deps.Accounts.Update(rctx, accountID, account.Patch{
		ClearConfirmEmailHash: true,
		IsEmailConfirmed:      &unconfirmed,
	})
	if err != nil {
		deps.warn("goIAM: confirmation rollback failed", "account_id", accountID, "error", err.Error())
	}
	return err
}

// RunConfirmEmail redeems a confirmation token. Every mismatch, including an
// already confirmed account, is FailureInvalidToken.
func RunConfirmEmail(ctx context.Context, token string, deps Deps) Result {
	raw := onetime.SplitPadded(strings.TrimSpace(token))
	if raw == "" {
		return fail(FailureInvalidToken, errors.New("empty confirmation token"))
	}

	acc, err := deps.Accounts.FindByConfirmTokenHash(ctx, onetime.Hash(raw))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return fail(FailureInvalidToken, err)
		}
		return fail(FailureBackend, err)
	}
	if acc.IsEmailConfirmed {
		return failFor(FailureInvalidToken, acc.ID, errors.New("email already confirmed"))
	}
	if deps.ConfirmTTL > 0 && !acc.CreatedAt.IsZero() && !deps.now().Before(acc.CreatedAt.Add(deps.ConfirmTTL)) {
		return failFor(FailureInvalidToken, acc.ID, errors.New("confirmation token expired"))
	}

	confirmed := true
	err = deps.Accounts.Update(ctx, acc.ID, account.Patch{
		IsEmailConfirmed:      &confirmed,
		ClearConfirmEmailHash: true,
		ExpectUnconfirmed:     true,
	})
	if err != nil {
		if errors.Is(err, account.ErrPreconditionFailed) || errors.Is(err, account.ErrNotFound) {
			return failFor(FailureInvalidToken, acc.ID, err)
		}
		return failFor(FailureBackend, acc.ID, err)
	}

	return Result{AccountID: acc.ID}
}
