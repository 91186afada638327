package goIAM

import (
	"context"

	"github.com/MrEthical07/goIAM/internal/flows"
)

// GetMe returns the authenticated account's profile. A vanished account
// returns ErrNotFound, which Is ErrUnauthorized.
func (e *Engine) GetMe(ctx context.Context, user ActiveUser) (Profile, error) {
	if !e.ready() {
		return Profile{}, ErrEngineNotReady
	}

	res := e.flows.GetMe(ctx, user.Subject)
	if err := e.finish(ctx, "goIAM.GetMe", res); err != nil {
		return Profile{}, err
	}

	acc := res.Account
	return Profile{
		ID:               acc.ID,
		Username:         acc.Username,
		Email:            acc.Email,
		Role:             string(acc.Role),
		IsEmailConfirmed: acc.IsEmailConfirmed,
		IsTfaEnabled:     acc.IsTfaEnabled,
		CreatedAt:        acc.CreatedAt,
	}, nil
}

// UpdateDetails describes the updatedetails operation and its observable behavior.
//
// A username already taken returns ErrConflict; a vanished account returns
// ErrNotFound.
func (e *Engine) UpdateDetails(ctx context.Context, user ActiveUser, in UpdateDetailsInput) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.UpdateDetails(ctx, user.Subject, flows.UpdateDetailsInput{Username: in.Username})
	err := e.finish(ctx, "goIAM.UpdateDetails", res)
	e.emitAudit(ctx, AuditEventUpdateDetails, err == nil, user.Subject, err, nil)
	return err
}

// GenerateTOTP creates a TOTP secret, enables it for the user and returns it
// with its otpauth URI. Any previous secret is replaced; subsequent logins
// need a code.
func (e *Engine) GenerateTOTP(ctx context.Context, user ActiveUser) (TOTPProvision, error) {
	if !e.ready() {
		return TOTPProvision{}, ErrEngineNotReady
	}

	res := e.flows.GenerateTOTP(ctx, user.Subject)
	err := e.finish(ctx, "goIAM.GenerateTOTP", res)
	e.emitAudit(ctx, AuditEventTOTPEnabled, err == nil, user.Subject, err, nil)
	if err != nil {
		return TOTPProvision{}, err
	}

	e.metricInc(MetricTOTPEnabled)
	return TOTPProvision{Secret: res.Provision.Secret, URI: res.Provision.URI}, nil
}
