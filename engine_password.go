package goIAM

import (
	"context"

	"github.com/MrEthical07/goIAM/internal/flows"
)

// ForgotPassword mails a reset link built from baseURL. An unknown email
// returns nil without sending so callers cannot probe for accounts. When the
// mail cannot be sent the token is rolled back and ErrDeliveryFailed is
// returned.
func (e *Engine) ForgotPassword(ctx context.Context, email, baseURL string) error {
	const op = "goIAM.ForgotPassword"
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.ForgotPassword(ctx, email, baseURL)
	err := e.finish(ctx, op, res)

	switch {
	case err == nil && res.Sent:
		e.metricInc(MetricPasswordResetRequest)
	case res.Failure == flows.FailureDelivery:
		e.noteDeliveryFailure(ctx, op, res)
	}
	sent := res.Sent
	e.emitAudit(ctx, AuditEventForgotPassword, err == nil, res.AccountID, err, func() map[string]string {
		if sent {
			return map[string]string{"sent": "true"}
		}
		return map[string]string{"sent": "false"}
	})
	return err
}

// ResetPassword describes the resetpassword operation and its observable behavior.
//
// The token is single use and expires after Config.PasswordReset.TTL; any
// invalid, used or expired token returns ErrUnauthorized. Success clears the
// account's refresh session.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.ResetPassword(ctx, token, newPassword)
	err := e.finish(ctx, "goIAM.ResetPassword", res)
	if err == nil {
		e.metricInc(MetricPasswordResetConfirmSuccess)
	} else {
		e.metricInc(MetricPasswordResetConfirmFailure)
	}
	e.emitAudit(ctx, AuditEventResetPassword, err == nil, res.AccountID, err, nil)
	return err
}

// UpdatePassword replaces the password after checking the current one and
// clears the refresh session. A wrong current password returns
// ErrUnauthorized.
func (e *Engine) UpdatePassword(ctx context.Context, user ActiveUser, current, next string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.UpdatePassword(ctx, user.Subject, current, next)
	err := e.finish(ctx, "goIAM.UpdatePassword", res)
	switch res.Failure {
	case flows.FailureNone:
		e.metricInc(MetricPasswordChangeSuccess)
	case flows.FailureInvalidCredentials:
		e.metricInc(MetricPasswordChangeInvalidOld)
	}
	e.emitAudit(ctx, AuditEventUpdatePassword, err == nil, user.Subject, err, nil)
	return err
}
