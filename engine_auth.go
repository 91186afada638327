package goIAM

import (
	"context"
	"time"

	"github.com/MrEthical07/goIAM/internal/flows"
)

// Register creates an unconfirmed account and mails a confirmation link built
// from baseURL. When the mail cannot be sent the confirmation token is
// rolled back and ErrDeliveryFailed is returned; the account row remains.
func (e *Engine) Register(ctx context.Context, in RegisterInput, baseURL string) error {
	const op = "goIAM.Register"
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.Register(ctx, flows.RegisterInput{
		Username: in.Username,
		Email:    in.Email,
		Password: in.Password,
		Role:     in.Role,
		BaseURL:  baseURL,
	})
	err := e.finish(ctx, op, res)

	switch res.Failure {
	case flows.FailureNone:
		e.metricInc(MetricRegisterSuccess)
	case flows.FailureConflict:
		e.metricInc(MetricRegisterConflict)
	case flows.FailureDelivery:
		e.noteDeliveryFailure(ctx, op, res)
	}
	e.emitAudit(ctx, AuditEventRegister, err == nil, res.AccountID, err, nil)
	return err
}

// ConfirmEmail redeems a confirmation token. Every invalid, foreign or
// already used token yields ErrUnauthorized.
func (e *Engine) ConfirmEmail(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.ConfirmEmail(ctx, token)
	err := e.finish(ctx, "goIAM.ConfirmEmail", res)
	if err == nil {
		e.metricInc(MetricConfirmEmailSuccess)
	} else {
		e.metricInc(MetricConfirmEmailFailure)
	}
	e.emitAudit(ctx, AuditEventConfirmEmail, err == nil, res.AccountID, err, nil)
	return err
}

// Login describes the login operation and its observable behavior.
//
// Unknown email, wrong password and a missing or wrong TOTP code all return
// ErrUnauthorized. Throttled calls return ErrRateLimited. On success the
// returned refresh token becomes the account's only live session.
func (e *Engine) Login(ctx context.Context, in LoginInput) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}

	res := e.flows.Login(ctx, flows.LoginInput{
		Email:    in.Email,
		Password: in.Password,
		TfaCode:  in.TfaCode,
	}, clientIPFromContext(ctx))
	err := e.finish(ctx, "goIAM.Login", res)

	switch res.Failure {
	case flows.FailureNone:
		e.metricInc(MetricLoginSuccess)
		if res.Rehashed {
			e.metricInc(MetricPasswordRehashed)
		}
		e.emitAudit(ctx, AuditEventLoginSuccess, true, res.AccountID, nil, nil)
		return TokenPair{AccessToken: res.Pair.AccessToken, RefreshToken: res.Pair.RefreshToken}, nil
	case flows.FailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, AuditEventLoginRateLimited, false, "", err, nil)
		return TokenPair{}, err
	case flows.FailureTOTPRequired:
		e.metricInc(MetricTOTPRequired)
	case flows.FailureTOTPInvalid:
		e.metricInc(MetricTOTPFailure)
	}

	e.metricInc(MetricLoginFailure)
	reason := res.Failure.String()
	e.emitAudit(ctx, AuditEventLoginFailure, false, res.AccountID, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return TokenPair{}, err
}

// Refresh trades a refresh token for a new pair and rotates the account's
// session. Presenting a token that was already rotated away returns
// ErrReuseDetected, clears the session and notifies the SecurityResponder.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}

	res := e.flows.Refresh(ctx, refreshToken)
	err := e.finish(ctx, "goIAM.Refresh", res)

	switch res.Failure {
	case flows.FailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, AuditEventRefreshSuccess, true, res.AccountID, nil, nil)
		return TokenPair{AccessToken: res.Pair.AccessToken, RefreshToken: res.Pair.RefreshToken}, nil
	case flows.FailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, AuditEventRefreshReuse, false, res.AccountID, err, nil)
		ev := ReuseEvent{
			AccountID:  res.AccountID,
			IP:         clientIPFromContext(ctx),
			DetectedAt: e.timeNow().UTC(),
		}
		if res.Account != nil {
			ev.Email = res.Account.Email
		}
		e.responder.OnRefreshReuse(ctx, ev)
		return TokenPair{}, err
	}

	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, AuditEventRefreshFailure, false, res.AccountID, err, nil)
	return TokenPair{}, err
}

// VerifyAccess checks an access token and returns the identity it carries.
// Refresh tokens and anything malformed, expired or foreign return
// ErrUnauthorized.
func (e *Engine) VerifyAccess(ctx context.Context, accessToken string) (ActiveUser, error) {
	if !e.ready() {
		return ActiveUser{}, ErrEngineNotReady
	}

	start := time.Now()
	claims, res := e.flows.VerifyAccess(accessToken)
	if e.metrics.Enabled() {
		e.metrics.Observe(MetricVerifyAccessLatency, time.Since(start))
	}
	if err := e.finish(ctx, "goIAM.VerifyAccess", res); err != nil {
		e.metricInc(MetricVerifyAccessFailure)
		return ActiveUser{}, err
	}
	return activeUserFromFlow(claims), nil
}

// Logout clears the user's refresh session. It is idempotent.
func (e *Engine) Logout(ctx context.Context, user ActiveUser) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.Logout(ctx, user.Subject)
	err := e.finish(ctx, "goIAM.Logout", res)
	if err == nil {
		e.metricInc(MetricLogout)
	}
	e.emitAudit(ctx, AuditEventLogout, err == nil, user.Subject, err, nil)
	return err
}

func (e *Engine) noteDeliveryFailure(ctx context.Context, op string, res flows.Result) {
	e.metricInc(MetricMailDeliveryFailure)
	e.emitAudit(ctx, AuditEventMailDeliveryFault, false, res.AccountID, ErrDeliveryFailed, func() map[string]string {
		return map[string]string{"op": op}
	})
	if res.RollbackErr != nil {
		e.metricInc(MetricRollbackFailure)
	}
}
