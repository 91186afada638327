package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has the collaborators every flow
// needs.
func (s Service) Initialized() bool {
	return s.deps.Accounts != nil && s.deps.Sessions != nil && s.deps.Hasher != nil && s.deps.Signer != nil
}

func (s Service) Register(ctx context.Context, in RegisterInput) Result {
	return RunRegister(ctx, in, s.deps)
}

func (s Service) ConfirmEmail(ctx context.Context, token string) Result {
	return RunConfirmEmail(ctx, token, s.deps)
}

func (s Service) Login(ctx context.Context, in LoginInput, clientIP string) Result {
	return RunLogin(ctx, in, clientIP, s.deps)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) Result {
	return RunRefresh(ctx, refreshToken, s.deps)
}

func (s Service) ForgotPassword(ctx context.Context, email, baseURL string) Result {
	return RunForgotPassword(ctx, email, baseURL, s.deps)
}

func (s Service) ResetPassword(ctx context.Context, token, newPassword string) Result {
	return RunResetPassword(ctx, token, newPassword, s.deps)
}

func (s Service) UpdatePassword(ctx context.Context, accountID, current, next string) Result {
	return RunUpdatePassword(ctx, accountID, current, next, s.deps)
}

func (s Service) UpdateDetails(ctx context.Context, accountID string, in UpdateDetailsInput) Result {
	return RunUpdateDetails(ctx, accountID, in, s.deps)
}

func (s Service) GetMe(ctx context.Context, accountID string) Result {
	return RunGetMe(ctx, accountID, s.deps)
}

func (s Service) GenerateTOTP(ctx context.Context, accountID string) Result {
	return RunGenerateTOTP(ctx, accountID, s.deps)
}

func (s Service) Logout(ctx context.Context, accountID string) Result {
	return RunLogout(ctx, accountID, s.deps)
}

func (s Service) VerifyAccess(token string) (AccessClaims, Result) {
	return RunVerifyAccess(token, s.deps)
}
