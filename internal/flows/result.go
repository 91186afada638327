package flows

import "github.com/MrEthical07/goIAM/account"

// FailureKind classifies flow failures for root-level mapping.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureInvalidInput
	FailureForbidden
	FailureConflict
	FailureInvalidCredentials
	FailureInvalidToken
	FailureTOTPRequired
	FailureTOTPInvalid
	FailureNotFound
	FailureReuse
	FailureRateLimited
	FailureDelivery
	FailureBackend
	FailureInternal
)

var failureNames = [...]string{
	FailureNone:               "none",
	FailureInvalidInput:       "invalid_input",
	FailureForbidden:          "forbidden",
	FailureConflict:           "conflict",
	FailureInvalidCredentials: "invalid_credentials",
	FailureInvalidToken:       "invalid_token",
	FailureTOTPRequired:       "totp_required",
	FailureTOTPInvalid:        "totp_invalid",
	FailureNotFound:           "not_found",
	FailureReuse:              "reuse_detected",
	FailureRateLimited:        "rate_limited",
	FailureDelivery:           "delivery_failed",
	FailureBackend:            "backend_unavailable",
	FailureInternal:           "internal",
}

func (k FailureKind) String() string {
	if k < 0 || int(k) >= len(failureNames) {
		return "unknown"
	}
	return failureNames[k]
}

// TokenPair is an issued access and refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Provision is a freshly generated TOTP secret and its otpauth URI.
type Provision struct {
	Secret string
	URI    string
}

// Result carries a flow outcome. Err holds the underlying cause for logging
// and is never shown to callers.
type Result struct {
	Failure   FailureKind
	Err       error
	AccountID string

	Account   *account.Account
	Pair      TokenPair
	Provision Provision

	// Sent is false when ForgotPassword skipped delivery for an unknown email.
	Sent bool
	// Rehashed is true when login upgraded the stored password digest.
	Rehashed bool
	// RollbackErr is set when undoing a failed delivery also failed.
	RollbackErr error
}

// OK reports whether the flow succeeded.
func (r Result) OK() bool { return r.Failure == FailureNone }

func fail(kind FailureKind, err error) Result {
	return Result{Failure: kind, Err: err}
}

func failFor(kind FailureKind, accountID string, err error) Result {
	return Result{Failure: kind, Err: err, AccountID: accountID}
}
