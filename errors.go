package goIAM

import "errors"

// classedError is a sentinel that also matches a coarser parent sentinel with
// errors.Is, so callers that only know ErrUnauthorized still classify it.
type classedError struct {
	msg    string
	parent error
}

func (e *classedError) Error() string { return e.msg }

func (e *classedError) Is(target error) bool { return target == e.parent }

var (
	// ErrUnauthorized is returned for every credential, token and session
	// failure. Token mismatch, expiry and not-found all return this value.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when registration requests a role that cannot be
	// self-assigned.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is returned when registration or a username change collides
	// with an existing account. The colliding field is not disclosed.
	ErrConflict = errors.New("account already exists")
	// ErrInvalidInput is returned for structurally invalid inputs (missing
	// fields, unknown role, over-long password).
	ErrInvalidInput = errors.New("invalid input")
	// ErrRateLimited is returned when login or forgot-password throttling
	// rejects the call.
	ErrRateLimited = errors.New("rate limited")
	// ErrEngineNotReady is returned by methods called on a nil or partially
	// built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrBackendUnavailable is returned when the account store or Redis fails.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrInternal is returned when hashing, signing or randomness fails.
	ErrInternal = errors.New("internal error")

	// ErrNotFound is returned when the account behind a valid token no longer
	// exists. It Is ErrUnauthorized.
	ErrNotFound error = &classedError{msg: "account not found", parent: ErrUnauthorized}
	// ErrDeliveryFailed is returned when a confirmation or reset mail could not
	// be sent. The issued token has been rolled back. It Is ErrUnauthorized.
	ErrDeliveryFailed error = &classedError{msg: "mail delivery failed", parent: ErrUnauthorized}
	// ErrReuseDetected is returned by Refresh when a rotated-away refresh token
	// is presented. The account's session has been cleared. It Is
	// ErrUnauthorized.
	ErrReuseDetected error = &classedError{msg: "refresh token reuse detected", parent: ErrUnauthorized}
)
