package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goIAM/account"
	"github.com/MrEthical07/goIAM/jwt"
	"github.com/MrEthical07/goIAM/session"
)

// PasswordHasher is satisfied by password.Hasher.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(plain, digest string) bool
	NeedsRehash(digest string) bool
}

// TokenSigner is satisfied by *jwt.Manager.
type TokenSigner interface {
	Sign(subject string, claims map[string]any, ttl time.Duration) (string, error)
	Verify(token, expectedAudience, expectedIssuer string) (*jwt.Claims, error)
	Issuer() string
	Audience() string
}

// TOTPProvider is satisfied by *totp.Manager.
type TOTPProvider interface {
	GenerateSecret(label string) (secret, uri string, err error)
	Verify(code, secret string) bool
}

// SecretSealer is satisfied by *totp.Sealer (including a nil one).
type SecretSealer interface {
	Seal(secret string) (string, error)
	Open(stored string) (string, error)
}

// RateLimiter is satisfied by *rate.Limiter.
type RateLimiter interface {
	CheckLogin(ctx context.Context, email, ip string) error
	IncrementLogin(ctx context.Context, email, ip string) error
	ResetLogin(ctx context.Context, email string) error
	AllowForgot(ctx context.Context, email string) error
}

// MailFunc delivers a one-time token to an address. baseURL is the origin
// the caller asked links to be built on. The root package builds the URL and
// message; flows only decide when to send and how to roll back.
type MailFunc func(ctx context.Context, to, baseURL, token string) error

// Deps is the wiring shared by every flow. The root engine builds it once.
type Deps struct {
	Accounts account.Store
	Sessions session.Store
	Hasher   PasswordHasher
	Signer   TokenSigner
	TOTP     TOTPProvider
	Sealer   SecretSealer
	Limiter  RateLimiter

	SendConfirmation MailFunc
	SendReset        MailFunc

	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	NewRefreshID func() string

	ConfirmTTL              time.Duration
	RequireConfirmedToLogin bool
	ResetTTL                time.Duration
	RehashOnLogin           bool
	RollbackTimeout         time.Duration

	// DummyHash is compared against when the login email is unknown so both
	// branches spend a hash comparison.
	DummyHash string

	Now  func() time.Time
	Warn func(msg string, args ...any)
}

func (d Deps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func (d Deps) warn(msg string, args ...any) {
	if d.Warn != nil {
		d.Warn(msg, args...)
	}
}

// rollbackContext detaches from request cancellation so cleanup still runs
// when the caller has gone away.
func (d Deps) rollbackContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := d.RollbackTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
