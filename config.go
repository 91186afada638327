package goIAM

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goIAM/password"
)

// Config defines the engine configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT               JWTConfig
	Password          PasswordConfig
	Session           SessionConfig
	EmailConfirmation EmailConfirmationConfig
	PasswordReset     PasswordResetConfig
	TOTP              TOTPConfig
	Mail              MailConfig
	Security          SecurityConfig
	Audit             AuditConfig
	Metrics           MetricsConfig

	// PublicBaseURL, when set, replaces the per-request base URL passed to
	// Register and ForgotPassword.
	PublicBaseURL string
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines token signing and lifetimes.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects and tunes the password hasher.
type PasswordConfig struct {
	Algorithm string // "bcrypt" (default) or "argon2id"
	Cost      int    // bcrypt work factor

	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// UpgradeOnLogin rehashes digests made with weaker parameters after a
	// successful login.
	UpgradeOnLogin bool
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines refresh session storage.
type SessionConfig struct {
	RedisPrefix string
}

/*
====================================
EMAIL CONFIRMATION CONFIG
====================================
*/

// EmailConfirmationConfig defines confirmation tokens.
type EmailConfirmationConfig struct {
	// TTL bounds how long after registration a confirmation token is
	// accepted. Zero means tokens never expire.
	TTL time.Duration
	// RequiredForLogin rejects logins for unconfirmed accounts.
	RequiredForLogin bool
	Path             string
	Subject          string
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig defines reset tokens.
type PasswordResetConfig struct {
	TTL     time.Duration
	Path    string
	Subject string
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig defines second-factor codes.
type TOTPConfig struct {
	AppName   string
	Digits    int
	Period    time.Duration
	Algorithm string
	Skew      int
	// EncryptionKey seals stored secrets with AES-256-GCM. It must be 32
	// bytes when set; empty stores secrets as plaintext.
	EncryptionKey []byte
}

/*
====================================
MAIL CONFIG
====================================
*/

// MailConfig defines outbound mail.
type MailConfig struct {
	From            string
	SendTimeout     time.Duration
	RollbackTimeout time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig defines login and forgot-password throttling. Throttling
// needs a Redis client; without one it is skipped.
type SecurityConfig struct {
	RedisPrefix           string
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	MaxForgotRequests     int
	ForgotCooldown        time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the defaults. JWT.PrivateKey still has to be set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "goIAM",
			Audience:      "goIAM",
		},
		Password: PasswordConfig{
			Algorithm:      password.AlgorithmBcrypt,
			Cost:           password.DefaultBcryptCost,
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Session: SessionConfig{
			RedisPrefix: "rt",
		},
		EmailConfirmation: EmailConfirmationConfig{
			TTL:     0,
			Path:    "/api/v1/auth/confirmemail",
			Subject: "Email Confirm token",
		},
		PasswordReset: PasswordResetConfig{
			TTL:     10 * time.Minute,
			Path:    "/api/v1/auth/resetpassword",
			Subject: "Password reset token",
		},
		TOTP: TOTPConfig{
			AppName:   "goIAM",
			Digits:    6,
			Period:    30 * time.Second,
			Algorithm: "SHA1",
			Skew:      1,
		},
		Mail: MailConfig{
			From:            "from@example.com",
			SendTimeout:     10 * time.Second,
			RollbackTimeout: 5 * time.Second,
		},
		Security: SecurityConfig{
			RedisPrefix:           "iam",
			EnableIPThrottle:      false,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
			MaxForgotRequests:     5,
			ForgotCooldown:        15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.TOTP.EncryptionKey = cloneBytes(cfg.TOTP.EncryptionKey)
	return out
}

// Validate describes the validate operation and its observable behavior.
//
// Validate returns the first constraint the configuration violates.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be in [0, 2m]")
	}

	// Password
	switch c.Password.Algorithm {
	case password.AlgorithmBcrypt:
		if c.Password.Cost < 4 || c.Password.Cost > 31 {
			return errors.New("Password Cost must be in [4, 31]")
		}
	case password.AlgorithmArgon2id:
		if c.Password.Memory < 8*1024 {
			return errors.New("Password Memory must be >= 8192 KB")
		}
		if c.Password.Time < 1 {
			return errors.New("Password Time must be >= 1")
		}
		if c.Password.Parallelism < 1 {
			return errors.New("Password Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("Password SaltLength must be >= 16")
		}
		if c.Password.KeyLength < 16 {
			return errors.New("Password KeyLength must be >= 16")
		}
	default:
		return errors.New("Password Algorithm must be 'bcrypt' or 'argon2id'")
	}

	// Email confirmation and reset
	if c.EmailConfirmation.TTL < 0 {
		return errors.New("EmailConfirmation TTL must be >= 0")
	}
	if !strings.HasPrefix(c.EmailConfirmation.Path, "/") {
		return errors.New("EmailConfirmation Path must start with '/'")
	}
	if c.PasswordReset.TTL <= 0 {
		return errors.New("PasswordReset TTL must be > 0")
	}
	if !strings.HasPrefix(c.PasswordReset.Path, "/") {
		return errors.New("PasswordReset Path must start with '/'")
	}

	// TOTP
	if strings.TrimSpace(c.TOTP.AppName) == "" {
		return errors.New("TOTP AppName must not be empty")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("TOTP Digits must be 6, 7 or 8")
	}
	if c.TOTP.Period < time.Second || c.TOTP.Period%time.Second != 0 {
		return errors.New("TOTP Period must be a whole number of seconds")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256 or SHA512")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 10 {
		return errors.New("TOTP Skew must be in [0, 10]")
	}
	if len(c.TOTP.EncryptionKey) != 0 && len(c.TOTP.EncryptionKey) != 32 {
		return errors.New("TOTP EncryptionKey must be 32 bytes")
	}

	// Mail
	if strings.TrimSpace(c.Mail.From) == "" {
		return errors.New("Mail From must not be empty")
	}
	if c.Mail.SendTimeout <= 0 {
		return errors.New("Mail SendTimeout must be > 0")
	}
	if c.Mail.RollbackTimeout <= 0 {
		return errors.New("Mail RollbackTimeout must be > 0")
	}

	// Security
	if c.Security.MaxLoginAttempts < 0 || c.Security.MaxForgotRequests < 0 {
		return errors.New("Security attempt budgets must be >= 0")
	}
	if c.Security.MaxLoginAttempts > 0 && c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security LoginCooldownDuration must be > 0 when MaxLoginAttempts is set")
	}
	if c.Security.MaxForgotRequests > 0 && c.Security.ForgotCooldown <= 0 {
		return errors.New("Security ForgotCooldown must be > 0 when MaxForgotRequests is set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	if c.PublicBaseURL != "" {
		u, err := url.Parse(c.PublicBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("PublicBaseURL must be an absolute URL")
		}
	}

	return nil
}
