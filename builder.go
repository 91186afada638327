package goIAM

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goIAM/account"
	"github.com/MrEthical07/goIAM/internal/audit"
	"github.com/MrEthical07/goIAM/internal/flows"
	"github.com/MrEthical07/goIAM/internal/logging"
	"github.com/MrEthical07/goIAM/internal/rate"
	"github.com/MrEthical07/goIAM/jwt"
	"github.com/MrEthical07/goIAM/password"
	"github.com/MrEthical07/goIAM/session"
	"github.com/MrEthical07/goIAM/totp"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine].
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  account.Store
	sessions  session.Store
	mailer    Mailer
	responder SecurityResponder
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder seeded with the default configuration. Builders
// are not safe for concurrent use.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// The client backs the refresh session store and the rate limiter. Build
// fails when neither a client nor a session store is set.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the account persistence collaborator. Required.
func (b *Builder) WithAccountStore(store account.Store) *Builder {
	b.accounts = store
	return b
}

// WithSessionStore overrides the refresh session store. Without it the
// engine uses a [session.RedisStore] on the client given to WithRedis.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessions = store
	return b
}

// WithMailer sets the outbound mail collaborator. Required.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithSecurityResponder sets the refresh-reuse consumer. The default logs
// each event at warn level.
func (b *Builder) WithSecurityResponder(r SecurityResponder) *Builder {
	b.responder = r
	return b
}

// WithAuditSink sets where audit events go. It only takes effect when
// Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the VerifyAccess latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build returns an error when the configuration is invalid, a required
// collaborator is missing or cannot be constructed. A Builder builds at most
// once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}

	logger := b.logger
	if logger == nil {
		logger = logging.Discard()
	}

	// -------- SESSION STORE --------
	sessions := b.sessions
	if sessions == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or session store required")
		}
		sessions = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, cfg.JWT.RefreshTTL)
	}

	// -------- CREDENTIALS --------
	hasher, err := password.New(password.Options{
		Algorithm:  cfg.Password.Algorithm,
		BcryptCost: cfg.Password.Cost,
		Argon2: password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
	})
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, err
	}

	tm, err := totp.NewManager(totp.Config{
		Issuer:    cfg.TOTP.AppName,
		Digits:    cfg.TOTP.Digits,
		Period:    int(cfg.TOTP.Period / time.Second),
		Algorithm: cfg.TOTP.Algorithm,
		Skew:      cfg.TOTP.Skew,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cloneConfig(cfg),
		sessions:  sessions,
		mailer:    b.mailer,
		responder: b.responder,
		logger:    logger,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		now:     time.Now,
	}
	if engine.responder == nil {
		engine.responder = logResponder{logger: logger}
	}

	deps := flows.Deps{
		Accounts:                b.accounts,
		Sessions:                sessions,
		Hasher:                  hasher,
		Signer:                  jm,
		TOTP:                    tm,
		AccessTTL:               cfg.JWT.AccessTTL,
		RefreshTTL:              cfg.JWT.RefreshTTL,
		NewRefreshID:            uuid.NewString,
		ConfirmTTL:              cfg.EmailConfirmation.TTL,
		RequireConfirmedToLogin: cfg.EmailConfirmation.RequiredForLogin,
		ResetTTL:                cfg.PasswordReset.TTL,
		RehashOnLogin:           cfg.Password.UpgradeOnLogin,
		RollbackTimeout:         cfg.Mail.RollbackTimeout,
		DummyHash:               dummyHash,
		SendConfirmation:        engine.sendConfirmation,
		SendReset:               engine.sendReset,
		Now:                     func() time.Time { return engine.now() },
		Warn: func(msg string, args ...any) {
			logger.Warn(msg, args...)
		},
	}

	// A nil *Sealer or *Limiter must not be stored in the interface fields.
	if len(cfg.TOTP.EncryptionKey) > 0 {
		sealer, err := totp.NewSealer(cfg.TOTP.EncryptionKey)
		if err != nil {
			return nil, err
		}
		deps.Sealer = sealer
	}
	if b.redis != nil {
		engine.redis = b.redis
		deps.Limiter = rate.New(b.redis, cfg.Security.RedisPrefix, rate.Config{
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
			MaxForgotRequests:     cfg.Security.MaxForgotRequests,
			ForgotCooldown:        cfg.Security.ForgotCooldown,
		})
	}

	engine.flows = flows.New(deps)
	b.built = true

	return engine, nil
}
