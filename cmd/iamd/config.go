package main

import (
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	goIAM "github.com/MrEthical07/goIAM"
	"github.com/MrEthical07/goIAM/internal/logging"
	"github.com/MrEthical07/goIAM/mailer"
	"github.com/MrEthical07/goIAM/transport/httpapi"
)

const (
	storeMemory   = "memory"
	storePostgres = "postgres"
	storeSQLite   = "sqlite"
	storeMongo    = "mongo"

	mailLog  = "log"
	mailSMTP = "smtp"
)

// Config is the service configuration read from YAML and the environment.
type Config struct {
	Env           string `yaml:"env" env:"GOIAM_ENV" env-default:"local"`
	LogLevel      string `yaml:"log_level" env:"GOIAM_LOG_LEVEL" env-default:"info"`
	PublicBaseURL string `yaml:"public_base_url" env:"GOIAM_PUBLIC_BASE_URL"`

	HTTP     HTTPConfig     `yaml:"http"`
	Redis    RedisConfig    `yaml:"redis"`
	Store    StoreConfig    `yaml:"store"`
	JWT      JWTConfig      `yaml:"jwt"`
	TOTP     TOTPConfig     `yaml:"totp"`
	Mail     MailConfig     `yaml:"mail"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Security SecurityConfig `yaml:"security"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" env:"GOIAM_HTTP_ADDR" env-default:":8080"`
	// TrustedProxies may set the client IP through X-Forwarded-For. Empty
	// trusts none.
	TrustedProxies []string `yaml:"trusted_proxies" env:"GOIAM_HTTP_TRUSTED_PROXIES" env-separator:","`
	// AllowedHosts are the Host values mailed links may be built from when
	// public_base_url is empty. Only honoured in the local env.
	AllowedHosts    []string      `yaml:"allowed_hosts" env:"GOIAM_HTTP_ALLOWED_HOSTS" env-separator:"," env-default:"localhost:8080,127.0.0.1:8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"10s"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"GOIAM_REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"GOIAM_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"GOIAM_REDIS_DB"`
}

type StoreConfig struct {
	Driver   string `yaml:"driver" env:"GOIAM_STORE_DRIVER" env-default:"memory"`
	DSN      string `yaml:"dsn" env:"GOIAM_STORE_DSN"`
	Database string `yaml:"database" env:"GOIAM_STORE_DATABASE" env-default:"goiam"`
	Migrate  bool   `yaml:"migrate" env:"GOIAM_STORE_MIGRATE" env-default:"true"`
}

type JWTConfig struct {
	Secret     string        `yaml:"secret" env:"GOIAM_JWT_SECRET" env-required:"true"`
	AccessTTL  time.Duration `yaml:"access_ttl" env:"GOIAM_JWT_ACCESS_TTL" env-default:"15m"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"GOIAM_JWT_REFRESH_TTL" env-default:"168h"`
	Issuer     string        `yaml:"issuer" env:"GOIAM_JWT_ISSUER" env-default:"goIAM"`
	Audience   string        `yaml:"audience" env:"GOIAM_JWT_AUDIENCE" env-default:"goIAM"`
}

type TOTPConfig struct {
	AppName string `yaml:"app_name" env:"GOIAM_TOTP_APP_NAME" env-default:"goIAM"`
	// EncryptionKey is 32 bytes, base64 encoded. Empty stores secrets unsealed.
	EncryptionKey string `yaml:"encryption_key" env:"GOIAM_TOTP_ENCRYPTION_KEY"`
}

type MailConfig struct {
	Driver   string        `yaml:"driver" env:"GOIAM_MAIL_DRIVER" env-default:"log"`
	From     string        `yaml:"from" env:"GOIAM_MAIL_FROM" env-default:"from@example.com"`
	Host     string        `yaml:"host" env:"GOIAM_SMTP_HOST"`
	Port     int           `yaml:"port" env:"GOIAM_SMTP_PORT" env-default:"587"`
	Username string        `yaml:"username" env:"GOIAM_SMTP_USERNAME"`
	Password string        `yaml:"password" env:"GOIAM_SMTP_PASSWORD"`
	TLS      string        `yaml:"tls" env:"GOIAM_SMTP_TLS" env-default:"mandatory"`
	Timeout  time.Duration `yaml:"timeout" env:"GOIAM_SMTP_TIMEOUT" env-default:"10s"`
}

type KafkaConfig struct {
	Brokers    []string `yaml:"brokers" env:"GOIAM_KAFKA_BROKERS" env-separator:","`
	ClientID   string   `yaml:"client_id" env:"GOIAM_KAFKA_CLIENT_ID" env-default:"goiam"`
	AuditTopic string   `yaml:"audit_topic" env:"GOIAM_KAFKA_AUDIT_TOPIC"`
	ReuseTopic string   `yaml:"reuse_topic" env:"GOIAM_KAFKA_REUSE_TOPIC"`
}

type SecurityConfig struct {
	MaxLoginAttempts int           `yaml:"max_login_attempts" env:"GOIAM_MAX_LOGIN_ATTEMPTS" env-default:"5"`
	LoginCooldown    time.Duration `yaml:"login_cooldown" env:"GOIAM_LOGIN_COOLDOWN" env-default:"15m"`
	EnableIPThrottle bool          `yaml:"enable_ip_throttle" env:"GOIAM_ENABLE_IP_THROTTLE"`
}

type AuditConfig struct {
	Enabled    bool `yaml:"enabled" env:"GOIAM_AUDIT_ENABLED"`
	BufferSize int  `yaml:"buffer_size" env-default:"1024"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" env:"GOIAM_METRICS_ENABLED" env-default:"true"`
	Path       string `yaml:"path" env-default:"/metrics"`
	Histograms bool   `yaml:"histograms" env:"GOIAM_METRICS_HISTOGRAMS"`

	// OTLPEndpoint (host:port) additionally pushes metrics to an
	// OpenTelemetry collector. Empty disables the push.
	OTLPEndpoint string        `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool          `yaml:"otlp_insecure" env:"GOIAM_OTLP_INSECURE"`
	OTLPInterval time.Duration `yaml:"otlp_interval" env:"GOIAM_OTLP_INTERVAL" env-default:"30s"`
}

// configPath resolves the file from -config, then CONFIG_PATH. An empty
// result means environment only.
func configPath(args []string) string {
	fs := flag.NewFlagSet("iamd", flag.ContinueOnError)
	var path string
	fs.StringVar(&path, "config", "", "path to config file")
	_ = fs.Parse(args)

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return path
}

// LoadConfig reads path when set and the environment otherwise.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Env != logging.EnvLocal && c.PublicBaseURL == "" {
		return fmt.Errorf("public_base_url is required outside the %q env", logging.EnvLocal)
	}
	if c.PublicBaseURL != "" {
		u, err := url.Parse(c.PublicBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("public_base_url %q must be an absolute http(s) URL", c.PublicBaseURL)
		}
	}

	switch c.Store.Driver {
	case storeMemory:
	case storePostgres, storeSQLite, storeMongo:
		if c.Store.DSN == "" {
			return fmt.Errorf("store dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Mail.Driver {
	case mailLog:
	case mailSMTP:
		if c.Mail.Host == "" {
			return errors.New("smtp host is required")
		}
	default:
		return fmt.Errorf("unknown mail driver %q", c.Mail.Driver)
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.AuditTopic == "" && c.Kafka.ReuseTopic == "" {
		return errors.New("kafka brokers set without any topic")
	}
	if c.Metrics.OTLPEndpoint != "" && !c.Metrics.Enabled {
		return errors.New("metrics otlp_endpoint requires metrics.enabled")
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.New("metrics path must start with '/'")
	}
	return nil
}

// EngineConfig maps the service configuration onto goIAM.Config and
// validates the result.
func (c *Config) EngineConfig() (goIAM.Config, error) {
	cfg := goIAM.DefaultConfig()
	cfg.PublicBaseURL = c.PublicBaseURL

	cfg.JWT.PrivateKey = []byte(c.JWT.Secret)
	cfg.JWT.AccessTTL = c.JWT.AccessTTL
	cfg.JWT.RefreshTTL = c.JWT.RefreshTTL
	cfg.JWT.Issuer = c.JWT.Issuer
	cfg.JWT.Audience = c.JWT.Audience

	cfg.TOTP.AppName = c.TOTP.AppName
	if c.TOTP.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.TOTP.EncryptionKey)
		if err != nil {
			return goIAM.Config{}, fmt.Errorf("totp encryption key: %w", err)
		}
		cfg.TOTP.EncryptionKey = key
	}

	cfg.Mail.From = c.Mail.From
	cfg.Security.MaxLoginAttempts = c.Security.MaxLoginAttempts
	cfg.Security.LoginCooldownDuration = c.Security.LoginCooldown
	cfg.Security.EnableIPThrottle = c.Security.EnableIPThrottle
	cfg.Audit.Enabled = c.Audit.Enabled || c.Kafka.AuditTopic != ""
	cfg.Audit.BufferSize = c.Audit.BufferSize
	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Histograms

	if err := cfg.Validate(); err != nil {
		return goIAM.Config{}, err
	}
	return cfg, nil
}

// routerOptions is the gin adapter's view of the HTTP section. Host-derived
// links are limited to the local env.
func (c *Config) routerOptions() httpapi.Options {
	opts := httpapi.Options{
		PublicBaseURL:  c.PublicBaseURL,
		TrustedProxies: c.HTTP.TrustedProxies,
	}
	if c.Env == logging.EnvLocal {
		opts.AllowedHosts = c.HTTP.AllowedHosts
	}
	return opts
}

func (c *Config) smtpConfig() mailer.SMTPConfig {
	return mailer.SMTPConfig{
		Host:     c.Mail.Host,
		Port:     c.Mail.Port,
		Username: c.Mail.Username,
		Password: c.Mail.Password,
		TLS:      c.Mail.TLS,
		Timeout:  c.Mail.Timeout,
	}
}
