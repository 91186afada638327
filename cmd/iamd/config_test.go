package main

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFromFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
env: prod
public_base_url: https://id.example.com
jwt:
  secret: `+testSecret+`
  access_ttl: 5m
store:
  driver: sqlite
  dsn: ":memory:"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, 5*time.Minute, cfg.JWT.AccessTTL)
	require.Equal(t, 168*time.Hour, cfg.JWT.RefreshTTL)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Equal(t, "log", cfg.Mail.Driver)
	require.Equal(t, "/metrics", cfg.Metrics.Path)
	require.Equal(t, 5, cfg.Security.MaxLoginAttempts)
	require.Empty(t, cfg.HTTP.TrustedProxies)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
jwt:
  secret: `+testSecret+`
http:
  addr: ":9000"
`)
	t.Setenv("GOIAM_HTTP_ADDR", ":9100")
	t.Setenv("GOIAM_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("GOIAM_KAFKA_REUSE_TOPIC", "iam.security")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9100", cfg.HTTP.Addr)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfigFromEnvOnly(t *testing.T) {
	t.Setenv("GOIAM_JWT_SECRET", testSecret)
	t.Setenv("GOIAM_STORE_DRIVER", "memory")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.Store.Driver)
	require.Equal(t, "local", cfg.Env)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	tests := map[string]string{
		"missing secret": `
store:
  driver: memory
`,
		"unknown store": `
jwt: {secret: ` + testSecret + `}
store: {driver: cassandra}
`,
		"postgres without dsn": `
jwt: {secret: ` + testSecret + `}
store: {driver: postgres}
`,
		"smtp without host": `
jwt: {secret: ` + testSecret + `}
mail: {driver: smtp}
`,
		"prod without public base url": `
env: prod
jwt: {secret: ` + testSecret + `}
`,
		"relative public base url": `
public_base_url: id.example.com
jwt: {secret: ` + testSecret + `}
`,
		"otlp without metrics": `
jwt: {secret: ` + testSecret + `}
metrics: {enabled: false, otlp_endpoint: "collector:4318"}
`,
		"kafka without topics": `
jwt: {secret: ` + testSecret + `}
kafka: {brokers: [localhost:9092]}
`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestEngineConfigMapping(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	cfg := &Config{
		PublicBaseURL: "https://id.example.com",
		JWT: JWTConfig{
			Secret:     testSecret,
			AccessTTL:  time.Minute,
			RefreshTTL: time.Hour,
			Issuer:     "iss",
			Audience:   "aud",
		},
		TOTP:     TOTPConfig{AppName: "Acme", EncryptionKey: base64.StdEncoding.EncodeToString(key)},
		Mail:     MailConfig{From: "noreply@example.com"},
		Kafka:    KafkaConfig{AuditTopic: "iam.audit"},
		Security: SecurityConfig{MaxLoginAttempts: 3, LoginCooldown: time.Minute},
		Audit:    AuditConfig{BufferSize: 16},
		Metrics:  MetricsConfig{Enabled: true, Histograms: true},
	}

	ec, err := cfg.EngineConfig()
	require.NoError(t, err)
	require.Equal(t, "https://id.example.com", ec.PublicBaseURL)
	require.Equal(t, []byte(testSecret), ec.JWT.PrivateKey)
	require.Equal(t, time.Minute, ec.JWT.AccessTTL)
	require.Equal(t, "Acme", ec.TOTP.AppName)
	require.Equal(t, key, ec.TOTP.EncryptionKey)
	require.Equal(t, "noreply@example.com", ec.Mail.From)
	require.Equal(t, 3, ec.Security.MaxLoginAttempts)
	require.True(t, ec.Audit.Enabled)
	require.True(t, ec.Metrics.EnableLatencyHistograms)

	cfg.JWT.Secret = "short"
	_, err = cfg.EngineConfig()
	require.Error(t, err)

	cfg.JWT.Secret = testSecret
	cfg.TOTP.EncryptionKey = "!!not base64!!"
	_, err = cfg.EngineConfig()
	require.Error(t, err)
}

func TestRouterOptions(t *testing.T) {
	cfg := &Config{
		Env: "local",
		HTTP: HTTPConfig{
			TrustedProxies: []string{"10.0.0.0/8"},
			AllowedHosts:   []string{"localhost:8080"},
		},
	}
	opts := cfg.routerOptions()
	require.Equal(t, []string{"10.0.0.0/8"}, opts.TrustedProxies)
	require.Equal(t, []string{"localhost:8080"}, opts.AllowedHosts)
	require.Empty(t, opts.PublicBaseURL)

	cfg.Env = "prod"
	cfg.PublicBaseURL = "https://id.example.com"
	opts = cfg.routerOptions()
	require.Empty(t, opts.AllowedHosts, "outside local only the public base url builds links")
	require.Equal(t, "https://id.example.com", opts.PublicBaseURL)
}

func TestConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/goiam/env.yaml")
	require.Equal(t, "/etc/goiam/flag.yaml", configPath([]string{"-config", "/etc/goiam/flag.yaml"}))
	require.Equal(t, "/etc/goiam/env.yaml", configPath(nil))
}
