package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const secretBytes = 20

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// ErrInvalidSecret is returned when a stored secret cannot be decoded.
var ErrInvalidSecret = errors.New("invalid totp secret")

// Config controls code generation. Zero Algorithm, Digits and Period take
// authenticator-app defaults (SHA1, 6 digits, 30 seconds). Skew is the number
// of periods of drift accepted either way; zero accepts only the current one.
type Config struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	Skew      int
}

// Manager generates secrets and verifies codes.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates cfg and fills defaults.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	cfg.Algorithm = strings.ToUpper(cfg.Algorithm)
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	if cfg.Skew < 0 || cfg.Skew > 10 {
		return nil, errors.New("totp skew must be in [0,10]")
	}
	if cfg.Digits < 6 || cfg.Digits > 8 {
		return nil, errors.New("totp digits must be 6, 7 or 8")
	}
	if cfg.Period < 1 {
		return nil, errors.New("totp period must be > 0")
	}
	if _, err := hmacFunc(cfg.Algorithm); err != nil {
		return nil, err
	}
	return &Manager{config: cfg, now: time.Now}, nil
}

// GenerateSecret returns a fresh base32 secret and its provisioning URI for
// label (usually the account email). Nothing is persisted.
func (m *Manager) GenerateSecret(label string) (secret, uri string, err error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	secret = b32.EncodeToString(raw)
	return secret, m.ProvisionURI(secret, label), nil
}

// ProvisionURI builds the otpauth:// URI understood by authenticator apps.
func (m *Manager) ProvisionURI(secret, label string) string {
	issuer := m.config.Issuer
	path := url.PathEscape(issuer + ":" + label)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("algorithm", m.config.Algorithm)
	v.Set("digits", strconv.Itoa(m.config.Digits))
	v.Set("period", strconv.Itoa(m.config.Period))

	return "otpauth://totp/" + path + "?" + v.Encode()
}

// Verify reports whether code is valid for the base32 secret at the current
// time. Malformed codes or secrets yield false.
func (m *Manager) Verify(code, secret string) bool {
	raw, err := DecodeSecret(secret)
	if err != nil {
		return false
	}
	ok, _ := m.VerifyAt(raw, code, m.now())
	return ok
}

// VerifyAt checks code against raw key bytes at now, allowing Skew steps of
// drift either way. It returns the matched counter.
func (m *Manager) VerifyAt(secret []byte, code string, now time.Time) (bool, int64) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.config.Digits || !isNumeric(trimmed) || len(secret) == 0 {
		return false, 0
	}

	base := now.Unix() / int64(m.config.Period)
	for step := -m.config.Skew; step <= m.config.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(secret, counter, m.config.Digits, m.config.Algorithm)
		if err != nil {
			return false, 0
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, counter
		}
	}
	return false, 0
}

// Code returns the code for secret at t. It exists for clients and tests.
func (m *Manager) Code(secret string, t time.Time) (string, error) {
	raw, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	return hotpCode(raw, t.Unix()/int64(m.config.Period), m.config.Digits, m.config.Algorithm)
}

// DecodeSecret parses a base32 secret, tolerating padding, spaces and case.
func DecodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, ErrInvalidSecret
	}
	raw, err := b32.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return raw, nil
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported totp algorithm")
	}
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
