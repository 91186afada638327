package jwt

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/goIAM/account"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key.
	MethodEd25519 SigningMethod = "ed25519"
)

// Wire names of the custom claims. Other services read these; do not rename.
const (
	ClaimSubject        = "sub"
	ClaimEmail          = "email"
	ClaimRole           = "role"
	ClaimRefreshTokenID = "refreshTokenId"
)

var registeredClaimNames = map[string]struct{}{
	"iss": {}, "aud": {}, "exp": {}, "iat": {}, "nbf": {}, "sub": {}, "jti": {},
}

var (
	// ErrTokenInvalid is returned for every verification failure: bad
	// signature, wrong issuer or audience, expired, or malformed input.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrInvalidTTL is returned by Sign for non-positive lifetimes.
	ErrInvalidTTL = errors.New("token ttl must be > 0")
)

// Config holds signer keys and validation settings.
type Config struct {
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for hs256, or the Ed25519 private key
	// (raw 64 bytes or PEM) for ed25519.
	PrivateKey []byte
	// PublicKey is the Ed25519 public key (raw 32 bytes or PEM). Unused for hs256.
	PublicKey    []byte
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
	KeyID        string
}

// Manager signs and verifies bearer tokens.
type Manager struct {
	config Config
	now    func() time.Time
}

// Claims is the decoded payload of an access or refresh token.
type Claims struct {
	Email          string `json:"email,omitempty"`
	Role           string `json:"role,omitempty"`
	RefreshTokenID string `json:"refreshTokenId,omitempty"`
	jwt.RegisteredClaims
}

// UnmarshalJSON accepts sub as a string or an integer. Tokens minted by
// services that key accounts by integer id carry a numeric sub; it is
// stored in the canonical string form.
func (c *Claims) UnmarshalJSON(data []byte) error {
	type plain Claims
	var raw struct {
		plain
		Subject json.RawMessage `json:"sub,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Claims(raw.plain)
	if len(raw.Subject) == 0 || bytes.Equal(raw.Subject, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw.Subject))
	dec.UseNumber()
	var sub any
	if err := dec.Decode(&sub); err != nil {
		return fmt.Errorf("sub: %w", err)
	}
	if n, ok := sub.(json.Number); ok {
		i, err := n.Int64()
		if err != nil {
			return fmt.Errorf("sub: %w", err)
		}
		sub = i
	}

	id, err := account.NormalizeID(sub)
	if err != nil {
		return fmt.Errorf("sub: %w", err)
	}
	c.Subject = id
	return nil
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

// Sign issues a token for subject with the given lifetime. Caller claims are
// merged into the payload; registered claim names (iss, aud, exp, iat, nbf,
// sub, jti) in claims are ignored so they cannot override the signer's values.
func (j *Manager) Sign(subject string, claims map[string]any, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}
	if subject == "" {
		return "", errors.New("token subject required")
	}

	now := j.now()
	payload := jwt.MapClaims{}
	for k, v := range claims {
		if _, reserved := registeredClaimNames[k]; reserved {
			continue
		}
		payload[k] = v
	}
	payload[ClaimSubject] = subject
	payload["iat"] = jwt.NewNumericDate(now)
	payload["exp"] = jwt.NewNumericDate(now.Add(ttl))
	if j.config.Issuer != "" {
		payload["iss"] = j.config.Issuer
	}
	if j.config.Audience != "" {
		payload["aud"] = j.config.Audience
	}

	token := jwt.NewWithClaims(j.getMethod(), payload)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey()
	if err != nil {
		return "", err
	}

	return token.SignedString(signKey)
}

// Verify parses tokenStr and checks signature, expiry, issuer and audience.
// Any failure is reported as ErrTokenInvalid; the underlying cause is wrapped
// for logging but callers should only branch on the sentinel.
func (j *Manager) Verify(tokenStr, expectedAudience, expectedIssuer string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrTokenInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if expectedIssuer != "" {
		options = append(options, jwt.WithIssuer(expectedIssuer))
	}
	if expectedAudience != "" {
		options = append(options, jwt.WithAudience(expectedAudience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if j.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != j.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return j.getVerifyKey()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.IssuedAt != nil && j.config.MaxFutureIAT > 0 {
		if claims.IssuedAt.Time.After(j.now().Add(j.config.MaxFutureIAT)) {
			return nil, fmt.Errorf("%w: iat too far in the future", ErrTokenInvalid)
		}
	}

	return claims, nil
}

// Issuer returns the configured issuer.
func (j *Manager) Issuer() string { return j.config.Issuer }

// Audience returns the configured audience.
func (j *Manager) Audience() string { return j.config.Audience }

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodEd25519:
		return jwt.SigningMethodEdDSA
	default:
		return jwt.SigningMethodHS256
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodEd25519:
		return parseEdPrivateKey(j.config.PrivateKey)
	default:
		return j.config.PrivateKey, nil
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodEd25519:
		return parseEdPublicKey(j.config.PublicKey)
	default:
		return j.config.PrivateKey, nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
