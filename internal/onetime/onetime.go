// Package onetime generates the opaque single-use tokens mailed for email
// confirmation and password reset. Only the SHA-256 of a raw token is stored.
package onetime

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	rawBytes     = 20
	paddingBytes = 100
)

// NewToken returns a raw token (40 lowercase hex characters) and its hash.
func NewToken() (raw, hash string, err error) {
	b := make([]byte, rawBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	return raw, Hash(raw), nil
}

// Hash returns sha256(raw) as lowercase hex. It is deterministic so stores can
// look tokens up by equality.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Padding returns 200 hex characters of random filler appended to confirmation
// tokens after a '.' separator.
func Padding() (string, error) {
	b := make([]byte, paddingBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Padded joins raw and a fresh padding segment.
func Padded(raw string) (string, error) {
	pad, err := Padding()
	if err != nil {
		return "", err
	}
	return raw + "." + pad, nil
}

// SplitPadded returns the segment before the first '.'. Tokens without a
// separator are returned whole.
func SplitPadded(token string) string {
	raw, _, _ := strings.Cut(token, ".")
	return raw
}
