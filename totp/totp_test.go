package totp

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func newManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func checkVectors(t *testing.T, algorithm string, secret []byte, cases map[int64]string) {
	t.Helper()
	m := newManager(t, Config{Issuer: "goIAM", Digits: 8, Algorithm: algorithm})
	for ts, code := range cases {
		if ok, _ := m.VerifyAt(secret, code, time.Unix(ts, 0)); !ok {
			t.Fatalf("%s vector failed at t=%d", algorithm, ts)
		}
	}
}

func TestRFCVectorsSHA1(t *testing.T) {
	checkVectors(t, "SHA1", []byte("12345678901234567890"), map[int64]string{
		59:          "94287082",
		1111111109:  "07081804",
		1111111111:  "14050471",
		1234567890:  "89005924",
		2000000000:  "69279037",
		20000000000: "65353130",
	})
}

func TestRFCVectorsSHA256(t *testing.T) {
	checkVectors(t, "SHA256", []byte("12345678901234567890123456789012"), map[int64]string{
		59:          "46119246",
		1111111109:  "68084774",
		1111111111:  "67062674",
		1234567890:  "91819424",
		2000000000:  "90698825",
		20000000000: "77737706",
	})
}

func TestRFCVectorsSHA512(t *testing.T) {
	checkVectors(t, "SHA512", []byte("1234567890123456789012345678901234567890123456789012345678901234"), map[int64]string{
		59:          "90693936",
		1111111109:  "25091201",
		1111111111:  "99943326",
		1234567890:  "93441116",
		2000000000:  "38618901",
		20000000000: "47863826",
	})
}

func TestSkewWindow(t *testing.T) {
	m := newManager(t, Config{Issuer: "goIAM"})
	secret := []byte("12345678901234567890")
	now := time.Unix(1234567890, 0)
	counter := now.Unix() / 30

	prev, _ := hotpCode(secret, counter-1, 6, "SHA1")
	if ok, got := m.VerifyAt(secret, prev, now); !ok || got != counter-1 {
		t.Fatalf("expected adjacent step accepted, ok=%v counter=%d", ok, got)
	}

	far, _ := hotpCode(secret, counter-2, 6, "SHA1")
	if ok, _ := m.VerifyAt(secret, far, now); ok {
		t.Fatal("expected code two steps away to be rejected")
	}
}

func TestVerifyRejectsMalformed(t *testing.T) {
	m := newManager(t, Config{Issuer: "goIAM"})
	secret, _, err := m.GenerateSecret("alice@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	for _, code := range []string{"", "12345", "1234567", "12a456", "      "} {
		if m.Verify(code, secret) {
			t.Fatalf("expected %q to be rejected", code)
		}
	}
	if m.Verify("123456", "not base32!") {
		t.Fatal("expected malformed secret to be rejected")
	}
	if m.Verify("123456", "") {
		t.Fatal("expected empty secret to be rejected")
	}
}

func TestGenerateSecretAndVerifyNow(t *testing.T) {
	m := newManager(t, Config{Issuer: "goIAM"})
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }

	secret, uri, err := m.GenerateSecret("alice@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	raw, err := DecodeSecret(secret)
	if err != nil || len(raw) != secretBytes {
		t.Fatalf("expected %d-byte secret, got %d err=%v", secretBytes, len(raw), err)
	}
	if strings.Contains(secret, "=") {
		t.Fatalf("expected unpadded base32, got %q", secret)
	}

	code, err := m.Code(secret, now)
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if !m.Verify(code, secret) {
		t.Fatal("expected current code to verify")
	}
	if !m.Verify(strings.ToLower(code), strings.ToLower(secret)) {
		t.Fatal("expected lowercase secret to verify")
	}

	u, err := url.Parse(uri)
	if err != nil {
		t.Fatalf("parse uri: %v", err)
	}
	if u.Scheme != "otpauth" || u.Host != "totp" {
		t.Fatalf("unexpected uri %q", uri)
	}
	if u.Path != "/goIAM:alice@example.com" {
		t.Fatalf("unexpected label %q", u.Path)
	}
	q := u.Query()
	if q.Get("secret") != secret || q.Get("issuer") != "goIAM" ||
		q.Get("algorithm") != "SHA1" || q.Get("digits") != "6" || q.Get("period") != "30" {
		t.Fatalf("unexpected query %v", q)
	}
}

func TestNewManagerValidation(t *testing.T) {
	bad := []Config{
		{Digits: 5},
		{Digits: 9},
		{Skew: -1},
		{Period: -30},
		{Algorithm: "MD5"},
	}
	for _, cfg := range bad {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("expected %+v to be rejected", cfg)
		}
	}
}
