// Package totp implements RFC 6238 time-based one-time passwords for the
// second login factor, plus at-rest sealing of the shared secrets.
//
// Secrets are 20 random bytes encoded as unpadded base32, the format every
// authenticator app accepts.
package totp
