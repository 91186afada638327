// Package jwt signs and verifies the engine's bearer tokens.
//
// Access tokens carry sub, email and role; refresh tokens carry sub and
// refreshTokenId. Both carry iss, aud, iat and exp. These names are a wire
// contract and are exported as Claim* constants.
package jwt
