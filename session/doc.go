// Package session tracks the single valid refresh-token id of each account.
//
// An account has at most one live refresh token. Issuing a new pair replaces
// the stored id; refreshing rotates it with an atomic compare-and-swap; logging
// out, resetting or changing the password clears it.
//
// # Reuse detection
//
// Presenting a refresh token whose id is not the stored one means the token
// was already rotated away. [Store.Rotate] treats that as theft: the stored id
// is deleted so every outstanding token of the account stops working, and
// [ErrReuseDetected] is returned.
//
// # Architecture boundaries
//
// This package stores ids only. It does NOT parse tokens or know who the
// account is beyond an opaque id string.
//
// # What this package must NOT do
//
//   - Import goIAM, jwt, or account (no upward imports).
//   - Store token bodies; only the random refresh id is persisted.
package session
