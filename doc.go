// Package goIAM is a credential and token lifecycle engine: registration with
// email confirmation, password login with optional TOTP, rotating refresh
// tokens with reuse detection, and password reset.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goIAM is the public surface. It exposes [Engine], [Builder], [Config], the
// error taxonomy and value types. Flow bodies live in internal/flows and
// return failure kinds that the Engine maps onto exported errors, metrics and
// audit events. Accounts are reached only through [account.Store]; refresh
// sessions only through [session.Store].
//
// # What this package must NOT do
//
//   - Expose raw store, Redis or signer errors to callers.
//   - Log or audit passwords, tokens or TOTP secrets.
//   - Import any sub-package that re-imports goIAM (no import cycles).
//
// # Error taxonomy
//
// Every token, credential and session failure returns [ErrUnauthorized] or a
// classed error that Is it ([ErrNotFound], [ErrDeliveryFailed],
// [ErrReuseDetected]). Callers that only understand the coarse taxonomy can
// branch on ErrUnauthorized alone.
package goIAM
