// Package flows contains the orchestration body of every Engine operation.
//
// Each Run* function takes a context, a typed input and the shared [Deps]
// wiring, and returns a [Result] whose Failure field classifies what went
// wrong. The root package maps failure kinds to its exported errors, emits
// audit events and bumps metrics; flows never do either.
//
// # Architecture boundaries
//
// Flows coordinate the account store, the refresh session store, the password
// hasher, the token signer, the TOTP verifier and the mail callbacks. They do
// NOT own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goIAM (to avoid import cycles).
//   - Return raw store errors as the outward signal. The underlying cause is
//     kept in Result.Err for logging only.
package flows
