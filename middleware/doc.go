// Package middleware adapts goIAM access-token verification to net/http.
//
// # Handlers
//
//   - [Guard] verifies the bearer token with Engine.VerifyAccess and stores
//     the resulting goIAM.ActiveUser in the request context.
//   - [RequireRole] rejects authenticated callers whose role is not allowed.
//
// Handlers read the identity back with goIAM.ActiveUserFromContext.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Reveal why a token was rejected; every failure is a bare 401.
package middleware
