// Package account defines the account row the auth engine works with and the
// storage contract adapters implement.
//
// # Architecture boundaries
//
// Store implementations live under store/ (memory, postgres, sqlite, mongo).
// The Engine only sees the [Store] interface and the structured errors declared
// here: [UniqueViolationError], [ErrNotFound] and [ErrPreconditionFailed].
//
// # What this package must NOT do
//
//   - Import goIAM or any store adapter.
//   - Hash, sign, or otherwise interpret credential material.
package account
