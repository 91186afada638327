// Package rate provides Redis fixed-window counters that throttle credential
// guessing and reset-mail flooding.
//
// # Window semantics
//
// INCR plus EXPIRE on the first hit of a window. Keys, under a configurable
// prefix:
//   - <prefix>:rl:login:<email>  failed logins per email
//   - <prefix>:rl:ip:<ip>        failed logins per client IP
//   - <prefix>:rl:forgot:<email> password-reset requests per email
//
// # What this package must NOT do
//
//   - Decide what counts as a failure; the login flow does.
//   - Be imported outside the goIAM module.
package rate
