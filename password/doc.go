// Package password implements password hashing and verification.
//
// Two algorithms are provided behind the [Hasher] interface: bcrypt (the
// default, cost 13) and Argon2id. Argon2id hashes are encoded in PHC string
// format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Both support transparent parameter upgrades: if a stored digest was produced
// with weaker parameters, [Hasher.NeedsRehash] returns true so the caller can
// re-hash on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum
// length, character classes) is enforced at the transport boundary.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive digests.
//   - Import any other goIAM package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
