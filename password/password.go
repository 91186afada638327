package password

import "errors"

var (
	// ErrEmptyPassword is returned by Hash for zero-length input.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordTooLong is returned by Hash when the input exceeds the
	// algorithm's byte limit.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
)

// Hasher hashes and verifies passwords.
//
// Compare never returns an error: a malformed or foreign digest compares as
// false. NeedsRehash reports digests produced with weaker parameters than the
// hasher is configured for.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Compare(plaintext, digest string) bool
	NeedsRehash(digest string) bool
}

// Algorithm names accepted by [New].
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// Options selects and tunes a hasher.
type Options struct {
	Algorithm  string
	BcryptCost int
	Argon2     Config
}

// New builds the hasher named by opts.Algorithm. An empty algorithm selects
// bcrypt.
func New(opts Options) (Hasher, error) {
	switch opts.Algorithm {
	case "", AlgorithmBcrypt:
		h, err := NewBcrypt(opts.BcryptCost)
		if err != nil {
			return nil, err
		}
		return h, nil
	case AlgorithmArgon2id:
		h, err := NewArgon2(opts.Argon2)
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, errors.New("unsupported password algorithm")
	}
}
