package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrReuseDetected is returned by Rotate when the presented refresh id is not
// the current one. The account's session has been cleared when it is returned.
var ErrReuseDetected = errors.New("refresh token reuse detected")

// ErrSessionNotFound is returned by Rotate when the account has no session.
var ErrSessionNotFound = errors.New("refresh session not found")

// ErrRedisUnavailable wraps transport failures from the Redis store.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Store tracks the single valid refresh-token id per account.
type Store interface {
	// Insert unconditionally sets the account's current refresh id.
	Insert(ctx context.Context, accountID, refreshTokenID string) error
	// Validate reports whether refreshTokenID is the account's current id.
	Validate(ctx context.Context, accountID, refreshTokenID string) (bool, error)
	// Invalidate clears the account's refresh id. It is idempotent.
	Invalidate(ctx context.Context, accountID string) error
	// Rotate atomically replaces presentedID with nextID. A mismatch clears the
	// session and returns ErrReuseDetected.
	Rotate(ctx context.Context, accountID, presentedID, nextID string) error
}

const (
	rotateStatusNotFound int64 = 0
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
)

const rotateRefreshScript = `
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
if current ~= ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 2
end
local ttl = tonumber(ARGV[3])
if ttl and ttl > 0 then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
else
  redis.call("SET", KEYS[1], ARGV[2])
end
return 3
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// RedisStore keeps one key per account holding the current refresh id.
// Keys expire with the refresh-token lifetime.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a [RedisStore]. prefix namespaces keys; ttl is the
// refresh-token lifetime (zero keeps keys until invalidated).
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "rt"
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) key(accountID string) string {
	return s.prefix + ":" + accountID
}

// Insert sets the current refresh id for accountID.
//
//	Performance: 1 Redis SET.
func (s *RedisStore) Insert(ctx context.Context, accountID, refreshTokenID string) error {
	if err := s.redis.Set(ctx, s.key(accountID), refreshTokenID, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Validate compares refreshTokenID with the stored id.
//
//	Performance: 1 Redis GET.
func (s *RedisStore) Validate(ctx context.Context, accountID, refreshTokenID string) (bool, error) {
	current, err := s.redis.Get(ctx, s.key(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return current == refreshTokenID, nil
}

// Invalidate deletes the stored id.
func (s *RedisStore) Invalidate(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, s.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Rotate performs validate, invalidate and insert as one Lua script so that
// concurrent refreshes of the same id produce exactly one winner.
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-swap).
//	Security: a mismatch deletes the key, killing every outstanding token.
func (s *RedisStore) Rotate(ctx context.Context, accountID, presentedID, nextID string) error {
	code, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.key(accountID)},
		presentedID,
		nextID,
		s.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch code {
	case rotateStatusRotated:
		return nil
	case rotateStatusMismatch:
		return ErrReuseDetected
	case rotateStatusNotFound:
		return ErrSessionNotFound
	default:
		return fmt.Errorf("%w: unknown rotate script status %d", ErrRedisUnavailable, code)
	}
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
