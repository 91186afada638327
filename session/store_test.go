package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "rt", ttl), mr
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	rs, _ := newRedisStore(t, time.Hour)
	return map[string]Store{
		"redis":  rs,
		"memory": NewMemoryStore(time.Hour),
	}
}

func TestInsertValidateInvalidate(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if ok, err := s.Validate(ctx, "1", "a"); err != nil || ok {
				t.Fatalf("expected empty store to reject, ok=%v err=%v", ok, err)
			}
			if err := s.Insert(ctx, "1", "a"); err != nil {
				t.Fatalf("insert: %v", err)
			}
			if ok, _ := s.Validate(ctx, "1", "a"); !ok {
				t.Fatal("expected current id to validate")
			}
			if ok, _ := s.Validate(ctx, "1", "b"); ok {
				t.Fatal("expected other id to be rejected")
			}
			if ok, _ := s.Validate(ctx, "2", "a"); ok {
				t.Fatal("expected id to be scoped to its account")
			}

			if err := s.Insert(ctx, "1", "b"); err != nil {
				t.Fatalf("re-insert: %v", err)
			}
			if ok, _ := s.Validate(ctx, "1", "a"); ok {
				t.Fatal("expected replaced id to be rejected")
			}

			if err := s.Invalidate(ctx, "1"); err != nil {
				t.Fatalf("invalidate: %v", err)
			}
			if err := s.Invalidate(ctx, "1"); err != nil {
				t.Fatalf("invalidate must be idempotent: %v", err)
			}
			if ok, _ := s.Validate(ctx, "1", "b"); ok {
				t.Fatal("expected invalidated id to be rejected")
			}
		})
	}
}

func TestRotate(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Rotate(ctx, "1", "a", "b"); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound, got %v", err)
			}

			_ = s.Insert(ctx, "1", "a")
			if err := s.Rotate(ctx, "1", "a", "b"); err != nil {
				t.Fatalf("rotate: %v", err)
			}
			if ok, _ := s.Validate(ctx, "1", "b"); !ok {
				t.Fatal("expected rotated id to validate")
			}

			if err := s.Rotate(ctx, "1", "a", "c"); !errors.Is(err, ErrReuseDetected) {
				t.Fatalf("expected ErrReuseDetected on replay, got %v", err)
			}
			if ok, _ := s.Validate(ctx, "1", "b"); ok {
				t.Fatal("expected reuse to kill the current id")
			}
		})
	}
}

func TestRedisKeyLayoutAndTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Minute)

	if err := s.Insert(ctx, "42", "rid"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := mr.Get("rt:42")
	if err != nil || got != "rid" {
		t.Fatalf("expected key rt:42=rid, got %q err=%v", got, err)
	}
	if ttl := mr.TTL("rt:42"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected ttl <= 1m, got %v", ttl)
	}

	if err := s.Rotate(ctx, "42", "rid", "rid2"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if ttl := mr.TTL("rt:42"); ttl <= 0 {
		t.Fatalf("expected rotate to keep ttl, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if ok, _ := s.Validate(ctx, "42", "rid2"); ok {
		t.Fatal("expected expired id to be rejected")
	}
}

func TestRedisUnavailable(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Minute)
	mr.Close()

	if err := s.Insert(ctx, "1", "a"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from insert, got %v", err)
	}
	if _, err := s.Validate(ctx, "1", "a"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from validate, got %v", err)
	}
	if err := s.Rotate(ctx, "1", "a", "b"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from rotate, got %v", err)
	}
	if _, err := s.Ping(ctx); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from ping, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	_ = s.Insert(ctx, "1", "a")
	now = now.Add(59 * time.Second)
	if ok, _ := s.Validate(ctx, "1", "a"); !ok {
		t.Fatal("expected id before expiry to validate")
	}
	now = now.Add(time.Second)
	if ok, _ := s.Validate(ctx, "1", "a"); ok {
		t.Fatal("expected id at expiry to be rejected")
	}
	if err := s.Rotate(ctx, "1", "a", "b"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired rotate to report not found, got %v", err)
	}
}

func TestRotateRaceSingleWinner(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Insert(ctx, "1", "current"); err != nil {
				t.Fatalf("insert: %v", err)
			}

			const workers = 16
			start := make(chan struct{})
			var wg sync.WaitGroup
			wg.Add(workers)

			results := make(chan error, workers)
			for i := 0; i < workers; i++ {
				go func(next string) {
					defer wg.Done()
					<-start
					results <- s.Rotate(ctx, "1", "current", next)
				}(fmt.Sprintf("next-%d", i))
			}

			close(start)
			wg.Wait()
			close(results)

			success := 0
			for err := range results {
				switch {
				case err == nil:
					success++
				case errors.Is(err, ErrReuseDetected), errors.Is(err, ErrSessionNotFound):
				default:
					t.Fatalf("unexpected rotate error: %v", err)
				}
			}
			if success != 1 {
				t.Fatalf("expected exactly one winner, got %d", success)
			}
		})
	}
}
