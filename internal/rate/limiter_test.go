package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "test", cfg), mr
}

func TestLoginThrottlePerEmail(t *testing.T) {
	ctx := context.Background()
	l, mr := newLimiter(t, Config{MaxLoginAttempts: 3, LoginCooldownDuration: time.Minute})

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "a@example.com", ""); err != nil {
			t.Fatalf("attempt %d unexpectedly limited: %v", i, err)
		}
		if err := l.IncrementLogin(ctx, "a@example.com", ""); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if err := l.CheckLogin(ctx, "A@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "b@example.com", ""); err != nil {
		t.Fatalf("other email must not be limited: %v", err)
	}
	if n, _ := l.LoginAttempts(ctx, "a@example.com"); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}

	mr.FastForward(2 * time.Minute)
	if err := l.CheckLogin(ctx, "a@example.com", ""); err != nil {
		t.Fatalf("expected window to expire: %v", err)
	}
}

func TestLoginThrottlePerIP(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter(t, Config{EnableIPThrottle: true, MaxLoginAttempts: 2, LoginCooldownDuration: time.Minute})

	_ = l.IncrementLogin(ctx, "a@example.com", "203.0.113.1")
	_ = l.IncrementLogin(ctx, "b@example.com", "203.0.113.1")

	if err := l.CheckLogin(ctx, "c@example.com", "203.0.113.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP to be limited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "c@example.com", "198.51.100.9"); err != nil {
		t.Fatalf("other IP must pass: %v", err)
	}
}

func TestResetLogin(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter(t, Config{MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute})

	_ = l.IncrementLogin(ctx, "a@example.com", "")
	if err := l.CheckLogin(ctx, "a@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limit, got %v", err)
	}
	if err := l.ResetLogin(ctx, "a@example.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.CheckLogin(ctx, "a@example.com", ""); err != nil {
		t.Fatalf("expected reset to clear the counter: %v", err)
	}
}

func TestAllowForgot(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter(t, Config{MaxForgotRequests: 2, ForgotCooldown: time.Hour})

	for i := 0; i < 2; i++ {
		if err := l.AllowForgot(ctx, "a@example.com"); err != nil {
			t.Fatalf("request %d limited: %v", i, err)
		}
	}
	if err := l.AllowForgot(ctx, "a@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestNilAndDisabledLimiter(t *testing.T) {
	ctx := context.Background()
	var l *Limiter
	if err := l.CheckLogin(ctx, "a", "ip"); err != nil {
		t.Fatalf("nil limiter must allow: %v", err)
	}
	if err := l.IncrementLogin(ctx, "a", "ip"); err != nil {
		t.Fatalf("nil limiter must allow: %v", err)
	}
	if err := l.AllowForgot(ctx, "a"); err != nil {
		t.Fatalf("nil limiter must allow: %v", err)
	}

	disabled, _ := newLimiter(t, Config{})
	for i := 0; i < 5; i++ {
		_ = disabled.IncrementLogin(ctx, "a", "")
	}
	if err := disabled.CheckLogin(ctx, "a", ""); err != nil {
		t.Fatalf("zero budget disables throttling: %v", err)
	}
}

func TestRedisDown(t *testing.T) {
	ctx := context.Background()
	l, mr := newLimiter(t, Config{MaxLoginAttempts: 3, LoginCooldownDuration: time.Minute})
	mr.Close()
	if err := l.CheckLogin(ctx, "a", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
