// Command goiam-loadtest drives Engine.VerifyAccess and Engine.Refresh
// concurrently against real Redis or an embedded miniredis.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goIAM "github.com/MrEthical07/goIAM"
	"github.com/MrEthical07/goIAM/store/memory"
)

type accountState struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func main() {
	var (
		accounts    = flag.Int("accounts", 1000, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (verify + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	var client redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	inbox := newInbox()
	engine, err := buildEngine(client, inbox)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	states, err := seed(ctx, engine, inbox, *accounts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runVerifyPhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("refresh", refreshStats)
}

func buildEngine(client redis.UniversalClient, inbox *inbox) (*goIAM.Engine, error) {
	cfg := goIAM.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("goiam-loadtest-signing-key-0123456789")
	cfg.Password.Cost = 4
	cfg.Security.MaxLoginAttempts = 0

	return goIAM.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(memory.New()).
		WithMailer(goIAM.MailerFunc(inbox.receive)).
		Build()
}

// inbox keeps the newest confirmation token per recipient.
type inbox struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newInbox() *inbox {
	return &inbox{tokens: make(map[string]string)}
}

func (in *inbox) receive(_ context.Context, msg goIAM.MailMessage) error {
	idx := strings.Index(msg.Text, "http")
	if idx < 0 {
		return fmt.Errorf("no link in mail to %s", msg.To)
	}
	u, err := url.Parse(strings.TrimSpace(msg.Text[idx:]))
	if err != nil {
		return err
	}
	in.mu.Lock()
	in.tokens[msg.To] = u.Query().Get("token")
	in.mu.Unlock()
	return nil
}

func (in *inbox) token(to string) string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.tokens[to]
}

func seed(ctx context.Context, engine *goIAM.Engine, in *inbox, n int) ([]*accountState, error) {
	const pw = "loadtest-password"
	states := make([]*accountState, n)
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("user%d@loadtest.local", i)
		if err := engine.Register(ctx, goIAM.RegisterInput{
			Username: fmt.Sprintf("user%d", i),
			Email:    email,
			Password: pw,
		}, "http://localhost"); err != nil {
			return nil, fmt.Errorf("register %s: %w", email, err)
		}
		if err := engine.ConfirmEmail(ctx, in.token(email)); err != nil {
			return nil, fmt.Errorf("confirm %s: %w", email, err)
		}
		pair, err := engine.Login(ctx, goIAM.LoginInput{Email: email, Password: pw})
		if err != nil {
			return nil, fmt.Errorf("login %s: %w", email, err)
		}
		states[i] = &accountState{access: pair.AccessToken, refresh: pair.RefreshToken}
	}
	return states, nil
}

func runVerifyPhase(ctx context.Context, engine *goIAM.Engine, states []*accountState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 7919, func(r *rand.Rand, _ int) error {
		state := states[r.Intn(len(states))]
		state.mu.Lock()
		token := state.access
		state.mu.Unlock()
		_, err := engine.VerifyAccess(ctx, token)
		return err
	})
}

func runRefreshPhase(ctx context.Context, engine *goIAM.Engine, states []*accountState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 6151, func(r *rand.Rand, _ int) error {
		state := states[r.Intn(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()
		pair, err := engine.Refresh(ctx, state.refresh)
		if err != nil {
			return err
		}
		state.access, state.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})
}

// runPhase spreads ops calls of op over concurrency workers and records the
// latency of each.
func runPhase(ops, concurrency int, seedStep int64, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seedStep))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}
