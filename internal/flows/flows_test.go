package flows

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goIAM/account"
	"github.com/MrEthical07/goIAM/internal/onetime"
	"github.com/MrEthical07/goIAM/jwt"
	"github.com/MrEthical07/goIAM/password"
	"github.com/MrEthical07/goIAM/session"
	"github.com/MrEthical07/goIAM/store/memory"
	"github.com/MrEthical07/goIAM/totp"
	"github.com/google/uuid"
)

const testBaseURL = "https://id.example.com"

type mailbox struct {
	mu    sync.Mutex
	fail  error
	sent  map[string][]string
	bases []string
	calls int
}

func newMailbox() *mailbox { return &mailbox{sent: map[string][]string{}} }

func (m *mailbox) send(_ context.Context, to, baseURL, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.bases = append(m.bases, baseURL)
	if m.fail != nil {
		return m.fail
	}
	m.sent[to] = append(m.sent[to], token)
	return nil
}

func (m *mailbox) last(t *testing.T, to string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := m.sent[to]
	if len(tokens) == 0 {
		t.Fatalf("no mail sent to %s", to)
	}
	return tokens[len(tokens)-1]
}

type harness struct {
	deps     Deps
	accounts *memory.Store
	sessions *session.MemoryStore
	confirm  *mailbox
	reset    *mailbox
	totp     *totp.Manager
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	hasher, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	signer, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "goiam",
		Audience:      "goiam-clients",
	})
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	tm, err := totp.NewManager(totp.Config{Issuer: "goIAM", Skew: 1})
	if err != nil {
		t.Fatalf("totp: %v", err)
	}
	dummy, _ := hasher.Hash("dummy-password")

	h := &harness{
		accounts: memory.New(),
		sessions: session.NewMemoryStore(time.Hour),
		confirm:  newMailbox(),
		reset:    newMailbox(),
		totp:     tm,
		now:      time.Now(),
	}
	h.deps = Deps{
		Accounts:         h.accounts,
		Sessions:         h.sessions,
		Hasher:           hasher,
		Signer:           signer,
		TOTP:             tm,
		SendConfirmation: h.confirm.send,
		SendReset:        h.reset.send,
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       24 * time.Hour,
		NewRefreshID:     func() string { return uuid.NewString() },
		ResetTTL:         10 * time.Minute,
		DummyHash:        dummy,
		Now:              func() time.Time { return h.now },
	}
	return h
}

func (h *harness) register(t *testing.T, email, pw string) string {
	t.Helper()
	res := RunRegister(context.Background(), RegisterInput{
		Username: strings.Split(email, "@")[0],
		Email:    email,
		Password: pw,
		BaseURL:  testBaseURL,
	}, h.deps)
	if !res.OK() {
		t.Fatalf("register %s: %v (%v)", email, res.Failure, res.Err)
	}
	return res.AccountID
}

func TestRegisterConfirmLogin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.register(t, "alice@example.com", "secret1")

	acc, _ := h.accounts.FindByID(ctx, id)
	if acc.IsEmailConfirmed || acc.ConfirmEmailTokenHash == nil || acc.Role != account.RoleUser {
		t.Fatalf("unexpected account after register: %+v", acc)
	}

	token := h.confirm.last(t, "alice@example.com")
	if !strings.Contains(token, ".") {
		t.Fatalf("expected padded token, got %q", token)
	}
	if res := RunConfirmEmail(ctx, token, h.deps); !res.OK() {
		t.Fatalf("confirm: %v (%v)", res.Failure, res.Err)
	}
	if res := RunConfirmEmail(ctx, token, h.deps); res.Failure != FailureInvalidToken {
		t.Fatalf("expected second confirm to fail, got %v", res.Failure)
	}
	acc, _ = h.accounts.FindByID(ctx, id)
	if !acc.IsEmailConfirmed || acc.ConfirmEmailTokenHash != nil {
		t.Fatalf("expected confirmed account with cleared hash: %+v", acc)
	}

	res := RunLogin(ctx, LoginInput{Email: "Alice@Example.com", Password: "secret1"}, "", h.deps)
	if !res.OK() {
		t.Fatalf("login: %v (%v)", res.Failure, res.Err)
	}
	claims, vr := RunVerifyAccess(res.Pair.AccessToken, h.deps)
	if !vr.OK() || claims.Subject != id || claims.Email != "alice@example.com" || claims.Role != "USER" {
		t.Fatalf("unexpected access claims %+v (%v)", claims, vr.Err)
	}
	if _, vr := RunVerifyAccess(res.Pair.RefreshToken, h.deps); vr.OK() {
		t.Fatal("refresh token must not pass as access token")
	}
}

func TestConfirmationTokenIsAccountBound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "a@example.com", "secret1")
	idB := h.register(t, "b@example.com", "secret1")

	tokenA := h.confirm.last(t, "a@example.com")
	if res := RunConfirmEmail(ctx, tokenA, h.deps); !res.OK() {
		t.Fatalf("confirm A: %v", res.Failure)
	}
	b, _ := h.accounts.FindByID(ctx, idB)
	if b.IsEmailConfirmed {
		t.Fatal("confirming A must not confirm B")
	}

	for _, bad := range []string{"", ".", "deadbeef", "deadbeef.padding"} {
		if res := RunConfirmEmail(ctx, bad, h.deps); res.Failure != FailureInvalidToken {
			t.Fatalf("expected %q to be rejected, got %v", bad, res.Failure)
		}
	}
}

func TestConfirmTTL(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.deps.ConfirmTTL = time.Hour
	h.register(t, "a@example.com", "secret1")
	token := h.confirm.last(t, "a@example.com")

	h.now = h.now.Add(2 * time.Hour)
	if res := RunConfirmEmail(ctx, token, h.deps); res.Failure != FailureInvalidToken {
		t.Fatalf("expected expired confirmation, got %v", res.Failure)
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	if res := RunRegister(ctx, RegisterInput{Username: "x", Email: "x@example.com", Password: "secret1", Role: "ADMIN"}, h.deps); res.Failure != FailureForbidden {
		t.Fatalf("expected admin self-assignment to be forbidden, got %v", res.Failure)
	}
	if res := RunRegister(ctx, RegisterInput{Username: "x", Email: "x@example.com", Password: "secret1", Role: "ROOT"}, h.deps); res.Failure != FailureInvalidInput {
		t.Fatalf("expected unknown role rejected, got %v", res.Failure)
	}
	if res := RunRegister(ctx, RegisterInput{Email: "x@example.com", Password: "secret1"}, h.deps); res.Failure != FailureInvalidInput {
		t.Fatalf("expected missing username rejected, got %v", res.Failure)
	}
	if h.accounts.Len() != 0 {
		t.Fatal("rejected registrations must not create rows")
	}

	h.register(t, "x@example.com", "secret1")
	res := RunRegister(ctx, RegisterInput{Username: "other", Email: "X@example.com", Password: "secret1"}, h.deps)
	if res.Failure != FailureConflict {
		t.Fatalf("expected conflict, got %v", res.Failure)
	}
}

func TestRegisterDeliveryFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.confirm.fail = errors.New("smtp down")

	res := RunRegister(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "secret1", Role: "USER"}, h.deps)
	if res.Failure != FailureDelivery || res.RollbackErr != nil {
		t.Fatalf("expected delivery failure with clean rollback, got %v rollback=%v", res.Failure, res.RollbackErr)
	}
	acc, err := h.accounts.FindByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("account row should remain: %v", err)
	}
	if acc.ConfirmEmailTokenHash != nil || acc.IsEmailConfirmed {
		t.Fatalf("expected rolled back confirmation fields, got %+v", acc)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice@example.com", "secret1")

	wrong := RunLogin(ctx, LoginInput{Email: "alice@example.com", Password: "nope123"}, "", h.deps)
	unknown := RunLogin(ctx, LoginInput{Email: "ghost@example.com", Password: "secret1"}, "", h.deps)
	if wrong.Failure != FailureInvalidCredentials || unknown.Failure != FailureInvalidCredentials {
		t.Fatalf("expected identical failures, got %v and %v", wrong.Failure, unknown.Failure)
	}
}

func TestLoginRequiresConfirmationWhenConfigured(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.deps.RequireConfirmedToLogin = true
	h.register(t, "alice@example.com", "secret1")

	if res := RunLogin(ctx, LoginInput{Email: "alice@example.com", Password: "secret1"}, "", h.deps); res.Failure != FailureInvalidCredentials {
		t.Fatalf("expected unconfirmed login to fail, got %v", res.Failure)
	}
}

func TestLoginWithTOTP(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.register(t, "alice@example.com", "secret1")

	gen := RunGenerateTOTP(ctx, id, h.deps)
	if !gen.OK() || gen.Provision.Secret == "" || !strings.HasPrefix(gen.Provision.URI, "otpauth://totp/") {
		t.Fatalf("generate totp: %+v", gen)
	}

	if res := RunLogin(ctx, LoginInput{Email: "alice@example.com", Password: "secret1"}, "", h.deps); res.Failure != FailureTOTPRequired {
		t.Fatalf("expected totp required, got %v", res.Failure)
	}
	if res := RunLogin(ctx, LoginInput{Email: "alice@example.com", Password: "secret1", TfaCode: "000000"}, "", h.deps); res.Failure != FailureTOTPInvalid {
		t.Fatalf("expected wrong code to fail, got %v", res.Failure)
	}

	code, err := h.totp.Code(gen.Provision.Secret, time.Now())
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	res := RunLogin(ctx, LoginInput{Email: "alice@example.com", Password: "secret1", TfaCode: code}, "", h.deps)
	if !res.OK() {
		t.Fatalf("login with code: %v (%v)", res.Failure, res.Err)
	}
}

func TestTOTPSecretIsSealed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sealer, err := totp.NewSealer([]byte("abcdefghijklmnopqrstuvwxyz012345"))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	h.deps.Sealer = sealer
	id := h.register(t, "alice@example.com", "secret1")

	gen := RunGenerateTOTP(ctx, id, h.deps)
	acc, _ := h.accounts.FindByID(ctx, id)
	if acc.TfaSecret == nil || !totp.IsSealed(*acc.TfaSecret) || !acc.IsTfaEnabled {
		t.Fatalf("expected sealed enabled secret, got %+v", acc)
	}

	code, _ := h.totp.Code(gen.Provision.Secret, time.Now())
	if res := RunLogin(ctx, LoginInput{Email: "alice@example.com", Password: "secret1", TfaCode: code}, "", h.deps); !res.OK() {
		t.Fatalf("login with sealed secret: %v (%v)", res.Failure, res.Err)
	}
}

func TestRefreshRotationAndReuse(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice@example.com", "secret1")
	login := RunLogin(ctx, LoginInput{Email: "alice@example.com", Password: "secret1"}, "", h.deps)

	rt1 := login.Pair.RefreshToken
	r2 := RunRefresh(ctx, rt1, h.deps)
	if !r2.OK() {
		t.Fatalf("refresh: %v (%v)", r2.Failure, r2.Err)
	}

	replay := RunRefresh(ctx, rt1, h.deps)
	if replay.Failure != FailureReuse {
		t.Fatalf("expected reuse, got %v", replay.Failure)
	}
	if res := RunRefresh(ctx, r2.Pair.RefreshToken, h.deps); res.OK() {
		t.Fatal("expected the whole family to be dead after reuse")
	}
}

func TestRefreshChainWithoutReplay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice@example.com", "secret1")
	pair := RunLogin(ctx, LoginInput{Email: "alice@example.com", Password: "secret1"}, "", h.deps).Pair

	for i := 0; i < 3; i++ {
		res := RunRefresh(ctx, pair.RefreshToken, h.deps)
		if !res.OK() {
			t.Fatalf("refresh %d: %v", i, res.Failure)
		}
		pair = res.Pair
	}

	if res := RunRefresh(ctx, pair.AccessToken, h.deps); res.Failure != FailureInvalidToken {
		t.Fatalf("access token must not refresh, got %v", res.Failure)
	}
	if res := RunRefresh(ctx, "garbage", h.deps); res.Failure != FailureInvalidToken {
		t.Fatalf("expected invalid token, got %v", res.Failure)
	}
}

func TestRefreshAfterLogoutAndMissingAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.register(t, "alice@example.com", "secret1")
	pair := RunLogin(ctx, LoginInput{Email: "alice@example.com", Password: "secret1"}, "", h.deps).Pair

	if res := RunLogout(ctx, id, h.deps); !res.OK() {
		t.Fatalf("logout: %v", res.Failure)
	}
	if res := RunRefresh(ctx, pair.RefreshToken, h.deps); res.Failure != FailureReuse || res.Account == nil {
		t.Fatalf("expected refresh after logout to be reuse, got %v", res.Failure)
	}

	orphan, _ := h.deps.Signer.Sign("999", map[string]any{jwt.ClaimRefreshTokenID: "x"}, time.Hour)
	if res := RunRefresh(ctx, orphan, h.deps); res.Failure != FailureNotFound {
		t.Fatalf("expected not found, got %v", res.Failure)
	}
}

func TestRefreshAfterPasswordChangeIsReuse(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.register(t, "alice@example.com", "secret1")
	stolen := RunLogin(ctx, LoginInput{Email: "alice@example.com", Password: "secret1"}, "", h.deps).Pair.RefreshToken

	if res := RunUpdatePassword(ctx, id, "secret1", "newsecret", h.deps); !res.OK() {
		t.Fatalf("update password: %v", res.Failure)
	}
	res := RunRefresh(ctx, stolen, h.deps)
	if res.Failure != FailureReuse {
		t.Fatalf("expected stale refresh after password change to be reuse, got %v", res.Failure)
	}
	if res.AccountID != id || res.Account == nil || res.Account.Email != "alice@example.com" {
		t.Fatalf("reuse result must carry the account, got %+v", res)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice@example.com", "secret1")
	rt := RunLogin(ctx, LoginInput{Email: "alice@example.com", Password: "secret1"}, "", h.deps).Pair.RefreshToken

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)
	results := make(chan Result, workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			results <- RunRefresh(ctx, rt, h.deps)
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	for res := range results {
		if res.OK() {
			success++
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one winner, got %d", success)
	}
}

func TestMailedLinksUseCallerBaseURL(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice@example.com", "secret1")
	RunForgotPassword(ctx, "alice@example.com", "http://other.example", h.deps)

	if len(h.confirm.bases) != 1 || h.confirm.bases[0] != testBaseURL {
		t.Fatalf("confirmation base urls %v", h.confirm.bases)
	}
	if len(h.reset.bases) != 1 || h.reset.bases[0] != "http://other.example" {
		t.Fatalf("reset base urls %v", h.reset.bases)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.register(t, "alice@example.com", "secret1")
	pair := RunLogin(ctx, LoginInput{Email: "alice@example.com", Password: "secret1"}, "", h.deps).Pair

	res := RunForgotPassword(ctx, "alice@example.com", testBaseURL, h.deps)
	if !res.OK() || !res.Sent {
		t.Fatalf("forgot: %+v", res)
	}
	raw := h.reset.last(t, "alice@example.com")
	acc, _ := h.accounts.FindByID(ctx, id)
	if acc.ResetPasswordTokenHash == nil || *acc.ResetPasswordTokenHash != onetime.Hash(raw) {
		t.Fatal("expected stored reset hash")
	}
	if acc.ResetPasswordExpiresAt == nil || !acc.ResetPasswordExpiresAt.Equal(h.now.Add(10*time.Minute)) {
		t.Fatalf("unexpected expiry %v", acc.ResetPasswordExpiresAt)
	}

	if res := RunResetPassword(ctx, raw, "newsecret", h.deps); !res.OK() {
		t.Fatalf("reset: %v (%v)", res.Failure, res.Err)
	}
	acc, _ = h.accounts.FindByID(ctx, id)
	if acc.ResetPasswordTokenHash != nil || acc.ResetPasswordExpiresAt != nil {
		t.Fatal("expected reset fields cleared")
	}
	if res := RunResetPassword(ctx, raw, "another1", h.deps); res.Failure != FailureInvalidToken {
		t.Fatalf("expected reused reset token to fail, got %v", res.Failure)
	}
	if res := RunRefresh(ctx, pair.RefreshToken, h.deps); res.OK() {
		t.Fatal("expected reset to kill the refresh session")
	}
	if res := RunLogin(ctx, LoginInput{Email: "alice@example.com", Password: "newsecret"}, "", h.deps); !res.OK() {
		t.Fatalf("login with new password: %v", res.Failure)
	}
}

func TestResetTokenExpiry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "alice@example.com", "secret1")
	RunForgotPassword(ctx, "alice@example.com", testBaseURL, h.deps)
	raw := h.reset.last(t, "alice@example.com")

	h.now = h.now.Add(11 * time.Minute)
	if res := RunResetPassword(ctx, raw, "newsecret", h.deps); res.Failure != FailureInvalidToken {
		t.Fatalf("expected expired token to fail, got %v", res.Failure)
	}
}

func TestForgotUnknownEmailAndDeliveryFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	res := RunForgotPassword(ctx, "ghost@example.com", testBaseURL, h.deps)
	if !res.OK() || res.Sent || h.reset.calls != 0 {
		t.Fatalf("expected silent success for unknown email, got %+v calls=%d", res, h.reset.calls)
	}

	id := h.register(t, "alice@example.com", "secret1")
	h.reset.fail = errors.New("smtp down")
	res = RunForgotPassword(ctx, "alice@example.com", testBaseURL, h.deps)
	if res.Failure != FailureDelivery {
		t.Fatalf("expected delivery failure, got %v", res.Failure)
	}
	acc, _ := h.accounts.FindByID(ctx, id)
	if acc.ResetPasswordTokenHash != nil || acc.ResetPasswordExpiresAt != nil {
		t.Fatal("expected reset fields rolled back")
	}
}

func TestUpdatePasswordDetailsAndGetMe(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.register(t, "alice@example.com", "secret1")
	pair := RunLogin(ctx, LoginInput{Email: "alice@example.com", Password: "secret1"}, "", h.deps).Pair

	if res := RunUpdatePassword(ctx, id, "wrong", "newsecret", h.deps); res.Failure != FailureInvalidCredentials {
		t.Fatalf("expected wrong current password to fail, got %v", res.Failure)
	}
	if res := RunUpdatePassword(ctx, id, "secret1", "newsecret", h.deps); !res.OK() {
		t.Fatalf("update password: %v", res.Failure)
	}
	if res := RunRefresh(ctx, pair.RefreshToken, h.deps); res.OK() {
		t.Fatal("expected password change to kill the refresh session")
	}

	if res := RunUpdateDetails(ctx, id, UpdateDetailsInput{Username: "alice2"}, h.deps); !res.OK() {
		t.Fatalf("update details: %v", res.Failure)
	}
	me := RunGetMe(ctx, id, h.deps)
	if !me.OK() || me.Account.Username != "alice2" {
		t.Fatalf("get me: %+v", me)
	}

	if res := RunGetMe(ctx, "404", h.deps); res.Failure != FailureNotFound {
		t.Fatalf("expected vanished account, got %v", res.Failure)
	}
	if res := RunUpdateDetails(ctx, "404", UpdateDetailsInput{Username: "x"}, h.deps); res.Failure != FailureNotFound {
		t.Fatalf("expected vanished account, got %v", res.Failure)
	}
}

func TestLoginRehashesWeakDigest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.register(t, "alice@example.com", "secret1")

	stronger, _ := password.NewBcrypt(5)
	h.deps.Hasher = stronger
	h.deps.RehashOnLogin = true

	res := RunLogin(ctx, LoginInput{Email: "alice@example.com", Password: "secret1"}, "", h.deps)
	if !res.OK() || !res.Rehashed {
		t.Fatalf("expected rehash, got %+v", res)
	}
	acc, _ := h.accounts.FindByID(ctx, id)
	if stronger.NeedsRehash(acc.PasswordHash) {
		t.Fatal("expected stored digest at the new cost")
	}
}

func TestFailureKindString(t *testing.T) {
	if FailureReuse.String() != "reuse_detected" || FailureKind(99).String() != "unknown" {
		t.Fatal("unexpected failure names")
	}
}
