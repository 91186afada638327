package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goIAM/account"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) account.Store {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(context.Background(), db))
	return New(db)
}

func fakeAccount() *account.Account {
	hash := gofakeit.UUID()
	return &account.Account{
		Email:                 gofakeit.Email(),
		Username:              gofakeit.Username(),
		PasswordHash:          gofakeit.Password(true, true, true, false, false, 20),
		Role:                  account.RoleUser,
		ConfirmEmailTokenHash: &hash,
	}
}

func TestCreateFindAndUnique(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	acc := fakeAccount()
	require.NoError(t, s.Create(ctx, acc))
	require.NotEmpty(t, acc.ID)

	got, err := s.FindByEmail(ctx, acc.Email)
	require.NoError(t, err)
	require.Equal(t, acc.ID, got.ID)
	require.Equal(t, acc.Username, got.Username)
	require.False(t, got.IsEmailConfirmed)
	require.NotNil(t, got.ConfirmEmailTokenHash)

	byHash, err := s.FindByConfirmTokenHash(ctx, *acc.ConfirmEmailTokenHash)
	require.NoError(t, err)
	require.Equal(t, acc.ID, byHash.ID)

	dupEmail := fakeAccount()
	dupEmail.Email = acc.Email
	err = s.Create(ctx, dupEmail)
	var uv *account.UniqueViolationError
	require.ErrorAs(t, err, &uv)
	require.Equal(t, "email", uv.Field)

	dupName := fakeAccount()
	dupName.Username = acc.Username
	err = s.Create(ctx, dupName)
	require.ErrorAs(t, err, &uv)
	require.Equal(t, "username", uv.Field)

	_, err = s.FindByID(ctx, "424242")
	require.ErrorIs(t, err, account.ErrNotFound)
}

func TestConfirmAndResetLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	acc := fakeAccount()
	require.NoError(t, s.Create(ctx, acc))

	confirmed := true
	confirm := account.Patch{IsEmailConfirmed: &confirmed, ClearConfirmEmailHash: true, ExpectUnconfirmed: true}
	require.NoError(t, s.Update(ctx, acc.ID, confirm))
	require.ErrorIs(t, s.Update(ctx, acc.ID, confirm), account.ErrPreconditionFailed)

	_, err := s.FindByConfirmTokenHash(ctx, *acc.ConfirmEmailTokenHash)
	require.ErrorIs(t, err, account.ErrNotFound)

	now := time.Now()
	resetHash := gofakeit.UUID()
	expires := now.Add(10 * time.Minute)
	require.NoError(t, s.Update(ctx, acc.ID, account.Patch{
		ResetPasswordTokenHash: &resetHash,
		ResetPasswordExpiresAt: &expires,
	}))

	got, err := s.FindByResetTokenHash(ctx, resetHash, now)
	require.NoError(t, err)
	require.Equal(t, acc.ID, got.ID)

	_, err = s.FindByResetTokenHash(ctx, resetHash, now.Add(11*time.Minute))
	require.ErrorIs(t, err, account.ErrNotFound)

	digest := "new-digest"
	wrong := "other-hash"
	require.ErrorIs(t, s.Update(ctx, acc.ID, account.Patch{PasswordHash: &digest, ClearResetPassword: true, ExpectResetHash: &wrong}),
		account.ErrPreconditionFailed)
	require.NoError(t, s.Update(ctx, acc.ID, account.Patch{PasswordHash: &digest, ClearResetPassword: true, ExpectResetHash: &resetHash}))

	got, err = s.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	require.Equal(t, digest, got.PasswordHash)
	require.Nil(t, got.ResetPasswordTokenHash)
	require.Nil(t, got.ResetPasswordExpiresAt)
	require.True(t, got.IsEmailConfirmed)

	require.ErrorIs(t, s.Update(ctx, "999", account.Patch{PasswordHash: &digest}), account.ErrNotFound)
}

func TestUpdateUsernameAndTOTP(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first, second := fakeAccount(), fakeAccount()
	require.NoError(t, s.Create(ctx, first))
	require.NoError(t, s.Create(ctx, second))

	taken := second.Username
	require.True(t, account.IsUniqueViolation(s.Update(ctx, first.ID, account.Patch{Username: &taken})))

	enabled := true
	secret := "v1:" + gofakeit.LetterN(24)
	require.NoError(t, s.Update(ctx, first.ID, account.Patch{IsTfaEnabled: &enabled, TfaSecret: &secret}))

	got, err := s.FindByID(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, got.IsTfaEnabled)
	require.Equal(t, secret, *got.TfaSecret)
}
