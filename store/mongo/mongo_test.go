package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/MrEthical07/goIAM/account"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func TestBuildUpdateCarriesPreconditions(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	digest := "digest"
	expect := "reset-hash"

	filter, update := buildUpdate(7, account.Patch{
		PasswordHash:       &digest,
		ClearResetPassword: true,
		ExpectResetHash:    &expect,
	}, now)

	require.Equal(t, bson.D{
		{Key: "_id", Value: int64(7)},
		{Key: "reset_password_token", Value: expect},
	}, filter)
	require.Equal(t, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "password", Value: digest},
			{Key: "updated_at", Value: now},
		}},
		{Key: "$unset", Value: bson.D{
			{Key: "reset_password_token", Value: ""},
			{Key: "reset_password_expire", Value: ""},
		}},
	}, update)
}

func TestBuildUpdateConfirm(t *testing.T) {
	confirmed := true
	filter, update := buildUpdate(1, account.Patch{
		IsEmailConfirmed:      &confirmed,
		ClearConfirmEmailHash: true,
		ExpectUnconfirmed:     true,
	}, time.Unix(0, 0).UTC())

	require.Contains(t, filter, bson.E{Key: "is_email_confirmed", Value: false})
	require.Len(t, update, 2)
	require.Equal(t, "$unset", update[1].Key)
}

func TestDuplicateField(t *testing.T) {
	err := mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    duplicateKeyCode,
		Message: "E11000 duplicate key error collection: iam.users index: username_unique dup key",
	}}}
	field, ok := duplicateField(err)
	require.True(t, ok)
	require.Equal(t, "username", field)

	_, ok = duplicateField(mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 2}}})
	require.False(t, ok)
}

func TestDocConversion(t *testing.T) {
	secret := "v1:" + gofakeit.LetterN(16)
	a := &account.Account{
		Email:        "  Carol@Example.COM",
		Username:     gofakeit.Username(),
		PasswordHash: "digest",
		Role:         account.RoleAdmin,
		IsTfaEnabled: true,
		TfaSecret:    &secret,
	}
	doc := docFromAccount(a)
	doc.ID = 12

	back := doc.toAccount()
	require.Equal(t, "12", back.ID)
	require.Equal(t, "carol@example.com", back.Email)
	require.Equal(t, account.RoleAdmin, back.Role)
	require.Equal(t, secret, *back.TfaSecret)
	require.Nil(t, back.ConfirmEmailTokenHash)
}

// TestStoreAgainstServer runs only when GOIAM_MONGO_URI points at a server.
func TestStoreAgainstServer(t *testing.T) {
	uri := os.Getenv("GOIAM_MONGO_URI")
	if uri == "" {
		t.Skip("GOIAM_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := New(ctx, uri, "goiam_test_"+gofakeit.LetterN(8))
	require.NoError(t, err)
	defer func() {
		_ = s.users.Database().Drop(ctx)
		_ = s.Close(ctx)
	}()

	hash := gofakeit.UUID()
	acc := &account.Account{
		Email:                 gofakeit.Email(),
		Username:              gofakeit.Username(),
		PasswordHash:          "digest",
		Role:                  account.RoleUser,
		ConfirmEmailTokenHash: &hash,
	}
	require.NoError(t, s.Create(ctx, acc))

	dup := *acc
	dup.Username = gofakeit.Username() + "x"
	require.True(t, account.IsUniqueViolation(s.Create(ctx, &dup)))

	confirmed := true
	patch := account.Patch{IsEmailConfirmed: &confirmed, ClearConfirmEmailHash: true, ExpectUnconfirmed: true}
	require.NoError(t, s.Update(ctx, acc.ID, patch))
	require.ErrorIs(t, s.Update(ctx, acc.ID, patch), account.ErrPreconditionFailed)

	_, err = s.FindByConfirmTokenHash(ctx, hash)
	require.ErrorIs(t, err, account.ErrNotFound)

	got, err := s.FindByEmail(ctx, acc.Email)
	require.NoError(t, err)
	require.True(t, got.IsEmailConfirmed)
}
