// Package mongo is an account.Store on MongoDB using the v2 driver. Account
// ids come from a counters collection so they stay numeric strings like the
// SQL stores.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goIAM/account"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const duplicateKeyCode = 11000

// Store keeps accounts in the users collection.
type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	counters *mongo.Collection
	now      func() time.Time
}

var _ account.Store = (*Store)(nil)

type userDoc struct {
	ID                  int64      `bson:"_id"`
	Email               string     `bson:"email"`
	Username            string     `bson:"username"`
	Password            string     `bson:"password"`
	Role                string     `bson:"role"`
	IsEmailConfirmed    bool       `bson:"is_email_confirmed"`
	ConfirmEmailToken   *string    `bson:"confirm_email_token,omitempty"`
	ResetPasswordToken  *string    `bson:"reset_password_token,omitempty"`
	ResetPasswordExpire *time.Time `bson:"reset_password_expire,omitempty"`
	IsTfaEnabled        bool       `bson:"is_tfa_enabled"`
	TfaSecret           *string    `bson:"tfa_secret,omitempty"`
	CreatedAt           time.Time  `bson:"created_at"`
	UpdatedAt           time.Time  `bson:"updated_at"`
}

type counterDoc struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

// New connects to uri, pings the server and ensures indexes.
func New(ctx context.Context, uri, database string) (*Store, error) {
	const op = "store.mongo.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	s := &Store{
		client:   client,
		users:    db.Collection("users"),
		counters: db.Collection("counters"),
		now:      time.Now,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
		{
			Keys: bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("username_unique").
				SetCollation(&options.Collation{Locale: "en", Strength: 2}),
		},
		{
			Keys:    bson.D{{Key: "confirm_email_token", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "reset_password_token", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	})
	return err
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) nextID(ctx context.Context) (int64, error) {
	filter := bson.D{{Key: "_id", Value: "users"}}
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "value", Value: int64(1)}}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter counterDoc
	if err := s.counters.FindOneAndUpdate(ctx, filter, update, opts).Decode(&counter); err != nil {
		return 0, err
	}
	return counter.Value, nil
}

func (s *Store) findOne(ctx context.Context, op string, filter bson.D) (*account.Account, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doc.toAccount(), nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, account.ErrNotFound
	}
	return s.findOne(ctx, "store.mongo.FindByID", bson.D{{Key: "_id", Value: n}})
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	return s.findOne(ctx, "store.mongo.FindByEmail", bson.D{{Key: "email", Value: account.NormalizeEmail(email)}})
}

func (s *Store) FindByConfirmTokenHash(ctx context.Context, hash string) (*account.Account, error) {
	return s.findOne(ctx, "store.mongo.FindByConfirmTokenHash", bson.D{{Key: "confirm_email_token", Value: hash}})
}

func (s *Store) FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*account.Account, error) {
	return s.findOne(ctx, "store.mongo.FindByResetTokenHash", bson.D{
		{Key: "reset_password_token", Value: hash},
		{Key: "reset_password_expire", Value: bson.D{{Key: "$gt", Value: now.UTC()}}},
	})
}

func (s *Store) Create(ctx context.Context, a *account.Account) error {
	const op = "store.mongo.Create"

	id, err := s.nextID(ctx)
	if err != nil {
		return fmt.Errorf("%s: nextID: %w", op, err)
	}

	now := s.now().UTC()
	doc := docFromAccount(a)
	doc.ID = id
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if field, ok := duplicateField(err); ok {
			return fmt.Errorf("%s: %w", op, &account.UniqueViolationError{Field: field})
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	a.ID = strconv.FormatInt(id, 10)
	a.Email = doc.Email
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

func (s *Store) Update(ctx context.Context, id string, patch account.Patch) error {
	const op = "store.mongo.Update"

	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return account.ErrNotFound
	}
	if patch.Empty() {
		current, err := s.FindByID(ctx, id)
		if err != nil {
			return err
		}
		return patch.Check(current)
	}

	filter, update := buildUpdate(n, patch, s.now().UTC())
	res, err := s.users.UpdateOne(ctx, filter, update)
	if err != nil {
		if field, ok := duplicateField(err); ok {
			return fmt.Errorf("%s: %w", op, &account.UniqueViolationError{Field: field})
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if _, err := s.FindByID(ctx, id); err != nil {
		return err
	}
	return account.ErrPreconditionFailed
}

// buildUpdate translates a patch into a filter carrying its preconditions
// and a $set/$unset document.
func buildUpdate(id int64, p account.Patch, now time.Time) (bson.D, bson.D) {
	filter := bson.D{{Key: "_id", Value: id}}
	if p.ExpectUnconfirmed {
		filter = append(filter, bson.E{Key: "is_email_confirmed", Value: false})
	}
	if p.ExpectResetHash != nil {
		filter = append(filter, bson.E{Key: "reset_password_token", Value: *p.ExpectResetHash})
	}

	set := bson.D{}
	unset := bson.D{}
	if p.Username != nil {
		set = append(set, bson.E{Key: "username", Value: *p.Username})
	}
	if p.PasswordHash != nil {
		set = append(set, bson.E{Key: "password", Value: *p.PasswordHash})
	}
	if p.IsEmailConfirmed != nil {
		set = append(set, bson.E{Key: "is_email_confirmed", Value: *p.IsEmailConfirmed})
	}
	if p.ClearConfirmEmailHash {
		unset = append(unset, bson.E{Key: "confirm_email_token", Value: ""})
	} else if p.ConfirmEmailTokenHash != nil {
		set = append(set, bson.E{Key: "confirm_email_token", Value: *p.ConfirmEmailTokenHash})
	}
	if p.ClearResetPassword {
		unset = append(unset,
			bson.E{Key: "reset_password_token", Value: ""},
			bson.E{Key: "reset_password_expire", Value: ""},
		)
	} else {
		if p.ResetPasswordTokenHash != nil {
			set = append(set, bson.E{Key: "reset_password_token", Value: *p.ResetPasswordTokenHash})
		}
		if p.ResetPasswordExpiresAt != nil {
			set = append(set, bson.E{Key: "reset_password_expire", Value: p.ResetPasswordExpiresAt.UTC()})
		}
	}
	if p.IsTfaEnabled != nil {
		set = append(set, bson.E{Key: "is_tfa_enabled", Value: *p.IsTfaEnabled})
	}
	if p.TfaSecret != nil {
		set = append(set, bson.E{Key: "tfa_secret", Value: *p.TfaSecret})
	}
	set = append(set, bson.E{Key: "updated_at", Value: now})

	update := bson.D{{Key: "$set", Value: set}}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	return filter, update
}

func docFromAccount(a *account.Account) userDoc {
	return userDoc{
		Email:               account.NormalizeEmail(a.Email),
		Username:            a.Username,
		Password:            a.PasswordHash,
		Role:                string(a.Role),
		IsEmailConfirmed:    a.IsEmailConfirmed,
		ConfirmEmailToken:   a.ConfirmEmailTokenHash,
		ResetPasswordToken:  a.ResetPasswordTokenHash,
		ResetPasswordExpire: a.ResetPasswordExpiresAt,
		IsTfaEnabled:        a.IsTfaEnabled,
		TfaSecret:           a.TfaSecret,
	}
}

func (d userDoc) toAccount() *account.Account {
	return &account.Account{
		ID:                     strconv.FormatInt(d.ID, 10),
		Email:                  d.Email,
		Username:               d.Username,
		PasswordHash:           d.Password,
		Role:                   account.Role(d.Role),
		IsEmailConfirmed:       d.IsEmailConfirmed,
		ConfirmEmailTokenHash:  d.ConfirmEmailToken,
		ResetPasswordTokenHash: d.ResetPasswordToken,
		ResetPasswordExpiresAt: d.ResetPasswordExpire,
		IsTfaEnabled:           d.IsTfaEnabled,
		TfaSecret:              d.TfaSecret,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
	}
}

// duplicateField reports the field behind a duplicate key error (code 11000).
func duplicateField(err error) (string, bool) {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return "", false
	}
	for _, e := range we.WriteErrors {
		if e.Code == duplicateKeyCode {
			return account.UniqueFieldFromMessage(e.Message), true
		}
	}
	return "", false
}
