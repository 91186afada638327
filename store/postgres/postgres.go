// Package postgres wires the SQL account store to PostgreSQL through the pgx
// database/sql driver. Schema changes ship as embedded goose migrations.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/MrEthical07/goIAM/account"
	"github.com/MrEthical07/goIAM/store/sqlstore"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

// Open connects with dsn and pings the server.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	const op = "store.postgres.Open"

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}
	return db, nil
}

// gooseUp is replaced in tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("store.postgres.Migrate: %w", err)
	}
	if err := gooseUp(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("store.postgres.Migrate: %w", err)
	}
	return nil
}

// Dialect returns the PostgreSQL flavor of the SQL store.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Bind:        sqlstore.DollarBind,
		UniqueField: uniqueField,
	}
}

// New returns an account store on db.
func New(db *sql.DB) *sqlstore.Store {
	return sqlstore.New(db, Dialect())
}

func uniqueField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return "", false
	}
	return account.UniqueFieldFromMessage(pgErr.ConstraintName), true
}
