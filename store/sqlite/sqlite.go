// Package sqlite wires the SQL account store to SQLite through
// github.com/mattn/go-sqlite3. It suits single-node deployments and local
// development.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/goIAM/account"
	"github.com/MrEthical07/goIAM/store/sqlstore"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open opens the database at path. An in-memory database is pinned to one
// connection so every query sees the same data.
func Open(path string) (*sql.DB, error) {
	const op = "store.sqlite.Open"

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return db, nil
}

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	const op = "store.sqlite.Migrate"

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Dialect returns the SQLite flavor of the SQL store.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Bind:        sqlstore.QuestionBind,
		UniqueField: uniqueField,
	}
}

// New returns an account store on db.
func New(db *sql.DB) *sqlstore.Store {
	return sqlstore.New(db, Dialect())
}

func uniqueField(err error) (string, bool) {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return "", false
	}
	// The message names the column: "UNIQUE constraint failed: users.email".
	return account.UniqueFieldFromMessage(sqliteErr.Error()), true
}
