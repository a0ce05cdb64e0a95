// Package sqlite opens a modernc SQLite database as a store.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/finsightai/finsight/internal/auth/store/sqlstore"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var dialect = sqlstore.Dialect{
	Name:              "sqlite",
	IsUniqueViolation: isUniqueViolation,
}

// NewStore opens dsn, a file path or ":memory:". The pool is limited to one
// connection: in-memory databases are per connection, and SQLite allows a
// single writer anyway.
func NewStore(dsn string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite", withDriverParams(dsn))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	// Enforce FKs
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sqlstore.New(db, dialect, applyMigrations), nil
}

// withDriverParams makes the driver write timestamps in a fixed, sortable
// layout so range comparisons in SQL behave, and turns on foreign keys for
// any connection the pool opens later.
func withDriverParams(dsn string) string {
	params := []string{"_pragma=foreign_keys(1)"}
	if !strings.Contains(dsn, "_time_format=") {
		params = append(params, "_time_format=sqlite")
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	// Without extended result codes only the message tells them apart.
	return strings.Contains(se.Error(), "UNIQUE constraint failed")
}
