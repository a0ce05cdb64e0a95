// Package postgres opens a PostgreSQL database through pgx as a store.Store.
package postgres

import (
	"database/sql"
	"errors"
	"time"

	"github.com/finsightai/finsight/internal/auth/store/sqlstore"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

var Dialect = sqlstore.Dialect{
	Name:                 "postgres",
	NumberedPlaceholders: true,
	RowLocks:             true,
	AdvisoryLockSQL:      `SELECT pg_advisory_xact_lock(hashtext(?))`,
	IsUniqueViolation:    isUniqueViolation,
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

var DefaultPoolConfig = PoolConfig{
	MaxOpenConns:    25,
	MaxIdleConns:    10,
	ConnMaxLifetime: 15 * time.Minute,
	ConnMaxIdleTime: 5 * time.Minute,
}

// NewStore opens dsn with the pgx stdlib driver. Connections are lazy; call
// Ping to check reachability.
func NewStore(dsn string, pool PoolConfig) (*sqlstore.Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	return FromDB(db), nil
}

// FromDB wraps an existing pool, e.g. a sqlmock connection in tests.
func FromDB(db *sql.DB) *sqlstore.Store {
	return sqlstore.New(db, Dialect, applyMigrations)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
