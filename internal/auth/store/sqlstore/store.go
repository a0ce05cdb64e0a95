package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/finsightai/finsight/internal/auth/store"
)

// Migrator applies the driver's embedded migrations to db.
type Migrator func(db *sql.DB) error

type Store struct {
	db      *sql.DB
	q       *queries
	migrate Migrator
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB, d Dialect, migrate Migrator) *Store {
	return &Store{
		db:      db,
		q:       &queries{db: db, d: d},
		migrate: migrate,
	}
}

// DB exposes the pool for migrations and tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) ApplyMigrations() error {
	if s.migrate == nil {
		return nil
	}
	if err := s.migrate(s.db); err != nil {
		return fmt.Errorf("apply %s migrations: %w", s.q.d.Name, err)
	}
	return nil
}

func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txStore{tx: tx, q: &queries{db: tx, d: s.q.d}}, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	// No-op after a successful commit.
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Users() store.Users                 { return &usersRepo{q: s.q} }
func (s *Store) Organisations() store.Organisations { return &organisationsRepo{q: s.q} }
func (s *Store) Memberships() store.Memberships     { return &membershipsRepo{q: s.q} }
func (s *Store) Subscriptions() store.Subscriptions { return &subscriptionsRepo{q: s.q} }
func (s *Store) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{q: s.q} }
func (s *Store) DemoTokens() store.DemoTokens       { return &demoTokensRepo{q: s.q} }
func (s *Store) WebhookEvents() store.WebhookEvents { return &webhookEventsRepo{q: s.q} }

type txStore struct {
	tx *sql.Tx
	q  *queries
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the owning Store keeps the pool.
func (t *txStore) Close() error               { return nil }
func (t *txStore) Ping(context.Context) error { return nil }
func (t *txStore) ApplyMigrations() error     { return nil }

// Nested transactions are not supported.
func (t *txStore) Tx(context.Context) (store.Tx, error) { return nil, sql.ErrTxDone }
func (t *txStore) WithTx(context.Context, func(store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Users() store.Users                 { return &usersRepo{q: t.q} }
func (t *txStore) Organisations() store.Organisations { return &organisationsRepo{q: t.q} }
func (t *txStore) Memberships() store.Memberships     { return &membershipsRepo{q: t.q} }
func (t *txStore) Subscriptions() store.Subscriptions { return &subscriptionsRepo{q: t.q} }
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{q: t.q} }
func (t *txStore) DemoTokens() store.DemoTokens       { return &demoTokensRepo{q: t.q} }
func (t *txStore) WebhookEvents() store.WebhookEvents { return &webhookEventsRepo{q: t.q} }
