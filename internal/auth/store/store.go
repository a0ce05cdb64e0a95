package store

import (
	"context"
	"errors"
	"time"

	"github.com/finsightai/finsight/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Drivers (sqlite, postgres)
// implement it. Repositories hang off the store so that code running inside
// WithTx can only reach the transaction's repositories through tx.
type Store interface {
	Users() Users
	Organisations() Organisations
	Memberships() Memberships
	Subscriptions() Subscriptions
	RefreshTokens() RefreshTokens
	DemoTokens() DemoTokens
	WebhookEvents() WebhookEvents

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller must Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise. Inside fn only tx may be used; the root store
	// may be limited to a single connection.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// CreateUser returns ErrAlreadyExists when the email is taken.
	CreateUser(ctx context.Context, u domain.User) error
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	// GetUserByEmail expects an already lower-cased email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	UpdateUserStatus(ctx context.Context, id string, status domain.UserStatus, at time.Time) error
}

type Organisations interface {
	// CreateOrganisation returns ErrAlreadyExists when the slug is taken.
	CreateOrganisation(ctx context.Context, o domain.Organisation) error
	// TryCreateOrganisation inserts o unless its slug is taken and reports
	// whether it did. A taken slug is not an error, so the surrounding
	// transaction stays usable on every driver.
	TryCreateOrganisation(ctx context.Context, o domain.Organisation) (bool, error)
	GetOrganisationByID(ctx context.Context, id string) (domain.Organisation, error)
	// LockOrganisation reads the organisation and, where the driver supports
	// it, holds a row lock until the transaction ends. Use it to serialise
	// ledger changes for one organisation.
	LockOrganisation(ctx context.Context, id string) (domain.Organisation, error)
}

type Memberships interface {
	// CreateMembership returns ErrAlreadyExists for a duplicate (user, org).
	CreateMembership(ctx context.Context, m domain.Membership) error
	GetMembership(ctx context.Context, userID, organisationID string) (domain.Membership, error)
	// ListMembershipsByUser orders by membership creation, oldest first.
	ListMembershipsByUser(ctx context.Context, userID string) ([]domain.MembershipView, error)
	UpdateMembershipRole(ctx context.Context, userID, organisationID string, role domain.Role, at time.Time) error
	DeleteMembership(ctx context.Context, userID, organisationID string) error
}

type Subscriptions interface {
	// GetCurrentSubscription returns the record with a nil SupersededAt.
	GetCurrentSubscription(ctx context.Context, organisationID string) (domain.SubscriptionRecord, error)
	// GetCurrentSubscriptionByExternalID finds the current record carrying
	// the billing provider's subscription id.
	GetCurrentSubscriptionByExternalID(ctx context.Context, externalID string) (domain.SubscriptionRecord, error)
	// SupersedeCurrentSubscription stamps the current record and reports
	// whether there was one.
	SupersedeCurrentSubscription(ctx context.Context, organisationID string, at time.Time) (bool, error)
	// CreateSubscription inserts a record. A second current record for the
	// same organisation is rejected with ErrAlreadyExists.
	CreateSubscription(ctx context.Context, r domain.SubscriptionRecord) error
	// ListSubscriptionHistory returns every record, newest first.
	ListSubscriptionHistory(ctx context.Context, organisationID string) ([]domain.SubscriptionRecord, error)
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)
	// RevokeRefreshToken revokes one token only if it is still live and
	// reports whether it did. false means someone else revoked it first.
	RevokeRefreshToken(ctx context.Context, id string, at time.Time) (bool, error)
	// RevokeRefreshTokenFamily revokes every live token in the family.
	RevokeRefreshTokenFamily(ctx context.Context, familyID string, at time.Time) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

type DemoTokens interface {
	// LockDemoEmail serialises token replacement for email until the
	// transaction ends. Outside a transaction it has no lasting effect.
	LockDemoEmail(ctx context.Context, email string) error
	CreateDemoToken(ctx context.Context, t domain.DemoAccessToken) error
	GetDemoTokenByHash(ctx context.Context, hash string) (domain.DemoAccessToken, error)
	// DeleteOutstandingDemoTokens removes unused, unexpired tokens for email.
	DeleteOutstandingDemoTokens(ctx context.Context, email string, now time.Time) (int64, error)
	// RedeemDemoToken sets used_at and bumps view_count only if the token is
	// unused and unexpired at now, and reports whether it did.
	RedeemDemoToken(ctx context.Context, id string, now time.Time) (bool, error)
	// CountRedeemedDemoTokens counts every redemption for email.
	CountRedeemedDemoTokens(ctx context.Context, email string) (int, error)
	DeleteExpiredDemoTokens(ctx context.Context, before time.Time) (int64, error)
}

type WebhookEvents interface {
	GetWebhookEvent(ctx context.Context, externalID string) (domain.WebhookEvent, error)
	// RecordWebhookReceipt inserts the event if it is new and leaves an
	// existing row untouched.
	RecordWebhookReceipt(ctx context.Context, e domain.WebhookEvent) error
	// ClaimWebhookEvent upserts the row and reports whether it is still
	// unprocessed. Inside a transaction the claim holds the row until commit.
	ClaimWebhookEvent(ctx context.Context, e domain.WebhookEvent) (bool, error)
	MarkWebhookProcessed(ctx context.Context, externalID string, at time.Time) error
	RecordWebhookError(ctx context.Context, externalID string, msg string) error
	DeleteProcessedWebhookEvents(ctx context.Context, before time.Time) (int64, error)
}
