package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/finsightai/finsight/internal/auth/service"
	"github.com/finsightai/finsight/internal/auth/store"
	"github.com/finsightai/finsight/internal/auth/store/drivers/postgres"
	"github.com/finsightai/finsight/pkg/cryptox"
	"github.com/finsightai/finsight/pkg/idx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// StartPostgres runs a disposable postgres container and returns a migrated
// store. Skipped in -short mode.
func startPostgres(t *testing.T) store.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("finsight"),
		tcpostgres.WithUsername("finsight"),
		tcpostgres.WithPassword("finsight"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := postgres.NewStore(dsn, postgres.DefaultPoolConfig)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestPostgresIntegration(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	u := domain.User{ID: idx.New().String(), Email: "pg@acme.test", FullName: "PG", PasswordHash: "h",
		Status: domain.UserStatusActive, CreatedAt: now, UpdatedAt: now}
	o := domain.Organisation{ID: idx.New().String(), Name: "Acme", Slug: "acme", CreatedAt: now, UpdatedAt: now}

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			return err
		}
		if err := tx.Organisations().CreateOrganisation(ctx, o); err != nil {
			return err
		}
		if _, err := tx.Organisations().LockOrganisation(ctx, o.ID); err != nil {
			return err
		}
		return tx.Memberships().CreateMembership(ctx, domain.Membership{
			UserID: u.ID, OrganisationID: o.ID, Role: domain.RoleOwner, CreatedAt: now, UpdatedAt: now,
		})
	})
	require.NoError(t, err)

	require.ErrorIs(t, s.Users().CreateUser(ctx, u), store.ErrAlreadyExists)

	// A slug clash must leave the transaction usable for the retry and
	// everything after it.
	clash := domain.Organisation{ID: idx.New().String(), Name: "Acme", Slug: o.Slug, CreatedAt: now, UpdatedAt: now}
	err = s.WithTx(ctx, func(tx store.Tx) error {
		created, err := tx.Organisations().TryCreateOrganisation(ctx, clash)
		if err != nil {
			return err
		}
		require.False(t, created)

		clash.Slug = o.Slug + "-2"
		created, err = tx.Organisations().TryCreateOrganisation(ctx, clash)
		if err != nil {
			return err
		}
		require.True(t, created)
		_, err = tx.Organisations().LockOrganisation(ctx, clash.ID)
		return err
	})
	require.NoError(t, err)

	sub := domain.SubscriptionRecord{ID: idx.New().String(), OrganisationID: o.ID, Tier: domain.TierEssentials,
		Status: domain.StatusTrialing, ObjectVersion: 1, CreatedAt: now}
	require.NoError(t, s.Subscriptions().CreateSubscription(ctx, sub))

	dup := sub
	dup.ID = idx.New().String()
	require.ErrorIs(t, s.Subscriptions().CreateSubscription(ctx, dup), store.ErrAlreadyExists)

	cur, err := s.Subscriptions().GetCurrentSubscription(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, sub.ID, cur.ID)
	require.True(t, cur.CreatedAt.Equal(now))

	ev := domain.WebhookEvent{ExternalEventID: "evt_pg", Type: "customer.subscription.updated", ReceivedAt: now}
	claimed, err := s.WebhookEvents().ClaimWebhookEvent(ctx, ev)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, s.WebhookEvents().MarkWebhookProcessed(ctx, ev.ExternalEventID, now))
	claimed, err = s.WebhookEvents().ClaimWebhookEvent(ctx, ev)
	require.NoError(t, err)
	require.False(t, claimed)
}

func TestPostgresRegisterSlugClash(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()

	hasher := cryptox.NewPasswordHasher("")
	hasher.Params.Memory = 1024
	hasher.Params.Iterations = 1
	users := &service.UserService{
		Store:       s,
		Hasher:      hasher,
		Memberships: &service.MembershipRegistry{Store: s},
		Ledger:      &service.SubscriptionLedger{Store: s},
	}

	register := func(email string) domain.Organisation {
		_, org, err := users.Register(ctx, service.RegisterInput{
			Email:            email,
			Password:         "correct horse battery",
			FullName:         "PG",
			OrganisationName: "Acme",
		})
		require.NoError(t, err)
		return org
	}

	first := register("one@acme.test")
	second := register("two@acme.test")
	require.Equal(t, "acme", first.Slug)
	require.Contains(t, second.Slug, "acme-")

	ent, err := (&service.SubscriptionLedger{Store: s}).CurrentEntitlement(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusTrialing, ent.Status)
}

func TestPostgresConcurrentDemoRequests(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()
	demo := &service.DemoAccessGate{Store: s}

	const n = 10
	tokens := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, _, err := demo.RequestAccess(ctx, "prospect@acme.test")
			require.NoError(t, err)
			tokens[i] = token
		}()
	}
	wg.Wait()

	redeemed := 0
	for _, token := range tokens {
		if _, err := demo.Verify(ctx, token); err == nil {
			redeemed++
		}
	}
	require.Equal(t, 1, redeemed)
}
