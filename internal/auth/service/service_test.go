package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/finsightai/finsight/internal/auth/service"
	"github.com/finsightai/finsight/internal/auth/store"
	"github.com/finsightai/finsight/internal/auth/store/drivers/sqlite"
	"github.com/finsightai/finsight/pkg/cryptox"
	"github.com/finsightai/finsight/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const testIssuer = "finsight-test"

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// env wires every service over one in-memory store, the way the app does.
type env struct {
	store       store.Store
	clock       *testClock
	keys        *jwtx.KeyManager
	memberships *service.MembershipRegistry
	ledger      *service.SubscriptionLedger
	tokens      *service.TokenService
	gate        *service.AuthorizationGate
	users       *service.UserService
	demo        *service.DemoAccessGate
}

func newEnv(t *testing.T) *env {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	clk := &testClock{now: t0}

	signer, err := jwtx.NewSignerHS256("k1", []byte(strings.Repeat("s", 32)))
	require.NoError(t, err)
	km, err := jwtx.NewKeyManager(signer, jwtx.VerifyOptions{Issuer: testIssuer, Now: clk.Now})
	require.NoError(t, err)

	hasher := cryptox.NewPasswordHasher("pepper")
	hasher.Params.Memory = 1024
	hasher.Params.Iterations = 1

	e := &env{store: st, clock: clk, keys: km}
	e.memberships = &service.MembershipRegistry{Store: st, Clock: clk.Now}
	e.ledger = &service.SubscriptionLedger{Store: st, Clock: clk.Now}
	e.tokens = &service.TokenService{
		Store:       st,
		Keys:        km,
		Memberships: e.memberships,
		Ledger:      e.ledger,
		Issuer:      testIssuer,
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  7 * 24 * time.Hour,
		Clock:       clk.Now,
	}
	e.gate = &service.AuthorizationGate{
		Tokens:      e.tokens,
		Memberships: e.memberships,
		Ledger:      e.ledger,
		Grace:       30 * time.Second,
	}
	e.users = &service.UserService{
		Store:       st,
		Hasher:      hasher,
		Tokens:      e.tokens,
		Memberships: e.memberships,
		Ledger:      e.ledger,
		Clock:       clk.Now,
	}
	e.demo = &service.DemoAccessGate{Store: st, TTL: 7 * 24 * time.Hour, Clock: clk.Now}
	return e
}

// register creates a user with their own organisation on an essentials trial.
func (e *env) register(t *testing.T, email, orgName string) (domain.User, domain.Organisation) {
	t.Helper()
	u, o, err := e.users.Register(context.Background(), service.RegisterInput{
		Email:            email,
		Password:         "correct horse battery",
		FullName:         "Test User",
		OrganisationName: orgName,
	})
	require.NoError(t, err)
	return u, o
}

// setPlan replaces the organisation's current subscription.
func (e *env) setPlan(t *testing.T, orgID string, tier domain.Tier, status domain.SubscriptionStatus, version int64) {
	t.Helper()
	_, err := e.ledger.Replace(context.Background(), orgID, domain.SubscriptionRecord{
		Tier:          tier,
		Status:        status,
		ObjectVersion: version,
	})
	require.NoError(t, err)
}

// addMember registers a second user and adds them to orgID with role.
func (e *env) addMember(t *testing.T, email, orgID string, role domain.Role) domain.User {
	t.Helper()
	u, _ := e.register(t, email, "Own "+email)
	_, err := e.memberships.Add(context.Background(), u.ID, orgID, role)
	require.NoError(t, err)
	return u
}
