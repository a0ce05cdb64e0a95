package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/finsightai/finsight/internal/auth/metrics"
	"github.com/finsightai/finsight/internal/auth/service"
	"github.com/finsightai/finsight/pkg/jwtx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestIssueInitialPair_VerifyRoundTrip(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name     string
		role     domain.Role
		tier     domain.Tier
		status   domain.SubscriptionStatus
		wantTier domain.Tier
	}{
		{"member essentials", domain.RoleMember, domain.TierEssentials, domain.StatusActive, domain.TierEssentials},
		{"admin professional", domain.RoleAdmin, domain.TierProfessional, domain.StatusTrialing, domain.TierProfessional},
		{"owner enterprise past due", domain.RoleOwner, domain.TierEnterprise, domain.StatusPastDue, domain.TierEnterprise},
		{"member canceled", domain.RoleMember, domain.TierEnterprise, domain.StatusCanceled, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			_, org := e.register(t, "owner@acme.test", "Acme")
			u := e.addMember(t, "user@acme.test", org.ID, tc.role)
			e.setPlan(t, org.ID, tc.tier, tc.status, 1)

			pair, err := e.tokens.IssueInitialPair(ctx, u, org.ID)
			require.NoError(t, err)
			require.Equal(t, "Bearer", pair.TokenType)
			require.NotEmpty(t, pair.RefreshToken)
			require.Equal(t, tc.role, pair.Role)
			require.Equal(t, tc.wantTier, pair.Tier)

			claims, err := e.tokens.VerifyAccess(pair.AccessToken)
			require.NoError(t, err)
			require.Equal(t, u.ID, claims.Subject)
			require.Equal(t, org.ID, claims.OrganisationID)
			require.Equal(t, string(tc.role), claims.Role)
			require.Equal(t, string(tc.wantTier), claims.Tier)
			require.Equal(t, pair.FamilyID, claims.SID)
			require.Equal(t, testIssuer, claims.Issuer)
			require.True(t, t0.Add(15*time.Minute).Equal(claims.Expiry()))
		})
	}
}

func TestIssueInitialPair_NotAMember(t *testing.T) {
	e := newEnv(t)
	u, _ := e.register(t, "owner@acme.test", "Acme")
	_, other := e.register(t, "owner@globex.test", "Globex")

	_, err := e.tokens.IssueInitialPair(context.Background(), u, other.ID)
	require.ErrorIs(t, err, service.ErrNotAMember)
}

func TestRefresh_RotationAndReuseDetection(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u, org := e.register(t, "owner@acme.test", "Acme")

	first, err := e.tokens.IssueInitialPair(ctx, u, org.ID)
	require.NoError(t, err)

	second, err := e.tokens.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.Equal(t, first.FamilyID, second.FamilyID)

	// Presenting the rotated token is reuse.
	_, err = e.tokens.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenReuseDetected)

	// The never-used successor went down with its family.
	_, err = e.tokens.Refresh(ctx, second.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenReuseDetected)

	// A fresh login starts a new, unaffected family.
	third, err := e.tokens.IssueInitialPair(ctx, u, org.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.FamilyID, third.FamilyID)
	_, err = e.tokens.Refresh(ctx, third.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_UnknownAndExpired(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u, org := e.register(t, "owner@acme.test", "Acme")

	_, err := e.tokens.Refresh(ctx, "not-a-token")
	require.ErrorIs(t, err, service.ErrTokenUnknown)
	_, err = e.tokens.Refresh(ctx, "  ")
	require.ErrorIs(t, err, service.ErrTokenUnknown)

	pair, err := e.tokens.IssueInitialPair(ctx, u, org.ID)
	require.NoError(t, err)

	e.clock.Advance(7*24*time.Hour + time.Second)
	_, err = e.tokens.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenExpired)
}

func TestRefresh_ReflectsCurrentRoleAndTier(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, org := e.register(t, "owner@acme.test", "Acme")
	u := e.addMember(t, "member@acme.test", org.ID, domain.RoleMember)

	pair, err := e.tokens.IssueInitialPair(ctx, u, org.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleMember, pair.Role)
	require.Equal(t, domain.TierEssentials, pair.Tier)

	require.NoError(t, e.memberships.ChangeRole(ctx, u.ID, org.ID, domain.RoleAdmin))
	e.setPlan(t, org.ID, domain.TierProfessional, domain.StatusActive, 10)

	next, err := e.tokens.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, next.Role)
	require.Equal(t, domain.TierProfessional, next.Tier)

	claims, err := e.tokens.VerifyAccess(next.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "admin", claims.Role)
	require.Equal(t, "professional", claims.Tier)
}

func TestRefresh_MembershipRemovedRevokesFamily(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, org := e.register(t, "owner@acme.test", "Acme")
	u := e.addMember(t, "member@acme.test", org.ID, domain.RoleMember)

	pair, err := e.tokens.IssueInitialPair(ctx, u, org.ID)
	require.NoError(t, err)

	require.NoError(t, e.memberships.Remove(ctx, u.ID, org.ID))

	_, err = e.tokens.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrNotAMember)

	// The presented token was revoked with its family.
	_, err = e.tokens.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenReuseDetected)
}

func TestRefresh_DisabledUser(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u, org := e.register(t, "owner@acme.test", "Acme")

	pair, err := e.tokens.IssueInitialPair(ctx, u, org.ID)
	require.NoError(t, err)
	require.NoError(t, e.users.Disable(ctx, u.ID))

	_, err = e.tokens.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenInvalid)
}

func TestRefresh_ConcurrentRace(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u, org := e.register(t, "owner@acme.test", "Acme")

	pair, err := e.tokens.IssueInitialPair(ctx, u, org.ID)
	require.NoError(t, err)

	type result struct {
		pair domain.TokenPair
		err  error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := e.tokens.Refresh(ctx, pair.RefreshToken)
			results <- result{p, err}
		}()
	}
	wg.Wait()
	close(results)

	var winners []domain.TokenPair
	reuse := 0
	for r := range results {
		switch {
		case r.err == nil:
			winners = append(winners, r.pair)
		case errors.Is(r.err, service.ErrTokenReuseDetected):
			reuse++
		default:
			t.Fatalf("unexpected error: %v", r.err)
		}
	}
	require.Len(t, winners, 1)
	require.Equal(t, 1, reuse)

	// The loser revoked the family, including the winner's successor.
	_, err = e.tokens.Refresh(ctx, winners[0].RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenReuseDetected)
}

func TestVerifyAccess_Rejections(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u, org := e.register(t, "owner@acme.test", "Acme")

	pair, err := e.tokens.IssueInitialPair(ctx, u, org.ID)
	require.NoError(t, err)

	_, err = e.tokens.VerifyAccess(pair.AccessToken + "x")
	require.ErrorIs(t, err, service.ErrTokenInvalid)

	_, err = e.tokens.VerifyAccess("garbage")
	require.ErrorIs(t, err, service.ErrTokenInvalid)

	e.clock.Advance(16 * time.Minute)
	_, err = e.tokens.VerifyAccess(pair.AccessToken)
	require.ErrorIs(t, err, service.ErrTokenExpired)
}

func TestVerifyAccess_RetiredKey(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u, org := e.register(t, "owner@acme.test", "Acme")

	old, err := e.tokens.IssueInitialPair(ctx, u, org.ID)
	require.NoError(t, err)

	next, err := jwtx.NewSignerHS256("k2", []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	require.NoError(t, e.keys.Rotate(next))

	// Still accepted until retired.
	_, err = e.tokens.VerifyAccess(old.AccessToken)
	require.NoError(t, err)

	require.NoError(t, e.keys.Retire("k1"))
	_, err = e.tokens.VerifyAccess(old.AccessToken)
	require.ErrorIs(t, err, service.ErrTokenInvalid)

	fresh, err := e.tokens.IssueInitialPair(ctx, u, org.ID)
	require.NoError(t, err)
	_, err = e.tokens.VerifyAccess(fresh.AccessToken)
	require.NoError(t, err)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u, org := e.register(t, "owner@acme.test", "Acme")

	pair, err := e.tokens.IssueInitialPair(ctx, u, org.ID)
	require.NoError(t, err)
	rotated, err := e.tokens.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	logouts := revocations(service.RevokeReasonLogout)
	require.NoError(t, e.tokens.Logout(ctx, rotated.RefreshToken))
	require.Equal(t, logouts+1, revocations(service.RevokeReasonLogout))
	_, err = e.tokens.Refresh(ctx, rotated.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenReuseDetected)

	require.NoError(t, e.tokens.Logout(ctx, "unknown"))
	require.NoError(t, e.tokens.Logout(ctx, ""))
}

func TestSwitchOrganisation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u, home := e.register(t, "owner@acme.test", "Acme")
	_, other := e.register(t, "owner@globex.test", "Globex")
	_, stranger := e.register(t, "owner@initech.test", "Initech")
	_, err := e.memberships.Add(ctx, u.ID, other.ID, domain.RoleMember)
	require.NoError(t, err)

	pair, err := e.tokens.IssueInitialPair(ctx, u, home.ID)
	require.NoError(t, err)

	switches := revocations(service.RevokeReasonSwitch)
	logouts := revocations(service.RevokeReasonLogout)
	switched, err := e.tokens.SwitchOrganisation(ctx, u.ID, other.ID, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, switches+1, revocations(service.RevokeReasonSwitch))
	require.Equal(t, logouts, revocations(service.RevokeReasonLogout))
	require.Equal(t, other.ID, switched.OrganisationID)
	require.Equal(t, domain.RoleMember, switched.Role)
	require.NotEqual(t, pair.FamilyID, switched.FamilyID)

	_, err = e.tokens.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenReuseDetected)

	_, err = e.tokens.SwitchOrganisation(ctx, u.ID, stranger.ID, "")
	require.ErrorIs(t, err, service.ErrNotAMember)
}

func revocations(reason string) float64 {
	return testutil.ToFloat64(metrics.TokenFamiliesRevokedTotal.WithLabelValues(reason))
}
