package jwtx_test

import (
	"testing"
	"time"

	"github.com/finsightai/finsight/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestNewAccessClaims(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c := jwtx.NewAccessClaims(jwtx.AccessClaimsParams{
		Subject:        "user-1",
		OrganisationID: "org-1",
		Role:           "admin",
		Tier:           "professional",
		SessionID:      "fam-1",
		Issuer:         "finsight",
		TTL:            30 * time.Minute,
		Now:            now,
	})

	require.Equal(t, "user-1", c.Subject)
	require.Equal(t, "org-1", c.OrganisationID)
	require.Equal(t, "admin", c.Role)
	require.Equal(t, "professional", c.Tier)
	require.Equal(t, "fam-1", c.SID)
	require.Equal(t, "finsight", c.Issuer)
	require.Equal(t, now, c.IssuedAt.Time)
	require.Equal(t, now.Add(30*time.Minute), c.Expiry())
	require.NotEmpty(t, c.ID)
}

func TestNewAccessClaims_Defaults(t *testing.T) {
	c := jwtx.NewAccessClaims(jwtx.AccessClaimsParams{Subject: "user-1"})

	require.False(t, c.IssuedAt.IsZero())
	require.WithinDuration(t, c.IssuedAt.Add(jwtx.DefaultAccessTokenTTL), c.Expiry(), time.Second)
}

func TestNewJTIUnique(t *testing.T) {
	require.NotEqual(t, jwtx.NewJTI(), jwtx.NewJTI())
}

func TestExpiryZeroWithoutExp(t *testing.T) {
	require.True(t, jwtx.Claims{}.Expiry().IsZero())
}
