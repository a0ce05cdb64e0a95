package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultAccessTokenTTL keeps the window in which a stale role or tier
	// claim can be presented short.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL bounds how long a session family can live
	// without the user signing in again.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Claims is the access-token payload. Role and tier are snapshots taken at
// issue time; anything billable re-reads them from the source of truth.
type Claims struct {
	jwt.RegisteredClaims

	// Organisation the token is scoped to.
	OrganisationID string `json:"org"`

	// Role of the subject within OrganisationID ("owner", "admin", "member").
	Role string `json:"role"`

	// Subscription tier of OrganisationID, empty when it has none.
	Tier string `json:"tier,omitempty"`

	// Session (refresh token family) this token was minted for.
	SID string `json:"sid,omitempty"`
}

// AccessClaimsParams collects the inputs to NewAccessClaims.
type AccessClaimsParams struct {
	Subject        string
	OrganisationID string
	Role           string
	Tier           string
	SessionID      string
	Issuer         string
	TTL            time.Duration
	Now            time.Time
}

// NewAccessClaims builds a fully populated claim set.
func NewAccessClaims(p AccessClaimsParams) Claims {
	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.Issuer,
			Subject:   p.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		OrganisationID: p.OrganisationID,
		Role:           p.Role,
		Tier:           p.Tier,
		SID:            p.SessionID,
	}
}

// NewJTI returns a random URL-safe identifier for the "jti" claim.
func NewJTI() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// Expiry returns the exp claim or the zero time.
func (c Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
