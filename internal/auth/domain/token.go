package domain

import "time"

// TokenPair is what login, refresh and org switch hand back.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string // always "Bearer"
	ExpiresIn        time.Duration
	RefreshExpiresIn time.Duration
	FamilyID         string
	OrganisationID   string
	Role             Role
	Tier             Tier // empty when the organisation has no subscription
}

// RefreshToken is the stored record for one opaque refresh token. Tokens
// rotated from the same login share a FamilyID; at most one per family is
// unrevoked.
type RefreshToken struct {
	ID             string
	FamilyID       string
	UserID         string
	OrganisationID string
	TokenHash      string // base64url SHA-256 fingerprint
	IssuedAt       time.Time
	ExpiresAt      time.Time
	RevokedAt      *time.Time
}

func (t RefreshToken) Revoked() bool { return t.RevokedAt != nil }

func (t RefreshToken) ExpiredAt(now time.Time) bool { return !now.Before(t.ExpiresAt) }
