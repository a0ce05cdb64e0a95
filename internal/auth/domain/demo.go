package domain

import "time"

// DemoAccessToken is a single-use, email-scoped link token. It never
// grants a user session.
type DemoAccessToken struct {
	ID        string
	Email     string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	ViewCount int
	CreatedAt time.Time
}

// DemoGrant is what a successful redemption yields.
type DemoGrant struct {
	Email     string
	ExpiresAt time.Time
	ViewCount int
}
