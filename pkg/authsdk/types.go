package authsdk

import "time"

// ----------------------------------------------------------------------------
// Auth
// ----------------------------------------------------------------------------

type RegisterRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	FullName         string `json:"full_name"`
	OrganisationName string `json:"organisation_name"`
}

// LoginRequest signs in to OrganisationID, or to the user's first
// organisation when it is empty.
type LoginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	OrganisationID string `json:"organisation_id,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SwitchOrganisationRequest asks for a token pair scoped to another
// organisation. When RefreshToken is set the old session is revoked.
type SwitchOrganisationRequest struct {
	OrganisationID string `json:"organisation_id"`
	RefreshToken   string `json:"refresh_token,omitempty"`
}

// TokenResponse is returned by register, login, refresh and org switch.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	OrganisationID   string `json:"organisation_id"`
	Role             string `json:"role"`
	Tier             string `json:"tier,omitempty"`
}

type RegisterResponse struct {
	UserID         string        `json:"user_id"`
	OrganisationID string        `json:"organisation_id"`
	Tokens         TokenResponse `json:"tokens"`
}

type MembershipInfo struct {
	OrganisationID   string `json:"organisation_id"`
	OrganisationName string `json:"organisation_name"`
	Role             string `json:"role"`
}

type MeResponse struct {
	UserID         string           `json:"user_id"`
	Email          string           `json:"email"`
	FullName       string           `json:"full_name"`
	OrganisationID string           `json:"organisation_id"`
	Role           string           `json:"role"`
	Tier           string           `json:"tier,omitempty"`
	Memberships    []MembershipInfo `json:"memberships"`
}

// ----------------------------------------------------------------------------
// Billing
// ----------------------------------------------------------------------------

type LimitInfo struct {
	Max       int  `json:"max"`
	Unlimited bool `json:"unlimited"`
}

type EntitlementResponse struct {
	OrganisationID   string               `json:"organisation_id"`
	Tier             string               `json:"tier"`
	Status           string               `json:"status"`
	Entitled         bool                 `json:"entitled"`
	CurrentPeriodEnd *time.Time           `json:"current_period_end,omitempty"`
	Features         []string             `json:"features"`
	Limits           map[string]LimitInfo `json:"limits"`
}

type Plan struct {
	Tier            string               `json:"tier"`
	Name            string               `json:"name"`
	PriceMonthlyGBP int                  `json:"price_monthly_gbp"`
	Features        []string             `json:"features"`
	Limits          map[string]LimitInfo `json:"limits"`
	Popular         bool                 `json:"popular"`
}

type PlansResponse struct {
	Plans []Plan `json:"plans"`
}

type WebhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// ----------------------------------------------------------------------------
// Demo
// ----------------------------------------------------------------------------

type DemoAccessRequest struct {
	Email string `json:"email"`
}

// DemoAccessResponse carries the token only when the server is configured to
// expose it (local development); otherwise it is delivered by email.
type DemoAccessResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"token,omitempty"`
}

type DemoVerifyRequest struct {
	Token string `json:"token"`
}

type DemoVerifyResponse struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	ViewCount int       `json:"view_count"`
}

// ----------------------------------------------------------------------------
// Health
// ----------------------------------------------------------------------------

type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime,omitempty"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// ----------------------------------------------------------------------------
// Organisation
// ----------------------------------------------------------------------------

// AddMemberRequest adds an existing user, found by email, to the caller's
// organisation.
type AddMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type ChangeRoleRequest struct {
	Role string `json:"role"`
}

type MemberResponse struct {
	UserID         string `json:"user_id"`
	OrganisationID string `json:"organisation_id"`
	Role           string `json:"role"`
}
