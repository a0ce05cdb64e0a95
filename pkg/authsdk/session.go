package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// refreshSkew renews the access token this long before it expires.
const refreshSkew = 30 * time.Second

var ErrSessionClosed = errors.New("session has no refresh token")

// Session is an authenticated session scoped to one organisation. It is safe
// for concurrent use.
type Session struct {
	client *SDKClient

	mu             sync.RWMutex
	accessToken    string
	refreshToken   string
	expiresAt      time.Time
	organisationID string
	role           string
	tier           string

	now func() time.Time
}

func newSession(client *SDKClient, tokens *TokenResponse) *Session {
	s := &Session{client: client, now: time.Now}
	s.apply(tokens)
	return s
}

// apply stores a fresh token pair. Caller holds mu or owns s exclusively.
func (s *Session) apply(t *TokenResponse) {
	s.accessToken = t.AccessToken
	s.refreshToken = t.RefreshToken
	s.expiresAt = s.now().Add(time.Duration(t.ExpiresIn)*time.Second - refreshSkew)
	s.organisationID = t.OrganisationID
	s.role = t.Role
	s.tier = t.Tier
}

func (s *Session) validToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if s.now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.accessToken, nil
}

func (s *Session) refreshLocked(ctx context.Context) error {
	if s.refreshToken == "" {
		return ErrSessionClosed
	}
	tokens, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	s.apply(tokens)
	return nil
}

// Refresh rotates the token pair now, regardless of expiry. Useful after a
// plan change so the tier claim catches up.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

// Me returns the caller's profile, current role and memberships.
func (s *Session) Me(ctx context.Context) (*MeResponse, error) {
	var out MeResponse
	if err := s.doAuth(ctx, http.MethodGet, "/v1/auth/me", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Entitlement reads the organisation's current plan as the server sees it.
func (s *Session) Entitlement(ctx context.Context) (*EntitlementResponse, error) {
	var out EntitlementResponse
	if err := s.doAuth(ctx, http.MethodGet, "/v1/billing/entitlement", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// SwitchOrganisation moves the session to another organisation the user
// belongs to. The previous session is revoked server-side.
func (s *Session) SwitchOrganisation(ctx context.Context, organisationID string) error {
	s.mu.RLock()
	refresh := s.refreshToken
	s.mu.RUnlock()

	var out TokenResponse
	req := SwitchOrganisationRequest{OrganisationID: organisationID, RefreshToken: refresh}
	if err := s.doAuth(ctx, http.MethodPost, "/v1/auth/switch-organisation", req, &out, http.StatusOK); err != nil {
		return err
	}

	s.mu.Lock()
	s.apply(&out)
	s.mu.Unlock()
	return nil
}

// Logout revokes the session. The Session is unusable afterwards.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	refresh := s.refreshToken
	s.refreshToken = ""
	s.accessToken = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()

	if refresh == "" {
		return ErrSessionClosed
	}
	return s.client.Logout(ctx, refresh)
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

func (s *Session) OrganisationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.organisationID
}

func (s *Session) Role() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// Tier is the tier claim from the last token issue; it may lag the ledger.
func (s *Session) Tier() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tier
}
