package authsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeAPI hands out numbered tokens and counts refreshes.
type fakeAPI struct {
	refreshes atomic.Int32
	expiresIn int
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password != "pw" {
			ErrInvalidCredentials.WriteError(w)
			return
		}
		writeTokens(w, "access-0", "refresh-0", f.expiresIn)
	})
	mux.HandleFunc("POST /v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		n := f.refreshes.Add(1)
		writeTokens(w, fmt.Sprintf("access-%d", n), fmt.Sprintf("refresh-%d", n), 900)
	})
	mux.HandleFunc("GET /v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			ErrInvalidToken.WriteError(w)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(MeResponse{UserID: "u1", OrganisationID: "org-1", Role: "owner"})
	})
	mux.HandleFunc("GET /v1/billing/entitlement", func(w http.ResponseWriter, r *http.Request) {
		NewFeatureNotEntitledError("ai_insights", "professional").WriteError(w)
	})
	mux.HandleFunc("POST /v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func writeTokens(w http.ResponseWriter, access, refresh string, expiresIn int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(TokenResponse{
		AccessToken:    access,
		RefreshToken:   refresh,
		TokenType:      "Bearer",
		ExpiresIn:      expiresIn,
		OrganisationID: "org-1",
		Role:           "owner",
		Tier:           "essentials",
	})
}

func TestLoginAndMe(t *testing.T) {
	api := &fakeAPI{expiresIn: 900}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	client := NewSDKClient(srv.URL + "/")
	session, err := client.Login(context.Background(), LoginRequest{Email: "a@b.c", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "access-0", session.AccessToken())
	require.Equal(t, "org-1", session.OrganisationID())
	require.Equal(t, "essentials", session.Tier())

	me, err := session.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, "u1", me.UserID)
	require.Zero(t, api.refreshes.Load())
}

func TestLoginRejected(t *testing.T) {
	srv := httptest.NewServer((&fakeAPI{}).handler())
	defer srv.Close()

	_, err := NewSDKClient(srv.URL).Login(context.Background(), LoginRequest{Email: "a@b.c", Password: "nope"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestSessionRefreshesOnceWhenExpired(t *testing.T) {
	api := &fakeAPI{expiresIn: 10} // below refreshSkew, so already stale
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	session, err := NewSDKClient(srv.URL).Login(context.Background(), LoginRequest{Email: "a@b.c", Password: "pw"})
	require.NoError(t, err)

	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := session.Me(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, int32(1), api.refreshes.Load())
	require.Equal(t, "refresh-1", session.RefreshToken())
}

func TestFeatureNotEntitledError(t *testing.T) {
	srv := httptest.NewServer((&fakeAPI{expiresIn: 900}).handler())
	defer srv.Close()

	session := NewSDKClient(srv.URL).NewSessionFromTokens(TokenResponse{AccessToken: "a", RefreshToken: "r", ExpiresIn: 900})
	_, err := session.Entitlement(context.Background())
	require.ErrorIs(t, err, ErrFeatureNotEntitled)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "professional", apiErr.RequiredTier)
	require.Equal(t, "feature requires tier professional", apiErr.Description)
}

func TestLogoutClosesSession(t *testing.T) {
	srv := httptest.NewServer((&fakeAPI{expiresIn: 900}).handler())
	defer srv.Close()

	session := NewSDKClient(srv.URL).NewSessionFromTokens(TokenResponse{AccessToken: "a", RefreshToken: "r", ExpiresIn: 900})
	require.NoError(t, session.Logout(context.Background()))
	require.Empty(t, session.AccessToken())
	require.ErrorIs(t, session.Logout(context.Background()), ErrSessionClosed)

	_, err := session.Me(context.Background())
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestParseErrorResponseFallback(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusBadGateway}
	err := parseErrorResponse(resp, []byte("<html>bad gateway</html>"))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, ErrorCodeServerError, apiErr.Code)
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	require.NoError(t, parseErrorResponse(&http.Response{StatusCode: 200}, nil))
}
