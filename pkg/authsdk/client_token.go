package authsdk

import (
	"context"
	"net/http"
)

// LoginTokens performs the password login and returns the raw token pair.
func (c *SDKClient) LoginTokens(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.postJSON(ctx, "/v1/auth/login", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh rotates a refresh token. The presented token is spent whether or
// not the caller keeps the response.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.postJSON(ctx, "/v1/auth/refresh", RefreshRequest{RefreshToken: refreshToken}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the session the refresh token belongs to.
func (c *SDKClient) Logout(ctx context.Context, refreshToken string) error {
	return c.postJSON(ctx, "/v1/auth/logout", LogoutRequest{RefreshToken: refreshToken}, nil, http.StatusNoContent)
}
