package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient calls the unauthenticated endpoints and creates Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Login authenticates with email and password and returns a Session.
func (c *SDKClient) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	tokens, err := c.LoginTokens(ctx, req)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}

// Register creates a user and organisation and returns a Session for it.
func (c *SDKClient) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, *Session, error) {
	var out RegisterResponse
	if err := c.postJSON(ctx, "/v1/auth/register", req, &out, http.StatusCreated); err != nil {
		return nil, nil, err
	}
	return &out, newSession(c, &out.Tokens), nil
}

// NewSessionFromTokens resumes a session from stored tokens.
func (c *SDKClient) NewSessionFromTokens(tokens TokenResponse) *Session {
	return newSession(c, &tokens)
}
