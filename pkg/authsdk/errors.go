package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/finsightai/finsight/pkg/httpx"
)

const (
	ErrorCodeInvalidRequest         = "invalid_request"
	ErrorCodeInvalidCredentials     = "invalid_credentials"
	ErrorCodeInvalidGrant           = "invalid_grant"
	ErrorCodeInvalidToken           = "invalid_token"
	ErrorCodeNotAMember             = "not_a_member"
	ErrorCodeInsufficientRole       = "insufficient_role"
	ErrorCodeFeatureNotEntitled     = "feature_not_entitled"
	ErrorCodeNoSubscription         = "no_subscription"
	ErrorCodeEmailTaken             = "email_taken"
	ErrorCodeDemoTokenInvalid       = "demo_token_invalid"
	ErrorCodeDemoTokenExpired       = "demo_token_expired"
	ErrorCodeDemoTokenUsed          = "demo_token_used"
	ErrorCodeWebhookUnauthenticated = "webhook_unauthenticated"
	ErrorCodeRateLimited            = "rate_limit_exceeded"
	ErrorCodeServerError            = "server_error"
)

// APIError is the JSON error body every endpoint returns on failure.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`

	// Set on feature_not_entitled only.
	Feature      string `json:"feature,omitempty"`
	RequiredTier string `json:"required_tier,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches on status and code so a parsed response compares equal to the
// predefined value it was written from.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode && e.Code == t.Code
}

func (e *APIError) WriteError(w http.ResponseWriter) {
	if e.StatusCode == http.StatusUnauthorized && e.Code == ErrorCodeInvalidToken {
		httpx.WriteBearerError(w)
		return
	}
	httpx.WriteJSON(w, e.StatusCode, e)
}

func NewAPIError(status int, code, description string) *APIError {
	return &APIError{StatusCode: status, Code: code, Description: description}
}

// NewFeatureNotEntitledError builds the 403 returned when the organisation's
// tier or billing status does not unlock a feature.
func NewFeatureNotEntitledError(feature, requiredTier string) *APIError {
	desc := "feature " + feature + " is not available on the current subscription"
	if requiredTier != "" {
		desc = "feature requires tier " + requiredTier
	}
	return &APIError{
		StatusCode:   http.StatusForbidden,
		Code:         ErrorCodeFeatureNotEntitled,
		Description:  desc,
		Feature:      feature,
		RequiredTier: requiredTier,
	}
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required fields",
	}

	ErrMethodNotAllowed = &APIError{
		StatusCode:  http.StatusMethodNotAllowed,
		Code:        ErrorCodeInvalidRequest,
		Description: "method not allowed",
	}

	// ErrInvalidCredentials never says which of email or password was wrong.
	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCredentials,
		Description: "invalid email or password",
	}

	// ErrInvalidGrant covers unknown, expired, revoked and reused refresh tokens.
	ErrInvalidGrant = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidGrant,
		Description: "the refresh token is invalid, expired or revoked",
	}

	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: httpx.InvalidTokenDescription,
	}

	ErrNotAMember = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeNotAMember,
		Description: "you are not a member of that organisation",
	}

	ErrInsufficientRole = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeInsufficientRole,
		Description: "your role does not permit this operation",
	}

	ErrFeatureNotEntitled = &APIError{
		StatusCode: http.StatusForbidden,
		Code:       ErrorCodeFeatureNotEntitled,
	}

	ErrNoSubscription = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNoSubscription,
		Description: "the organisation has no subscription",
	}

	ErrEmailTaken = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeEmailTaken,
		Description: "an account with that email already exists",
	}

	ErrDemoTokenInvalid = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeDemoTokenInvalid,
		Description: "the demo link is not valid",
	}

	ErrDemoTokenExpired = &APIError{
		StatusCode:  http.StatusGone,
		Code:        ErrorCodeDemoTokenExpired,
		Description: "the demo link has expired",
	}

	ErrDemoTokenUsed = &APIError{
		StatusCode:  http.StatusGone,
		Code:        ErrorCodeDemoTokenUsed,
		Description: "the demo link has already been used",
	}

	ErrWebhookUnauthenticated = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeWebhookUnauthenticated,
		Description: "webhook signature verification failed",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
