package httpx

import (
	"net/http"
	"strings"
)

// InvalidTokenDescription is the only description sent for a rejected
// access token, whatever check failed.
const InvalidTokenDescription = "the access token is missing or not valid"

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if len(authz) < 7 || !strings.EqualFold(authz[:7], "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(authz[7:])
	return raw, raw != ""
}

// WriteBearerError writes an RFC 6750 invalid_token challenge. Header and
// body are the same for every failure.
func WriteBearerError(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+InvalidTokenDescription+`"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "invalid_token",
		"error_description": InvalidTokenDescription,
	})
}
