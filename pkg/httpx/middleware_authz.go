package httpx

import "net/http"

// WriteInsufficientRole answers 403 for a caller whose role is below the
// one the endpoint needs.
func WriteInsufficientRole(w http.ResponseWriter, required string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope", error_description="requires role `+required+`"`)
	WriteJSON(w, http.StatusForbidden, map[string]string{
		"error":             "insufficient_role",
		"error_description": "this operation requires role " + required,
	})
}

// WriteFeatureNotEntitled answers 403 naming the lowest tier that unlocks
// the feature.
func WriteFeatureNotEntitled(w http.ResponseWriter, feature, requiredTier string) {
	desc := "feature " + feature + " is not included in the current subscription"
	if requiredTier != "" {
		desc = "feature requires tier " + requiredTier
	}
	WriteJSON(w, http.StatusForbidden, map[string]string{
		"error":             "feature_not_entitled",
		"error_description": desc,
		"feature":           feature,
		"required_tier":     requiredTier,
	})
}
