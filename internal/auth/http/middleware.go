package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/finsightai/finsight/internal/auth/service"
	"github.com/finsightai/finsight/pkg/authsdk"
	"github.com/finsightai/finsight/pkg/httpx"
	"github.com/finsightai/finsight/pkg/slogx"
)

type authContextKey struct{}

// AuthFromContext returns the AuthContext stored by RequireAuth.
func AuthFromContext(ctx context.Context) (service.AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey{}).(service.AuthContext)
	return ac, ok
}

// RequireAuth runs the bearer token through the gate and stores the
// resulting AuthContext on the request.
func RequireAuth(gate *service.AuthorizationGate, req service.Requirement) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorize(gate, req, next, w, r)
		})
	}
}

// RequireFeatureFromPath is RequireAuth with the feature taken from a path
// wildcard. Unknown features are a 404.
func RequireFeatureFromPath(gate *service.AuthorizationGate, wildcard string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f := domain.Feature(r.PathValue(wildcard))
			if domain.RequiredTier(f) == "" {
				authsdk.NewAPIError(http.StatusNotFound, authsdk.ErrorCodeInvalidRequest, "unknown feature").WriteError(w)
				return
			}
			authorize(gate, service.Requirement{Feature: f}, next, w, r)
		})
	}
}

func authorize(gate *service.AuthorizationGate, req service.Requirement, next http.Handler, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, ok := httpx.BearerToken(r)
	if !ok {
		httpx.WriteBearerError(w)
		return
	}

	ac, err := gate.Authorize(ctx, token, req)
	if err != nil {
		writeGateError(ctx, w, req, err)
		return
	}

	ctx = context.WithValue(ctx, authContextKey{}, ac)
	ctx = httpx.WithPrincipal(ctx, ac.UserID, ac.OrganisationID)
	ctx = slogx.With(ctx,
		slog.String("user_id", ac.UserID),
		slog.String("organisation_id", ac.OrganisationID),
	)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// writeGateError keeps token and membership failures indistinguishable to
// the caller.
func writeGateError(ctx context.Context, w http.ResponseWriter, req service.Requirement, err error) {
	var fe *service.FeatureNotEntitledError
	switch {
	case errors.As(err, &fe):
		httpx.WriteFeatureNotEntitled(w, string(fe.Feature), string(fe.RequiredTier))
	case errors.Is(err, service.ErrInsufficientRole):
		httpx.WriteInsufficientRole(w, string(req.Role))
	case errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrTokenInvalid),
		errors.Is(err, service.ErrNotAMember):
		httpx.WriteBearerError(w)
	default:
		slogx.FromContext(ctx).Error("authorization failed", slog.Any("error", err))
		authsdk.ErrServerError.WriteError(w)
	}
}
