package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/finsightai/finsight/internal/auth/metrics"
	"github.com/finsightai/finsight/pkg/slogx"
)

// Requirement is what a route asks of the caller. Zero values ask nothing.
type Requirement struct {
	Role    domain.Role
	Feature domain.Feature
	// Fresh re-reads the role from the registry instead of trusting the
	// token, so a downgrade applies to sensitive operations at once.
	Fresh bool
}

// AuthContext is the outcome of a successful authorization.
type AuthContext struct {
	UserID         string
	OrganisationID string
	Role           domain.Role
	// Tier is the ledger's tier when a feature was checked, otherwise the
	// token's claim.
	Tier      domain.Tier
	FamilyID  string
	ExpiresAt time.Time
}

// AuthorizationGate turns an access token and a Requirement into an
// AuthContext or a single typed rejection. It owns no state.
type AuthorizationGate struct {
	Tokens      *TokenService
	Memberships *MembershipRegistry
	Ledger      *SubscriptionLedger
	// Grace tolerates access tokens that expired this recently. Anything
	// older is rejected; refreshing is up to the client.
	Grace time.Duration
}

func (g *AuthorizationGate) Authorize(ctx context.Context, accessToken string, req Requirement) (AuthContext, error) {
	ac, err := g.authorize(ctx, accessToken, req)

	result := "allowed"
	switch {
	case err == nil:
	case errors.Is(err, ErrFeatureNotEntitled):
		result = "feature_not_entitled"
	case errors.Is(err, ErrInsufficientRole):
		result = "insufficient_role"
	case errors.Is(err, ErrNotAMember):
		result = "not_a_member"
	case errors.Is(err, ErrTokenExpired):
		result = "token_expired"
	case errors.Is(err, ErrTokenInvalid):
		result = "token_invalid"
	default:
		result = "error"
	}
	metrics.AuthorizationDecisionsTotal.WithLabelValues(result).Inc()
	return ac, err
}

func (g *AuthorizationGate) authorize(ctx context.Context, accessToken string, req Requirement) (AuthContext, error) {
	claims, err := g.Tokens.VerifyAccessWithin(accessToken, g.Grace)
	if err != nil {
		return AuthContext{}, err
	}

	ac := AuthContext{
		UserID:         claims.Subject,
		OrganisationID: claims.OrganisationID,
		Role:           domain.Role(claims.Role),
		Tier:           domain.Tier(claims.Tier),
		FamilyID:       claims.SID,
		ExpiresAt:      claims.Expiry(),
	}

	if req.Fresh {
		role, err := g.Memberships.RoleOf(ctx, ac.UserID, ac.OrganisationID)
		if err != nil {
			return AuthContext{}, err
		}
		ac.Role = role
	}

	if req.Role != "" && !ac.Role.AtLeast(req.Role) {
		slogx.FromContext(ctx).Debug("insufficient role",
			slog.String("user_id", ac.UserID),
			slog.String("organisation_id", ac.OrganisationID),
			slog.String("role", string(ac.Role)),
			slog.String("required", string(req.Role)),
		)
		return AuthContext{}, ErrInsufficientRole
	}

	if req.Feature != "" {
		// Billable features never trust the tier claim.
		ent, err := g.Ledger.CurrentEntitlement(ctx, ac.OrganisationID)
		if errors.Is(err, ErrNoSubscription) {
			return AuthContext{}, notEntitled(req.Feature)
		}
		if err != nil {
			return AuthContext{}, err
		}
		ac.Tier = ent.Tier
		if !ent.Allows(req.Feature) {
			return AuthContext{}, notEntitled(req.Feature)
		}
	}

	return ac, nil
}
