package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/finsightai/finsight/internal/auth/metrics"
	"github.com/finsightai/finsight/internal/auth/store"
	"github.com/finsightai/finsight/pkg/cryptox"
	"github.com/finsightai/finsight/pkg/idx"
	"github.com/finsightai/finsight/pkg/jwtx"
	"github.com/finsightai/finsight/pkg/slogx"
)

// TokenService issues short-lived signed access tokens and rotating opaque
// refresh tokens. Access tokens are verified without touching the store;
// refresh tokens exist only as fingerprints.
type TokenService struct {
	Store       store.Store
	Keys        *jwtx.KeyManager
	Memberships *MembershipRegistry
	Ledger      *SubscriptionLedger
	Issuer      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	Clock       Clock
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL <= 0 {
		return jwtx.DefaultAccessTokenTTL
	}
	return s.AccessTTL
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL <= 0 {
		return jwtx.DefaultRefreshTokenTTL
	}
	return s.RefreshTTL
}

// IssueInitialPair starts a new refresh family for user in organisationID.
func (s *TokenService) IssueInitialPair(ctx context.Context, user domain.User, organisationID string) (domain.TokenPair, error) {
	var pair domain.TokenPair
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		pair, err = s.issue(ctx, tx, user, organisationID, idx.New().String(), s.Clock.now())
		return err
	})
	metrics.TokenOperationsTotal.WithLabelValues("issue", metrics.Result(err)).Inc()
	if err != nil {
		return domain.TokenPair{}, err
	}
	return pair, nil
}

// Refresh rotates refreshOpaque. Presenting a token that was already rotated
// or revoked is treated as theft: the whole family is revoked and the call
// fails with ErrTokenReuseDetected.
func (s *TokenService) Refresh(ctx context.Context, refreshOpaque string) (domain.TokenPair, error) {
	pair, err := s.refresh(ctx, refreshOpaque)
	result := "ok"
	if err != nil {
		result = errorLabel(err)
	}
	metrics.TokenOperationsTotal.WithLabelValues("refresh", result).Inc()
	return pair, err
}

func (s *TokenService) refresh(ctx context.Context, refreshOpaque string) (domain.TokenPair, error) {
	refreshOpaque = strings.TrimSpace(refreshOpaque)
	if refreshOpaque == "" {
		return domain.TokenPair{}, ErrTokenUnknown
	}

	now := s.Clock.now()
	fp := cryptox.FingerprintToken(refreshOpaque)

	var (
		pair domain.TokenPair
		// failure is returned after the family revocation has committed.
		failure error
	)

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		rt, err := tx.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTokenUnknown
			}
			return err
		}

		if rt.Revoked() {
			failure = ErrTokenReuseDetected
			return s.revokeFamily(ctx, tx, rt, now, "reuse")
		}
		if rt.ExpiredAt(now) {
			return ErrTokenExpired
		}

		// Only one caller can flip revoked_at; the loser of a race lands here.
		ok, err := tx.RefreshTokens().RevokeRefreshToken(ctx, rt.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			failure = ErrTokenReuseDetected
			return s.revokeFamily(ctx, tx, rt, now, "reuse")
		}

		user, err := tx.Users().GetUserByID(ctx, rt.UserID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if !user.Active() {
			failure = ErrTokenInvalid
			return s.revokeFamily(ctx, tx, rt, now, "user_disabled")
		}

		pair, err = s.issue(ctx, tx, user, rt.OrganisationID, rt.FamilyID, now)
		if errors.Is(err, ErrNotAMember) {
			failure = ErrNotAMember
			return s.revokeFamily(ctx, tx, rt, now, "membership_removed")
		}
		return err
	})
	if err != nil {
		return domain.TokenPair{}, err
	}
	if failure != nil {
		return domain.TokenPair{}, failure
	}
	return pair, nil
}

// VerifyAccess checks signature, algorithm, key id, issuer and expiry. It
// never reads the store.
func (s *TokenService) VerifyAccess(accessToken string) (jwtx.Claims, error) {
	return s.verifyWith(s.Keys.Verifier(), accessToken)
}

// VerifyAccessWithin is VerifyAccess tolerating tokens expired by at most
// grace.
func (s *TokenService) VerifyAccessWithin(accessToken string, grace time.Duration) (jwtx.Claims, error) {
	return s.verifyWith(s.Keys.Verifier().WithLeeway(grace), accessToken)
}

func (s *TokenService) verifyWith(v *jwtx.Verifier, accessToken string) (jwtx.Claims, error) {
	claims, err := v.Verify(accessToken)
	if err != nil {
		if errors.Is(err, jwtx.ErrExpired) {
			return jwtx.Claims{}, ErrTokenExpired
		}
		return jwtx.Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Subject == "" || claims.OrganisationID == "" {
		return jwtx.Claims{}, fmt.Errorf("%w: missing subject or organisation", ErrTokenInvalid)
	}
	if _, ok := domain.ParseRole(claims.Role); !ok {
		return jwtx.Claims{}, fmt.Errorf("%w: unknown role", ErrTokenInvalid)
	}
	return claims, nil
}

// Reasons recorded when a family is revoked outside a refresh.
const (
	RevokeReasonLogout = "logout"
	RevokeReasonSwitch = "organisation_switch"
)

// RevokeFamily revokes every live refresh token in the family. reason
// labels the revocation metric and log line.
func (s *TokenService) RevokeFamily(ctx context.Context, familyID, reason string) error {
	n, err := s.Store.RefreshTokens().RevokeRefreshTokenFamily(ctx, familyID, s.Clock.now())
	if err != nil {
		return err
	}
	metrics.TokenFamiliesRevokedTotal.WithLabelValues(reason).Inc()
	slogx.FromContext(ctx).Info("refresh token family revoked",
		slog.String("family_id", familyID),
		slog.String("reason", reason),
		slog.Int64("revoked", n),
	)
	return nil
}

// Logout revokes the family of refreshOpaque. Unknown tokens are ignored so
// logout cannot be used to probe for valid tokens.
func (s *TokenService) Logout(ctx context.Context, refreshOpaque string) error {
	refreshOpaque = strings.TrimSpace(refreshOpaque)
	if refreshOpaque == "" {
		return nil
	}
	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(refreshOpaque))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.RevokeFamily(ctx, rt.FamilyID, RevokeReasonLogout)
}

// SwitchOrganisation issues a pair for another organisation the user
// belongs to. When currentRefresh belongs to the same user its family is
// revoked.
func (s *TokenService) SwitchOrganisation(ctx context.Context, userID, organisationID, currentRefresh string) (domain.TokenPair, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrTokenInvalid
		}
		return domain.TokenPair{}, err
	}
	if !user.Active() {
		return domain.TokenPair{}, ErrTokenInvalid
	}

	pair, err := s.IssueInitialPair(ctx, user, organisationID)
	if err != nil {
		return domain.TokenPair{}, err
	}

	if currentRefresh = strings.TrimSpace(currentRefresh); currentRefresh != "" {
		rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(currentRefresh))
		switch {
		case err == nil && rt.UserID == userID:
			if err := s.RevokeFamily(ctx, rt.FamilyID, RevokeReasonSwitch); err != nil {
				return domain.TokenPair{}, err
			}
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return domain.TokenPair{}, err
		}
	}
	return pair, nil
}

// issue reads role and tier through tx, stores a new refresh token in
// familyID and signs the access token.
func (s *TokenService) issue(
	ctx context.Context,
	tx store.Tx,
	user domain.User,
	organisationID string,
	familyID string,
	now time.Time,
) (domain.TokenPair, error) {
	role, err := s.Memberships.In(tx).RoleOf(ctx, user.ID, organisationID)
	if err != nil {
		return domain.TokenPair{}, err
	}

	// The tier claim is only a hint; it is left empty when nothing is
	// entitled so lower-stakes checks cannot trust a canceled plan.
	var tier domain.Tier
	ent, err := s.Ledger.In(tx).CurrentEntitlement(ctx, organisationID)
	switch {
	case err == nil && ent.Status.Entitled():
		tier = ent.Tier
	case err != nil && !errors.Is(err, ErrNoSubscription):
		return domain.TokenPair{}, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.TokenPair{}, err
	}

	rt := domain.RefreshToken{
		ID:             idx.New().String(),
		FamilyID:       familyID,
		UserID:         user.ID,
		OrganisationID: organisationID,
		TokenHash:      cryptox.FingerprintToken(refreshOpaque),
		IssuedAt:       now,
		ExpiresAt:      now.Add(s.refreshTTL()),
	}
	if err := tx.RefreshTokens().CreateRefreshToken(ctx, rt); err != nil {
		return domain.TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	claims := jwtx.NewAccessClaims(jwtx.AccessClaimsParams{
		Subject:        user.ID,
		OrganisationID: organisationID,
		Role:           string(role),
		Tier:           string(tier),
		SessionID:      familyID,
		Issuer:         s.Issuer,
		TTL:            s.accessTTL(),
		Now:            now,
	})
	access, err := s.Keys.Sign(claims)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refreshOpaque,
		TokenType:        "Bearer",
		ExpiresIn:        s.accessTTL(),
		RefreshExpiresIn: s.refreshTTL(),
		FamilyID:         familyID,
		OrganisationID:   organisationID,
		Role:             role,
		Tier:             tier,
	}, nil
}

func (s *TokenService) revokeFamily(ctx context.Context, tx store.Tx, rt domain.RefreshToken, now time.Time, reason string) error {
	n, err := tx.RefreshTokens().RevokeRefreshTokenFamily(ctx, rt.FamilyID, now)
	if err != nil {
		return fmt.Errorf("revoke family: %w", err)
	}
	metrics.TokenFamiliesRevokedTotal.WithLabelValues(reason).Inc()

	l := slogx.FromContext(ctx)
	attrs := []any{
		slog.String("family_id", rt.FamilyID),
		slog.String("user_id", rt.UserID),
		slog.String("organisation_id", rt.OrganisationID),
		slog.String("reason", reason),
		slog.Int64("revoked", n),
	}
	if reason == "reuse" {
		l.Warn("refresh token reuse detected, family revoked", attrs...)
	} else {
		l.Info("refresh token family revoked", attrs...)
	}
	return nil
}

func errorLabel(err error) string {
	for _, e := range []error{
		ErrTokenUnknown, ErrTokenExpired, ErrTokenReuseDetected, ErrTokenInvalid, ErrNotAMember,
	} {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return "error"
}
