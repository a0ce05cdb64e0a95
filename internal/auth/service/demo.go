package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/finsightai/finsight/internal/auth/metrics"
	"github.com/finsightai/finsight/internal/auth/store"
	"github.com/finsightai/finsight/pkg/cryptox"
	"github.com/finsightai/finsight/pkg/idx"
	"github.com/finsightai/finsight/pkg/slogx"
)

const DefaultDemoTokenTTL = 7 * 24 * time.Hour

// DemoNotifier delivers a demo token out of band, usually by email.
type DemoNotifier interface {
	SendDemoAccess(ctx context.Context, email, token string, expiresAt time.Time) error
}

// LogNotifier logs that a demo token was issued without its value. It is
// the notifier used when no mail transport is configured.
type LogNotifier struct{}

func (LogNotifier) SendDemoAccess(ctx context.Context, email, _ string, expiresAt time.Time) error {
	slogx.FromContext(ctx).Info("demo access issued",
		slog.String("email", email),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}

// DemoAccessGate issues single-use, email-scoped tokens for the read-only
// preview. A demo token is never exchangeable for a session.
type DemoAccessGate struct {
	Store    store.Store
	Notifier DemoNotifier
	TTL      time.Duration
	Clock    Clock
}

func (g *DemoAccessGate) ttl() time.Duration {
	if g.TTL <= 0 {
		return DefaultDemoTokenTTL
	}
	return g.TTL
}

// RequestAccess issues a token for email. An outstanding token for the same
// email is replaced, so at most one works at any time.
func (g *DemoAccessGate) RequestAccess(ctx context.Context, email string) (string, time.Time, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", time.Time{}, invalidInput("invalid email address")
	}

	now := g.Clock.now()
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", time.Time{}, err
	}
	rec := domain.DemoAccessToken{
		ID:        idx.New().String(),
		Email:     email,
		TokenHash: cryptox.FingerprintToken(token),
		ExpiresAt: now.Add(g.ttl()),
		CreatedAt: now,
	}

	var replaced int64
	err = g.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.DemoTokens().LockDemoEmail(ctx, email); err != nil {
			return err
		}
		var err error
		if replaced, err = tx.DemoTokens().DeleteOutstandingDemoTokens(ctx, email, now); err != nil {
			return err
		}
		return tx.DemoTokens().CreateDemoToken(ctx, rec)
	})
	metrics.DemoOperationsTotal.WithLabelValues("request", metrics.Result(err)).Inc()
	if err != nil {
		return "", time.Time{}, err
	}

	if g.Notifier != nil {
		if err := g.Notifier.SendDemoAccess(ctx, email, token, rec.ExpiresAt); err != nil {
			slogx.FromContext(ctx).Error("failed to deliver demo access", slog.Any("error", err))
		}
	}
	slogx.FromContext(ctx).Debug("demo token issued",
		slog.String("email", email),
		slog.Int64("replaced", replaced),
	)
	return token, rec.ExpiresAt, nil
}

// Verify redeems token exactly once.
func (g *DemoAccessGate) Verify(ctx context.Context, token string) (domain.DemoGrant, error) {
	grant, err := g.verify(ctx, token)
	result := "ok"
	switch {
	case errors.Is(err, ErrDemoTokenUnknown):
		result = "unknown"
	case errors.Is(err, ErrDemoTokenExpired):
		result = "expired"
	case errors.Is(err, ErrDemoTokenAlreadyUsed):
		result = "already_used"
	case err != nil:
		result = "error"
	}
	metrics.DemoOperationsTotal.WithLabelValues("verify", result).Inc()
	return grant, err
}

func (g *DemoAccessGate) verify(ctx context.Context, token string) (domain.DemoGrant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.DemoGrant{}, ErrDemoTokenUnknown
	}
	now := g.Clock.now()

	var grant domain.DemoGrant
	err := g.Store.WithTx(ctx, func(tx store.Tx) error {
		rec, err := tx.DemoTokens().GetDemoTokenByHash(ctx, cryptox.FingerprintToken(token))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrDemoTokenUnknown
			}
			return err
		}
		if rec.UsedAt != nil {
			return ErrDemoTokenAlreadyUsed
		}
		if !now.Before(rec.ExpiresAt) {
			return ErrDemoTokenExpired
		}

		ok, err := tx.DemoTokens().RedeemDemoToken(ctx, rec.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			// Lost a race with another redemption.
			return ErrDemoTokenAlreadyUsed
		}

		views, err := tx.DemoTokens().CountRedeemedDemoTokens(ctx, rec.Email)
		if err != nil {
			return err
		}
		grant = domain.DemoGrant{Email: rec.Email, ExpiresAt: rec.ExpiresAt, ViewCount: views}
		return nil
	})
	if err != nil {
		return domain.DemoGrant{}, err
	}
	return grant, nil
}
