package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/finsightai/finsight/internal/auth/store"
	"github.com/finsightai/finsight/pkg/idx"
)

// DefaultTrialPeriod is how long a new organisation's trial runs.
const DefaultTrialPeriod = 14 * 24 * time.Hour

// SubscriptionLedger holds each organisation's current subscription. Status
// and tier are separate: a canceled enterprise organisation keeps its tier
// for display but is entitled to nothing.
type SubscriptionLedger struct {
	Store       store.Store
	Clock       Clock
	TrialTier   domain.Tier
	TrialPeriod time.Duration
}

// In returns a ledger bound to tx.
func (l *SubscriptionLedger) In(tx store.Store) *SubscriptionLedger {
	c := *l
	c.Store = tx
	return &c
}

// CurrentEntitlement reads the current record. It is never cached.
func (l *SubscriptionLedger) CurrentEntitlement(ctx context.Context, organisationID string) (domain.Entitlement, error) {
	rec, err := l.Store.Subscriptions().GetCurrentSubscription(ctx, organisationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Entitlement{}, ErrNoSubscription
		}
		return domain.Entitlement{}, err
	}
	return domain.Entitlement{
		OrganisationID:   rec.OrganisationID,
		Tier:             rec.Tier,
		Status:           rec.Status,
		CurrentPeriodEnd: rec.CurrentPeriodEnd,
	}, nil
}

// Current returns the full current record, including its object version.
func (l *SubscriptionLedger) Current(ctx context.Context, organisationID string) (domain.SubscriptionRecord, error) {
	rec, err := l.Store.Subscriptions().GetCurrentSubscription(ctx, organisationID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.SubscriptionRecord{}, ErrNoSubscription
	}
	return rec, err
}

func (l *SubscriptionLedger) FeatureAllowed(t domain.Tier, f domain.Feature) bool {
	return domain.FeatureAllowed(t, f)
}

func (l *SubscriptionLedger) LimitFor(t domain.Tier, lim domain.Limit) (int, bool) {
	return domain.LimitFor(t, lim)
}

func (l *SubscriptionLedger) RequiredTier(f domain.Feature) domain.Tier {
	return domain.RequiredTier(f)
}

// Replace makes rec the organisation's current record, superseding the
// previous one in the same transaction. Two current records can never be
// observed.
func (l *SubscriptionLedger) Replace(ctx context.Context, organisationID string, rec domain.SubscriptionRecord) (domain.SubscriptionRecord, error) {
	if !rec.Tier.Valid() {
		return domain.SubscriptionRecord{}, invalidInput("unknown tier %q", rec.Tier)
	}
	if !rec.Status.Valid() {
		return domain.SubscriptionRecord{}, invalidInput("unknown status %q", rec.Status)
	}

	now := l.Clock.now()
	if rec.ID == "" {
		rec.ID = idx.New().String()
	}
	rec.OrganisationID = organisationID
	rec.CreatedAt = now
	rec.SupersededAt = nil

	err := inTx(ctx, l.Store, func(tx store.Tx) error {
		if _, err := tx.Subscriptions().SupersedeCurrentSubscription(ctx, organisationID, now); err != nil {
			return fmt.Errorf("supersede subscription: %w", err)
		}
		if err := tx.Subscriptions().CreateSubscription(ctx, rec); err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.SubscriptionRecord{}, err
	}
	return rec, nil
}

// StartTrial gives a new organisation its first record.
func (l *SubscriptionLedger) StartTrial(ctx context.Context, organisationID string) (domain.SubscriptionRecord, error) {
	tier := l.TrialTier
	if tier == "" {
		tier = domain.TierEssentials
	}
	period := l.TrialPeriod
	if period <= 0 {
		period = DefaultTrialPeriod
	}
	end := l.Clock.now().Add(period)
	return l.Replace(ctx, organisationID, domain.SubscriptionRecord{
		Tier:             tier,
		Status:           domain.StatusTrialing,
		CurrentPeriodEnd: &end,
	})
}

// History returns every record for the organisation, newest first.
func (l *SubscriptionLedger) History(ctx context.Context, organisationID string) ([]domain.SubscriptionRecord, error) {
	return l.Store.Subscriptions().ListSubscriptionHistory(ctx, organisationID)
}
