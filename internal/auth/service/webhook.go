package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/finsightai/finsight/internal/auth/metrics"
	"github.com/finsightai/finsight/internal/auth/store"
	"github.com/finsightai/finsight/pkg/slogx"
)

// EventAuthenticator turns a raw billing provider delivery into a
// BillingEvent.
type EventAuthenticator interface {
	// PeekEventID reads the event id without verifying anything.
	PeekEventID(payload []byte) (string, error)
	// Authenticate verifies the signature and decodes the event. handled is
	// false for event types that do not affect entitlements.
	Authenticate(payload []byte, signature string) (ev domain.BillingEvent, handled bool, err error)
}

// MapBillingStatus maps a provider subscription status to the local one.
func MapBillingStatus(external string) (domain.SubscriptionStatus, bool) {
	switch external {
	case "trialing":
		return domain.StatusTrialing, true
	case "active":
		return domain.StatusActive, true
	case "past_due", "incomplete":
		return domain.StatusPastDue, true
	case "canceled", "unpaid", "incomplete_expired", "paused":
		return domain.StatusCanceled, true
	}
	return "", false
}

// WebhookReconciler applies billing events to the ledger at most once per
// event id, and never lets an older event overwrite a newer record.
type WebhookReconciler struct {
	Store  store.Store
	Ledger *SubscriptionLedger
	Auth   EventAuthenticator
	Clock  Clock
}

// Apply handles one delivery. A nil error means the sender should stop
// retrying; that includes duplicates and stale events.
func (r *WebhookReconciler) Apply(ctx context.Context, payload []byte, signature string) (domain.WebhookOutcome, error) {
	outcome, err := r.apply(ctx, payload, signature)
	label := string(outcome)
	switch {
	case errors.Is(err, ErrWebhookUnauthenticated):
		label = "unauthenticated"
	case err != nil:
		label = "failed"
	}
	metrics.WebhookEventsTotal.WithLabelValues(label).Inc()
	return outcome, err
}

func (r *WebhookReconciler) apply(ctx context.Context, payload []byte, signature string) (domain.WebhookOutcome, error) {
	l := slogx.FromContext(ctx)

	id, err := r.Auth.PeekEventID(payload)
	if err != nil || id == "" {
		return "", fmt.Errorf("%w: unreadable payload", ErrWebhookUnauthenticated)
	}
	l = l.With(slog.String("event_id", id))

	// Redeliveries of processed events are answered before any crypto.
	switch existing, err := r.Store.WebhookEvents().GetWebhookEvent(ctx, id); {
	case err == nil && existing.Processed():
		l.Debug("duplicate webhook delivery")
		return domain.OutcomeDuplicate, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return "", err
	}

	ev, handled, err := r.Auth.Authenticate(payload, signature)
	if err != nil {
		l.Warn("webhook signature verification failed", slog.Any("error", err))
		return "", fmt.Errorf("%w: %v", ErrWebhookUnauthenticated, err)
	}
	// The signed id wins over the peeked one.
	id = ev.ExternalEventID

	now := r.Clock.now()
	receipt := domain.WebhookEvent{ExternalEventID: id, Type: ev.Type, ReceivedAt: now}
	if err := r.Store.WebhookEvents().RecordWebhookReceipt(ctx, receipt); err != nil {
		return "", fmt.Errorf("record webhook receipt: %w", err)
	}

	if !handled {
		if err := r.Store.WebhookEvents().MarkWebhookProcessed(ctx, id, now); err != nil {
			return "", err
		}
		l.Debug("webhook event ignored", slog.String("type", ev.Type))
		return domain.OutcomeIgnored, nil
	}

	var outcome domain.WebhookOutcome
	err = r.Store.WithTx(ctx, func(tx store.Tx) error {
		claimed, err := tx.WebhookEvents().ClaimWebhookEvent(ctx, receipt)
		if err != nil {
			return err
		}
		if !claimed {
			outcome = domain.OutcomeDuplicate
			return nil
		}

		outcome, err = r.reconcile(ctx, tx, ev)
		if err != nil {
			return err
		}
		return tx.WebhookEvents().MarkWebhookProcessed(ctx, id, now)
	})
	if err != nil {
		// Left unprocessed so the provider's retry can succeed later.
		if recErr := r.Store.WebhookEvents().RecordWebhookError(ctx, id, err.Error()); recErr != nil && !errors.Is(recErr, store.ErrNotFound) {
			l.Error("failed to record webhook error", slog.Any("error", recErr))
		}
		l.Error("webhook processing failed",
			slog.String("type", ev.Type),
			slog.String("organisation_id", ev.OrganisationID),
			slog.Any("error", err),
		)
		return "", err
	}

	l.Info("webhook event reconciled",
		slog.String("type", ev.Type),
		slog.String("organisation_id", ev.OrganisationID),
		slog.String("outcome", string(outcome)),
	)
	return outcome, nil
}

// reconcile runs inside the claim transaction.
func (r *WebhookReconciler) reconcile(ctx context.Context, tx store.Tx, ev domain.BillingEvent) (domain.WebhookOutcome, error) {
	if ev.OrganisationID == "" && ev.ExternalSubscriptionID != "" {
		// Invoice events only name the provider subscription.
		rec, err := tx.Subscriptions().GetCurrentSubscriptionByExternalID(ctx, ev.ExternalSubscriptionID)
		switch {
		case err == nil:
			ev.OrganisationID = rec.OrganisationID
		case !errors.Is(err, store.ErrNotFound):
			return "", err
		}
	}
	if ev.OrganisationID == "" {
		return "", fmt.Errorf("%w: event carries no organisation reference", ErrUnknownOrganisation)
	}
	// Serialises concurrent deliveries for the same organisation.
	if _, err := tx.Organisations().LockOrganisation(ctx, ev.OrganisationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrUnknownOrganisation, ev.OrganisationID)
		}
		return "", err
	}

	status, ok := MapBillingStatus(ev.Status)
	if !ok {
		return "", invalidInput("unknown billing status %q", ev.Status)
	}

	ledger := r.Ledger.In(tx)
	tier := ev.Tier
	current, err := ledger.Current(ctx, ev.OrganisationID)
	switch {
	case err == nil:
		if ev.ObjectVersion < current.ObjectVersion {
			slogx.FromContext(ctx).Warn("stale webhook event discarded",
				slog.String("event_id", ev.ExternalEventID),
				slog.String("organisation_id", ev.OrganisationID),
				slog.Int64("event_version", ev.ObjectVersion),
				slog.Int64("current_version", current.ObjectVersion),
				slog.Any("reason", ErrWebhookStaleEvent),
			)
			return domain.OutcomeStale, nil
		}
		// Provider timestamps have one-second resolution, so a cancellation
		// and a later-sent update can share a version. Cancellation wins.
		if current.Status == domain.StatusCanceled && status != domain.StatusCanceled &&
			current.ExternalSubscriptionID != "" && current.ExternalSubscriptionID == ev.ExternalSubscriptionID {
			slogx.FromContext(ctx).Warn("update for canceled subscription discarded",
				slog.String("event_id", ev.ExternalEventID),
				slog.String("organisation_id", ev.OrganisationID),
				slog.String("external_subscription_id", ev.ExternalSubscriptionID),
				slog.String("status", string(status)),
			)
			return domain.OutcomeStale, nil
		}
		if tier == "" {
			tier = current.Tier
		}
		if ev.CurrentPeriodEnd == nil {
			ev.CurrentPeriodEnd = current.CurrentPeriodEnd
		}
	case !errors.Is(err, ErrNoSubscription):
		return "", err
	}
	if !tier.Valid() {
		return "", invalidInput("event carries no usable tier")
	}

	_, err = ledger.Replace(ctx, ev.OrganisationID, domain.SubscriptionRecord{
		Tier:                   tier,
		Status:                 status,
		ExternalSubscriptionID: ev.ExternalSubscriptionID,
		CurrentPeriodEnd:       ev.CurrentPeriodEnd,
		ObjectVersion:          ev.ObjectVersion,
	})
	if err != nil {
		return "", err
	}
	return domain.OutcomeApplied, nil
}
