package billing_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/finsightai/finsight/internal/auth/billing"
	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/finsightai/finsight/internal/auth/service"
	"github.com/finsightai/finsight/internal/auth/store"
	"github.com/finsightai/finsight/internal/auth/store/drivers/sqlite"
	"github.com/finsightai/finsight/pkg/idx"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"
)

const secret = "whsec_test_secret"

type object map[string]any

func event(t *testing.T, id, typ string, created int64, obj object) []byte {
	t.Helper()
	b, err := json.Marshal(object{
		"id":          id,
		"object":      "event",
		"type":        typ,
		"created":     created,
		"api_version": "2020-08-27",
		"data":        object{"object": obj},
	})
	require.NoError(t, err)
	return b
}

func sign(payload []byte, secret string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func subscription(orgID, tier, status string) object {
	return object{
		"id":                 "sub_123",
		"object":             "subscription",
		"status":             status,
		"current_period_end": 1775000000,
		"metadata": object{
			billing.MetadataOrganisationID: orgID,
			billing.MetadataTier:           tier,
		},
	}
}

func TestAuthenticate_SubscriptionUpdated(t *testing.T) {
	auth := billing.NewStripeAuthenticator(secret)
	payload := event(t, "evt_1", "customer.subscription.updated", 1772366400,
		subscription("org_1", "professional", "past_due"))

	ev, handled, err := auth.Authenticate(payload, sign(payload, secret))
	require.NoError(t, err)
	require.True(t, handled)
	require.Equal(t, "evt_1", ev.ExternalEventID)
	require.Equal(t, "customer.subscription.updated", ev.Type)
	require.Equal(t, int64(1772366400), ev.ObjectVersion)
	require.Equal(t, "org_1", ev.OrganisationID)
	require.Equal(t, domain.TierProfessional, ev.Tier)
	require.Equal(t, "past_due", ev.Status)
	require.Equal(t, "sub_123", ev.ExternalSubscriptionID)
	require.NotNil(t, ev.CurrentPeriodEnd)
	require.Equal(t, int64(1775000000), ev.CurrentPeriodEnd.Unix())
}

func TestAuthenticate_SubscriptionDeletedIsCanceled(t *testing.T) {
	auth := billing.NewStripeAuthenticator(secret)
	payload := event(t, "evt_2", "customer.subscription.deleted", 1772366400,
		subscription("org_1", "", "active"))

	ev, handled, err := auth.Authenticate(payload, sign(payload, secret))
	require.NoError(t, err)
	require.True(t, handled)
	require.Equal(t, "canceled", ev.Status)
	require.Empty(t, ev.Tier)
}

func TestAuthenticate_CheckoutCompleted(t *testing.T) {
	auth := billing.NewStripeAuthenticator(secret)
	payload := event(t, "evt_3", "checkout.session.completed", 1772366400, object{
		"id":           "cs_test_1",
		"object":       "checkout.session",
		"subscription": "sub_999",
		"metadata": object{
			billing.MetadataOrganisationID: "org_9",
			billing.MetadataTier:           "enterprise",
		},
	})

	ev, handled, err := auth.Authenticate(payload, sign(payload, secret))
	require.NoError(t, err)
	require.True(t, handled)
	require.Equal(t, "org_9", ev.OrganisationID)
	require.Equal(t, domain.TierEnterprise, ev.Tier)
	require.Equal(t, "active", ev.Status)
	require.Equal(t, "sub_999", ev.ExternalSubscriptionID)
}

func TestAuthenticate_UnhandledType(t *testing.T) {
	auth := billing.NewStripeAuthenticator(secret)
	payload := event(t, "evt_4", "invoice.created", 1772366400, object{"id": "in_1", "object": "invoice"})

	ev, handled, err := auth.Authenticate(payload, sign(payload, secret))
	require.NoError(t, err)
	require.False(t, handled)
	require.Equal(t, "evt_4", ev.ExternalEventID)
	require.Equal(t, "invoice.created", ev.Type)
}

func TestAuthenticate_InvoicePaymentFailed(t *testing.T) {
	auth := billing.NewStripeAuthenticator(secret)
	payload := event(t, "evt_6", "invoice.payment_failed", 1772366400, object{
		"id":           "in_1",
		"object":       "invoice",
		"subscription": "sub_123",
	})

	ev, handled, err := auth.Authenticate(payload, sign(payload, secret))
	require.NoError(t, err)
	require.True(t, handled)
	require.Equal(t, "past_due", ev.Status)
	require.Equal(t, "sub_123", ev.ExternalSubscriptionID)
	require.Empty(t, ev.OrganisationID)
	require.Empty(t, ev.Tier)

	oneOff := event(t, "evt_7", "invoice.payment_failed", 1772366400, object{"id": "in_2", "object": "invoice"})
	_, handled, err = auth.Authenticate(oneOff, sign(oneOff, secret))
	require.NoError(t, err)
	require.False(t, handled)
}

func TestAuthenticate_Rejects(t *testing.T) {
	auth := billing.NewStripeAuthenticator(secret)
	payload := event(t, "evt_5", "customer.subscription.updated", 1772366400,
		subscription("org_1", "enterprise", "active"))

	tests := []struct {
		name      string
		payload   []byte
		signature string
	}{
		{"wrong secret", payload, sign(payload, "whsec_other")},
		{"missing header", payload, ""},
		{"garbage header", payload, "t=1,v1=deadbeef"},
		{"tampered body", append([]byte(nil), payload[:len(payload)-1]...), sign(payload, secret)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := auth.Authenticate(tt.payload, tt.signature)
			require.Error(t, err)
		})
	}

	_, _, err := billing.NewStripeAuthenticator("").Authenticate(payload, sign(payload, secret))
	require.ErrorIs(t, err, billing.ErrNotConfigured)
}

func TestPeekEventID(t *testing.T) {
	auth := billing.NewStripeAuthenticator(secret)

	id, err := auth.PeekEventID([]byte(`{"id":"evt_peek","type":"x"}`))
	require.NoError(t, err)
	require.Equal(t, "evt_peek", id)

	_, err = auth.PeekEventID([]byte(`not json`))
	require.Error(t, err)
}

// TestReconcile_SignedDeliveries drives the reconciler with real signed
// payloads against the sqlite store.
func TestReconcile_SignedDeliveries(t *testing.T) {
	ctx := context.Background()
	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	now := time.Now().UTC()
	org := domain.Organisation{ID: idx.New().String(), Name: "Acme", Slug: "acme", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, st.Organisations().CreateOrganisation(ctx, org))

	ledger := &service.SubscriptionLedger{Store: st}
	_, err = ledger.StartTrial(ctx, org.ID)
	require.NoError(t, err)

	rec := &service.WebhookReconciler{
		Store:  st,
		Ledger: ledger,
		Auth:   billing.NewStripeAuthenticator(secret),
	}

	upgrade := event(t, "evt_up", "customer.subscription.updated", now.Unix(),
		subscription(org.ID, "enterprise", "active"))

	// A bad signature leaves nothing behind.
	_, err = rec.Apply(ctx, upgrade, sign(upgrade, "whsec_wrong"))
	require.ErrorIs(t, err, service.ErrWebhookUnauthenticated)
	_, err = st.WebhookEvents().GetWebhookEvent(ctx, "evt_up")
	require.ErrorIs(t, err, store.ErrNotFound)

	outcome, err := rec.Apply(ctx, upgrade, sign(upgrade, secret))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeApplied, outcome)

	outcome, err = rec.Apply(ctx, upgrade, sign(upgrade, secret))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeDuplicate, outcome)

	ent, err := ledger.CurrentEntitlement(ctx, org.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TierEnterprise, ent.Tier)
	require.Equal(t, domain.StatusActive, ent.Status)

	older := event(t, "evt_old", "customer.subscription.deleted", now.Add(-time.Hour).Unix(),
		subscription(org.ID, "enterprise", "canceled"))
	outcome, err = rec.Apply(ctx, older, sign(older, secret))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeStale, outcome)

	ent, err = ledger.CurrentEntitlement(ctx, org.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, ent.Status)
}

func newSignedReconciler(t *testing.T) (*service.WebhookReconciler, *service.SubscriptionLedger, domain.Organisation) {
	t.Helper()
	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	now := time.Now().UTC()
	org := domain.Organisation{ID: idx.New().String(), Name: "Acme", Slug: "acme", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, st.Organisations().CreateOrganisation(context.Background(), org))

	ledger := &service.SubscriptionLedger{Store: st}
	_, err = ledger.StartTrial(context.Background(), org.ID)
	require.NoError(t, err)

	return &service.WebhookReconciler{
		Store:  st,
		Ledger: ledger,
		Auth:   billing.NewStripeAuthenticator(secret),
	}, ledger, org
}

func TestReconcile_InvoicePaymentFailedMarksPastDue(t *testing.T) {
	ctx := context.Background()
	rec, ledger, org := newSignedReconciler(t)
	now := time.Now().Unix()

	up := event(t, "evt_up", "customer.subscription.updated", now,
		subscription(org.ID, "professional", "active"))
	_, err := rec.Apply(ctx, up, sign(up, secret))
	require.NoError(t, err)

	failed := event(t, "evt_fail", "invoice.payment_failed", now+5, object{
		"id":           "in_1",
		"object":       "invoice",
		"subscription": "sub_123",
	})
	outcome, err := rec.Apply(ctx, failed, sign(failed, secret))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeApplied, outcome)

	ent, err := ledger.CurrentEntitlement(ctx, org.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPastDue, ent.Status)
	require.Equal(t, domain.TierProfessional, ent.Tier)
	require.NotNil(t, ent.CurrentPeriodEnd)
	require.True(t, ent.Allows(domain.FeatureAIInsights))
}

// Stripe stamps events with whole seconds, so a deletion and an update sent
// in the same second carry the same version.
func TestReconcile_SameSecondUpdateCannotReviveCanceled(t *testing.T) {
	ctx := context.Background()
	rec, ledger, org := newSignedReconciler(t)
	now := time.Now().Unix()

	deleted := event(t, "evt_del", "customer.subscription.deleted", now,
		subscription(org.ID, "enterprise", "canceled"))
	outcome, err := rec.Apply(ctx, deleted, sign(deleted, secret))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeApplied, outcome)

	updated := event(t, "evt_upd", "customer.subscription.updated", now,
		subscription(org.ID, "enterprise", "active"))
	outcome, err = rec.Apply(ctx, updated, sign(updated, secret))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeStale, outcome)

	ent, err := ledger.CurrentEntitlement(ctx, org.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCanceled, ent.Status)
}
