// Package billing adapts Stripe webhook deliveries to domain billing events.
package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// Metadata keys set on checkout sessions and subscriptions when they are
// created.
const (
	MetadataOrganisationID = "organisation_id"
	MetadataTier           = "tier"
)

// SignatureHeader carries the Stripe signature of a delivery.
const SignatureHeader = "Stripe-Signature"

var ErrNotConfigured = errors.New("billing: webhook secret not configured")

// StripeAuthenticator verifies Stripe-Signature headers with the endpoint's
// signing secret.
type StripeAuthenticator struct {
	Secret string
	// Tolerance bounds the age of a signed timestamp. Zero uses the
	// library default of five minutes.
	Tolerance time.Duration
}

func NewStripeAuthenticator(secret string) *StripeAuthenticator {
	return &StripeAuthenticator{Secret: secret}
}

// PeekEventID reads the id field without verifying the payload.
func (a *StripeAuthenticator) PeekEventID(payload []byte) (string, error) {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return "", fmt.Errorf("decode event id: %w", err)
	}
	return head.ID, nil
}

// Authenticate verifies the signature and reduces the event to a
// domain.BillingEvent. Events that do not change entitlements come back
// with handled false.
func (a *StripeAuthenticator) Authenticate(payload []byte, signature string) (domain.BillingEvent, bool, error) {
	if a.Secret == "" {
		return domain.BillingEvent{}, false, ErrNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, a.Secret, webhook.ConstructEventOptions{
		Tolerance:                a.Tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.BillingEvent{}, false, err
	}

	ev := domain.BillingEvent{
		ExternalEventID: event.ID,
		Type:            string(event.Type),
		ObjectVersion:   event.Created,
	}
	if event.Data == nil {
		return ev, false, nil
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return domain.BillingEvent{}, false, fmt.Errorf("decode checkout session: %w", err)
		}
		ev.OrganisationID = session.Metadata[MetadataOrganisationID]
		ev.Tier = domain.Tier(session.Metadata[MetadataTier])
		ev.Status = string(stripe.SubscriptionStatusActive)
		if session.Subscription != nil {
			ev.ExternalSubscriptionID = session.Subscription.ID
		}
		return ev, true, nil

	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return domain.BillingEvent{}, false, fmt.Errorf("decode subscription: %w", err)
		}
		ev.OrganisationID = sub.Metadata[MetadataOrganisationID]
		ev.Tier = domain.Tier(sub.Metadata[MetadataTier])
		ev.ExternalSubscriptionID = sub.ID
		ev.Status = string(sub.Status)
		if event.Type == stripe.EventTypeCustomerSubscriptionDeleted {
			ev.Status = string(stripe.SubscriptionStatusCanceled)
		}
		if sub.CurrentPeriodEnd > 0 {
			end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			ev.CurrentPeriodEnd = &end
		}
		return ev, true, nil

	case stripe.EventTypeInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return domain.BillingEvent{}, false, fmt.Errorf("decode invoice: %w", err)
		}
		// One-off invoices have no subscription to degrade.
		if inv.Subscription == nil || inv.Subscription.ID == "" {
			return ev, false, nil
		}
		// The organisation is resolved from the stored subscription id.
		ev.ExternalSubscriptionID = inv.Subscription.ID
		ev.Status = string(stripe.SubscriptionStatusPastDue)
		return ev, true, nil
	}

	return ev, false, nil
}
