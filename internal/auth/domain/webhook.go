package domain

import "time"

// WebhookEvent is the dedup record for one billing provider delivery.
type WebhookEvent struct {
	ExternalEventID string
	Type            string
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
	LastError       string
}

func (e WebhookEvent) Processed() bool { return e.ProcessedAt != nil }

// BillingEvent is a provider event reduced to the fields the ledger needs.
// Status is still the provider's vocabulary.
type BillingEvent struct {
	ExternalEventID        string
	Type                   string
	ObjectVersion          int64
	OrganisationID         string
	ExternalSubscriptionID string
	Status                 string
	Tier                   Tier
	CurrentPeriodEnd       *time.Time
}

// WebhookOutcome says what Apply did with a delivery.
type WebhookOutcome string

const (
	OutcomeApplied   WebhookOutcome = "applied"
	OutcomeDuplicate WebhookOutcome = "duplicate"
	OutcomeStale     WebhookOutcome = "stale"
	OutcomeIgnored   WebhookOutcome = "ignored"
)
