package domain

import (
	"slices"
	"time"
)

type Tier string

const (
	TierEssentials   Tier = "essentials"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// Tiers lists tiers from lowest to highest.
var Tiers = []Tier{TierEssentials, TierProfessional, TierEnterprise}

func (t Tier) Valid() bool { return slices.Contains(Tiers, t) }

func ParseTier(s string) (Tier, bool) {
	t := Tier(s)
	return t, t.Valid()
}

type SubscriptionStatus string

const (
	StatusTrialing SubscriptionStatus = "trialing"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue, StatusCanceled:
		return true
	}
	return false
}

// Entitled reports whether an organisation in this status may use its
// tier's features. past_due is a grace period and still entitled.
func (s SubscriptionStatus) Entitled() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue:
		return true
	}
	return false
}

// SubscriptionRecord is one version of an organisation's plan. At most one
// record per organisation has a nil SupersededAt.
type SubscriptionRecord struct {
	ID                     string
	OrganisationID         string
	Tier                   Tier
	Status                 SubscriptionStatus
	ExternalSubscriptionID string
	CurrentPeriodEnd       *time.Time
	// ObjectVersion orders updates from the billing provider. Updates with a
	// lower version than the current record are stale.
	ObjectVersion int64
	CreatedAt     time.Time
	SupersededAt  *time.Time
}

func (r SubscriptionRecord) Current() bool { return r.SupersededAt == nil }

// Entitlement is the (tier, status) pair the gate decides on.
type Entitlement struct {
	OrganisationID   string
	Tier             Tier
	Status           SubscriptionStatus
	CurrentPeriodEnd *time.Time
}

func (e Entitlement) Allows(f Feature) bool {
	return e.Status.Entitled() && FeatureAllowed(e.Tier, f)
}

type Feature string

const (
	FeatureCSVUpload           Feature = "csv_upload"
	FeatureERPIntegration      Feature = "erp_integration"
	FeatureScenarioPlanning    Feature = "scenario_planning"
	FeatureAIInsights          Feature = "ai_insights"
	FeaturePredictiveAnalytics Feature = "predictive_analytics"
	FeatureCustomDashboards    Feature = "custom_dashboards"
)

// Features lists every gated feature in the order they unlock.
var Features = []Feature{
	FeatureCSVUpload,
	FeatureERPIntegration,
	FeatureScenarioPlanning,
	FeatureAIInsights,
	FeaturePredictiveAnalytics,
	FeatureCustomDashboards,
}

// Each tier grants its own features plus everything below it.
var tierFeatures = map[Tier][]Feature{
	TierEssentials:   {FeatureCSVUpload, FeatureERPIntegration},
	TierProfessional: {FeatureScenarioPlanning, FeatureAIInsights},
	TierEnterprise:   {FeaturePredictiveAnalytics, FeatureCustomDashboards},
}

func FeatureAllowed(t Tier, f Feature) bool {
	if !t.Valid() {
		return false
	}
	for _, tier := range Tiers {
		if slices.Contains(tierFeatures[tier], f) {
			return true
		}
		if tier == t {
			return false
		}
	}
	return false
}

// RequiredTier returns the lowest tier granting f, or "" for unknown features.
func RequiredTier(f Feature) Tier {
	for _, tier := range Tiers {
		if slices.Contains(tierFeatures[tier], f) {
			return tier
		}
	}
	return ""
}

// FeaturesFor returns every feature t grants.
func FeaturesFor(t Tier) []Feature {
	var out []Feature
	for _, f := range Features {
		if FeatureAllowed(t, f) {
			out = append(out, f)
		}
	}
	return out
}

type Limit string

const (
	LimitDashboards   Limit = "dashboards"
	LimitIntegrations Limit = "integrations"
	LimitUsers        Limit = "users"
	LimitDataSources  Limit = "data_sources"
)

var Limits = []Limit{LimitDashboards, LimitIntegrations, LimitUsers, LimitDataSources}

// Unlimited marks a ceiling that does not apply.
const Unlimited = -1

var tierLimits = map[Tier]map[Limit]int{
	TierEssentials: {
		LimitDashboards:   5,
		LimitIntegrations: 1,
		LimitUsers:        3,
		LimitDataSources:  2,
	},
	TierProfessional: {
		LimitDashboards:   15,
		LimitIntegrations: 3,
		LimitUsers:        10,
		LimitDataSources:  5,
	},
	TierEnterprise: {
		LimitDashboards:   Unlimited,
		LimitIntegrations: Unlimited,
		LimitUsers:        Unlimited,
		LimitDataSources:  Unlimited,
	},
}

// LimitFor returns the ceiling for l on tier t. Unknown tiers or limits get
// a ceiling of zero.
func LimitFor(t Tier, l Limit) (ceiling int, unlimited bool) {
	n, ok := tierLimits[t][l]
	if !ok {
		return 0, false
	}
	if n == Unlimited {
		return 0, true
	}
	return n, false
}

// Monthly list prices in whole pounds.
var tierPricesGBP = map[Tier]int{
	TierEssentials:   500,
	TierProfessional: 1500,
	TierEnterprise:   3500,
}

// MonthlyPriceGBP returns the list price of t, or zero for unknown tiers.
func MonthlyPriceGBP(t Tier) int { return tierPricesGBP[t] }
