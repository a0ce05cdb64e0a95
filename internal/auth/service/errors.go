package service

import (
	"errors"
	"fmt"

	"github.com/finsightai/finsight/internal/auth/domain"
)

var (
	ErrTokenInvalid       = errors.New("token_invalid")
	ErrTokenExpired       = errors.New("token_expired")
	ErrTokenReuseDetected = errors.New("token_reuse_detected")
	ErrTokenUnknown       = errors.New("token_unknown")

	ErrNotAMember         = errors.New("not_a_member")
	ErrInsufficientRole   = errors.New("insufficient_role")
	ErrNoSubscription     = errors.New("no_subscription")
	ErrFeatureNotEntitled = errors.New("feature_not_entitled")

	ErrWebhookUnauthenticated = errors.New("webhook_unauthenticated")
	// ErrWebhookStaleEvent is logged and reported as an outcome. It is never
	// returned to the sender.
	ErrWebhookStaleEvent   = errors.New("webhook_stale_event")
	ErrUnknownOrganisation = errors.New("unknown_organisation")

	ErrDemoTokenExpired     = errors.New("demo_token_expired")
	ErrDemoTokenAlreadyUsed = errors.New("demo_token_already_used")
	ErrDemoTokenUnknown     = errors.New("demo_token_unknown")

	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrEmailTaken         = errors.New("email_taken")
	ErrInvalidInput       = errors.New("invalid_input")
)

// FeatureNotEntitledError names the feature that was denied and the lowest
// tier that would grant it. It matches ErrFeatureNotEntitled with errors.Is.
type FeatureNotEntitledError struct {
	Feature      domain.Feature
	RequiredTier domain.Tier
}

func (e *FeatureNotEntitledError) Error() string {
	if e.RequiredTier == "" {
		return fmt.Sprintf("feature %s is not available", e.Feature)
	}
	return fmt.Sprintf("feature %s requires tier %s", e.Feature, e.RequiredTier)
}

func (e *FeatureNotEntitledError) Unwrap() error { return ErrFeatureNotEntitled }

func notEntitled(f domain.Feature) error {
	return &FeatureNotEntitledError{Feature: f, RequiredTier: domain.RequiredTier(f)}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
