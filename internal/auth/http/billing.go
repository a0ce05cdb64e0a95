package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/finsightai/finsight/internal/auth/billing"
	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/finsightai/finsight/internal/auth/service"
	"github.com/finsightai/finsight/pkg/authsdk"
	"github.com/finsightai/finsight/pkg/httpx"
	"github.com/finsightai/finsight/pkg/slogx"
)

type BillingHandler struct {
	Ledger   *service.SubscriptionLedger
	Webhooks *service.WebhookReconciler
}

// HandleEntitlement serves GET /v1/billing/entitlement straight from the
// ledger, never from token claims.
func (h *BillingHandler) HandleEntitlement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ac, ok := AuthFromContext(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	ent, err := h.Ledger.CurrentEntitlement(ctx, ac.OrganisationID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := authsdk.EntitlementResponse{
		OrganisationID:   ent.OrganisationID,
		Tier:             string(ent.Tier),
		Status:           string(ent.Status),
		Entitled:         ent.Status.Entitled(),
		CurrentPeriodEnd: ent.CurrentPeriodEnd,
		Features:         []string{},
		Limits:           make(map[string]authsdk.LimitInfo, len(domain.Limits)),
	}
	if resp.Entitled {
		for _, f := range domain.FeaturesFor(ent.Tier) {
			resp.Features = append(resp.Features, string(f))
		}
	}
	for _, l := range domain.Limits {
		n, unlimited := h.Ledger.LimitFor(ent.Tier, l)
		resp.Limits[string(l)] = authsdk.LimitInfo{Max: n, Unlimited: unlimited}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandlePlans serves GET /v1/billing/plans, the public catalogue.
func (h *BillingHandler) HandlePlans(w http.ResponseWriter, r *http.Request) {
	resp := authsdk.PlansResponse{Plans: make([]authsdk.Plan, 0, len(domain.Tiers))}
	for _, t := range domain.Tiers {
		p := authsdk.Plan{
			Tier:            string(t),
			Name:            strings.ToUpper(string(t[:1])) + string(t[1:]),
			PriceMonthlyGBP: domain.MonthlyPriceGBP(t),
			Features:        []string{},
			Limits:          make(map[string]authsdk.LimitInfo, len(domain.Limits)),
			Popular:         t == domain.TierProfessional,
		}
		for _, f := range domain.FeaturesFor(t) {
			p.Features = append(p.Features, string(f))
		}
		for _, l := range domain.Limits {
			n, unlimited := domain.LimitFor(t, l)
			p.Limits[string(l)] = authsdk.LimitInfo{Max: n, Unlimited: unlimited}
		}
		resp.Plans = append(resp.Plans, p)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleFeature serves GET /v1/billing/features/{feature}. Reaching it
// means the gate already allowed the feature.
func (h *BillingHandler) HandleFeature(w http.ResponseWriter, r *http.Request) {
	ac, ok := AuthFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"feature": r.PathValue("feature"),
		"tier":    string(ac.Tier),
		"allowed": true,
	})
}

// HandleWebhook serves POST /v1/billing/webhook. A 2xx tells the provider
// to stop retrying; only processing failures answer 5xx.
func (h *BillingHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httpx.MaxJSONBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			authsdk.NewAPIError(http.StatusRequestEntityTooLarge, authsdk.ErrorCodeInvalidRequest, "request body too large").WriteError(w)
			return
		}
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	outcome, err := h.Webhooks.Apply(r.Context(), payload, r.Header.Get(billing.SignatureHeader))
	if err != nil {
		if errors.Is(err, service.ErrWebhookUnauthenticated) {
			authsdk.ErrWebhookUnauthenticated.WriteError(w)
			return
		}
		slogx.FromContext(r.Context()).Error("webhook not applied, provider will retry", slog.Any("error", err))
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.WebhookResponse{Received: true, Outcome: string(outcome)})
}
