package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/finsightai/finsight/internal/auth/metrics"
	"github.com/finsightai/finsight/internal/auth/service"
	"github.com/finsightai/finsight/internal/auth/store"
	"github.com/finsightai/finsight/pkg/httpx"
	"github.com/finsightai/finsight/pkg/jwtx"
	"github.com/finsightai/finsight/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeyManager
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	Limits httpx.RateLimitProfiles

	UserService *service.UserService
	Tokens      *service.TokenService
	Memberships *service.MembershipRegistry
	Ledger      *service.SubscriptionLedger
	Gate        *service.AuthorizationGate
	Webhooks    *service.WebhookReconciler
	Demo        *service.DemoAccessGate

	// ExposeDemoToken returns demo tokens in the response body instead of
	// relying on the notifier. Local development only.
	ExposeDemoToken bool
}

func NewRouter(
	keys *jwtx.KeyManager,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		Limits:       httpx.DefaultRateLimitProfiles(),
	}

	// slogx sits outside metrics so the metrics middleware sees the request
	// the mux stamps its pattern on.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		metrics.Middleware,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerOrganisation()
	r.registerBilling()
	r.registerDemo()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// authorized wraps h in the gate followed by a per-user rate limit.
func (r *Router) authorized(h http.Handler, req service.Requirement, limit httpx.RateLimitConfig) http.Handler {
	return httpx.Chain(h,
		RequireAuth(r.Gate, req),
		httpx.RateLimitByUser(limit),
	)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		Users:       r.UserService,
		Tokens:      r.Tokens,
		Memberships: r.Memberships,
	}

	// Credential endpoints are limited per IP and per email so one address
	// cannot be hammered from many IPs.
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIPAndJSONField(r.Limits.Strict, "email"),
		),
	)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(r.Limits.Strict, "email"),
		),
	)

	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(r.Limits.Moderate),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(r.Limits.Moderate),
		),
	)

	r.Mux.Handle("POST /v1/auth/switch-organisation",
		r.authorized(http.HandlerFunc(h.HandleSwitchOrganisation), service.Requirement{}, r.Limits.Moderate))
	r.Mux.Handle("GET /v1/auth/me",
		r.authorized(http.HandlerFunc(h.HandleMe), service.Requirement{}, r.Limits.Lenient))
}

func (r *Router) registerOrganisation() {
	h := &OrganisationHandler{Users: r.UserService, Memberships: r.Memberships}

	// Membership changes always re-read the caller's role.
	r.Mux.Handle("POST /v1/organisation/members",
		r.authorized(http.HandlerFunc(h.HandleAdd), service.Requirement{Role: domain.RoleAdmin, Fresh: true}, r.Limits.Moderate))
	r.Mux.Handle("PUT /v1/organisation/members/{user_id}",
		r.authorized(http.HandlerFunc(h.HandleChangeRole), service.Requirement{Role: domain.RoleOwner, Fresh: true}, r.Limits.Moderate))
	r.Mux.Handle("DELETE /v1/organisation/members/{user_id}",
		r.authorized(http.HandlerFunc(h.HandleRemove), service.Requirement{Role: domain.RoleAdmin, Fresh: true}, r.Limits.Moderate))
}

func (r *Router) registerBilling() {
	h := &BillingHandler{Ledger: r.Ledger, Webhooks: r.Webhooks}

	r.Mux.Handle("GET /v1/billing/entitlement",
		r.authorized(http.HandlerFunc(h.HandleEntitlement), service.Requirement{}, r.Limits.Lenient))

	r.Mux.Handle("GET /v1/billing/plans",
		httpx.Chain(http.HandlerFunc(h.HandlePlans),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)

	// Each feature route goes through the gate with its own requirement.
	r.Mux.Handle("GET /v1/billing/features/{feature}",
		httpx.Chain(http.HandlerFunc(h.HandleFeature),
			RequireFeatureFromPath(r.Gate, "feature"),
			httpx.RateLimitByUser(r.Limits.Lenient),
		),
	)

	// The webhook authenticates with its signature, not a bearer token.
	r.Mux.Handle("POST /v1/billing/webhook",
		httpx.Chain(http.HandlerFunc(h.HandleWebhook),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)
}

func (r *Router) registerDemo() {
	h := &DemoHandler{Demo: r.Demo, ExposeToken: r.ExposeDemoToken}

	r.Mux.Handle("POST /v1/demo/request-access",
		httpx.Chain(http.HandlerFunc(h.HandleRequestAccess),
			httpx.RateLimitByIPAndJSONField(r.Limits.Strict, "email"),
		),
	)
	r.Mux.Handle("POST /v1/demo/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(r.Limits.Moderate),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.Limits.Lenient),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(r.Limits.Lenient),
		),
	)
	r.Mux.Handle("GET /metrics", metrics.Handler())
}
