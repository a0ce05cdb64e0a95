package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{429, "4xx"},
		{500, "5xx"},
		{42, "other"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, statusBucket(tt.code), "code %d", tt.code)
	}
}

func TestResult(t *testing.T) {
	require.Equal(t, "ok", Result(nil))
	require.Equal(t, "error", Result(errors.New("boom")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := Middleware(mux)

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "GET /v1/things/{id}", "4xx"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/things/abc", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "GET /v1/things/{id}", "4xx"))
	require.Equal(t, before+1, after)
}

func TestMetricsEndpoint(t *testing.T) {
	WebhookEventsTotal.WithLabelValues("applied").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "finsight_goroutines")
	require.Contains(t, body, `finsight_webhook_events_total{outcome="applied"}`)
}
