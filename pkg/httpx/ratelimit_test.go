package httpx_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/finsightai/finsight/pkg/httpx"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func fire(t *testing.T, h http.Handler, remote, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIPKeyExtractor(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "remote addr", want: "192.168.1.1"},
		{name: "first forwarded hop", headers: map[string]string{"X-Forwarded-For": "203.0.113.1, 192.168.1.1"}, want: "203.0.113.1"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "203.0.113.2"}, want: "203.0.113.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.168.1.1:12345"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, httpx.IPKeyExtractor(req))
		})
	}
}

func TestJSONFieldKeyExtractor(t *testing.T) {
	t.Run("reads field and restores body", func(t *testing.T) {
		body := `{"email":" Alice@Example.com ","password":"x"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

		require.Equal(t, "alice@example.com", httpx.JSONFieldKeyExtractor("email")(req))

		rest, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.Equal(t, body, string(rest))
	})

	t.Run("missing field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"other":"v"}`))
		require.Empty(t, httpx.JSONFieldKeyExtractor("email")(req))
	})

	t.Run("not json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`email=alice`))
		require.Empty(t, httpx.JSONFieldKeyExtractor("email")(req))
	})
}

func TestCompositeKeyExtractor(t *testing.T) {
	ex := httpx.CompositeKeyExtractor(":", httpx.IPKeyExtractor, httpx.FormFieldKeyExtractor("username"))

	req := httptest.NewRequest(http.MethodGet, "/?username=alice", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	require.Equal(t, "192.168.1.1:alice", ex(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	require.Equal(t, "192.168.1.1", ex(req))
}

func TestUserIDKeyExtractor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, httpx.UserIDKeyExtractor(req))

	req = req.WithContext(httpx.WithPrincipal(context.Background(), "user-1", "org-1"))
	require.Equal(t, "user-1", httpx.UserIDKeyExtractor(req))
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("blocks once the bucket is empty", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{RequestsPerWindow: 3, Window: time.Minute, Burst: 3}, httpx.IPKeyExtractor)(okHandler)

		for i := range 3 {
			require.Equal(t, http.StatusOK, fire(t, h, "192.168.1.1:1", "/").Code, "request %d", i+1)
		}
		rec := fire(t, h, "192.168.1.1:1", "/")
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		h := httpx.RateLimitByIP(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1})(okHandler)

		require.Equal(t, http.StatusOK, fire(t, h, "10.0.0.1:1", "/").Code)
		require.Equal(t, http.StatusTooManyRequests, fire(t, h, "10.0.0.1:1", "/").Code)
		require.Equal(t, http.StatusOK, fire(t, h, "10.0.0.2:1", "/").Code)
	})

	t.Run("burst smaller than rate", func(t *testing.T) {
		h := httpx.RateLimitByIP(httpx.RateLimitConfig{RequestsPerWindow: 10, Window: time.Second, Burst: 5})(okHandler)
		for range 5 {
			require.Equal(t, http.StatusOK, fire(t, h, "10.0.0.1:1", "/").Code)
		}
	})

	t.Run("no key passes through", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1},
			func(*http.Request) string { return "" })(okHandler)
		for range 3 {
			require.Equal(t, http.StatusOK, fire(t, h, "10.0.0.1:1", "/").Code)
		}
	})
}

func TestRateLimitByIPAndFormField(t *testing.T) {
	h := httpx.RateLimitByIPAndFormField(httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}, "username")(okHandler)

	for range 2 {
		require.Equal(t, http.StatusOK, fire(t, h, "192.168.1.1:1", "/?username=alice").Code)
	}
	require.Equal(t, http.StatusTooManyRequests, fire(t, h, "192.168.1.1:1", "/?username=alice").Code)
	require.Equal(t, http.StatusOK, fire(t, h, "192.168.1.1:1", "/?username=bob").Code)
}

func TestRateLimitByIPAndJSONField(t *testing.T) {
	h := httpx.RateLimitByIPAndJSONField(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}, "email")(okHandler)

	post := func(email string) int {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(fmt.Sprintf(`{"email":%q}`, email)))
		req.RemoteAddr = "192.168.1.1:1"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, post("alice@example.com"))
	require.Equal(t, http.StatusTooManyRequests, post("ALICE@example.com"))
	require.Equal(t, http.StatusOK, post("bob@example.com"))
}

func TestRateLimitProfiles(t *testing.T) {
	p := httpx.DefaultRateLimitProfiles()
	for name, cfg := range map[string]httpx.RateLimitConfig{
		"strict": p.Strict, "moderate": p.Moderate, "lenient": p.Lenient, "public": p.Public,
	} {
		t.Run(name, func(t *testing.T) {
			require.Positive(t, cfg.RequestsPerWindow)
			require.Positive(t, cfg.Window)
			require.Positive(t, cfg.Burst)
		})
	}

	require.Less(t, p.Strict.RequestsPerWindow, p.Moderate.RequestsPerWindow)
	require.Less(t, p.Moderate.RequestsPerWindow, p.Lenient.RequestsPerWindow)
	require.Less(t, p.Lenient.RequestsPerWindow, p.Public.RequestsPerWindow)
}

func TestRateLimitProfilesFromEnv(t *testing.T) {
	t.Setenv("RATELIMIT_STRICT_REQUESTS", "50")
	t.Setenv("RATELIMIT_STRICT_WINDOW_SEC", "10")
	t.Setenv("RATELIMIT_STRICT_BURST", "not-a-number")

	p := httpx.RateLimitProfilesFromEnv()
	require.Equal(t, 50, p.Strict.RequestsPerWindow)
	require.Equal(t, 10*time.Second, p.Strict.Window)
	require.Equal(t, httpx.StrictLimit.Burst, p.Strict.Burst)
	require.Equal(t, httpx.ModerateLimit, p.Moderate)
}

func TestRateLimitHeaders(t *testing.T) {
	h := httpx.RateLimitByIP(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1})(okHandler)

	require.Equal(t, http.StatusOK, fire(t, h, "192.168.1.1:1", "/").Code)
	rec := fire(t, h, "192.168.1.1:1", "/")

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.Contains(t, rec.Body.String(), "rate_limit_exceeded")
	require.Contains(t, rec.Body.String(), "error_description")
}

func BenchmarkRateLimitMiddleware(b *testing.B) {
	h := httpx.RateLimitByIP(httpx.RateLimitConfig{RequestsPerWindow: 1_000_000, Window: time.Minute, Burst: 1000})(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	b.ResetTimer()
	for b.Loop() {
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
}
