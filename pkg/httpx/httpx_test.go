package httpx_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/finsightai/finsight/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), tag("outer"), tag("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic Zm9vOmJhcg==", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, ok := httpx.BearerToken(req)
		require.Equal(t, tt.ok, ok, tt.header)
		require.Equal(t, tt.want, got, tt.header)
	}
}

func TestWriteBearerError(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.WriteBearerError(rec)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t,
		`Bearer error="invalid_token", error_description="`+httpx.InvalidTokenDescription+`"`,
		rec.Header().Get("WWW-Authenticate"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "invalid_token", body["error"])
	require.Equal(t, httpx.InvalidTokenDescription, body["error_description"])
	require.NotContains(t, body["error_description"], "expired")
}

func TestWriteFeatureNotEntitled(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.WriteFeatureNotEntitled(rec, "ai_insights", "professional")

	require.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "feature requires tier professional", body["error_description"])
	require.Equal(t, "ai_insights", body["feature"])
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Email string `json:"email"`
	}

	decode := func(ct, body string) (payload, error) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		var p payload
		err := httpx.DecodeJSON(httptest.NewRecorder(), req, &p)
		return p, err
	}

	p, err := decode("application/json; charset=utf-8", `{"email":"a@b.c"}`)
	require.NoError(t, err)
	require.Equal(t, "a@b.c", p.Email)

	_, err = decode("text/plain", `{"email":"a@b.c"}`)
	require.ErrorIs(t, err, httpx.ErrUnsupportedMediaType)

	_, err = decode("", `{"email":"a@b.c","extra":1}`)
	require.ErrorIs(t, err, httpx.ErrMalformedJSON)

	_, err = decode("", `{"email":"a@b.c"}{}`)
	require.ErrorIs(t, err, httpx.ErrMalformedJSON)

	_, err = decode("", `{"email":"`+strings.Repeat("x", httpx.MaxJSONBodyBytes)+`"}`)
	require.ErrorIs(t, err, httpx.ErrBodyTooLarge)
}
