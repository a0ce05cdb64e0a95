package http

import (
	"net/http"

	"github.com/finsightai/finsight/internal/auth/service"
	"github.com/finsightai/finsight/pkg/authsdk"
	"github.com/finsightai/finsight/pkg/httpx"
)

// DemoHandler serves the passwordless demo link endpoints.
type DemoHandler struct {
	Demo        *service.DemoAccessGate
	ExposeToken bool
}

// HandleRequestAccess serves POST /v1/demo/request-access.
func (h *DemoHandler) HandleRequestAccess(w http.ResponseWriter, r *http.Request) {
	var req authsdk.DemoAccessRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	token, expiresAt, err := h.Demo.RequestAccess(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := authsdk.DemoAccessResponse{ExpiresAt: expiresAt}
	if h.ExposeToken {
		resp.Token = token
	}
	httpx.WriteJSON(w, http.StatusAccepted, resp)
}

// HandleVerify serves POST /v1/demo/verify.
func (h *DemoHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req authsdk.DemoVerifyRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.Token == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	grant, err := h.Demo.Verify(r.Context(), req.Token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.DemoVerifyResponse{
		Email:     grant.Email,
		ExpiresAt: grant.ExpiresAt,
		ViewCount: grant.ViewCount,
	})
}
