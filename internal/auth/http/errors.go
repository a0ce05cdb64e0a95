package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/finsightai/finsight/internal/auth/service"
	"github.com/finsightai/finsight/pkg/authsdk"
	"github.com/finsightai/finsight/pkg/httpx"
	"github.com/finsightai/finsight/pkg/slogx"
)

// writeDecodeError answers a request whose JSON body could not be read.
func writeDecodeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, httpx.ErrUnsupportedMediaType):
		authsdk.NewAPIError(http.StatusUnsupportedMediaType, authsdk.ErrorCodeInvalidRequest, "content type must be application/json").WriteError(w)
	case errors.Is(err, httpx.ErrBodyTooLarge):
		authsdk.NewAPIError(http.StatusRequestEntityTooLarge, authsdk.ErrorCodeInvalidRequest, "request body too large").WriteError(w)
	default:
		authsdk.ErrInvalidRequest.WriteError(w)
	}
}

// writeServiceError maps service sentinels to API errors. Anything it does
// not recognise is logged and answered with a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *service.FeatureNotEntitledError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		desc := strings.TrimPrefix(err.Error(), service.ErrInvalidInput.Error()+": ")
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, desc).WriteError(w)
	case errors.Is(err, service.ErrInvalidCredentials):
		authsdk.ErrInvalidCredentials.WriteError(w)
	case errors.Is(err, service.ErrEmailTaken):
		authsdk.ErrEmailTaken.WriteError(w)
	case errors.Is(err, service.ErrTokenUnknown),
		errors.Is(err, service.ErrTokenReuseDetected):
		authsdk.ErrInvalidGrant.WriteError(w)
	case errors.Is(err, service.ErrTokenInvalid),
		errors.Is(err, service.ErrTokenExpired):
		authsdk.ErrInvalidToken.WriteError(w)
	case errors.Is(err, service.ErrNotAMember):
		authsdk.ErrNotAMember.WriteError(w)
	case errors.Is(err, service.ErrInsufficientRole):
		authsdk.ErrInsufficientRole.WriteError(w)
	case errors.As(err, &fe):
		authsdk.NewFeatureNotEntitledError(string(fe.Feature), string(fe.RequiredTier)).WriteError(w)
	case errors.Is(err, service.ErrNoSubscription):
		authsdk.ErrNoSubscription.WriteError(w)
	case errors.Is(err, service.ErrDemoTokenUnknown):
		authsdk.ErrDemoTokenInvalid.WriteError(w)
	case errors.Is(err, service.ErrDemoTokenExpired):
		authsdk.ErrDemoTokenExpired.WriteError(w)
	case errors.Is(err, service.ErrDemoTokenAlreadyUsed):
		authsdk.ErrDemoTokenUsed.WriteError(w)
	case errors.Is(err, service.ErrWebhookUnauthenticated):
		authsdk.ErrWebhookUnauthenticated.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("request failed", slog.Any("error", err))
		authsdk.ErrServerError.WriteError(w)
	}
}
